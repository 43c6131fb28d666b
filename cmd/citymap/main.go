package main

import "github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/cli"

func main() {
	cli.Execute()
}
