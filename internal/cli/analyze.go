package cli

import (
	"fmt"
	"log"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/analysis"
	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/data/records"
)

var (
	analyzeOut  string
	analyzeTop  int
	captionCity string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Frequency reports over point files",
}

var analyzeDomainsCmd = &cobra.Command{
	Use:   "domains PATH...",
	Short: "Count the hosting domains of image URLs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := records.ExpandInputs(args)
		if err != nil {
			return err
		}
		counter := analysis.NewDomainCounter()
		for _, f := range files {
			log.Printf("[Analyze] Reading %s", f)
			if err := records.ReadColumn(f, records.ColumnURL, counter.Add); err != nil {
				return err
			}
		}

		path, err := counter.WriteCSV(analyzeOut, analyzeTop)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		printTitle(w, "Top domains")
		for _, c := range counter.Top(analyzeTop) {
			printField(w, c.Key, humanize.Comma(int64(c.Count)))
		}
		printField(w, "urls", humanize.Comma(int64(counter.Total())))
		printField(w, "written", path)
		return nil
	},
}

var analyzeCaptionsCmd = &cobra.Command{
	Use:   "captions PATH...",
	Short: "Count caption words, bigrams and trigrams",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(captionCity) == "" {
			return fmt.Errorf("--city is required")
		}
		files, err := records.ExpandInputs(args)
		if err != nil {
			return err
		}
		counter := analysis.NewCaptionCounter(captionCity)
		for _, f := range files {
			log.Printf("[Analyze] Reading %s", f)
			if err := records.ReadColumn(f, records.ColumnCaption, counter.Add); err != nil {
				return err
			}
		}

		written, err := counter.WriteCSV(analyzeOut, analyzeTop)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		printTitle(w, "Top words")
		for _, c := range counter.TopWords(analyzeTop) {
			printField(w, c.Key, humanize.Comma(int64(c.Count)))
		}
		printField(w, "captions", humanize.Comma(int64(counter.Captions())))
		for _, p := range written {
			printField(w, "written", p)
		}
		return nil
	},
}

func init() {
	analyzeCmd.PersistentFlags().StringVar(&analyzeOut, "out", ".", "directory for the CSV reports")
	analyzeCmd.PersistentFlags().IntVar(&analyzeTop, "top", 100, "rows per report")
	analyzeCaptionsCmd.Flags().StringVar(&captionCity, "city", "", "city name, left out of single-word counts")

	analyzeCmd.AddCommand(analyzeDomainsCmd)
	analyzeCmd.AddCommand(analyzeCaptionsCmd)
	rootCmd.AddCommand(analyzeCmd)
}
