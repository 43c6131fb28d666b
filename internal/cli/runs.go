package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/runstore"
	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/tiles"
)

var (
	runsOutput string
	runsLimit  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List past exports recorded in an output directory",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := filepath.Join(runsOutput, runstore.DefaultFile)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("no export ledger in %s: %w", runsOutput, err)
		}
		store, err := runstore.NewStore(path)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(runsLimit)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if len(runs) == 0 {
			cmd.Println("No runs recorded.")
			return nil
		}
		printTitle(w, "Export runs")
		for _, r := range runs {
			status := statusStyle(string(r.Status)).Render(string(r.Status))
			fmt.Fprintf(w, "  %s  %-9s  %s points, %d cells (%d dropped), %d reused  %s\n",
				r.ID, status,
				humanize.Comma(int64(r.Counts.Points)),
				r.Counts.AcquiredCells, r.Counts.DroppedCells, r.Counts.ReusedImages,
				humanize.Time(r.CreatedAt))
			if r.Error != "" {
				fmt.Fprintf(w, "    %s\n", errStyle.Render(r.Error))
			}
		}
		printManifest(w, runsOutput)
		return nil
	},
}

// printManifest summarizes the levels currently published in dir, if any.
func printManifest(w io.Writer, dir string) {
	m, err := tiles.ReadManifest(dir)
	if err != nil {
		return
	}
	fmt.Fprintln(w)
	printTitle(w, "Published output")
	printField(w, "run", m.RunID)
	for _, l := range m.Levels {
		printField(w, l.Name, fmt.Sprintf("%d cells, %s", l.Cells, strings.Join(l.Files, ", ")))
	}
}

func init() {
	runsCmd.Flags().StringVarP(&runsOutput, "output", "o", ".", "export output directory")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(runsCmd)
}
