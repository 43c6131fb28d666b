package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/pyramid"
	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/tiles"
)

var (
	cellOutput   string
	cellLevel    int
	cellExamples int
)

var cellCmd = &cobra.Command{
	Use:   "cell CX,CY",
	Short: "Show one cell of an exported level",
	Example: `  citymap cell --output web/data 10,20
  citymap cell -o web/data --level 64 3,7`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := pyramid.ParseCellKey(args[0])
		if err != nil {
			return err
		}
		manifest, err := tiles.ReadManifest(cellOutput)
		if err != nil {
			return err
		}

		size := cellLevel
		if size == 0 && len(manifest.Levels) > 0 {
			size = manifest.Levels[0].Size
		}
		files, ok := manifest.Level(size)
		if !ok {
			return fmt.Errorf("no level %d in %s", size, cellOutput)
		}
		level, err := tiles.ReadLevel(cellOutput, files)
		if err != nil {
			return err
		}
		rec, ok := level.Cells[key]
		if !ok {
			return fmt.Errorf("cell %s is empty in %s", key, files.Name)
		}

		w := cmd.OutOrStdout()
		printTitle(w, fmt.Sprintf("%s cell %s", files.Name, key))
		printField(w, "count", humanize.Comma(int64(rec.Count)))
		printField(w, "image", rec.Image)
		printField(w, "url", rec.URL)
		printField(w, "caption", rec.Caption)
		printField(w, "examples", len(rec.Examples))
		for i, ex := range rec.Examples {
			if i == cellExamples {
				break
			}
			fmt.Fprintf(w, "    %s  %s\n", ex.URL, ex.Caption)
		}
		return nil
	},
}

func init() {
	cellCmd.Flags().StringVarP(&cellOutput, "output", "o", ".", "export output directory")
	cellCmd.Flags().IntVar(&cellLevel, "level", 0, "grid size of the level (default: finest)")
	cellCmd.Flags().IntVar(&cellExamples, "examples", 5, "examples to list")
	rootCmd.AddCommand(cellCmd)
}
