package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/config"
	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/service"
)

type exportFlags struct {
	input     string
	output    string
	config    string
	workers   int
	seed      int64
	maxJSONMB int
	compress  bool
	noRender  bool
}

var exportOpts exportFlags

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Build the tile pyramid from a point file",
	Long: `Build the 256/128/64 grid pyramid from a .parquet or .csv point file.

Images already present in the output directory are reused, so an interrupted export
can simply be started again.`,
	Example: `  citymap export --input points.parquet --output web/data
  citymap export -i points.csv -o out --config citymap.toml --workers 64`,
	RunE: runExport,
}

func init() {
	f := exportCmd.Flags()
	f.StringVarP(&exportOpts.input, "input", "i", "", "point file (.parquet or .csv)")
	f.StringVarP(&exportOpts.output, "output", "o", "", "output directory")
	f.StringVarP(&exportOpts.config, "config", "c", "citymap.yaml", "configuration file (.yaml or .toml)")
	f.IntVar(&exportOpts.workers, "workers", 0, "concurrent leaf cells (overrides export.workers)")
	f.Int64Var(&exportOpts.seed, "seed", 0, "example sampling seed (overrides export.seed)")
	f.IntVar(&exportOpts.maxJSONMB, "max-json-mb", 0, "JSON file budget in MiB (overrides output.max_json_mb)")
	f.BoolVar(&exportOpts.compress, "compress", false, "also write .zst sidecars")
	f.BoolVar(&exportOpts.noRender, "no-render", false, "skip density overview images")
	exportCmd.MarkFlagRequired("input")
	exportCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(exportCmd)
}

// applyExportFlags overrides configuration values with explicitly set flags.
func applyExportFlags(cmd *cobra.Command, cfg *config.Config, opts exportFlags) {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Export.Workers = opts.workers
	}
	if flags.Changed("seed") {
		cfg.Export.Seed = opts.seed
	}
	if flags.Changed("max-json-mb") {
		cfg.Output.MaxJSONMB = opts.maxJSONMB
	}
	if opts.compress {
		cfg.Output.Compress = true
	}
	if opts.noRender {
		cfg.Render.Enabled = false
	}
}

func runExport(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(exportOpts.config)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyExportFlags(cmd, cfg, exportOpts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := service.NewExportService(service.ExportServiceConfig{Config: cfg, Verbose: verbose})
	result, err := svc.Run(ctx, service.ExportRequest{Input: exportOpts.input, OutputDir: exportOpts.output})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("export interrupted: %w", err)
		}
		return fmt.Errorf("export failed: %w", err)
	}

	w := cmd.OutOrStdout()
	printTitle(w, "Export complete")
	printField(w, "run", result.RunID)
	printField(w, "points", humanize.Comma(int64(result.Stats.Points)))
	printField(w, "leaf cells", fmt.Sprintf("%d (%d dropped)", result.Stats.AcquiredCells, result.Stats.DroppedCells))
	printField(w, "images", fmt.Sprintf("%d fetched, %d reused", result.Images.Fetched, result.Stats.ReusedImages))
	for _, lvl := range result.Levels {
		printField(w, lvl.Name, fmt.Sprintf("%d cells, %s in %s",
			lvl.Cells, humanize.IBytes(uint64(lvl.Bytes)), strings.Join(lvl.Files, ", ")))
	}
	printField(w, "duration", result.Duration.Round(1e6))
	return nil
}
