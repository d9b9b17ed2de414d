package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/pregen/pkg/pregen/metrics"
	"github.com/jamesainslie/pregen/pkg/pregen/output"
	"github.com/jamesainslie/pregen/pkg/pregen/report"
	"github.com/jamesainslie/pregen/pkg/pregen/scanner"
	"github.com/jamesainslie/pregen/pkg/pregen/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List originals and existing thumbnails into a manifest",
	Long: `Scan enumerates every original image and the thumbnails that already
exist for it, and writes the result to a manifest file. Storage is only
read, never written.

Originals are recognised by extension: ` + strings.Join(types.ImageExtensions(), " ") + `

Examples:
  pregen scan -o manifest.json
  pregen scan --collection botany --collection zoology
  pregen scan --limit 50 --strategy on-demand --show-files
  pregen scan --local-root /srv/media`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	f := scanCmd.Flags()
	f.StringP("output", "o", "manifest.json", "manifest file to write")
	f.StringSlice("collection", nil, "scan only this collection (repeatable)")
	f.Int("limit", 0, "stop after this many originals (0=all)")
	f.String("strategy", "auto", "thumbnail discovery: full-index, on-demand or auto")
	f.Bool("show-files", false, "print a status line per original")
	addStorageFlags(scanCmd)

	bindKey(scanCmd, "output", "scan.manifest")
	bindKey(scanCmd, "strategy", "scan.strategy")

	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	collections, _ := cmd.Flags().GetStringSlice("collection")
	limit, _ := cmd.Flags().GetInt("limit")
	showFiles, _ := cmd.Flags().GetBool("show-files")

	strategy, err := scanner.ParseStrategy(cfg.Scan.Strategy)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}

	m := metrics.New()
	store, err := openStorage(cfg.Storage, m)
	if err != nil {
		return err
	}

	var progress scanner.Progress = scanner.NopProgress{}
	if !quiet {
		progress = scanner.NewLogProgress(cmd.OutOrStdout(), showFiles)
	}

	s := scanner.New(store, scanner.Options{
		Collections: collections,
		Limit:       limit,
		Strategy:    strategy,
		Progress:    progress,
		Metrics:     m,
	})

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	man, err := s.Scan(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return &exitError{code: exitInterrupt, err: errors.New("scan interrupted")}
		}
		return &exitError{code: exitFailure, err: fmt.Errorf("scan failed: %w", err)}
	}

	summary := s.Summary()
	if summary.Duplicates > 0 {
		logger.Warn(fmt.Sprintf("%d duplicate thumbnails resolved to the newest copy", summary.Duplicates))
	}
	if summary.LookupErrors > 0 {
		logger.Warn(fmt.Sprintf("%d thumbnail lookups failed; those originals are recorded without thumbnails", summary.LookupErrors))
	}

	if err := man.Save(cfg.Scan.Manifest); err != nil {
		return &exitError{code: exitFailure, err: fmt.Errorf("failed to save manifest: %w", err)}
	}
	logger.Info("Manifest saved to: " + cfg.Scan.Manifest)
	writeMetrics(m, cfg.Metrics.Textfile)

	if quiet || showFiles {
		return nil
	}

	rep, err := report.Build(man, report.Options{
		Kind:       report.KindSummary,
		Scale:      cfg.Generate.Scale,
		StaleAfter: cfg.Report.StaleAfter,
		Now:        time.Now(),
	})
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	text, err := output.Render(cfg.Report.Format, rep)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	fmt.Fprint(cmd.OutOrStdout(), text)
	return nil
}
