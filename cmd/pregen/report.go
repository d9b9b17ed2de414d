package main

import (
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/pregen/pkg/pregen/config"
	"github.com/jamesainslie/pregen/pkg/pregen/manifest"
	"github.com/jamesainslie/pregen/pkg/pregen/output"
	"github.com/jamesainslie/pregen/pkg/pregen/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarise a manifest without touching storage",
	Long: `Report renders a manifest as one of several views:

  summary   totals and per-collection coverage (default)
  detailed  summary plus original and thumbnail sizes
  plan      what generate would do, with time estimates
  missing   files with no thumbnail at all
  sizes     per-scale counts and sizes

Examples:
  pregen report -m manifest.json
  pregen report -m manifest.json -t plan -s 400 -c 0.5
  pregen report -m manifest.json -t missing --missing-limit 20
  pregen report -m manifest.json -o json
  pregen report -m manifest.json --watch`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	f := reportCmd.Flags()
	f.StringP("manifest", "m", "manifest.json", "manifest file produced by scan")
	f.StringP("type", "t", string(report.KindSummary), "report type: summary, detailed, plan, missing or sizes")
	f.StringSlice("collection", nil, "restrict plan, missing and sizes to this collection (repeatable)")
	f.IntP("scale", "s", config.DefaultScale, "target thumbnail size for plan and sizes")
	f.Float64P("cadence", "c", config.DefaultCadence, "seconds per image assumed by plan estimates")
	f.Int("missing-limit", config.DefaultMissingLimit, "files listed by the missing report")
	f.StringP("output", "o", output.DefaultFormat, "output format: "+formatList())
	f.Bool("watch", false, "re-render whenever the manifest changes")

	bindKey(reportCmd, "manifest", "scan.manifest")
	bindKey(reportCmd, "scale", "generate.scale")
	bindKey(reportCmd, "cadence", "generate.cadence")
	bindKey(reportCmd, "missing-limit", "report.missing_limit")
	bindKey(reportCmd, "output", "report.format")

	rootCmd.AddCommand(reportCmd)
}

func formatList() string {
	return strings.Join(output.Available(), ", ")
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	kindName, _ := cmd.Flags().GetString("type")
	kind, err := report.ParseKind(kindName)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	if !slices.Contains(output.Available(), cfg.Report.Format) {
		return &exitError{code: exitFailure, err: fmt.Errorf("unknown output format %q (available: %s)", cfg.Report.Format, formatList())}
	}
	collections, _ := cmd.Flags().GetStringSlice("collection")
	watch, _ := cmd.Flags().GetBool("watch")

	opts := report.Options{
		Kind:         kind,
		Collections:  collections,
		Scale:        cfg.Generate.Scale,
		Cadence:      time.Duration(cfg.Generate.Cadence * float64(time.Second)),
		MissingLimit: cfg.Report.MissingLimit,
		StaleAfter:   cfg.Report.StaleAfter,
	}
	render := func() error {
		text, err := renderReport(cfg.Scan.Manifest, cfg.Report.Format, opts)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	}

	if err := render(); err != nil {
		return err
	}
	if !watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info("Watching " + cfg.Scan.Manifest + " for changes")
	return watchFile(ctx, cfg.Scan.Manifest, func() {
		if err := render(); err != nil {
			logger.Warn("failed to re-render report", "error", err)
		}
	})
}

// renderReport loads path and renders it with the named formatter.
func renderReport(path, format string, opts report.Options) (string, error) {
	man, err := manifest.Load(path)
	if err != nil {
		return "", &exitError{code: exitFailure, err: fmt.Errorf("failed to load manifest %s: %w", path, err)}
	}
	opts.Now = time.Now()
	rep, err := report.Build(man, opts)
	if err != nil {
		return "", &exitError{code: exitFailure, err: err}
	}
	text, err := output.Render(format, rep)
	if err != nil {
		return "", &exitError{code: exitFailure, err: err}
	}
	return text, nil
}
