package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/pregen/cmd/pregen/tui"
	"github.com/jamesainslie/pregen/pkg/pregen/config"
	"github.com/jamesainslie/pregen/pkg/pregen/events"
	"github.com/jamesainslie/pregen/pkg/pregen/generator"
	"github.com/jamesainslie/pregen/pkg/pregen/journal"
	"github.com/jamesainslie/pregen/pkg/pregen/manifest"
	"github.com/jamesainslie/pregen/pkg/pregen/metrics"
	"github.com/jamesainslie/pregen/pkg/pregen/output"
	"github.com/jamesainslie/pregen/pkg/pregen/storage"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Create the thumbnails a manifest says are missing",
	Long: `Generate reads a manifest produced by scan and creates every missing
thumbnail at the requested scale, one image at a time with a pause between
images. Failures are counted and reported; they never stop the run.

The first interrupt finishes the current image and stops; a second one
aborts immediately.

Examples:
  pregen generate -m manifest.json
  pregen generate -m manifest.json -s 400 -c 0.5 --collection botany
  pregen generate -m manifest.json -n --show-files
  pregen generate -m manifest.json --resume IMG_5000.jpg --tui`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringP("manifest", "m", "manifest.json", "manifest file produced by scan")
	f.IntP("scale", "s", config.DefaultScale, "thumbnail size in pixels")
	f.Float64P("cadence", "c", config.DefaultCadence, "seconds to pause between images")
	f.Int("quality", config.DefaultQuality, "JPEG quality (1-100)")
	f.StringSlice("collection", nil, "generate only for this collection (repeatable)")
	f.String("resume", "", "skip files whose name sorts before this one")
	f.Int("limit", 0, "process at most this many images (0=all)")
	f.BoolP("dry-run", "n", false, "count candidates without touching storage")
	f.BoolP("force", "f", false, "proceed even if the manifest is stale")
	f.Bool("show-files", false, "print a status line per image")
	f.Bool("tui", false, "show a live progress view")
	f.String("journal", "", "journal directory (default: cache dir)")
	f.Bool("no-journal", false, "do not read or write the journal")
	f.Bool("verify", false, "confirm every upload with a metadata request")
	addStorageFlags(generateCmd)

	bindKey(generateCmd, "manifest", "scan.manifest")
	bindKey(generateCmd, "scale", "generate.scale")
	bindKey(generateCmd, "cadence", "generate.cadence")
	bindKey(generateCmd, "quality", "generate.quality")
	bindKey(generateCmd, "verify", "generate.verify")
	bindKey(generateCmd, "journal", "journal.path")

	rootCmd.AddCommand(generateCmd)
}

// maxErrorDetails bounds the failures listed after a run.
const maxErrorDetails = 10

type generateFlags struct {
	collections []string
	resume      string
	limit       int
	dryRun      bool
	force       bool
	showFiles   bool
	tui         bool
	noJournal   bool
}

func readGenerateFlags(cmd *cobra.Command) generateFlags {
	f := cmd.Flags()
	var g generateFlags
	g.collections, _ = f.GetStringSlice("collection")
	g.resume, _ = f.GetString("resume")
	g.limit, _ = f.GetInt("limit")
	g.dryRun, _ = f.GetBool("dry-run")
	g.force, _ = f.GetBool("force")
	g.showFiles, _ = f.GetBool("show-files")
	g.tui, _ = f.GetBool("tui")
	g.noJournal, _ = f.GetBool("no-journal")
	return g
}

// loadManifest loads path and applies the staleness check.
func loadManifest(path string, staleAfter time.Duration, force bool) (*manifest.Manifest, error) {
	man, err := manifest.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &exitError{code: exitFailure, err: fmt.Errorf("manifest not found: %s", path)}
	}
	if err != nil {
		return nil, &exitError{code: exitFailure, err: fmt.Errorf("failed to load manifest: %w", err)}
	}

	now := time.Now()
	if man.IsStaleAfter(now, staleAfter) {
		logger.Warn(fmt.Sprintf("Manifest is %.1f hours old!", man.Age(now).Hours()))
		if !force {
			logger.Warn("Use --force to proceed anyway, or re-run scan first.")
			return nil, &exitError{code: exitFailure, err: manifest.ErrStale}
		}
		logger.Warn("Proceeding anyway due to --force flag.")
	}
	return man, nil
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	gf := readGenerateFlags(cmd)

	man, err := loadManifest(cfg.Scan.Manifest, cfg.Report.StaleAfter, gf.force)
	if err != nil {
		return err
	}
	logger.Info(fmt.Sprintf("Loaded manifest %s: %d images, %d missing thumbnails",
		cfg.Scan.Manifest, man.TotalImages(), man.TotalMissingThumbnails()))

	sc, err := manifestStorage(cfg.Storage, man.Storage, cmd.Flags().Changed)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}

	m := metrics.New()
	store, err := openStorage(sc, m)
	if err != nil {
		return err
	}

	opts := generator.Options{
		Scale:       cfg.Generate.Scale,
		Quality:     cfg.Generate.Quality,
		Cadence:     time.Duration(cfg.Generate.Cadence * float64(time.Second)),
		DryRun:      gf.dryRun,
		Collections: gf.collections,
		ResumeFrom:  gf.resume,
		Limit:       gf.limit,
		Verify:      cfg.Generate.Verify,
		Metrics:     m,
	}

	if cfg.Journal.Enabled && !gf.dryRun && !gf.noJournal {
		if j := openJournal(cfg.Journal.Path, store); j != nil {
			defer func() { _ = j.Close() }()
			opts.Journal = j.Scope(store.Info().String())
		}
	}

	publisher := openEvents(cfg.Events, m)
	defer func() { _ = publisher.Close() }()
	opts.Events = publisher

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	var (
		gen         *generator.Generator
		interrupted atomic.Bool
		view        *tui.View
	)
	stop := func() {
		interrupted.Store(true)
		gen.Stop()
	}

	var observers []generator.Observer
	switch {
	case gf.tui:
		view = tui.New(ctx, tui.Options{Scale: cfg.Generate.Scale, Stop: stop})
		observers = append(observers, view.Observer())
	case !quiet:
		observers = append(observers, generator.NewLogProgress(cmd.OutOrStdout(), gf.showFiles))
	}
	opts.Progress = generator.Multi(observers...)

	gen = generator.New(store, opts)
	defer handleSignals(ctx, stop, cancel)()

	run := func() (*generator.Stats, error) { return gen.Generate(ctx, man) }
	var stats *generator.Stats
	if view != nil {
		stats, err = view.Run(run)
	} else {
		stats, err = run()
	}
	writeMetrics(m, cfg.Metrics.Textfile)

	if stats != nil && !quiet {
		printGenerateSummary(cmd, stats, gf.dryRun)
	}
	if err != nil || interrupted.Load() {
		return &exitError{code: exitInterrupt, err: errors.New("generation interrupted")}
	}
	if stats != nil && stats.Errors > 0 {
		return &exitError{code: exitFailure, err: fmt.Errorf("%d thumbnails failed", stats.Errors)}
	}
	return nil
}

// handleSignals calls stop on the first interrupt and abort on the second.
// The returned function releases the signal handler.
func handleSignals(ctx context.Context, stop, abort func()) func() {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		first := true
		for {
			select {
			case <-ch:
				if first {
					first = false
					logger.Warn("Interrupt received, finishing the current image. Press Ctrl+C again to abort.")
					stop()
					continue
				}
				logger.Warn("Aborting")
				abort()
				return
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}

// openJournal opens the journal store. Failures disable the journal.
func openJournal(path string, store storage.Storage) *journal.Store {
	if path == "" {
		if err := config.EnsureCacheDir(); err != nil {
			logger.Warn("journal disabled", "error", err)
			return nil
		}
		path = config.DefaultJournalPath()
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		logger.Warn("journal disabled", "path", path, "error", err)
		return nil
	}
	j, err := journal.Open(path)
	if err != nil {
		logger.Warn("journal disabled", "path", path, "error", err)
		return nil
	}
	scope := j.Scope(store.Info().String())
	if n, err := scope.Count(); err == nil && n > 0 {
		logger.Info(fmt.Sprintf("Journal: %d thumbnails already generated for %s", n, store.Info()))
	}
	return j
}

// openEvents returns a Kafka publisher when brokers are configured.
func openEvents(ec config.EventsConfig, m *metrics.Metrics) events.Publisher {
	k, err := events.NewKafka(events.Config{
		Brokers:      ec.Brokers,
		Topic:        ec.Topic,
		BatchTimeout: ec.BatchTimeout,
	}, m)
	if errors.Is(err, events.ErrNoBrokers) {
		return events.Nop{}
	}
	if err != nil {
		logger.Warn("events disabled", "error", err)
		return events.Nop{}
	}
	logger.Info("Publishing events to " + k.Topic())
	return k
}

func printGenerateSummary(cmd *cobra.Command, s *generator.Stats, dryRun bool) {
	out := cmd.OutOrStdout()
	label := "Generated"
	if dryRun {
		label = "Would generate"
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s: %d\n", label, s.Processed)
	fmt.Fprintf(out, "Skipped:   %d\n", s.Skipped)
	fmt.Fprintf(out, "Errors:    %d\n", s.Errors)
	fmt.Fprintf(out, "Time:      %s\n", output.FormatDuration(s.Elapsed().Seconds()))
	fmt.Fprintf(out, "Rate:      %.1f images/min\n", s.RatePerMinute())

	if len(s.ErrorDetails) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Failures:")
	for i, msg := range s.ErrorDetails {
		if i == maxErrorDetails {
			fmt.Fprintf(out, "  ... and %d more\n", len(s.ErrorDetails)-maxErrorDetails)
			break
		}
		fmt.Fprintf(out, "  %s\n", msg)
	}
}
