package generator

import (
	"fmt"
	"io"
	"os"

	"github.com/jamesainslie/pregen/pkg/pregen/types"
)

// DefaultLogInterval is the number of completed items between progress lines.
const DefaultLogInterval = 100

// Observer receives per-item and periodic progress callbacks. Observers are
// advisory and cannot influence the run.
type Observer interface {
	// FileProcessed reports a finished item. err is nil on success.
	FileProcessed(r *types.ImageRecord, size int64, err error)

	// FileSkipped reports an item that was not attempted.
	FileSkipped(r *types.ImageRecord, reason string)

	// DryRun reports an item that would have been generated.
	DryRun(r *types.ImageRecord)

	// Update is called after every item with a snapshot of the stats.
	Update(s Stats)
}

// NopObserver ignores all callbacks.
type NopObserver struct{}

func (NopObserver) FileProcessed(*types.ImageRecord, int64, error) {}
func (NopObserver) FileSkipped(*types.ImageRecord, string) {}
func (NopObserver) DryRun(*types.ImageRecord) {}
func (NopObserver) Update(Stats) {}

// Multi fans callbacks out to every observer in order.
func Multi(observers ...Observer) Observer {
	return multi(observers)
}

type multi []Observer

func (m multi) FileProcessed(r *types.ImageRecord, size int64, err error) {
	for _, o := range m {
		o.FileProcessed(r, size, err)
	}
}

func (m multi) FileSkipped(r *types.ImageRecord, reason string) {
	for _, o := range m {
		o.FileSkipped(r, reason)
	}
}

func (m multi) DryRun(r *types.ImageRecord) {
	for _, o := range m {
		o.DryRun(r)
	}
}

func (m multi) Update(s Stats) {
	for _, o := range m {
		o.Update(s)
	}
}

// LogProgress prints one line per item when ShowFiles is set, and otherwise
// logs a summary every Interval completed items.
type LogProgress struct {
	ShowFiles bool
	Interval  int

	// Out receives per-item lines. Nil means stdout.
	Out io.Writer

	lastLogged int
}

// NewLogProgress returns a LogProgress with the default interval.
func NewLogProgress(out io.Writer, showFiles bool) *LogProgress {
	return &LogProgress{ShowFiles: showFiles, Interval: DefaultLogInterval, Out: out}
}

func (p *LogProgress) out() io.Writer {
	if p.Out == nil {
		return os.Stdout
	}
	return p.Out
}

// FileProcessed implements Observer.
func (p *LogProgress) FileProcessed(r *types.ImageRecord, size int64, err error) {
	if !p.ShowFiles {
		return
	}
	if err != nil {
		fmt.Fprintf(p.out(), "  [ERROR] %s -> %v\n", r.Filename, err)
		return
	}
	fmt.Fprintf(p.out(), "  [OK] %s -> thumbnail generated (%s)\n", r.Filename, types.FormatSize(size))
}

// FileSkipped implements Observer.
func (p *LogProgress) FileSkipped(r *types.ImageRecord, reason string) {
	if p.ShowFiles {
		fmt.Fprintf(p.out(), "  [SKIP] %s -> %s\n", r.Filename, reason)
	}
}

// DryRun implements Observer.
func (p *LogProgress) DryRun(r *types.ImageRecord) {
	if p.ShowFiles {
		fmt.Fprintf(p.out(), "  [DRY RUN] %s -> would generate thumbnail\n", r.Filename)
	}
}

// Update implements Observer.
func (p *LogProgress) Update(s Stats) {
	if p.ShowFiles {
		return
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultLogInterval
	}
	done := s.Completed()
	if done-p.lastLogged < interval {
		return
	}
	p.lastLogged = done
	logger.Info(fmt.Sprintf("Progress: %d generated, %d errors (%.1f/min, ~%.0fm remaining, %d left)",
		s.Processed, s.Errors, s.RatePerMinute(), s.ETA().Minutes(), s.Remaining()))
}
