package scanner

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/pregen/pkg/pregen/types"
)

// Progress observes a running scan. Implementations are called from the
// scanning goroutine only.
type Progress interface {
	// CollectionStarted is called before a collection is listed.
	CollectionStarted(collection string)

	// ThumbnailsLoaded is called once the thumbnail index of a collection
	// has been built. It is not called for on-demand scans.
	ThumbnailsLoaded(collection string, count int)

	// FileScanned is called for every recorded original.
	FileScanned(record *types.ImageRecord)

	// CollectionCompleted is called with the final statistics of a collection.
	CollectionCompleted(stats types.CollectionStats)
}

// NopProgress discards all events.
type NopProgress struct{}

func (NopProgress) CollectionStarted(string) {}
func (NopProgress) ThumbnailsLoaded(string, int) {}
func (NopProgress) FileScanned(*types.ImageRecord) {}
func (NopProgress) CollectionCompleted(types.CollectionStats) {}

// LogProgress reports scan progress either as one line per file written to
// Out, or as periodic summaries through the scanner logger.
type LogProgress struct {
	// ShowFiles prints every scanned file instead of periodic summaries.
	ShowFiles bool

	// Interval is the number of files per collection between summaries.
	Interval int

	// Out receives per-file lines. Nil means stdout.
	Out io.Writer

	mu     sync.Mutex
	counts map[string]int
	total  int
	start  time.Time
	now    func() time.Time
}

// NewLogProgress returns a LogProgress writing per-file lines to out.
func NewLogProgress(out io.Writer, showFiles bool) *LogProgress {
	return &LogProgress{
		ShowFiles: showFiles,
		Interval:  DefaultProgressInterval,
		Out:       out,
		counts:    make(map[string]int),
		now:       time.Now,
	}
}

func (p *LogProgress) out() io.Writer {
	if p.Out == nil {
		return os.Stdout
	}
	return p.Out
}

// CollectionStarted implements Progress.
func (p *LogProgress) CollectionStarted(collection string) {
	if p.ShowFiles {
		fmt.Fprintf(p.out(), "\n=== Scanning collection: %s ===\n", collection)
		return
	}
	logger.Info("Scanning collection: " + collection)
}

// ThumbnailsLoaded implements Progress.
func (p *LogProgress) ThumbnailsLoaded(collection string, count int) {
	if p.ShowFiles {
		fmt.Fprintf(p.out(), "  Loaded %s existing thumbnails for %s\n", humanize.Comma(int64(count)), collection)
		return
	}
	logger.Info(fmt.Sprintf("  Found %s existing thumbnails", humanize.Comma(int64(count))))
}

// FileScanned implements Progress.
func (p *LogProgress) FileScanned(r *types.ImageRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.counts == nil {
		p.counts = make(map[string]int)
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.start.IsZero() {
		p.start = p.now()
	}
	p.counts[r.Collection]++
	p.total++
	count := p.counts[r.Collection]

	if p.ShowFiles {
		fmt.Fprintf(p.out(), "  [%s] %s\n", r.Collection, r.FormatSummary())
		return
	}

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	if count%interval != 0 {
		return
	}
	var rate float64
	if elapsed := p.now().Sub(p.start).Seconds(); elapsed > 0 {
		rate = float64(p.total) / elapsed
	}
	logger.Info(fmt.Sprintf("  Progress: %d in %s (total: %s, %.0f/sec)",
		count, r.Collection, humanize.Comma(int64(p.total)), rate))
}

// CollectionCompleted implements Progress.
func (p *LogProgress) CollectionCompleted(s types.CollectionStats) {
	if p.ShowFiles {
		fmt.Fprintf(p.out(), "--- %s: %d images, %d with thumbnails, %d missing ---\n",
			s.Name, s.TotalImages, s.WithThumbnails, s.MissingThumbnails)
		return
	}
	logger.Info(fmt.Sprintf("  Collection %s: %d images, %d with thumbnails, %d missing",
		s.Name, s.TotalImages, s.WithThumbnails, s.MissingThumbnails))
}

// Total returns the number of files reported so far.
func (p *LogProgress) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}
