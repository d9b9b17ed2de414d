// Package generator creates missing thumbnails for the records of a manifest.
package generator

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync/atomic"
	"time"

	"github.com/jamesainslie/pregen/pkg/pregen/codec"
	"github.com/jamesainslie/pregen/pkg/pregen/events"
	"github.com/jamesainslie/pregen/pkg/pregen/logging"
	"github.com/jamesainslie/pregen/pkg/pregen/manifest"
	"github.com/jamesainslie/pregen/pkg/pregen/metrics"
	"github.com/jamesainslie/pregen/pkg/pregen/storage"
	"github.com/jamesainslie/pregen/pkg/pregen/types"
)

var logger = logging.Get("generator")

// analysisLogInterval is how many candidates pass between enumeration log lines.
const analysisLogInterval = 1000

// ErrVerifyFailed is recorded when an uploaded thumbnail cannot be confirmed.
var ErrVerifyFailed = errors.New("thumbnail verification failed")

// Thumbnailer turns original bytes into thumbnail bytes.
type Thumbnailer interface {
	Generate(data []byte, ext string) ([]byte, string, error)
	Scale() int
}

// Journal remembers completed (original, scale) pairs across runs.
type Journal interface {
	Done(originalKey string, scale int) (bool, error)
	Record(originalKey string, scale int, thumbKey string, size int64, contentType string) error
}

// Options configures a Generator.
type Options struct {
	// Scale is the target thumbnail size. Zero uses types.DefaultScale.
	Scale int

	// Quality is the JPEG quality passed to the codec.
	Quality int

	// Cadence is the pause after each item that reached storage. Zero
	// disables it.
	Cadence time.Duration

	// DryRun counts candidates without downloading or uploading anything.
	DryRun bool

	// Collections restricts candidates. Empty means all.
	Collections []string

	// ResumeFrom skips records whose filename sorts before it.
	ResumeFrom string

	// Limit caps the number of candidates. Zero means no limit.
	Limit int

	// Verify checks every upload with a metadata call.
	Verify bool

	// Codec overrides the thumbnail codec built from Scale and Quality.
	Codec Thumbnailer

	// Progress, Journal, Events and Metrics are optional.
	Progress Observer
	Journal  Journal
	Events   events.Publisher
	Metrics  *metrics.Metrics
}

// outcome is what happened to one candidate.
type outcome int

const (
	outcomeGenerated outcome = iota
	outcomeFailed
	outcomeSkipped
	outcomeDryRun
)

// Generator processes the candidates of a manifest one at a time.
type Generator struct {
	store storage.Storage
	opts  Options
	codec Thumbnailer

	stopped atomic.Bool
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a Generator writing to store.
func New(store storage.Storage, opts Options) *Generator {
	if opts.Scale <= 0 {
		opts.Scale = types.DefaultScale
	}
	if opts.Progress == nil {
		opts.Progress = NopObserver{}
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	c := opts.Codec
	if c == nil {
		c = codec.New(opts.Scale, opts.Quality)
	}
	return &Generator{
		store: store,
		opts:  opts,
		codec: c,
		now:   time.Now,
		sleep: sleepContext,
	}
}

// Scale returns the target scale.
func (g *Generator) Scale() int { return g.opts.Scale }

// Stop asks the generator to halt at the next record boundary. It is safe to
// call from any goroutine, including before Generate starts.
func (g *Generator) Stop() {
	g.stopped.Store(true)
}

// Stopped reports whether Stop has been called.
func (g *Generator) Stopped() bool {
	return g.stopped.Load()
}

// Candidates returns the records of m that lack the target scale, filtered
// by collection and resume cursor, ordered by collection then filename and
// capped at the configured limit.
func (g *Generator) Candidates(m *manifest.Manifest) []*types.ImageRecord {
	wanted := make(map[string]bool, len(g.opts.Collections))
	for _, c := range g.opts.Collections {
		wanted[c] = true
	}

	order := make(map[string]int, len(m.Collections))
	for i, c := range m.Collections {
		order[c] = i
	}

	var out []*types.ImageRecord
	for _, r := range m.Records {
		if len(wanted) > 0 && !wanted[r.Collection] {
			continue
		}
		if r.HasThumbnail(g.opts.Scale) {
			continue
		}
		if g.opts.ResumeFrom != "" && r.Filename < g.opts.ResumeFrom {
			continue
		}
		if _, ok := order[r.Collection]; !ok {
			order[r.Collection] = len(order)
		}
		out = append(out, r)
		if len(out)%analysisLogInterval == 0 {
			logger.Info(fmt.Sprintf("  Found %d records needing thumbnails...", len(out)))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := order[out[i].Collection], order[out[j].Collection]
		if ci != cj {
			return ci < cj
		}
		return out[i].Filename < out[j].Filename
	})

	if g.opts.Limit > 0 && len(out) > g.opts.Limit {
		logger.Info(fmt.Sprintf("  Stopping at limit (%d)", g.opts.Limit))
		out = out[:g.opts.Limit]
	}
	return out
}

// Generate creates the missing thumbnails of m. Per-item failures are
// counted in the returned stats and never abort the run. The error is
// non-nil only when ctx was cancelled; the stats are valid either way.
func (g *Generator) Generate(ctx context.Context, m *manifest.Manifest) (*Stats, error) {
	if g.Stopped() {
		logger.Info("Stop was requested before generation started")
		s := newStats(0, g.now())
		s.Finished = s.Start
		return s, nil
	}

	logger.Info("Counting records to process...")
	candidates := g.Candidates(m)
	if len(candidates) >= analysisLogInterval {
		logger.Info(fmt.Sprintf("  Total: %d records to process", len(candidates)))
	}

	stats := newStats(len(candidates), g.now())
	mode := ""
	if g.opts.DryRun {
		mode = " [DRY RUN]"
	}
	limit := ""
	if g.opts.Limit > 0 {
		limit = fmt.Sprintf(" (limited to %d)", g.opts.Limit)
	}
	logger.Info(fmt.Sprintf("Starting generation: %d thumbnails to generate%s%s", len(candidates), mode, limit))

	var ctxErr error
	generated := false
	for _, r := range candidates {
		if g.Stopped() {
			logger.Info("Stop requested, halting generation")
			break
		}
		if err := ctx.Err(); err != nil {
			ctxErr = err
			logger.Info("Interrupted, halting generation")
			break
		}

		result := g.process(ctx, r, stats)
		if result == outcomeGenerated {
			generated = true
		}
		g.opts.Progress.Update(*stats)

		// Cadence paces storage and codec work; journal skips and dry runs do none.
		if g.opts.Cadence > 0 && (result == outcomeGenerated || result == outcomeFailed) {
			if err := g.sleep(ctx, g.opts.Cadence); err != nil {
				ctxErr = err
				break
			}
		}
	}

	stats.Finished = g.now()
	if generated {
		m.Recount()
	}
	g.opts.Metrics.GenerateFinished()
	logger.Info(fmt.Sprintf("Generation complete: %d generated, %d skipped, %d errors (%.1fs)",
		stats.Processed, stats.Skipped, stats.Errors, stats.Elapsed().Seconds()))

	if ctxErr != nil {
		return stats, fmt.Errorf("generation interrupted: %w", ctxErr)
	}
	return stats, nil
}

// process handles one candidate.
func (g *Generator) process(ctx context.Context, r *types.ImageRecord, stats *Stats) outcome {
	scale := g.opts.Scale

	if g.opts.DryRun {
		stats.Processed++
		g.opts.Progress.DryRun(r)
		logger.Debug("dry run", "file", r.Filename)
		return outcomeDryRun
	}

	if g.opts.Journal != nil {
		done, err := g.opts.Journal.Done(r.OriginalKey, scale)
		if err != nil {
			logger.Warn("journal lookup failed", "file", r.Filename, "error", err)
		} else if done {
			stats.Skipped++
			g.opts.Metrics.Skipped(r.Collection)
			g.opts.Progress.FileSkipped(r, "already generated (journal)")
			return outcomeSkipped
		}
	}

	started := g.now()
	info, contentType, err := g.generateOne(ctx, r)
	if err != nil {
		msg := fmt.Sprintf("Error processing %s: %v", r.Filename, err)
		logger.Error(msg)
		stats.fail(msg)
		g.opts.Metrics.GenerationFailed(r.Collection)
		g.opts.Progress.FileProcessed(r, 0, err)
		g.publish(ctx, events.Event{
			Type:        events.TypeFailed,
			Collection:  r.Collection,
			OriginalKey: r.OriginalKey,
			Scale:       scale,
			Error:       err.Error(),
		})
		return outcomeFailed
	}

	stats.Processed++
	stats.BytesGenerated += info.Size
	r.AddThumbnail(info)

	g.opts.Metrics.Generated(r.Collection, scale, int(info.Size), g.now().Sub(started))
	g.opts.Progress.FileProcessed(r, info.Size, nil)
	logger.Debug(fmt.Sprintf("Generated: %s (%d bytes) [%d/%d]", r.Filename, info.Size, stats.Processed, stats.TotalToProcess))

	if g.opts.Journal != nil {
		if err := g.opts.Journal.Record(r.OriginalKey, scale, info.Key, info.Size, contentType); err != nil {
			logger.Warn("journal update failed", "file", r.Filename, "error", err)
		}
	}
	g.publish(ctx, events.Event{
		Type:         events.TypeGenerated,
		Collection:   r.Collection,
		OriginalKey:  r.OriginalKey,
		ThumbnailKey: info.Key,
		Scale:        scale,
		Size:         info.Size,
		ContentType:  contentType,
	})
	return outcomeGenerated
}

func (g *Generator) generateOne(ctx context.Context, r *types.ImageRecord) (types.ThumbnailInfo, string, error) {
	scale := g.opts.Scale

	logger.Debug("downloading", "key", r.OriginalKey)
	data, err := g.store.Download(ctx, r.OriginalKey)
	if err != nil {
		return types.ThumbnailInfo{}, "", err
	}

	thumb, contentType, err := g.codec.Generate(data, path.Ext(r.Filename))
	if err != nil {
		return types.ThumbnailInfo{}, "", err
	}

	key := r.ThumbnailKey(scale)
	logger.Debug("uploading", "key", key, "bytes", len(thumb))
	if err := g.store.Upload(ctx, key, thumb, contentType); err != nil {
		return types.ThumbnailInfo{}, "", err
	}

	if g.opts.Verify {
		ok, err := g.VerifyThumbnail(ctx, r, scale)
		if err != nil {
			return types.ThumbnailInfo{}, "", err
		}
		if !ok {
			return types.ThumbnailInfo{}, "", fmt.Errorf("%w: %s", ErrVerifyFailed, key)
		}
	}

	return types.ThumbnailInfo{
		Scale:    scale,
		Key:      key,
		Size:     int64(len(thumb)),
		Modified: g.now().UTC(),
	}, contentType, nil
}

func (g *Generator) publish(ctx context.Context, e events.Event) {
	if err := g.opts.Events.Publish(ctx, e); err != nil {
		logger.Warn("event publish failed", "error", err)
	}
}

// VerifyThumbnail reports whether the thumbnail of r at scale exists and is
// non-empty. A zero scale uses the generator's target scale.
func (g *Generator) VerifyThumbnail(ctx context.Context, r *types.ImageRecord, scale int) (bool, error) {
	if scale <= 0 {
		scale = g.opts.Scale
	}
	meta, err := g.store.Metadata(ctx, r.ThumbnailKey(scale))
	if err != nil {
		return false, err
	}
	return meta != nil && meta.Size > 0, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
