package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/jamesainslie/pregen/pkg/pregen/logging"
	"github.com/jamesainslie/pregen/pkg/pregen/manifest"
	"github.com/jamesainslie/pregen/pkg/pregen/storage"
	"github.com/jamesainslie/pregen/pkg/pregen/types"
)

var logger = logging.Get("scanner")

// thumbnailIndex maps a base thumbnail key to the descriptors found for it,
// keyed by scale.
type thumbnailIndex map[string]map[int]types.ThumbnailInfo

// Summary describes what a finished scan did beyond the manifest contents.
type Summary struct {
	// Strategy is the resolved thumbnail discovery strategy.
	Strategy Strategy

	// Duplicates counts thumbnail listings that collided on (key, scale).
	Duplicates int

	// LookupErrors counts failed on-demand lookups.
	LookupErrors int

	// LimitReached is set when the scan stopped early at Options.Limit.
	LimitReached bool
}

// Scanner enumerates originals and their thumbnails.
type Scanner struct {
	store storage.Storage
	opts  Options

	summary Summary
	now     func() time.Time
}

// New creates a Scanner over store. Options are validated on Scan.
func New(store storage.Storage, opts Options) *Scanner {
	return &Scanner{store: store, opts: opts, now: time.Now}
}

// Summary returns details of the last scan.
func (s *Scanner) Summary() Summary {
	return s.summary
}

// Scan lists every requested collection and returns a manifest. Any listing
// failure aborts the scan; a partial manifest is never returned.
func (s *Scanner) Scan(ctx context.Context) (*manifest.Manifest, error) {
	if err := s.opts.Validate(); err != nil {
		return nil, err
	}
	s.summary = Summary{Strategy: s.opts.Strategy}
	start := s.now()

	m := manifest.New(s.store.Info())
	m.CreatedAt = start.UTC()

	collections := s.opts.Collections
	if len(collections) == 0 {
		logger.Info("Discovering collections...")
		found, err := s.store.ListCollections(ctx)
		if err != nil {
			return nil, fmt.Errorf("discovering collections: %w", err)
		}
		collections = found
	}
	for _, c := range collections {
		m.AddCollection(c)
	}
	logger.Info(fmt.Sprintf("Collections to scan: %v", collections))
	if s.opts.Limit > 0 {
		logger.Info(fmt.Sprintf("Limit: %d images", s.opts.Limit))
	}

	scanned := 0
	for _, collection := range collections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := s.scanCollection(ctx, m, collection, scanned)
		if err != nil {
			return nil, err
		}
		scanned += n
		if s.opts.Limit > 0 && scanned >= s.opts.Limit {
			s.summary.LimitReached = true
			logger.Info(fmt.Sprintf("Limit of %d reached, stopping scan", s.opts.Limit))
			break
		}
	}

	m.ScanDuration = s.now().Sub(start)
	s.opts.Metrics.ScanFinished(m.ScanDuration)
	logger.Info(fmt.Sprintf("Scan complete: %d images, %d with thumbnails, %d missing thumbnails (%.1fs)",
		m.TotalImages(), m.TotalWithThumbnails(), m.TotalMissingThumbnails(), m.ScanDuration.Seconds()))

	return m, nil
}

func (s *Scanner) scanCollection(ctx context.Context, m *manifest.Manifest, collection string, already int) (int, error) {
	s.opts.Progress.CollectionStarted(collection)

	var index thumbnailIndex
	if s.opts.Strategy == StrategyOnDemand {
		logger.Debug("using on-demand thumbnail lookups", "collection", collection, "limit", s.opts.Limit)
	} else {
		thumbs, err := s.store.ListThumbnails(ctx, collection)
		if err != nil {
			return 0, fmt.Errorf("loading thumbnails for %s: %w", collection, err)
		}
		index = s.buildIndex(thumbs)
		files := 0
		for _, scales := range index {
			files += len(scales)
		}
		s.opts.Progress.ThumbnailsLoaded(collection, files)
	}

	originals, err := s.store.ListOriginals(ctx, collection, "")
	if err != nil {
		return 0, fmt.Errorf("listing originals for %s: %w", collection, err)
	}

	count := 0
	for _, obj := range originals {
		if s.opts.Limit > 0 && already+count >= s.opts.Limit {
			logger.Info(fmt.Sprintf("  Stopping at limit (%d)", s.opts.Limit))
			break
		}
		if err := ctx.Err(); err != nil {
			return count, err
		}

		r := types.NewImageRecord(obj.Key, storage.ThumbnailKeyFor(obj.Key), collection, obj.Size, obj.Modified)
		if index != nil {
			for _, info := range index[r.BaseThumbnailKey] {
				r.AddThumbnail(info)
			}
		} else {
			s.lookup(ctx, r)
		}

		m.AddRecord(r)
		s.opts.Metrics.ImageScanned(collection, r.Scales())
		s.opts.Progress.FileScanned(r)
		count++
	}

	stats := m.Stats(collection)
	s.opts.Metrics.CollectionCoverage(collection, stats.Coverage())
	s.opts.Progress.CollectionCompleted(*stats)
	return count, nil
}

// buildIndex groups thumbnails by base key. When two listings share a base
// key and scale, the most recently modified one is kept.
func (s *Scanner) buildIndex(thumbs []storage.Object) thumbnailIndex {
	index := make(thumbnailIndex)
	for _, t := range thumbs {
		base, scale := types.NormalizeThumbnailKey(t.Key)
		info := types.ThumbnailInfo{Scale: scale, Key: t.Key, Size: t.Size, Modified: t.Modified}

		scales, ok := index[base]
		if !ok {
			scales = make(map[int]types.ThumbnailInfo)
			index[base] = scales
		}
		if prev, dup := scales[scale]; dup {
			s.summary.Duplicates++
			logger.Debug("duplicate thumbnail", "base", base, "scale", scale, "kept", newer(prev, info).Key)
			info = newer(prev, info)
		}
		scales[scale] = info
	}
	return index
}

func newer(a, b types.ThumbnailInfo) types.ThumbnailInfo {
	if b.Modified.After(a.Modified) {
		return b
	}
	return a
}

// lookup lists the scaled thumbnails of r by key root. Failures are logged
// and leave r without thumbnails.
func (s *Scanner) lookup(ctx context.Context, r *types.ImageRecord) {
	objs, err := s.store.ListPrefix(ctx, types.KeyRoot(r.BaseThumbnailKey)+"_", OnDemandMaxKeys)
	if err != nil {
		s.summary.LookupErrors++
		logger.Warn(fmt.Sprintf("Error listing thumbnails for %s: %v", r.Filename, err))
		return
	}
	root := types.KeyRoot(r.BaseThumbnailKey)
	for _, o := range objs {
		scale, ok := types.ParseScaledKey(o.Key)
		if !ok {
			continue
		}
		// "a_" also matches thumbnails of "a_b.jpg".
		if base, _ := types.NormalizeThumbnailKey(o.Key); types.KeyRoot(base) != root {
			continue
		}
		r.AddThumbnail(types.ThumbnailInfo{Scale: scale, Key: o.Key, Size: o.Size, Modified: o.Modified})
	}
}
