// Package manifest holds the durable snapshot produced by a scan: every image
// record, per-collection statistics and the provenance of the scanned storage.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/pregen/pkg/pregen/logging"
	"github.com/jamesainslie/pregen/pkg/pregen/types"
)

var logger = logging.Get("manifest")

// DefaultStaleAfter is the age beyond which a manifest is considered stale.
const DefaultStaleAfter = 24 * time.Hour

// ErrMalformed indicates the manifest document could not be decoded.
var ErrMalformed = errors.New("malformed manifest")

// ErrStale indicates the manifest is older than the staleness threshold.
var ErrStale = errors.New("manifest is stale")

// Manifest is a snapshot of thumbnail coverage for one storage location.
type Manifest struct {
	// ID uniquely identifies the scan that produced this manifest.
	ID string

	// CreatedAt is when the scan started.
	CreatedAt time.Time

	// Storage records where the records were scanned from.
	Storage types.StorageInfo

	// Collections lists the scanned collections in scan order.
	Collections []string

	// CollectionStats is keyed by collection name. A collection appears
	// here only once at least one record of it has been added.
	CollectionStats map[string]*types.CollectionStats

	// Records holds every scanned original in insertion order.
	Records []*types.ImageRecord

	// ScanDuration is how long the scan took.
	ScanDuration time.Duration
}

// New creates an empty manifest for the given storage location.
func New(storage types.StorageInfo) *Manifest {
	return &Manifest{
		ID:              uuid.NewString(),
		CreatedAt:       time.Now().UTC(),
		Storage:         storage,
		CollectionStats: make(map[string]*types.CollectionStats),
	}
}

// AddCollection appends name to the ordered collection list if absent.
func (m *Manifest) AddCollection(name string) {
	for _, c := range m.Collections {
		if c == name {
			return
		}
	}
	m.Collections = append(m.Collections, name)
}

// AddRecord appends r and folds it into its collection's statistics.
func (m *Manifest) AddRecord(r *types.ImageRecord) {
	m.Records = append(m.Records, r)

	if m.CollectionStats == nil {
		m.CollectionStats = make(map[string]*types.CollectionStats)
	}
	stats, ok := m.CollectionStats[r.Collection]
	if !ok {
		stats = &types.CollectionStats{Name: r.Collection}
		m.CollectionStats[r.Collection] = stats
	}
	stats.Add(r)
}

// Stats returns the statistics for a collection, or an empty value if the
// collection has no records.
func (m *Manifest) Stats(collection string) *types.CollectionStats {
	if s, ok := m.CollectionStats[collection]; ok {
		return s
	}
	return &types.CollectionStats{Name: collection}
}

// StatsNames returns the names of collections with statistics, sorted.
func (m *Manifest) StatsNames() []string {
	names := make([]string, 0, len(m.CollectionStats))
	for name := range m.CollectionStats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Recount rebuilds CollectionStats from Records.
func (m *Manifest) Recount() {
	m.CollectionStats = make(map[string]*types.CollectionStats)
	records := m.Records
	m.Records = make([]*types.ImageRecord, 0, len(records))
	for _, r := range records {
		m.AddRecord(r)
	}
}

// RecordsFor returns the records of one collection in manifest order.
func (m *Manifest) RecordsFor(collection string) []*types.ImageRecord {
	var out []*types.ImageRecord
	for _, r := range m.Records {
		if r.Collection == collection {
			out = append(out, r)
		}
	}
	return out
}

// TotalImages returns the number of records.
func (m *Manifest) TotalImages() int {
	return len(m.Records)
}

// TotalWithThumbnails counts records with at least one thumbnail.
func (m *Manifest) TotalWithThumbnails() int {
	n := 0
	for _, r := range m.Records {
		if r.HasAnyThumbnail() {
			n++
		}
	}
	return n
}

// TotalMissingThumbnails counts records with no thumbnail at all.
func (m *Manifest) TotalMissingThumbnails() int {
	return m.TotalImages() - m.TotalWithThumbnails()
}

// Age returns how long ago the manifest was created, relative to now.
func (m *Manifest) Age(now time.Time) time.Duration {
	return now.Sub(m.CreatedAt)
}

// IsStale reports whether the manifest is older than DefaultStaleAfter.
func (m *Manifest) IsStale(now time.Time) bool {
	return m.IsStaleAfter(now, DefaultStaleAfter)
}

// IsStaleAfter reports whether the manifest age strictly exceeds threshold.
// A non-positive threshold falls back to DefaultStaleAfter.
func (m *Manifest) IsStaleAfter(now time.Time, threshold time.Duration) bool {
	if threshold <= 0 {
		threshold = DefaultStaleAfter
	}
	return m.Age(now) > threshold
}

// Save writes the manifest to path as indented JSON.
// The write is atomic: a temp file is written and renamed over path.
func (m *Manifest) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create manifest directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	logger.Debug("manifest saved", "path", path, "records", len(m.Records), "size", types.FormatSize(int64(len(data))))
	return nil
}

// Load reads a manifest from path. A missing file yields an error matching
// fs.ErrNotExist; undecodable content yields an error matching ErrMalformed.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, path, err)
	}

	logger.Debug("manifest loaded", "path", path, "records", len(m.Records), "collections", len(m.Collections))
	return &m, nil
}
