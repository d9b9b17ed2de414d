// Package report derives read-only views of a manifest: coverage summaries,
// size breakdowns, generation plans and missing-file listings. Nothing here
// mutates the manifest or touches storage.
package report

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jamesainslie/pregen/pkg/pregen/logging"
	"github.com/jamesainslie/pregen/pkg/pregen/manifest"
	"github.com/jamesainslie/pregen/pkg/pregen/types"
)

var logger = logging.Get("report")

// Kind selects which report is built.
type Kind string

const (
	KindSummary  Kind = "summary"
	KindDetailed Kind = "detailed"
	KindPlan     Kind = "plan"
	KindMissing  Kind = "missing"
	KindSizes    Kind = "sizes"
)

// Kinds lists every report kind in display order.
var Kinds = []Kind{KindSummary, KindDetailed, KindPlan, KindMissing, KindSizes}

// DefaultMissingLimit bounds the missing-files listing.
const DefaultMissingLimit = 100

// analysisLogInterval is how many records pass between analysis log lines
// on large manifests.
const analysisLogInterval = 1000

// ErrUnknownKind is returned for report names outside Kinds.
var ErrUnknownKind = errors.New("unknown report type")

// ParseKind converts a flag value into a Kind. Empty means summary.
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return KindSummary, nil
	}
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Options configures Build.
type Options struct {
	Kind Kind

	// Collections restricts plan, missing and sizes reports.
	Collections []string

	// Scale is the generation target used by plan and sizes.
	Scale int

	// Cadence is the per-item pause assumed by plan estimates.
	Cadence time.Duration

	// MissingLimit bounds the missing listing. Zero uses DefaultMissingLimit.
	MissingLimit int

	// StaleAfter overrides manifest.DefaultStaleAfter.
	StaleAfter time.Duration

	// Now is the reference time for age and staleness. Zero means time.Now.
	Now time.Time
}

// Info describes the manifest a report was built from.
type Info struct {
	ID          string            `json:"id" yaml:"id"`
	CreatedAt   time.Time         `json:"created_at" yaml:"created_at"`
	AgeHours    float64           `json:"age_hours" yaml:"age_hours"`
	Stale       bool              `json:"stale" yaml:"stale"`
	Storage     types.StorageInfo `json:"storage" yaml:"storage"`
	ScanSeconds float64           `json:"scan_seconds" yaml:"scan_seconds"`
	Collections int               `json:"collections" yaml:"collections"`
}

// Coverage is the shared shape of per-collection and overall rows.
type Coverage struct {
	Name           string  `json:"name" yaml:"name"`
	Images         int     `json:"images" yaml:"images"`
	WithThumbnails int     `json:"with_thumbnails" yaml:"with_thumbnails"`
	Missing        int     `json:"missing" yaml:"missing"`
	Coverage       float64 `json:"coverage" yaml:"coverage"`
	OriginalBytes  int64   `json:"original_bytes" yaml:"original_bytes"`
	ThumbnailBytes int64   `json:"thumbnail_bytes" yaml:"thumbnail_bytes"`
}

// Ratio returns thumbnail bytes as a percentage of original bytes. ok is
// false when either side is zero.
func (c Coverage) Ratio() (pct float64, ok bool) {
	if c.OriginalBytes <= 0 || c.ThumbnailBytes <= 0 {
		return 0, false
	}
	return float64(c.ThumbnailBytes) / float64(c.OriginalBytes) * 100, true
}

// Estimate is the projected run time at one cadence.
type Estimate struct {
	CadenceSeconds float64 `json:"cadence_seconds" yaml:"cadence_seconds"`
	Seconds        float64 `json:"seconds" yaml:"seconds"`
}

// CollectionCount pairs a collection with a count.
type CollectionCount struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

// Plan projects the work a generate run would do.
type Plan struct {
	Scale          int               `json:"scale" yaml:"scale"`
	CadenceSeconds float64           `json:"cadence_seconds" yaml:"cadence_seconds"`
	Collections    []string          `json:"collections,omitempty" yaml:"collections,omitempty"`
	ToGenerate     int               `json:"to_generate" yaml:"to_generate"`
	ByCollection   []CollectionCount `json:"by_collection" yaml:"by_collection"`
	Estimates      []Estimate        `json:"estimates,omitempty" yaml:"estimates,omitempty"`
}

// MissingFile is one original without any thumbnail.
type MissingFile struct {
	Collection  string `json:"collection" yaml:"collection"`
	Filename    string `json:"filename" yaml:"filename"`
	OriginalKey string `json:"original_key" yaml:"original_key"`
}

// Missing lists originals without thumbnails.
type Missing struct {
	Files []MissingFile `json:"files" yaml:"files"`
	Total int           `json:"total" yaml:"total"`
	More  int           `json:"more" yaml:"more"`
	Limit int           `json:"limit" yaml:"limit"`
}

// ScaleRow describes one thumbnail scale within a collection or overall.
type ScaleRow struct {
	Scale      int     `json:"scale" yaml:"scale"`
	Count      int     `json:"count" yaml:"count"`
	Coverage   float64 `json:"coverage" yaml:"coverage"`
	TotalBytes int64   `json:"total_bytes" yaml:"total_bytes"`
	AvgBytes   int64   `json:"avg_bytes" yaml:"avg_bytes"`
	Target     bool    `json:"target,omitempty" yaml:"target,omitempty"`
}

// SizeBreakdown is the per-scale analysis of one collection or of all of them.
type SizeBreakdown struct {
	Name          string     `json:"name" yaml:"name"`
	Images        int        `json:"images" yaml:"images"`
	WithAny       int        `json:"with_any" yaml:"with_any"`
	WithoutAny    int        `json:"without_any" yaml:"without_any"`
	Coverage      float64    `json:"coverage" yaml:"coverage"`
	Scales        []ScaleRow `json:"scales" yaml:"scales"`
	MissingTarget int        `json:"missing_target" yaml:"missing_target"`
}

// Sizes is the per-scale size and coverage analysis.
type Sizes struct {
	Scales      []int           `json:"scales" yaml:"scales"`
	Target      int             `json:"target,omitempty" yaml:"target,omitempty"`
	Collections []SizeBreakdown `json:"collections" yaml:"collections"`
	Totals      SizeBreakdown   `json:"totals" yaml:"totals"`
}

// Report is the formatter-neutral result of Build.
type Report struct {
	Kind        Kind       `json:"kind" yaml:"kind"`
	Manifest    Info       `json:"manifest" yaml:"manifest"`
	Totals      Coverage   `json:"totals" yaml:"totals"`
	Collections []Coverage `json:"collections" yaml:"collections"`
	Plan        *Plan      `json:"plan,omitempty" yaml:"plan,omitempty"`
	Missing     *Missing   `json:"missing,omitempty" yaml:"missing,omitempty"`
	Sizes       *Sizes     `json:"sizes,omitempty" yaml:"sizes,omitempty"`
	Warnings    []string   `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Build analyses m according to opts.
func Build(m *manifest.Manifest, opts Options) (*Report, error) {
	if opts.Kind == "" {
		opts.Kind = KindSummary
	}
	if _, err := ParseKind(string(opts.Kind)); err != nil {
		return nil, err
	}
	if opts.Scale <= 0 {
		opts.Scale = types.DefaultScale
	}
	if opts.MissingLimit <= 0 {
		opts.MissingLimit = DefaultMissingLimit
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = manifest.DefaultStaleAfter
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	r := &Report{
		Kind: opts.Kind,
		Manifest: Info{
			ID:          m.ID,
			CreatedAt:   m.CreatedAt,
			AgeHours:    m.Age(now).Hours(),
			Stale:       m.IsStaleAfter(now, opts.StaleAfter),
			Storage:     m.Storage,
			ScanSeconds: m.ScanDuration.Seconds(),
			Collections: len(m.Collections),
		},
	}
	r.Totals, r.Collections = coverage(m)

	if r.Manifest.Stale {
		r.Warnings = append(r.Warnings,
			fmt.Sprintf("Manifest is older than %s", formatThreshold(opts.StaleAfter)))
	}

	switch opts.Kind {
	case KindPlan:
		r.Plan = plan(m, opts)
	case KindMissing:
		r.Missing = missing(m, opts)
	case KindSizes:
		r.Sizes = sizes(m, opts)
	}
	return r, nil
}

func formatThreshold(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
	return d.String()
}

func coverage(m *manifest.Manifest) (Coverage, []Coverage) {
	total := Coverage{Name: "TOTAL"}
	var rows []Coverage
	for _, name := range m.StatsNames() {
		s := m.CollectionStats[name]
		row := Coverage{
			Name:           name,
			Images:         s.TotalImages,
			WithThumbnails: s.WithThumbnails,
			Missing:        s.MissingThumbnails,
			Coverage:       s.Coverage(),
			OriginalBytes:  s.TotalOriginalBytes,
			ThumbnailBytes: s.TotalThumbnailBytes,
		}
		rows = append(rows, row)
		total.Images += row.Images
		total.WithThumbnails += row.WithThumbnails
		total.Missing += row.Missing
		total.OriginalBytes += row.OriginalBytes
		total.ThumbnailBytes += row.ThumbnailBytes
	}
	total.Coverage = percent(total.WithThumbnails, total.Images, 100)
	return total, rows
}

func percent(n, of int, empty float64) float64 {
	if of == 0 {
		return empty
	}
	return float64(n) / float64(of) * 100
}

func filter(collections []string) func(string) bool {
	if len(collections) == 0 {
		return func(string) bool { return true }
	}
	set := make(map[string]bool, len(collections))
	for _, c := range collections {
		set[c] = true
	}
	return func(c string) bool { return set[c] }
}

func logAnalysis(i, total int, verb string) {
	if total >= analysisLogInterval && (i+1)%analysisLogInterval == 0 {
		logger.Info(fmt.Sprintf("  %s %d / %d records...", verb, i+1, total))
	}
}

func plan(m *manifest.Manifest, opts Options) *Plan {
	p := &Plan{
		Scale:          opts.Scale,
		CadenceSeconds: opts.Cadence.Seconds(),
		Collections:    opts.Collections,
	}
	include := filter(opts.Collections)

	counts := make(map[string]int)
	for i, rec := range m.Records {
		logAnalysis(i, len(m.Records), "Scanned")
		if !include(rec.Collection) || rec.HasThumbnail(opts.Scale) {
			continue
		}
		p.ToGenerate++
		counts[rec.Collection]++
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	p.ByCollection = make([]CollectionCount, 0, len(names))
	for _, name := range names {
		p.ByCollection = append(p.ByCollection, CollectionCount{Name: name, Count: counts[name]})
	}

	if p.ToGenerate > 0 && p.CadenceSeconds > 0 {
		for _, c := range []float64{p.CadenceSeconds, 0.5, 0.1} {
			if c != p.CadenceSeconds || len(p.Estimates) == 0 {
				p.Estimates = append(p.Estimates, Estimate{CadenceSeconds: c, Seconds: float64(p.ToGenerate) * c})
			}
		}
	}
	return p
}

func missing(m *manifest.Manifest, opts Options) *Missing {
	out := &Missing{Limit: opts.MissingLimit, Files: []MissingFile{}}
	include := filter(opts.Collections)

	for i, rec := range m.Records {
		if opts.MissingLimit > DefaultMissingLimit {
			logAnalysis(i, len(m.Records), "Scanned")
		}
		if !include(rec.Collection) || rec.HasAnyThumbnail() {
			continue
		}
		out.Total++
		if len(out.Files) < opts.MissingLimit {
			out.Files = append(out.Files, MissingFile{
				Collection:  rec.Collection,
				Filename:    rec.Filename,
				OriginalKey: rec.OriginalKey,
			})
		}
	}
	out.More = out.Total - len(out.Files)
	return out
}

type scaleAcc struct {
	count int
	bytes int64
}

type sizeAcc struct {
	images, withAny int
	scales          map[int]*scaleAcc
}

func (a *sizeAcc) scale(s int) *scaleAcc {
	acc, ok := a.scales[s]
	if !ok {
		acc = &scaleAcc{}
		a.scales[s] = acc
	}
	return acc
}

func sizes(m *manifest.Manifest, opts Options) *Sizes {
	include := filter(opts.Collections)
	byCollection := make(map[string]*sizeAcc)
	totals := &sizeAcc{scales: make(map[int]*scaleAcc)}
	seen := make(map[int]bool)

	if len(m.Records) >= analysisLogInterval {
		logger.Info(fmt.Sprintf("Analyzing %d records...", len(m.Records)))
	}
	for i, rec := range m.Records {
		logAnalysis(i, len(m.Records), "Analyzed")
		if !include(rec.Collection) {
			continue
		}
		acc, ok := byCollection[rec.Collection]
		if !ok {
			acc = &sizeAcc{scales: make(map[int]*scaleAcc)}
			byCollection[rec.Collection] = acc
		}
		acc.images++
		totals.images++
		if !rec.HasAnyThumbnail() {
			continue
		}
		acc.withAny++
		totals.withAny++
		for scale, info := range rec.Thumbnails {
			seen[scale] = true
			acc.scale(scale).count++
			acc.scale(scale).bytes += info.Size
			totals.scale(scale).count++
			totals.scale(scale).bytes += info.Size
		}
	}

	out := &Sizes{Target: opts.Scale}
	for s := range seen {
		out.Scales = append(out.Scales, s)
	}
	sort.Ints(out.Scales)

	names := make([]string, 0, len(byCollection))
	for name := range byCollection {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out.Collections = append(out.Collections, breakdown(name, byCollection[name], out.Scales, opts.Scale))
	}
	out.Totals = breakdown("TOTAL", totals, out.Scales, opts.Scale)
	return out
}

func breakdown(name string, acc *sizeAcc, scales []int, target int) SizeBreakdown {
	b := SizeBreakdown{
		Name:       name,
		Images:     acc.images,
		WithAny:    acc.withAny,
		WithoutAny: acc.images - acc.withAny,
		Coverage:   percent(acc.withAny, acc.images, 0),
	}
	for _, s := range scales {
		row := ScaleRow{Scale: s, Target: s == target}
		if sa, ok := acc.scales[s]; ok {
			row.Count = sa.count
			row.TotalBytes = sa.bytes
			if sa.count > 0 {
				row.AvgBytes = sa.bytes / int64(sa.count)
			}
		}
		row.Coverage = percent(row.Count, acc.images, 0)
		b.Scales = append(b.Scales, row)
	}
	targetCount := 0
	if sa, ok := acc.scales[target]; ok {
		targetCount = sa.count
	}
	b.MissingTarget = acc.images - targetCount
	return b
}
