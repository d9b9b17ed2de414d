package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jamesainslie/pregen/pkg/pregen/report"
)

// PlainFormatter renders reports as fixed-width text without colour,
// suitable for logs and piping.
type PlainFormatter struct{}

type plainWriter struct {
	w *bytes.Buffer
}

func (p plainWriter) line(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format, args...)
	p.w.WriteByte('\n')
}

func (p plainWriter) blank() { p.w.WriteByte('\n') }

func (p plainWriter) rule(ch string, n int) { p.line("%s", strings.Repeat(ch, n)) }

func (p plainWriter) banner(title string, n int) {
	p.rule("=", n)
	p.line("%s", title)
	p.rule("=", n)
	p.blank()
}

// Format implements Formatter.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *report.Report) error {
	p := plainWriter{w: w}
	switch r.Kind {
	case report.KindDetailed:
		f.summary(p, r)
		f.storage(p, r)
	case report.KindPlan:
		f.plan(p, r)
	case report.KindMissing:
		f.missing(p, r)
	case report.KindSizes:
		f.sizes(p, r)
	default:
		f.summary(p, r)
	}
	return nil
}

func (f *PlainFormatter) info(p plainWriter, r *report.Report, withAge bool) {
	p.line("Manifest Information:")
	p.line("  %-12s %s", "Created:", r.Manifest.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	if withAge {
		p.line("  %-12s %.1f hours", "Age:", r.Manifest.AgeHours)
	}
	for _, kv := range storageLines(r.Manifest.Storage) {
		p.line("  %-12s %s", kv[0], kv[1])
	}
}

func (f *PlainFormatter) summary(p plainWriter, r *report.Report) {
	p.banner("THUMBNAIL PRE-GENERATION MANIFEST SUMMARY", 70)
	f.info(p, r, true)
	p.line("  %-12s %s", "Scan Time:", FormatDuration(r.Manifest.ScanSeconds))
	p.blank()

	if r.Manifest.Stale {
		for _, warning := range r.Warnings {
			p.line("WARNING: %s!", warning)
		}
		p.line("   Consider re-running scan to get current data.")
		p.blank()
	}

	p.line("Overall Statistics:")
	p.line("  Total Images:         %s", formatCount(r.Totals.Images))
	p.line("  With Thumbnails:      %s", formatCount(r.Totals.WithThumbnails))
	p.line("  Missing Thumbnails:   %s", formatCount(r.Totals.Missing))
	if r.Totals.Images > 0 {
		p.line("  Coverage:             %.1f%%", r.Totals.Coverage)
	}
	p.blank()

	p.line("Collections:")
	p.rule("-", 70)
	p.line("%-20s %10s %12s %10s %10s", "Collection", "Total", "Has Thumb", "Missing", "Coverage")
	p.rule("-", 70)
	for _, c := range r.Collections {
		p.line("%-20s %10s %12s %10s %9.1f%%", c.Name,
			formatCount(c.Images), formatCount(c.WithThumbnails), formatCount(c.Missing), c.Coverage)
	}
	p.rule("-", 70)
	p.blank()
}

func (f *PlainFormatter) storage(p plainWriter, r *report.Report) {
	p.line("Storage Statistics:")
	p.rule("-", 70)
	p.line("%-20s %15s %15s %10s", "Collection", "Original Size", "Thumb Size", "Ratio")
	p.rule("-", 70)
	for _, c := range r.Collections {
		p.line("%-20s %15s %15s %10s", c.Name, formatBytes(c.OriginalBytes), formatBytes(c.ThumbnailBytes), formatRatio(c))
	}
	p.rule("-", 70)
	t := r.Totals
	p.line("%-20s %15s %15s %10s", "TOTAL", formatBytes(t.OriginalBytes), formatBytes(t.ThumbnailBytes), formatRatio(t))
	p.blank()
}

func (f *PlainFormatter) plan(p plainWriter, r *report.Report) {
	plan := r.Plan
	p.banner("THUMBNAIL GENERATION ACTION PLAN", 70)

	if r.Manifest.Stale {
		for _, warning := range r.Warnings {
			p.line("WARNING: %s!", warning)
		}
		p.line("   The following plan may not reflect current state.")
		p.line("   Consider re-running scan first.")
		p.blank()
	}

	p.line("Generation Parameters:")
	p.line("  Thumbnail Size: %dpx", plan.Scale)
	p.line("  Cadence:        %s between images", formatCadence(plan.CadenceSeconds))
	p.line("  Collections:    %s", planCollections(plan, r.Manifest.Collections))
	p.blank()

	p.line("Work Summary:")
	p.line("  Thumbnails to Generate: %s", formatCount(plan.ToGenerate))
	p.blank()
	if plan.ToGenerate == 0 {
		p.line("All images already have @%d thumbnails!", plan.Scale)
		return
	}

	p.line("By Collection:")
	p.rule("-", 50)
	p.line("%-25s %15s", "Collection", "To Generate")
	p.rule("-", 50)
	for _, c := range plan.ByCollection {
		p.line("%-25s %15s", c.Name, formatCount(c.Count))
	}
	p.rule("-", 50)
	p.line("%-25s %15s", "TOTAL", formatCount(plan.ToGenerate))
	p.blank()

	if len(plan.Estimates) > 0 {
		p.line("Time Estimate:")
		for _, e := range plan.Estimates {
			p.line("  At %s cadence: %s", formatCadence(e.CadenceSeconds), FormatDuration(e.Seconds))
		}
	}
	p.blank()
}

func (f *PlainFormatter) missing(p plainWriter, r *report.Report) {
	m := r.Missing
	p.banner("FILES MISSING THUMBNAILS", 70)
	for _, file := range m.Files {
		p.line("  [%s] %s", file.Collection, file.Filename)
	}
	if m.More > 0 {
		p.line("  ... and %s more", formatCount(m.More))
	}
	p.blank()
	p.line("Total missing: %s", formatCount(m.Total))
	p.blank()
}

func (f *PlainFormatter) sizes(p plainWriter, r *report.Report) {
	s := r.Sizes
	p.banner("THUMBNAIL SIZE ANALYSIS REPORT", 80)
	f.info(p, r, false)
	p.blank()

	if len(s.Scales) == 0 {
		p.line("No thumbnail scales found in manifest.")
		p.blank()
		return
	}

	p.line("Thumbnail scales found: %s", scaleList(s.Scales))
	if s.Target > 0 {
		p.line("Target scale for generation: @%d", s.Target)
	}
	p.blank()

	for _, c := range s.Collections {
		p.rule("-", 80)
		p.line("COLLECTION: %s", c.Name)
		p.rule("-", 80)
		p.blank()
		f.breakdown(p, c, "  Thumbnail Sizes:")
		if s.Target > 0 {
			if c.MissingTarget > 0 {
				p.line("  Missing @%d thumbnails: %s", s.Target, formatCount(c.MissingTarget))
			} else {
				p.line("  All images have @%d thumbnails", s.Target)
			}
			p.blank()
		}
	}

	p.banner("OVERALL TOTALS", 80)
	f.breakdown(p, s.Totals, "  All Thumbnail Sizes:")
	if s.Target > 0 {
		p.line("  To generate @%d thumbnails: %s", s.Target, formatCount(s.Totals.MissingTarget))
	}
	p.blank()
}

func (f *PlainFormatter) breakdown(p plainWriter, b report.SizeBreakdown, title string) {
	p.line("  Total Images:              %12s", formatCount(b.Images))
	p.line("  With Any Thumbnail:        %12s  (%.1f%%)", formatCount(b.WithAny), b.Coverage)
	p.line("  Without Any Thumbnail:     %12s  (%.1f%%)", formatCount(b.WithoutAny), 100-b.Coverage)
	p.blank()
	p.line("%s", title)
	p.line("    %-10s %12s %10s %14s %12s", "Scale", "Count", "Coverage", "Total Size", "Avg Size")
	p.line("    %s %s %s %s %s",
		strings.Repeat("-", 10), strings.Repeat("-", 12), strings.Repeat("-", 10), strings.Repeat("-", 14), strings.Repeat("-", 12))
	for _, row := range b.Scales {
		marker := ""
		if row.Target {
			marker = " <--"
		}
		p.line("    @%-9d %12s %9.1f%% %14s %12s%s", row.Scale, formatCount(row.Count), row.Coverage,
			formatBytes(row.TotalBytes), formatBytes(row.AvgBytes), marker)
	}
	p.blank()
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

var _ Formatter = (*PlainFormatter)(nil)
