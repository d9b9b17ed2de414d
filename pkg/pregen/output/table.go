package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/jamesainslie/pregen/pkg/pregen/report"
)

// MarkdownFormatter renders the report tables as GitHub-flavoured markdown.
type MarkdownFormatter struct{}

func mdRow(w *bytes.Buffer, cells ...string) {
	for i, c := range cells {
		cells[i] = strings.ReplaceAll(c, "|", `\|`)
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
}

func mdHeader(w *bytes.Buffer, cells ...string) {
	mdRow(w, cells...)
	seps := make([]string, len(cells))
	for i := range seps {
		if i == 0 {
			seps[i] = "---"
		} else {
			seps[i] = "---:"
		}
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))
}

// Format implements Formatter.
func (f *MarkdownFormatter) Format(w *bytes.Buffer, r *report.Report) error {
	fmt.Fprintf(w, "# Thumbnail %s report\n\n", r.Kind)
	fmt.Fprintf(w, "- Created: %s\n", r.Manifest.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(w, "- Age: %.1f hours\n", r.Manifest.AgeHours)
	for _, kv := range storageLines(r.Manifest.Storage) {
		fmt.Fprintf(w, "- %s %s\n", kv[0], kv[1])
	}
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "\n> **Warning:** %s\n", warning)
	}
	w.WriteByte('\n')

	switch r.Kind {
	case report.KindPlan:
		f.plan(w, r.Plan)
	case report.KindMissing:
		f.missing(w, r.Missing)
	case report.KindSizes:
		f.sizes(w, r.Sizes)
	default:
		f.collections(w, r)
	}
	return nil
}

func (f *MarkdownFormatter) collections(w *bytes.Buffer, r *report.Report) {
	detailed := r.Kind == report.KindDetailed
	headers := []string{"Collection", "Total", "Has Thumb", "Missing", "Coverage"}
	if detailed {
		headers = append(headers, "Original Size", "Thumb Size", "Ratio")
	}
	mdHeader(w, headers...)
	rows := append(append([]report.Coverage{}, r.Collections...), r.Totals)
	for i, c := range rows {
		name := c.Name
		if i == len(rows)-1 {
			name = "**TOTAL**"
		}
		cells := []string{name, formatCount(c.Images), formatCount(c.WithThumbnails), formatCount(c.Missing),
			fmt.Sprintf("%.1f%%", c.Coverage)}
		if detailed {
			cells = append(cells, formatBytes(c.OriginalBytes), formatBytes(c.ThumbnailBytes), formatRatio(c))
		}
		mdRow(w, cells...)
	}
}

func (f *MarkdownFormatter) plan(w *bytes.Buffer, p *report.Plan) {
	fmt.Fprintf(w, "Generating @%d thumbnails at %s cadence.\n\n", p.Scale, formatCadence(p.CadenceSeconds))
	if p.ToGenerate == 0 {
		fmt.Fprintf(w, "All images already have @%d thumbnails!\n", p.Scale)
		return
	}
	mdHeader(w, "Collection", "To Generate")
	for _, c := range p.ByCollection {
		mdRow(w, c.Name, formatCount(c.Count))
	}
	mdRow(w, "**TOTAL**", formatCount(p.ToGenerate))
	if len(p.Estimates) > 0 {
		w.WriteByte('\n')
		mdHeader(w, "Cadence", "Estimate")
		for _, e := range p.Estimates {
			mdRow(w, formatCadence(e.CadenceSeconds), FormatDuration(e.Seconds))
		}
	}
}

func (f *MarkdownFormatter) missing(w *bytes.Buffer, m *report.Missing) {
	mdHeader(w, "Collection", "Filename")
	for _, file := range m.Files {
		mdRow(w, file.Collection, file.Filename)
	}
	w.WriteByte('\n')
	if m.More > 0 {
		fmt.Fprintf(w, "... and %s more\n\n", formatCount(m.More))
	}
	fmt.Fprintf(w, "Total missing: %s\n", formatCount(m.Total))
}

func (f *MarkdownFormatter) sizes(w *bytes.Buffer, s *report.Sizes) {
	if len(s.Scales) == 0 {
		w.WriteString("No thumbnail scales found in manifest.\n")
		return
	}
	mdHeader(w, "Collection", "Scale", "Count", "Coverage", "Total Size", "Avg Size")
	for _, b := range append(append([]report.SizeBreakdown{}, s.Collections...), s.Totals) {
		for _, row := range b.Scales {
			scale := "@" + strconv.Itoa(row.Scale)
			if row.Target {
				scale = "**" + scale + "**"
			}
			mdRow(w, b.Name, scale, formatCount(row.Count), fmt.Sprintf("%.1f%%", row.Coverage),
				formatBytes(row.TotalBytes), formatBytes(row.AvgBytes))
		}
	}
}

func init() {
	Register("markdown", func() Formatter {
		return &MarkdownFormatter{}
	})
}

var _ Formatter = (*MarkdownFormatter)(nil)

// CSVFormatter writes one RFC 4180 row per collection, per missing file
// for missing reports, or per collection and scale for size reports.
type CSVFormatter struct{}

// Format implements Formatter.
func (f *CSVFormatter) Format(w *bytes.Buffer, r *report.Report) error {
	writer := csv.NewWriter(w)
	var rows [][]string

	switch r.Kind {
	case report.KindMissing:
		rows = append(rows, []string{"collection", "filename", "original_key"})
		for _, file := range r.Missing.Files {
			rows = append(rows, []string{file.Collection, file.Filename, file.OriginalKey})
		}
	case report.KindPlan:
		rows = append(rows, []string{"collection", "to_generate"})
		for _, c := range r.Plan.ByCollection {
			rows = append(rows, []string{c.Name, strconv.Itoa(c.Count)})
		}
	case report.KindSizes:
		rows = append(rows, []string{"collection", "scale", "count", "total_bytes", "avg_bytes"})
		for _, b := range r.Sizes.Collections {
			for _, row := range b.Scales {
				rows = append(rows, []string{b.Name, strconv.Itoa(row.Scale), strconv.Itoa(row.Count),
					strconv.FormatInt(row.TotalBytes, 10), strconv.FormatInt(row.AvgBytes, 10)})
			}
		}
	default:
		rows = append(rows, []string{"collection", "images", "with_thumbnails", "missing", "original_bytes", "thumbnail_bytes"})
		for _, c := range r.Collections {
			rows = append(rows, []string{c.Name, strconv.Itoa(c.Images), strconv.Itoa(c.WithThumbnails),
				strconv.Itoa(c.Missing), strconv.FormatInt(c.OriginalBytes, 10), strconv.FormatInt(c.ThumbnailBytes, 10)})
		}
	}

	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return writer.Error()
}

func init() {
	Register("csv", func() Formatter {
		return &CSVFormatter{}
	})
}

var _ Formatter = (*CSVFormatter)(nil)
