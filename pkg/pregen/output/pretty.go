package output

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/jamesainslie/pregen/pkg/pregen/report"
)

// PrettyFormatter renders reports with colours, boxes and tables for
// terminal display.
type PrettyFormatter struct{}

// Format implements Formatter.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *report.Report) error {
	w.WriteString(f.header(r))
	w.WriteString("\n")

	if len(r.Warnings) > 0 {
		w.WriteString(f.warnings(r.Warnings))
		w.WriteString("\n")
	}

	switch r.Kind {
	case report.KindPlan:
		w.WriteString(f.plan(r))
	case report.KindMissing:
		w.WriteString(f.missing(r.Missing))
	case report.KindSizes:
		w.WriteString(f.sizes(r.Sizes))
	default:
		w.WriteString(f.collections(r, r.Kind == report.KindDetailed))
		w.WriteString(f.footer(r))
	}
	w.WriteString("\n")
	return nil
}

func labelled(label, value string) string {
	return LabelStyle.Render(label) + " " + ValueStyle.Render(value)
}

func (f *PrettyFormatter) header(r *report.Report) string {
	lines := []string{TitleStyle.Render(strings.ToUpper(string(r.Kind)) + " REPORT")}
	for _, kv := range storageLines(r.Manifest.Storage) {
		lines = append(lines, labelled(kv[0], kv[1]))
	}
	lines = append(lines, strings.Join([]string{
		labelled("Created:", r.Manifest.CreatedAt.Format("2006-01-02 15:04:05 MST")),
		labelled("Age:", fmt.Sprintf("%.1fh", r.Manifest.AgeHours)),
		labelled("Scan:", FormatDuration(r.Manifest.ScanSeconds)),
	}, "  "))
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) warnings(warnings []string) string {
	lines := make([]string, len(warnings))
	for i, w := range warnings {
		lines[i] = WarningStyle.Bold(true).Render(w)
	}
	return WarningBox.Render(strings.Join(lines, "\n"))
}

// newTable returns a table whose first column is left aligned and whose
// remaining columns are right aligned.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(MutedStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case col == 0:
				return TableCellStyle
			default:
				return TableNumberStyle
			}
		})
}

func pct(v float64) string {
	return coverageStyle(v).Render(fmt.Sprintf("%.1f%%", v))
}

func (f *PrettyFormatter) collections(r *report.Report, detailed bool) string {
	if len(r.Collections) == 0 {
		return MutedStyle.Render("  No images in manifest\n")
	}
	headers := []string{"COLLECTION", "TOTAL", "HAS THUMB", "MISSING", "COVERAGE"}
	if detailed {
		headers = append(headers, "ORIGINALS", "THUMBS", "RATIO")
	}
	t := newTable(headers...)
	for _, c := range r.Collections {
		row := []string{c.Name, formatCount(c.Images), formatCount(c.WithThumbnails), formatCount(c.Missing), pct(c.Coverage)}
		if detailed {
			row = append(row, formatBytes(c.OriginalBytes), formatBytes(c.ThumbnailBytes), formatRatio(c))
		}
		t.Row(row...)
	}
	return t.Render() + "\n"
}

func (f *PrettyFormatter) footer(r *report.Report) string {
	t := r.Totals
	parts := []string{
		labelled("Images:", formatCount(t.Images)),
		labelled("With thumbnails:", formatCount(t.WithThumbnails)),
		LabelStyle.Render("Missing:") + " " + ErrorStyle.Render(formatCount(t.Missing)),
		LabelStyle.Render("Coverage:") + " " + pct(t.Coverage),
	}
	if r.Kind == report.KindDetailed {
		parts = append(parts, LabelStyle.Render("Thumbs:")+" "+SizeStyle.Render(formatBytes(t.ThumbnailBytes)))
	}
	return FooterBox.Render(strings.Join(parts, "  "))
}

func (f *PrettyFormatter) plan(r *report.Report) string {
	p := r.Plan
	var sb strings.Builder
	sb.WriteString(labelled("Thumbnail size:", strconv.Itoa(p.Scale)+"px") + "\n")
	sb.WriteString(labelled("Cadence:", formatCadence(p.CadenceSeconds)+" between images") + "\n")
	sb.WriteString(labelled("Collections:", planCollections(p, r.Manifest.Collections)) + "\n\n")

	if p.ToGenerate == 0 {
		sb.WriteString(SuccessStyle.Render(fmt.Sprintf("All images already have @%d thumbnails!", p.Scale)))
		sb.WriteString("\n")
		return sb.String()
	}

	t := newTable("COLLECTION", "TO GENERATE")
	for _, c := range p.ByCollection {
		t.Row(c.Name, formatCount(c.Count))
	}
	t.Row(TitleStyle.Render("TOTAL"), SizeStyle.Render(formatCount(p.ToGenerate)))
	sb.WriteString(t.Render() + "\n")

	if len(p.Estimates) > 0 {
		sb.WriteString("\n" + TitleStyle.Render("Time estimate") + "\n")
		for _, e := range p.Estimates {
			sb.WriteString(fmt.Sprintf("  %s %s\n",
				LabelStyle.Render("at "+formatCadence(e.CadenceSeconds)+":"), ValueStyle.Render(FormatDuration(e.Seconds))))
		}
	}
	return sb.String()
}

func (f *PrettyFormatter) missing(m *report.Missing) string {
	var sb strings.Builder
	for _, file := range m.Files {
		sb.WriteString(fmt.Sprintf("  %s %s\n", MutedStyle.Render("["+file.Collection+"]"), ValueStyle.Render(file.Filename)))
	}
	if m.More > 0 {
		sb.WriteString(MutedStyle.Render(fmt.Sprintf("  ... and %s more", formatCount(m.More))) + "\n")
	}
	sb.WriteString(FooterBox.Render(LabelStyle.Render("Total missing:") + " " + ErrorStyle.Render(formatCount(m.Total))))
	return sb.String()
}

func (f *PrettyFormatter) sizes(s *report.Sizes) string {
	if len(s.Scales) == 0 {
		return MutedStyle.Render("  No thumbnail scales found in manifest") + "\n"
	}
	var sb strings.Builder
	sb.WriteString(labelled("Scales found:", scaleList(s.Scales)))
	if s.Target > 0 {
		sb.WriteString("  " + labelled("Target:", fmt.Sprintf("@%d", s.Target)))
	}
	sb.WriteString("\n\n")

	for _, b := range append(append([]report.SizeBreakdown{}, s.Collections...), s.Totals) {
		sb.WriteString(TitleStyle.Render(b.Name) + "  " +
			labelled("images:", formatCount(b.Images)) + "  " +
			LabelStyle.Render("with any:") + " " + pct(b.Coverage) + "\n")

		t := newTable("SCALE", "COUNT", "COVERAGE", "TOTAL SIZE", "AVG SIZE")
		for _, row := range b.Scales {
			name := fmt.Sprintf("@%d", row.Scale)
			if row.Target {
				name = SizeStyle.Render(name + " <--")
			}
			t.Row(name, formatCount(row.Count), pct(row.Coverage), formatBytes(row.TotalBytes), formatBytes(row.AvgBytes))
		}
		sb.WriteString(t.Render() + "\n")
		if s.Target > 0 {
			if b.MissingTarget > 0 {
				sb.WriteString(WarningStyle.Render(fmt.Sprintf("  Missing @%d: %s", s.Target, formatCount(b.MissingTarget))))
			} else {
				sb.WriteString(SuccessStyle.Render(fmt.Sprintf("  All images have @%d", s.Target)))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
