package output

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/pregen/pkg/pregen/report"
	"github.com/jamesainslie/pregen/pkg/pregen/types"
)

// FormatDuration renders seconds as seconds, minutes or hours.
func FormatDuration(seconds float64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%.1f seconds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%.1f minutes", seconds/60)
	default:
		return fmt.Sprintf("%.1f hours", seconds/3600)
	}
}

func formatCount(n int) string {
	return humanize.Comma(int64(n))
}

func formatBytes(n int64) string {
	return types.FormatSize(n)
}

func formatRatio(c report.Coverage) string {
	pct, ok := c.Ratio()
	if !ok {
		return ""
	}
	return fmt.Sprintf("%.1f%%", pct)
}

func formatCadence(secs float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.3f", secs), "0"), ".") + "s"
}

func storageLines(s types.StorageInfo) [][2]string {
	if s.Kind == types.StorageLocal {
		return [][2]string{
			{"Storage:", "Local filesystem"},
			{"Root:", s.LocalRoot},
			{"Prefix:", s.Prefix},
		}
	}
	return [][2]string{
		{"Storage:", "S3"},
		{"Endpoint:", s.Endpoint},
		{"Bucket:", s.Bucket + "/" + s.Prefix},
	}
}

func scaleList(scales []int) string {
	parts := make([]string, len(scales))
	for i, s := range scales {
		parts[i] = fmt.Sprintf("@%d", s)
	}
	return strings.Join(parts, ", ")
}

func planCollections(p *report.Plan, total int) string {
	if len(p.Collections) > 0 {
		return strings.Join(p.Collections, ", ")
	}
	return fmt.Sprintf("All (%d)", total)
}
