package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/pregen/pkg/pregen/logging"
	"github.com/jamesainslie/pregen/pkg/pregen/output"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(output.ColorPrimary)
	labelStyle   = lipgloss.NewStyle().Foreground(output.ColorMuted)
	valueStyle   = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(output.ColorSuccess)
	errStyle     = lipgloss.NewStyle().Foreground(output.ColorDanger)
	skipStyle    = lipgloss.NewStyle().Foreground(output.ColorWarning)
	mutedStyle   = lipgloss.NewStyle().Foreground(output.ColorMuted)
	frameStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(output.ColorPrimary).Padding(0, 1)
	helpKeyStyle = lipgloss.NewStyle().Foreground(output.ColorPrimary)
)

func levelStyle(level logging.Level) lipgloss.Style {
	switch level {
	case logging.LevelWarn:
		return skipStyle
	case logging.LevelError:
		return errStyle
	default:
		return mutedStyle
	}
}

func levelChar(level logging.Level) string {
	switch level {
	case logging.LevelDebug:
		return "D"
	case logging.LevelInfo:
		return "I"
	case logging.LevelWarn:
		return "W"
	case logging.LevelError:
		return "E"
	default:
		return "?"
	}
}
