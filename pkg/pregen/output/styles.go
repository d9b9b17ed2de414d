package output

import "github.com/charmbracelet/lipgloss"

// ANSI 256 palette shared by the pretty formatter and the progress view.
const (
	ColorPrimary = lipgloss.Color("39")
	ColorSuccess = lipgloss.Color("42")
	ColorWarning = lipgloss.Color("214")
	ColorDanger  = lipgloss.Color("196")
	ColorMuted   = lipgloss.Color("245")
)

var (
	// HeaderBox frames the manifest information.
	HeaderBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(0, 1).
			MarginBottom(1)

	// FooterBox frames totals.
	FooterBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorMuted).
			Padding(0, 1).
			MarginTop(1)

	// WarningBox frames staleness warnings.
	WarningBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorWarning).
			Padding(0, 1)
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	LabelStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
	ValueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	SuccessStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	WarningStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	ErrorStyle   = lipgloss.NewStyle().Foreground(ColorDanger)
	MutedStyle   = lipgloss.NewStyle().Foreground(ColorMuted)
	SizeStyle    = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
)

var (
	TableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorMuted).Padding(0, 1)
	TableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	TableNumberStyle = TableCellStyle.Align(lipgloss.Right)
)

// coverageStyle colours a coverage percentage.
func coverageStyle(pct float64) lipgloss.Style {
	switch {
	case pct >= 99.95:
		return SuccessStyle
	case pct >= 50:
		return WarningStyle
	default:
		return ErrorStyle
	}
}
