// Package tui renders a live view of thumbnail generation.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/pregen/pkg/pregen/generator"
	"github.com/jamesainslie/pregen/pkg/pregen/logging"
	"github.com/jamesainslie/pregen/pkg/pregen/types"
)

const (
	recentFiles = 6
	recentLogs  = 4
)

// Options configures the generation view.
type Options struct {
	// Title is shown above the progress bar.
	Title string

	// Scale is the target thumbnail size.
	Scale int

	// Stop is called when the user presses q or ctrl+c.
	Stop func()
}

// statsMsg carries a snapshot after each record.
type statsMsg generator.Stats

// fileMsg reports the outcome of one record.
type fileMsg struct {
	status string
	name   string
	detail string
}

// doneMsg is sent once the run returns.
type doneMsg struct {
	stats *generator.Stats
	err   error
}

// logMsg carries one entry from the log subscription.
type logMsg logging.LogEntry

// Model is the bubbletea model of the generation view.
type Model struct {
	opts     Options
	spinner  spinner.Model
	bar      progress.Model
	stats    generator.Stats
	files    []fileMsg
	logs     []logging.LogEntry
	stopping bool
	done     bool
	err      error
	width    int
}

// NewModel creates the view in its initial state.
func NewModel(opts Options) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = titleStyle

	return Model{
		opts:    opts,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient()),
		width:   80,
	}
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(20, min(msg.Width-10, 80))
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.done {
				return m, tea.Quit
			}
			if !m.stopping {
				m.stopping = true
				if m.opts.Stop != nil {
					m.opts.Stop()
				}
			}
		}
		return m, nil

	case statsMsg:
		m.stats = generator.Stats(msg)
		return m, nil

	case fileMsg:
		m.files = append(m.files, msg)
		if len(m.files) > recentFiles {
			m.files = m.files[len(m.files)-recentFiles:]
		}
		return m, nil

	case doneMsg:
		m.done = true
		m.err = msg.err
		if msg.stats != nil {
			m.stats = *msg.stats
		}
		return m, tea.Quit

	case logMsg:
		m.logs = append(m.logs, logging.LogEntry(msg))
		if len(m.logs) > recentLogs {
			m.logs = m.logs[len(m.logs)-recentLogs:]
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) fraction() float64 {
	if m.stats.TotalToProcess == 0 {
		return 1
	}
	return float64(m.stats.Completed()) / float64(m.stats.TotalToProcess)
}

// View renders the model.
func (m Model) View() string {
	var b strings.Builder

	state := m.spinner.View() + " "
	switch {
	case m.done:
		state = okStyle.Render("done ")
	case m.stopping:
		state = skipStyle.Render("stopping ")
	}
	title := m.opts.Title
	if title == "" {
		title = fmt.Sprintf("Generating @%d thumbnails", m.opts.Scale)
	}
	b.WriteString(state + titleStyle.Render(title) + "\n\n")

	b.WriteString(m.bar.ViewAs(m.fraction()) + "\n")
	s := m.stats
	b.WriteString(fmt.Sprintf("%s %s/%s  %s %s  %s %s  %s %s\n",
		labelStyle.Render("done"), valueStyle.Render(comma(s.Completed())), comma(s.TotalToProcess),
		labelStyle.Render("generated"), okStyle.Render(comma(s.Processed)),
		labelStyle.Render("skipped"), skipStyle.Render(comma(s.Skipped)),
		labelStyle.Render("errors"), errStyle.Render(comma(s.Errors))))
	b.WriteString(fmt.Sprintf("%s %.1f/min  %s %s  %s %s\n\n",
		labelStyle.Render("rate"), s.RatePerMinute(),
		labelStyle.Render("eta"), s.ETA().Round(time.Second),
		labelStyle.Render("written"), types.FormatSize(s.BytesGenerated)))

	for _, f := range m.files {
		b.WriteString(renderFile(f) + "\n")
	}
	if len(m.logs) > 0 {
		b.WriteString("\n")
		for _, e := range m.logs {
			b.WriteString(renderLog(e, m.width-4) + "\n")
		}
	}

	if m.err != nil {
		b.WriteString("\n" + errStyle.Render("Error: "+m.err.Error()) + "\n")
	}
	if !m.done {
		b.WriteString("\n" + helpKeyStyle.Render("q") + mutedStyle.Render(" stop after current image") + "\n")
	}
	return frameStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func comma(n int) string { return humanize.Comma(int64(n)) }

func renderFile(f fileMsg) string {
	var status string
	switch f.status {
	case "OK", "DRY RUN":
		status = okStyle.Render("[" + f.status + "]")
	case "SKIP":
		status = skipStyle.Render("[" + f.status + "]")
	default:
		status = errStyle.Render("[" + f.status + "]")
	}
	return fmt.Sprintf("%s %s %s", status, f.name, mutedStyle.Render(f.detail))
}

func renderLog(e logging.LogEntry, width int) string {
	msg := e.Message
	if width > 20 && len(msg) > width-20 {
		msg = msg[:width-23] + "..."
	}
	return fmt.Sprintf("%s %s %s: %s",
		mutedStyle.Render(e.Time.Format("15:04:05")),
		levelStyle(e.Level).Render("["+levelChar(e.Level)+"]"),
		mutedStyle.Render(e.Component),
		msg)
}

// observer forwards generator callbacks to the program.
type observer struct {
	send func(tea.Msg)
}

var _ generator.Observer = observer{}

func (o observer) FileProcessed(r *types.ImageRecord, size int64, err error) {
	if err != nil {
		o.send(fileMsg{status: "ERROR", name: r.Filename, detail: err.Error()})
		return
	}
	o.send(fileMsg{status: "OK", name: r.Filename, detail: types.FormatSize(size)})
}

func (o observer) FileSkipped(r *types.ImageRecord, reason string) {
	o.send(fileMsg{status: "SKIP", name: r.Filename, detail: reason})
}

func (o observer) DryRun(r *types.ImageRecord) {
	o.send(fileMsg{status: "DRY RUN", name: r.Filename, detail: "would generate thumbnail"})
}

func (o observer) Update(s generator.Stats) {
	o.send(statsMsg(s))
}

// forwardLogs sends entries from ch until ch is closed or done fires.
func forwardLogs(ch <-chan logging.LogEntry, done <-chan struct{}, send func(tea.Msg)) {
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			send(logMsg(e))
		case <-done:
			return
		}
	}
}

// View owns the bubbletea program for one generation run.
type View struct {
	p   *tea.Program
	ctx context.Context
}

// New prepares the view. Create the generator with Observer() as its
// progress observer, then call Run.
func New(ctx context.Context, opts Options) *View {
	m := NewModel(opts)
	if buf := logging.Buffer(); buf != nil {
		m.logs = buf.Last(recentLogs)
	}
	return &View{
		p:   tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)),
		ctx: ctx,
	}
}

// Observer returns a generator observer that feeds the view.
func (v *View) Observer() generator.Observer {
	return observer{send: v.p.Send}
}

// Run shows the view while run executes and returns its result. The view
// closes as soon as run returns.
func (v *View) Run(run func() (*generator.Stats, error)) (*generator.Stats, error) {
	logs := logging.Subscribe()
	stopLogs := make(chan struct{})
	defer func() {
		close(stopLogs)
		logging.Unsubscribe(logs)
	}()
	go forwardLogs(logs, stopLogs, v.p.Send)

	result := make(chan doneMsg, 1)
	go func() {
		stats, err := run()
		msg := doneMsg{stats: stats, err: err}
		result <- msg
		v.p.Send(msg)
	}()

	_, viewErr := v.p.Run()
	done := <-result
	if viewErr != nil && v.ctx.Err() == nil && done.err == nil {
		return done.stats, fmt.Errorf("progress view: %w", viewErr)
	}
	return done.stats, done.err
}
