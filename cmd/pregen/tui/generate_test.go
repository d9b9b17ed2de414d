package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jamesainslie/pregen/pkg/pregen/generator"
	"github.com/jamesainslie/pregen/pkg/pregen/logging"
	"github.com/jamesainslie/pregen/pkg/pregen/types"
)

func record(name string) *types.ImageRecord {
	return types.NewImageRecord("attachments/c1/originals/"+name, "attachments/c1/thumbnails/"+name, "c1", 100, time.Now())
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return model, cmd
}

func TestNewModel(t *testing.T) {
	m := NewModel(Options{Scale: 400})
	if m.done || m.stopping {
		t.Error("new model should be running")
	}
	if m.fraction() != 1 {
		t.Errorf("fraction() with no work = %v, want 1", m.fraction())
	}
	if !strings.Contains(m.View(), "Generating @400 thumbnails") {
		t.Errorf("View() missing default title:\n%s", m.View())
	}
}

func TestModelStats(t *testing.T) {
	m := NewModel(Options{Title: "botany"})
	m, _ = update(t, m, statsMsg(generator.Stats{TotalToProcess: 4, Processed: 1, Errors: 1}))

	if got := m.fraction(); got != 0.5 {
		t.Errorf("fraction() = %v, want 0.5", got)
	}
	view := m.View()
	for _, want := range []string{"botany", "2/4", "stop after current image"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestModelKeepsRecentFiles(t *testing.T) {
	m := NewModel(Options{})
	for i := 0; i < recentFiles+3; i++ {
		m, _ = update(t, m, fileMsg{status: "OK", name: string(rune('a'+i)) + ".jpg"})
	}
	if len(m.files) != recentFiles {
		t.Fatalf("len(files) = %d, want %d", len(m.files), recentFiles)
	}
	if m.files[0].name != "d.jpg" {
		t.Errorf("oldest kept file = %s, want d.jpg", m.files[0].name)
	}
}

func TestModelStopKey(t *testing.T) {
	stops := 0
	m := NewModel(Options{Stop: func() { stops++ }})

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !m.stopping || stops != 1 {
		t.Fatalf("stopping = %v, stops = %d; want true, 1", m.stopping, stops)
	}
	if cmd != nil {
		t.Error("stop key should not quit before the run finishes")
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if stops != 1 {
		t.Errorf("Stop called %d times, want 1", stops)
	}
	if !strings.Contains(m.View(), "stopping") {
		t.Error("View() should show the stopping state")
	}
}

func TestModelDone(t *testing.T) {
	m := NewModel(Options{})
	stats := &generator.Stats{TotalToProcess: 2, Processed: 2}

	m, cmd := update(t, m, doneMsg{stats: stats, err: errors.New("boom")})
	if !m.done {
		t.Fatal("done = false after doneMsg")
	}
	if cmd == nil {
		t.Fatal("doneMsg should quit the program")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("doneMsg command is not tea.Quit")
	}
	if m.stats.Processed != 2 {
		t.Errorf("stats.Processed = %d, want 2", m.stats.Processed)
	}
	if !strings.Contains(m.View(), "Error: boom") {
		t.Errorf("View() missing error:\n%s", m.View())
	}
}

func TestObserver(t *testing.T) {
	var got []tea.Msg
	obs := observer{send: func(msg tea.Msg) { got = append(got, msg) }}

	obs.FileProcessed(record("a.jpg"), 2048, nil)
	obs.FileProcessed(record("b.jpg"), 0, errors.New("access denied"))
	obs.FileSkipped(record("c.jpg"), "already generated (journal)")
	obs.DryRun(record("d.jpg"))
	obs.Update(generator.Stats{Processed: 1})

	want := []fileMsg{
		{status: "OK", name: "a.jpg", detail: "2.0 KiB"},
		{status: "ERROR", name: "b.jpg", detail: "access denied"},
		{status: "SKIP", name: "c.jpg", detail: "already generated (journal)"},
		{status: "DRY RUN", name: "d.jpg", detail: "would generate thumbnail"},
	}
	if len(got) != len(want)+1 {
		t.Fatalf("got %d messages, want %d", len(got), len(want)+1)
	}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("message %d = %#v, want %#v", i, got[i], w)
		}
	}
	if s, ok := got[4].(statsMsg); !ok || s.Processed != 1 {
		t.Errorf("last message = %#v, want statsMsg", got[4])
	}
}

func TestRenderFile(t *testing.T) {
	line := renderFile(fileMsg{status: "SKIP", name: "x.png", detail: "reason"})
	for _, want := range []string{"[SKIP]", "x.png", "reason"} {
		if !strings.Contains(line, want) {
			t.Errorf("renderFile() = %q, missing %q", line, want)
		}
	}
}

func TestModelKeepsRecentLogs(t *testing.T) {
	m := NewModel(Options{})
	for i := 0; i < recentLogs+2; i++ {
		m, _ = update(t, m, logMsg{Time: time.Now(), Level: logging.LevelWarn, Component: "generator", Message: "entry " + string(rune('a'+i))})
	}
	if len(m.logs) != recentLogs {
		t.Fatalf("len(logs) = %d, want %d", len(m.logs), recentLogs)
	}
	if got := m.logs[0].Message; got != "entry c" {
		t.Errorf("oldest kept log = %q, want %q", got, "entry c")
	}
	if !strings.Contains(m.View(), "entry f") {
		t.Errorf("View() missing newest log:\n%s", m.View())
	}
}

func TestForwardLogs(t *testing.T) {
	ch := make(chan logging.LogEntry, 2)
	ch <- logging.LogEntry{Message: "one"}
	ch <- logging.LogEntry{Message: "two"}
	close(ch)

	var got []string
	forwardLogs(ch, make(chan struct{}), func(msg tea.Msg) {
		got = append(got, msg.(logMsg).Message)
	})
	if strings.Join(got, ",") != "one,two" {
		t.Errorf("forwarded %v, want [one two]", got)
	}

	done := make(chan struct{})
	close(done)
	forwardLogs(make(chan logging.LogEntry), done, func(tea.Msg) {
		t.Error("nothing should be forwarded after done")
	})
}
