package main

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/pregen/pkg/pregen/generator"
	"github.com/jamesainslie/pregen/pkg/pregen/manifest"
	"github.com/jamesainslie/pregen/pkg/pregen/types"
)

func writeManifest(t *testing.T, created time.Time) string {
	t.Helper()
	m := manifest.New(types.StorageInfo{Kind: types.StorageLocal, LocalRoot: "/srv/media", Prefix: "attachments"})
	m.CreatedAt = created
	m.AddCollection("botany")
	m.AddRecord(types.NewImageRecord(
		"attachments/botany/originals/a.jpg", "attachments/botany/thumbnails/a.jpg", "botany", 1000, created))

	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := m.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return path
}

func TestLoadManifest(t *testing.T) {
	fresh := writeManifest(t, time.Now().Add(-time.Hour))
	stale := writeManifest(t, time.Now().Add(-30*time.Hour))

	t.Run("fresh", func(t *testing.T) {
		m, err := loadManifest(fresh, 24*time.Hour, false)
		if err != nil {
			t.Fatalf("loadManifest() error = %v", err)
		}
		if m.TotalImages() != 1 {
			t.Errorf("TotalImages() = %d, want 1", m.TotalImages())
		}
	})

	t.Run("stale without force", func(t *testing.T) {
		_, err := loadManifest(stale, 24*time.Hour, false)
		if !errors.Is(err, manifest.ErrStale) {
			t.Fatalf("loadManifest() error = %v, want ErrStale", err)
		}
		var ee *exitError
		if !errors.As(err, &ee) || ee.code != exitFailure {
			t.Errorf("exit code not %d", exitFailure)
		}
	})

	t.Run("stale with force", func(t *testing.T) {
		if _, err := loadManifest(stale, 24*time.Hour, true); err != nil {
			t.Fatalf("loadManifest() error = %v", err)
		}
	})

	t.Run("custom threshold", func(t *testing.T) {
		if _, err := loadManifest(stale, 48*time.Hour, false); err != nil {
			t.Fatalf("loadManifest() error = %v", err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		_, err := loadManifest(filepath.Join(t.TempDir(), "nope.json"), 24*time.Hour, false)
		if err == nil || !strings.Contains(err.Error(), "manifest not found") {
			t.Fatalf("loadManifest() error = %v", err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := loadManifest(writeFile(t, "manifest.json", "{not json"), 24*time.Hour, false)
		if !errors.Is(err, manifest.ErrMalformed) {
			t.Fatalf("loadManifest() error = %v, want ErrMalformed", err)
		}
	})
}

func TestPrintGenerateSummary(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &generator.Stats{
		TotalToProcess: 15,
		Processed:      12,
		Skipped:        1,
		Errors:         2,
		Start:          start,
		Finished:       start.Add(time.Minute),
	}
	for i := 0; i < maxErrorDetails+2; i++ {
		s.ErrorDetails = append(s.ErrorDetails, fmt.Sprintf("Error processing f%d.jpg: boom", i))
	}

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	printGenerateSummary(cmd, s, false)

	out := buf.String()
	for _, want := range []string{
		"Generated: 12",
		"Skipped:   1",
		"Errors:    2",
		"Rate:      12.0 images/min",
		"Error processing f0.jpg: boom",
		"... and 2 more",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "f11.jpg") {
		t.Error("summary lists more than the detail limit")
	}

	buf.Reset()
	printGenerateSummary(cmd, &generator.Stats{Processed: 3, Start: start, Finished: start}, true)
	if !strings.Contains(buf.String(), "Would generate: 3") {
		t.Errorf("dry run summary = %q", buf.String())
	}
}
