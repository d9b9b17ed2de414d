package generator

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/pregen/pkg/pregen/events"
	"github.com/jamesainslie/pregen/pkg/pregen/manifest"
	"github.com/jamesainslie/pregen/pkg/pregen/scanner"
	"github.com/jamesainslie/pregen/pkg/pregen/storage"
	"github.com/jamesainslie/pregen/pkg/pregen/storage/storagetest"
	"github.com/jamesainslie/pregen/pkg/pregen/types"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fixture stores the originals of c1 as real PNGs and returns a manifest
// with the given filenames, marking those in withThumb as having @200.
func fixture(t *testing.T, names []string, withThumb ...string) (*storagetest.Memory, *manifest.Manifest) {
	t.Helper()
	store := storagetest.NewMemory("")
	m := manifest.New(store.Info())
	m.AddCollection("c1")

	has := make(map[string]bool)
	for _, n := range withThumb {
		has[n] = true
	}
	data := pngBytes(t, 64, 32)
	for _, n := range names {
		key := "attachments/c1/originals/" + n
		store.Put(key, data, 0, t0)
		r := types.NewImageRecord(key, storage.ThumbnailKeyFor(key), "c1", int64(len(data)), t0)
		if has[n] {
			r.AddThumbnail(types.ThumbnailInfo{Scale: 200, Key: r.ThumbnailKey(200), Size: 10, Modified: t0})
		}
		m.AddRecord(r)
	}
	return store, m
}

func filenames(rs []*types.ImageRecord) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Filename
	}
	return out
}

func TestCandidates(t *testing.T) {
	t.Parallel()

	_, m := fixture(t, []string{"z.png", "a.png", "m.png", "b.png"}, "b.png")
	other := types.NewImageRecord("attachments/c0/originals/q.png", "attachments/c0/thumbnails/q.png", "c0", 1, t0)
	m.AddCollection("c0")
	m.AddRecord(other)

	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{name: "collection then filename order", opts: Options{}, want: []string{"a.png", "m.png", "z.png", "q.png"}},
		{name: "resume cursor", opts: Options{ResumeFrom: "m"}, want: []string{"m.png", "z.png", "q.png"}},
		{name: "collection filter", opts: Options{Collections: []string{"c0"}}, want: []string{"q.png"}},
		{name: "limit", opts: Options{Limit: 2}, want: []string{"a.png", "m.png"}},
		{name: "other scale", opts: Options{Scale: 400}, want: []string{"a.png", "b.png", "m.png", "z.png", "q.png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(storagetest.NewMemory(""), tt.opts).Candidates(m)
			assert.Equal(t, tt.want, filenames(got))
		})
	}
}

func TestCandidates_ResumeCursor(t *testing.T) {
	t.Parallel()

	_, m := fixture(t, []string{"a.jpg", "m.jpg", "z.jpg"})
	got := New(storagetest.NewMemory(""), Options{ResumeFrom: "m"}).Candidates(m)
	assert.Equal(t, []string{"m.jpg", "z.jpg"}, filenames(got))
}

func TestGenerate_DryRun(t *testing.T) {
	t.Parallel()

	store, m := fixture(t, []string{"a.png", "b.png", "c.png"}, "b.png")
	slept := 0
	g := New(store, Options{DryRun: true, Cadence: time.Second})
	g.sleep = func(context.Context, time.Duration) error { slept++; return nil }

	stats, err := g.Generate(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalToProcess)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, 0, store.Downloads())
	assert.Equal(t, 0, store.Uploads())
	assert.Equal(t, 0, slept)
	assert.True(t, m.Records[0].NeedsThumbnail(200))
}

func TestGenerate_DownloadFailureContinues(t *testing.T) {
	t.Parallel()

	store, m := fixture(t, []string{"a.png", "b.png"})
	store.Fail("download:attachments/c1/originals/a.png", errors.New("connection reset"))

	stats, err := New(store, Options{}).Generate(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalToProcess)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Errors)
	require.Len(t, stats.ErrorDetails, 1)
	assert.Equal(t, "Error processing a.png: connection reset", stats.ErrorDetails[0])
	assert.False(t, stats.Success())

	assert.True(t, store.Has("attachments/c1/thumbnails/b_200.png"))
	assert.Equal(t, "image/png", store.ContentType("attachments/c1/thumbnails/b_200.png"))
	assert.Positive(t, stats.BytesGenerated)
}

func TestGenerate_Idempotent(t *testing.T) {
	t.Parallel()

	store, _ := fixture(t, []string{"a.png", "b.png"})
	scan := func() *manifest.Manifest {
		m, err := scanner.New(store, scanner.Options{Collections: []string{"c1"}, Strategy: scanner.StrategyFullIndex}).
			Scan(context.Background())
		require.NoError(t, err)
		return m
	}

	first, err := New(store, Options{}).Generate(context.Background(), scan())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Processed)

	second, err := New(store, Options{}).Generate(context.Background(), scan())
	require.NoError(t, err)
	assert.Equal(t, 0, second.TotalToProcess)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 2, store.Uploads())
}

func TestGenerate_UpdatesManifestInMemory(t *testing.T) {
	t.Parallel()

	store, m := fixture(t, []string{"a.png"})
	_, err := New(store, Options{}).Generate(context.Background(), m)
	require.NoError(t, err)

	assert.True(t, m.Records[0].HasThumbnail(200))
	assert.Equal(t, 1, m.Stats("c1").WithThumbnails)
	assert.Empty(t, New(store, Options{}).Candidates(m))
}

func TestGenerate_StopBeforeStart(t *testing.T) {
	t.Parallel()

	store, m := fixture(t, []string{"a.png", "b.png"})
	g := New(store, Options{})
	g.Stop()

	stats, err := g.Generate(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalToProcess)
	assert.Equal(t, 0, stats.Completed())
	assert.Equal(t, 0, store.Downloads())
}

type stopAfterFirst struct {
	NopObserver
	g *Generator
}

func (s stopAfterFirst) Update(Stats) { s.g.Stop() }

func TestGenerate_StopBetweenItems(t *testing.T) {
	t.Parallel()

	store, m := fixture(t, []string{"a.png", "b.png", "c.png"})
	g := New(store, Options{})
	g.opts.Progress = stopAfterFirst{g: g}

	stats, err := g.Generate(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalToProcess)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 2, stats.Remaining())
}

func TestGenerate_Cancelled(t *testing.T) {
	t.Parallel()

	store, m := fixture(t, []string{"a.png", "b.png"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := New(store, Options{}).Generate(ctx, m)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, stats)
	assert.Equal(t, 0, stats.Processed)
	assert.Equal(t, 0, store.Downloads())
}

func TestGenerate_Cadence(t *testing.T) {
	t.Parallel()

	store, m := fixture(t, []string{"a.png", "b.png"})
	store.Fail("download:attachments/c1/originals/a.png", errors.New("boom"))

	var pauses []time.Duration
	g := New(store, Options{Cadence: 250 * time.Millisecond})
	g.sleep = func(_ context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}

	_, err := g.Generate(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, pauses)
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}

type memJournal map[string]bool

func (j memJournal) Done(key string, scale int) (bool, error) {
	return j[key], nil
}

func (j memJournal) Record(key string, _ int, _ string, _ int64, _ string) error {
	j[key] = true
	return nil
}

func TestGenerate_Journal(t *testing.T) {
	t.Parallel()

	store, m := fixture(t, []string{"a.png", "b.png"})
	j := memJournal{"attachments/c1/originals/a.png": true}

	var out bytes.Buffer
	stats, err := New(store, Options{Journal: j, Progress: NewLogProgress(&out, true)}).
		Generate(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, store.Downloads())
	assert.True(t, j["attachments/c1/originals/b.png"])
	assert.Contains(t, out.String(), "  [SKIP] a.png -> already generated (journal)")
	assert.Contains(t, out.String(), "  [OK] b.png -> thumbnail generated (")
}

func TestGenerate_JournalSkipsDoNotPause(t *testing.T) {
	t.Parallel()

	store, m := fixture(t, []string{"a.png", "b.png", "c.png"})
	j := memJournal{
		"attachments/c1/originals/a.png": true,
		"attachments/c1/originals/b.png": true,
		"attachments/c1/originals/c.png": true,
	}

	slept := 0
	g := New(store, Options{Journal: j, Cadence: time.Hour})
	g.sleep = func(context.Context, time.Duration) error { slept++; return nil }

	stats, err := g.Generate(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Skipped)
	assert.Equal(t, 0, stats.Processed)
	assert.Equal(t, 0, store.Downloads())
	assert.Equal(t, 0, slept)

	delete(j, "attachments/c1/originals/b.png")
	stats, err = g.Generate(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, slept)
}

type recorder struct {
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Close() error { return nil }

func TestGenerate_Events(t *testing.T) {
	t.Parallel()

	store, m := fixture(t, []string{"a.png", "b.png"})
	store.Fail("upload:attachments/c1/thumbnails/a_200.png", errors.New("access denied"))
	rec := &recorder{}

	_, err := New(store, Options{Events: rec}).Generate(context.Background(), m)
	require.NoError(t, err)

	require.Len(t, rec.events, 2)
	assert.Equal(t, events.TypeFailed, rec.events[0].Type)
	assert.Equal(t, "access denied", rec.events[0].Error)
	assert.Equal(t, events.TypeGenerated, rec.events[1].Type)
	assert.Equal(t, "attachments/c1/thumbnails/b_200.png", rec.events[1].ThumbnailKey)
	assert.Equal(t, 200, rec.events[1].Scale)
}

func TestVerifyThumbnail(t *testing.T) {
	t.Parallel()

	store, m := fixture(t, []string{"a.png", "b.png"})
	store.Put("attachments/c1/thumbnails/b_200.png", nil, 0, t0)
	g := New(store, Options{Verify: true})

	ok, err := g.VerifyThumbnail(context.Background(), m.Records[0], 0)
	require.NoError(t, err)
	assert.False(t, ok, "missing thumbnail")

	ok, err = g.VerifyThumbnail(context.Background(), m.Records[1], 200)
	require.NoError(t, err)
	assert.False(t, ok, "empty thumbnail")

	stats, err := g.Generate(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)

	ok, err = g.VerifyThumbnail(context.Background(), m.Records[0], 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

// vanishingStore accepts uploads but never reports them back.
type vanishingStore struct {
	*storagetest.Memory
}

func (vanishingStore) Metadata(context.Context, string) (*storage.Metadata, error) {
	return nil, nil
}

func TestGenerate_VerifyFailure(t *testing.T) {
	t.Parallel()

	mem, m := fixture(t, []string{"a.png"})
	rec := &recorder{}

	stats, err := New(vanishingStore{mem}, Options{Verify: true, Events: rec}).Generate(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 0, stats.Processed)
	require.Len(t, stats.ErrorDetails, 1)
	assert.Contains(t, stats.ErrorDetails[0], ErrVerifyFailed.Error())
	assert.Contains(t, stats.ErrorDetails[0], "attachments/c1/thumbnails/a_200.png")
	assert.Equal(t, 1, mem.Uploads())
	assert.True(t, m.Records[0].NeedsThumbnail(200))

	require.Len(t, rec.events, 1)
	assert.Equal(t, events.TypeFailed, rec.events[0].Type)
}

func TestGenerate_DecodeError(t *testing.T) {
	t.Parallel()

	store, m := fixture(t, []string{"a.png"})
	store.Put("attachments/c1/originals/a.png", []byte("not a png"), 0, t0)

	stats, err := New(store, Options{}).Generate(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)
	assert.True(t, strings.HasPrefix(stats.ErrorDetails[0], "Error processing a.png: failed to decode image"))
	assert.Equal(t, 0, store.Uploads())
}

func TestStats(t *testing.T) {
	t.Parallel()

	s := Stats{
		TotalToProcess: 100,
		Processed:      30,
		Skipped:        5,
		Errors:         5,
		Start:          t0,
		Finished:       t0.Add(60 * time.Second),
	}
	assert.Equal(t, time.Minute, s.Elapsed())
	assert.InDelta(t, 0.5, s.RatePerSecond(), 1e-9)
	assert.InDelta(t, 30, s.RatePerMinute(), 1e-9)
	assert.Equal(t, 40, s.Completed())
	assert.Equal(t, 60, s.Remaining())
	assert.Equal(t, 120*time.Second, s.ETA())

	zero := Stats{TotalToProcess: 10, Start: t0, Finished: t0.Add(time.Second)}
	assert.Zero(t, zero.RatePerSecond())
	assert.Zero(t, zero.ETA())
	assert.Zero(t, (&Stats{}).Elapsed())
}

func TestLogProgress(t *testing.T) {
	t.Parallel()

	r := types.NewImageRecord("attachments/c1/originals/a.jpg", "attachments/c1/thumbnails/a.jpg", "c1", 1, t0)

	var out bytes.Buffer
	p := NewLogProgress(&out, true)
	p.FileProcessed(r, 2048, nil)
	p.FileProcessed(r, 0, errors.New("boom"))
	p.FileSkipped(r, "exists")
	p.DryRun(r)
	p.Update(Stats{Processed: 500})

	assert.Equal(t, strings.Join([]string{
		"  [OK] a.jpg -> thumbnail generated (2.0 KiB)",
		"  [ERROR] a.jpg -> boom",
		"  [SKIP] a.jpg -> exists",
		"  [DRY RUN] a.jpg -> would generate thumbnail",
		"",
	}, "\n"), out.String())

	quiet := NewLogProgress(&out, false)
	quiet.Update(Stats{Processed: 99})
	assert.Equal(t, 0, quiet.lastLogged)
	quiet.Update(Stats{Processed: 100})
	assert.Equal(t, 100, quiet.lastLogged)
	quiet.Update(Stats{Processed: 150})
	assert.Equal(t, 100, quiet.lastLogged)
}
