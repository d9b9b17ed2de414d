package scanner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/pregen/pkg/pregen/metrics"
	"github.com/jamesainslie/pregen/pkg/pregen/storage/storagetest"
	"github.com/jamesainslie/pregen/pkg/pregen/types"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// newStore builds two collections:
//
//	botany:  a.jpg (@200), b.png (none), c.gif (@100, @200)
//	zoology: x.tif (none)
func newStore() *storagetest.Memory {
	m := storagetest.NewMemory("")
	m.Put("attachments/botany/originals/a.jpg", nil, 1000, t0)
	m.Put("attachments/botany/originals/b.png", nil, 2000, t0)
	m.Put("attachments/botany/originals/c.gif", nil, 3000, t0)
	m.Put("attachments/botany/originals/readme.txt", nil, 10, t0)
	m.Put("attachments/botany/thumbnails/a_200.jpg", nil, 100, t0)
	m.Put("attachments/botany/thumbnails/c_100.gif", nil, 30, t0)
	m.Put("attachments/botany/thumbnails/c_200.gif", nil, 60, t0)
	m.Put("attachments/zoology/originals/x.tif", nil, 4000, t0)
	return m
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{in: "", want: StrategyFullIndex},
		{in: "auto", want: StrategyAuto},
		{in: "full-index", want: StrategyFullIndex},
		{in: "on-demand", want: StrategyOnDemand},
		{in: "fast", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidStrategy)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestStrategyResolve(t *testing.T) {
	t.Parallel()

	assert.Equal(t, StrategyFullIndex, StrategyAuto.Resolve(0))
	assert.Equal(t, StrategyOnDemand, StrategyAuto.Resolve(1))
	assert.Equal(t, StrategyOnDemand, StrategyAuto.Resolve(AutoOnDemandLimit))
	assert.Equal(t, StrategyFullIndex, StrategyAuto.Resolve(AutoOnDemandLimit+1))
	assert.Equal(t, StrategyFullIndex, StrategyFullIndex.Resolve(5))
	assert.Equal(t, StrategyOnDemand, StrategyOnDemand.Resolve(0))
}

func TestOptionsValidate(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	require.NoError(t, opts.Validate())
	assert.Equal(t, StrategyFullIndex, opts.Strategy)
	assert.NotNil(t, opts.Progress)

	bad := Options{Limit: -1}
	assert.Error(t, bad.Validate())

	unknown := Options{Strategy: "sideways"}
	assert.ErrorIs(t, unknown.Validate(), ErrInvalidStrategy)

	limited := Options{Limit: 50}
	require.NoError(t, limited.Validate())
	assert.Equal(t, StrategyFullIndex, limited.Strategy, "a small limit alone must not switch to on-demand")

	auto := Options{Limit: 50, Strategy: StrategyAuto}
	require.NoError(t, auto.Validate())
	assert.Equal(t, StrategyOnDemand, auto.Strategy)
}

func TestScan_TwoOriginalsOneThumbnail(t *testing.T) {
	t.Parallel()

	store := storagetest.NewMemory("")
	store.Put("attachments/c1/originals/a.jpg", nil, 10, t0)
	store.Put("attachments/c1/originals/b.jpg", nil, 20, t0)
	store.Put("attachments/c1/thumbnails/a_200.jpg", nil, 5, t0)

	for _, strategy := range []Strategy{StrategyFullIndex, StrategyOnDemand} {
		t.Run(string(strategy), func(t *testing.T) {
			m, err := New(store, Options{Collections: []string{"c1"}, Strategy: strategy}).Scan(context.Background())
			require.NoError(t, err)

			assert.Equal(t, 2, m.TotalImages())
			assert.Equal(t, 1, m.TotalWithThumbnails())
			assert.Equal(t, 1, m.TotalMissingThumbnails())

			stats := m.Stats("c1")
			assert.Equal(t, 2, stats.TotalImages)
			assert.Equal(t, 1, stats.WithThumbnails)
			assert.Equal(t, 1, stats.MissingThumbnails)
			assert.Equal(t, int64(30), stats.TotalOriginalBytes)
			assert.Equal(t, int64(5), stats.TotalThumbnailBytes)
		})
	}
}

func TestScan_FullIndex(t *testing.T) {
	t.Parallel()

	store := newStore()
	mets := metrics.New()
	s := New(store, Options{Strategy: StrategyFullIndex, Metrics: mets})

	m, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"botany", "zoology"}, m.Collections)
	assert.Equal(t, types.StorageS3, m.Storage.Kind)
	require.Len(t, m.Records, 4)

	a := m.Records[0]
	assert.Equal(t, "a.jpg", a.Filename)
	assert.Equal(t, "attachments/botany/thumbnails/a.jpg", a.BaseThumbnailKey)
	assert.Equal(t, []int{200}, a.Scales())

	assert.False(t, m.Records[1].HasAnyThumbnail())
	assert.Equal(t, []int{100, 200}, m.Records[2].Scales())
	assert.Equal(t, "zoology", m.Records[3].Collection)

	assert.Equal(t, 0, store.Calls("list_prefix"))
	assert.Equal(t, 2, store.Calls("list_thumbnails"))
	assert.Equal(t, StrategyFullIndex, s.Summary().Strategy)
	assert.False(t, s.Summary().LimitReached)
}

func TestScan_OnDemand(t *testing.T) {
	t.Parallel()

	store := newStore()
	// Belongs to "a_b.jpg", not "a.jpg".
	store.Put("attachments/botany/thumbnails/a_b_400.jpg", nil, 7, t0)

	s := New(store, Options{Collections: []string{"botany"}, Strategy: StrategyOnDemand})
	m, err := s.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, m.Records, 3)
	assert.Equal(t, []int{200}, m.Records[0].Scales())
	assert.Empty(t, m.Records[1].Scales())
	assert.Equal(t, []int{100, 200}, m.Records[2].Scales())

	assert.Equal(t, 3, store.Calls("list_prefix"))
	assert.Equal(t, 0, store.Calls("list_thumbnails"))
}

func TestScan_OnDemandLookupFailureContinues(t *testing.T) {
	t.Parallel()

	store := newStore()
	store.Fail("list_prefix", errors.New("throttled"))

	s := New(store, Options{Collections: []string{"botany"}, Strategy: StrategyOnDemand})
	m, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, m.TotalImages())
	assert.Equal(t, 3, m.TotalMissingThumbnails())
	assert.Equal(t, 3, s.Summary().LookupErrors)
}

func TestScan_Limit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		limit       int
		wantRecords int
		wantColls   []string
	}{
		{name: "stops mid collection", limit: 2, wantRecords: 2, wantColls: []string{"botany"}},
		{name: "exact collection boundary", limit: 3, wantRecords: 3, wantColls: []string{"botany"}},
		{name: "spans collections", limit: 4, wantRecords: 4, wantColls: []string{"botany", "zoology"}},
		{name: "larger than store", limit: 50, wantRecords: 4, wantColls: []string{"botany", "zoology"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := New(newStore(), Options{Limit: tt.limit}).Scan(context.Background())
			require.NoError(t, err)
			assert.Len(t, m.Records, tt.wantRecords)
			assert.Equal(t, tt.wantColls, m.StatsNames())
		})
	}
}

func TestScan_DuplicateKeepsNewest(t *testing.T) {
	t.Parallel()

	store := storagetest.NewMemory("")
	store.Put("attachments/c1/originals/a.jpg", nil, 10, t0)
	// Both normalize to (thumbnails/a.jpg, 200).
	store.Put("attachments/c1/thumbnails/a_200.jpg", nil, 5, t0)
	store.Put("attachments/c1/thumbnails/a_0200.jpg", nil, 9, t0.Add(time.Hour))

	s := New(store, Options{Collections: []string{"c1"}, Strategy: StrategyFullIndex})
	m, err := s.Scan(context.Background())
	require.NoError(t, err)

	info, ok := m.Records[0].Thumbnail(200)
	require.True(t, ok)
	assert.Equal(t, "attachments/c1/thumbnails/a_0200.jpg", info.Key)
	assert.Equal(t, int64(9), info.Size)
	assert.Equal(t, 1, s.Summary().Duplicates)
}

func TestScan_LegacyUnscaledThumbnail(t *testing.T) {
	t.Parallel()

	store := storagetest.NewMemory("")
	store.Put("attachments/c1/originals/a.jpg", nil, 10, t0)
	store.Put("attachments/c1/thumbnails/a.jpg", nil, 4, t0)

	m, err := New(store, Options{Collections: []string{"c1"}, Strategy: StrategyFullIndex}).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{0}, m.Records[0].Scales())
	assert.True(t, m.Records[0].NeedsThumbnail(200))
}

func TestScan_FailClosed(t *testing.T) {
	t.Parallel()

	for _, op := range []string{"list_collections", "list_thumbnails", "list_originals"} {
		t.Run(op, func(t *testing.T) {
			t.Parallel()
			store := newStore()
			boom := errors.New("connection reset")
			store.Fail(op, boom)

			m, err := New(store, Options{Strategy: StrategyFullIndex}).Scan(context.Background())
			assert.Nil(t, m)
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestScan_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m, err := New(newStore(), Options{Collections: []string{"botany"}}).Scan(ctx)
	assert.Nil(t, m)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScan_EmptyCollection(t *testing.T) {
	t.Parallel()

	m, err := New(newStore(), Options{Collections: []string{"missing"}}).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"missing"}, m.Collections)
	assert.Equal(t, 0, m.TotalImages())
	assert.InDelta(t, 100.0, m.Stats("missing").Coverage(), 0)
}

func TestLogProgress_ShowFiles(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewLogProgress(&buf, true)

	_, err := New(newStore(), Options{Collections: []string{"botany"}, Strategy: StrategyFullIndex, Progress: p}).
		Scan(context.Background())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "=== Scanning collection: botany ===")
	assert.Contains(t, out, "  Loaded 3 existing thumbnails for botany")
	assert.Contains(t, out, "  [botany] a.jpg - thumbnails: @200 (100 B total)")
	assert.Contains(t, out, "  [botany] b.png - NO thumbnails")
	assert.Contains(t, out, "--- botany: 3 images, 2 with thumbnails, 1 missing ---")
	assert.Equal(t, 3, p.Total())
	assert.Equal(t, 3, strings.Count(out, "  [botany] "))
}

func TestLogProgress_QuietWritesNothing(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewLogProgress(&buf, false)
	p.Interval = 1

	_, err := New(newStore(), Options{Progress: p}).Scan(context.Background())
	require.NoError(t, err)

	assert.Empty(t, buf.String())
	assert.Equal(t, 4, p.Total())
}
