package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThumbnailKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		base  string
		scale int
		want  string
	}{
		{name: "jpeg", base: "attachments/c1/thumbnails/a.jpg", scale: 200, want: "attachments/c1/thumbnails/a_200.jpg"},
		{name: "multiple dots", base: "p/c/thumbnails/x.y.png", scale: 400, want: "p/c/thumbnails/x.y_400.png"},
		{name: "no extension", base: "p/c/thumbnails/readme", scale: 100, want: "p/c/thumbnails/readme_100"},
		{name: "dot in directory only", base: "p.v2/c/thumbnails/readme", scale: 100, want: "p.v2/c/thumbnails/readme_100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ThumbnailKey(tt.base, tt.scale); got != tt.want {
				t.Errorf("ThumbnailKey(%q, %d) = %q, want %q", tt.base, tt.scale, got, tt.want)
			}
		})
	}
}

func TestNormalizeThumbnailKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		key       string
		wantBase  string
		wantScale int
	}{
		{name: "scaled", key: "p/c/thumbnails/a_200.jpg", wantBase: "p/c/thumbnails/a.jpg", wantScale: 200},
		{name: "underscore in stem", key: "p/c/thumbnails/my_pic_400.png", wantBase: "p/c/thumbnails/my_pic.png", wantScale: 400},
		{name: "unscaled", key: "p/c/thumbnails/a.jpg", wantBase: "p/c/thumbnails/a.jpg", wantScale: 0},
		{name: "non-numeric suffix", key: "p/c/thumbnails/a_big.jpg", wantBase: "p/c/thumbnails/a_big.jpg", wantScale: 0},
		{name: "no extension", key: "p/c/thumbnails/a_200", wantBase: "p/c/thumbnails/a", wantScale: 200},
		{name: "no extension unscaled", key: "p/c/thumbnails/a", wantBase: "p/c/thumbnails/a", wantScale: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			base, scale := NormalizeThumbnailKey(tt.key)
			assert.Equal(t, tt.wantBase, base)
			assert.Equal(t, tt.wantScale, scale)
		})
	}
}

func TestKeyDerivationLaw(t *testing.T) {
	t.Parallel()

	for _, base := range []string{"p/c/thumbnails/a.jpg", "p/c/thumbnails/b_1.png", "x.tif", "x/a", "x/b_7"} {
		for _, scale := range []int{1, 100, 200, 1600} {
			gotBase, gotScale := NormalizeThumbnailKey(ThumbnailKey(base, scale))
			if gotBase != base || gotScale != scale {
				t.Errorf("normalize(derive(%q, %d)) = (%q, %d)", base, scale, gotBase, gotScale)
			}
		}
	}
}

func TestIsImageKey(t *testing.T) {
	t.Parallel()

	for key, want := range map[string]bool{
		"a/b/photo.jpg":  true,
		"a/b/PHOTO.JPEG": true,
		"scan.TIFF":      true,
		"icon.bmp":       true,
		"notes.txt":      false,
		"photo.webp":     false,
		"noext":          false,
	} {
		if got := IsImageKey(key); got != want {
			t.Errorf("IsImageKey(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestImageRecord_Thumbnails(t *testing.T) {
	t.Parallel()

	r := NewImageRecord("p/c/originals/a.jpg", "p/c/thumbnails/a.jpg", "c", 5000, time.Time{})
	assert.Equal(t, "a.jpg", r.Filename)
	assert.False(t, r.HasAnyThumbnail())
	assert.True(t, r.NeedsThumbnail(200))

	r.AddThumbnail(ThumbnailInfo{Scale: 400, Key: "p/c/thumbnails/a_400.jpg", Size: 300})
	r.AddThumbnail(ThumbnailInfo{Scale: 200, Key: "p/c/thumbnails/a_200.jpg", Size: 100})
	r.AddThumbnail(ThumbnailInfo{Scale: 200, Key: "p/c/thumbnails/a_200.jpg", Size: 150})

	assert.True(t, r.HasThumbnail(200))
	assert.False(t, r.NeedsThumbnail(400))
	assert.Equal(t, []int{200, 400}, r.Scales())
	assert.Equal(t, int64(450), r.ThumbnailBytes())

	info, ok := r.Thumbnail(200)
	require.True(t, ok)
	assert.Equal(t, int64(150), info.Size)
	assert.Equal(t, "p/c/thumbnails/a_800.jpg", r.ThumbnailKey(800))
}

func TestImageRecord_FormatStatus(t *testing.T) {
	t.Parallel()

	r := NewImageRecord("p/c/originals/a.jpg", "p/c/thumbnails/a.jpg", "c", 0, time.Time{})
	assert.Equal(t, "a.jpg - NO thumbnails", r.FormatSummary())
	assert.Equal(t, "a.jpg - thumbnail MISSING @200 (required)", r.FormatStatus(200))

	r.AddThumbnail(ThumbnailInfo{Scale: 200, Size: 1024})
	r.AddThumbnail(ThumbnailInfo{Scale: 100, Size: 1024})
	assert.Equal(t, "a.jpg - thumbnail EXISTS @200 (1.0 KiB)", r.FormatStatus(200))
	assert.Equal(t, "a.jpg - thumbnails: @100, @200 (2.0 KiB total)", r.FormatSummary())
}

func TestCollectionStats(t *testing.T) {
	t.Parallel()

	t.Run("empty collection has full coverage", func(t *testing.T) {
		t.Parallel()
		s := &CollectionStats{Name: "empty"}
		assert.InDelta(t, 100.0, s.Coverage(), 0.0001)
	})

	t.Run("totals invariant", func(t *testing.T) {
		t.Parallel()
		s := &CollectionStats{Name: "c"}
		with := NewImageRecord("c/originals/a.jpg", "c/thumbnails/a.jpg", "c", 1000, time.Time{})
		with.AddThumbnail(ThumbnailInfo{Scale: 200, Size: 10})
		with.AddThumbnail(ThumbnailInfo{Scale: 400, Size: 30})
		without := NewImageRecord("c/originals/b.jpg", "c/thumbnails/b.jpg", "c", 500, time.Time{})

		s.Add(with)
		s.Add(without)
		s.Add(without)

		assert.Equal(t, 3, s.TotalImages)
		assert.Equal(t, s.TotalImages, s.WithThumbnails+s.MissingThumbnails)
		assert.Equal(t, int64(2000), s.TotalOriginalBytes)
		assert.Equal(t, int64(40), s.TotalThumbnailBytes)
		assert.InDelta(t, 33.333, s.Coverage(), 0.01)
	})
}

func TestImageRecord_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	mod := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := NewImageRecord("p/c/originals/a.jpg", "p/c/thumbnails/a.jpg", "c", 42, mod)
	r.AddThumbnail(ThumbnailInfo{Scale: 200, Key: "p/c/thumbnails/a_200.jpg", Size: 7, Modified: mod})

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"200":{`)

	var got ImageRecord
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, r.OriginalKey, got.OriginalKey)
	assert.True(t, r.OriginalModified.Equal(got.OriginalModified))
	require.True(t, got.HasThumbnail(200))
	assert.Equal(t, "p/c/thumbnails/a_200.jpg", got.Thumbnails[200].Key)
}

func TestImageRecord_UnmarshalLegacy(t *testing.T) {
	t.Parallel()

	t.Run("single thumbnail becomes scale 200", func(t *testing.T) {
		t.Parallel()
		doc := `{
			"original_key": "p/c/originals/a.jpg",
			"original_size": 10,
			"original_modified": "2023-01-02T03:04:05",
			"thumbnail_key": "p/c/thumbnails/a.jpg",
			"collection": "c",
			"filename": "a.jpg",
			"thumbnail_exists": true,
			"thumbnail_size": 99,
			"thumbnail_modified": "2023-01-02T03:04:05+00:00"
		}`
		var r ImageRecord
		require.NoError(t, json.Unmarshal([]byte(doc), &r))
		assert.Equal(t, "p/c/thumbnails/a.jpg", r.BaseThumbnailKey)
		info, ok := r.Thumbnail(200)
		require.True(t, ok)
		assert.Equal(t, "p/c/thumbnails/a_200.jpg", info.Key)
		assert.Equal(t, int64(99), info.Size)
		assert.Equal(t, 2023, r.OriginalModified.Year())
	})

	t.Run("missing thumbnail stays empty", func(t *testing.T) {
		t.Parallel()
		doc := `{"original_key": "k", "thumbnail_key": "t.jpg", "thumbnail_exists": false}`
		var r ImageRecord
		require.NoError(t, json.Unmarshal([]byte(doc), &r))
		assert.False(t, r.HasAnyThumbnail())
		assert.NotNil(t, r.Thumbnails)
	})

	t.Run("invalid scale key", func(t *testing.T) {
		t.Parallel()
		doc := `{"original_key": "k", "thumbnails": {"big": {"key": "x"}}}`
		var r ImageRecord
		assert.Error(t, json.Unmarshal([]byte(doc), &r))
	})
}

func TestImageExtensions(t *testing.T) {
	t.Parallel()

	exts := ImageExtensions()
	assert.Equal(t, []string{".bmp", ".gif", ".jpeg", ".jpg", ".png", ".tif", ".tiff"}, exts)
	for _, ext := range exts {
		assert.True(t, IsImageKey("a"+ext), ext)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"2024-01-02T03:04:05Z", "2024-01-02T03:04:05.123456", "2024-01-02T03:04:05+02:00"} {
		ts, err := ParseTimestamp(s)
		require.NoError(t, err, s)
		assert.Equal(t, 2024, ts.Year(), s)
	}

	ts, err := ParseTimestamp("")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
}
