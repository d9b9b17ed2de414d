package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timestampLayouts are tried in order by ParseTimestamp.
// Zone-less layouts are interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 timestamp with or without a zone offset.
// An empty string yields the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

type thumbnailDoc struct {
	Scale    int    `json:"scale"`
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
}

// recordDoc is the decoded shape of a record, covering both the current
// multi-scale layout and the older single-thumbnail layout.
type recordDoc struct {
	OriginalKey       string                  `json:"original_key"`
	OriginalSize      int64                   `json:"original_size"`
	OriginalModified  string                  `json:"original_modified"`
	BaseThumbnailKey  string                  `json:"base_thumbnail_key"`
	Collection        string                  `json:"collection"`
	Filename          string                  `json:"filename"`
	Thumbnails        map[string]thumbnailDoc `json:"thumbnails"`
	ThumbnailKey      string                  `json:"thumbnail_key"`
	ThumbnailExists   bool                    `json:"thumbnail_exists"`
	ThumbnailSize     int64                   `json:"thumbnail_size"`
	ThumbnailModified string                  `json:"thumbnail_modified"`
}

// UnmarshalJSON decodes a record. Records without a thumbnails map but with
// thumbnail_exists set are upgraded to a single descriptor at DefaultScale.
func (r *ImageRecord) UnmarshalJSON(data []byte) error {
	var doc recordDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	modified, err := ParseTimestamp(doc.OriginalModified)
	if err != nil {
		return fmt.Errorf("record %s: original_modified: %w", doc.OriginalKey, err)
	}

	base := doc.BaseThumbnailKey
	if base == "" {
		base = doc.ThumbnailKey
	}

	*r = ImageRecord{
		OriginalKey:      doc.OriginalKey,
		OriginalSize:     doc.OriginalSize,
		OriginalModified: modified,
		BaseThumbnailKey: base,
		Collection:       doc.Collection,
		Filename:         doc.Filename,
		Thumbnails:       make(map[int]ThumbnailInfo, len(doc.Thumbnails)),
	}

	switch {
	case doc.Thumbnails != nil:
		for scaleStr, td := range doc.Thumbnails {
			scale, err := strconv.Atoi(scaleStr)
			if err != nil {
				return fmt.Errorf("record %s: invalid scale %q", doc.OriginalKey, scaleStr)
			}
			tm, err := ParseTimestamp(td.Modified)
			if err != nil {
				return fmt.Errorf("record %s: thumbnail @%d: %w", doc.OriginalKey, scale, err)
			}
			r.Thumbnails[scale] = ThumbnailInfo{Scale: scale, Key: td.Key, Size: td.Size, Modified: tm}
		}
	case doc.ThumbnailExists:
		tm, err := ParseTimestamp(doc.ThumbnailModified)
		if err != nil {
			return fmt.Errorf("record %s: thumbnail_modified: %w", doc.OriginalKey, err)
		}
		r.Thumbnails[DefaultScale] = ThumbnailInfo{
			Scale:    DefaultScale,
			Key:      legacyThumbnailKey(base),
			Size:     doc.ThumbnailSize,
			Modified: tm,
		}
	}

	return nil
}

// legacyThumbnailKey reproduces how single-thumbnail documents named the
// default-scale file: the first "." of the base key becomes "_200.".
func legacyThumbnailKey(base string) string {
	suffix := "_" + strconv.Itoa(DefaultScale)
	if strings.Contains(base, ".") {
		return strings.Replace(base, ".", suffix+".", 1)
	}
	return base + suffix
}
