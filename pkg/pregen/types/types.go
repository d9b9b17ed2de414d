// Package types provides the core entity model for the pregen thumbnail pipeline.
// It includes image records, thumbnail descriptors and per-collection statistics,
// along with the key derivation rules that join originals to their thumbnails.
package types

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultScale is the thumbnail scale assumed for legacy single-thumbnail records
// and used as the default generation target.
const DefaultScale = 200

// imageExtensions is the allow-list of original file extensions.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// IsImageKey reports whether key names a file with an allowed image extension.
// The comparison is case-insensitive.
func IsImageKey(key string) bool {
	return imageExtensions[strings.ToLower(path.Ext(key))]
}

// ImageExtensions returns the allowed extensions in sorted order.
func ImageExtensions() []string {
	exts := make([]string, 0, len(imageExtensions))
	for ext := range imageExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// ThumbnailInfo describes one thumbnail rendition at one scale.
type ThumbnailInfo struct {
	// Scale is the longest-edge size in pixels, or 0 for an unscaled legacy file.
	Scale int `json:"scale"`

	// Key is the full storage key of the thumbnail.
	Key string `json:"key"`

	// Size is the thumbnail size in bytes.
	Size int64 `json:"size"`

	// Modified is the last modification time reported by storage.
	Modified time.Time `json:"modified"`
}

// ImageRecord is one original image and the thumbnails known to exist for it.
type ImageRecord struct {
	// OriginalKey is the storage key of the original image.
	OriginalKey string `json:"original_key"`

	// OriginalSize is the size of the original in bytes.
	OriginalSize int64 `json:"original_size"`

	// OriginalModified is the last modification time of the original.
	OriginalModified time.Time `json:"original_modified"`

	// BaseThumbnailKey is the thumbnail key without a scale suffix.
	BaseThumbnailKey string `json:"base_thumbnail_key"`

	// Collection is the name of the collection the original belongs to.
	Collection string `json:"collection"`

	// Filename is the base name of the original.
	Filename string `json:"filename"`

	// Thumbnails maps scale to descriptor. Encoded with decimal string keys.
	Thumbnails map[int]ThumbnailInfo `json:"thumbnails"`
}

// NewImageRecord creates a record with an empty thumbnail map.
func NewImageRecord(originalKey, baseThumbnailKey, collection string, size int64, modified time.Time) *ImageRecord {
	return &ImageRecord{
		OriginalKey:      originalKey,
		OriginalSize:     size,
		OriginalModified: modified,
		BaseThumbnailKey: baseThumbnailKey,
		Collection:       collection,
		Filename:         path.Base(originalKey),
		Thumbnails:       make(map[int]ThumbnailInfo),
	}
}

// HasThumbnail reports whether a thumbnail at scale is recorded.
func (r *ImageRecord) HasThumbnail(scale int) bool {
	_, ok := r.Thumbnails[scale]
	return ok
}

// HasAnyThumbnail reports whether at least one thumbnail is recorded.
func (r *ImageRecord) HasAnyThumbnail() bool {
	return len(r.Thumbnails) > 0
}

// NeedsThumbnail is the negation of HasThumbnail.
func (r *ImageRecord) NeedsThumbnail(scale int) bool {
	return !r.HasThumbnail(scale)
}

// Thumbnail returns the descriptor at scale, if any.
func (r *ImageRecord) Thumbnail(scale int) (ThumbnailInfo, bool) {
	info, ok := r.Thumbnails[scale]
	return info, ok
}

// AddThumbnail records info, replacing any descriptor at the same scale.
func (r *ImageRecord) AddThumbnail(info ThumbnailInfo) {
	if r.Thumbnails == nil {
		r.Thumbnails = make(map[int]ThumbnailInfo)
	}
	r.Thumbnails[info.Scale] = info
}

// Scales returns the recorded scales in ascending order.
func (r *ImageRecord) Scales() []int {
	scales := make([]int, 0, len(r.Thumbnails))
	for s := range r.Thumbnails {
		scales = append(scales, s)
	}
	sort.Ints(scales)
	return scales
}

// ThumbnailBytes returns the summed size of all recorded thumbnails.
func (r *ImageRecord) ThumbnailBytes() int64 {
	var total int64
	for _, t := range r.Thumbnails {
		total += t.Size
	}
	return total
}

// ThumbnailKey returns the storage key of the thumbnail at scale.
func (r *ImageRecord) ThumbnailKey(scale int) string {
	return ThumbnailKey(r.BaseThumbnailKey, scale)
}

// FormatStatus describes the record's state at one scale, for per-file output.
func (r *ImageRecord) FormatStatus(scale int) string {
	if info, ok := r.Thumbnails[scale]; ok {
		return fmt.Sprintf("%s - thumbnail EXISTS @%d (%s)", r.Filename, scale, FormatSize(info.Size))
	}
	return fmt.Sprintf("%s - thumbnail MISSING @%d (required)", r.Filename, scale)
}

// FormatSummary describes every recorded thumbnail of the record.
func (r *ImageRecord) FormatSummary() string {
	if len(r.Thumbnails) == 0 {
		return r.Filename + " - NO thumbnails"
	}
	scales := r.Scales()
	parts := make([]string, len(scales))
	for i, s := range scales {
		parts[i] = "@" + strconv.Itoa(s)
	}
	return fmt.Sprintf("%s - thumbnails: %s (%s total)",
		r.Filename, strings.Join(parts, ", "), FormatSize(r.ThumbnailBytes()))
}

// CollectionStats aggregates records of a single collection.
// TotalImages always equals WithThumbnails + MissingThumbnails.
type CollectionStats struct {
	Name                string `json:"name"`
	TotalImages         int    `json:"total_images"`
	WithThumbnails      int    `json:"with_thumbnails"`
	MissingThumbnails   int    `json:"missing_thumbnails"`
	TotalOriginalBytes  int64  `json:"total_original_bytes"`
	TotalThumbnailBytes int64  `json:"total_thumbnail_bytes"`
}

// Add folds one record into the statistics.
func (s *CollectionStats) Add(r *ImageRecord) {
	s.TotalImages++
	s.TotalOriginalBytes += r.OriginalSize
	if r.HasAnyThumbnail() {
		s.WithThumbnails++
		s.TotalThumbnailBytes += r.ThumbnailBytes()
	} else {
		s.MissingThumbnails++
	}
}

// Coverage returns the percentage of images with at least one thumbnail.
// An empty collection is fully covered.
func (s *CollectionStats) Coverage() float64 {
	if s.TotalImages == 0 {
		return 100.0
	}
	return float64(s.WithThumbnails) / float64(s.TotalImages) * 100
}

// scaledPattern matches thumbnail basenames carrying a "_<scale>" suffix,
// before the extension or at the end of an extensionless name.
var scaledPattern = regexp.MustCompile(`^(.+)_(\d+)(\.[^.]+)?$`)

// ThumbnailKey derives the key of a thumbnail at scale from its base key.
// The scale is inserted before the final extension, or appended when there
// is none. NormalizeThumbnailKey inverts it in both cases.
func ThumbnailKey(base string, scale int) string {
	dir, file := path.Split(base)
	if i := strings.LastIndex(file, "."); i >= 0 {
		return dir + file[:i] + "_" + strconv.Itoa(scale) + file[i:]
	}
	return base + "_" + strconv.Itoa(scale)
}

// KeyRoot returns key with its final extension removed.
func KeyRoot(key string) string {
	dir, file := path.Split(key)
	if i := strings.LastIndex(file, "."); i >= 0 {
		return dir + file[:i]
	}
	return key
}

// NormalizeThumbnailKey strips a "_<scale>" suffix from a thumbnail key.
// It returns the base key and the scale. Keys without a suffix are their own
// base with scale 0.
func NormalizeThumbnailKey(key string) (string, int) {
	dir, file := path.Split(key)
	m := scaledPattern.FindStringSubmatch(file)
	if m == nil {
		return key, 0
	}
	scale, err := strconv.Atoi(m[2])
	if err != nil {
		return key, 0
	}
	return dir + m[1] + m[3], scale
}

// ParseScaledKey reports the scale of a key carrying a "_<scale>" suffix.
// ok is false for keys without one.
func ParseScaledKey(key string) (scale int, ok bool) {
	m := scaledPattern.FindStringSubmatch(path.Base(key))
	if m == nil {
		return 0, false
	}
	scale, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	return scale, true
}

// FormatSize converts a size in bytes to a human-readable string using IEC units.
func FormatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// Storage kinds recorded in manifests.
const (
	StorageS3    = "s3"
	StorageLocal = "local"
)

// DefaultPrefix is the namespace prefix under which collections live.
const DefaultPrefix = "attachments"

// StorageInfo records where a manifest's records were scanned from.
type StorageInfo struct {
	// Kind is StorageS3 or StorageLocal.
	Kind string `json:"storage_type" yaml:"storage_type"`

	Endpoint  string `json:"s3_endpoint,omitempty" yaml:"s3_endpoint,omitempty"`
	Bucket    string `json:"s3_bucket,omitempty" yaml:"s3_bucket,omitempty"`
	Prefix    string `json:"s3_prefix" yaml:"s3_prefix"`
	LocalRoot string `json:"local_root,omitempty" yaml:"local_root,omitempty"`
}

// String returns a short human-readable location, e.g. "s3://bucket/prefix".
func (s StorageInfo) String() string {
	if s.Kind == StorageLocal {
		return path.Join(s.LocalRoot, s.Prefix)
	}
	return fmt.Sprintf("s3://%s/%s (%s)", s.Bucket, s.Prefix, s.Endpoint)
}
