// Package storage defines the key/value contract the scanner and generator use
// to reach originals and thumbnails, with an S3-compatible backend, a local
// filesystem backend and a retrying decorator.
//
// Keys follow the layout <prefix>/<collection>/originals/<file> and
// <prefix>/<collection>/thumbnails/<file>. Listings are fully materialised and
// returned in ascending key order; any listing failure is returned as an error.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/jamesainslie/pregen/pkg/pregen/types"
)

// ErrNotFound indicates that a key does not exist.
var ErrNotFound = errors.New("object not found")

// DefaultContentType is used when a caller does not know the content type.
const DefaultContentType = "application/octet-stream"

// Object is one listed storage object.
type Object struct {
	Key      string
	Size     int64
	Modified time.Time
}

// Metadata describes a single object.
type Metadata struct {
	Size        int64
	Modified    time.Time
	ContentType string
}

// Storage is the contract shared by every backend.
type Storage interface {
	// Info describes the backend for manifest provenance.
	Info() types.StorageInfo

	// ListCollections returns the collection names directly under the prefix.
	ListCollections(ctx context.Context) ([]string, error)

	// ListOriginals returns image originals of a collection. When resumeFrom
	// is non-empty, originals whose base name sorts before it are skipped.
	ListOriginals(ctx context.Context, collection, resumeFrom string) ([]Object, error)

	// ListThumbnails returns image files under the collection's thumbnail namespace.
	ListThumbnails(ctx context.Context, collection string) ([]Object, error)

	// ListPrefix returns up to max objects whose keys start with prefix.
	// A non-positive max means no limit.
	ListPrefix(ctx context.Context, prefix string, max int) ([]Object, error)

	// Exists reports whether key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Metadata returns nil, nil when key does not exist.
	Metadata(ctx context.Context, key string) (*Metadata, error)

	// Download returns the object's bytes, or an error matching ErrNotFound.
	Download(ctx context.Context, key string) ([]byte, error)

	// Upload stores data under key, replacing any existing object.
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

const (
	originalsDir  = "/originals/"
	thumbnailsDir = "/thumbnails/"
)

// OriginalsPrefix returns "<prefix>/<collection>/originals/".
func OriginalsPrefix(prefix, collection string) string {
	return path.Join(prefix, collection) + originalsDir
}

// ThumbnailsPrefix returns "<prefix>/<collection>/thumbnails/".
func ThumbnailsPrefix(prefix, collection string) string {
	return path.Join(prefix, collection) + thumbnailsDir
}

// ThumbnailKeyFor maps an original key into the thumbnail namespace.
func ThumbnailKeyFor(originalKey string) string {
	return strings.ReplaceAll(originalKey, originalsDir, thumbnailsDir)
}

// OriginalKeyFor maps a thumbnail key back into the originals namespace.
func OriginalKeyFor(thumbnailKey string) string {
	return strings.ReplaceAll(thumbnailKey, thumbnailsDir, originalsDir)
}

// filterImages keeps image objects, dropping those whose base name sorts
// before resumeFrom.
func filterImages(objs []Object, resumeFrom string) []Object {
	out := objs[:0]
	for _, o := range objs {
		if resumeFrom != "" && path.Base(o.Key) < resumeFrom {
			continue
		}
		if types.IsImageKey(o.Key) {
			out = append(out, o)
		}
	}
	return out
}
