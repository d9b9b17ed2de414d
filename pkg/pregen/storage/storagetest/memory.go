// Package storagetest provides an in-memory storage.Storage for tests.
package storagetest

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jamesainslie/pregen/pkg/pregen/storage"
	"github.com/jamesainslie/pregen/pkg/pregen/types"
)

type object struct {
	data        []byte
	size        int64
	modified    time.Time
	contentType string
}

// Memory is a concurrency-safe in-memory object store with call counters
// and per-operation failure injection.
type Memory struct {
	mu      sync.Mutex
	prefix  string
	objects map[string]object

	// Errors injected by operation name ("list_collections", "list_originals",
	// "list_thumbnails", "list_prefix", "metadata") or by key for
	// "download:<key>" and "upload:<key>".
	failures map[string]error

	downloads int
	uploads   int
	calls     map[string]int
}

var _ storage.Storage = (*Memory)(nil)

// NewMemory returns an empty store using prefix (default "attachments").
func NewMemory(prefix string) *Memory {
	if prefix == "" {
		prefix = types.DefaultPrefix
	}
	return &Memory{
		prefix:   prefix,
		objects:  make(map[string]object),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// Put stores an object with explicit size and modification time.
// When data is nil, size is still reported by listings.
func (m *Memory) Put(key string, data []byte, size int64, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data != nil {
		size = int64(len(data))
	}
	m.objects[key] = object{data: data, size: size, modified: modified}
}

// Fail makes op return err. See Memory for op names.
func (m *Memory) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
}

// Downloads returns the number of Download calls.
func (m *Memory) Downloads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.downloads
}

// Uploads returns the number of Upload calls.
func (m *Memory) Uploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads
}

// Calls returns how often op was invoked.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Has reports whether key is stored.
func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// ContentType returns the content type recorded by Upload.
func (m *Memory) ContentType(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[key].contentType
}

func (m *Memory) enter(op string) error {
	m.calls[op]++
	return m.failures[op]
}

// Info implements storage.Storage.
func (m *Memory) Info() types.StorageInfo {
	return types.StorageInfo{Kind: types.StorageS3, Endpoint: "memory://", Bucket: "memory", Prefix: m.prefix}
}

// ListCollections implements storage.Storage.
func (m *Memory) ListCollections(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("list_collections"); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	root := m.prefix + "/"
	for key := range m.objects {
		rest, ok := strings.CutPrefix(key, root)
		if !ok {
			continue
		}
		if name, _, found := strings.Cut(rest, "/"); found && name != "" {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, ctx.Err()
}

func (m *Memory) list(prefix string, max int) []storage.Object {
	var out []storage.Object
	for key, o := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.Object{Key: key, Size: o.size, Modified: o.modified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

func images(objs []storage.Object, resumeFrom string) []storage.Object {
	var out []storage.Object
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

// ListOriginals implements storage.Storage.
func (m *Memory) ListOriginals(ctx context.Context, collection, resumeFrom string) ([]storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("list_originals"); err != nil {
		return nil, fmt.Errorf("listing originals for %s: %w", collection, err)
	}
	return images(m.list(storage.OriginalsPrefix(m.prefix, collection), 0), resumeFrom), ctx.Err()
}

// ListThumbnails implements storage.Storage.
func (m *Memory) ListThumbnails(ctx context.Context, collection string) ([]storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("list_thumbnails"); err != nil {
		return nil, fmt.Errorf("listing thumbnails for %s: %w", collection, err)
	}
	return images(m.list(storage.ThumbnailsPrefix(m.prefix, collection), 0), ""), ctx.Err()
}

// ListPrefix implements storage.Storage.
func (m *Memory) ListPrefix(ctx context.Context, prefix string, max int) ([]storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("list_prefix"); err != nil {
		return nil, err
	}
	return m.list(prefix, max), ctx.Err()
}

// Exists implements storage.Storage.
func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	meta, err := m.Metadata(ctx, key)
	return meta != nil, err
}

// Metadata implements storage.Storage.
func (m *Memory) Metadata(_ context.Context, key string) (*storage.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("metadata"); err != nil {
		return nil, err
	}
	o, ok := m.objects[key]
	if !ok {
		return nil, nil
	}
	ct := o.contentType
	if ct == "" {
		ct = storage.DefaultContentType
	}
	return &storage.Metadata{Size: o.size, Modified: o.modified, ContentType: ct}, nil
}

// Download implements storage.Storage.
func (m *Memory) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads++
	if err := m.enter("download:" + key); err != nil {
		return nil, err
	}
	o, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, storage.ErrNotFound)
	}
	return append([]byte(nil), o.data...), nil
}

// Upload implements storage.Storage.
func (m *Memory) Upload(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads++
	if err := m.enter("upload:" + key); err != nil {
		return err
	}
	m.objects[key] = object{
		data:        append([]byte(nil), data...),
		size:        int64(len(data)),
		modified:    time.Now().UTC(),
		contentType: contentType,
	}
	return nil
}
