package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/pregen/pkg/pregen/types"
)

// LocalConfig configures the filesystem backend.
type LocalConfig struct {
	// Root is the directory that mirrors the bucket.
	Root string

	// Prefix is the namespace directory under Root. Empty uses "attachments".
	Prefix string

	// Workers bounds the directory walk concurrency. Zero uses GOMAXPROCS.
	Workers int
}

// Local is a Storage backed by a directory tree laid out like the bucket.
type Local struct {
	root    string
	prefix  string
	workers int
}

var _ Storage = (*Local)(nil)

// NewLocal returns a filesystem backend rooted at cfg.Root.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.Root == "" {
		return nil, errors.New("local root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving local root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("local root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local root %s is not a directory", root)
	}

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = types.DefaultPrefix
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Local{root: root, prefix: prefix, workers: workers}, nil
}

// Info implements Storage.
func (l *Local) Info() types.StorageInfo {
	return types.StorageInfo{Kind: types.StorageLocal, LocalRoot: l.root, Prefix: l.prefix}
}

// resolve maps a key to a path under the root, rejecting keys that escape it.
func (l *Local) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

func (l *Local) key(p string) string {
	rel, err := filepath.Rel(l.root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// ListCollections implements Storage.
func (l *Local) ListCollections(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(l.root, filepath.FromSlash(l.prefix)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ListOriginals implements Storage.
func (l *Local) ListOriginals(ctx context.Context, collection, resumeFrom string) ([]Object, error) {
	objs, err := l.list(ctx, OriginalsPrefix(l.prefix, collection), 0)
	if err != nil {
		return nil, fmt.Errorf("listing originals for %s: %w", collection, err)
	}
	return filterImages(objs, resumeFrom), nil
}

// ListThumbnails implements Storage.
func (l *Local) ListThumbnails(ctx context.Context, collection string) ([]Object, error) {
	objs, err := l.list(ctx, ThumbnailsPrefix(l.prefix, collection), 0)
	if err != nil {
		return nil, fmt.Errorf("listing thumbnails for %s: %w", collection, err)
	}
	return filterImages(objs, ""), nil
}

// ListPrefix implements Storage.
func (l *Local) ListPrefix(ctx context.Context, prefix string, max int) ([]Object, error) {
	objs, err := l.list(ctx, prefix, max)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", prefix, err)
	}
	return objs, nil
}

// list returns objects whose key starts with prefix, sorted by key.
// Only the directory containing the prefix is read directly; matching
// subdirectories are walked with fastwalk.
func (l *Local) list(ctx context.Context, prefix string, max int) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirKey := prefix
	if !strings.HasSuffix(prefix, "/") {
		dirKey = path.Dir(prefix) + "/"
	}
	dir := filepath.Join(l.root, filepath.FromSlash(dirKey))

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var (
		mu  sync.Mutex
		out []Object
	)
	add := func(p string, info fs.FileInfo) {
		mu.Lock()
		out = append(out, Object{Key: l.key(p), Size: info.Size(), Modified: info.ModTime()})
		mu.Unlock()
	}

	conf := fastwalk.Config{Follow: false, NumWorkers: l.workers}
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if !strings.HasPrefix(l.key(p), prefix) {
			continue
		}
		if !e.IsDir() {
			if !e.Type().IsRegular() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				return nil, err
			}
			add(p, info)
			continue
		}

		err := fastwalk.Walk(&conf, p, func(fp string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			add(fp, info)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}

// Exists implements Storage.
func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	meta, err := l.Metadata(ctx, key)
	return meta != nil, err
}

// Metadata implements Storage.
func (l *Local) Metadata(ctx context.Context, key string) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	if info.IsDir() {
		return nil, nil
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(p)))
	if ct == "" {
		ct = DefaultContentType
	}
	return &Metadata{Size: info.Size(), Modified: info.ModTime(), ContentType: ct}, nil
}

// Download implements Storage.
func (l *Local) Download(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Upload implements Storage. The file is written to a temp name and renamed.
func (l *Local) Upload(ctx context.Context, key string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", key, err)
	}

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}
