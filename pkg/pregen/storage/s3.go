package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jamesainslie/pregen/pkg/pregen/logging"
	"github.com/jamesainslie/pregen/pkg/pregen/types"
)

var logger = logging.Get("storage")

// S3Config configures the S3-compatible backend.
type S3Config struct {
	// Endpoint is the service URL, e.g. "https://s3.example.com".
	// A bare host is treated as https.
	Endpoint string

	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Region    string

	// Insecure disables TLS certificate verification.
	Insecure bool
}

// S3 is a Storage backed by an S3-compatible object store.
type S3 struct {
	client *minio.Client
	cfg    S3Config
}

var _ Storage = (*S3)(nil)

// NewS3 creates a client for cfg. It does not contact the server.
func NewS3(cfg S3Config) (*S3, error) {
	host, secure, err := splitEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	if cfg.Prefix == "" {
		cfg.Prefix = types.DefaultPrefix
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")

	opts := &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       secure,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	}
	if secure && cfg.Insecure {
		transport, err := minio.DefaultTransport(true)
		if err != nil {
			return nil, fmt.Errorf("failed to build transport: %w", err)
		}
		transport.TLSClientConfig.InsecureSkipVerify = true
		opts.Transport = transport
	}

	client, err := minio.New(host, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	return &S3{client: client, cfg: cfg}, nil
}

// splitEndpoint turns an endpoint URL into the host and TLS flag minio expects.
func splitEndpoint(endpoint string) (string, bool, error) {
	if endpoint == "" {
		return "", false, errors.New("s3 endpoint is required")
	}
	if !strings.Contains(endpoint, "://") {
		return strings.TrimSuffix(endpoint, "/"), true, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid s3 endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "https":
		return u.Host, true, nil
	case "http":
		return u.Host, false, nil
	default:
		return "", false, fmt.Errorf("invalid s3 endpoint scheme %q", u.Scheme)
	}
}

// Info implements Storage.
func (s *S3) Info() types.StorageInfo {
	return types.StorageInfo{
		Kind:     types.StorageS3,
		Endpoint: s.cfg.Endpoint,
		Bucket:   s.cfg.Bucket,
		Prefix:   s.cfg.Prefix,
	}
}

// ListCollections implements Storage using a delimited listing of the prefix.
func (s *S3) ListCollections(ctx context.Context) ([]string, error) {
	prefix := s.cfg.Prefix + "/"
	var names []string
	for obj := range s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing collections: %w", obj.Err)
		}
		if !strings.HasSuffix(obj.Key, "/") {
			continue
		}
		if name := strings.TrimSuffix(strings.TrimPrefix(obj.Key, prefix), "/"); name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ListOriginals implements Storage.
func (s *S3) ListOriginals(ctx context.Context, collection, resumeFrom string) ([]Object, error) {
	objs, err := s.list(ctx, OriginalsPrefix(s.cfg.Prefix, collection), 0)
	if err != nil {
		return nil, fmt.Errorf("listing originals for %s: %w", collection, err)
	}
	return filterImages(objs, resumeFrom), nil
}

// ListThumbnails implements Storage.
func (s *S3) ListThumbnails(ctx context.Context, collection string) ([]Object, error) {
	objs, err := s.list(ctx, ThumbnailsPrefix(s.cfg.Prefix, collection), 0)
	if err != nil {
		return nil, fmt.Errorf("listing thumbnails for %s: %w", collection, err)
	}
	return filterImages(objs, ""), nil
}

// ListPrefix implements Storage.
func (s *S3) ListPrefix(ctx context.Context, prefix string, max int) ([]Object, error) {
	objs, err := s.list(ctx, prefix, max)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", prefix, err)
	}
	return objs, nil
}

func (s *S3) list(ctx context.Context, prefix string, max int) ([]Object, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
	if max > 0 {
		opts.MaxKeys = max
	}

	var out []Object
	for obj := range s.client.ListObjects(ctx, s.cfg.Bucket, opts) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		out = append(out, Object{Key: obj.Key, Size: obj.Size, Modified: obj.LastModified})
		if max > 0 && len(out) >= max {
			break
		}
	}
	logger.Debug("listed objects", "prefix", prefix, "count", len(out))
	return out, nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey"
}

// Exists implements Storage.
func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	meta, err := s.Metadata(ctx, key)
	if err != nil {
		return false, err
	}
	return meta != nil, nil
}

// Metadata implements Storage.
func (s *S3) Metadata(ctx context.Context, key string) (*Metadata, error) {
	info, err := s.client.StatObject(ctx, s.cfg.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	ct := info.ContentType
	if ct == "" {
		ct = DefaultContentType
	}
	return &Metadata{Size: info.Size, Modified: info.LastModified, ContentType: ct}, nil
}

// Download implements Storage.
func (s *S3) Download(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Upload implements Storage.
func (s *S3) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = DefaultContentType
	}
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}
