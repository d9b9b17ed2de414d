package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jamesainslie/pregen/pkg/pregen/metrics"
	"github.com/jamesainslie/pregen/pkg/pregen/types"
)

// RetryConfig configures retry behaviour for storage operations.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Metrics receives retry counts. May be nil.
	Metrics *metrics.Metrics
}

// DefaultRetryConfig returns three retries with 200ms to 5s exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// Retry decorates a Storage, retrying failed operations with capped
// exponential backoff. Missing objects and cancelled contexts are not retried.
type Retry struct {
	next Storage
	cfg  RetryConfig
}

var _ Storage = (*Retry)(nil)

// WithRetry wraps next. A zero MaxRetries returns next unchanged.
func WithRetry(next Storage, cfg RetryConfig) Storage {
	if cfg.MaxRetries <= 0 {
		return next
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultRetryConfig().InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	return &Retry{next: next, cfg: cfg}
}

func retryable(err error) bool {
	return !errors.Is(err, ErrNotFound) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func (r *Retry) do(ctx context.Context, op string, fn func() error) error {
	backoff := r.cfg.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				logger.Info("storage operation succeeded on retry", "op", op, "attempt", attempt)
			}
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
		if attempt == r.cfg.MaxRetries {
			break
		}

		r.cfg.Metrics.StorageRetry(op)
		logger.Debug("storage operation failed, retrying", "op", op, "backoff", backoff,
			"attempt", attempt+1, "max", r.cfg.MaxRetries, "err", err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
		if backoff > r.cfg.MaxBackoff {
			backoff = r.cfg.MaxBackoff
		}
	}

	r.cfg.Metrics.StorageFailure(op)
	logger.Warn("storage operation failed after retries", "op", op, "retries", r.cfg.MaxRetries, "err", lastErr)
	return lastErr
}

// Info implements Storage.
func (r *Retry) Info() types.StorageInfo { return r.next.Info() }

// ListCollections implements Storage.
func (r *Retry) ListCollections(ctx context.Context) (names []string, err error) {
	err = r.do(ctx, "list_collections", func() error {
		names, err = r.next.ListCollections(ctx)
		return err
	})
	return names, err
}

// ListOriginals implements Storage.
func (r *Retry) ListOriginals(ctx context.Context, collection, resumeFrom string) (objs []Object, err error) {
	err = r.do(ctx, "list_originals", func() error {
		objs, err = r.next.ListOriginals(ctx, collection, resumeFrom)
		return err
	})
	return objs, err
}

// ListThumbnails implements Storage.
func (r *Retry) ListThumbnails(ctx context.Context, collection string) (objs []Object, err error) {
	err = r.do(ctx, "list_thumbnails", func() error {
		objs, err = r.next.ListThumbnails(ctx, collection)
		return err
	})
	return objs, err
}

// ListPrefix implements Storage.
func (r *Retry) ListPrefix(ctx context.Context, prefix string, max int) (objs []Object, err error) {
	err = r.do(ctx, "list_prefix", func() error {
		objs, err = r.next.ListPrefix(ctx, prefix, max)
		return err
	})
	return objs, err
}

// Exists implements Storage.
func (r *Retry) Exists(ctx context.Context, key string) (ok bool, err error) {
	err = r.do(ctx, "exists", func() error {
		ok, err = r.next.Exists(ctx, key)
		return err
	})
	return ok, err
}

// Metadata implements Storage.
func (r *Retry) Metadata(ctx context.Context, key string) (meta *Metadata, err error) {
	err = r.do(ctx, "metadata", func() error {
		meta, err = r.next.Metadata(ctx, key)
		return err
	})
	return meta, err
}

// Download implements Storage.
func (r *Retry) Download(ctx context.Context, key string) (data []byte, err error) {
	err = r.do(ctx, "download", func() error {
		data, err = r.next.Download(ctx, key)
		return err
	})
	return data, err
}

// Upload implements Storage.
func (r *Retry) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	return r.do(ctx, "upload", func() error {
		return r.next.Upload(ctx, key, data, contentType)
	})
}
