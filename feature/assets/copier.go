package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"time"

	"store-migrator/core/errs"
	"store-migrator/core/metrics"
	"store-migrator/core/storage"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultCacheControl is applied to uploads when none is configured.
const DefaultCacheControl = "public, max-age=31536000"

// CopyOptions controls one copy run.
type CopyOptions struct {
	// Prefix scopes the source listing.
	Prefix string
	// Concurrency is the number of objects copied per window.
	Concurrency int
	// Pacing is the pause between windows.
	Pacing time.Duration
	// CacheControl is set on every uploaded object.
	CacheControl string
	// TempDir holds staged objects. Empty uses the system default.
	TempDir string
	// MaxRetries bounds retries of a transient per-object failure.
	MaxRetries int
	// DryRun lists and checks existence without copying.
	DryRun bool
}

// ObjectError records why one object failed.
type ObjectError struct {
	Name  string `json:"name" yaml:"name"`
	Error string `json:"error" yaml:"error"`
}

// CopyStats summarizes a copy run.
type CopyStats struct {
	Listed      int           `json:"listed" yaml:"listed"`
	Copied      int           `json:"copied" yaml:"copied"`
	Skipped     int           `json:"skipped" yaml:"skipped"`
	Failed      int           `json:"failed" yaml:"failed"`
	Windows     int           `json:"windows" yaml:"windows"`
	BytesCopied int64         `json:"bytes_copied" yaml:"bytes_copied"`
	Errors      []ObjectError `json:"errors,omitempty" yaml:"errors,omitempty"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
}

type outcome int

const (
	outcomeCopied outcome = iota
	outcomeSkipped
	outcomeFailed
)

type result struct {
	name    string
	outcome outcome
	bytes   int64
	err     error
}

// Option configures a Copier.
type Option func(*Copier)

// WithMetrics reports per-object results to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Copier) { c.metrics = m }
}

// WithSleep replaces the pacing sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Copier) { c.sleep = sleep }
}

// Copier copies objects from one bucket to another without overwriting.
type Copier struct {
	source  storage.Bucket
	target  storage.Bucket
	logger  *zap.Logger
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewCopier creates a Copier.
func NewCopier(source, target storage.Bucket, logger *zap.Logger, opts ...Option) *Copier {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Copier{source: source, target: target, logger: logger, sleep: sleepContext}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CopyAll copies every source object missing from the target, in windows
// of opts.Concurrency objects. Per-object failures are recorded and never
// abort the run. On abort the running window completes first.
func (c *Copier) CopyAll(ctx context.Context, opts CopyOptions) (CopyStats, error) {
	started := time.Now()
	var stats CopyStats

	if opts.Concurrency <= 0 {
		return stats, errs.FatalConfigf("copier", "concurrency must be positive, got %d", opts.Concurrency)
	}
	if opts.CacheControl == "" {
		opts.CacheControl = DefaultCacheControl
	}

	objects, err := c.source.List(ctx, opts.Prefix)
	if err != nil {
		return stats, fmt.Errorf("failed to list %s: %w", c.source.Name(), err)
	}
	stats.Listed = len(objects)
	c.logger.Info("Copying objects",
		zap.String("source", c.source.Name()),
		zap.String("target", c.target.Name()),
		zap.String("prefix", opts.Prefix),
		zap.Int("objects", len(objects)),
		zap.Int("concurrency", opts.Concurrency),
	)

	for start := 0; start < len(objects); start += opts.Concurrency {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(started)
			return stats, err
		}

		end := min(start+opts.Concurrency, len(objects))
		window := objects[start:end]
		results := c.runWindow(ctx, window, opts)
		stats.Windows++
		c.record(&stats, results)

		c.logger.Debug("Window finished",
			zap.Int("window", stats.Windows),
			zap.Int("copied", stats.Copied),
			zap.Int("skipped", stats.Skipped),
			zap.Int("failed", stats.Failed),
		)

		if end < len(objects) {
			if err := c.sleep(ctx, opts.Pacing); err != nil {
				stats.Duration = time.Since(started)
				return stats, err
			}
		}
	}

	stats.Duration = time.Since(started)
	return stats, nil
}

// runWindow copies a window concurrently. Transfers run on a context that
// ignores the abort so the window always completes.
func (c *Copier) runWindow(ctx context.Context, window []storage.ObjectInfo, opts CopyOptions) []result {
	results := make([]result, len(window))
	windowCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	for i, obj := range window {
		g.Go(func() error {
			results[i] = c.copyOne(windowCtx, obj, opts)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Copier) record(stats *CopyStats, results []result) {
	for _, r := range results {
		switch r.outcome {
		case outcomeCopied:
			stats.Copied++
			stats.BytesCopied += r.bytes
			c.metrics.Asset("copied", r.bytes)
		case outcomeSkipped:
			stats.Skipped++
			c.metrics.Asset("skipped", 0)
		case outcomeFailed:
			stats.Failed++
			stats.Errors = append(stats.Errors, ObjectError{Name: r.name, Error: r.err.Error()})
			c.metrics.Asset("failed", 0)
			c.logger.Warn("Object copy failed", zap.String("object", r.name), zap.Error(r.err))
		}
	}
}

func (c *Copier) copyOne(ctx context.Context, obj storage.ObjectInfo, opts CopyOptions) result {
	res := result{name: obj.Name}

	var exists bool
	err := c.retry(ctx, opts.MaxRetries, func() error {
		var err error
		exists, err = c.target.Exists(ctx, obj.Name)
		return err
	})
	if err != nil {
		res.outcome, res.err = outcomeFailed, fmt.Errorf("exists check: %w", err)
		return res
	}
	if exists {
		res.outcome = outcomeSkipped
		return res
	}
	if opts.DryRun {
		res.outcome, res.bytes = outcomeCopied, obj.Size
		return res
	}

	var written int64
	err = c.retry(ctx, opts.MaxRetries, func() error {
		var err error
		written, err = c.transfer(ctx, obj.Name, opts)
		return err
	})
	if err != nil {
		res.outcome, res.err = outcomeFailed, err
		return res
	}
	res.outcome, res.bytes = outcomeCopied, written
	return res
}

// transfer stages one object in a temp file and uploads it. The temp file
// is removed on every path.
func (c *Copier) transfer(ctx context.Context, name string, opts CopyOptions) (int64, error) {
	tmp, err := os.CreateTemp(opts.TempDir, "asset-*")
	if err != nil {
		return 0, errs.FatalConfig("stage "+name, err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	rc, err := c.source.Read(ctx, name)
	if err != nil {
		return 0, err
	}
	size, err := io.Copy(tmp, rc)
	_ = rc.Close()
	if err != nil {
		return 0, errs.Transient("download "+name, err)
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	contentType, err := detectContentType(name, tmp)
	if err != nil {
		return 0, err
	}

	meta := storage.Metadata{CacheControl: opts.CacheControl, ContentType: contentType}
	if err := c.target.Write(ctx, name, tmp, size, meta); err != nil {
		return 0, err
	}
	return size, nil
}

func (c *Copier) retry(ctx context.Context, maxRetries int, op func() error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 200 * time.Millisecond
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(maxRetries)), ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !errs.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		c.metrics.Retry("copier")
		c.logger.Debug("Retrying object", zap.Duration("wait", wait), zap.Error(err))
	})
}

// detectContentType uses the extension and falls back to sniffing. The
// file offset is rewound afterwards.
func detectContentType(name string, f *os.File) (string, error) {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct, nil
	}
	head := make([]byte, 512)
	n, err := f.Read(head)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
