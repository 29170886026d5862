package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"store-migrator/core/docstore"
	"store-migrator/core/errs"
	"store-migrator/core/metrics"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// BatchConfig controls batch size, pacing and retries.
type BatchConfig struct {
	// Size is the number of operations committed together.
	Size int `mapstructure:"size" default:"500"`
	// Delay is the pause after each commit triggered by Enqueue.
	Delay time.Duration `mapstructure:"delay" default:"1s"`
	// MaxRetries bounds the retries of one failed commit.
	MaxRetries int `mapstructure:"max_retries" default:"5"`
	// MaxDocumentBytes is the per-document payload limit.
	MaxDocumentBytes int `mapstructure:"max_document_bytes" default:"1048576"`
	// InitialBackoff is the first retry interval.
	InitialBackoff time.Duration `mapstructure:"initial_backoff" default:"500ms"`
	// MaxBackoff caps a single retry interval.
	MaxBackoff time.Duration `mapstructure:"max_backoff" default:"30s"`
}

// DefaultBatchConfig returns the defaults used when nothing is configured.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		Size:             500,
		Delay:            time.Second,
		MaxRetries:       5,
		MaxDocumentBytes: 1 << 20,
		InitialBackoff:   500 * time.Millisecond,
		MaxBackoff:       30 * time.Second,
	}
}

// Stats counts what a Batcher committed.
type Stats struct {
	Upserts      int `json:"upserts" yaml:"upserts"`
	Deletes      int `json:"deletes" yaml:"deletes"`
	FieldDeletes int `json:"field_deletes" yaml:"field_deletes"`
	Batches      int `json:"batches" yaml:"batches"`
	Retries      int `json:"retries" yaml:"retries"`
}

// Operations returns the number of committed operations.
func (s Stats) Operations() int {
	return s.Upserts + s.Deletes + s.FieldDeletes
}

// Add returns the sum of two stats.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Upserts:      s.Upserts + o.Upserts,
		Deletes:      s.Deletes + o.Deletes,
		FieldDeletes: s.FieldDeletes + o.FieldDeletes,
		Batches:      s.Batches + o.Batches,
		Retries:      s.Retries + o.Retries,
	}
}

// Rejection is one operation the store refused.
type Rejection struct {
	Key string
	Err error
}

// RejectedError reports operations the store refused. Every other operation
// of the affected batches was committed. When Cause is set, a later failure
// stopped the batcher and the operations after it are still buffered.
type RejectedError struct {
	Rejected []Rejection
	Cause    error
}

// Error implements the error interface.
func (e *RejectedError) Error() string {
	msg := fmt.Sprintf("%d operations rejected by store [%s]", len(e.Rejected), strings.Join(e.Keys(), ", "))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns Cause first so the error is classified by it when set.
func (e *RejectedError) Unwrap() []error {
	out := make([]error, 0, len(e.Rejected)+1)
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	for _, r := range e.Rejected {
		out = append(out, r.Err)
	}
	return out
}

// Keys returns the keys of the rejected operations.
func (e *RejectedError) Keys() []string {
	keys := make([]string, len(e.Rejected))
	for i, r := range e.Rejected {
		keys[i] = r.Key
	}
	return keys
}

func rejectedError(rejected []Rejection, cause error) error {
	if len(rejected) == 0 {
		return cause
	}
	return &RejectedError{Rejected: rejected, Cause: cause}
}

// collectRejected moves the rejections of err into rejected and returns the
// part of err that must stop the caller.
func collectRejected(rejected *[]Rejection, err error) error {
	var r *RejectedError
	if !errors.As(err, &r) {
		return err
	}
	*rejected = append(*rejected, r.Rejected...)
	return r.Cause
}

// BatcherOption configures a Batcher.
type BatcherOption func(*Batcher)

// WithMetrics reports commits and retries to m.
func WithMetrics(m *metrics.Metrics) BatcherOption {
	return func(b *Batcher) { b.metrics = m }
}

// WithSleep replaces the pacing sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) BatcherOption {
	return func(b *Batcher) { b.sleep = sleep }
}

// Batcher buffers operations and commits them in paced, atomic batches.
// A Batcher is safe for use by one producer at a time; Stats may be read
// concurrently.
type Batcher struct {
	store   docstore.Store
	cfg     BatchConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	buffer  []docstore.Operation
	pending map[string]struct{}
	stats   Stats
}

// NewBatcher creates a Batcher committing to store.
func NewBatcher(store docstore.Store, cfg BatchConfig, logger *zap.Logger, opts ...BatcherOption) (*Batcher, error) {
	if cfg.Size <= 0 {
		return nil, errs.FatalConfigf("batcher", "batch size must be positive, got %d", cfg.Size)
	}
	if cfg.MaxRetries < 0 {
		return nil, errs.FatalConfigf("batcher", "max retries must not be negative, got %d", cfg.MaxRetries)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Batcher{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		sleep:   sleepContext,
		buffer:  make([]docstore.Operation, 0, cfg.Size),
		pending: make(map[string]struct{}, cfg.Size),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Enqueue buffers op. A full buffer is committed and followed by the
// pacing delay. An operation on a document already in the buffer commits
// the buffer first so one batch never touches a document twice.
//
// Operations the store refuses are reported as a *RejectedError, which may
// name op itself or operations enqueued earlier.
func (b *Batcher) Enqueue(ctx context.Context, op docstore.Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.validate(op); err != nil {
		return err
	}
	op.Fields = docstore.CloneFields(op.Fields)
	op.FieldNames = append([]string(nil), op.FieldNames...)

	b.mu.Lock()
	defer b.mu.Unlock()

	var rejected []Rejection
	if _, dup := b.pending[op.Key()]; dup {
		b.logger.Debug("Splitting batch on repeated document", zap.String("doc", op.Key()))
		if err := collectRejected(&rejected, b.commitLocked(ctx)); err != nil {
			return rejectedError(rejected, err)
		}
		if err := b.sleep(ctx, b.cfg.Delay); err != nil {
			return rejectedError(rejected, err)
		}
	}

	b.buffer = append(b.buffer, op)
	b.pending[op.Key()] = struct{}{}

	if len(b.buffer) >= b.cfg.Size {
		if err := collectRejected(&rejected, b.commitLocked(ctx)); err != nil {
			return rejectedError(rejected, err)
		}
		if err := b.sleep(ctx, b.cfg.Delay); err != nil {
			return rejectedError(rejected, err)
		}
	}
	return rejectedError(rejected, nil)
}

// Flush commits whatever is buffered and returns the cumulative stats. After
// an abort nothing new is committed and the buffer is dropped.
func (b *Batcher) Flush(ctx context.Context) (Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		if len(b.buffer) > 0 {
			b.logger.Warn("Dropping uncommitted operations on abort", zap.Int("operations", len(b.buffer)))
			b.reset()
		}
		return b.stats, err
	}
	if len(b.buffer) > 0 {
		if err := b.commitLocked(ctx); err != nil {
			return b.stats, err
		}
	}
	return b.stats, ctx.Err()
}

// Stats returns the cumulative stats.
func (b *Batcher) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Pending returns the number of buffered operations.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

// Check reports whether Enqueue would accept op, without buffering it.
func (b *Batcher) Check(op docstore.Operation) error {
	return b.validate(op)
}

func (b *Batcher) validate(op docstore.Operation) error {
	if err := op.Validate(); err != nil {
		return err
	}
	if op.Kind != docstore.OpUpsert || b.cfg.MaxDocumentBytes <= 0 {
		return nil
	}
	size, err := docstore.EncodedSize(op.Fields)
	if err != nil {
		return errs.Validation("encode "+op.Key(), err)
	}
	if size > b.cfg.MaxDocumentBytes {
		return errs.Validationf("enqueue "+op.Key(), "%w: %d > %d bytes",
			errs.ErrPayloadTooLarge, size, b.cfg.MaxDocumentBytes)
	}
	return nil
}

// commitLocked commits the buffer. When the store rejects a batch of several
// operations, each one is replayed alone so only the refused ones are
// dropped. Transient failures keep the remaining operations buffered.
func (b *Batcher) commitLocked(ctx context.Context) error {
	ops := b.buffer
	err := b.commit(ctx, ops)
	switch {
	case err == nil:
		b.reset()
		return nil
	case errs.IsFatalConfig(err):
		b.logger.Error("Batch rejected by store", zap.Int("operations", len(ops)), zap.Error(err))
		b.reset()
		return err
	case !errs.IsValidation(err):
		return err
	case len(ops) == 1:
		b.logger.Error("Operation rejected by store", zap.String("doc", ops[0].Key()), zap.Error(err))
		b.reset()
		return &RejectedError{Rejected: []Rejection{{Key: ops[0].Key(), Err: err}}}
	}

	b.logger.Warn("Batch rejected by store, replaying operations one by one",
		zap.Int("operations", len(ops)), zap.Error(err))
	var rejected []Rejection
	for i := range ops {
		err := b.commit(ctx, ops[i:i+1])
		switch {
		case err == nil:
		case errs.IsValidation(err):
			b.logger.Error("Operation rejected by store", zap.String("doc", ops[i].Key()), zap.Error(err))
			rejected = append(rejected, Rejection{Key: ops[i].Key(), Err: err})
		case errs.IsFatalConfig(err):
			b.reset()
			return rejectedError(rejected, err)
		default:
			b.keep(ops[i:])
			return rejectedError(rejected, err)
		}
	}
	b.reset()
	return rejectedError(rejected, nil)
}

// commit writes ops with retries and counts them on success. Once started,
// the write is not cancelled by ctx; only the waits between attempts are.
func (b *Batcher) commit(ctx context.Context, ops []docstore.Operation) error {
	started := time.Now()
	commitCtx := context.WithoutCancel(ctx)

	attempts := 0
	var lastErr error
	operation := func() error {
		attempts++
		err := b.store.CommitBatch(commitCtx, ops)
		if err == nil {
			return nil
		}
		lastErr = err
		if errs.IsValidation(err) || errs.IsFatalConfig(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		b.stats.Retries++
		b.metrics.Retry("batcher")
		b.logger.Warn("Batch commit failed, retrying",
			zap.Int("attempt", attempts),
			zap.Int("operations", len(ops)),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(operation, b.backOff(ctx), notify)
	if err != nil {
		if errs.IsValidation(err) || errs.IsFatalConfig(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("batch commit interrupted: %w", ctxErr)
		}
		return errs.Transient("commit batch",
			fmt.Errorf("%w after %d attempts: %w", errs.ErrRetriesExhausted, attempts, lastErr))
	}

	var upserts, deletes, fieldDeletes int
	for _, op := range ops {
		switch op.Kind {
		case docstore.OpUpsert:
			upserts++
		case docstore.OpDelete:
			deletes++
		case docstore.OpFieldDelete:
			fieldDeletes++
		}
	}
	b.stats.Upserts += upserts
	b.stats.Deletes += deletes
	b.stats.FieldDeletes += fieldDeletes
	b.stats.Batches++
	b.metrics.BatchCommitted(upserts, deletes, fieldDeletes, time.Since(started))

	b.logger.Debug("Batch committed",
		zap.Int("operations", len(ops)),
		zap.Int("batches", b.stats.Batches),
		zap.Duration("took", time.Since(started)),
	)
	return nil
}

// keep replaces the buffer with ops.
func (b *Batcher) keep(ops []docstore.Operation) {
	b.buffer = append(make([]docstore.Operation, 0, b.cfg.Size), ops...)
	clear(b.pending)
	for _, op := range ops {
		b.pending[op.Key()] = struct{}{}
	}
}

func (b *Batcher) reset() {
	b.buffer = make([]docstore.Operation, 0, b.cfg.Size)
	clear(b.pending)
}

func (b *Batcher) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if b.cfg.InitialBackoff > 0 {
		exp.InitialInterval = b.cfg.InitialBackoff
	}
	if b.cfg.MaxBackoff > 0 {
		exp.MaxInterval = b.cfg.MaxBackoff
	}
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(b.cfg.MaxRetries)), ctx)
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
