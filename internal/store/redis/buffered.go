package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"tastream/internal/model"
)

var (
	_ model.ResultWriter = (*Publisher)(nil)
	_ model.ResultWriter = (*BufferedPublisher)(nil)
)

// BufferedPublisher sends result batches through a circuit breaker. While
// the breaker is open, results are buffered locally (dropping the oldest
// beyond maxBuf) and flushed once a later write gets through.
type BufferedPublisher struct {
	w  model.ResultWriter
	cb *CircuitBreaker

	mu     sync.Mutex
	buffer []model.IndicatorResult
	maxBuf int

	// Callbacks (optional, for metrics)
	OnBuffer  func(count int)
	OnDropped func(count int)
	OnFlush   func(count int)
}

// NewBufferedPublisher wraps w. maxBufferSize <= 0 means 10000 results.
func NewBufferedPublisher(w model.ResultWriter, cb *CircuitBreaker, maxBufferSize int) *BufferedPublisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	return &BufferedPublisher{w: w, cb: cb, maxBuf: maxBufferSize}
}

// WriteResultBatch writes results, or buffers them when the breaker is open
// or the write fails. Only a closed context is reported as an error.
func (bp *BufferedPublisher) WriteResultBatch(ctx context.Context, results []model.IndicatorResult) error {
	pending := bp.take()
	batch := append(pending, results...)
	if len(batch) == 0 {
		return nil
	}

	err := bp.cb.Execute(func() error { return bp.w.WriteResultBatch(ctx, batch) })
	switch {
	case err == nil:
		if len(pending) > 0 {
			slog.Info("flushed buffered results", slog.String("component", "redis"), slog.Int("count", len(pending)))
			if bp.OnFlush != nil {
				bp.OnFlush(len(pending))
			}
		}
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		bp.putBack(batch)
		return err
	default:
		if !errors.Is(err, ErrCircuitOpen) {
			slog.Warn("result publish failed, buffering", slog.String("component", "redis"), slog.Any("err", err))
		}
		bp.putBack(batch)
		return nil
	}
}

// PendingCount returns the number of buffered results.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.buffer)
}

func (bp *BufferedPublisher) take() []model.IndicatorResult {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	out := bp.buffer
	bp.buffer = nil
	return out
}

// putBack re-queues batch ahead of anything buffered meanwhile.
func (bp *BufferedPublisher) putBack(batch []model.IndicatorResult) {
	bp.mu.Lock()
	buf := append(batch, bp.buffer...)
	dropped := 0
	if over := len(buf) - bp.maxBuf; over > 0 {
		buf = buf[over:]
		dropped = over
	}
	bp.buffer = buf
	n := len(buf)
	bp.mu.Unlock()

	if bp.OnBuffer != nil {
		bp.OnBuffer(n)
	}
	if dropped > 0 && bp.OnDropped != nil {
		bp.OnDropped(dropped)
	}
}
