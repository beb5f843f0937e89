package persist

import (
	"context"
	"sync"
	"time"

	"github.com/koustreak/dbbrowse/internal/logger"
)

// DefaultDebounceDelay is the quiet period before a pending payload is saved.
const DefaultDebounceDelay = 500 * time.Millisecond

// SaveFunc persists one payload.
type SaveFunc[T any] func(ctx context.Context, v T) error

// DebouncedWriter coalesces rapid writes of one logical document into a
// single save of the last payload. Saves for one writer never overlap.
type DebouncedWriter[T any] struct {
	name  string
	delay time.Duration
	save  SaveFunc[T]
	log   *logger.Logger

	mu      sync.Mutex
	pending T
	dirty   bool
	writing bool
	closed  bool
	timer   *time.Timer

	ioMu sync.Mutex
}

// NewDebouncedWriter returns a writer that calls save at most once per
// quiet period. delay <= 0 uses DefaultDebounceDelay.
func NewDebouncedWriter[T any](name string, delay time.Duration, save SaveFunc[T], log *logger.Logger) *DebouncedWriter[T] {
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	return &DebouncedWriter[T]{
		name:  name,
		delay: delay,
		save:  save,
		log:   logger.OrNop(log).With().Str("writer", name).Logger(),
	}
}

// Write replaces the pending payload and restarts the delay. While a save is
// in flight the timer is left alone; the save re-arms it when it finishes.
func (w *DebouncedWriter[T]) Write(v T) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = v
	w.dirty = true
	if w.writing || w.closed {
		return
	}
	w.arm()
}

// Dirty reports whether a payload is waiting to be saved.
func (w *DebouncedWriter[T]) Dirty() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dirty
}

// Flush cancels the timer and saves the pending payload now, if any.
func (w *DebouncedWriter[T]) Flush(ctx context.Context) error {
	w.mu.Lock()
	w.stop()
	w.mu.Unlock()
	return w.flush(ctx)
}

// Close flushes and disables the timer. Later writes are only saved by an
// explicit Flush.
func (w *DebouncedWriter[T]) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.stop()
	w.mu.Unlock()
	return w.flush(ctx)
}

// arm (re)starts the timer. Caller holds mu.
func (w *DebouncedWriter[T]) arm() {
	w.stop()
	w.timer = time.AfterFunc(w.delay, w.fire)
}

// stop cancels the timer. Caller holds mu.
func (w *DebouncedWriter[T]) stop() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *DebouncedWriter[T]) fire() {
	if err := w.flush(context.Background()); err != nil {
		w.log.WarnWith("debounced save failed", err, nil)
	}
}

func (w *DebouncedWriter[T]) flush(ctx context.Context) error {
	w.ioMu.Lock()
	defer w.ioMu.Unlock()

	w.mu.Lock()
	if !w.dirty {
		w.mu.Unlock()
		return nil
	}
	v := w.pending
	w.dirty = false
	w.writing = true
	w.mu.Unlock()

	err := w.save(ctx, v)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.writing = false
	if err != nil && !w.dirty {
		// keep the payload for the next flush
		w.dirty = true
		return err
	}
	if w.dirty && !w.closed {
		w.arm()
	}
	return err
}
