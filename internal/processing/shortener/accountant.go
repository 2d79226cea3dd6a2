package shortener

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atalho/atalho-url/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// ClickSink applies one accounted click. The store-backed sink increments
// the counter directly; the Kafka sink publishes the event for a consumer
// to apply.
type ClickSink interface {
	Apply(ctx context.Context, code string, at time.Time) error
}

// StoreClickSink applies clicks straight onto the store.
type StoreClickSink struct {
	store Store
}

func NewStoreClickSink(store Store) *StoreClickSink { return &StoreClickSink{store: store} }

func (s *StoreClickSink) Apply(ctx context.Context, code string, at time.Time) error {
	return s.store.IncrementClick(ctx, code, at)
}

type AccountantOptions struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryDelay   time.Duration
	ApplyTimeout time.Duration
}

// Accountant records clicks off the redirect critical path. Record never
// blocks: events go onto a bounded queue consumed by workers, and when the
// queue is full the event is dropped and counted. A lost increment is an
// accepted, bounded data-quality defect; a slow redirect is not.
type Accountant struct {
	sink         ClickSink
	queue        chan clickEvent
	maxRetries   int
	retryDelay   time.Duration
	applyTimeout time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	dropped atomic.Int64
	now     func() time.Time
}

type clickEvent struct {
	code string
	at   time.Time
}

func NewAccountant(sink ClickSink, opts AccountantOptions) *Accountant {
	const (
		defaultQueueSize    = 10_000
		defaultWorkers      = 2
		defaultMaxRetries   = 3
		defaultRetryDelay   = 100 * time.Millisecond
		defaultApplyTimeout = 2 * time.Second
	)

	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.ApplyTimeout <= 0 {
		opts.ApplyTimeout = defaultApplyTimeout
	}

	a := &Accountant{
		sink:         sink,
		queue:        make(chan clickEvent, opts.QueueSize),
		maxRetries:   opts.MaxRetries,
		retryDelay:   opts.RetryDelay,
		applyTimeout: opts.ApplyTimeout,
		stopCh:       make(chan struct{}),
		now:          time.Now,
	}

	a.wg.Add(opts.Workers)
	for range opts.Workers {
		go a.worker()
	}

	return a
}

// Record enqueues a click for the given code. It never blocks and never
// reports failure to the caller.
func (a *Accountant) Record(code string) {
	if code == "" {
		return
	}

	select {
	case a.queue <- clickEvent{code: code, at: a.now().UTC()}:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns the number of clicks discarded because the queue was full.
func (a *Accountant) Dropped() int64 {
	return a.dropped.Load()
}

// Shutdown stops the workers after draining the queue, or returns early when
// ctx expires.
func (a *Accountant) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.stopCh) })

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Accountant) worker() {
	defer a.wg.Done()

	for {
		select {
		case ev := <-a.queue:
			a.apply(ev)
		case <-a.stopCh:
			// Drain whatever is already queued, then exit.
			for {
				select {
				case ev := <-a.queue:
					a.apply(ev)
				default:
					return
				}
			}
		}
	}
}

func (a *Accountant) apply(ev clickEvent) {
	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(a.retryDelay)
		}

		ctx, cancel := context.WithTimeout(context.Background(), a.applyTimeout)
		err := a.sink.Apply(ctx, ev.code, ev.at)
		cancel()

		if err == nil {
			return
		}
		if errors.Is(err, ErrNotFound) {
			// The link was deleted between resolve and accounting.
			return
		}
		lastErr = err
	}

	logger.Warn("click dropped after retries",
		zap.String("code", ev.code),
		zap.Int("retries", a.maxRetries),
		zap.Error(lastErr),
	)
}
