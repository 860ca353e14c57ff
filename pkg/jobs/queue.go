// Package jobs runs background work on an in-process worker pool. Work is partitioned into lanes by
// job key: every job with the same key lands on the same lane and runs in enqueue order.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrNotRunning is returned by Enqueue before Start or after Stop.
var ErrNotRunning = errors.New("queue not running")

// Job is a unit of background work.
type Job struct {
	ID       string
	Type     string
	Key      string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job. A returned error schedules a retry until MaxRetries is exhausted.
type Handler func(context.Context, Job) error

// QueueConfig tunes the pool.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	// RetryDelay is the first backoff; each further attempt doubles it up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// Coalesce drops a keyed job when another job with that key is still waiting in its lane.
	Coalesce bool
	Logger   *zap.Logger
}

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	Enqueued  uint64
	Coalesced uint64
	Succeeded uint64
	Retried   uint64
	Dropped   uint64
}

// Queue is the keyed worker pool.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig
	log     *zap.SugaredLogger

	lanes []chan Job
	rr    uint64

	pendingMu sync.Mutex
	pending   map[string]int

	enqueued, coalesced, succeeded, retried, dropped uint64

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// NewQueue builds a stopped queue; call Start before enqueueing.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 16
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = 30 * cfg.RetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	lanes := make([]chan Job, cfg.Workers)
	for i := range lanes {
		lanes[i] = make(chan Job, cfg.BufferSize)
	}
	return &Queue{
		name:    name,
		handler: handler,
		cfg:     cfg,
		log:     cfg.Logger.Sugar().With("queue", name),
		lanes:   lanes,
		pending: make(map[string]int),
	}
}

// Start launches one goroutine per lane. Calling it again is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := range q.lanes {
		q.wg.Add(1)
		go q.work(q.lanes[i])
	}
	q.running = true
	q.log.Infow("queue started", "workers", len(q.lanes))
}

// Stop cancels in-flight handlers and waits for the workers. Jobs still buffered are discarded.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()
	q.log.Infow("queue stopped", "stats", q.Stats())
}

// Enqueue hands job to the lane that owns its key, blocking while that lane is full.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	ctx, running := q.ctx, q.running
	q.mu.Unlock()
	if !running {
		return fmt.Errorf("%s: %w", q.name, ErrNotRunning)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	if !q.reserve(job) {
		atomic.AddUint64(&q.coalesced, 1)
		q.log.Debugw("job coalesced", "job_id", job.ID, "key", job.Key)
		return nil
	}

	select {
	case <-ctx.Done():
		q.release(job)
		return fmt.Errorf("%s: %w", q.name, ErrNotRunning)
	case q.lanes[q.lane(job.Key)] <- job:
		atomic.AddUint64(&q.enqueued, 1)
		return nil
	}
}

// Stats reports the counters accumulated since construction.
func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued:  atomic.LoadUint64(&q.enqueued),
		Coalesced: atomic.LoadUint64(&q.coalesced),
		Succeeded: atomic.LoadUint64(&q.succeeded),
		Retried:   atomic.LoadUint64(&q.retried),
		Dropped:   atomic.LoadUint64(&q.dropped),
	}
}

func (q *Queue) reserve(job Job) bool {
	if job.Key == "" {
		return true
	}
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	if q.cfg.Coalesce && q.pending[job.Key] > 0 {
		return false
	}
	q.pending[job.Key]++
	return true
}

func (q *Queue) release(job Job) {
	if job.Key == "" {
		return
	}
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	if q.pending[job.Key] <= 1 {
		delete(q.pending, job.Key)
		return
	}
	q.pending[job.Key]--
}

func (q *Queue) lane(key string) int {
	n := uint32(len(q.lanes))
	if n == 1 {
		return 0
	}
	if key == "" {
		return int(atomic.AddUint64(&q.rr, 1) % uint64(n))
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % n)
}

func (q *Queue) work(lane <-chan Job) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-lane:
			// Once picked up the job no longer blocks newer work for its key.
			q.release(job)
			if err := q.handler(q.ctx, job); err != nil {
				q.retry(job, err)
				continue
			}
			atomic.AddUint64(&q.succeeded, 1)
		}
	}
}

func (q *Queue) retry(job Job, cause error) {
	job.Attempt++
	if job.Attempt > q.cfg.MaxRetries {
		atomic.AddUint64(&q.dropped, 1)
		q.log.Errorw("job exhausted retries", "job_id", job.ID, "type", job.Type, "key", job.Key, "attempts", job.Attempt, "error", cause)
		return
	}
	atomic.AddUint64(&q.retried, 1)
	delay := q.backoff(job.Attempt)
	q.log.Warnw("job failed, retrying", "job_id", job.ID, "type", job.Type, "key", job.Key, "attempt", job.Attempt, "delay", delay, "error", cause)

	go func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-q.ctx.Done():
		case <-t.C:
			if err := q.Enqueue(job); err != nil {
				q.log.Errorw("requeue failed", "job_id", job.ID, "error", err)
			}
		}
	}()
}

func (q *Queue) backoff(attempt int) time.Duration {
	d := q.cfg.RetryDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= q.cfg.MaxRetryDelay {
			return q.cfg.MaxRetryDelay
		}
	}
	return d
}
