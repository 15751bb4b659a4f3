package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dsi-platform/screening-service/internal/domain"
	"github.com/dsi-platform/screening-service/internal/observability"
)

var (
	// ErrQueueStopped is returned by Enqueue after Stop.
	ErrQueueStopped = errors.New("job queue stopped")
	// ErrDuplicateJob is returned when the case is already queued or in flight.
	ErrDuplicateJob = errors.New("job already queued for case")
)

// State describes the worker lifecycle.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Handler processes queued jobs. Fail is invoked with the error or recovered
// panic of a Process call that did not complete.
type Handler interface {
	Process(ctx context.Context, job domain.Job) error
	Fail(ctx context.Context, job domain.Job, err error)
}

// Queue is an unbounded FIFO drained by at most one goroutine. The goroutine is
// started by Enqueue when the queue is idle and exits once the queue is empty.
type Queue struct {
	mu      sync.Mutex
	pending []domain.Job
	tracked map[string]struct{}
	state   State
	done    chan struct{}

	handler Handler
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewQueue creates an idle queue dispatching to handler.
func NewQueue(handler Handler, logger *zap.Logger, metrics *observability.Metrics) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		tracked: make(map[string]struct{}),
		handler: handler,
		logger:  logger.Named("queue"),
		metrics: metrics,
	}
}

// Enqueue appends job to the tail. It never waits for processing.
func (q *Queue) Enqueue(job domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state == StateStopped {
		return ErrQueueStopped
	}
	if _, ok := q.tracked[job.CaseID]; ok {
		return ErrDuplicateJob
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	q.pending = append(q.pending, job)
	q.tracked[job.CaseID] = struct{}{}
	q.metrics.SetQueueDepth(len(q.pending))

	if q.state == StateIdle {
		q.state = StateRunning
		q.done = make(chan struct{})
		go q.run(q.done)
	}
	return nil
}

// State returns the current lifecycle state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Len returns the number of jobs waiting, excluding the one in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Has reports whether a job for caseID is queued or in flight.
func (q *Queue) Has(caseID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.tracked[caseID]
	return ok
}

// WaitIdle blocks until the worker goroutine has exited or ctx is done.
func (q *Queue) WaitIdle(ctx context.Context) error {
	for {
		q.mu.Lock()
		if q.state != StateRunning && q.done == nil {
			q.mu.Unlock()
			return nil
		}
		done := q.done
		q.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}

		q.mu.Lock()
		if q.done == done {
			q.done = nil
		}
		q.mu.Unlock()
	}
}

// Stop rejects further jobs and waits for the in-flight job to finish. Jobs still
// waiting are dropped; their cases stay in initial screening for reconciliation.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.state = StateStopped
	dropped := len(q.pending)
	q.mu.Unlock()

	if dropped > 0 {
		q.logger.Warn("queue stopped with pending jobs", zap.Int("pending", dropped))
	}
	return q.WaitIdle(ctx)
}

func (q *Queue) run(done chan struct{}) {
	defer close(done)
	for {
		q.mu.Lock()
		if q.state == StateStopped {
			q.mu.Unlock()
			return
		}
		if len(q.pending) == 0 {
			q.state = StateIdle
			q.mu.Unlock()
			return
		}
		job := q.pending[0]
		q.pending[0] = domain.Job{}
		q.pending = q.pending[1:]
		q.metrics.SetQueueDepth(len(q.pending))
		q.mu.Unlock()

		q.execute(job)

		q.mu.Lock()
		delete(q.tracked, job.CaseID)
		q.mu.Unlock()
	}
}

func (q *Queue) execute(job domain.Job) {
	ctx := context.Background()
	start := time.Now()
	logger := q.logger.With(zap.String("case_id", job.CaseID))

	if err := q.process(ctx, job); err != nil {
		logger.Error("job failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		q.fail(ctx, job, err)
		q.metrics.RecordJob("failed", time.Since(start))
		return
	}
	logger.Debug("job processed", zap.Duration("duration", time.Since(start)))
	q.metrics.RecordJob("processed", time.Since(start))
}

func (q *Queue) process(ctx context.Context, job domain.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing case %s: %v", job.CaseID, r)
		}
	}()
	return q.handler.Process(ctx, job)
}

func (q *Queue) fail(ctx context.Context, job domain.Job, cause error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("failure handler panicked", zap.String("case_id", job.CaseID), zap.Any("panic", r))
		}
	}()
	q.handler.Fail(ctx, job, cause)
}
