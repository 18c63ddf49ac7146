package work

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type job[T any] struct {
	Job[T]
	done chan struct{}
}

// Processor executes submitted jobs one at a time and keeps their outcomes for polling.
type Processor[T any] struct {
	timeout time.Duration
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	slot   chan struct{} // One job executes at a time
	wg     sync.WaitGroup

	mu      sync.RWMutex
	jobs    map[string]*job[T]
	stopped bool
}

// NewProcessor creates a processor. A zero timeout uses WorkTimeout.
func NewProcessor[T any](timeout time.Duration, log zerolog.Logger) *Processor[T] {
	if timeout <= 0 {
		timeout = WorkTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Processor[T]{
		timeout: timeout,
		log:     log.With().Str("component", "work").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		slot:    make(chan struct{}, 1),
		jobs:    make(map[string]*job[T]),
	}
}

// Submit queues fn and returns the job ID.
func (p *Processor[T]) Submit(fn Func[T]) (string, error) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return "", ErrStopped
	}
	id := uuid.New().String()
	j := &job[T]{
		Job:  Job[T]{ID: id, Status: StatusQueued, SubmittedAt: time.Now()},
		done: make(chan struct{}),
	}
	p.jobs[id] = j
	p.wg.Add(1)
	p.mu.Unlock()

	p.log.Debug().Str("job_id", id).Msg("Job submitted")
	go p.execute(j, fn)
	return id, nil
}

func (p *Processor[T]) execute(j *job[T], fn Func[T]) {
	defer p.wg.Done()
	defer close(j.done)

	select {
	case p.slot <- struct{}{}:
	case <-p.ctx.Done():
		var zero T
		p.finish(j, zero, p.ctx.Err())
		return
	}
	defer func() { <-p.slot }()

	p.mu.Lock()
	j.Status = StatusRunning
	j.StartedAt = time.Now()
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	outcome := <-Submit(ctx, func(ctx context.Context) (T, error) {
		return fn(ctx, j.ID)
	})
	p.finish(j, outcome.Value, outcome.Err)
}

func (p *Processor[T]) finish(j *job[T], value T, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	j.FinishedAt = time.Now()
	j.Value = value
	j.Err = err
	switch {
	case err == nil:
		j.Status = StatusSucceeded
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		j.Status = StatusCancelled
	default:
		j.Status = StatusFailed
	}

	event := p.log.Info()
	if err != nil {
		event = p.log.Error().Err(err)
	}
	event.Str("job_id", j.ID).Str("status", string(j.Status)).Msg("Job finished")
}

// Get returns a snapshot of a job.
func (p *Processor[T]) Get(id string) (Job[T], bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	j, ok := p.jobs[id]
	if !ok {
		return Job[T]{}, false
	}
	return j.Job, true
}

// Wait blocks until the job finishes or ctx is done.
func (p *Processor[T]) Wait(ctx context.Context, id string) (Job[T], error) {
	p.mu.RLock()
	j, ok := p.jobs[id]
	p.mu.RUnlock()
	if !ok {
		return Job[T]{}, ErrUnknownJob
	}

	select {
	case <-j.done:
		snapshot, _ := p.Get(id)
		return snapshot, nil
	case <-ctx.Done():
		return Job[T]{}, ctx.Err()
	}
}

// Stop cancels running and queued jobs and waits for them to return.
func (p *Processor[T]) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
