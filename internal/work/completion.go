package work

import (
	"errors"
	"time"
)

// ErrUnknownJob is returned for job IDs the processor does not hold.
var ErrUnknownJob = errors.New("unknown job")

// Prune forgets finished jobs that completed more than olderThan ago.
// Returns the number of jobs removed.
func (p *Processor[T]) Prune(olderThan time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for id, j := range p.jobs {
		if j.Status.Done() && time.Since(j.FinishedAt) > olderThan {
			delete(p.jobs, id)
			removed++
		}
	}
	return removed
}

// Counts returns how many held jobs are in each status.
func (p *Processor[T]) Counts() map[Status]int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	counts := make(map[Status]int)
	for _, j := range p.jobs {
		counts[j.Status]++
	}
	return counts
}
