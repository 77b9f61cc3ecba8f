package worker

import (
	"context"
	"sync"

	"github.com/martinsuchenak/labconsole/internal/log"
)

// DefaultWorkers is used when a pool is created with a non-positive size.
const DefaultWorkers = 4

// Job is one unit of work, usually a command on a single device.
type Job struct {
	ID      string
	Handler func(context.Context) (string, error)
}

// Result is the outcome of a Job.
type Result struct {
	ID     string
	Output string
	Err    error
}

// Pool runs jobs with bounded concurrency.
type Pool struct {
	maxWorkers int
}

// NewPool creates a pool running at most maxWorkers jobs at a time.
func NewPool(maxWorkers int) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = DefaultWorkers
	}
	return &Pool{maxWorkers: maxWorkers}
}

// Run executes every job and returns the results in job order. Jobs not
// started before ctx is done report ctx.Err().
func (p *Pool) Run(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	queue := make(chan int)

	workers := min(p.maxWorkers, len(jobs))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go p.worker(ctx, i, jobs, results, queue, &wg)
	}

	next := 0
feed:
	for ; next < len(jobs); next++ {
		select {
		case queue <- next:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()

	for i := next; i < len(jobs); i++ {
		results[i] = Result{ID: jobs[i].ID, Err: ctx.Err()}
	}
	return results
}

func (p *Pool) worker(ctx context.Context, id int, jobs []Job, results []Result, queue <-chan int, wg *sync.WaitGroup) {
	defer wg.Done()

	for idx := range queue {
		job := jobs[idx]
		log.Debug("Worker executing job", "worker_id", id, "job_id", job.ID)

		out, err := job.Handler(ctx)
		results[idx] = Result{ID: job.ID, Output: out, Err: err}
	}
}
