package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunKeepsJobOrder(t *testing.T) {
	var jobs []Job
	for i := range 10 {
		id := fmt.Sprintf("job-%d", i)
		jobs = append(jobs, Job{ID: id, Handler: func(ctx context.Context) (string, error) {
			time.Sleep(time.Duration(10-i) * time.Millisecond)
			if i == 3 {
				return "", errors.New("boom")
			}
			return "out " + id, nil
		}})
	}

	results := NewPool(3).Run(context.Background(), jobs)
	require.Len(t, results, 10)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("job-%d", i), r.ID)
		if i == 3 {
			assert.EqualError(t, r.Err, "boom")
			continue
		}
		assert.NoError(t, r.Err)
		assert.Equal(t, "out "+r.ID, r.Output)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	var jobs []Job
	for i := range 12 {
		jobs = append(jobs, Job{ID: fmt.Sprint(i), Handler: func(ctx context.Context) (string, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return "", nil
		}})
	}

	NewPool(2).Run(context.Background(), jobs)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Positive(t, peak.Load())
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	jobs := []Job{
		{ID: "first", Handler: func(ctx context.Context) (string, error) {
			cancel()
			<-release
			return "done", nil
		}},
		{ID: "second", Handler: func(ctx context.Context) (string, error) { return "never", nil }},
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	results := NewPool(1).Run(ctx, jobs)

	assert.Equal(t, "done", results[0].Output)
	assert.ErrorIs(t, results[1].Err, context.Canceled)
	assert.Empty(t, results[1].Output)
}

func TestNewPoolDefault(t *testing.T) {
	assert.Equal(t, DefaultWorkers, NewPool(0).maxWorkers)
	assert.Empty(t, NewPool(2).Run(context.Background(), nil))
}
