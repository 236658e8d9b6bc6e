package runtime

import (
	"context"
	goruntime "runtime"
	"sync"
)

// WorkerPool runs independent jobs on a fixed number of goroutines. The
// deployment uses it to evaluate stateless filters over a batch of facts.
type WorkerPool struct {
	workerCount int
}

// NewWorkerPool creates a new worker pool
// workerCount: number of worker goroutines (0 = use NumCPU)
func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = goruntime.NumCPU()
	}
	return &WorkerPool{
		workerCount: workerCount,
	}
}

// Execute calls op for every index in [0, n). It returns the error of the
// lowest failing index, or the context error if ctx is cancelled first.
func (p *WorkerPool) Execute(ctx context.Context, n int, op func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}

	errs := make([]error, n)
	jobs := make(chan int, n)

	var wg sync.WaitGroup
	workers := p.workerCount
	if workers > n {
		workers = n
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := ctx.Err(); err != nil {
					errs[idx] = err
					continue
				}
				errs[idx] = op(ctx, idx)
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
