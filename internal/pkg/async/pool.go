// Package async provides a small worker pool for fanning out independent
// read queries, used by the dashboard aggregation endpoint.
package async

import (
	"context"
	"sync"
)

// Task is a named unit of work. The name keys its Result.
type Task struct {
	Name    string
	Execute func(ctx context.Context) (interface{}, error)
}

type Result struct {
	Name string
	Data interface{}
	Err  error
}

type Pool struct {
	workerCount int
}

func NewPool(workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{workerCount: workerCount}
}

// Execute runs the tasks across the pool's workers and returns results keyed
// by task name. A cancelled context returns whatever completed so far.
func (p *Pool) Execute(ctx context.Context, tasks []Task) map[string]Result {
	pending := make(chan Task)
	// Buffered to task count so workers never block on a slow collector
	completed := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case task, ok := <-pending:
					if !ok {
						return
					}
					data, err := task.Execute(ctx)
					completed <- Result{Name: task.Name, Data: data, Err: err}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(pending)
		for _, task := range tasks {
			select {
			case pending <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	results := make(map[string]Result, len(tasks))
	for i := 0; i < len(tasks); i++ {
		select {
		case result := <-completed:
			results[result.Name] = result
		case <-ctx.Done():
			return results
		}
	}

	wg.Wait()
	return results
}
