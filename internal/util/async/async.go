package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Task represents an asynchronous operation with a name and function.
type Task struct {
	Name string
	Func func(context.Context) error
}

// Result is the outcome of one task run by RunStaggered.
type Result struct {
	Name string
	Err  error
}

// RunParallel executes multiple tasks in parallel and waits for all of them.
// Errors of every failing task are joined and wrapped with the task name.
//
// Example:
//
//	tasks := []Task{
//	    {Name: "group-1", Func: verifyGroup1},
//	    {Name: "group-2", Func: verifyGroup2},
//	}
//	if err := RunParallel(ctx, tasks); err != nil {
//	    return err
//	}
func RunParallel(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}

	resultChan := make(chan Result, len(tasks))

	for _, task := range tasks {
		go func() {
			resultChan <- Result{Name: task.Name, Err: task.Func(ctx)}
		}()
	}

	var errs []error
	for range len(tasks) {
		res := <-resultChan
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Name, res.Err))
		}
	}

	return errors.Join(errs...)
}

// RunStaggered starts tasks one after another with delay between launches,
// then blocks until every started task has finished. Results are returned in
// task order. When ctx is cancelled during the stagger, tasks that were not
// launched yet report ctx.Err() without running.
func RunStaggered(ctx context.Context, tasks []Task, delay time.Duration) []Result {
	results := make([]Result, len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		results[i].Name = task.Name

		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				for j := i; j < len(tasks); j++ {
					results[j] = Result{Name: tasks[j].Name, Err: ctx.Err()}
				}
				wg.Wait()
				return results
			case <-time.After(delay):
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i].Err = task.Func(ctx)
		}()
	}

	wg.Wait()
	return results
}
