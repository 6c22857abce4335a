package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Task is a keyed function run by the pool.
type Task struct {
	Key string
	Run func(ctx context.Context) error

	index int
}

// Execute runs the task.
func (t *Task) Execute(ctx context.Context) Result {
	start := time.Now()
	err := ctx.Err()
	if err == nil {
		err = t.Run(ctx)
	}
	return &TaskResult{Key: t.Key, Err: err, Duration: time.Since(start), index: t.index}
}

// TaskResult is the outcome of one task.
type TaskResult struct {
	Key      string
	Err      error
	Duration time.Duration

	index int
}

// GetError returns the error from the task
func (r *TaskResult) GetError() error {
	return r.Err
}

// RunTasks runs tasks with at most workers at once and returns one result
// per task in submission order. Tasks not started before ctx is cancelled
// report ctx.Err().
func RunTasks(ctx context.Context, workers int, tasks []Task) []*TaskResult {
	if len(tasks) == 0 {
		return []*TaskResult{}
	}

	pool := NewPool(ctx, workers)
	pool.Start()

	for i := range tasks {
		task := tasks[i]
		task.index = i
		if !pool.Submit(&task) {
			break
		}
	}
	results := pool.Wait()

	out := make([]*TaskResult, len(tasks))
	for _, r := range results {
		tr := r.(*TaskResult)
		out[tr.index] = tr
	}
	for i, r := range out {
		if r == nil {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			out[i] = &TaskResult{Key: tasks[i].Key, Err: err, index: i}
		}
	}
	return out
}

// ReadLinesFromFile reads one entry per line, skipping blanks, # comments
// and duplicates.
func ReadLinesFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var lines []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !seen[line] {
			seen[line] = true
			lines = append(lines, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return lines, nil
}
