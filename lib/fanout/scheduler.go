// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/cpack/lib/clock"
	"github.com/bureau-foundation/cpack/lib/compressor"
)

// Policy decides what happens when a task fails.
type Policy int

const (
	// FailFast cancels every remaining task on the first failure and
	// returns that failure.
	FailFast Policy = iota

	// ContinueOnError runs every task and reports the failures
	// alongside the successes.
	ContinueOnError
)

func (p Policy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case ContinueOnError:
		return "continue"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// ParsePolicy accepts "fail-fast" or "continue".
func ParsePolicy(value string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "fail-fast", "failfast", "":
		return FailFast, nil
	case "continue", "continue-on-error":
		return ContinueOnError, nil
	default:
		return 0, fmt.Errorf("unknown error policy %q (want fail-fast or continue)", value)
	}
}

// Result is the outcome of one successful task.
type Result struct {
	ID    string
	Index int

	// Data is the compressed payload. Results delivered through
	// [Scheduler.Stream] are recorded in the Report with Data nil.
	Data []byte

	// RawSize is the uncompressed length.
	RawSize int64

	Elapsed time.Duration
}

// Report aggregates the outcome of a batch. Every submitted task appears
// exactly once, in either Results or Failures, both ordered by
// submission index.
type Report struct {
	Results  []Result
	Failures []*TaskError

	RawBytes        int64
	CompressedBytes int64
	Elapsed         time.Duration
}

// Err returns nil when every task succeeded and a *PartialFailureError
// otherwise.
func (r *Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return &PartialFailureError{Failures: r.Failures, Total: len(r.Results) + len(r.Failures)}
}

// Scheduler runs compression tasks on a bounded worker pool. The codec is
// the only object shared between workers. The zero value is usable:
// GOMAXPROCS workers, FailFast, no per-task timeout, discarded logs.
type Scheduler struct {
	// Workers bounds the number of tasks in flight. Values below 1
	// select runtime.GOMAXPROCS(0).
	Workers int

	Policy Policy

	// TaskTimeout bounds each task (read plus compress). Zero disables
	// the limit.
	TaskTimeout time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

func (s *Scheduler) workers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (s *Scheduler) clock() clock.Clock {
	if s.Clock == nil {
		return clock.Real()
	}
	return s.Clock
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

// Run compresses every task and returns all results in submission order.
//
// Under FailFast the first failure cancels the batch and is returned as
// a *TaskError with a nil Report. Under ContinueOnError the Report is
// always returned; check [Report.Err] for failed tasks. Cancellation of
// ctx is returned as ctx's error under either policy.
func (s *Scheduler) Run(ctx context.Context, codec compressor.Codec, tasks []Task) (*Report, error) {
	report, err := s.execute(ctx, codec, tasks, func(result Result) (Result, error) {
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Stream compresses every task and hands each result to sink as soon as
// it is ready. sink calls are serialized but arrive in completion order,
// not submission order. The returned Report records each result without
// its Data, so memory is released as the sink consumes it. A sink error
// stops the batch and is returned.
func (s *Scheduler) Stream(ctx context.Context, codec compressor.Codec, tasks []Task, sink func(Result) error) (*Report, error) {
	report, err := s.execute(ctx, codec, tasks, func(result Result) (Result, error) {
		if err := sink(result); err != nil {
			return Result{}, fmt.Errorf("handling %q: %w", result.ID, err)
		}
		result.Data = nil
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// execute is the shared worker loop. deliver runs under the collection
// lock and returns the Result to record.
func (s *Scheduler) execute(ctx context.Context, codec compressor.Codec, tasks []Task, deliver func(Result) (Result, error)) (*Report, error) {
	logger := s.logger()
	started := s.clock().Now()

	group, groupContext := errgroup.WithContext(ctx)
	group.SetLimit(s.workers())

	var (
		lock     sync.Mutex
		report   = &Report{Results: make([]Result, 0, len(tasks))}
		failures []*TaskError
	)

	for index, task := range tasks {
		if groupContext.Err() != nil {
			break
		}
		group.Go(func() error {
			result, err := s.runTask(groupContext, codec, index, task)
			if err != nil {
				taskError := &TaskError{ID: task.ID, Index: index, Err: err}
				if s.Policy == FailFast || ctx.Err() != nil {
					return taskError
				}
				logger.Warn("task failed, continuing", "id", task.ID, "error", err)
				lock.Lock()
				failures = append(failures, taskError)
				lock.Unlock()
				return nil
			}

			lock.Lock()
			defer lock.Unlock()
			recorded, err := deliver(result)
			if err != nil {
				return err
			}
			report.Results = append(report.Results, recorded)
			report.RawBytes += recorded.RawSize
			report.CompressedBytes += int64(len(result.Data))
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(report.Results, func(a, b Result) int { return a.Index - b.Index })
	slices.SortFunc(failures, func(a, b *TaskError) int { return a.Index - b.Index })
	report.Failures = failures
	report.Elapsed = clock.Since(s.clock(), started)

	logger.Debug("compression batch complete",
		"tasks", len(tasks),
		"failed", len(failures),
		"raw_bytes", report.RawBytes,
		"compressed_bytes", report.CompressedBytes,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

// runTask reads and compresses one task under the per-task timeout.
func (s *Scheduler) runTask(ctx context.Context, codec compressor.Codec, index int, task Task) (Result, error) {
	if s.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.TaskTimeout)
		defer cancel()
	}
	started := s.clock().Now()

	if task.Read == nil {
		return Result{}, errors.New("task has no input")
	}
	data, err := task.Read(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("reading input: %w", err)
	}

	encoded, err := codec.Encode(data)
	if err != nil {
		return Result{}, err
	}
	// Encode does not observe the context; a timeout that expired during
	// compression still fails the task.
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	result := Result{
		ID:      task.ID,
		Index:   index,
		Data:    encoded,
		RawSize: int64(len(data)),
		Elapsed: clock.Since(s.clock(), started),
	}
	s.logger().Debug("task compressed",
		"id", task.ID,
		"raw_bytes", result.RawSize,
		"compressed_bytes", len(encoded),
	)
	return result, nil
}
