// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package parallel provides the bounded worker pool that runs whole
// document pipelines concurrently across a batch. Documents are fully
// independent until the comparative stage, so the pool imposes no
// ordering; results arrive as they finish.
package parallel

import (
	"context"
	"sync"
	"time"

	"policyscan/internal/analysis"
	"policyscan/internal/observability"
	"policyscan/internal/resilience"
)

// DefaultWorkers is the default batch concurrency limit.
const DefaultWorkers = 3

// jobTimeout bounds one whole document pipeline, chunk retries included.
const jobTimeout = 30 * time.Minute

// Processor runs one document through the analysis pipeline.
type Processor interface {
	AnalyzeDocument(ctx context.Context, appName, url, text string, force bool) (*analysis.Record, error)
}

// Job is one document to analyze.
type Job struct {
	JobID   string
	AppName string
	URL     string
	Text    string
	Force   bool
}

// Result is the outcome of one document pipeline.
type Result struct {
	JobID    string
	AppName  string
	Record   *analysis.Record
	Error    error
	Duration time.Duration
}

// WorkerPool fans document jobs out to a fixed set of workers.
type WorkerPool struct {
	workers   int
	processor Processor
	jobs      chan *Job
	results   chan *Result
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	observer  *observability.StandardObserver
}

// NewWorkerPool creates a pool of the given size over a processor. A
// non-positive size falls back to DefaultWorkers.
func NewWorkerPool(workers int, processor Processor, observer *observability.StandardObserver) *WorkerPool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		workers:   workers,
		processor: processor,
		jobs:      make(chan *Job, workers*2),
		results:   make(chan *Result, workers*2),
		ctx:       ctx,
		cancel:    cancel,
		observer:  observer,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Close signals that no more jobs will be submitted.
func (wp *WorkerPool) Close() {
	close(wp.jobs)
}

// Stop waits for in-flight jobs to finish and closes the results
// channel. Call Close first.
func (wp *WorkerPool) Stop() {
	wp.wg.Wait()
	close(wp.results)
	wp.cancel()
}

// Cancel aborts the pool. Already-cached records stay intact; the
// workflow resumes them from its checkpoint on the next run.
func (wp *WorkerPool) Cancel() {
	wp.cancel()
}

// Submit queues a job, blocking when the queue is full.
func (wp *WorkerPool) Submit(job *Job) {
	select {
	case wp.jobs <- job:
	case <-wp.ctx.Done():
	}
}

// Results returns the results channel.
func (wp *WorkerPool) Results() <-chan *Result {
	return wp.results
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobs {
		result := wp.processJob(job, id)

		select {
		case wp.results <- result:
		case <-wp.ctx.Done():
			return
		}
	}
}

func (wp *WorkerPool) processJob(job *Job, workerID int) *Result {
	start := time.Now()

	var finishTiming func(bool, map[string]interface{})
	if wp.observer != nil {
		finishTiming = wp.observer.StartTiming("worker_pool", "process_document", job.AppName)
	}

	jobCtx, cancel := context.WithTimeout(wp.ctx, jobTimeout)
	defer cancel()

	rec, err := wp.processor.AnalyzeDocument(jobCtx, job.AppName, job.URL, job.Text, job.Force)
	if err != nil && resilience.IsCircuitBreakerError(err) {
		// Don't expose circuit breaker internals to batch reports.
		err = resilience.NewTransientError("analysis service temporarily unavailable", err)
	}

	duration := time.Since(start)
	if finishTiming != nil {
		finishTiming(err == nil, map[string]interface{}{
			"worker_id":   workerID,
			"duration_ms": duration.Milliseconds(),
			"had_error":   err != nil,
		})
	}

	return &Result{
		JobID:    job.JobID,
		AppName:  job.AppName,
		Record:   rec,
		Error:    err,
		Duration: duration,
	}
}
