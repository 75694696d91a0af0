package indexer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gnana997/cjsexports/pkg/util"
)

// ErrPoolStopped is returned by Submit after Stop or FinishSubmitting.
var ErrPoolStopped = errors.New("worker pool is stopped")

// FileJob is a module to compute exports for.
type FileJob struct {
	FilePath string
	JobID    int
}

// FileResult is the computed record for a job.
type FileResult struct {
	FilePath string
	Record   *ExportRecord
	JobID    int
}

// WorkerPool computes export records on a fixed set of goroutines.
//
// **Usage:**
//
//	pool := NewWorkerPool(numWorkers, analyzer, logger)
//	pool.Start()
//	defer pool.Stop()
//
//	for _, file := range files {
//	    pool.Submit(FileJob{FilePath: file})
//	}
//	pool.FinishSubmitting()
//
//	// Read len(files) values from Results() and Errors() combined.
type WorkerPool struct {
	numWorkers int
	jobs       chan FileJob
	results    chan FileResult
	errors     chan FileError
	wg         sync.WaitGroup
	analyzer   *Analyzer
	logger     *slog.Logger

	ctx        context.Context
	cancel     context.CancelFunc
	started    atomic.Bool
	stopped    atomic.Bool
	jobsClosed atomic.Bool

	jobsSubmitted atomic.Int64
	jobsProcessed atomic.Int64
	jobsFailed    atomic.Int64
}

// NewWorkerPool creates a new worker pool. numWorkers of 0 uses
// util.GetOptimalPoolSize(), which matches the parser pool size so
// workers never wait on each other for a parser.
func NewWorkerPool(numWorkers int, analyzer *Analyzer, logger *slog.Logger) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = util.GetOptimalPoolSize()
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		numWorkers: numWorkers,
		jobs:       make(chan FileJob, numWorkers*2),
		results:    make(chan FileResult, numWorkers),
		errors:     make(chan FileError, numWorkers),
		analyzer:   analyzer,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start spawns the worker goroutines. It must be called before Submit.
func (wp *WorkerPool) Start() {
	if !wp.started.CompareAndSwap(false, true) {
		wp.logger.Warn("WorkerPool already started")
		return
	}

	wp.logger.Debug("Starting worker pool", "workers", wp.numWorkers)

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			return

		case job, ok := <-wp.jobs:
			if !ok {
				return
			}
			wp.processJob(id, job)
		}
	}
}

func (wp *WorkerPool) processJob(workerID int, job FileJob) {
	record, err := wp.analyzer.Exports(job.FilePath)
	if err != nil {
		wp.logger.Debug("Job failed", "worker_id", workerID, "file", job.FilePath, "error", err)
		wp.jobsFailed.Add(1)
		select {
		case wp.errors <- newFileError(job.FilePath, err):
		case <-wp.ctx.Done():
		}
		return
	}

	wp.jobsProcessed.Add(1)
	select {
	case wp.results <- FileResult{FilePath: job.FilePath, Record: record, JobID: job.JobID}:
	case <-wp.ctx.Done():
	}
}

// Submit enqueues a job. It blocks while the queue is full.
func (wp *WorkerPool) Submit(job FileJob) error {
	if wp.stopped.Load() || wp.jobsClosed.Load() {
		return ErrPoolStopped
	}

	wp.jobsSubmitted.Add(1)

	select {
	case <-wp.ctx.Done():
		return ErrPoolStopped
	case wp.jobs <- job:
		return nil
	}
}

// Results returns the results channel.
func (wp *WorkerPool) Results() <-chan FileResult {
	return wp.results
}

// Errors returns the errors channel.
func (wp *WorkerPool) Errors() <-chan FileError {
	return wp.errors
}

// FinishSubmitting closes the job queue so workers exit once it drains.
// Safe to call more than once.
func (wp *WorkerPool) FinishSubmitting() {
	if wp.jobsClosed.CompareAndSwap(false, true) {
		close(wp.jobs)
		wp.logger.Debug("Jobs channel closed", "total_submitted", wp.jobsSubmitted.Load())
	}
}

// Wait blocks until all workers have exited.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// Stop cancels outstanding work, waits for workers and closes the result
// channels. Safe to call more than once.
func (wp *WorkerPool) Stop() {
	if !wp.stopped.CompareAndSwap(false, true) {
		return
	}

	wp.FinishSubmitting()
	wp.cancel()
	wp.wg.Wait()

	close(wp.results)
	close(wp.errors)

	wp.logger.Debug("Worker pool stopped",
		"jobs_submitted", wp.jobsSubmitted.Load(),
		"jobs_processed", wp.jobsProcessed.Load(),
		"jobs_failed", wp.jobsFailed.Load())
}

// GetStats returns current worker pool statistics.
func (wp *WorkerPool) GetStats() WorkerPoolStats {
	return WorkerPoolStats{
		NumWorkers:    wp.numWorkers,
		JobsSubmitted: wp.jobsSubmitted.Load(),
		JobsProcessed: wp.jobsProcessed.Load(),
		JobsFailed:    wp.jobsFailed.Load(),
		QueueLength:   len(wp.jobs),
	}
}

// WorkerPoolStats contains statistics about the worker pool.
type WorkerPoolStats struct {
	NumWorkers    int
	JobsSubmitted int64
	JobsProcessed int64
	JobsFailed    int64
	QueueLength   int // Current jobs in queue
}
