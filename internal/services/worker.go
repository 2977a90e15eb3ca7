package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrWorkerStopped = errors.New("worker stopped")

// Job is a triggered run waiting for a worker.
type Job struct {
	ID      uuid.UUID
	Session string
	Run     *Run
}

type Worker interface {
	Start(ctx context.Context)
	Stop()
	// EnqueueJob blocks until the job is queued. It fails once the worker is
	// stopped; the caller must then abort the run.
	EnqueueJob(job Job) error
}

type worker struct {
	jobQueue    chan Job
	concurrency int
	timeout     time.Duration
	wg          sync.WaitGroup
	stopChan    chan struct{}
	stopOnce    sync.Once
	logger      *zap.Logger

	// Held shared by EnqueueJob; Stop takes it exclusively so no send can
	// land after the final drain.
	enqueueMu sync.RWMutex
}

func NewWorker(concurrency, queueSize int, timeout time.Duration, logger *zap.Logger) Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &worker{
		jobQueue:    make(chan Job, queueSize),
		concurrency: concurrency,
		timeout:     timeout,
		stopChan:    make(chan struct{}),
		logger:      logger,
	}
}

// Start implements Worker. Cancelling ctx stops the worker as Stop does.
func (w *worker) Start(ctx context.Context) {
	w.logger.Info("🚀 Starting worker", zap.Int("concurrency", w.concurrency))

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.processJobs(ctx, i+1)
	}

	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.stopChan:
		}
	}()

	w.logger.Info("✅ Worker started successfully")
}

// Stop implements Worker. Jobs still queued are aborted.
func (w *worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("🛑 Stopping worker...")
		close(w.stopChan)

		// Wait out enqueuers that were already past the stop check
		w.enqueueMu.Lock()
		defer w.enqueueMu.Unlock()
		w.wg.Wait()

		for {
			select {
			case job := <-w.jobQueue:
				job.Run.Abort(ErrWorkerStopped)
			default:
				w.logger.Info("✅ Worker stopped")
				return
			}
		}
	})
}

// EnqueueJob implements Worker.
func (w *worker) EnqueueJob(job Job) error {
	w.enqueueMu.RLock()
	defer w.enqueueMu.RUnlock()

	select {
	case <-w.stopChan:
		w.logger.Warn("⚠️  Worker stopped, cannot enqueue job", zap.String("job", job.ID.String()))
		return ErrWorkerStopped
	default:
	}

	select {
	case w.jobQueue <- job:
		w.logger.Debug("📥 Job enqueued",
			zap.String("job", job.ID.String()),
			zap.String("pipeline", string(job.Run.Pipeline)),
		)
		return nil
	case <-w.stopChan:
		w.logger.Warn("⚠️  Worker stopped, cannot enqueue job", zap.String("job", job.ID.String()))
		return ErrWorkerStopped
	}
}

func (w *worker) processJobs(ctx context.Context, workerID int) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopChan:
			w.logger.Debug("👷 Worker stopped", zap.Int("worker", workerID))
			return
		case <-ctx.Done():
			w.logger.Debug("👷 Worker context done", zap.Int("worker", workerID))
			return
		case job := <-w.jobQueue:
			w.run(ctx, workerID, job)
		}
	}
}

func (w *worker) run(ctx context.Context, workerID int, job Job) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	fields := []zap.Field{
		zap.Int("worker", workerID),
		zap.String("job", job.ID.String()),
		zap.String("session", job.Session),
		zap.String("pipeline", string(job.Run.Pipeline)),
	}
	w.logger.Debug("👷 Worker processing job", fields...)

	if err := job.Run.Execute(ctx); err != nil {
		w.logger.Warn("❌ Worker failed to process job", append(fields, zap.Error(err))...)
		return
	}
	w.logger.Debug("✅ Worker completed job", fields...)
}
