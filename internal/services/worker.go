package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/talent-match/internal/repositories"
)

// Worker drains the ingestion queue with a fixed pool of goroutines and
// periodically sweeps the store for jobs that stalled mid-pipeline (crashed
// process, transient dependency outage).
type Worker interface {
	Start(ctx context.Context)
	Stop()
	EnqueueJob(jobID uuid.UUID)
}

type worker struct {
	ingestRepo  repositories.IngestionRepository
	ingestion   IngestionService
	jobQueue    chan uuid.UUID
	concurrency int
	maxAttempts int
	staleAfter  time.Duration
	pollEvery   time.Duration
	wg          sync.WaitGroup
	stopChan    chan struct{}
	logger      *zap.Logger
}

func NewWorker(
	ingestRepo repositories.IngestionRepository,
	ingestion IngestionService,
	concurrency int,
	maxAttempts int,
	pollEvery time.Duration,
	logger *zap.Logger,
) Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	if pollEvery <= 0 {
		pollEvery = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &worker{
		ingestRepo:  ingestRepo,
		ingestion:   ingestion,
		jobQueue:    make(chan uuid.UUID, 100),
		concurrency: concurrency,
		maxAttempts: maxAttempts,
		staleAfter:  pollEvery,
		pollEvery:   pollEvery,
		stopChan:    make(chan struct{}),
		logger:      logger,
	}
}

// Start implements Worker.
func (w *worker) Start(ctx context.Context) {
	w.logger.Info("starting ingestion workers", zap.Int("concurrency", w.concurrency))

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.processJobs(ctx, i+1)
	}

	w.wg.Add(1)
	go w.pollStalledJobs()
}

// Stop implements Worker.
func (w *worker) Stop() {
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("ingestion workers stopped")
}

// EnqueueJob implements Worker.
func (w *worker) EnqueueJob(jobID uuid.UUID) {
	select {
	case w.jobQueue <- jobID:
	case <-w.stopChan:
		w.logger.Warn("worker stopped, dropping job", zap.String("job_id", jobID.String()))
	}
}

func (w *worker) processJobs(ctx context.Context, workerID int) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopChan:
			return
		case jobID := <-w.jobQueue:
			if err := w.ingestion.ProcessJob(ctx, jobID); err != nil {
				w.logger.Warn("ingestion job attempt failed",
					zap.Int("worker", workerID),
					zap.String("job_id", jobID.String()),
					zap.Error(err))
			}
		}
	}
}

// pollStalledJobs re-enqueues jobs stuck in a non-terminal state. Jobs that
// burned through their retry budget are failed instead of requeued, so a
// poisoned résumé cannot occupy the pool forever.
func (w *worker) pollStalledJobs() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			jobs, err := w.ingestRepo.FindRetryableJobs(w.staleAfter, 10)
			if err != nil {
				w.logger.Warn("failed to fetch stalled jobs", zap.Error(err))
				continue
			}

			for _, job := range jobs {
				if job.Attempts >= w.maxAttempts {
					w.logger.Error("ingestion retry budget exhausted",
						zap.String("job_id", job.ID.String()),
						zap.Int("attempts", job.Attempts))
					if err := w.ingestRepo.MarkFailed(job.ID, "retry budget exhausted"); err != nil {
						w.logger.Warn("failed to mark job failed", zap.Error(err))
					}
					continue
				}
				w.EnqueueJob(job.ID)
			}
		}
	}
}
