package services

import (
	"context"
	"mime/multipart"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/talent-match/internal/models"
)

// stubIngestion records which jobs were processed.
type stubIngestion struct {
	mu        sync.Mutex
	processed []uuid.UUID
	done      chan uuid.UUID
}

func (s *stubIngestion) SubmitText(req *models.IngestRequest) (*models.IngestionJob, error) {
	return nil, nil
}

func (s *stubIngestion) SubmitFile(file *multipart.FileHeader, source string) (*models.IngestionJob, error) {
	return nil, nil
}

func (s *stubIngestion) GetJob(id uuid.UUID) (*models.IngestionJob, error) {
	return nil, nil
}

func (s *stubIngestion) ProcessJob(ctx context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	s.processed = append(s.processed, jobID)
	s.mu.Unlock()
	if s.done != nil {
		s.done <- jobID
	}
	return nil
}

func TestWorkerProcessesEnqueuedJobs(t *testing.T) {
	ingestion := &stubIngestion{done: make(chan uuid.UUID, 2)}
	w := NewWorker(newFakeIngestionRepo(), ingestion, 2, 3, time.Hour, nil)

	w.Start(context.Background())
	defer w.Stop()

	first, second := uuid.New(), uuid.New()
	w.EnqueueJob(first)
	w.EnqueueJob(second)

	got := map[uuid.UUID]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-ingestion.done:
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs to be processed")
		}
	}
	assert.True(t, got[first])
	assert.True(t, got[second])
}

func TestWorkerPollerFailsExhaustedJobs(t *testing.T) {
	ingestRepo := newFakeIngestionRepo()
	exhausted := &models.IngestionJob{
		ID:         uuid.New(),
		Status:     models.IngestionReceived,
		Attempts:   3,
		ReceivedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, ingestRepo.CreateJob(exhausted))
	// Age the row past the staleness cutoff.
	ingestRepo.jobs[exhausted.ID].UpdatedAt = time.Now().Add(-time.Hour)

	ingestion := &stubIngestion{}
	w := NewWorker(ingestRepo, ingestion, 1, 3, 20*time.Millisecond, nil)

	w.Start(context.Background())
	defer w.Stop()

	require.Eventually(t, func() bool {
		job, err := ingestRepo.FindJobByID(exhausted.ID)
		return err == nil && job.Status == models.IngestionFailed
	}, 2*time.Second, 10*time.Millisecond)

	// The job was failed, never handed to the pipeline again.
	ingestion.mu.Lock()
	defer ingestion.mu.Unlock()
	assert.Empty(t, ingestion.processed)
}
