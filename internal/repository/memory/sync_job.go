package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/talentboard/supportbot/internal/domain"
)

// SyncJobStore is an in-memory sync job queue.
type SyncJobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.SyncJob
}

// NewSyncJobStore creates an empty SyncJobStore.
func NewSyncJobStore() *SyncJobStore {
	return &SyncJobStore{jobs: make(map[string]*domain.SyncJob)}
}

func (s *SyncJobStore) Create(_ context.Context, job *domain.SyncJob) error {
	if err := domain.ValidateSyncJob(job); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *SyncJobStore) GetByID(_ context.Context, id string) (*domain.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrSyncJobNotFound
	}
	cp := *job
	return &cp, nil
}

// ClaimPending moves up to limit pending jobs, oldest first, to processing.
func (s *SyncJobStore) ClaimPending(_ context.Context, limit int) ([]*domain.SyncJob, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*domain.SyncJob
	for _, job := range s.jobs {
		if job.Status == domain.SyncJobStatusPending {
			pending = append(pending, job)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	if len(pending) > limit {
		pending = pending[:limit]
	}

	claimed := make([]*domain.SyncJob, 0, len(pending))
	for _, job := range pending {
		job.Status = domain.SyncJobStatusProcessing
		job.Error = ""
		job.ProcessedAt = nil
		cp := *job
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (s *SyncJobStore) UpdateStatus(_ context.Context, id string, status domain.SyncJobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrSyncJobNotFound
	}
	job.Status = status
	job.Error = errMsg
	if status == domain.SyncJobStatusCompleted || status == domain.SyncJobStatusFailed {
		now := time.Now().UTC()
		job.ProcessedAt = &now
	}
	return nil
}

func (s *SyncJobStore) IncrementRetries(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrSyncJobNotFound
	}
	job.Retries++
	return nil
}
