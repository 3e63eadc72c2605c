package domain

import (
	"fmt"
	"time"
)

// SyncJobStatus represents the status of a sync job
type SyncJobStatus string

const (
	SyncJobStatusPending    SyncJobStatus = "pending"
	SyncJobStatusProcessing SyncJobStatus = "processing"
	SyncJobStatusCompleted  SyncJobStatus = "completed"
	SyncJobStatusFailed     SyncJobStatus = "failed"
)

// SyncAction is what a sync job does to a source.
type SyncAction string

const (
	SyncActionSync   SyncAction = "sync"
	SyncActionRemove SyncAction = "remove"
)

// SyncJob represents a queued, asynchronous knowledge sync request.
// An empty SourceID targets every document of SourceType.
type SyncJob struct {
	ID          string
	SourceType  SourceType
	SourceID    string
	Action      SyncAction
	Status      SyncJobStatus
	Retries     int32
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// NewSyncJob creates a pending SyncJob
func NewSyncJob(id string, sourceType SourceType, sourceID string, action SyncAction, createdAt time.Time) *SyncJob {
	return &SyncJob{
		ID:         id,
		SourceType: sourceType,
		SourceID:   sourceID,
		Action:     action,
		Status:     SyncJobStatusPending,
		CreatedAt:  createdAt,
	}
}

// ValidateSyncJob validates a SyncJob instance
func ValidateSyncJob(j *SyncJob) error {
	if j == nil {
		return fmt.Errorf("sync job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("sync job ID is required")
	}

	if !j.SourceType.IsValid() {
		return fmt.Errorf("sync job SourceType is invalid: %s", j.SourceType)
	}

	if j.Action != SyncActionSync && j.Action != SyncActionRemove {
		return fmt.Errorf("sync job Action is invalid: %s", j.Action)
	}

	if !isValidSyncJobStatus(j.Status) {
		return fmt.Errorf("sync job Status is invalid: %s", j.Status)
	}

	if j.Retries < 0 {
		return fmt.Errorf("sync job Retries cannot be negative")
	}

	return nil
}

func isValidSyncJobStatus(s SyncJobStatus) bool {
	switch s {
	case SyncJobStatusPending, SyncJobStatusProcessing,
		SyncJobStatusCompleted, SyncJobStatusFailed:
		return true
	}
	return false
}
