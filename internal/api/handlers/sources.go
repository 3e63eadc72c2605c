package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/talentboard/supportbot/internal/api"
	"github.com/talentboard/supportbot/internal/domain"
	"github.com/talentboard/supportbot/internal/logger"
	"github.com/talentboard/supportbot/internal/service"
	"go.uber.org/zap"
)

type Synchronizer interface {
	RebuildAll(ctx context.Context) (map[domain.SourceType]*service.SyncReport, error)
	SyncAll(ctx context.Context, sourceType domain.SourceType) (*service.SyncReport, error)
	SyncOne(ctx context.Context, sourceType domain.SourceType, id string) (*service.SyncResult, error)
	RemoveSource(ctx context.Context, sourceType domain.SourceType, id string) (int64, error)
}

// SyncJobQueue stores asynchronous sync requests for the job worker.
type SyncJobQueue interface {
	Create(ctx context.Context, job *domain.SyncJob) error
	GetByID(ctx context.Context, id string) (*domain.SyncJob, error)
}

type SourcesHandler struct {
	sync    Synchronizer
	jobs    SyncJobQueue
	uuidGen service.UUIDGenerator
	now     func() time.Time
}

// NewSourcesHandler creates the sync admin handler. jobs may be nil, in which
// case ?async=true requests are refused.
func NewSourcesHandler(sync Synchronizer, jobs SyncJobQueue) *SourcesHandler {
	return &SourcesHandler{
		sync:    sync,
		jobs:    jobs,
		uuidGen: &service.DefaultUUIDGenerator{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type RemoveResponse struct {
	SourceType string `json:"source_type"`
	SourceID   string `json:"source_id,omitempty"`
	Deleted    int64  `json:"deleted"`
}

type SyncJobResponse struct {
	ID          string  `json:"id"`
	SourceType  string  `json:"source_type"`
	SourceID    string  `json:"source_id,omitempty"`
	Action      string  `json:"action"`
	Status      string  `json:"status"`
	Retries     int32   `json:"retries"`
	Error       string  `json:"error,omitempty"`
	CreatedAt   string  `json:"created_at"`
	ProcessedAt *string `json:"processed_at,omitempty"`
}

// SyncType handles POST /sources/{type}/sync.
func (h *SourcesHandler) SyncType(w http.ResponseWriter, r *http.Request) {
	sourceType, ok := parseSourceType(w, r)
	if !ok {
		return
	}
	if isAsync(r) {
		h.enqueue(w, r, []*domain.SyncJob{h.newJob(sourceType, "", domain.SyncActionSync)})
		return
	}

	report, err := h.sync.SyncAll(r.Context(), sourceType)
	if err != nil && (report == nil || len(report.Failed) == 0) {
		handleUpstreamError(w, r, "sync failed", err)
		return
	}
	api.Success(w, http.StatusOK, report)
}

// SyncOne handles POST /sources/{type}/{id}/sync.
func (h *SourcesHandler) SyncOne(w http.ResponseWriter, r *http.Request) {
	sourceType, ok := parseSourceType(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if isAsync(r) {
		h.enqueue(w, r, []*domain.SyncJob{h.newJob(sourceType, id, domain.SyncActionSync)})
		return
	}

	result, err := h.sync.SyncOne(r.Context(), sourceType, id)
	if err != nil {
		handleUpstreamError(w, r, "sync failed", err)
		return
	}
	api.Success(w, http.StatusOK, result)
}

// Remove handles DELETE /sources/{type} and DELETE /sources/{type}/{id}.
func (h *SourcesHandler) Remove(w http.ResponseWriter, r *http.Request) {
	sourceType, ok := parseSourceType(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if isAsync(r) {
		h.enqueue(w, r, []*domain.SyncJob{h.newJob(sourceType, id, domain.SyncActionRemove)})
		return
	}

	deleted, err := h.sync.RemoveSource(r.Context(), sourceType, id)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, &RemoveResponse{SourceType: string(sourceType), SourceID: id, Deleted: deleted})
}

// Rebuild handles POST /rebuild.
func (h *SourcesHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if isAsync(r) {
		var jobs []*domain.SyncJob
		for i, sourceType := range domain.AllSourceTypes() {
			job := h.newJob(sourceType, "", domain.SyncActionSync)
			// keep rebuild order when the worker claims oldest first
			job.CreatedAt = job.CreatedAt.Add(time.Duration(i) * time.Microsecond)
			jobs = append(jobs, job)
		}
		h.enqueue(w, r, jobs)
		return
	}

	reports, err := h.sync.RebuildAll(r.Context())
	if err != nil && !hasFailures(reports) {
		handleUpstreamError(w, r, "rebuild failed", err)
		return
	}
	api.Success(w, http.StatusOK, reports)
}

// GetJob handles GET /jobs/{id}.
func (h *SourcesHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		api.HandleError(w, domain.ErrProviderNotConfigured)
		return
	}
	job, err := h.jobs.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, toSyncJobResponse(job))
}

func (h *SourcesHandler) newJob(sourceType domain.SourceType, id string, action domain.SyncAction) *domain.SyncJob {
	return domain.NewSyncJob(h.uuidGen.NewString(), sourceType, id, action, h.now())
}

func (h *SourcesHandler) enqueue(w http.ResponseWriter, r *http.Request, jobs []*domain.SyncJob) {
	if h.jobs == nil {
		api.HandleError(w, domain.ErrProviderNotConfigured)
		return
	}
	resp := make([]*SyncJobResponse, 0, len(jobs))
	for _, job := range jobs {
		if err := h.jobs.Create(r.Context(), job); err != nil {
			logger.From(r.Context(), nil).Error("enqueue sync job failed", zap.Error(err))
			api.HandleError(w, err)
			return
		}
		resp = append(resp, toSyncJobResponse(job))
	}
	api.Success(w, http.StatusAccepted, resp)
}

func parseSourceType(w http.ResponseWriter, r *http.Request) (domain.SourceType, bool) {
	sourceType, err := domain.ParseSourceType(chi.URLParam(r, "type"))
	if err != nil {
		api.HandleError(w, err)
		return "", false
	}
	return sourceType, true
}

func isAsync(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	return v
}

func hasFailures(reports map[domain.SourceType]*service.SyncReport) bool {
	for _, rep := range reports {
		if rep != nil && len(rep.Failed) > 0 {
			return true
		}
	}
	return false
}

func toSyncJobResponse(job *domain.SyncJob) *SyncJobResponse {
	resp := &SyncJobResponse{
		ID:         job.ID,
		SourceType: string(job.SourceType),
		SourceID:   job.SourceID,
		Action:     string(job.Action),
		Status:     string(job.Status),
		Retries:    job.Retries,
		Error:      job.Error,
		CreatedAt:  job.CreatedAt.Format(time.RFC3339),
	}
	if job.ProcessedAt != nil {
		s := job.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &s
	}
	return resp
}
