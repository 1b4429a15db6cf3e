package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/matchpoint/notify-engine/internal/api/middleware"
	"github.com/matchpoint/notify-engine/internal/domain"
	"github.com/matchpoint/notify-engine/internal/repository"
	"github.com/matchpoint/notify-engine/internal/scheduler"
)

// JobHandler exposes the scheduled-job admin surface.
type JobHandler struct {
	scheduler *scheduler.Scheduler
	repo      repository.JobRepository
	logger    *zap.Logger
}

func NewJobHandler(sched *scheduler.Scheduler, repo repository.JobRepository, logger *zap.Logger) *JobHandler {
	return &JobHandler{scheduler: sched, repo: repo, logger: logger}
}

// Create handles POST /api/v1/jobs
//
// @Summary     Create a dynamic scheduled job
// @Tags        jobs
// @Accept      json
// @Produce     json
// @Param       body  body      domain.CreateJobRequest  true  "Job definition"
// @Success     201   {object}  domain.JobDefinition
// @Failure     409   {object}  map[string]string
// @Failure     422   {object}  map[string]string
// @Router      /api/v1/jobs [post]
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	job, err := h.scheduler.CreateJob(r.Context(), &req)
	if err != nil {
		h.logger.Warn("create job failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, job)
}

// List handles GET /api/v1/jobs
//
// @Summary  List all scheduled jobs
// @Tags     jobs
// @Produce  json
// @Success  200  {array}  domain.JobDefinition
// @Router   /api/v1/jobs [get]
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.repo.List(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, jobs)
}

// Get handles GET /api/v1/jobs/{name}
//
// @Summary  Get a job definition
// @Tags     jobs
// @Produce  json
// @Param    name  path      string  true  "Job name"
// @Success  200   {object}  domain.JobDefinition
// @Failure  404   {object}  map[string]string
// @Router   /api/v1/jobs/{name} [get]
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.repo.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// Update handles PATCH /api/v1/jobs/{name}
//
// @Summary     Edit a dynamic job
// @Tags        jobs
// @Accept      json
// @Produce     json
// @Param       name  path      string                   true  "Job name"
// @Param       body  body      domain.UpdateJobRequest  true  "Fields to change"
// @Success     200   {object}  domain.JobDefinition
// @Failure     403   {object}  map[string]string
// @Failure     404   {object}  map[string]string
// @Router      /api/v1/jobs/{name} [patch]
func (h *JobHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	job, err := h.scheduler.UpdateJob(r.Context(), chi.URLParam(r, "name"), &req)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// Run handles POST /api/v1/jobs/{name}/run
//
// @Summary  Run a job immediately, outside its schedule
// @Tags     jobs
// @Produce  json
// @Param    name  path      string  true  "Job name"
// @Success  200   {object}  map[string]int
// @Failure  404   {object}  map[string]string
// @Router   /api/v1/jobs/{name}/run [post]
func (h *JobHandler) Run(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	res, err := h.scheduler.TriggerJob(r.Context(), name)
	if err != nil {
		h.logger.Warn("manual job run failed",
			zap.String("job", name),
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{
		"records_processed": res.RecordsProcessed,
		"records_affected":  res.RecordsAffected,
	})
}

// Executions handles GET /api/v1/jobs/{name}/executions
//
// @Summary  Recent execution history for a job, newest first
// @Tags     jobs
// @Produce  json
// @Param    name   path      string  true   "Job name"
// @Param    limit  query     int     false  "Max rows (default 20, max 100)"
// @Success  200    {array}   domain.JobExecution
// @Failure  404    {object}  map[string]string
// @Router   /api/v1/jobs/{name}/executions [get]
func (h *JobHandler) Executions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, err := h.repo.Get(r.Context(), name); err != nil {
		mapError(w, err)
		return
	}

	limit := 20
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}

	execs, err := h.repo.ListExecutions(r.Context(), name, limit)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, execs)
}
