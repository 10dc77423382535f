package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brightclass/backend/internal/middleware"
	"github.com/brightclass/backend/internal/models"
	"github.com/brightclass/backend/internal/zoom"
	"github.com/brightclass/backend/pkg/response"
)

// CreateRequest is the body for POST /courses/:id/sessions.
type CreateRequest struct {
	Title       string `json:"title" binding:"required"`
	ScheduledAt string `json:"scheduled_at" binding:"required"` // RFC3339
	DurationMin int    `json:"duration_min"`
	Timezone    string `json:"timezone"`
	HostEmail   string `json:"host_email"`
}

// Handler handles session HTTP endpoints.
type Handler struct {
	svc    *Service
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a session handler.
func NewHandler(svc *Service, repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, repo: repo, logger: logger}
}

// Create handles POST /courses/:id/sessions (instructor only). Meeting
// creation failures surface synchronously so the instructor sees them.
func (h *Handler) Create(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		response.BadRequest(c, "invalid scheduled_at")
		return
	}

	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	sess, err := h.svc.Schedule(c.Request.Context(), ScheduleParams{
		CourseID:    courseID,
		Title:       req.Title,
		ScheduledAt: scheduledAt,
		DurationMin: req.DurationMin,
		Timezone:    req.Timezone,
		HostID:      req.HostEmail,
		CreatedBy:   userID,
	})
	if err != nil {
		if errors.Is(err, zoom.ErrStartTimeInPast) {
			response.BadRequest(c, "scheduled_at must be in the future")
			return
		}
		h.logger.Error("session scheduling failed", zap.Error(err), zap.String("course_id", courseID.String()))
		response.Internal(c, "failed to create live session")
		return
	}
	response.Created(c, sess)
}

// UpdateRequest is the body for PATCH /sessions/:id. All fields are
// optional; absent ones keep their current value.
type UpdateRequest struct {
	Title       string `json:"title"`
	ScheduledAt string `json:"scheduled_at"` // RFC3339
	DurationMin int    `json:"duration_min"`
	Timezone    string `json:"timezone"`
}

// Update handles PATCH /sessions/:id (instructor only).
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	params := RescheduleParams{
		Title:       req.Title,
		DurationMin: req.DurationMin,
		Timezone:    req.Timezone,
	}
	if req.ScheduledAt != "" {
		scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			response.BadRequest(c, "invalid scheduled_at")
			return
		}
		params.ScheduledAt = scheduledAt
	}
	sess, err := h.svc.Reschedule(c.Request.Context(), id, params)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			response.NotFound(c, "session not found")
			return
		}
		h.logger.Error("session reschedule failed", zap.Error(err), zap.String("session_id", id.String()))
		response.BadRequest(c, "session cannot be rescheduled")
		return
	}
	response.OK(c, sess)
}

// ListByCourse handles GET /courses/:id/sessions.
func (h *Handler) ListByCourse(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	list, err := h.repo.ListByCourse(c.Request.Context(), courseID)
	if err != nil {
		response.Internal(c, "failed to list sessions")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /sessions/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	sess, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load session")
		return
	}
	if sess == nil {
		response.NotFound(c, "session not found")
		return
	}
	response.OK(c, sess)
}

// Start handles POST /sessions/:id/start.
func (h *Handler) Start(c *gin.Context) { h.lifecycle(c, h.svc.Start) }

// End handles POST /sessions/:id/end.
func (h *Handler) End(c *gin.Context) { h.lifecycle(c, h.svc.End) }

// Cancel handles POST /sessions/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) { h.lifecycle(c, h.svc.Cancel) }

func (h *Handler) lifecycle(c *gin.Context, action func(ctx context.Context, id uuid.UUID) (*models.Session, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	sess, err := action(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			response.NotFound(c, "session not found")
			return
		}
		if errors.Is(err, ErrInvalidTransition) {
			response.Conflict(c, "session cannot change status from its current state")
			return
		}
		h.logger.Error("session action failed", zap.Error(err), zap.String("session_id", id.String()))
		response.Internal(c, "failed to update session")
		return
	}
	response.OK(c, sess)
}
