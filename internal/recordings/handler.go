package recordings

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brightclass/backend/pkg/response"
	"github.com/brightclass/backend/pkg/storage"
)

// Handler handles recording artifact HTTP endpoints.
type Handler struct {
	repo     *Repository
	sessions SessionStore
	s3       *storage.S3 // nil when archiving is disabled
	logger   *zap.Logger
}

// NewHandler creates a recordings handler.
func NewHandler(repo *Repository, sessions SessionStore, s3 *storage.S3, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, sessions: sessions, s3: s3, logger: logger}
}

// ListBySession handles GET /sessions/:id/recordings.
//
// An empty list is the normal "still processing" answer while the
// provider finishes the recording; clients show "check back shortly",
// never an error.
func (h *Handler) ListBySession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	list, err := h.repo.ListBySession(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("list artifacts failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		response.Internal(c, "failed to list recordings")
		return
	}
	response.OK(c, gin.H{"recordings": list, "processing": len(list) == 0})
}

// PlaybackURL handles GET /recordings/:id/playback-url. Archived
// artifacts get a pre-signed S3 URL; everything else falls back to the
// provider's remote play URL rather than failing the request.
func (h *Handler) PlaybackURL(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	art, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get artifact failed", zap.Error(err), zap.String("recording_id", id.String()))
		response.Internal(c, "failed to load recording")
		return
	}
	if art == nil {
		response.NotFound(c, "recording not found")
		return
	}

	url := h.resolvePlayback(c.Request.Context(), art.IsProcessed, art.S3Key, art.RecordingURL)
	if url == "" {
		response.NotFound(c, "recording has no playable source")
		return
	}
	response.OK(c, gin.H{"url": url})
}

// Delete handles DELETE /recordings/:id (admin only). Removes the
// archived S3 object when present, then the row. The session's
// recording flag follows the remaining rows.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	art, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get artifact failed", zap.Error(err), zap.String("recording_id", id.String()))
		response.Internal(c, "failed to load recording")
		return
	}
	if art == nil {
		response.NotFound(c, "recording not found")
		return
	}

	if art.IsProcessed && art.S3Key != "" && h.s3 != nil {
		if err := h.s3.DeleteRecording(c.Request.Context(), art.S3Key); err != nil {
			// The row still goes; an orphaned object is preferable to a
			// dangling row referencing a deleted one.
			h.logger.Warn("s3 object delete failed", zap.Error(err), zap.String("s3_key", art.S3Key))
		}
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		h.logger.Error("delete artifact failed", zap.Error(err), zap.String("recording_id", id.String()))
		response.Internal(c, "failed to delete recording")
		return
	}

	remaining, err := h.repo.ListBySession(c.Request.Context(), art.SessionID)
	if err == nil && len(remaining) == 0 && h.sessions != nil {
		if err := h.sessions.SetHasRecording(c.Request.Context(), art.SessionID, false); err != nil {
			h.logger.Warn("clear has_recording failed", zap.Error(err), zap.String("session_id", art.SessionID.String()))
		}
	}
	response.NoContent(c)
}

func (h *Handler) resolvePlayback(ctx context.Context, processed bool, s3Key, providerURL string) string {
	if processed && s3Key != "" && h.s3 != nil {
		url, err := h.s3.GeneratePresignedDownloadURL(ctx, s3Key, h.s3.PresignExpiry())
		if err == nil {
			return url
		}
		h.logger.Warn("presign failed, falling back to provider url", zap.Error(err), zap.String("s3_key", s3Key))
	}
	return providerURL
}
