package recordings

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brightclass/backend/internal/models"
	"github.com/brightclass/backend/internal/zoom"
	"github.com/brightclass/backend/pkg/queue"
)

// RecordingLister lists cloud recording files for a meeting.
type RecordingLister interface {
	ListRecordings(ctx context.Context, meetingID string) ([]zoom.RecordingFile, error)
}

// ArtifactStore is the persistence surface discovery needs.
type ArtifactStore interface {
	InsertIdempotent(ctx context.Context, art *models.RecordingArtifact) (bool, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.RecordingArtifact, error)
}

// SessionStore flips the session recording flag.
type SessionStore interface {
	SetHasRecording(ctx context.Context, sessionID uuid.UUID, has bool) error
}

// Archiver enqueues S3 archive jobs for newly discovered artifacts.
// Nil disables archiving (offline mode, tests).
type Archiver interface {
	EnqueueRecordingArchive(ctx context.Context, payload queue.RecordingArchivePayload) error
}

// Discovery reconciles eventually-consistent provider recordings into
// persisted artifacts. Idempotent: repeated calls for the same session
// are cheap (cache-first) and never duplicate rows.
type Discovery struct {
	lister    RecordingLister
	artifacts ArtifactStore
	sessions  SessionStore
	archiver  Archiver
	logger    *zap.Logger
}

// NewDiscovery creates a recording discovery service.
func NewDiscovery(lister RecordingLister, artifacts ArtifactStore, sessions SessionStore, archiver Archiver, logger *zap.Logger) *Discovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discovery{
		lister:    lister,
		artifacts: artifacts,
		sessions:  sessions,
		archiver:  archiver,
		logger:    logger,
	}
}

// Discover finds and persists recording artifacts for a session. An
// empty result is not an error: provider-side recording processing is
// asynchronous and commonly takes minutes, so "not yet available" is a
// retryable state for the caller.
func (d *Discovery) Discover(ctx context.Context, sess *models.Session) ([]models.RecordingArtifact, error) {
	existing, err := d.artifacts.ListBySession(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("list persisted artifacts: %w", err)
	}
	if len(existing) > 0 {
		// The flag may lag the rows when an earlier flip failed after
		// the insert; repair it here so the invariant self-heals.
		if err := d.markHasRecording(ctx, sess); err != nil {
			return existing, err
		}
		return existing, nil
	}

	if sess.MeetingID == "" {
		return nil, nil
	}

	files, err := d.lister.ListRecordings(ctx, sess.MeetingID)
	if err != nil {
		return nil, fmt.Errorf("list provider recordings: %w", err)
	}

	var found []models.RecordingArtifact
	for _, f := range files {
		// Zoom also emits audio-only and phone-call artifacts; only
		// combined audio+video files become artifacts.
		if !f.IsVideo() {
			continue
		}
		art := models.RecordingArtifact{
			SessionID:       sess.ID,
			CourseID:        sess.CourseID,
			ZoomRecordingID: f.ID,
			Title:           sess.Title,
			RecordingURL:    f.PlayURL,
			DownloadURL:     f.DownloadURL,
			Duration:        int(f.RecordingEnd.Sub(f.RecordingStart).Seconds()),
			FileSize:        f.FileSize,
			RecordedAt:      f.RecordingStart,
		}
		created, err := d.artifacts.InsertIdempotent(ctx, &art)
		if err != nil {
			return nil, fmt.Errorf("persist artifact %s: %w", f.ID, err)
		}
		found = append(found, art)
		if created {
			d.logger.Info("recording artifact persisted",
				zap.String("session_id", sess.ID.String()),
				zap.String("zoom_recording_id", f.ID))
			d.enqueueArchive(ctx, art)
		}
	}

	if len(found) > 0 {
		if err := d.markHasRecording(ctx, sess); err != nil {
			return found, err
		}
	}
	return found, nil
}

func (d *Discovery) markHasRecording(ctx context.Context, sess *models.Session) error {
	if sess.HasRecording {
		return nil
	}
	if err := d.sessions.SetHasRecording(ctx, sess.ID, true); err != nil {
		return fmt.Errorf("set has_recording: %w", err)
	}
	sess.HasRecording = true
	return nil
}

func (d *Discovery) enqueueArchive(ctx context.Context, art models.RecordingArtifact) {
	if d.archiver == nil || art.DownloadURL == "" {
		return
	}
	err := d.archiver.EnqueueRecordingArchive(ctx, queue.RecordingArchivePayload{
		ArtifactID:  art.ID,
		SessionID:   art.SessionID,
		DownloadURL: art.DownloadURL,
	})
	if err != nil {
		// Playback still works via the provider URL; archive is best effort.
		d.logger.Warn("enqueue archive failed", zap.Error(err), zap.String("artifact_id", art.ID.String()))
	}
}
