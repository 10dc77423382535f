package webhooks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brightclass/backend/internal/models"
)

// Event types consumed from Zoom. Everything else is accepted and ignored.
const (
	EventMeetingStarted     = "meeting.started"
	EventMeetingEnded       = "meeting.ended"
	EventRecordingCompleted = "recording.completed"
	EventURLValidation      = "endpoint.url_validation"
)

// SessionStore is the session lookup/update surface the dispatcher needs.
type SessionStore interface {
	GetByMeetingID(ctx context.Context, meetingID string) (*models.Session, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

// DiscoveryRunner runs recording discovery for a session.
type DiscoveryRunner interface {
	Discover(ctx context.Context, sess *models.Session) ([]models.RecordingArtifact, error)
}

// RetryScheduler kicks off discovery retries for an ended session.
type RetryScheduler interface {
	Schedule(sessionID uuid.UUID)
}

// transition is one row of the state machine: the statuses an event may
// fire from and the status it moves the session to. Events arriving in
// any other status are no-ops, so replays and out-of-order deliveries
// cannot corrupt state.
type transition struct {
	from map[string]bool
	to   string
}

var transitions = map[string]transition{
	EventMeetingStarted: {
		from: map[string]bool{models.SessionStatusScheduled: true, models.SessionStatusLive: true},
		to:   models.SessionStatusLive,
	},
	EventMeetingEnded: {
		from: map[string]bool{models.SessionStatusScheduled: true, models.SessionStatusLive: true, models.SessionStatusCompleted: true},
		to:   models.SessionStatusCompleted,
	},
}

// Dispatcher drives session state from asynchronous provider events,
// keyed by the provider meeting id.
type Dispatcher struct {
	sessions  SessionStore
	discovery DiscoveryRunner
	scheduler RetryScheduler
	logger    *zap.Logger
}

// NewDispatcher creates a webhook dispatcher.
func NewDispatcher(sessions SessionStore, discovery DiscoveryRunner, scheduler RetryScheduler, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sessions:  sessions,
		discovery: discovery,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Dispatch processes one provider event. Unknown event types and events
// for meetings this system does not track are dropped without error:
// webhooks may arrive for meetings created elsewhere or after a session
// was deleted. Dispatch is idempotent by construction.
func (d *Dispatcher) Dispatch(ctx context.Context, event, meetingID string) error {
	if event == "" || meetingID == "" {
		return nil
	}

	switch event {
	case EventMeetingStarted, EventMeetingEnded:
		return d.applyTransition(ctx, event, meetingID)
	case EventRecordingCompleted:
		return d.handleRecordingCompleted(ctx, meetingID)
	default:
		d.logger.Debug("ignoring webhook event", zap.String("event", event))
		return nil
	}
}

func (d *Dispatcher) applyTransition(ctx context.Context, event, meetingID string) error {
	sess, err := d.sessions.GetByMeetingID(ctx, meetingID)
	if err != nil {
		return fmt.Errorf("lookup session: %w", err)
	}
	if sess == nil {
		d.logger.Info("webhook for unknown meeting dropped",
			zap.String("event", event),
			zap.String("meeting_id", meetingID))
		return nil
	}

	t := transitions[event]
	if !t.from[sess.Status] {
		d.logger.Debug("webhook event is a no-op in current status",
			zap.String("event", event),
			zap.String("session_id", sess.ID.String()),
			zap.String("status", sess.Status))
		return nil
	}
	if sess.Status != t.to {
		if err := d.sessions.UpdateStatus(ctx, sess.ID, t.to); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		d.logger.Info("session status transitioned",
			zap.String("session_id", sess.ID.String()),
			zap.String("event", event),
			zap.String("from", sess.Status),
			zap.String("to", t.to))
		sess.Status = t.to
	}

	if event == EventMeetingEnded && d.scheduler != nil {
		d.scheduler.Schedule(sess.ID)
	}
	return nil
}

func (d *Dispatcher) handleRecordingCompleted(ctx context.Context, meetingID string) error {
	sess, err := d.sessions.GetByMeetingID(ctx, meetingID)
	if err != nil {
		return fmt.Errorf("lookup session: %w", err)
	}
	if sess == nil {
		d.logger.Info("recording webhook for unknown meeting dropped",
			zap.String("meeting_id", meetingID))
		return nil
	}

	arts, err := d.discovery.Discover(ctx, sess)
	if err != nil {
		return fmt.Errorf("discover recordings: %w", err)
	}
	d.logger.Info("recording.completed processed",
		zap.String("session_id", sess.ID.String()),
		zap.Int("artifacts", len(arts)))
	return nil
}
