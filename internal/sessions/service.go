package sessions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brightclass/backend/internal/models"
	"github.com/brightclass/backend/internal/recordings"
	"github.com/brightclass/backend/internal/zoom"
)

// ErrSessionNotFound is returned by lifecycle actions on unknown sessions.
var ErrSessionNotFound = errors.New("sessions: session not found")

// ErrInvalidTransition is returned when an explicit action is not valid
// from the session's current status, e.g. ending a cancelled session.
var ErrInvalidTransition = errors.New("sessions: invalid status transition")

// lifecycleFrom maps a target status to the statuses an explicit action
// may move from. Re-applying the current status is allowed so repeated
// actions stay idempotent; nothing leads out of cancelled.
var lifecycleFrom = map[string]map[string]bool{
	models.SessionStatusLive: {
		models.SessionStatusScheduled: true,
		models.SessionStatusLive:      true,
	},
	models.SessionStatusCompleted: {
		models.SessionStatusScheduled: true,
		models.SessionStatusLive:      true,
		models.SessionStatusCompleted: true,
	},
	models.SessionStatusCancelled: {
		models.SessionStatusScheduled: true,
		models.SessionStatusLive:      true,
		models.SessionStatusCancelled: true,
	},
}

func canTransition(from, to string) bool { return lifecycleFrom[to][from] }

// ScheduleParams describes a new live session.
type ScheduleParams struct {
	CourseID    uuid.UUID
	Title       string
	ScheduledAt time.Time
	DurationMin int
	Timezone    string
	HostID      string // Zoom host identity; empty uses the configured default
	CreatedBy   uuid.UUID
}

// Service drives the session lifecycle: meeting creation through the
// serialized queue, explicit start/end/cancel actions, and recording
// discovery retries once a session ends.
type Service struct {
	repo      *Repository
	queue     *zoom.CreationQueue
	client    *zoom.Client
	discovery *recordings.Discovery
	scheduler *recordings.Scheduler
	logger    *zap.Logger
}

// NewService creates a session service. Attach the retry scheduler with
// SetScheduler after construction (the scheduler's discover callback is
// a method of this service).
func NewService(repo *Repository, queue *zoom.CreationQueue, client *zoom.Client, discovery *recordings.Discovery, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		queue:     queue,
		client:    client,
		discovery: discovery,
		logger:    logger,
	}
}

// SetScheduler attaches the recording retry scheduler.
func (s *Service) SetScheduler(sched *recordings.Scheduler) { s.scheduler = sched }

// Schedule creates the provider meeting (serialized through the creation
// queue) and persists the session referencing it. A hard creation
// failure aborts the whole operation and is surfaced synchronously to
// the caller.
func (s *Service) Schedule(ctx context.Context, p ScheduleParams) (*models.Session, error) {
	if p.DurationMin <= 0 {
		p.DurationMin = 60
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}

	req := zoom.MeetingRequest{
		Topic:     p.Title,
		Type:      zoom.MeetingTypeScheduled,
		StartTime: p.ScheduledAt,
		Duration:  p.DurationMin,
		Timezone:  p.Timezone,
		Settings: zoom.MeetingSettings{
			HostVideo:        true,
			ParticipantVideo: false,
			JoinBeforeHost:   false,
			MuteUponEntry:    true,
			WaitingRoom:      false,
			AutoRecording:    "cloud",
		},
	}

	meeting, err := s.queue.EnqueueCreate(ctx, req, p.HostID)
	if err != nil {
		return nil, fmt.Errorf("create meeting: %w", err)
	}

	sess := &models.Session{
		CourseID:        p.CourseID,
		Title:           p.Title,
		ScheduledAt:     p.ScheduledAt,
		DurationMin:     p.DurationMin,
		Timezone:        p.Timezone,
		MeetingID:       strconv.FormatInt(meeting.ID, 10),
		JoinURL:         meeting.JoinURL,
		StartURL:        meeting.StartURL,
		MeetingPasscode: meeting.Password,
		Status:          models.SessionStatusScheduled,
		CreatedBy:       p.CreatedBy,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		// The meeting exists provider-side but the session row failed;
		// clean up best-effort so it does not dangle.
		s.client.DeleteMeeting(ctx, sess.MeetingID)
		return nil, fmt.Errorf("persist session: %w", err)
	}
	s.logger.Info("session scheduled",
		zap.String("session_id", sess.ID.String()),
		zap.String("meeting_id", sess.MeetingID))
	return sess, nil
}

// RescheduleParams carries the mutable scheduling fields; zero values
// keep the current ones.
type RescheduleParams struct {
	Title       string
	ScheduledAt time.Time
	DurationMin int
	Timezone    string
}

// Reschedule updates the session's scheduling fields and pushes them to
// the provider meeting best-effort. Only scheduled sessions can move.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, p RescheduleParams) (*models.Session, error) {
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if sess.Status != models.SessionStatusScheduled {
		return nil, fmt.Errorf("reschedule: session is %s", sess.Status)
	}

	if p.Title != "" {
		sess.Title = p.Title
	}
	if !p.ScheduledAt.IsZero() {
		sess.ScheduledAt = p.ScheduledAt
	}
	if p.DurationMin > 0 {
		sess.DurationMin = p.DurationMin
	}
	if p.Timezone != "" {
		sess.Timezone = p.Timezone
	}
	if err := s.repo.UpdateSchedule(ctx, sess); err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}

	if sess.MeetingID != "" {
		s.client.UpdateMeeting(ctx, sess.MeetingID, zoom.MeetingRequest{
			Topic:     sess.Title,
			Type:      zoom.MeetingTypeScheduled,
			StartTime: sess.ScheduledAt,
			Duration:  sess.DurationMin,
			Timezone:  sess.Timezone,
		})
	}
	return sess, nil
}

// Start marks a session live (explicit instructor action).
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return s.transition(ctx, id, models.SessionStatusLive)
}

// End marks a session completed and kicks off recording discovery
// retries.
func (s *Service) End(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	sess, err := s.transition(ctx, id, models.SessionStatusCompleted)
	if err != nil {
		return nil, err
	}
	if s.scheduler != nil {
		s.scheduler.Schedule(id)
	}
	return sess, nil
}

// Cancel marks a session cancelled, suppresses any pending recording
// retries and deletes the provider meeting best-effort.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	sess, err := s.transition(ctx, id, models.SessionStatusCancelled)
	if err != nil {
		return nil, err
	}
	if s.scheduler != nil {
		s.scheduler.Cancel(id)
	}
	if sess.MeetingID != "" {
		s.client.DeleteMeeting(ctx, sess.MeetingID)
	}
	return sess, nil
}

// DiscoverByID loads the session and runs recording discovery,
// reporting the artifact count. Used as the retry scheduler's callback.
func (s *Service) DiscoverByID(ctx context.Context, sessionID uuid.UUID) (int, error) {
	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if sess == nil {
		return 0, ErrSessionNotFound
	}
	arts, err := s.discovery.Discover(ctx, sess)
	if err != nil {
		return 0, err
	}
	return len(arts), nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, status string) (*models.Session, error) {
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if !canTransition(sess.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sess.Status, status)
	}
	if sess.Status != status {
		if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
			return nil, fmt.Errorf("update status: %w", err)
		}
		sess.Status = status
	}
	return sess, nil
}
