package sessions

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightclass/backend/internal/models"
)

const sessionColumns = `id, course_id, title, scheduled_at, duration_min, timezone,
		COALESCE(meeting_id,''), COALESCE(join_url,''), COALESCE(start_url,''), COALESCE(meeting_passcode,''),
		status, has_recording, created_by, created_at, updated_at`

// Repository handles session persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a session repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanSession(row pgx.Row, s *models.Session) error {
	return row.Scan(&s.ID, &s.CourseID, &s.Title, &s.ScheduledAt, &s.DurationMin, &s.Timezone,
		&s.MeetingID, &s.JoinURL, &s.StartURL, &s.MeetingPasscode,
		&s.Status, &s.HasRecording, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
}

// Create inserts a new session with its meeting reference.
func (r *Repository) Create(ctx context.Context, s *models.Session) error {
	const q = `INSERT INTO sessions
		(id, course_id, title, scheduled_at, duration_min, timezone, meeting_id, join_url, start_url, meeting_passcode, status, created_by)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q,
		s.CourseID, s.Title, s.ScheduledAt, s.DurationMin, s.Timezone,
		s.MeetingID, s.JoinURL, s.StartURL, s.MeetingPasscode, s.Status, s.CreatedBy).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// GetByID returns a session by ID, or (nil, nil) when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	var s models.Session
	if err := scanSession(r.pool.QueryRow(ctx, q, id), &s); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// GetByMeetingID returns the session owning a provider meeting id, or
// (nil, nil) when none matches (e.g. webhooks for meetings created
// outside this system's bookkeeping).
func (r *Repository) GetByMeetingID(ctx context.Context, meetingID string) (*models.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE meeting_id = $1 ORDER BY created_at DESC LIMIT 1`
	var s models.Session
	if err := scanSession(r.pool.QueryRow(ctx, q, meetingID), &s); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// ListByCourse returns all sessions of a course, newest first.
func (r *Repository) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]models.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE course_id = $1 ORDER BY scheduled_at DESC`
	rows, err := r.pool.Query(ctx, q, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Session
	for rows.Next() {
		var s models.Session
		if err := scanSession(rows, &s); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// UpdateSchedule rewrites the mutable scheduling fields.
func (r *Repository) UpdateSchedule(ctx context.Context, s *models.Session) error {
	const q = `UPDATE sessions SET title = $1, scheduled_at = $2, duration_min = $3, timezone = $4, updated_at = NOW() WHERE id = $5`
	_, err := r.pool.Exec(ctx, q, s.Title, s.ScheduledAt, s.DurationMin, s.Timezone, s.ID)
	return err
}

// UpdateStatus sets session status. Re-setting the current status is a
// no-op at the row level, which keeps webhook replays harmless.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	const q = `UPDATE sessions SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, status, id)
	return err
}

// SetHasRecording flips the recording flag; idempotent.
func (r *Repository) SetHasRecording(ctx context.Context, id uuid.UUID, has bool) error {
	const q = `UPDATE sessions SET has_recording = $1, updated_at = NOW() WHERE id = $2 AND has_recording <> $1`
	_, err := r.pool.Exec(ctx, q, has, id)
	return err
}
