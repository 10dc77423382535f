package recordings

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightclass/backend/internal/models"
)

const artifactColumns = `id, session_id, course_id, zoom_recording_id, title, recording_url, download_url,
		duration, file_size, recorded_at, is_processed, s3_key, s3_url, created_at, updated_at`

// Repository handles recording artifact persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recording artifact repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanArtifact(row pgx.Row, a *models.RecordingArtifact) error {
	return row.Scan(&a.ID, &a.SessionID, &a.CourseID, &a.ZoomRecordingID, &a.Title, &a.RecordingURL,
		&a.DownloadURL, &a.Duration, &a.FileSize, &a.RecordedAt, &a.IsProcessed, &a.S3Key, &a.S3URL,
		&a.CreatedAt, &a.UpdatedAt)
}

// InsertIdempotent inserts an artifact keyed by zoom_recording_id. If a
// row with that key already exists the insert is a no-op and the existing
// row is loaded into art. Returns whether a new row was created.
func (r *Repository) InsertIdempotent(ctx context.Context, art *models.RecordingArtifact) (bool, error) {
	const q = `INSERT INTO recording_artifacts
		(id, session_id, course_id, zoom_recording_id, title, recording_url, download_url, duration, file_size, recorded_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (zoom_recording_id) DO NOTHING
		RETURNING id, is_processed, s3_key, s3_url, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q,
		art.SessionID, art.CourseID, art.ZoomRecordingID, art.Title, art.RecordingURL,
		art.DownloadURL, art.Duration, art.FileSize, art.RecordedAt).
		Scan(&art.ID, &art.IsProcessed, &art.S3Key, &art.S3URL, &art.CreatedAt, &art.UpdatedAt)
	if err == nil {
		return true, nil
	}
	if err != pgx.ErrNoRows {
		return false, err
	}
	existing, err := r.GetByZoomRecordingID(ctx, art.ZoomRecordingID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		*art = *existing
	}
	return false, nil
}

// GetByID returns an artifact by ID, or (nil, nil) when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.RecordingArtifact, error) {
	const q = `SELECT ` + artifactColumns + ` FROM recording_artifacts WHERE id = $1`
	var a models.RecordingArtifact
	if err := scanArtifact(r.pool.QueryRow(ctx, q, id), &a); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// GetByZoomRecordingID returns an artifact by its natural key, or (nil, nil) when absent.
func (r *Repository) GetByZoomRecordingID(ctx context.Context, zoomID string) (*models.RecordingArtifact, error) {
	const q = `SELECT ` + artifactColumns + ` FROM recording_artifacts WHERE zoom_recording_id = $1`
	var a models.RecordingArtifact
	if err := scanArtifact(r.pool.QueryRow(ctx, q, zoomID), &a); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// ListBySession returns all artifacts for a session, newest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.RecordingArtifact, error) {
	const q = `SELECT ` + artifactColumns + ` FROM recording_artifacts WHERE session_id = $1 ORDER BY recorded_at DESC`
	rows, err := r.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.RecordingArtifact
	for rows.Next() {
		var a models.RecordingArtifact
		if err := scanArtifact(rows, &a); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// Delete removes an artifact row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM recording_artifacts WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// MarkArchived records the S3 location and flips is_processed.
func (r *Repository) MarkArchived(ctx context.Context, id uuid.UUID, s3Key, s3URL string) error {
	const q = `UPDATE recording_artifacts SET is_processed = TRUE, s3_key = $1, s3_url = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, s3Key, s3URL, id)
	return err
}
