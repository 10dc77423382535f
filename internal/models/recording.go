package models

import (
	"time"

	"github.com/google/uuid"
)

// RecordingArtifact is one recorded video file discovered from Zoom cloud
// recordings. ZoomRecordingID is the natural key; insertion is idempotent
// by that key so re-discovery never duplicates rows.
type RecordingArtifact struct {
	ID              uuid.UUID `json:"id"`
	SessionID       uuid.UUID `json:"session_id"`
	CourseID        uuid.UUID `json:"course_id"`
	ZoomRecordingID string    `json:"zoom_recording_id"`
	Title           string    `json:"title"`
	RecordingURL    string    `json:"recording_url"`
	DownloadURL     string    `json:"download_url"`
	Duration        int       `json:"duration"`  // seconds
	FileSize        int64     `json:"file_size"` // bytes
	RecordedAt      time.Time `json:"recorded_at"`
	IsProcessed     bool      `json:"is_processed"`
	S3Key           string    `json:"s3_key,omitempty"`
	S3URL           string    `json:"s3_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
