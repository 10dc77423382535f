package models

import (
	"time"

	"github.com/google/uuid"
)

// Session status lifecycle. Transitions are driven by Zoom webhook events
// or explicit instructor start/end/cancel actions.
const (
	SessionStatusScheduled = "scheduled"
	SessionStatusLive      = "live"
	SessionStatusCompleted = "completed"
	SessionStatusCancelled = "cancelled"
)

// Session is a live class session backed by a Zoom meeting.
type Session struct {
	ID              uuid.UUID `json:"id"`
	CourseID        uuid.UUID `json:"course_id"`
	Title           string    `json:"title"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMin     int       `json:"duration_min"`
	Timezone        string    `json:"timezone"`
	MeetingID       string    `json:"meeting_id,omitempty"`
	JoinURL         string    `json:"join_url,omitempty"`
	StartURL        string    `json:"start_url,omitempty"`
	MeetingPasscode string    `json:"meeting_passcode,omitempty"`
	Status          string    `json:"status"`
	HasRecording    bool      `json:"has_recording"`
	CreatedBy       uuid.UUID `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
