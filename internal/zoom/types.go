package zoom

import "time"

// Meeting types per the Zoom API. Type 2 is a scheduled meeting.
const (
	MeetingTypeScheduled = 2

	// MaxTopicLength is the provider-side limit for meeting topics.
	MaxTopicLength = 200
)

// Recording file classification values from GET /meetings/{id}/recordings.
const (
	FileTypeMP4 = "MP4"
	FileTypeM4A = "M4A"

	RecordingTypeSharedScreenWithSpeaker = "shared_screen_with_speaker_view"
	RecordingTypeSharedScreenWithGallery = "shared_screen_with_gallery_view"
	RecordingTypeSpeakerView             = "speaker_view"
	RecordingTypeGalleryView             = "gallery_view"
	RecordingTypeActiveSpeaker           = "active_speaker"
	RecordingTypeAudioOnly               = "audio_only"
)

// MeetingSettings are the provider toggles sent on meeting creation.
type MeetingSettings struct {
	HostVideo        bool   `json:"host_video"`
	ParticipantVideo bool   `json:"participant_video"`
	JoinBeforeHost   bool   `json:"join_before_host"`
	MuteUponEntry    bool   `json:"mute_upon_entry"`
	WaitingRoom      bool   `json:"waiting_room"`
	AutoRecording    string `json:"auto_recording"` // "cloud", "local" or "none"
	UsePMI           bool   `json:"use_pmi"`
}

// MeetingRequest is the body for POST /users/{userId}/meetings.
// Immutable once submitted to the creation queue.
type MeetingRequest struct {
	Topic     string          `json:"topic"`
	Type      int             `json:"type"`
	StartTime time.Time       `json:"start_time"`
	Duration  int             `json:"duration"` // minutes
	Timezone  string          `json:"timezone"`
	Password  string          `json:"password,omitempty"`
	Agenda    string          `json:"agenda,omitempty"`
	Settings  MeetingSettings `json:"settings"`
}

// Meeting is the subset of the meeting-creation response the platform keeps.
type Meeting struct {
	ID       int64  `json:"id"`
	HostID   string `json:"host_id,omitempty"`
	Topic    string `json:"topic"`
	StartURL string `json:"start_url"`
	JoinURL  string `json:"join_url"`
	Password string `json:"password"`
}

// RecordingFile is one artifact from GET /meetings/{meetingId}/recordings.
type RecordingFile struct {
	ID             string    `json:"id"`
	MeetingID      string    `json:"meeting_id"`
	FileType       string    `json:"file_type"`
	RecordingType  string    `json:"recording_type"`
	FileSize       int64     `json:"file_size"`
	PlayURL        string    `json:"play_url"`
	DownloadURL    string    `json:"download_url"`
	RecordingStart time.Time `json:"recording_start"`
	RecordingEnd   time.Time `json:"recording_end"`
}

// IsVideo reports whether the file is a combined audio+video recording.
// Zoom also emits audio-only and phone-call artifacts which must be
// excluded from discovery.
func (f RecordingFile) IsVideo() bool {
	if f.FileType != FileTypeMP4 {
		return false
	}
	return f.RecordingType != RecordingTypeAudioOnly
}

// recordingsResponse is the body of GET /meetings/{meetingId}/recordings.
type recordingsResponse struct {
	UUID           string          `json:"uuid"`
	ID             int64           `json:"id"`
	Topic          string          `json:"topic"`
	Duration       int             `json:"duration"`
	RecordingCount int             `json:"recording_count"`
	RecordingFiles []RecordingFile `json:"recording_files"`
}

// tokenResponse is the body of the OAuth account_credentials exchange.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
	Scope       string `json:"scope"`
}

// apiError is the provider's JSON error body.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
