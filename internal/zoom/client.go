package zoom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/brightclass/backend/config"
)

const (
	createMaxAttempts = 3
	createBaseBackoff = 2 * time.Second
)

// ErrStartTimeInPast is returned by CreateMeeting before any provider
// call when the requested start time is not strictly in the future.
var ErrStartTimeInPast = errors.New("zoom: meeting start_time must be in the future")

// StatusError is a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("zoom: status %d: %s", e.StatusCode, e.Message)
}

// IsAuthError reports whether err is a provider 401/403, which signals
// the cached token should be invalidated before retrying.
func IsAuthError(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden
	}
	return false
}

// Client performs meeting and recording operations against the Zoom API.
// When credentials are absent it fabricates local meetings so callers can
// run in a degraded/offline mode without special-casing.
type Client struct {
	cfg    config.ZoomConfig
	tokens *TokenManager
	http   *http.Client
	logger *zap.Logger

	baseBackoff time.Duration // shrunk in tests
}

// NewClient creates a Zoom API client on top of the token manager.
func NewClient(cfg config.ZoomConfig, tokens *TokenManager, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:         cfg,
		tokens:      tokens,
		http:        &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
		baseBackoff: createBaseBackoff,
	}
}

// Offline reports whether the client is running without credentials.
func (c *Client) Offline() bool { return !c.cfg.Configured() }

// CreateMeeting creates a scheduled meeting for the host identity
// (user id or email; empty falls back to the configured host). The
// request is validated before any network call. Transient and auth
// failures are retried up to 3 times with exponential backoff; an auth
// failure invalidates the cached token before the next attempt. The last
// error is returned after exhaustion.
func (c *Client) CreateMeeting(ctx context.Context, req MeetingRequest, hostID string) (*Meeting, error) {
	if !req.StartTime.After(time.Now()) {
		return nil, ErrStartTimeInPast
	}
	if len(req.Topic) > MaxTopicLength {
		req.Topic = req.Topic[:MaxTopicLength]
	}
	if req.Type == 0 {
		req.Type = MeetingTypeScheduled
	}
	if hostID == "" {
		hostID = c.cfg.HostEmail
	}

	if c.Offline() {
		return c.syntheticMeeting(req), nil
	}

	var lastErr error
	for attempt := 1; attempt <= createMaxAttempts; attempt++ {
		var meeting Meeting
		err := c.do(ctx, http.MethodPost, "/users/"+hostID+"/meetings", req, &meeting)
		if err == nil {
			c.logger.Info("zoom meeting created",
				zap.Int64("meeting_id", meeting.ID),
				zap.String("topic", req.Topic))
			return &meeting, nil
		}
		lastErr = err
		if IsAuthError(err) {
			c.tokens.Invalidate()
		}
		c.logger.Warn("zoom meeting creation failed",
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < createMaxAttempts {
			if serr := sleepCtx(ctx, c.baseBackoff<<(attempt-1)); serr != nil {
				return nil, serr
			}
		}
	}
	return nil, lastErr
}

// UpdateMeeting patches an existing meeting. Failures are logged, not
// propagated; callers treat updates as non-critical housekeeping.
func (c *Client) UpdateMeeting(ctx context.Context, meetingID string, req MeetingRequest) {
	if c.Offline() {
		return
	}
	if len(req.Topic) > MaxTopicLength {
		req.Topic = req.Topic[:MaxTopicLength]
	}
	if err := c.do(ctx, http.MethodPatch, "/meetings/"+meetingID, req, nil); err != nil {
		c.logger.Warn("zoom meeting update failed", zap.String("meeting_id", meetingID), zap.Error(err))
	}
}

// DeleteMeeting removes a meeting. Failures are logged, not propagated.
func (c *Client) DeleteMeeting(ctx context.Context, meetingID string) {
	if c.Offline() {
		return
	}
	if err := c.do(ctx, http.MethodDelete, "/meetings/"+meetingID, nil, nil); err != nil {
		c.logger.Warn("zoom meeting deletion failed", zap.String("meeting_id", meetingID), zap.Error(err))
	}
}

// ListRecordings fetches the cloud recording files for a meeting. An
// empty list is a normal result while the provider is still processing.
func (c *Client) ListRecordings(ctx context.Context, meetingID string) ([]RecordingFile, error) {
	if c.Offline() {
		return nil, nil
	}
	var resp recordingsResponse
	err := c.do(ctx, http.MethodGet, "/meetings/"+meetingID+"/recordings", nil, &resp)
	if err != nil {
		var se *StatusError
		// Zoom returns 404 when no recordings exist yet for the meeting.
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return resp.RecordingFiles, nil
}

// do executes one authenticated API request and decodes the response
// into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIBaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("zoom request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ae apiError
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if jsonErr := json.Unmarshal(raw, &ae); jsonErr == nil && ae.Message != "" {
			return &StatusError{StatusCode: resp.StatusCode, Message: ae.Message}
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// syntheticMeeting fabricates a local meeting record for offline mode.
func (c *Client) syntheticMeeting(req MeetingRequest) *Meeting {
	id := int64(8e10 + rand.Int63n(1e10)) // 11-digit, provider-shaped
	password := req.Password
	if password == "" {
		password = uuid.NewString()[:8]
	}
	m := &Meeting{
		ID:       id,
		Topic:    req.Topic,
		StartURL: fmt.Sprintf("https://meet.brightclass.local/s/%d?role=host", id),
		JoinURL:  fmt.Sprintf("https://meet.brightclass.local/j/%d", id),
		Password: password,
	}
	c.logger.Info("zoom credentials absent, issued synthetic meeting", zap.Int64("meeting_id", id))
	return m
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
