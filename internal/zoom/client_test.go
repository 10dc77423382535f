package zoom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightclass/backend/config"
)

func futureRequest() MeetingRequest {
	return MeetingRequest{
		Topic:     "Algebra II — Live Review",
		StartTime: time.Now().Add(time.Hour),
		Duration:  60,
		Timezone:  "UTC",
	}
}

func TestCreateMeetingRejectsPastStartTime(t *testing.T) {
	var apiCalls int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&apiCalls, 1)
	}))
	defer api.Close()

	cfg := testZoomConfig(api.URL)
	cfg.APIBaseURL = api.URL
	c := NewClient(cfg, NewTokenManager(cfg, nil), nil)

	req := futureRequest()
	req.StartTime = time.Now().Add(-time.Minute)
	_, err := c.CreateMeeting(context.Background(), req, "")
	assert.ErrorIs(t, err, ErrStartTimeInPast)
	assert.Equal(t, int32(0), apiCalls, "no provider call for invalid requests")
}

func TestCreateMeetingOfflineFallback(t *testing.T) {
	c := NewClient(config.ZoomConfig{}, NewTokenManager(config.ZoomConfig{}, nil), nil)

	m, err := c.CreateMeeting(context.Background(), futureRequest(), "")
	require.NoError(t, err)
	assert.NotZero(t, m.ID)
	assert.Contains(t, m.JoinURL, "/j/")
	assert.Contains(t, m.StartURL, "role=host")
	assert.NotEmpty(t, m.Password)
}

func TestCreateMeetingTruncatesTopic(t *testing.T) {
	var gotTopic string
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
	})
	mux.HandleFunc("/users/me/meetings", func(w http.ResponseWriter, r *http.Request) {
		var req MeetingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotTopic = req.Topic
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":81234567890,"start_url":"https://zoom.us/s/81234567890","join_url":"https://zoom.us/j/81234567890","password":"x"}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cfg := testZoomConfig(ts.URL + "/oauth/token")
	cfg.APIBaseURL = ts.URL
	cfg.HostEmail = "me"
	c := NewClient(cfg, NewTokenManager(cfg, nil), nil)

	req := futureRequest()
	req.Topic = strings.Repeat("a", MaxTopicLength+50)
	m, err := c.CreateMeeting(context.Background(), req, "")
	require.NoError(t, err)
	assert.Equal(t, int64(81234567890), m.ID)
	assert.Len(t, gotTopic, MaxTopicLength)
}

func TestCreateMeetingRetriesAndInvalidatesTokenOnAuthFailure(t *testing.T) {
	var tokenCalls, meetingCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
	})
	mux.HandleFunc("/users/me/meetings", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&meetingCalls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":124,"message":"Invalid access token."}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":81234567890,"start_url":"s","join_url":"j","password":"p"}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cfg := testZoomConfig(ts.URL + "/oauth/token")
	cfg.APIBaseURL = ts.URL
	cfg.HostEmail = "me"
	c := NewClient(cfg, NewTokenManager(cfg, nil), nil)
	c.baseBackoff = time.Millisecond

	m, err := c.CreateMeeting(context.Background(), futureRequest(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(81234567890), m.ID)
	assert.Equal(t, int32(2), meetingCalls)
	assert.Equal(t, int32(2), tokenCalls, "401 must invalidate the cached token before the retry")
}

func TestCreateMeetingReturnsLastErrorAfterExhaustion(t *testing.T) {
	var meetingCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
	})
	mux.HandleFunc("/users/me/meetings", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&meetingCalls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cfg := testZoomConfig(ts.URL + "/oauth/token")
	cfg.APIBaseURL = ts.URL
	cfg.HostEmail = "me"
	c := NewClient(cfg, NewTokenManager(cfg, nil), nil)
	c.baseBackoff = time.Millisecond

	_, err := c.CreateMeeting(context.Background(), futureRequest(), "")
	require.Error(t, err)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.Equal(t, int32(3), meetingCalls)
}

func TestListRecordingsNotFoundMeansNotYet(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
	})
	mux.HandleFunc("/meetings/123/recordings", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":3301,"message":"This recording does not exist."}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cfg := testZoomConfig(ts.URL + "/oauth/token")
	cfg.APIBaseURL = ts.URL
	c := NewClient(cfg, NewTokenManager(cfg, nil), nil)

	files, err := c.ListRecordings(context.Background(), "123")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestListRecordingsParsesFiles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
	})
	mux.HandleFunc("/meetings/123/recordings", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": 123,
			"recording_count": 2,
			"recording_files": [
				{"id":"rec-1","file_type":"MP4","recording_type":"shared_screen_with_speaker_view","file_size":1048576,"play_url":"https://zoom.us/rec/play/1","download_url":"https://zoom.us/rec/download/1"},
				{"id":"rec-2","file_type":"M4A","recording_type":"audio_only","file_size":2048,"play_url":"https://zoom.us/rec/play/2","download_url":"https://zoom.us/rec/download/2"}
			]
		}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cfg := testZoomConfig(ts.URL + "/oauth/token")
	cfg.APIBaseURL = ts.URL
	c := NewClient(cfg, NewTokenManager(cfg, nil), nil)

	files, err := c.ListRecordings(context.Background(), "123")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.True(t, files[0].IsVideo())
	assert.False(t, files[1].IsVideo())
}
