package recordings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightclass/backend/internal/models"
	"github.com/brightclass/backend/internal/zoom"
	"github.com/brightclass/backend/pkg/queue"
)

type fakeLister struct {
	files []zoom.RecordingFile
	calls int
	err   error
}

func (f *fakeLister) ListRecordings(ctx context.Context, meetingID string) ([]zoom.RecordingFile, error) {
	f.calls++
	return f.files, f.err
}

type fakeArtifacts struct {
	byKey map[string]*models.RecordingArtifact
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{byKey: make(map[string]*models.RecordingArtifact)}
}

func (f *fakeArtifacts) InsertIdempotent(ctx context.Context, art *models.RecordingArtifact) (bool, error) {
	if existing, ok := f.byKey[art.ZoomRecordingID]; ok {
		*art = *existing
		return false, nil
	}
	art.ID = uuid.New()
	stored := *art
	f.byKey[art.ZoomRecordingID] = &stored
	return true, nil
}

func (f *fakeArtifacts) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.RecordingArtifact, error) {
	var out []models.RecordingArtifact
	for _, a := range f.byKey {
		if a.SessionID == sessionID {
			out = append(out, *a)
		}
	}
	return out, nil
}

type fakeSessions struct {
	flags    map[uuid.UUID]bool
	sets     int
	failNext error
}

func newFakeSessions() *fakeSessions { return &fakeSessions{flags: make(map[uuid.UUID]bool)} }

func (f *fakeSessions) SetHasRecording(ctx context.Context, sessionID uuid.UUID, has bool) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.flags[sessionID] = has
	f.sets++
	return nil
}

type fakeArchiver struct {
	payloads []queue.RecordingArchivePayload
}

func (f *fakeArchiver) EnqueueRecordingArchive(ctx context.Context, p queue.RecordingArchivePayload) error {
	f.payloads = append(f.payloads, p)
	return nil
}

func testSession() *models.Session {
	return &models.Session{
		ID:        uuid.New(),
		CourseID:  uuid.New(),
		Title:     "Physics — Week 4",
		MeetingID: "81234567890",
		Status:    models.SessionStatusCompleted,
	}
}

func videoFile(id string) zoom.RecordingFile {
	start := time.Now().Add(-time.Hour)
	return zoom.RecordingFile{
		ID:             id,
		FileType:       zoom.FileTypeMP4,
		RecordingType:  zoom.RecordingTypeSharedScreenWithSpeaker,
		FileSize:       1 << 20,
		PlayURL:        "https://zoom.us/rec/play/" + id,
		DownloadURL:    "https://zoom.us/rec/download/" + id,
		RecordingStart: start,
		RecordingEnd:   start.Add(45 * time.Minute),
	}
}

func audioFile(id string) zoom.RecordingFile {
	f := videoFile(id)
	f.FileType = zoom.FileTypeM4A
	f.RecordingType = zoom.RecordingTypeAudioOnly
	return f
}

func TestDiscoverFiltersAudioOnlyFiles(t *testing.T) {
	lister := &fakeLister{files: []zoom.RecordingFile{audioFile("rec-audio"), videoFile("rec-video")}}
	artifacts := newFakeArtifacts()
	sessStore := newFakeSessions()
	d := NewDiscovery(lister, artifacts, sessStore, nil, nil)

	sess := testSession()
	arts, err := d.Discover(context.Background(), sess)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, "rec-video", arts[0].ZoomRecordingID)
	assert.Equal(t, int(45*time.Minute/time.Second), arts[0].Duration)
	assert.True(t, sess.HasRecording)
	assert.True(t, sessStore.flags[sess.ID])
}

func TestDiscoverIsIdempotent(t *testing.T) {
	lister := &fakeLister{files: []zoom.RecordingFile{videoFile("rec-1")}}
	artifacts := newFakeArtifacts()
	d := NewDiscovery(lister, artifacts, newFakeSessions(), nil, nil)

	sess := testSession()
	first, err := d.Discover(context.Background(), sess)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := d.Discover(context.Background(), sess)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Len(t, artifacts.byKey, 1, "double discovery must not duplicate rows")
}

func TestDiscoverCacheFirstSkipsProvider(t *testing.T) {
	lister := &fakeLister{files: []zoom.RecordingFile{videoFile("rec-1")}}
	artifacts := newFakeArtifacts()
	d := NewDiscovery(lister, artifacts, newFakeSessions(), nil, nil)

	sess := testSession()
	_, err := d.Discover(context.Background(), sess)
	require.NoError(t, err)
	require.Equal(t, 1, lister.calls)

	_, err = d.Discover(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, 1, lister.calls, "persisted artifacts short-circuit the provider call")
}

func TestDiscoverRepairsRecordingFlagOnCachedArtifacts(t *testing.T) {
	lister := &fakeLister{files: []zoom.RecordingFile{videoFile("rec-1")}}
	artifacts := newFakeArtifacts()
	sessStore := newFakeSessions()
	sessStore.failNext = errors.New("connection reset")
	d := NewDiscovery(lister, artifacts, sessStore, nil, nil)

	// First pass persists the artifact but the flag flip fails.
	sess := testSession()
	_, err := d.Discover(context.Background(), sess)
	require.Error(t, err)
	require.Len(t, artifacts.byKey, 1)
	require.False(t, sessStore.flags[sess.ID])

	// The cache-first replay must flip the flag, not just return rows.
	arts, err := d.Discover(context.Background(), sess)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.True(t, sess.HasRecording)
	assert.True(t, sessStore.flags[sess.ID], "flag must catch up with persisted artifacts")
}

func TestDiscoverEmptyIsNotAnError(t *testing.T) {
	lister := &fakeLister{}
	sessStore := newFakeSessions()
	d := NewDiscovery(lister, newFakeArtifacts(), sessStore, nil, nil)

	sess := testSession()
	arts, err := d.Discover(context.Background(), sess)
	require.NoError(t, err)
	assert.Empty(t, arts)
	assert.False(t, sess.HasRecording)
	assert.Zero(t, sessStore.sets)
}

func TestDiscoverProviderErrorPropagates(t *testing.T) {
	lister := &fakeLister{err: errors.New("rate limited")}
	d := NewDiscovery(lister, newFakeArtifacts(), newFakeSessions(), nil, nil)

	_, err := d.Discover(context.Background(), testSession())
	assert.Error(t, err)
}

func TestDiscoverEnqueuesArchiveForNewArtifacts(t *testing.T) {
	lister := &fakeLister{files: []zoom.RecordingFile{videoFile("rec-1")}}
	archiver := &fakeArchiver{}
	d := NewDiscovery(lister, newFakeArtifacts(), newFakeSessions(), archiver, nil)

	sess := testSession()
	_, err := d.Discover(context.Background(), sess)
	require.NoError(t, err)
	require.Len(t, archiver.payloads, 1)
	assert.Equal(t, sess.ID, archiver.payloads[0].SessionID)

	// No re-enqueue on replay: the rows already exist.
	_, err = d.Discover(context.Background(), sess)
	require.NoError(t, err)
	assert.Len(t, archiver.payloads, 1)
}
