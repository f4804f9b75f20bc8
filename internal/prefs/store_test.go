package prefs

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"samsar/server/internal/models"
)

type MockLoader struct {
	mock.Mock
}

func (m *MockLoader) GetPreference(visitorID string) (*models.Preference, error) {
	args := m.Called(visitorID)
	if p := args.Get(0); p != nil {
		return p.(*models.Preference), args.Error(1)
	}
	return nil, args.Error(1)
}

type recordingWriter struct {
	mu      sync.Mutex
	batches [][]*models.Preference
	err     error
}

func (w *recordingWriter) Push(batch []*models.Preference) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, batch)
	return w.err
}

func (w *recordingWriter) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

func (w *recordingWriter) last() *models.Preference {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.batches) == 0 {
		return nil
	}
	batch := w.batches[len(w.batches)-1]
	return batch[len(batch)-1]
}

func newTestStore(loader Loader, writer Writer) *Store {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s := NewStore(loader, writer, logger)
	s.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestStore_GetLoadsOnce(t *testing.T) {
	loader := &MockLoader{}
	loader.On("GetPreference", "v1").Return(&models.Preference{
		VisitorID:      "v1",
		LastViewedFile: "apt-3.json",
		WelcomeShown:   true,
	}, nil).Once()

	s := newTestStore(loader, nil)

	assert.Equal(t, "apt-3.json", s.LastViewed("v1"))
	assert.False(t, s.ShouldShowWelcome("v1"))
	loader.AssertExpectations(t)
}

func TestStore_UnknownVisitor(t *testing.T) {
	loader := &MockLoader{}
	loader.On("GetPreference", "new").Return(nil, nil).Once()

	s := newTestStore(loader, nil)

	pref := s.Get("new")
	assert.Equal(t, "new", pref.VisitorID)
	assert.Empty(t, pref.LastViewedFile)
	assert.True(t, s.ShouldShowWelcome("new"))
	loader.AssertExpectations(t)
}

func TestStore_LoadErrorIsRetried(t *testing.T) {
	loader := &MockLoader{}
	loader.On("GetPreference", "v1").Return(nil, errors.New("database is locked")).Once()
	loader.On("GetPreference", "v1").Return(&models.Preference{VisitorID: "v1", LastViewedFile: "a.json"}, nil).Once()

	s := newTestStore(loader, nil)

	assert.Empty(t, s.LastViewed("v1"))
	assert.Equal(t, "a.json", s.LastViewed("v1"))
	loader.AssertExpectations(t)
}

func TestStore_MarkViewed(t *testing.T) {
	writer := &recordingWriter{}
	s := newTestStore(nil, writer)

	require.NoError(t, s.MarkViewed("v1", "apt-1.json"))
	require.NoError(t, s.MarkViewed("v1", " apt-2.json "))

	assert.Equal(t, "apt-2.json", s.LastViewed("v1"))

	written := writer.last()
	require.NotNil(t, written)
	assert.Equal(t, "v1", written.VisitorID)
	assert.Equal(t, "apt-2.json", written.LastViewedFile)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), written.UpdatedAt)
	assert.Len(t, writer.batches, 2)
}

func TestStore_Validation(t *testing.T) {
	s := newTestStore(nil, &recordingWriter{})

	assert.ErrorIs(t, s.MarkViewed("", "a.json"), ErrNoVisitor)
	assert.Error(t, s.MarkViewed("v1", "  "))
	assert.ErrorIs(t, s.MarkWelcomeShown(""), ErrNoVisitor)
}

func TestStore_WrittenSnapshotIsDetached(t *testing.T) {
	writer := &recordingWriter{}
	s := newTestStore(nil, writer)

	require.NoError(t, s.MarkViewed("v1", "a.json"))
	first := writer.last()
	require.NoError(t, s.MarkViewed("v1", "b.json"))

	assert.Equal(t, "a.json", first.LastViewedFile)
}

func TestStore_LastCategory(t *testing.T) {
	s := newTestStore(nil, &recordingWriter{})

	require.NoError(t, s.SetLastCategory("v1", "requests", "shops"))

	assert.Equal(t, "shops", s.LastCategory("v1", "requests"))
	assert.Empty(t, s.LastCategory("v1", "properties"))
}

func TestStore_MarkWelcomeShownOnce(t *testing.T) {
	writer := &recordingWriter{}
	s := newTestStore(nil, writer)

	assert.True(t, s.ShouldShowWelcome("v1"))
	require.NoError(t, s.MarkWelcomeShown("v1"))
	require.NoError(t, s.MarkWelcomeShown("v1"))

	assert.False(t, s.ShouldShowWelcome("v1"))
	assert.Len(t, writer.batches, 1)
}

func TestStore_QueueFailureKeepsMemory(t *testing.T) {
	writer := &recordingWriter{err: errors.New("queue is full")}
	s := newTestStore(nil, writer)

	require.NoError(t, s.MarkViewed("v1", "a.json"))
	assert.Equal(t, "a.json", s.LastViewed("v1"))
}

func TestStore_Prune(t *testing.T) {
	s := newTestStore(nil, &recordingWriter{})

	require.NoError(t, s.MarkViewed("recent", "a.json"))
	s.Get("untouched")

	dropped := s.Prune(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, 1, dropped)
	assert.Equal(t, "a.json", s.LastViewed("recent"))
}

func TestStore_PruneKeepsUnqueuedChanges(t *testing.T) {
	writer := &recordingWriter{err: errors.New("queue is full")}
	s := newTestStore(nil, writer)
	require.NoError(t, s.MarkViewed("v1", "a.json"))

	future := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, s.Prune(future))
	assert.Equal(t, "a.json", s.LastViewed("v1"))

	// Once a later write is queued the entry can go
	writer.setErr(nil)
	require.NoError(t, s.SetLastCategory("v1", "properties", "shops"))
	assert.Equal(t, 1, s.Prune(future))
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	writer := &recordingWriter{}
	s := newTestStore(nil, writer)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.MarkViewed("v1", "a.json"))
			assert.NoError(t, s.SetLastCategory("v1", "properties", "shops"))
		}()
	}
	wg.Wait()

	pref := s.Get("v1")
	assert.Equal(t, "a.json", pref.LastViewedFile)
	assert.Equal(t, "shops", pref.LastCategory)
	assert.Len(t, writer.batches, 40)
}
