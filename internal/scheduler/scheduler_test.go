package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"samsar/server/internal/models"
)

type MockWarmer struct {
	mock.Mock
}

func (m *MockWarmer) Load(ctx context.Context, section, category string) ([]models.Record, error) {
	args := m.Called(ctx, section, category)
	records, _ := args.Get(0).([]models.Record)
	return records, args.Error(1)
}

type MockSweeper struct {
	mock.Mock
}

func (m *MockSweeper) Sweep(idle time.Duration) int {
	return m.Called(idle).Int(0)
}

type MockPruner struct {
	mock.Mock
}

func (m *MockPruner) DeletePreferencesBefore(before time.Time) (int64, error) {
	args := m.Called(before)
	return args.Get(0).(int64), args.Error(1)
}

type countingPrefs struct {
	mu     sync.Mutex
	cutoff time.Time
}

func (p *countingPrefs) Prune(before time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoff = before
	return 0
}

var testCategories = []models.CategoryMeta{
	{Section: "properties", Key: "apartments"},
	{Section: "requests", Key: "shops"},
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestJobType_String(t *testing.T) {
	tests := []struct {
		job      JobType
		expected string
	}{
		{JobTypeWarm, "warm"},
		{JobTypeSweep, "sweep"},
		{JobTypePrune, "prune"},
		{JobType(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.job.String())
		})
	}
}

func TestRunOnce_Startup(t *testing.T) {
	warmer := &MockWarmer{}
	sweeper := &MockSweeper{}
	pruner := &MockPruner{}

	warmer.On("Load", mock.Anything, "properties", "apartments").Return([]models.Record{{Filename: "a.json"}}, nil).Once()
	warmer.On("Load", mock.Anything, "requests", "shops").Return(nil, errors.New("index unavailable")).Once()

	s := NewScheduler(warmer, sweeper, pruner, nil, testCategories, Options{
		WarmInterval:        time.Minute,
		SessionIdleTimeout:  time.Minute,
		PreferenceRetention: time.Hour,
	}, quietLogger())
	s.RunOnce(true)

	warmer.AssertExpectations(t)
	sweeper.AssertNotCalled(t, "Sweep", mock.Anything)
	pruner.AssertNotCalled(t, "DeletePreferencesBefore", mock.Anything)
}

func TestRunOnce_Periodic(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	warmer := &MockWarmer{}
	sweeper := &MockSweeper{}
	pruner := &MockPruner{}
	prefs := &countingPrefs{}

	warmer.On("Load", mock.Anything, mock.Anything, mock.Anything).Return([]models.Record{}, nil)
	sweeper.On("Sweep", 30*time.Minute).Return(2).Once()
	pruner.On("DeletePreferencesBefore", now.Add(-24*time.Hour)).Return(int64(5), nil).Once()

	s := NewScheduler(warmer, sweeper, pruner, prefs, testCategories, Options{
		WarmInterval:        time.Minute,
		SessionIdleTimeout:  30 * time.Minute,
		PreferenceRetention: 24 * time.Hour,
	}, quietLogger())
	s.now = func() time.Time { return now }
	s.RunOnce(false)

	warmer.AssertNumberOfCalls(t, "Load", 2)
	sweeper.AssertExpectations(t)
	pruner.AssertExpectations(t)
	assert.Equal(t, now.Add(-24*time.Hour), prefs.cutoff)
}

func TestRunOnce_RetentionDisabled(t *testing.T) {
	warmer := &MockWarmer{}
	pruner := &MockPruner{}
	warmer.On("Load", mock.Anything, mock.Anything, mock.Anything).Return([]models.Record{}, nil)

	s := NewScheduler(warmer, nil, pruner, nil, testCategories, Options{WarmInterval: time.Minute}, quietLogger())
	s.RunOnce(false)

	pruner.AssertNotCalled(t, "DeletePreferencesBefore", mock.Anything)
}

func TestRunOnce_PruneErrorIsLogged(t *testing.T) {
	warmer := &MockWarmer{}
	pruner := &MockPruner{}
	pruner.On("DeletePreferencesBefore", mock.Anything).Return(int64(0), errors.New("database is locked")).Once()

	s := NewScheduler(warmer, nil, pruner, nil, nil, Options{
		WarmInterval:        time.Minute,
		PreferenceRetention: time.Hour,
	}, quietLogger())

	assert.NotPanics(t, func() { s.RunOnce(false) })
	pruner.AssertExpectations(t)
}

func TestScheduler_StartStop(t *testing.T) {
	warmer := &MockWarmer{}
	warmed := make(chan struct{}, 10)
	warmer.On("Load", mock.Anything, mock.Anything, mock.Anything).
		Return([]models.Record{}, nil).
		Run(func(mock.Arguments) { warmed <- struct{}{} })

	s := NewScheduler(warmer, nil, nil, nil, testCategories[:1], Options{WarmInterval: time.Hour}, quietLogger())
	s.Start()

	select {
	case <-warmed:
	case <-time.After(time.Second):
		t.Fatal("startup warm-up did not run")
	}

	done := make(chan struct{})
	go func() {
		s.Stop()
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestJobContext_CancelledByStop(t *testing.T) {
	s := NewScheduler(&MockWarmer{}, nil, nil, nil, nil, Options{WarmInterval: time.Minute, Timeout: time.Hour}, quietLogger())
	ctx, cancel := s.jobContext()
	defer cancel()

	s.Stop()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("job context survived Stop")
	}
}
