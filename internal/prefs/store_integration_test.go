package prefs

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"samsar/server/config"
	"samsar/server/internal/database"
	"samsar/server/internal/processor"
	"samsar/server/internal/queue"
)

func TestStore_PersistsThroughQueue(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := database.NewDatabase(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.RunMigrations())

	cfg := &config.Config{}
	cfg.BatchProcessing.MaxBatchSize = 10
	cfg.BatchProcessing.MaxRetries = 1

	prefQueue := queue.NewPreferenceQueue(cfg.BatchProcessing.MaxBatchSize, logger)
	batchProcessor := processor.NewBatchProcessor(db.GORM(), prefQueue, cfg, logger)
	batchProcessor.Start()

	store := NewStore(db, prefQueue, logger)
	require.NoError(t, store.MarkViewed("visitor-1", "apt-7.json"))
	require.NoError(t, store.SetLastCategory("visitor-1", "requests", "offices"))
	require.NoError(t, store.MarkWelcomeShown("visitor-1"))

	// Stop flushes every queued write
	batchProcessor.Stop()

	// A fresh store only knows what reached the database
	reloaded := NewStore(db, nil, logger)
	assert.Equal(t, "apt-7.json", reloaded.LastViewed("visitor-1"))
	assert.Equal(t, "offices", reloaded.LastCategory("visitor-1", "requests"))
	assert.False(t, reloaded.ShouldShowWelcome("visitor-1"))
	assert.True(t, reloaded.ShouldShowWelcome("visitor-2"))

	count, err := db.CountPreferences()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
