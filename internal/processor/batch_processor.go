package processor

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"samsar/server/config"
	"samsar/server/internal/database"
	"samsar/server/internal/models"
	"samsar/server/internal/queue"
)

// transactor is the part of *gorm.DB the processor needs
type transactor interface {
	Transaction(fc func(*gorm.DB) error, opts ...*sql.TxOptions) error
}

// BatchProcessor writes queued preference batches to the database
type BatchProcessor struct {
	db        transactor
	logger    *logrus.Logger
	config    *config.Config
	queue     *queue.PreferenceQueue
	waitGroup sync.WaitGroup
	startOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewBatchProcessor creates a new batch processor instance
func NewBatchProcessor(db transactor, queue *queue.PreferenceQueue, config *config.Config, logger *logrus.Logger) *BatchProcessor {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchProcessor{
		db:     db,
		queue:  queue,
		config: config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes the processor to the queue and starts the queue
func (p *BatchProcessor) Start() {
	p.startOnce.Do(func() {
		p.queue.Subscribe(p.handle)
		p.queue.Start()
	})
}

// Stop drains the queue, then aborts any pending retries
func (p *BatchProcessor) Stop() {
	p.queue.Close()
	p.cancel()
	p.waitGroup.Wait()
}

func (p *BatchProcessor) handle(batch []*models.Preference) error {
	p.waitGroup.Add(1)
	defer p.waitGroup.Done()
	return p.processBatch(batch)
}

// processBatch writes a batch in one transaction, retrying failed attempts
func (p *BatchProcessor) processBatch(batch []*models.Preference) error {
	maxRetries := p.config.BatchProcessing.MaxRetries

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying batch processing, attempt %d of %d", attempt, maxRetries)
			select {
			case <-p.ctx.Done():
				return fmt.Errorf("batch processing cancelled: %w", err)
			case <-time.After(p.config.BatchProcessing.RetryDelay):
			}
		}

		err = p.db.Transaction(func(tx *gorm.DB) error {
			if err := database.UpsertPreferences(tx, batch); err != nil {
				return fmt.Errorf("failed to upsert preferences batch: %w", err)
			}
			return nil
		})

		if err == nil {
			p.logger.WithField("batch_size", len(batch)).Debug("Stored preference batch")
			return nil
		}

		p.logger.WithError(err).Error("Batch processing failed")
	}

	return fmt.Errorf("failed to process batch after %d attempts: %w", maxRetries+1, err)
}
