package scheduler

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"samsar/server/internal/models"
)

// JobType represents the different periodic jobs
type JobType int

const (
	JobTypeWarm JobType = iota
	JobTypeSweep
	JobTypePrune
)

// String returns the string representation of a JobType
func (j JobType) String() string {
	switch j {
	case JobTypeWarm:
		return "warm"
	case JobTypeSweep:
		return "sweep"
	case JobTypePrune:
		return "prune"
	default:
		return "unknown"
	}
}

// Warmer loads a category through the cache. Stale entries are refetched and
// a failed refetch keeps the previous entry.
type Warmer interface {
	Load(ctx context.Context, section, category string) ([]models.Record, error)
}

// Sweeper drops idle visitor sessions.
type Sweeper interface {
	Sweep(idle time.Duration) int
}

// Pruner deletes visitor preferences untouched since a cutoff.
type Pruner interface {
	DeletePreferencesBefore(before time.Time) (int64, error)
}

// MemoryPruner drops cached visitor preferences untouched since a cutoff.
type MemoryPruner interface {
	Prune(before time.Time) int
}

type Options struct {
	WarmInterval        time.Duration
	SessionIdleTimeout  time.Duration
	PreferenceRetention time.Duration
	Timeout             time.Duration
}

// Scheduler keeps the category cache warm and drops stale visitor state.
type Scheduler struct {
	warmer     Warmer
	sweeper    Sweeper
	pruner     Pruner
	prefs      MemoryPruner
	categories []models.CategoryMeta
	opts       Options
	logger     *logrus.Logger
	stopChan   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	jobMutex   sync.Mutex // Ensures sequential job execution
	now        func() time.Time
}

// NewScheduler creates a new scheduler. sweeper, pruner and prefs may be nil.
func NewScheduler(warmer Warmer, sweeper Sweeper, pruner Pruner, prefs MemoryPruner, categories []models.CategoryMeta, opts Options, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}

	return &Scheduler{
		warmer:     warmer,
		sweeper:    sweeper,
		pruner:     pruner,
		prefs:      prefs,
		categories: categories,
		opts:       opts,
		logger:     logger,
		stopChan:   make(chan struct{}),
		now:        time.Now,
	}
}

// Start begins the scheduled tasks
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.runScheduler()
}

// runScheduler warms the cache once at startup and then on every tick
func (s *Scheduler) runScheduler() {
	defer s.wg.Done()

	s.logger.Info("Running startup cache warm-up")
	s.RunOnce(true)
	s.logger.Info("Startup cache warm-up completed")

	ticker := time.NewTicker(s.opts.WarmInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunOnce(false)
		}
	}
}

// RunOnce executes every job in sequence. Startup runs skip the sweep and
// prune jobs since nothing can be stale yet.
func (s *Scheduler) RunOnce(startup bool) {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	s.warm()
	if startup {
		return
	}
	s.sweep()
	s.prune()
}

// warm reloads every catalog category so visitors hit a fresh cache.
func (s *Scheduler) warm() {
	ctx, cancel := s.jobContext()
	defer cancel()

	warmed := 0
	for _, meta := range s.categories {
		if ctx.Err() != nil {
			return
		}
		fields := logrus.Fields{
			"section":  meta.Section,
			"category": meta.Key,
			"job_type": JobTypeWarm.String(),
		}

		records, err := s.warmer.Load(ctx, meta.Section, meta.Key)
		if err != nil {
			s.logger.WithError(err).WithFields(fields).Warn("Cache warm-up failed")
			continue
		}
		warmed++
		s.logger.WithFields(fields).WithField("records", len(records)).Debug("Category warmed")
	}

	s.logger.WithFields(logrus.Fields{
		"job_type":   JobTypeWarm.String(),
		"warmed":     warmed,
		"categories": len(s.categories),
	}).Info("Cache warm-up finished")
}

func (s *Scheduler) sweep() {
	if s.sweeper == nil || s.opts.SessionIdleTimeout <= 0 {
		return
	}
	if dropped := s.sweeper.Sweep(s.opts.SessionIdleTimeout); dropped > 0 {
		s.logger.WithFields(logrus.Fields{
			"job_type": JobTypeSweep.String(),
			"dropped":  dropped,
		}).Info("Dropped idle visitor sessions")
	}
}

func (s *Scheduler) prune() {
	if s.opts.PreferenceRetention <= 0 {
		return
	}
	cutoff := s.now().Add(-s.opts.PreferenceRetention)

	if s.prefs != nil {
		s.prefs.Prune(cutoff)
	}
	if s.pruner == nil {
		return
	}
	deleted, err := s.pruner.DeletePreferencesBefore(cutoff)
	if err != nil {
		s.logger.WithError(err).WithField("job_type", JobTypePrune.String()).Error("Failed to prune preferences")
		return
	}
	if deleted > 0 {
		s.logger.WithFields(logrus.Fields{
			"job_type": JobTypePrune.String(),
			"deleted":  deleted,
		}).Info("Pruned stale visitor preferences")
	}
}

// jobContext is cancelled by Stop or after the job timeout.
func (s *Scheduler) jobContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}
