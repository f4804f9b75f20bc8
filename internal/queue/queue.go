package queue

import (
	"errors"
	"os"
	"sync"

	"samsar/server/internal/models"

	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// PreferenceQueue buffers visitor preference batches on their way to storage
type PreferenceQueue struct {
	items    chan []*models.Preference
	stopped  chan struct{}
	maxSize  int
	closed   bool
	started  bool
	mu       sync.RWMutex
	logger   *logrus.Logger
	handlers []func([]*models.Preference) error
}

// NewPreferenceQueue creates a new preference queue with the specified buffer size
func NewPreferenceQueue(bufferSize int, logger *logrus.Logger) *PreferenceQueue {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &PreferenceQueue{
		items:    make(chan []*models.Preference, bufferSize),
		stopped:  make(chan struct{}),
		maxSize:  bufferSize,
		logger:   logger,
		handlers: make([]func([]*models.Preference) error, 0),
	}
}

// Push adds a batch of preferences to the queue without blocking
func (q *PreferenceQueue) Push(prefs []*models.Preference) error {
	// The read lock is held across the send so Close cannot close the
	// channel underneath it.
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- prefs:
		q.logger.WithField("batch_size", len(prefs)).Debug("Pushed batch to queue")
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe adds a handler function that will be called for each batch
func (q *PreferenceQueue) Subscribe(handler func([]*models.Preference) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start begins processing items in the queue. Calling it twice has no effect.
func (q *PreferenceQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	go q.process()
}

// process drains the queue until it is closed and empty
func (q *PreferenceQueue) process() {
	defer close(q.stopped)
	for batch := range q.items {
		q.processBatch(batch)
	}
}

// processBatch sends the batch to all subscribed handlers
func (q *PreferenceQueue) processBatch(batch []*models.Preference) {
	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(batch); err != nil {
			q.logger.WithError(err).WithField("batch_size", len(batch)).Error("Handler failed to process batch")
		}
	}
}

// Close stops accepting batches and, when the queue was started, waits until
// the buffered ones have been handled.
func (q *PreferenceQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.items)
	started := q.started
	q.mu.Unlock()

	if started {
		<-q.stopped
	}
	return nil
}

// Len returns the current number of batches in the queue
func (q *PreferenceQueue) Len() int {
	return len(q.items)
}

// IsClosed returns whether the queue has been closed
func (q *PreferenceQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
