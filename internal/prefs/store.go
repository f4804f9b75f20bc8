package prefs

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"samsar/server/internal/models"
)

var ErrNoVisitor = errors.New("visitor id is required")

// Loader reads a stored preference. A visitor without one yields nil, nil.
type Loader interface {
	GetPreference(visitorID string) (*models.Preference, error)
}

// Writer persists preference batches in the background.
type Writer interface {
	Push(batch []*models.Preference) error
}

// Store keeps per-visitor state in memory and writes every change behind
// to the database through the preference queue.
type Store struct {
	logger    *logrus.Logger
	loader    Loader
	writer    Writer
	cache     map[string]models.Preference
	cacheLock sync.RWMutex

	// Visitors whose latest change never reached the queue
	unsynced map[string]struct{}
	now       func() time.Time
}

func NewStore(loader Loader, writer Writer, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Store{
		logger: logger,
		loader: loader,
		writer: writer,
		cache:  make(map[string]models.Preference),
		now:    time.Now,

		unsynced: make(map[string]struct{}),
	}
}

// Get returns the visitor's preference, reading the database on a cache miss.
// Unknown visitors get a zero preference with VisitorID set.
func (s *Store) Get(visitorID string) models.Preference {
	s.cacheLock.RLock()
	if p, ok := s.cache[visitorID]; ok {
		s.cacheLock.RUnlock()
		return p
	}
	s.cacheLock.RUnlock()

	pref := models.Preference{VisitorID: visitorID}
	if s.loader != nil && visitorID != "" {
		stored, err := s.loader.GetPreference(visitorID)
		if err != nil {
			// Served from defaults; the entry is not cached so the next call retries.
			s.logger.WithError(err).WithField("visitor", visitorID).Warn("Failed to load visitor preference")
			return pref
		}
		if stored != nil {
			pref = *stored
		}
	}

	s.cacheLock.Lock()
	defer s.cacheLock.Unlock()
	if p, ok := s.cache[visitorID]; ok {
		// A concurrent update won
		return p
	}
	s.cache[visitorID] = pref
	return pref
}

// LastViewed returns the filename of the card the visitor last interacted with.
func (s *Store) LastViewed(visitorID string) string {
	return s.Get(visitorID).LastViewedFile
}

// MarkViewed replaces the last-interacted marker.
func (s *Store) MarkViewed(visitorID, filename string) error {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return errors.New("filename is required")
	}
	return s.update(visitorID, func(p *models.Preference) {
		p.LastViewedFile = filename
	})
}

// SetLastCategory records the category the visitor last opened in a section.
func (s *Store) SetLastCategory(visitorID, section, category string) error {
	return s.update(visitorID, func(p *models.Preference) {
		p.LastSection = section
		p.LastCategory = category
	})
}

// LastCategory returns the category last opened in section, if any.
func (s *Store) LastCategory(visitorID, section string) string {
	p := s.Get(visitorID)
	if p.LastSection != section {
		return ""
	}
	return p.LastCategory
}

// ShouldShowWelcome reports whether the onboarding message is still due.
func (s *Store) ShouldShowWelcome(visitorID string) bool {
	return !s.Get(visitorID).WelcomeShown
}

// MarkWelcomeShown sets the onboarding flag. It is never cleared.
func (s *Store) MarkWelcomeShown(visitorID string) error {
	if !s.ShouldShowWelcome(visitorID) {
		return nil
	}
	return s.update(visitorID, func(p *models.Preference) {
		p.WelcomeShown = true
	})
}

// Prune drops cached visitors untouched since before and returns how many
// were dropped. Visitors with changes missing from the database are kept.
func (s *Store) Prune(before time.Time) int {
	s.cacheLock.Lock()
	defer s.cacheLock.Unlock()

	dropped := 0
	for id, p := range s.cache {
		if _, pending := s.unsynced[id]; pending {
			continue
		}
		if p.UpdatedAt.Before(before) {
			delete(s.cache, id)
			dropped++
		}
	}
	return dropped
}

func (s *Store) update(visitorID string, apply func(*models.Preference)) error {
	if visitorID == "" {
		return ErrNoVisitor
	}

	current := s.Get(visitorID)

	s.cacheLock.Lock()
	if p, ok := s.cache[visitorID]; ok {
		current = p
	}
	apply(&current)
	current.UpdatedAt = s.now().UTC()
	s.cache[visitorID] = current
	s.cacheLock.Unlock()

	if s.writer == nil {
		return nil
	}
	snapshot := current
	err := s.writer.Push([]*models.Preference{&snapshot})

	s.cacheLock.Lock()
	if err != nil {
		s.unsynced[visitorID] = struct{}{}
	} else {
		// Every write carries the whole row, so earlier lost writes are covered
		delete(s.unsynced, visitorID)
	}
	s.cacheLock.Unlock()

	if err != nil {
		// Memory keeps the change; only the database copy is behind.
		s.logger.WithError(err).WithField("visitor", visitorID).Warn("Failed to queue preference write")
	}
	return nil
}
