package featured

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"samsar/server/internal/models"
	"samsar/server/internal/render"
)

// ErrNoSources is returned when every featured source failed to load.
var ErrNoSources = errors.New("no featured source could be loaded")

const rentMarker = "إيجار"

type style struct {
	color string
	label string
}

var styles = map[models.Kind]style{
	models.KindOffer:   {color: "#d4af37", label: "بيع"},
	models.KindRent:    {color: "#fce205", label: "إيجار"},
	models.KindRequest: {color: "#0a84ff", label: "مطلوب"},
}

// Loader returns the aggregated records of one category.
type Loader interface {
	Load(ctx context.Context, section, category string) ([]models.Record, error)
}

// LookupFunc resolves the catalog entry of a source.
type LookupFunc func(section, key string) *models.CategoryMeta

type Options struct {
	// Records taken from the end of each source
	SampleSize int
	Offers     int
	Requests   int
	Card       render.CardOptions
}

// Scanner picks the newest offers and requests across several categories
// for the home page.
type Scanner struct {
	loader  Loader
	sources []models.FeaturedSource
	lookup  LookupFunc
	opts    Options
	logger  *logrus.Logger
}

type candidate struct {
	record models.Record
	meta   models.CategoryMeta
	source models.Kind
	kind   models.Kind
	date   time.Time
	order  int
}

func NewScanner(loader Loader, sources []models.FeaturedSource, lookup LookupFunc, opts Options, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = 6
	}
	return &Scanner{
		loader:  loader,
		sources: sources,
		lookup:  lookup,
		opts:    opts,
		logger:  logger,
	}
}

// Scan loads every source, keeps the newest Offers offers and Requests
// requests, and returns their cards newest first. A failing source is
// skipped; only a scan where all sources fail returns an error.
func (s *Scanner) Scan(ctx context.Context, highlight string) ([]models.Card, error) {
	var (
		g      errgroup.Group
		mu     sync.Mutex
		found  []candidate
		failed []error
	)

	for i, source := range s.sources {
		i, source := i, source
		g.Go(func() error {
			items, err := s.scanSource(ctx, i, source)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, err)
				return nil
			}
			found = append(found, items...)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if len(s.sources) > 0 && len(failed) == len(s.sources) {
		return nil, fmt.Errorf("%w: %w", ErrNoSources, errors.Join(failed...))
	}

	byDate(found)

	var offers, requests []candidate
	for _, c := range found {
		if c.source == models.KindRequest {
			if len(requests) < s.opts.Requests {
				requests = append(requests, c)
			}
			continue
		}
		if len(offers) < s.opts.Offers {
			offers = append(offers, c)
		}
	}

	picked := append(offers, requests...)
	byDate(picked)

	opts := s.opts.Card
	opts.Highlight = highlight
	cards := make([]models.Card, 0, len(picked))
	for _, c := range picked {
		cards = append(cards, s.card(c, opts))
	}
	return cards, nil
}

func (s *Scanner) scanSource(ctx context.Context, order int, source models.FeaturedSource) ([]candidate, error) {
	meta := s.lookup(source.Section, source.Category)
	if meta == nil {
		return nil, fmt.Errorf("featured source %s/%s is not in the catalog", source.Section, source.Category)
	}

	records, err := s.loader.Load(ctx, source.Section, source.Category)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"section":  source.Section,
			"category": source.Category,
		}).Warn("Skipping featured source")
		return nil, err
	}

	if len(records) > s.opts.SampleSize {
		records = records[len(records)-s.opts.SampleSize:]
	}

	items := make([]candidate, 0, len(records))
	for i, rec := range records {
		date, _ := rec.ParsedDate()
		items = append(items, candidate{
			record: rec,
			meta:   *meta,
			source: source.Kind,
			kind:   displayKind(source.Kind, rec),
			date:   date,
			order:  order*s.opts.SampleSize + i,
		})
	}
	return items, nil
}

// displayKind shows offers whose title mentions rent as rent cards.
func displayKind(source models.Kind, rec models.Record) models.Kind {
	if source == models.KindRequest {
		return models.KindRequest
	}
	if strings.Contains(string(rec.Title), rentMarker) {
		return models.KindRent
	}
	return models.KindOffer
}

func (s *Scanner) card(c candidate, opts render.CardOptions) models.Card {
	meta := c.meta
	meta.Kind = c.kind
	card := render.BuildCard(c.record, meta, opts)
	st := styles[c.kind]
	card.AccentColor = st.color
	card.KindLabel = st.label
	return card
}

// byDate orders newest first. Undated candidates count as the zero time, so
// they sort last; ties keep source order.
func byDate(items []candidate) {
	slices.SortStableFunc(items, func(a, b candidate) int {
		if c := b.date.Compare(a.date); c != 0 {
			return c
		}
		return a.order - b.order
	})
}
