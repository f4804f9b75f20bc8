package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"samsar/server/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// FileBaseURL is the base URL to use with a client from DirHTTPClient.
const FileBaseURL = "file://"

const maxBodySize = 2 << 20

// RecordValidator reports schema issues for a raw record file.
type RecordValidator interface {
	Validate(raw []byte) []string
}

type Options struct {
	// Origin serving the data tree, e.g. https://example.com
	BaseURL string

	HTTPClient *http.Client

	MaxConcurrency int

	// Extra attempts for an index that failed with a transient error
	IndexRetries int

	// Backoff unit; attempt n waits n*RetryDelay
	RetryDelay time.Duration

	// Optional; records with issues are kept and flagged
	Validator RecordValidator
}

// Client reads category indexes and record files from the data tree.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	maxConcurrency int
	indexRetries   int
	retryDelay     time.Duration
	validator      RecordValidator
	logger         *logrus.Logger
}

func NewClient(opts Options, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 8
	}
	if opts.IndexRetries < 0 {
		opts.IndexRetries = 0
	}

	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		httpClient:     opts.HTTPClient,
		maxConcurrency: opts.MaxConcurrency,
		indexRetries:   opts.IndexRetries,
		retryDelay:     opts.RetryDelay,
		validator:      opts.Validator,
		logger:         logger,
	}
}

// DirHTTPClient serves file:// URLs from dir, for running against a local
// checkout of the data tree.
func DirHTTPClient(dir string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.RegisterProtocol("file", http.NewFileTransport(http.Dir(dir)))
	return &http.Client{Transport: transport, Timeout: timeout}
}

func (c *Client) categoryURL(section, category string) string {
	return c.baseURL + "/data/" + url.PathEscape(section) + "/" + url.PathEscape(category) + "/"
}

// FetchCategory lists a category and fetches every record it names. Records
// come back in index order. Records that fail individually are logged and
// dropped; only an index failure or cancellation fails the load.
func (c *Client) FetchCategory(ctx context.Context, section, category string) ([]models.Record, error) {
	names, err := c.FetchIndex(ctx, section, category)
	if err != nil {
		return nil, err
	}

	slots := make([]*models.Record, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrency)

	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			rec, err := c.FetchRecord(gctx, section, category, name)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				c.logger.WithFields(logrus.Fields{
					"section":  section,
					"category": category,
					"file":     name,
				}).WithError(err).Warn("Dropping record")
				return nil
			}
			slots[i] = rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", section, category, err)
	}

	records := make([]models.Record, 0, len(names))
	for _, rec := range slots {
		if rec != nil {
			records = append(records, *rec)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"section":  section,
		"category": category,
		"listed":   len(names),
		"loaded":   len(records),
	}).Info("Fetched category")

	return records, nil
}

// FetchIndex returns the record filenames of a category with duplicates and
// unsafe names removed. Transient failures are retried with linear backoff.
func (c *Client) FetchIndex(ctx context.Context, section, category string) ([]string, error) {
	if !safeName(section) || !safeName(category) {
		return nil, &IndexFetchError{Section: section, Category: category, Err: ErrUnsafeFilename}
	}

	var lastErr error
	for attempt := 0; attempt <= c.indexRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(logrus.Fields{
				"section":  section,
				"category": category,
				"attempt":  attempt,
			}).WithError(lastErr).Warn("Retrying index fetch")

			select {
			case <-ctx.Done():
				return nil, &IndexFetchError{Section: section, Category: category, Err: ctx.Err()}
			case <-time.After(time.Duration(attempt) * c.retryDelay):
			}
		}

		names, err := c.fetchIndexOnce(ctx, section, category)
		if err == nil {
			return names, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) fetchIndexOnce(ctx context.Context, section, category string) ([]string, error) {
	indexURL := c.categoryURL(section, category) + "index.json"
	fail := func(status int, offline bool, err error) error {
		return &IndexFetchError{
			Section:    section,
			Category:   category,
			URL:        indexURL,
			StatusCode: status,
			Offline:    offline,
			Err:        err,
		}
	}

	body, status, err := c.get(ctx, indexURL)
	if err != nil {
		return nil, fail(0, ctx.Err() == nil, err)
	}
	if status < 200 || status > 299 {
		return nil, fail(status, false, nil)
	}

	var entries []any
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fail(0, false, fmt.Errorf("index is not a JSON array: %w", err))
	}
	if entries == nil {
		return nil, fail(0, false, errors.New("index is null"))
	}

	seen := make(map[string]struct{}, len(entries))
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name, ok := entry.(string)
		name = strings.TrimSpace(name)
		if !ok || !safeName(name) || name == "index.json" {
			c.logger.WithFields(logrus.Fields{
				"section":  section,
				"category": category,
				"entry":    entry,
			}).Warn("Skipping unsafe index entry")
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

// recordFile shadows identity keys a record file may carry so that they
// never override the identity taken from the index.
type recordFile struct {
	models.Record
	Section  json.RawMessage `json:"section"`
	Category json.RawMessage `json:"category"`
	Filename json.RawMessage `json:"filename"`
	ID       json.RawMessage `json:"id"`
	Issues   json.RawMessage `json:"issues"`
}

// FetchRecord fetches and decodes one record file.
func (c *Client) FetchRecord(ctx context.Context, section, category, filename string) (*models.Record, error) {
	recordURL := c.categoryURL(section, category) + url.PathEscape(filename)
	fail := func(status int, offline bool, err error) error {
		return &RecordFetchError{
			Section:    section,
			Category:   category,
			Filename:   filename,
			URL:        recordURL,
			StatusCode: status,
			Offline:    offline,
			Err:        err,
		}
	}

	if !safeName(section) || !safeName(category) || !safeName(filename) || filename == "index.json" {
		return nil, fail(0, false, ErrUnsafeFilename)
	}

	body, status, err := c.get(ctx, recordURL)
	if err != nil {
		return nil, fail(0, ctx.Err() == nil, err)
	}
	if status < 200 || status > 299 {
		return nil, fail(status, false, nil)
	}

	var file recordFile
	if err := json.Unmarshal(body, &file); err != nil {
		return nil, fail(0, false, fmt.Errorf("decode record: %w", err))
	}

	rec := file.Record
	rec.Section = section
	rec.Category = category
	rec.Filename = filename
	rec.ID = strings.TrimSuffix(filename, path.Ext(filename))
	if c.validator != nil {
		rec.Issues = c.validator.Validate(body)
	}
	rec.Normalize()

	if rec.Malformed() {
		c.logger.WithFields(logrus.Fields{
			"section":  section,
			"category": category,
			"file":     filename,
			"issues":   rec.Issues,
		}).Warn("Record is malformed")
	}

	return &rec, nil
}

func (c *Client) get(ctx context.Context, target string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func retryable(err error) bool {
	var ierr *IndexFetchError
	if !errors.As(err, &ierr) {
		return false
	}
	if ierr.Offline {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch {
	case ierr.StatusCode >= 500, ierr.StatusCode == http.StatusTooManyRequests, ierr.StatusCode == http.StatusRequestTimeout:
		return true
	}
	return false
}

func safeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}
