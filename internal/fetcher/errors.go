package fetcher

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexFetch marks a category that could not be listed. The whole load fails.
	ErrIndexFetch = errors.New("index fetch failed")

	// ErrRecordFetch marks a single record that was dropped from a load.
	ErrRecordFetch = errors.New("record fetch failed")

	// ErrOffline marks failures where the data origin could not be reached at all.
	ErrOffline = errors.New("data origin unreachable")

	// ErrUnsafeFilename marks index entries that cannot name a record file.
	ErrUnsafeFilename = errors.New("unsafe filename")
)

type IndexFetchError struct {
	Section    string
	Category   string
	URL        string
	StatusCode int
	Offline    bool
	Err        error
}

func (e *IndexFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("index %s/%s: status %d from %s", e.Section, e.Category, e.StatusCode, e.URL)
	}
	return fmt.Sprintf("index %s/%s: %v", e.Section, e.Category, e.Err)
}

func (e *IndexFetchError) Unwrap() []error {
	errs := []error{ErrIndexFetch}
	if e.Offline {
		errs = append(errs, ErrOffline)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

type RecordFetchError struct {
	Section    string
	Category   string
	Filename   string
	URL        string
	StatusCode int
	Offline    bool
	Err        error
}

func (e *RecordFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("record %s/%s/%s: status %d", e.Section, e.Category, e.Filename, e.StatusCode)
	}
	return fmt.Sprintf("record %s/%s/%s: %v", e.Section, e.Category, e.Filename, e.Err)
}

func (e *RecordFetchError) Unwrap() []error {
	errs := []error{ErrRecordFetch}
	if e.Offline {
		errs = append(errs, ErrOffline)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
