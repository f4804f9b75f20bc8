package aggregator

import (
	"slices"
	"time"

	"samsar/server/internal/models"
)

type sortKey struct {
	date  time.Time
	dated bool
	index int
}

// SortRecords orders records in place. Records without a parseable date go
// last in every mode, and ties keep index order.
func SortRecords(records []models.Record, mode models.SortMode) {
	if mode == models.SortIndex || len(records) < 2 {
		return
	}

	keys := make([]sortKey, len(records))
	order := make([]int, len(records))
	for i := range records {
		date, ok := records[i].ParsedDate()
		keys[i] = sortKey{date: date, dated: ok, index: i}
		order[i] = i
	}

	slices.SortStableFunc(order, func(x, y int) int {
		a, b := keys[x], keys[y]
		switch {
		case a.dated != b.dated:
			if a.dated {
				return -1
			}
			return 1
		case !a.dated:
			return 0
		}
		c := a.date.Compare(b.date)
		if mode == models.SortLatest {
			c = -c
		}
		return c
	})

	sorted := make([]models.Record, len(records))
	for i, idx := range order {
		sorted[i] = records[idx]
	}
	copy(records, sorted)
}

// FilterWindow keeps records dated within the window ending at now. Undated
// records only pass the unbounded window.
func FilterWindow(records []models.Record, window models.DateWindow, now time.Time) []models.Record {
	days := window.Days()
	if days == 0 {
		return records
	}

	cutoff := now.AddDate(0, 0, -days)
	kept := make([]models.Record, 0, len(records))
	for _, rec := range records {
		date, ok := rec.ParsedDate()
		if ok && !date.Before(cutoff) {
			kept = append(kept, rec)
		}
	}
	return kept
}
