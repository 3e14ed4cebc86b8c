package staging

import (
	"fmt"
	"os"
	"sort"
	"time"
)

// EmptyOptions selects which batches Empty removes. Exactly one of
// OlderThan or KeepMostRecent should be set; if both are zero-valued,
// Empty removes nothing.
type EmptyOptions struct {
	OlderThan      time.Duration // remove batches older than this; a negative value selects every batch
	KeepMostRecent int           // keep only the N most recently created batches
}

// Removed describes one batch permanently deleted by Empty.
type Removed struct {
	BatchID string
	Dir     string
}

// Empty permanently removes staging batches (including fully-restored
// archived ones) matching opts. Per spec §4.8, age and keep-K-most-recent
// policies both consider archived batches eligible.
func Empty(root string, opts EmptyOptions) ([]Removed, error) {
	batches, err := List(root)
	if err != nil {
		return nil, err
	}

	var toRemove []BatchSummary
	switch {
	case opts.OlderThan != 0:
		for _, b := range batches {
			if b.Age > opts.OlderThan {
				toRemove = append(toRemove, b)
			}
		}
	case opts.KeepMostRecent > 0:
		sort.Slice(batches, func(i, j int) bool { return batches[i].Age < batches[j].Age })
		if opts.KeepMostRecent < len(batches) {
			toRemove = batches[opts.KeepMostRecent:]
		}
	}

	var removed []Removed
	for _, b := range toRemove {
		if err := os.RemoveAll(b.Dir); err != nil {
			return removed, fmt.Errorf("failed to remove staging batch %s: %w", b.BatchID, err)
		}
		removed = append(removed, Removed{BatchID: b.BatchID, Dir: b.Dir})
	}
	return removed, nil
}
