package engine

import (
	"log/slog"

	"golang.org/x/text/unicode/norm"

	"github.com/Peter-Willmott/asana-updater/internal/tracker"
)

// Index is a title-keyed lookup over one existing-items snapshot, built
// once per pass. Titles are NFC-normalized before keying so Unicode
// variants of the same client or farm name collide onto the same item.
//
// The index replaces the per-record linear scan the board sync used to do:
// one O(m) build, then O(1) per lookup.
type Index struct {
	byTitle map[string][]tracker.Item
	strict  bool
}

// NewIndex builds an index over the snapshot. Order within a duplicate
// bucket preserves the snapshot's list order, which keeps the first-match
// policy deterministic.
//
// With strict=true, looking up a duplicated title returns
// AmbiguousMatchError instead of the first item.
func NewIndex(existing []tracker.Item, strict bool) *Index {
	idx := &Index{
		byTitle: make(map[string][]tracker.Item, len(existing)),
		strict:  strict,
	}
	for _, item := range existing {
		key := canonicalTitle(item.Name)
		idx.byTitle[key] = append(idx.byTitle[key], item)
	}
	return idx
}

// Match finds the existing item correlated with a canonical title.
// Returns (nil, nil) for no match, signaling "create".
func (idx *Index) Match(title string) (*tracker.Item, error) {
	bucket := idx.byTitle[canonicalTitle(title)]
	switch {
	case len(bucket) == 0:
		return nil, nil
	case len(bucket) > 1:
		if idx.strict {
			return nil, &AmbiguousMatchError{Title: title, Count: len(bucket)}
		}
		slog.Warn("duplicate titles on board, using first",
			"title", title,
			"count", len(bucket),
		)
	}
	item := bucket[0]
	return &item, nil
}

// Bucket returns every existing item sharing the title, in snapshot
// order. Callers handling AmbiguousMatchError use it to keep the whole
// duplicate set out of the resolve phase.
func (idx *Index) Bucket(title string) []tracker.Item {
	return idx.byTitle[canonicalTitle(title)]
}

// Len returns the number of distinct titles in the index.
func (idx *Index) Len() int {
	return len(idx.byTitle)
}

// canonicalTitle is the matching key function: NFC normalization, nothing
// else. Case and whitespace are significant - titles are machine-derived.
func canonicalTitle(title string) string {
	return norm.NFC.String(title)
}
