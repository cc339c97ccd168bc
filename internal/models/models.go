package models

import (
	"time"
)

// EntityKind distinguishes cached entity types. Cache keys are composite
// (kind, id) so a collection and an item may share an identifier.
type EntityKind string

const (
	KindCollection EntityKind = "collection"
	KindItem       EntityKind = "item"
)

// CollectionKind distinguishes remote-backed collections from
// locally-synthesized virtual ones that have no remote listing endpoint.
type CollectionKind string

const (
	CollectionReal    CollectionKind = "real"
	CollectionVirtual CollectionKind = "virtual"
)

// Collection represents a remote playlist mirrored into the local cache.
type Collection struct {
	ID        string         // Remote collection ID
	Title     string         // Display title
	Kind      CollectionKind // real or virtual
	ItemCount int            // Remote-declared item count
	ETag      string         // Version tag from the last fetch
	CachedAt  time.Time      // When this record was last merged
}

// Item represents a video's membership in a collection.
//
// The ID is the remote playlist-item ID, unique per membership; the same
// VideoID may appear in many collections under different item IDs. Position
// is the ordering key, unique and contiguous within a collection.
type Item struct {
	ID          string    // Remote playlist-item ID
	VideoID     string    // Underlying video ID
	ParentID    string    // Owning collection ID
	Position    int       // Ordering key within the collection
	Title       string    // Video title
	Duration    string    // ISO 8601 duration, may be empty
	PublishedAt time.Time // Video publish time, zero if unknown
	CachedAt    time.Time // When this record was last merged

	// NeedsVerification marks an item whose remote state could not be
	// confirmed after a partially-applied compound command. Flagged items
	// are served but should be re-fetched before further mutation.
	NeedsVerification bool
}

// QuotaEntry records committed quota usage for one ledger day.
type QuotaEntry struct {
	Day     string    // Ledger day key (UTC date honoring the reset hour)
	Used    int       // Committed units consumed
	Budget  int       // Configured daily budget
	ResetAt time.Time // When the current ledger day rolls over
}

// Remaining returns the unconsumed portion of the daily budget.
func (q QuotaEntry) Remaining() int {
	if q.Used >= q.Budget {
		return 0
	}
	return q.Budget - q.Used
}

// View is an ordered snapshot of a collection's items served to the UI layer.
type View struct {
	CollectionID string
	Items        []Item
	// Stale reports that the backing cache records were past their TTL and
	// the caller opted to receive them anyway.
	Stale bool
}
