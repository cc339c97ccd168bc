// package services defines the remote API gateway consumed by the sync and
// command layers, plus the concrete YouTube Data API v3 implementation.
//
// Every gateway call carries a fixed quota cost (see [CostRead],
// [CostWrite], [CostMove]); callers reserve the cost with the quota ledger
// before issuing a call. Gateway errors are normalized onto the sentinel
// errors in internal/shared so callers can branch with errors.Is.
package services

import (
	"context"

	"github.com/desertthunder/ytr/internal/models"
)

// Quota cost table, in units charged against the daily budget.
//
// Reads (list calls) cost 1 unit per page. Writes (insert, update, delete)
// cost 50. A move is modeled as delete + insert, so double the write cost.
const (
	CostRead  = 1
	CostWrite = 50
	CostMove  = 2 * CostWrite
)

// CollectionPage is one page of a paginated collection listing.
type CollectionPage struct {
	Collections   []models.Collection
	NextPageToken string // Empty when this is the final page
}

// ItemPage is one page of a paginated item listing for a single collection.
type ItemPage struct {
	Items         []models.Item
	NextPageToken string // Empty when this is the final page
}

// Gateway executes authorized remote calls. It performs no quota accounting
// and no caching; both are the caller's responsibility.
type Gateway interface {
	// ListCollections fetches one page of the user's collections. Cost: CostRead.
	ListCollections(ctx context.Context, pageToken string) (*CollectionPage, error)

	// ListItems fetches one page of a collection's items in remote-declared
	// order. Cost: CostRead.
	ListItems(ctx context.Context, collectionID, pageToken string) (*ItemPage, error)

	// InsertItem adds a video to a collection, optionally at a position
	// (negative appends), returning the remote-assigned item ID. Cost: CostWrite.
	InsertItem(ctx context.Context, collectionID, videoID string, position int) (string, error)

	// DeleteItem removes one membership by item ID. Cost: CostWrite.
	DeleteItem(ctx context.Context, itemID string) error

	// MoveItem repositions an existing membership within its collection.
	// Cost: CostWrite.
	MoveItem(ctx context.Context, itemID, collectionID, videoID string, position int) error

	// UpdateTitle retitles a collection. Cost: CostWrite.
	UpdateTitle(ctx context.Context, collectionID, title string) error

	// CreateCollection creates a new collection. Cost: CostWrite.
	CreateCollection(ctx context.Context, title, privacy string) (*models.Collection, error)

	// DeleteCollection deletes a collection and all its memberships. Cost: CostWrite.
	DeleteCollection(ctx context.Context, collectionID string) error
}
