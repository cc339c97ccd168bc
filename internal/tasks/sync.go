package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytr/internal/models"
	"github.com/desertthunder/ytr/internal/repositories"
	"github.com/desertthunder/ytr/internal/services"
	"github.com/desertthunder/ytr/internal/shared"
)

// collectionsScope keys the refresh of the top-level collection listing. It
// cannot collide with a real collection ID.
const collectionsScope = "\x00collections"

// SyncCoordinator decides between serving cached listings and fetching fresh
// ones. A refresh pages through the remote listing, paying one read unit per
// page, and merges the complete result into the cache in one transaction.
//
// Refreshes of the same scope supersede each other: starting a new one
// cancels the in-flight fetch and discards its result, so the cache only
// ever receives the newest complete listing.
type SyncCoordinator struct {
	store   *repositories.CacheStore
	ledger  *repositories.QuotaLedger
	gateway services.Gateway
	logger  *log.Logger
	locks   *entityLocks

	mu      sync.Mutex
	gen     map[string]uint64
	cancels map[string]context.CancelFunc

	now func() time.Time
}

// NewSyncCoordinator creates a coordinator sharing the engine's entity locks.
func NewSyncCoordinator(
	store *repositories.CacheStore,
	ledger *repositories.QuotaLedger,
	gateway services.Gateway,
	locks *entityLocks,
	logger *log.Logger,
) *SyncCoordinator {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if locks == nil {
		locks = newEntityLocks()
	}

	return &SyncCoordinator{
		store:   store,
		ledger:  ledger,
		gateway: gateway,
		logger:  logger,
		locks:   locks,
		gen:     make(map[string]uint64),
		cancels: make(map[string]context.CancelFunc),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// begin registers a refresh for a scope, superseding any in-flight one.
// Returns the refresh context and the generation to check at merge time.
func (s *SyncCoordinator) begin(ctx context.Context, scope string) (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.cancels[scope]; ok {
		cancel()
	}

	s.gen[scope]++
	g := s.gen[scope]
	rctx, cancel := context.WithCancel(ctx)
	s.cancels[scope] = cancel
	return rctx, g
}

// current reports whether a refresh generation is still the newest for its
// scope, clearing the scope's cancel registration when it is.
func (s *SyncCoordinator) current(scope string, g uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen[scope] != g {
		return false
	}
	if cancel, ok := s.cancels[scope]; ok {
		cancel()
		delete(s.cancels, scope)
	}
	return true
}

// pagedRead reserves one read unit, runs the fetch, and settles the ledger.
// A fetch aborted before reaching the remote refunds its reservation; any
// attempt that went out is charged regardless of outcome.
func (s *SyncCoordinator) pagedRead(ctx context.Context, fetch func() error) error {
	if err := s.ledger.Reserve(services.CostRead); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		s.ledger.Rollback(services.CostRead)
		return err
	}

	err := fetch()
	if commitErr := s.ledger.Commit(services.CostRead, services.CostRead); commitErr != nil {
		s.logger.Error("failed to commit quota", "error", commitErr)
	}
	return err
}

// Refresh fetches a collection's complete item listing and merges it into
// the cache. A newer Refresh of the same collection supersedes this one, in
// which case the discarded fetch returns nil. Returns
// [shared.ErrEntityBusy] when a command holds the collection at merge time.
func (s *SyncCoordinator) Refresh(ctx context.Context, collectionID string, progress chan<- ProgressUpdate) error {
	rctx, g := s.begin(ctx, collectionID)

	var items []models.Item
	title := ""
	pageToken := ""
	page := 0
	for {
		page++
		sendProgress(progress, fetchItemsUpdate(collectionID, page, len(items)))

		var result *services.ItemPage
		err := s.pagedRead(rctx, func() error {
			var fetchErr error
			result, fetchErr = s.gateway.ListItems(rctx, collectionID, pageToken)
			return fetchErr
		})
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() == nil {
				// Superseded by a newer refresh of this collection.
				return nil
			}
			return fmt.Errorf("failed to fetch %s: %w", collectionID, err)
		}

		items = append(items, result.Items...)
		if result.NextPageToken == "" {
			break
		}
		pageToken = result.NextPageToken
	}

	if c, _, err := s.store.GetCollection(collectionID, s.now()); err == nil {
		title = c.Title
	}

	if !s.current(collectionID, g) {
		return nil
	}

	if err := s.locks.acquire([]string{collectionID}); err != nil {
		return err
	}
	defer s.locks.release([]string{collectionID})

	if err := s.store.MergeChildren(collectionID, title, items, s.now()); err != nil {
		return fmt.Errorf("failed to merge %s: %w", collectionID, err)
	}

	sendProgress(progress, mergeUpdate(collectionID, len(items)))
	return nil
}

// RefreshCollections fetches the complete collection listing, upserting
// every collection and evicting cached ones the remote no longer returns.
func (s *SyncCoordinator) RefreshCollections(ctx context.Context, progress chan<- ProgressUpdate) error {
	rctx, g := s.begin(ctx, collectionsScope)

	var collections []models.Collection
	pageToken := ""
	page := 0
	for {
		page++
		sendProgress(progress, fetchCollectionsUpdate(page))

		var result *services.CollectionPage
		err := s.pagedRead(rctx, func() error {
			var fetchErr error
			result, fetchErr = s.gateway.ListCollections(rctx, pageToken)
			return fetchErr
		})
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() == nil {
				return nil
			}
			return fmt.Errorf("failed to fetch collections: %w", err)
		}

		collections = append(collections, result.Collections...)
		if result.NextPageToken == "" {
			break
		}
		pageToken = result.NextPageToken
	}

	if !s.current(collectionsScope, g) {
		return nil
	}

	now := s.now()
	listed := make(map[string]struct{}, len(collections))
	for _, c := range collections {
		listed[c.ID] = struct{}{}
		if err := s.store.PutCollection(c, now); err != nil {
			return fmt.Errorf("failed to cache collection %s: %w", c.ID, err)
		}
	}

	cached, _, err := s.store.ListCollections(now)
	if err != nil {
		return fmt.Errorf("failed to list cached collections: %w", err)
	}
	for _, c := range cached {
		if _, ok := listed[c.ID]; ok || c.Kind == models.CollectionVirtual {
			continue
		}
		if err := s.store.InvalidateCollection(c.ID); err != nil {
			return fmt.Errorf("failed to evict collection %s: %w", c.ID, err)
		}
	}

	return nil
}

// RefreshAll empties the entire store, refetches the collection listing, and
// refreshes only the collection currently in view (when one is). Everything
// else stays evicted and is fetched lazily on next access, so a full refresh
// costs the listing pages plus at most one collection's item pages.
func (s *SyncCoordinator) RefreshAll(ctx context.Context, visibleID string, progress chan<- ProgressUpdate) error {
	if err := s.store.InvalidateAll(); err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	if err := s.RefreshCollections(ctx, progress); err != nil {
		return err
	}

	if visibleID == "" {
		return nil
	}
	return s.Refresh(ctx, visibleID, progress)
}

// GetView returns a collection's items, refreshing first when the cached
// listing is stale or missing (or always when force is set). If the refresh
// fails for a reason the cache can paper over (quota exhausted, network
// down, auth expired) and stale records exist, they are served with the
// view's Stale flag set.
func (s *SyncCoordinator) GetView(ctx context.Context, collectionID string, force bool) (*models.View, error) {
	now := s.now()

	items, stale, err := s.store.ListChildren(collectionID, repositories.OrderByPosition, now)
	if err != nil {
		return nil, err
	}
	if !stale && !force {
		return &models.View{CollectionID: collectionID, Items: items}, nil
	}

	refreshErr := s.Refresh(ctx, collectionID, nil)
	if refreshErr == nil {
		items, _, err = s.store.ListChildren(collectionID, repositories.OrderByPosition, s.now())
		if err != nil {
			return nil, err
		}
		return &models.View{CollectionID: collectionID, Items: items}, nil
	}

	haveRecords := len(items) > 0
	if !haveRecords {
		if ok, err := s.store.HasCollection(collectionID); err == nil && ok {
			haveRecords = true
		}
	}
	if haveRecords && degradable(refreshErr) {
		s.logger.Warn("serving stale listing", "collection", collectionID, "error", refreshErr)
		return &models.View{CollectionID: collectionID, Items: items, Stale: true}, nil
	}

	return nil, refreshErr
}

// Collections returns the cached collection listing, refreshing it first
// when stale, empty, or forced, with the same stale fallback as GetView.
func (s *SyncCoordinator) Collections(ctx context.Context, force bool) ([]models.Collection, bool, error) {
	now := s.now()

	collections, stale, err := s.store.ListCollections(now)
	if err != nil {
		return nil, false, err
	}
	if !stale && !force && len(collections) > 0 {
		return collections, false, nil
	}

	refreshErr := s.RefreshCollections(ctx, nil)
	if refreshErr == nil {
		collections, _, err = s.store.ListCollections(s.now())
		return collections, false, err
	}

	if len(collections) > 0 && degradable(refreshErr) {
		s.logger.Warn("serving stale collection listing", "error", refreshErr)
		return collections, true, nil
	}

	return nil, false, refreshErr
}

// CancelAll cancels every in-flight refresh.
func (s *SyncCoordinator) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for scope, cancel := range s.cancels {
		cancel()
		delete(s.cancels, scope)
	}
}

// degradable reports whether a refresh failure may be papered over with
// stale cache records.
func degradable(err error) bool {
	return errors.Is(err, shared.ErrQuotaExceeded) ||
		errors.Is(err, shared.ErrTransient) ||
		errors.Is(err, shared.ErrAuth)
}
