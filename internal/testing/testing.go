// Package testing provides an in-memory [services.Gateway] double for
// exercising the command engine and sync coordinator without network access.
package testing

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/desertthunder/ytr/internal/models"
	"github.com/desertthunder/ytr/internal/services"
	"github.com/desertthunder/ytr/internal/shared"
)

// FakeGateway is a scriptable in-memory remote. It models collections and
// item memberships with positional semantics matching the real service:
// inserts shift later positions up, deletes close the gap, and listings are
// paginated by PageSize.
//
// Failures are scripted per method name with FailNext; each scripted error
// is consumed by one call. Calls records every method invocation in order.
type FakeGateway struct {
	mu sync.Mutex

	PageSize    int
	Collections map[string]*models.Collection
	Items       map[string][]models.Item // Keyed by collection ID, position order

	// FailNext maps a method name to a queue of errors returned by the next
	// calls to that method, before any state change.
	FailNext map[string][]error

	Calls  []string
	nextID int
}

// NewFakeGateway returns an empty fake with a page size of 50.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		PageSize:    50,
		Collections: make(map[string]*models.Collection),
		Items:       make(map[string][]models.Item),
		FailNext:    make(map[string][]error),
	}
}

// Seed installs a collection and its items, assigning positions by slice
// order.
func (f *FakeGateway) Seed(c models.Collection, items []models.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()

	copied := c
	copied.ItemCount = len(items)
	f.Collections[c.ID] = &copied

	owned := make([]models.Item, len(items))
	for i, item := range items {
		item.ParentID = c.ID
		item.Position = i
		owned[i] = item
	}
	f.Items[c.ID] = owned
}

// Fail scripts err to be returned by the next call to method.
func (f *FakeGateway) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailNext[method] = append(f.FailNext[method], err)
}

// CallCount returns how many times method was invoked.
func (f *FakeGateway) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, call := range f.Calls {
		if call == method {
			n++
		}
	}
	return n
}

// ItemOrder returns the video IDs of a collection in position order.
func (f *FakeGateway) ItemOrder(collectionID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]string, 0, len(f.Items[collectionID]))
	for _, item := range f.Items[collectionID] {
		ids = append(ids, item.VideoID)
	}
	return ids
}

func (f *FakeGateway) enter(method string) error {
	f.Calls = append(f.Calls, method)
	queue := f.FailNext[method]
	if len(queue) > 0 {
		err := queue[0]
		f.FailNext[method] = queue[1:]
		return err
	}
	return nil
}

func (f *FakeGateway) assignID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%03d", prefix, f.nextID)
}

// ListCollections returns one page of collections sorted by ID.
func (f *FakeGateway) ListCollections(ctx context.Context, pageToken string) (*services.CollectionPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter("ListCollections"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(f.Collections))
	for id := range f.Collections {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return paginate(ids, pageToken, f.PageSize, func(id string) models.Collection {
		return *f.Collections[id]
	}, func(cs []models.Collection, next string) *services.CollectionPage {
		return &services.CollectionPage{Collections: cs, NextPageToken: next}
	})
}

// ListItems returns one page of a collection's items in position order.
func (f *FakeGateway) ListItems(ctx context.Context, collectionID, pageToken string) (*services.ItemPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter("ListItems"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items, ok := f.Items[collectionID]
	if !ok {
		return nil, fmt.Errorf("%w: collection %s", shared.ErrNotFound, collectionID)
	}

	indexes := make([]int, len(items))
	for i := range items {
		indexes[i] = i
	}

	return paginate(indexes, pageToken, f.PageSize, func(i int) models.Item {
		return items[i]
	}, func(is []models.Item, next string) *services.ItemPage {
		return &services.ItemPage{Items: is, NextPageToken: next}
	})
}

// InsertItem adds a membership, shifting later positions.
func (f *FakeGateway) InsertItem(ctx context.Context, collectionID, videoID string, position int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter("InsertItem"); err != nil {
		return "", err
	}

	c, ok := f.Collections[collectionID]
	if !ok {
		return "", fmt.Errorf("%w: collection %s", shared.ErrNotFound, collectionID)
	}

	items := f.Items[collectionID]
	if position < 0 || position > len(items) {
		position = len(items)
	}

	item := models.Item{
		ID:       f.assignID("pi"),
		VideoID:  videoID,
		ParentID: collectionID,
		Position: position,
		Title:    "Video " + videoID,
	}

	items = append(items, models.Item{})
	copy(items[position+1:], items[position:])
	items[position] = item
	for i := range items {
		items[i].Position = i
	}
	f.Items[collectionID] = items
	c.ItemCount = len(items)

	return item.ID, nil
}

// DeleteItem removes a membership by item ID.
func (f *FakeGateway) DeleteItem(ctx context.Context, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter("DeleteItem"); err != nil {
		return err
	}

	for collectionID, items := range f.Items {
		for i, item := range items {
			if item.ID == itemID {
				items = append(items[:i], items[i+1:]...)
				for j := range items {
					items[j].Position = j
				}
				f.Items[collectionID] = items
				f.Collections[collectionID].ItemCount = len(items)
				return nil
			}
		}
	}

	return fmt.Errorf("%w: item %s", shared.ErrNotFound, itemID)
}

// MoveItem repositions an existing membership.
func (f *FakeGateway) MoveItem(ctx context.Context, itemID, collectionID, videoID string, position int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter("MoveItem"); err != nil {
		return err
	}

	items := f.Items[collectionID]
	from := -1
	for i, item := range items {
		if item.ID == itemID {
			from = i
			break
		}
	}
	if from == -1 {
		return fmt.Errorf("%w: item %s", shared.ErrNotFound, itemID)
	}
	if position < 0 || position >= len(items) {
		position = len(items) - 1
	}

	moved := items[from]
	items = append(items[:from], items[from+1:]...)
	items = append(items, models.Item{})
	copy(items[position+1:], items[position:])
	items[position] = moved
	for i := range items {
		items[i].Position = i
	}
	f.Items[collectionID] = items

	return nil
}

// UpdateTitle retitles a collection.
func (f *FakeGateway) UpdateTitle(ctx context.Context, collectionID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter("UpdateTitle"); err != nil {
		return err
	}

	c, ok := f.Collections[collectionID]
	if !ok {
		return fmt.Errorf("%w: collection %s", shared.ErrNotFound, collectionID)
	}
	c.Title = title
	return nil
}

// CreateCollection creates an empty collection with a generated ID.
func (f *FakeGateway) CreateCollection(ctx context.Context, title, privacy string) (*models.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter("CreateCollection"); err != nil {
		return nil, err
	}

	c := &models.Collection{
		ID:    f.assignID("PL"),
		Title: title,
		Kind:  models.CollectionReal,
	}
	f.Collections[c.ID] = c
	f.Items[c.ID] = nil

	return c, nil
}

// DeleteCollection removes a collection and its memberships.
func (f *FakeGateway) DeleteCollection(ctx context.Context, collectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.enter("DeleteCollection"); err != nil {
		return err
	}

	if _, ok := f.Collections[collectionID]; !ok {
		return fmt.Errorf("%w: collection %s", shared.ErrNotFound, collectionID)
	}
	delete(f.Collections, collectionID)
	delete(f.Items, collectionID)
	return nil
}

var _ services.Gateway = (*FakeGateway)(nil)

// paginate slices keys into pages of size pageSize. Page tokens are the
// stringified start offset, mirroring opaque remote tokens.
func paginate[K comparable, V any, P any](
	keys []K, pageToken string, pageSize int,
	load func(K) V, wrap func([]V, string) P,
) (P, error) {
	start := 0
	if pageToken != "" {
		if _, err := fmt.Sscanf(pageToken, "%d", &start); err != nil || start < 0 || start > len(keys) {
			var zero P
			return zero, fmt.Errorf("%w: bad page token %q", shared.ErrRemote, pageToken)
		}
	}

	end := start + pageSize
	if end > len(keys) {
		end = len(keys)
	}

	values := make([]V, 0, end-start)
	for _, key := range keys[start:end] {
		values = append(values, load(key))
	}

	next := ""
	if end < len(keys) {
		next = fmt.Sprintf("%d", end)
	}

	return wrap(values, next), nil
}
