package repositories

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/ytr/internal/models"
	"github.com/desertthunder/ytr/internal/shared"
)

// OrderBy selects the ordering for ListChildren.
type OrderBy string

const (
	OrderByPosition  OrderBy = "position"
	OrderByTitle     OrderBy = "title"
	OrderByPublished OrderBy = "published_at"
)

// CacheStore is the persistent mirror of remote collections and items.
//
// Records carry an expiry timestamp and a last-access timestamp. An expired
// record is still returned but flagged stale; it is never treated as
// authoritative unless the caller explicitly accepts stale data. When the
// store grows past its record cap the least-recently-accessed records are
// evicted regardless of TTL.
type CacheStore struct {
	db         *sql.DB
	ttl        time.Duration
	maxRecords int
}

// NewCacheStore creates a CacheStore over an already-migrated database.
func NewCacheStore(db *sql.DB, ttl time.Duration, maxRecords int) *CacheStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CacheStore{db: db, ttl: ttl, maxRecords: maxRecords}
}

// TTL returns the configured freshness window.
func (s *CacheStore) TTL() time.Duration { return s.ttl }

// GetCollection returns a cached collection and whether the record is past
// its TTL. Returns shared.ErrCacheMiss if no record exists. Reading bumps
// the record's last-access time.
func (s *CacheStore) GetCollection(id string, now time.Time) (models.Collection, bool, error) {
	query := `
		SELECT id, title, kind, item_count, etag, cached_at, expires_at
		FROM collections
		WHERE id = ?
	`

	var c models.Collection
	var kind string
	var expiresAt time.Time
	err := s.db.QueryRow(query, id).Scan(&c.ID, &c.Title, &kind, &c.ItemCount, &c.ETag, &c.CachedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return models.Collection{}, false, fmt.Errorf("%w: collection %s", shared.ErrCacheMiss, id)
	}
	if err != nil {
		return models.Collection{}, false, fmt.Errorf("failed to scan collection: %w", err)
	}
	c.Kind = models.CollectionKind(kind)

	if _, err := s.db.Exec("UPDATE collections SET last_access = ? WHERE id = ?", now, id); err != nil {
		return models.Collection{}, false, fmt.Errorf("failed to touch collection: %w", err)
	}

	return c, now.After(expiresAt), nil
}

// GetItem returns a cached item and whether the record is past its TTL.
func (s *CacheStore) GetItem(id string, now time.Time) (models.Item, bool, error) {
	query := `
		SELECT id, video_id, parent_id, position, title, duration, published_at, needs_verification, cached_at, expires_at
		FROM items
		WHERE id = ?
	`

	item, expiresAt, err := scanItem(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return models.Item{}, false, fmt.Errorf("%w: item %s", shared.ErrCacheMiss, id)
	}
	if err != nil {
		return models.Item{}, false, fmt.Errorf("failed to scan item: %w", err)
	}

	if _, err := s.db.Exec("UPDATE items SET last_access = ? WHERE id = ?", now, id); err != nil {
		return models.Item{}, false, fmt.Errorf("failed to touch item: %w", err)
	}

	return item, now.After(expiresAt), nil
}

// PutCollection upserts a collection record with a fresh TTL window and
// enforces the size cap.
func (s *CacheStore) PutCollection(c models.Collection, now time.Time) error {
	query := `
		INSERT INTO collections (id, title, kind, item_count, etag, cached_at, expires_at, last_access)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			kind = excluded.kind,
			item_count = excluded.item_count,
			etag = excluded.etag,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at,
			last_access = excluded.last_access
	`

	_, err := s.db.Exec(query, c.ID, c.Title, string(c.Kind), c.ItemCount, c.ETag, now, now.Add(s.ttl), now)
	if err != nil {
		return fmt.Errorf("failed to upsert collection: %w", err)
	}

	return s.enforceCap()
}

// MergeChildren replaces a collection's visible listing with a freshly
// fetched one inside a single transaction: present items are upserted by id,
// locally-cached items absent from the fresh listing are removed, and the
// owning collection's count and TTL window are renewed. Positions follow the
// slice order, which is the remote-declared ordering.
//
// Callers must only invoke this with a complete listing; a failed or partial
// fetch must never reach the store.
func (s *CacheStore) MergeChildren(collectionID, title string, items []models.Item, now time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin merge: %w", err)
	}
	defer tx.Rollback()

	expires := now.Add(s.ttl)

	upsert := `
		INSERT INTO items (id, video_id, parent_id, position, title, duration, published_at, needs_verification, cached_at, expires_at, last_access)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			video_id = excluded.video_id,
			parent_id = excluded.parent_id,
			position = excluded.position,
			title = excluded.title,
			duration = excluded.duration,
			published_at = excluded.published_at,
			needs_verification = 0,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at,
			last_access = excluded.last_access
	`

	keep := make([]any, 0, len(items))
	for i, item := range items {
		var published any
		if !item.PublishedAt.IsZero() {
			published = item.PublishedAt
		}
		if _, err := tx.Exec(upsert, item.ID, item.VideoID, collectionID, i, item.Title, item.Duration, published, now, expires, now); err != nil {
			return fmt.Errorf("failed to upsert item %s: %w", item.ID, err)
		}
		keep = append(keep, item.ID)
	}

	// Remove local records the remote no longer lists.
	deleteQuery := "DELETE FROM items WHERE parent_id = ?"
	args := []any{collectionID}
	if len(keep) > 0 {
		deleteQuery += " AND id NOT IN (?" + strings.Repeat(",?", len(keep)-1) + ")"
		args = append(args, keep...)
	}
	if _, err := tx.Exec(deleteQuery, args...); err != nil {
		return fmt.Errorf("failed to prune removed items: %w", err)
	}

	collectionUpsert := `
		INSERT INTO collections (id, title, kind, item_count, etag, cached_at, expires_at, last_access)
		VALUES (?, ?, 'real', ?, '', ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			item_count = excluded.item_count,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at,
			last_access = excluded.last_access,
			title = CASE WHEN excluded.title != '' THEN excluded.title ELSE collections.title END
	`
	if _, err := tx.Exec(collectionUpsert, collectionID, title, len(items), now, expires, now); err != nil {
		return fmt.Errorf("failed to renew collection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit merge: %w", err)
	}

	return s.enforceCap()
}

// ListChildren returns a collection's cached items in the requested order
// and whether the listing is stale (owning collection record missing or past
// its TTL).
func (s *CacheStore) ListChildren(collectionID string, orderBy OrderBy, now time.Time) ([]models.Item, bool, error) {
	stale := true
	var expiresAt time.Time
	itemCount := 0
	err := s.db.QueryRow("SELECT expires_at, item_count FROM collections WHERE id = ?", collectionID).Scan(&expiresAt, &itemCount)
	if err == nil {
		stale = now.After(expiresAt)
	} else if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("failed to check collection freshness: %w", err)
	}

	column := "position"
	switch orderBy {
	case OrderByTitle:
		column = "title"
	case OrderByPublished:
		column = "published_at"
	}

	query := fmt.Sprintf(`
		SELECT id, video_id, parent_id, position, title, duration, published_at, needs_verification, cached_at, expires_at
		FROM items
		WHERE parent_id = ?
		ORDER BY %s ASC
	`, column)

	rows, err := s.db.Query(query, collectionID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		item, _, err := scanItem(rows)
		if err != nil {
			return nil, false, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("row iteration error: %w", err)
	}

	if _, err := s.db.Exec("UPDATE items SET last_access = ? WHERE parent_id = ?", now, collectionID); err != nil {
		return nil, false, fmt.Errorf("failed to touch items: %w", err)
	}

	// A fresh collection row whose items were never fetched (or were
	// evicted) must not pass off an empty listing as authoritative.
	if len(items) == 0 && itemCount > 0 {
		stale = true
	}

	return items, stale, nil
}

// ListCollections returns all cached collections ordered by title, with a
// stale flag covering the set (any expired record marks the listing stale).
func (s *CacheStore) ListCollections(now time.Time) ([]models.Collection, bool, error) {
	query := `
		SELECT id, title, kind, item_count, etag, cached_at, expires_at
		FROM collections
		ORDER BY title ASC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query collections: %w", err)
	}
	defer rows.Close()

	var collections []models.Collection
	stale := false
	for rows.Next() {
		var c models.Collection
		var kind string
		var expiresAt time.Time
		if err := rows.Scan(&c.ID, &c.Title, &kind, &c.ItemCount, &c.ETag, &c.CachedAt, &expiresAt); err != nil {
			return nil, false, fmt.Errorf("failed to scan collection: %w", err)
		}
		c.Kind = models.CollectionKind(kind)
		if now.After(expiresAt) {
			stale = true
		}
		collections = append(collections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("row iteration error: %w", err)
	}

	return collections, stale, nil
}

// InvalidateCollection removes a collection record and all its cached items.
func (s *CacheStore) InvalidateCollection(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin invalidation: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM items WHERE parent_id = ?", id); err != nil {
		return fmt.Errorf("failed to invalidate items: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM collections WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to invalidate collection: %w", err)
	}

	return tx.Commit()
}

// InvalidateAll empties the entire store.
func (s *CacheStore) InvalidateAll() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin invalidation: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM items"); err != nil {
		return fmt.Errorf("failed to clear items: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM collections"); err != nil {
		return fmt.Errorf("failed to clear collections: %w", err)
	}

	return tx.Commit()
}

// Sweep evicts every record past its TTL and returns the evicted count.
func (s *CacheStore) Sweep(now time.Time) (int, error) {
	evicted := 0

	result, err := s.db.Exec("DELETE FROM items WHERE expires_at < ?", now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep items: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil {
		evicted += int(n)
	}

	result, err = s.db.Exec("DELETE FROM collections WHERE expires_at < ?", now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep collections: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil {
		evicted += int(n)
	}

	return evicted, nil
}

// InsertItemAt writes a single item record at the given position, shifting
// later siblings up by one and bumping the owning collection's count. Used
// for optimistic updates after a successful remote insert.
func (s *CacheStore) InsertItemAt(item models.Item, now time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin insert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"UPDATE items SET position = position + 1 WHERE parent_id = ? AND position >= ?",
		item.ParentID, item.Position,
	); err != nil {
		return fmt.Errorf("failed to shift positions: %w", err)
	}

	var published any
	if !item.PublishedAt.IsZero() {
		published = item.PublishedAt
	}
	if _, err := tx.Exec(`
		INSERT INTO items (id, video_id, parent_id, position, title, duration, published_at, needs_verification, cached_at, expires_at, last_access)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
	`, item.ID, item.VideoID, item.ParentID, item.Position, item.Title, item.Duration, published, now, now.Add(s.ttl), now); err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}

	if _, err := tx.Exec(
		"UPDATE collections SET item_count = item_count + 1 WHERE id = ?",
		item.ParentID,
	); err != nil {
		return fmt.Errorf("failed to bump item count: %w", err)
	}

	return tx.Commit()
}

// RemoveItem deletes a single item record, closing the position gap and
// decrementing the owning collection's count.
func (s *CacheStore) RemoveItem(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin removal: %w", err)
	}
	defer tx.Rollback()

	var parentID string
	var position int
	err = tx.QueryRow("SELECT parent_id, position FROM items WHERE id = ?", id).Scan(&parentID, &position)
	if err == sql.ErrNoRows {
		return tx.Commit() // Already gone
	}
	if err != nil {
		return fmt.Errorf("failed to locate item: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM items WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if _, err := tx.Exec(
		"UPDATE items SET position = position - 1 WHERE parent_id = ? AND position > ?",
		parentID, position,
	); err != nil {
		return fmt.Errorf("failed to close position gap: %w", err)
	}
	if _, err := tx.Exec(
		"UPDATE collections SET item_count = item_count - 1 WHERE id = ? AND item_count > 0",
		parentID,
	); err != nil {
		return fmt.Errorf("failed to drop item count: %w", err)
	}

	return tx.Commit()
}

// MoveItemPosition reorders a single cached item within its collection,
// shifting the displaced siblings.
func (s *CacheStore) MoveItemPosition(id string, newPosition int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin reorder: %w", err)
	}
	defer tx.Rollback()

	var parentID string
	var oldPosition int
	err = tx.QueryRow("SELECT parent_id, position FROM items WHERE id = ?", id).Scan(&parentID, &oldPosition)
	if err != nil {
		return fmt.Errorf("failed to locate item: %w", err)
	}

	if oldPosition == newPosition {
		return tx.Commit()
	}

	if oldPosition < newPosition {
		_, err = tx.Exec(
			"UPDATE items SET position = position - 1 WHERE parent_id = ? AND position > ? AND position <= ?",
			parentID, oldPosition, newPosition,
		)
	} else {
		_, err = tx.Exec(
			"UPDATE items SET position = position + 1 WHERE parent_id = ? AND position >= ? AND position < ?",
			parentID, newPosition, oldPosition,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to shift positions: %w", err)
	}

	if _, err := tx.Exec("UPDATE items SET position = ? WHERE id = ?", newPosition, id); err != nil {
		return fmt.Errorf("failed to reposition item: %w", err)
	}

	return tx.Commit()
}

// SetCollectionTitle updates a cached collection's title in place.
func (s *CacheStore) SetCollectionTitle(id, title string) error {
	result, err := s.db.Exec("UPDATE collections SET title = ? WHERE id = ?", title, id)
	if err != nil {
		return fmt.Errorf("failed to retitle collection: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: collection %s", shared.ErrCacheMiss, id)
	}
	return nil
}

// FlagVerification marks entities whose remote state could not be confirmed
// after a partially-applied command.
func (s *CacheStore) FlagVerification(itemIDs []string) error {
	for _, id := range itemIDs {
		if _, err := s.db.Exec("UPDATE items SET needs_verification = 1 WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to flag item %s: %w", id, err)
		}
	}
	return nil
}

// HasCollection reports whether a collection record exists, fresh or stale.
func (s *CacheStore) HasCollection(id string) (bool, error) {
	var exists bool
	err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM collections WHERE id = ?)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check collection: %w", err)
	}
	return exists, nil
}

// HasItem reports whether an item record exists, fresh or stale.
func (s *CacheStore) HasItem(id string) (bool, error) {
	var exists bool
	err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM items WHERE id = ?)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check item: %w", err)
	}
	return exists, nil
}

// enforceCap evicts least-recently-accessed records until the total record
// count fits the configured cap. TTL is ignored here: the size bound wins.
func (s *CacheStore) enforceCap() error {
	if s.maxRecords <= 0 {
		return nil
	}

	var total int
	err := s.db.QueryRow(
		"SELECT (SELECT COUNT(*) FROM items) + (SELECT COUNT(*) FROM collections)",
	).Scan(&total)
	if err != nil {
		return fmt.Errorf("failed to count records: %w", err)
	}

	excess := total - s.maxRecords
	if excess <= 0 {
		return nil
	}

	// Items and collections compete for the same budget; evict whichever
	// was touched longest ago.
	query := `
		DELETE FROM items WHERE id IN (
			SELECT id FROM items ORDER BY last_access ASC LIMIT ?
		)
	`
	result, err := s.db.Exec(query, excess)
	if err != nil {
		return fmt.Errorf("failed to evict items: %w", err)
	}

	evicted, _ := result.RowsAffected()
	if int(evicted) >= excess {
		return nil
	}

	_, err = s.db.Exec(`
		DELETE FROM collections WHERE id IN (
			SELECT id FROM collections ORDER BY last_access ASC LIMIT ?
		)
	`, excess-int(evicted))
	if err != nil {
		return fmt.Errorf("failed to evict collections: %w", err)
	}

	return nil
}

// scanner abstracts sql.Row and sql.Rows for item scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (models.Item, time.Time, error) {
	var item models.Item
	var published sql.NullTime
	var needsVerification int
	var expiresAt time.Time

	err := row.Scan(
		&item.ID, &item.VideoID, &item.ParentID, &item.Position,
		&item.Title, &item.Duration, &published, &needsVerification,
		&item.CachedAt, &expiresAt,
	)
	if err != nil {
		return models.Item{}, time.Time{}, err
	}

	if published.Valid {
		item.PublishedAt = published.Time
	}
	item.NeedsVerification = needsVerification != 0

	return item, expiresAt, nil
}
