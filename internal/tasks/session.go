package tasks

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"

	"github.com/desertthunder/ytr/internal/journal"
	"github.com/desertthunder/ytr/internal/models"
	"github.com/desertthunder/ytr/internal/repositories"
	"github.com/desertthunder/ytr/internal/services"
	"github.com/desertthunder/ytr/internal/shared"
)

// Session wires the cache store, quota ledger, command engine, and sync
// coordinator over one exclusively-locked database. It is the single entry
// point for the CLI and TUI layers.
type Session struct {
	cfg    *shared.Config
	db     *sql.DB
	lock   *flock.Flock
	logger *log.Logger

	store   *repositories.CacheStore
	ledger  *repositories.QuotaLedger
	engine  *CommandEngine
	coord   *SyncCoordinator
	journal *journal.Journal
}

// NewSession opens the configured database and builds the full stack with a
// real YouTube gateway behind the retry decorator.
func NewSession(cfg *shared.Config, logger *log.Logger) (*Session, error) {
	client, err := shared.NewAuthClient(context.Background(), cfg.YouTube.TokenFile)
	if err != nil {
		return nil, err
	}

	gateway := services.NewRetryingGateway(
		services.NewYouTubeGateway(cfg.YouTube.BaseURL, cfg.YouTube.PageSize, client),
		cfg.YouTube.RetryPerSecond,
		cfg.YouTube.ReadRetries,
	)

	return NewSessionWithGateway(cfg, gateway, logger)
}

// NewSessionWithGateway builds a session over an arbitrary gateway. The TUI
// and tests use this to inject doubles or pre-wrapped gateways.
func NewSessionWithGateway(cfg *shared.Config, gateway services.Gateway, logger *log.Logger) (*Session, error) {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	lock, err := shared.LockDatabase(cfg.Cache.Path)
	if err != nil {
		return nil, err
	}

	db, err := shared.NewDatabase(cfg.Cache.Path)
	if err != nil {
		if lock != nil {
			lock.Unlock()
		}
		return nil, err
	}
	shared.ConfigureDatabase(db, 1, 1)

	rebuilt, err := shared.EnsureSchema(db)
	if err != nil {
		db.Close()
		if lock != nil {
			lock.Unlock()
		}
		return nil, fmt.Errorf("failed to prepare cache schema: %w", err)
	}
	if rebuilt {
		logger.Warn("cache schema changed, rebuilt from empty")
	}

	var jrnl *journal.Journal
	if cfg.Journal.Enabled && cfg.Journal.Path != "" {
		jrnl, err = journal.New(cfg.Journal.Path, logger)
		if err != nil {
			logger.Warn("journal disabled", "error", err)
			jrnl = nil
		}
	}

	store := repositories.NewCacheStore(db, cfg.Cache.TTL(), cfg.Cache.MaxRecords)
	ledger := repositories.NewQuotaLedger(db, cfg.Quota.DailyBudget, cfg.Quota.ResetHour)
	locks := newEntityLocks()

	return &Session{
		cfg:     cfg,
		db:      db,
		lock:    lock,
		logger:  logger,
		store:   store,
		ledger:  ledger,
		journal: jrnl,
		engine:  NewCommandEngine(store, ledger, gateway, jrnl, locks, cfg.History.Depth, logger),
		coord:   NewSyncCoordinator(store, ledger, gateway, locks, logger),
	}, nil
}

// Store exposes the cache store for read-only inspection.
func (s *Session) Store() *repositories.CacheStore { return s.store }

// Engine exposes the command engine.
func (s *Session) Engine() *CommandEngine { return s.engine }

// Coordinator exposes the sync coordinator.
func (s *Session) Coordinator() *SyncCoordinator { return s.coord }

// Execute runs a mutation command through the engine.
func (s *Session) Execute(ctx context.Context, cmd *models.Command, progress chan<- ProgressUpdate) error {
	return s.engine.Execute(ctx, cmd, progress)
}

// Undo reverses the most recent applied command.
func (s *Session) Undo(ctx context.Context, progress chan<- ProgressUpdate) (*models.Command, error) {
	return s.engine.Undo(ctx, progress)
}

// Redo re-applies the most recently reversed command.
func (s *Session) Redo(ctx context.Context, progress chan<- ProgressUpdate) (*models.Command, error) {
	return s.engine.Redo(ctx, progress)
}

// GetView returns a collection's items, cache-first.
func (s *Session) GetView(ctx context.Context, collectionID string, force bool) (*models.View, error) {
	return s.coord.GetView(ctx, collectionID, force)
}

// Collections returns the collection listing, cache-first, with a stale flag.
func (s *Session) Collections(ctx context.Context, force bool) ([]models.Collection, bool, error) {
	return s.coord.Collections(ctx, force)
}

// RefreshAll empties the cache and refetches the collection listing plus the
// visible collection; pass an empty visibleID when no collection is open.
func (s *Session) RefreshAll(ctx context.Context, visibleID string, progress chan<- ProgressUpdate) error {
	return s.coord.RefreshAll(ctx, visibleID, progress)
}

// Quota reports today's budget consumption.
func (s *Session) Quota() (models.QuotaEntry, error) {
	return s.ledger.Status()
}

// Sweep evicts expired cache records, returning the evicted count.
func (s *Session) Sweep() (int, error) {
	return s.store.Sweep(s.coord.now())
}

// Close cancels in-flight refreshes, closes the database, and releases the
// advisory lock.
func (s *Session) Close() error {
	s.coord.CancelAll()

	err := s.db.Close()
	if s.lock != nil {
		if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}
	return err
}
