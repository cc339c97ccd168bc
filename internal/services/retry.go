package services

import (
	"context"
	"errors"

	"github.com/desertthunder/ytr/internal/models"
	"github.com/desertthunder/ytr/internal/shared"
	"golang.org/x/time/rate"
)

// RetryingGateway decorates a [Gateway] with transparent retries for
// idempotent reads. Retries are paced by a rate limiter and bounded by a
// fixed attempt count. Writes are never auto-retried: a non-idempotent call
// that fails is surfaced immediately and the caller decides whether to
// re-issue it.
type RetryingGateway struct {
	inner      Gateway
	limiter    *rate.Limiter
	maxRetries int
}

// NewRetryingGateway wraps inner. perSecond paces retry attempts;
// maxRetries bounds attempts beyond the first.
func NewRetryingGateway(inner Gateway, perSecond float64, maxRetries int) *RetryingGateway {
	if perSecond <= 0 {
		perSecond = 2
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &RetryingGateway{
		inner:      inner,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), 1),
		maxRetries: maxRetries,
	}
}

// retryRead runs fn up to 1+maxRetries times while it fails transiently.
// Quota, auth, and not-found errors are never retried.
func retryRead[T any](ctx context.Context, g *RetryingGateway, fn func() (T, error)) (T, error) {
	var result T
	var err error

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			if waitErr := g.limiter.Wait(ctx); waitErr != nil {
				return result, waitErr
			}
		}

		result, err = fn()
		if err == nil || !errors.Is(err, shared.ErrTransient) {
			return result, err
		}
	}

	return result, err
}

func (g *RetryingGateway) ListCollections(ctx context.Context, pageToken string) (*CollectionPage, error) {
	return retryRead(ctx, g, func() (*CollectionPage, error) {
		return g.inner.ListCollections(ctx, pageToken)
	})
}

func (g *RetryingGateway) ListItems(ctx context.Context, collectionID, pageToken string) (*ItemPage, error) {
	return retryRead(ctx, g, func() (*ItemPage, error) {
		return g.inner.ListItems(ctx, collectionID, pageToken)
	})
}

func (g *RetryingGateway) InsertItem(ctx context.Context, collectionID, videoID string, position int) (string, error) {
	return g.inner.InsertItem(ctx, collectionID, videoID, position)
}

func (g *RetryingGateway) DeleteItem(ctx context.Context, itemID string) error {
	return g.inner.DeleteItem(ctx, itemID)
}

func (g *RetryingGateway) MoveItem(ctx context.Context, itemID, collectionID, videoID string, position int) error {
	return g.inner.MoveItem(ctx, itemID, collectionID, videoID, position)
}

func (g *RetryingGateway) UpdateTitle(ctx context.Context, collectionID, title string) error {
	return g.inner.UpdateTitle(ctx, collectionID, title)
}

func (g *RetryingGateway) CreateCollection(ctx context.Context, title, privacy string) (*models.Collection, error) {
	return g.inner.CreateCollection(ctx, title, privacy)
}

func (g *RetryingGateway) DeleteCollection(ctx context.Context, collectionID string) error {
	return g.inner.DeleteCollection(ctx, collectionID)
}

var _ Gateway = (*RetryingGateway)(nil)
