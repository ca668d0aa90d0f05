package repository

import (
	"context"

	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/domain"
)

// ReviewRepository defines the interface for review persistence operations.
type ReviewRepository interface {
	// Insert stores a new pending review and returns its assigned id.
	Insert(ctx context.Context, review *domain.Review) (int64, error)

	// GetByID retrieves a review by id. Unknown ids yield ErrNotFound.
	GetByID(ctx context.Context, id int64) (*domain.Review, error)

	// SetState moves a pending review to a terminal state, recording actor.
	// It fails with ErrInvalidTransition when the review is no longer pending
	// and with ErrNotFound when no such review exists.
	SetState(ctx context.Context, id int64, state domain.ReviewState, actorID int64) error

	// LatestByUser returns the most recently submitted review of a user in
	// any state, or nil when the user never submitted one.
	LatestByUser(ctx context.Context, userID int64) (*domain.Review, error)

	// All returns every review in insertion order.
	All(ctx context.Context) ([]domain.Review, error)

	// AggregatePublished returns the sum and count of ratings over published reviews.
	AggregatePublished(ctx context.Context) (sum int64, count int64, err error)
}
