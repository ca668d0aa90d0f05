package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/domain"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/database"
	apperrors "github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/errors"
)

const reviewsTable = "reviews"

const reviewColumns = `id, user_id, rating, communication, delivery, name, text, photo_ref, submitted_at, state, moderated_at, moderated_by`

const (
	insertReviewSQL = `
		INSERT INTO reviews (user_id, rating, communication, delivery, name, text, photo_ref, submitted_at, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')
		RETURNING id`

	getReviewSQL = `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`

	// setStateSQL reads the prior state and applies the conditional update in
	// one statement. Both CTEs see the same snapshot, so prev_state is the
	// state before this update.
	setStateSQL = `
		WITH target AS (
			SELECT state FROM reviews WHERE id = $1
		), updated AS (
			UPDATE reviews
			SET state = $2, moderated_at = NOW(), moderated_by = $3
			WHERE id = $1 AND state = 'pending'
			RETURNING id
		)
		SELECT (SELECT state FROM target) AS prev_state, EXISTS (SELECT 1 FROM updated) AS applied`

	latestByUserSQL = `SELECT ` + reviewColumns + ` FROM reviews WHERE user_id = $1 ORDER BY submitted_at DESC, id DESC LIMIT 1`

	allReviewsSQL = `SELECT ` + reviewColumns + ` FROM reviews ORDER BY id ASC`

	aggregatePublishedSQL = `SELECT COALESCE(SUM(rating), 0)::BIGINT, COUNT(*) FROM reviews WHERE state = 'published'`
)

// ReviewRepository implements repository.ReviewRepository using PostgreSQL.
type ReviewRepository struct {
	pool database.DBTX
}

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(pool database.DBTX) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

func textOrNull(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// Insert stores r as pending and sets r.ID and r.State.
func (r *ReviewRepository) Insert(ctx context.Context, rv *domain.Review) (id int64, err error) {
	ctx, end := database.TraceQuery(ctx, reviewsTable, "InsertReview", insertReviewSQL)
	defer func() { end(err) }()

	err = r.pool.QueryRow(ctx, insertReviewSQL,
		rv.UserID,
		rv.Rating,
		rv.Communication,
		rv.Delivery,
		rv.Name,
		rv.Text,
		textOrNull(rv.PhotoRef),
		rv.SubmittedAt,
	).Scan(&id)
	if err != nil {
		return 0, apperrors.Internal(fmt.Errorf("insert review: %w", err))
	}

	rv.ID = id
	rv.State = domain.ReviewStatePending
	return id, nil
}

// GetByID retrieves a review by its id.
func (r *ReviewRepository) GetByID(ctx context.Context, id int64) (rv *domain.Review, err error) {
	ctx, end := database.TraceQuery(ctx, reviewsTable, "GetReview", getReviewSQL)
	defer func() { end(err) }()

	rv, err = scanReview(r.pool.QueryRow(ctx, getReviewSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("review", strconv.FormatInt(id, 10))
		}
		return nil, apperrors.Internal(fmt.Errorf("get review %d: %w", id, err))
	}
	return rv, nil
}

// SetState moves a pending review to state.
func (r *ReviewRepository) SetState(ctx context.Context, id int64, state domain.ReviewState, actorID int64) (err error) {
	idStr := strconv.FormatInt(id, 10)
	if !state.IsTerminal() {
		return apperrors.InvalidTransition("review", idStr, "pending", string(state))
	}

	ctx, end := database.TraceQuery(ctx, reviewsTable, "SetReviewState", setStateSQL)
	defer func() {
		// Lost races are expected outcomes, not query failures.
		if errors.Is(err, apperrors.ErrInvalidTransition) || errors.Is(err, apperrors.ErrNotFound) {
			end(nil)
			return
		}
		end(err)
	}()

	var (
		prev    pgtype.Text
		applied bool
	)
	if err = r.pool.QueryRow(ctx, setStateSQL, id, string(state), actorID).Scan(&prev, &applied); err != nil {
		return apperrors.Internal(fmt.Errorf("set review %d state: %w", id, err))
	}

	switch {
	case !prev.Valid:
		return apperrors.NotFound("review", idStr)
	case !applied:
		return apperrors.InvalidTransition("review", idStr, prev.String, string(state))
	default:
		return nil
	}
}

// LatestByUser returns the user's most recent review, or nil.
func (r *ReviewRepository) LatestByUser(ctx context.Context, userID int64) (rv *domain.Review, err error) {
	ctx, end := database.TraceQuery(ctx, reviewsTable, "LatestReviewByUser", latestByUserSQL)
	defer func() { end(err) }()

	rv, err = scanReview(r.pool.QueryRow(ctx, latestByUserSQL, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.Internal(fmt.Errorf("latest review of user %d: %w", userID, err))
	}
	return rv, nil
}

// All returns every review ordered by id.
func (r *ReviewRepository) All(ctx context.Context) (reviews []domain.Review, err error) {
	ctx, end := database.TraceQuery(ctx, reviewsTable, "ListReviews", allReviewsSQL)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, allReviewsSQL)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("list reviews: %w", err))
	}
	defer rows.Close()

	reviews = make([]domain.Review, 0)
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, apperrors.Internal(fmt.Errorf("scan review row: %w", err))
		}
		reviews = append(reviews, *rv)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("iterate review rows: %w", err))
	}

	return reviews, nil
}

// AggregatePublished returns the sum and count of published ratings.
func (r *ReviewRepository) AggregatePublished(ctx context.Context) (sum, count int64, err error) {
	ctx, end := database.TraceQuery(ctx, reviewsTable, "AggregatePublished", aggregatePublishedSQL)
	defer func() { end(err) }()

	if err = r.pool.QueryRow(ctx, aggregatePublishedSQL).Scan(&sum, &count); err != nil {
		return 0, 0, apperrors.Internal(fmt.Errorf("aggregate published reviews: %w", err))
	}
	return sum, count, nil
}

// scanReview reads one row in reviewColumns order.
func scanReview(row pgx.Row) (*domain.Review, error) {
	var (
		rv          domain.Review
		state       string
		photoRef    pgtype.Text
		moderatedAt pgtype.Timestamptz
		moderatedBy pgtype.Int8
	)

	if err := row.Scan(
		&rv.ID,
		&rv.UserID,
		&rv.Rating,
		&rv.Communication,
		&rv.Delivery,
		&rv.Name,
		&rv.Text,
		&photoRef,
		&rv.SubmittedAt,
		&state,
		&moderatedAt,
		&moderatedBy,
	); err != nil {
		return nil, err
	}

	rv.State = domain.ReviewState(state)
	rv.PhotoRef = photoRef.String
	if moderatedAt.Valid {
		t := moderatedAt.Time
		rv.ModeratedAt = &t
	}
	if moderatedBy.Valid {
		by := moderatedBy.Int64
		rv.ModeratedBy = &by
	}
	return &rv, nil
}
