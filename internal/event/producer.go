package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/domain"
	pkgkafka "github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/kafka"
)

// Topic names, before the configured prefix is applied.
const (
	TopicReviewSubmitted = "review.submitted"
	TopicReviewPublished = "review.published"
	TopicReviewRejected  = "review.rejected"
)

// AggregateTypeReview is the aggregate type of every review event.
const AggregateTypeReview = "review"

// SourceFeedbackBot identifies events originating from the bot.
const SourceFeedbackBot = "feedback-bot"

// ReviewSubmittedData is the payload for a review.submitted event.
type ReviewSubmittedData struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	Rating        int       `json:"rating"`
	Communication int       `json:"communication"`
	Delivery      int       `json:"delivery"`
	HasPhoto      bool      `json:"has_photo"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// ReviewModeratedData is the payload for review.published and review.rejected.
type ReviewModeratedData struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	Rating      int    `json:"rating"`
	State       string `json:"state"`
	ModeratedBy int64  `json:"moderated_by"`
}

// Producer publishes review domain events. A Producer built with a nil
// publisher drops every event, which is how a deployment without Kafka runs.
type Producer struct {
	kafka  pkgkafka.Publisher
	prefix string
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka pkgkafka.Publisher, topicPrefix string, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		prefix: topicPrefix,
		logger: logger,
	}
}

func (p *Producer) publish(ctx context.Context, name string, id int64, data any) error {
	if p == nil || p.kafka == nil {
		return nil
	}

	topic := pkgkafka.Topic(p.prefix, name)
	event, err := pkgkafka.NewEvent(ctx, name, fmt.Sprintf("%d", id), AggregateTypeReview, SourceFeedbackBot, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", name, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", name, err)
	}

	p.logger.DebugContext(ctx, "published "+name+" event",
		slog.Int64("review_id", id),
		slog.String("topic", topic),
	)
	return nil
}

// PublishReviewSubmitted publishes a review.submitted event.
func (p *Producer) PublishReviewSubmitted(ctx context.Context, r *domain.Review) error {
	return p.publish(ctx, TopicReviewSubmitted, r.ID, ReviewSubmittedData{
		ID:            r.ID,
		UserID:        r.UserID,
		Rating:        r.Rating,
		Communication: r.Communication,
		Delivery:      r.Delivery,
		HasPhoto:      r.HasPhoto(),
		SubmittedAt:   r.SubmittedAt,
	})
}

// PublishReviewModerated publishes review.published or review.rejected
// depending on state.
func (p *Producer) PublishReviewModerated(ctx context.Context, r *domain.Review, state domain.ReviewState, actorID int64) error {
	name := TopicReviewRejected
	if state == domain.ReviewStatePublished {
		name = TopicReviewPublished
	}
	return p.publish(ctx, name, r.ID, ReviewModeratedData{
		ID:          r.ID,
		UserID:      r.UserID,
		Rating:      r.Rating,
		State:       string(state),
		ModeratedBy: actorID,
	})
}
