package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/domain"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/event"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/repository"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/sender"
	apperrors "github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/errors"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/logger"
)

// Outcome is the result of a moderation action.
type Outcome int

const (
	OutcomeUnauthorized Outcome = iota + 1
	OutcomeNotFound
	OutcomeAlreadyModerated
	OutcomePublished
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeAlreadyModerated:
		return "already_moderated"
	case OutcomePublished:
		return "published"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Ack is the toast shown to the admin who pressed the button.
func (o Outcome) Ack() string {
	switch o {
	case OutcomeUnauthorized:
		return domain.TextNotAdmin
	case OutcomeNotFound:
		return domain.TextReviewNotFound
	case OutcomeAlreadyModerated:
		return domain.TextAlreadyModerated
	case OutcomePublished:
		return domain.TextPublishedAck
	case OutcomeRejected:
		return domain.TextRejectedAck
	default:
		return ""
	}
}

// Admins is the set of privileged user ids.
type Admins map[int64]struct{}

// NewAdmins builds an admin set from ids.
func NewAdmins(ids []int64) Admins {
	a := make(Admins, len(ids))
	for _, id := range ids {
		a[id] = struct{}{}
	}
	return a
}

// Contains reports whether id is privileged.
func (a Admins) Contains(id int64) bool {
	_, ok := a[id]
	return ok
}

// Moderator applies admin decisions to pending reviews.
type Moderator struct {
	repo           repository.ReviewRepository
	sender         sender.Sender
	aggregator     *Aggregator
	events         *event.Producer
	admins         Admins
	channel        string
	moderationChat int64
	logger         *slog.Logger
}

// NewModerator creates a moderation controller.
func NewModerator(
	repo repository.ReviewRepository,
	snd sender.Sender,
	aggregator *Aggregator,
	events *event.Producer,
	admins Admins,
	channel string,
	moderationChat int64,
	logger *slog.Logger,
) *Moderator {
	return &Moderator{
		repo:           repo,
		sender:         snd,
		aggregator:     aggregator,
		events:         events,
		admins:         admins,
		channel:        channel,
		moderationChat: moderationChat,
		logger:         logger,
	}
}

// Handle authorizes and applies one moderation action. Storage failures are
// returned; delivery failures are logged and reported to the moderation chat.
func (m *Moderator) Handle(ctx context.Context, a domain.ModerationAction) (Outcome, error) {
	outcome, err := m.handle(ctx, a)
	if err != nil {
		moderationActions.WithLabelValues(string(a.Kind), "error").Inc()
		return 0, err
	}
	moderationActions.WithLabelValues(string(a.Kind), outcome.String()).Inc()
	return outcome, nil
}

func (m *Moderator) handle(ctx context.Context, a domain.ModerationAction) (Outcome, error) {
	log := logger.WithContext(ctx, m.logger).With(
		slog.Int64("review_id", a.ReviewID),
		slog.String("action", string(a.Kind)),
		slog.Int64("actor_id", a.ActorID),
	)

	if !m.admins.Contains(a.ActorID) {
		log.WarnContext(ctx, "moderation by non-admin ignored")
		return OutcomeUnauthorized, nil
	}

	target := domain.ReviewStateRejected
	if a.Kind == domain.ModerationPublish {
		target = domain.ReviewStatePublished
	}

	review, err := m.repo.GetByID(ctx, a.ReviewID)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		log.WarnContext(ctx, "moderation for unknown review")
		m.clearButtons(ctx, a.Message)
		return OutcomeNotFound, nil
	case err != nil:
		return 0, fmt.Errorf("get review for moderation: %w", err)
	}

	if review.State != domain.ReviewStatePending {
		log.InfoContext(ctx, "review already moderated", slog.String("state", string(review.State)))
		m.clearButtons(ctx, a.Message)
		return OutcomeAlreadyModerated, nil
	}

	if target == domain.ReviewStatePublished {
		m.aggregator.BeginPublish()
		defer m.aggregator.EndPublish()
	}

	err = m.repo.SetState(ctx, a.ReviewID, target, a.ActorID)
	switch {
	case errors.Is(err, apperrors.ErrInvalidTransition):
		// Another admin got there first.
		log.InfoContext(ctx, "lost moderation race")
		m.clearButtons(ctx, a.Message)
		return OutcomeAlreadyModerated, nil
	case errors.Is(err, apperrors.ErrNotFound):
		m.clearButtons(ctx, a.Message)
		return OutcomeNotFound, nil
	case err != nil:
		return 0, fmt.Errorf("set review state: %w", err)
	}
	review.State = target

	m.clearButtons(ctx, a.Message)
	log.InfoContext(ctx, "review moderated", slog.String("state", string(target)))

	if target == domain.ReviewStatePublished {
		if err := m.sender.PublishToChannel(ctx, m.channel, domain.ChannelMessage(review)); err != nil {
			deliveryErrors.WithLabelValues("publish").Inc()
			log.ErrorContext(ctx, "failed to post review to channel", slog.String("error", err.Error()))
			m.report(ctx, fmt.Sprintf("⚠️ Review #%d is published but posting it to the channel failed: %v", review.ID, err))
		}
		if err := m.aggregator.RecordPublished(ctx, review.Rating); err != nil {
			m.report(ctx, fmt.Sprintf("⚠️ Review #%d is published but the channel description was not updated: %v", review.ID, err))
		}
	}

	if err := m.events.PublishReviewModerated(ctx, review, target, a.ActorID); err != nil {
		log.WarnContext(ctx, "failed to publish moderation event", slog.String("error", err.Error()))
	}

	if target == domain.ReviewStatePublished {
		return OutcomePublished, nil
	}
	return OutcomeRejected, nil
}

func (m *Moderator) clearButtons(ctx context.Context, ref domain.MessageRef) {
	if ref.IsZero() {
		return
	}
	if err := m.sender.ClearButtons(ctx, ref); err != nil {
		deliveryErrors.WithLabelValues("clear_buttons").Inc()
		logger.WithContext(ctx, m.logger).WarnContext(ctx, "failed to clear moderation buttons",
			slog.Int("message_id", ref.MessageID),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Moderator) report(ctx context.Context, text string) {
	if _, err := m.sender.Send(ctx, m.moderationChat, domain.Message{Text: text}); err != nil {
		deliveryErrors.WithLabelValues("report").Inc()
		logger.WithContext(ctx, m.logger).ErrorContext(ctx, "failed to report to moderation chat", slog.String("error", err.Error()))
	}
}
