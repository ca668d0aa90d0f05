package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/domain"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/event"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/repository"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/sender"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/logger"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/validator"
)

var (
	scoreRule = fmt.Sprintf("gte=%d,lte=%d", domain.MinScore, domain.MaxScore)
	nameRule  = fmt.Sprintf("notblank,max=%d", domain.MaxNameRunes)
	textRule  = fmt.Sprintf("notblank,max=%d", domain.MaxTextRunes)
)

// SessionManager drives users through the feedback dialog. Sessions live in
// memory only and are lost on restart.
type SessionManager struct {
	repo           repository.ReviewRepository
	gate           *CooldownGate
	sender         sender.Sender
	events         *event.Producer
	moderationChat int64
	logger         *slog.Logger

	table  *sessionTable
	active atomic.Int64
	now    func() time.Time
}

// NewSessionManager creates a session manager.
func NewSessionManager(
	repo repository.ReviewRepository,
	gate *CooldownGate,
	snd sender.Sender,
	events *event.Producer,
	moderationChat int64,
	logger *slog.Logger,
) *SessionManager {
	return &SessionManager{
		repo:           repo,
		gate:           gate,
		sender:         snd,
		events:         events,
		moderationChat: moderationChat,
		logger:         logger,
		table:          newSessionTable(),
		now:            time.Now,
	}
}

// Active returns the number of dialogs in progress.
func (m *SessionManager) Active() int64 { return m.active.Load() }

// Step returns the current step of userID, or StepIdle without a session.
func (m *SessionManager) Step(userID int64) domain.Step {
	step := domain.StepIdle
	m.table.with(userID, func(slot *sessionSlot) {
		if slot.session != nil {
			step = slot.session.Step
		}
	})
	return step
}

// Start begins a new dialog after the cooldown check. A dialog already in
// progress is replaced.
func (m *SessionManager) Start(ctx context.Context, o domain.Origin) error {
	var err error
	m.table.with(o.UserID, func(slot *sessionSlot) {
		err = m.start(ctx, slot, o)
	})
	return err
}

func (m *SessionManager) start(ctx context.Context, slot *sessionSlot, o domain.Origin) error {
	log := logger.WithContext(ctx, m.logger)

	elig, err := m.gate.Check(ctx, o.UserID)
	if err != nil {
		m.reply(ctx, o.ChatID, domain.Message{Text: domain.TextActionFailed})
		return err
	}
	if !elig.Eligible {
		cooldownRejections.Inc()
		log.InfoContext(ctx, "dialog refused by cooldown", slog.Time("next_allowed_at", elig.NextAllowedAt))
		m.reply(ctx, o.ChatID, domain.Message{Text: domain.FormatCooldown(elig.NextAllowedAt)})
		return nil
	}

	if slot.session == nil {
		m.active.Add(1)
		activeSessions.Inc()
	}
	slot.session = domain.NewSession(o.UserID, o.ChatID, m.now().UTC())
	log.InfoContext(ctx, "dialog started")

	m.reply(ctx, o.ChatID, domain.PromptFor(slot.session.Step))
	return nil
}

// Cancel abandons the dialog of the user, if any.
func (m *SessionManager) Cancel(ctx context.Context, o domain.Origin) {
	m.table.with(o.UserID, func(slot *sessionSlot) {
		if slot.session == nil {
			m.reply(ctx, o.ChatID, domain.Message{Text: domain.TextNothingToCancel})
			return
		}
		step := slot.session.Step
		m.drop(slot)
		logger.WithContext(ctx, m.logger).InfoContext(ctx, "dialog cancelled", slog.String("step", step.String()))
		m.reply(ctx, o.ChatID, domain.Message{Text: domain.TextCancelled})
	})
}

// HandleChoice applies a score button press. A press for a stage other than
// the awaited one comes from an old message and is ignored.
func (m *SessionManager) HandleChoice(ctx context.Context, u domain.ChoiceUpdate) error {
	defer m.ack(ctx, u.CallbackID)

	var err error
	m.table.with(u.UserID, func(slot *sessionSlot) {
		s := slot.session
		if s == nil {
			err = m.start(ctx, slot, u.Origin)
			return
		}

		if u.Choice.Stage != s.Step.Stage() {
			logger.WithContext(ctx, m.logger).DebugContext(ctx, "ignoring stale choice",
				slog.String("stage", string(u.Choice.Stage)),
				slog.String("step", s.Step.String()),
			)
			return
		}

		if verr := validator.ValidateVar(string(u.Choice.Stage), u.Choice.Value, scoreRule); verr != nil {
			m.reply(ctx, s.ChatID, domain.Message{Text: domain.TextChooseScore, Buttons: domain.ScoreButtons(u.Choice.Stage)})
			return
		}

		s.SetScore(u.Choice.Stage, u.Choice.Value)
		m.advance(ctx, s)
	})
	return err
}

// HandleText applies a text message to the current step.
func (m *SessionManager) HandleText(ctx context.Context, u domain.TextUpdate) error {
	var err error
	m.table.with(u.UserID, func(slot *sessionSlot) {
		s := slot.session
		if s == nil {
			err = m.start(ctx, slot, u.Origin)
			return
		}

		switch s.Step {
		case domain.StepAwaitingName:
			name := strings.TrimSpace(u.Text)
			if validator.ValidateVar("name", name, nameRule) != nil {
				m.reply(ctx, s.ChatID, domain.Message{Text: domain.TextNameInvalid})
				return
			}
			s.Name = name
			m.advance(ctx, s)

		case domain.StepAwaitingText:
			text := strings.TrimSpace(u.Text)
			if validator.ValidateVar("text", text, textRule) != nil {
				m.reply(ctx, s.ChatID, domain.Message{Text: domain.TextTextInvalid})
				return
			}
			s.Text = text
			m.advance(ctx, s)

		case domain.StepAwaitingPhoto:
			err = m.complete(ctx, slot, "")

		default:
			m.reprompt(ctx, s)
		}
	})
	return err
}

// HandlePhoto applies a photo. Outside the photo step it is wrong input.
func (m *SessionManager) HandlePhoto(ctx context.Context, u domain.PhotoUpdate) error {
	var err error
	m.table.with(u.UserID, func(slot *sessionSlot) {
		s := slot.session
		if s == nil {
			err = m.start(ctx, slot, u.Origin)
			return
		}
		if s.Step == domain.StepAwaitingPhoto {
			err = m.complete(ctx, slot, u.PhotoRef)
			return
		}
		m.reprompt(ctx, s)
	})
	return err
}

// HandleOther applies unsupported content, which skips the photo step and
// re-prompts anywhere else.
func (m *SessionManager) HandleOther(ctx context.Context, u domain.OtherUpdate) error {
	var err error
	m.table.with(u.UserID, func(slot *sessionSlot) {
		s := slot.session
		if s == nil {
			err = m.start(ctx, slot, u.Origin)
			return
		}
		if s.Step == domain.StepAwaitingPhoto {
			err = m.complete(ctx, slot, "")
			return
		}
		m.reprompt(ctx, s)
	})
	return err
}

func (m *SessionManager) advance(ctx context.Context, s *domain.Session) {
	s.Step = s.Step.Next()
	m.reply(ctx, s.ChatID, domain.PromptFor(s.Step))
}

func (m *SessionManager) reprompt(ctx context.Context, s *domain.Session) {
	prompt := domain.PromptFor(s.Step)
	if s.Step.Stage() != "" {
		prompt.Text = domain.TextChooseScore
	}
	m.reply(ctx, s.ChatID, prompt)
}

// complete stores the review and tears the session down. When the insert
// fails the session keeps its answers and stays on the photo step.
func (m *SessionManager) complete(ctx context.Context, slot *sessionSlot, photoRef string) error {
	s := slot.session
	log := logger.WithContext(ctx, m.logger)

	review := s.Review(m.now().UTC())
	review.PhotoRef = photoRef

	if err := review.Validate(); err != nil {
		// Answers are checked step by step, so this is a bug, not user error.
		log.ErrorContext(ctx, "assembled review is invalid", slog.String("error", err.Error()))
		m.reply(ctx, s.ChatID, domain.Message{Text: domain.TextSubmitFailed})
		return err
	}

	id, err := m.repo.Insert(ctx, review)
	if err != nil {
		log.ErrorContext(ctx, "failed to store review", slog.String("error", err.Error()))
		m.reply(ctx, s.ChatID, domain.Message{Text: domain.TextSubmitFailed})
		return err
	}
	review.ID = id
	s.Step = domain.StepCompleted
	chatID := s.ChatID
	m.drop(slot)

	reviewsSubmitted.Inc()
	log.InfoContext(ctx, "review submitted",
		slog.Int64("review_id", id),
		slog.Int("rating", review.Rating),
		slog.Bool("photo", review.HasPhoto()),
	)

	m.reply(ctx, chatID, domain.Message{Text: domain.TextSubmitted})

	if _, err := m.sender.Send(ctx, m.moderationChat, domain.ModerationMessage(review)); err != nil {
		deliveryErrors.WithLabelValues("moderation_notify").Inc()
		log.ErrorContext(ctx, "failed to notify moderators",
			slog.Int64("review_id", id),
			slog.String("error", err.Error()),
		)
	}

	if err := m.events.PublishReviewSubmitted(ctx, review); err != nil {
		log.WarnContext(ctx, "failed to publish review.submitted event",
			slog.Int64("review_id", id),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (m *SessionManager) drop(slot *sessionSlot) {
	if slot.session == nil {
		return
	}
	slot.session = nil
	m.active.Add(-1)
	activeSessions.Dec()
}

// reply sends msg and only logs failures. State is already committed.
func (m *SessionManager) reply(ctx context.Context, chatID int64, msg domain.Message) {
	if _, err := m.sender.Send(ctx, chatID, msg); err != nil {
		deliveryErrors.WithLabelValues("reply").Inc()
		logger.WithContext(ctx, m.logger).WarnContext(ctx, "failed to send reply",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
	}
}

func (m *SessionManager) ack(ctx context.Context, callbackID string) {
	if err := m.sender.AnswerCallback(ctx, callbackID, ""); err != nil && !errors.Is(err, context.Canceled) {
		deliveryErrors.WithLabelValues("answer_callback").Inc()
		logger.WithContext(ctx, m.logger).DebugContext(ctx, "failed to answer callback", slog.String("error", err.Error()))
	}
}
