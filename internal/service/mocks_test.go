package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/domain"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/event"
	sendermock "github.com/gomersimpson131212-create/reviews-telegram-bot/internal/sender/mock"
)

// --- Mock Review Repository ---

type mockReviewRepository struct {
	mock.Mock
}

func (m *mockReviewRepository) Insert(ctx context.Context, review *domain.Review) (int64, error) {
	args := m.Called(ctx, review)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockReviewRepository) GetByID(ctx context.Context, id int64) (*domain.Review, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Review), args.Error(1)
}

func (m *mockReviewRepository) SetState(ctx context.Context, id int64, state domain.ReviewState, actorID int64) error {
	args := m.Called(ctx, id, state, actorID)
	return args.Error(0)
}

func (m *mockReviewRepository) LatestByUser(ctx context.Context, userID int64) (*domain.Review, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Review), args.Error(1)
}

func (m *mockReviewRepository) All(ctx context.Context) ([]domain.Review, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Review), args.Error(1)
}

func (m *mockReviewRepository) AggregatePublished(ctx context.Context) (int64, int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

// --- Test Helpers ---

const (
	testModerationChat = int64(-1001)
	testChannel        = "@reviews"
	testAdmin          = int64(500)
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSender() *sendermock.MockSender {
	return sendermock.NewMockSender(newTestLogger())
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestSessionManager(repo *mockReviewRepository, snd *sendermock.MockSender, now time.Time) *SessionManager {
	gate := NewCooldownGate(repo, DefaultCooldown)
	gate.now = fixedClock(now)
	m := NewSessionManager(repo, gate, snd, event.NewProducer(nil, "", newTestLogger()), testModerationChat, newTestLogger())
	m.now = fixedClock(now)
	return m
}

func origin(userID int64) domain.Origin {
	return domain.Origin{UserID: userID, ChatID: userID}
}

func choice(userID int64, stage domain.Stage, v int) domain.ChoiceUpdate {
	return domain.ChoiceUpdate{
		Origin:     origin(userID),
		CallbackID: "cb",
		Choice:     domain.SessionChoice{Stage: stage, Value: v},
	}
}

func text(userID int64, s string) domain.TextUpdate {
	return domain.TextUpdate{Origin: origin(userID), Text: s}
}

func photo(userID int64, ref string) domain.PhotoUpdate {
	return domain.PhotoUpdate{Origin: origin(userID), PhotoRef: ref}
}

func lastSent(snd *sendermock.MockSender) sendermock.Call {
	sends := snd.CallsOf("send")
	if len(sends) == 0 {
		return sendermock.Call{}
	}
	return sends[len(sends)-1]
}
