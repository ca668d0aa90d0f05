package telegram

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/domain"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/event"
	sendermock "github.com/gomersimpson131212-create/reviews-telegram-bot/internal/sender/mock"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/service"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/idempotency"
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
	adminID        = int64(900)
	moderationChat = int64(-42)
	channel        = "@reviews"
)

type fixture struct {
	repo       *mockReviewRepository
	sender     *sendermock.MockSender
	aggregator *service.Aggregator
	dispatcher *Dispatcher
}

func newFixture() *fixture {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := new(mockReviewRepository)
	snd := sendermock.NewMockSender(log)
	events := event.NewProducer(nil, "", log)
	admins := service.NewAdmins([]int64{adminID})

	gate := service.NewCooldownGate(repo, time.Hour)
	sessions := service.NewSessionManager(repo, gate, snd, events, moderationChat, log)
	agg := service.NewAggregator(12, 3, repo, snd, channel, log)
	mod := service.NewModerator(repo, snd, agg, events, admins, channel, moderationChat, log)
	exp := service.NewExporter(repo)

	return &fixture{
		repo:       repo,
		sender:     snd,
		aggregator: agg,
		dispatcher: NewDispatcher(sessions, mod, exp, agg, snd, idempotency.NewMemoryStore(time.Hour), admins, log),
	}
}

func from(updateID int, userID int64) domain.Origin {
	return domain.Origin{UpdateID: updateID, UserID: userID, ChatID: userID}
}

func lastText(snd *sendermock.MockSender) string {
	sends := snd.CallsOf("send")
	if len(sends) == 0 {
		return ""
	}
	return sends[len(sends)-1].Message.Text
}

// --- Tests ---

func TestDispatch_StartBeginsDialog(t *testing.T) {
	f := newFixture()
	f.repo.On("LatestByUser", mock.Anything, int64(1)).Return(nil, nil)

	f.dispatcher.Dispatch(context.Background(), domain.CommandUpdate{Origin: from(1, 1), Command: "start"})

	assert.Equal(t, domain.TextAskRating, lastText(f.sender))
	f.repo.AssertExpectations(t)
}

func TestDispatch_DuplicateUpdateSkipped(t *testing.T) {
	f := newFixture()
	f.repo.On("LatestByUser", mock.Anything, int64(1)).Return(nil, nil)

	u := domain.CommandUpdate{Origin: from(10, 1), Command: "start"}
	f.dispatcher.Dispatch(context.Background(), u)
	f.dispatcher.Dispatch(context.Background(), u)

	f.repo.AssertNumberOfCalls(t, "LatestByUser", 1)
	assert.Len(t, f.sender.CallsOf("send"), 1)
}

func TestDispatch_PanicIsContained(t *testing.T) {
	f := newFixture()

	// No expectation is set for user 1, so the mock panics.
	require.NotPanics(t, func() {
		f.dispatcher.Dispatch(context.Background(), domain.CommandUpdate{Origin: from(1, 1), Command: "start"})
	})

	f.repo.On("LatestByUser", mock.Anything, int64(2)).Return(nil, nil)
	f.dispatcher.Dispatch(context.Background(), domain.CommandUpdate{Origin: from(2, 2), Command: "start"})
	assert.Equal(t, domain.TextAskRating, lastText(f.sender))
}

func TestDispatch_GroupMessagesIgnored(t *testing.T) {
	f := newFixture()

	f.dispatcher.Dispatch(context.Background(), domain.TextUpdate{
		Origin: domain.Origin{UpdateID: 1, UserID: 1, ChatID: moderationChat},
		Text:   "looks good",
	})

	assert.Empty(t, f.sender.Calls())
	f.repo.AssertNotCalled(t, "LatestByUser", mock.Anything, mock.Anything)
}

func TestDispatch_GroupChoiceAndCancelIgnored(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	group := domain.Origin{UpdateID: 1, UserID: 1, ChatID: moderationChat}

	f.dispatcher.Dispatch(ctx, domain.ChoiceUpdate{
		Origin:     group,
		CallbackID: "cb-group",
		Choice:     domain.SessionChoice{Stage: domain.StageRating, Value: 5},
	})

	assert.Empty(t, f.sender.CallsOf("send"))
	answers := f.sender.CallsOf("answer")
	require.Len(t, answers, 1)
	assert.Equal(t, "cb-group", answers[0].CallbackID)
	f.repo.AssertNotCalled(t, "LatestByUser", mock.Anything, mock.Anything)

	f.repo.On("LatestByUser", mock.Anything, int64(1)).Return(nil, nil)
	f.dispatcher.Dispatch(ctx, domain.CommandUpdate{Origin: from(2, 1), Command: "start"})
	sends := len(f.sender.CallsOf("send"))

	group.UpdateID = 3
	f.dispatcher.Dispatch(ctx, domain.CommandUpdate{Origin: group, Command: "cancel"})
	assert.Len(t, f.sender.CallsOf("send"), sends)

	f.dispatcher.Dispatch(ctx, domain.ChoiceUpdate{
		Origin:     from(4, 1),
		CallbackID: "cb-private",
		Choice:     domain.SessionChoice{Stage: domain.StageRating, Value: 5},
	})
	assert.Equal(t, domain.TextAskCommunication, lastText(f.sender))
}

func TestDispatch_ExportRequiresAdmin(t *testing.T) {
	f := newFixture()

	f.dispatcher.Dispatch(context.Background(), domain.CommandUpdate{Origin: from(1, 7), Command: "export"})
	assert.Equal(t, domain.TextNotAdmin, lastText(f.sender))
	assert.Empty(t, f.sender.CallsOf("document"))
	f.repo.AssertNotCalled(t, "All", mock.Anything)
}

func TestDispatch_ExportSendsCSV(t *testing.T) {
	f := newFixture()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.repo.On("All", mock.Anything).Return([]domain.Review{
		{ID: 1, UserID: 5, Rating: 5, Communication: 5, Delivery: 5, Name: "A", Text: "x", SubmittedAt: at, State: domain.ReviewStatePublished},
		{ID: 2, UserID: 6, Rating: 2, Communication: 3, Delivery: 4, Name: "B", Text: "y", SubmittedAt: at, State: domain.ReviewStatePending},
	}, nil)

	f.dispatcher.Dispatch(context.Background(), domain.CommandUpdate{Origin: from(1, adminID), Command: "export"})

	docs := f.sender.CallsOf("document")
	require.Len(t, docs, 1)
	assert.Equal(t, adminID, docs[0].ChatID)
	assert.Equal(t, "2 reviews", docs[0].Text)

	rows, err := csv.NewReader(bytes.NewReader(docs[0].Data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "2", rows[2][0])
}

func TestDispatch_Stats(t *testing.T) {
	f := newFixture()

	f.dispatcher.Dispatch(context.Background(), domain.CommandUpdate{Origin: from(1, 7), Command: "stats"})
	assert.Equal(t, domain.TextNotAdmin, lastText(f.sender))

	f.dispatcher.Dispatch(context.Background(), domain.CommandUpdate{Origin: from(2, adminID), Command: "stats"})
	assert.Equal(t, domain.FormatStats(12, 3), lastText(f.sender))
}

func TestDispatch_ModerationAnswersCallback(t *testing.T) {
	f := newFixture()
	f.repo.On("GetByID", mock.Anything, int64(3)).Return(&domain.Review{
		ID: 3, UserID: 1, Rating: 5, Communication: 5, Delivery: 5, Name: "A", Text: "x",
		State: domain.ReviewStatePending,
	}, nil)
	f.repo.On("SetState", mock.Anything, int64(3), domain.ReviewStateRejected, adminID).Return(nil)

	f.dispatcher.Dispatch(context.Background(), domain.ModerationUpdate{
		Origin:     domain.Origin{UpdateID: 1, UserID: adminID, ChatID: moderationChat},
		CallbackID: "cb-1",
		Action: domain.ModerationAction{
			ReviewID: 3, Kind: domain.ModerationReject, ActorID: adminID,
			Message: domain.MessageRef{ChatID: moderationChat, MessageID: 11},
		},
	})

	answers := f.sender.CallsOf("answer")
	require.Len(t, answers, 1)
	assert.Equal(t, "cb-1", answers[0].CallbackID)
	assert.Equal(t, domain.TextRejectedAck, answers[0].Text)
	assert.Len(t, f.sender.CallsOf("clear"), 1)
}

func TestDispatch_UnknownCallbackAcknowledged(t *testing.T) {
	f := newFixture()

	f.dispatcher.Dispatch(context.Background(), domain.UnknownCallbackUpdate{Origin: from(1, 1), CallbackID: "cb", Data: "zzz"})

	answers := f.sender.CallsOf("answer")
	require.Len(t, answers, 1)
	assert.Equal(t, "", answers[0].Text)
}

func TestDispatch_UnknownCommand(t *testing.T) {
	f := newFixture()

	f.dispatcher.Dispatch(context.Background(), domain.CommandUpdate{Origin: from(1, 1), Command: "help"})
	assert.Equal(t, domain.TextUnknownCommand, lastText(f.sender))
}

func TestRun_DrainsAndStops(t *testing.T) {
	f := newFixture()
	f.repo.On("LatestByUser", mock.Anything, mock.Anything).Return(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.dispatcher.Run(ctx)
		close(done)
	}()

	for i := 1; i <= 3; i++ {
		f.sender.Push(domain.CommandUpdate{Origin: from(i, int64(i)), Command: "start"})
	}

	require.Eventually(t, func() bool {
		return len(f.sender.CallsOf("send")) == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, "command_start", kindOf(domain.CommandUpdate{Command: "start"}))
	assert.Equal(t, "command_other", kindOf(domain.CommandUpdate{Command: "whatever"}))
	assert.Equal(t, "photo", kindOf(domain.PhotoUpdate{}))
	assert.Equal(t, "moderation", kindOf(domain.ModerationUpdate{}))
}
