package mock

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/domain"
)

// Call records one outbound operation.
type Call struct {
	Op         string
	ChatID     int64
	Channel    string
	Message    domain.Message
	Ref        domain.MessageRef
	CallbackID string
	Text       string
	FileName   string
	Data       []byte
}

// MockSender logs every outbound call instead of contacting the platform and
// keeps a copy for inspection. It backs TELEGRAM_DRY_RUN and the tests.
type MockSender struct {
	logger  *slog.Logger
	updates chan domain.Update

	mu     sync.Mutex
	calls  []Call
	nextID int
	fail   map[string]error
}

// NewMockSender creates a mock sender. Updates pushed with Push are delivered
// on the Updates channel.
func NewMockSender(logger *slog.Logger) *MockSender {
	return &MockSender{
		logger:  logger,
		updates: make(chan domain.Update, 64),
		fail:    make(map[string]error),
	}
}

// Name returns the name of this sender.
func (s *MockSender) Name() string { return "mock" }

// Push queues an inbound update.
func (s *MockSender) Push(u domain.Update) { s.updates <- u }

// FailOn makes every later call to op return err. A nil err clears it.
func (s *MockSender) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// Calls returns a copy of the recorded calls.
func (s *MockSender) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsOf returns the recorded calls of one operation.
func (s *MockSender) CallsOf(op string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Reset drops recorded calls.
func (s *MockSender) Reset() {
	s.mu.Lock()
	s.calls = nil
	s.mu.Unlock()
}

func (s *MockSender) record(ctx context.Context, c Call) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail[c.Op]; err != nil {
		return 0, err
	}
	s.nextID++
	s.calls = append(s.calls, c)

	s.logger.InfoContext(ctx, "mock sender: "+c.Op,
		slog.Int64("chat_id", c.ChatID),
		slog.String("channel", c.Channel),
		slog.String("text", c.Message.Text+c.Text),
		slog.Bool("photo", c.Message.PhotoRef != ""),
		slog.Int("message_id", s.nextID),
	)
	return s.nextID, nil
}

// Updates implements sender.Sender.
func (s *MockSender) Updates(ctx context.Context) <-chan domain.Update {
	out := make(chan domain.Update)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case u := <-s.updates:
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Send implements sender.Sender.
func (s *MockSender) Send(ctx context.Context, chatID int64, msg domain.Message) (domain.MessageRef, error) {
	id, err := s.record(ctx, Call{Op: "send", ChatID: chatID, Message: msg})
	if err != nil {
		return domain.MessageRef{}, err
	}
	return domain.MessageRef{ChatID: chatID, MessageID: id}, nil
}

// PublishToChannel implements sender.Sender.
func (s *MockSender) PublishToChannel(ctx context.Context, channel string, msg domain.Message) error {
	_, err := s.record(ctx, Call{Op: "publish", Channel: channel, Message: msg})
	return err
}

// SetChannelDescription implements sender.Sender.
func (s *MockSender) SetChannelDescription(ctx context.Context, channel, text string) error {
	_, err := s.record(ctx, Call{Op: "describe", Channel: channel, Text: text})
	return err
}

// ClearButtons implements sender.Sender.
func (s *MockSender) ClearButtons(ctx context.Context, ref domain.MessageRef) error {
	_, err := s.record(ctx, Call{Op: "clear", ChatID: ref.ChatID, Ref: ref})
	return err
}

// AnswerCallback implements sender.Sender.
func (s *MockSender) AnswerCallback(ctx context.Context, callbackID, text string) error {
	_, err := s.record(ctx, Call{Op: "answer", CallbackID: callbackID, Text: text})
	return err
}

// SendDocument implements sender.Sender.
func (s *MockSender) SendDocument(ctx context.Context, chatID int64, name string, data []byte, caption string) error {
	_, err := s.record(ctx, Call{Op: "document", ChatID: chatID, FileName: name, Data: data, Text: caption})
	return err
}
