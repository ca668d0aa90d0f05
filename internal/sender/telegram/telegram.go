// Package telegram implements sender.Sender on the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/domain"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/breaker"
	apperrors "github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/errors"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/httpclient"
)

var apiCalls = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "telegram_api_calls_total",
		Help: "Total number of Telegram Bot API calls",
	},
	[]string{"op", "status"},
)

// botAPI is the subset of *tgbotapi.BotAPI the sender uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Config holds the Telegram connection settings.
type Config struct {
	Token       string
	APIEndpoint string
	PollTimeout int
	RateLimit   float64
	RateBurst   int
}

// Sender talks to the Bot API. Outbound calls share one rate limiter and one
// circuit breaker.
type Sender struct {
	api         botAPI
	limiter     *rate.Limiter
	breaker     *breaker.Breaker
	pollTimeout int
	logger      *slog.Logger
}

// New connects to the Bot API and verifies the token.
func New(cfg Config, logger *slog.Logger) (*Sender, error) {
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	// Long polling holds the request open for PollTimeout seconds.
	hc := httpclient.DefaultConfig()
	if poll := time.Duration(cfg.PollTimeout+30) * time.Second; poll > hc.Timeout {
		hc.Timeout = poll
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, httpclient.New(hc))
	if err != nil {
		return nil, apperrors.Wrap(err, "connect to telegram")
	}
	logger.Info("telegram bot authorized", slog.String("username", api.Self.UserName))

	return newSender(api, cfg, logger), nil
}

func newSender(api botAPI, cfg Config, logger *slog.Logger) *Sender {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	bcfg := breaker.DefaultConfig("telegram")
	bcfg.IsSuccessful = isSuccessful

	return &Sender{
		api:         api,
		limiter:     rate.NewLimiter(limit, burst),
		breaker:     breaker.New(bcfg, logger),
		pollTimeout: cfg.PollTimeout,
		logger:      logger,
	}
}

// Name returns the name of this sender.
func (s *Sender) Name() string { return "telegram" }

// isSuccessful keeps client-side rejections (bad request, blocked by user)
// from tripping the breaker. Rate limiting and server errors count.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return tgErr.Code >= 400 && tgErr.Code < 500 && tgErr.Code != 429
	}
	return false
}

// notModified reports Telegram's answer to an edit that changes nothing.
func notModified(err error) bool {
	var tgErr *tgbotapi.Error
	return errors.As(err, &tgErr) && strings.Contains(tgErr.Message, "not modified")
}

func (s *Sender) call(ctx context.Context, op string, fn func() error) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return apperrors.Delivery(op, err)
	}

	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		err := fn()
		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) && tgErr.RetryAfter > 0 {
			s.logger.WarnContext(ctx, "telegram rate limited",
				slog.String("op", op),
				slog.Int("retry_after", tgErr.RetryAfter),
			)
			select {
			case <-time.After(time.Duration(tgErr.RetryAfter) * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			err = fn()
		}
		return err
	})

	if err != nil && !notModified(err) {
		apiCalls.WithLabelValues(op, "error").Inc()
		return apperrors.Delivery(op, err)
	}
	apiCalls.WithLabelValues(op, "ok").Inc()
	return nil
}

// Updates starts long polling and converts updates until ctx is done.
func (s *Sender) Updates(ctx context.Context) <-chan domain.Update {
	ucfg := tgbotapi.NewUpdate(0)
	ucfg.Timeout = s.pollTimeout
	ucfg.AllowedUpdates = []string{"message", "callback_query"}

	in := s.api.GetUpdatesChan(ucfg)
	out := make(chan domain.Update)

	go func() {
		defer close(out)
		defer s.api.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-in:
				if !ok {
					return
				}
				du, ok := convertUpdate(u)
				if !ok {
					continue
				}
				select {
				case out <- du:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// convertUpdate maps a Bot API update onto the domain variants. Updates
// without a sender (channel posts, edits) are dropped.
func convertUpdate(u tgbotapi.Update) (domain.Update, bool) {
	switch {
	case u.Message != nil:
		m := u.Message
		if m.From == nil || m.Chat == nil {
			return nil, false
		}
		origin := domain.Origin{UpdateID: u.UpdateID, UserID: m.From.ID, ChatID: m.Chat.ID}

		switch {
		case m.IsCommand():
			return domain.CommandUpdate{Origin: origin, Command: m.Command(), Args: m.CommandArguments()}, true
		case len(m.Photo) > 0:
			// Sizes are ordered smallest first.
			largest := m.Photo[len(m.Photo)-1]
			return domain.PhotoUpdate{Origin: origin, PhotoRef: largest.FileID, Caption: m.Caption}, true
		case m.Text != "":
			return domain.TextUpdate{Origin: origin, Text: m.Text}, true
		default:
			return domain.OtherUpdate{Origin: origin}, true
		}

	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		if q.From == nil {
			return nil, false
		}
		origin := domain.Origin{UpdateID: u.UpdateID, UserID: q.From.ID}
		var ref domain.MessageRef
		if q.Message != nil && q.Message.Chat != nil {
			origin.ChatID = q.Message.Chat.ID
			ref = domain.MessageRef{ChatID: q.Message.Chat.ID, MessageID: q.Message.MessageID}
		}

		decoded, err := domain.DecodeCallback(q.Data)
		if err != nil {
			return domain.UnknownCallbackUpdate{Origin: origin, CallbackID: q.ID, Data: q.Data}, true
		}
		switch v := decoded.(type) {
		case *domain.SessionChoice:
			return domain.ChoiceUpdate{Origin: origin, CallbackID: q.ID, Choice: *v}, true
		case *domain.ModerationAction:
			v.ActorID = q.From.ID
			v.Message = ref
			return domain.ModerationUpdate{Origin: origin, CallbackID: q.ID, Action: *v}, true
		}
		return domain.UnknownCallbackUpdate{Origin: origin, CallbackID: q.ID, Data: q.Data}, true
	}
	return nil, false
}

func keyboard(rows [][]domain.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		out = append(out, buttons)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(out...)
	return &markup
}

// target addresses a chat either by numeric id or by "@username".
type target struct {
	chatID   int64
	username string
}

func parseChannel(channel string) (target, error) {
	if strings.HasPrefix(channel, "@") {
		return target{username: channel}, nil
	}
	id, err := strconv.ParseInt(channel, 10, 64)
	if err != nil {
		return target{}, apperrors.InvalidInput("channel must be @name or a numeric id")
	}
	return target{chatID: id}, nil
}

func buildMessage(t target, msg domain.Message) tgbotapi.Chattable {
	markup := keyboard(msg.Buttons)

	if msg.PhotoRef != "" {
		photo := tgbotapi.NewPhoto(t.chatID, tgbotapi.FileID(msg.PhotoRef))
		if t.username != "" {
			photo = tgbotapi.NewPhotoToChannel(t.username, tgbotapi.FileID(msg.PhotoRef))
		}
		photo.Caption = domain.TruncateRunes(msg.Text, domain.MaxCaptionRunes)
		if markup != nil {
			photo.ReplyMarkup = *markup
		}
		return photo
	}

	text := tgbotapi.NewMessage(t.chatID, msg.Text)
	if t.username != "" {
		text = tgbotapi.NewMessageToChannel(t.username, msg.Text)
	}
	text.DisableWebPagePreview = true
	if markup != nil {
		text.ReplyMarkup = *markup
	}
	return text
}

// Send implements sender.Sender.
func (s *Sender) Send(ctx context.Context, chatID int64, msg domain.Message) (domain.MessageRef, error) {
	var sent tgbotapi.Message
	err := s.call(ctx, "send", func() error {
		var err error
		sent, err = s.api.Send(buildMessage(target{chatID: chatID}, msg))
		return err
	})
	if err != nil {
		return domain.MessageRef{}, err
	}
	return domain.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// PublishToChannel implements sender.Sender.
func (s *Sender) PublishToChannel(ctx context.Context, channel string, msg domain.Message) error {
	t, err := parseChannel(channel)
	if err != nil {
		return err
	}
	return s.call(ctx, "publish", func() error {
		_, err := s.api.Send(buildMessage(t, msg))
		return err
	})
}

// SetChannelDescription implements sender.Sender. Setting the description it
// already has is not an error.
func (s *Sender) SetChannelDescription(ctx context.Context, channel, text string) error {
	t, err := parseChannel(channel)
	if err != nil {
		return err
	}
	return s.call(ctx, "set_description", func() error {
		_, err := s.api.Request(tgbotapi.SetChatDescriptionConfig{
			ChatID:          t.chatID,
			ChannelUsername: t.username,
			Description:     text,
		})
		return err
	})
}

// ClearButtons implements sender.Sender.
func (s *Sender) ClearButtons(ctx context.Context, ref domain.MessageRef) error {
	if ref.IsZero() {
		return nil
	}
	empty := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	return s.call(ctx, "clear_buttons", func() error {
		_, err := s.api.Request(tgbotapi.NewEditMessageReplyMarkup(ref.ChatID, ref.MessageID, empty))
		return err
	})
}

// AnswerCallback implements sender.Sender.
func (s *Sender) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	return s.call(ctx, "answer_callback", func() error {
		_, err := s.api.Request(tgbotapi.NewCallback(callbackID, text))
		return err
	})
}

// SendDocument implements sender.Sender.
func (s *Sender) SendDocument(ctx context.Context, chatID int64, name string, data []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = caption
	return s.call(ctx, "send_document", func() error {
		_, err := s.api.Send(doc)
		return err
	})
}
