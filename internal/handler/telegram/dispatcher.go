// Package telegram routes inbound bot updates to the feedback services.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/domain"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/sender"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/service"
	apperrors "github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/errors"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/idempotency"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/logger"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/tracing"
)

const tracerName = "feedback-bot/dispatcher"

var (
	updatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_updates_total",
			Help: "Total number of inbound updates by kind and result",
		},
		[]string{"kind", "result"},
	)

	updateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedback_update_duration_seconds",
			Help:    "Time spent handling one inbound update",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	handlerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedback_handler_panics_total",
			Help: "Total number of recovered panics in update handlers",
		},
	)
)

// Dispatcher fans inbound updates out to the services, one goroutine per
// update.
type Dispatcher struct {
	sessions   *service.SessionManager
	moderator  *service.Moderator
	exporter   *service.Exporter
	aggregator *service.Aggregator
	sender     sender.Sender
	dedupe     idempotency.Store
	admins     service.Admins
	logger     *slog.Logger

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(
	sessions *service.SessionManager,
	moderator *service.Moderator,
	exporter *service.Exporter,
	aggregator *service.Aggregator,
	snd sender.Sender,
	dedupe idempotency.Store,
	admins service.Admins,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		sessions:   sessions,
		moderator:  moderator,
		exporter:   exporter,
		aggregator: aggregator,
		sender:     snd,
		dedupe:     dedupe,
		admins:     admins,
		logger:     logger,
	}
}

// Run consumes updates until ctx is done, then waits for in-flight handlers.
// Handlers run on a context that survives ctx so they can finish replying.
func (d *Dispatcher) Run(ctx context.Context) {
	handlerCtx := context.WithoutCancel(ctx)

	d.logger.Info("dispatcher started", slog.String("sender", d.sender.Name()))
	for u := range d.sender.Updates(ctx) {
		d.wg.Add(1)
		go func(u domain.Update) {
			defer d.wg.Done()
			d.Dispatch(handlerCtx, u)
		}(u)
	}

	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

// kindOf names an update for logs and metrics.
func kindOf(u domain.Update) string {
	switch v := u.(type) {
	case domain.CommandUpdate:
		switch v.Command {
		case "start", "cancel", "export", "stats":
			return "command_" + v.Command
		}
		return "command_other"
	case domain.TextUpdate:
		return "text"
	case domain.PhotoUpdate:
		return "photo"
	case domain.OtherUpdate:
		return "other"
	case domain.ChoiceUpdate:
		return "choice"
	case domain.ModerationUpdate:
		return "moderation"
	case domain.UnknownCallbackUpdate:
		return "unknown_callback"
	default:
		return "unsupported"
	}
}

// Dispatch handles one update. Duplicates are skipped and a panic is
// contained to the update that raised it.
func (d *Dispatcher) Dispatch(ctx context.Context, u domain.Update) {
	meta := u.Meta()
	kind := kindOf(u)
	start := time.Now()

	ctx = logger.WithCorrelationID(ctx, uuid.New().String())
	ctx = logger.WithUserID(ctx, meta.UserID)
	ctx = logger.WithUpdateID(ctx, meta.UpdateID)

	ctx, span := tracing.Start(ctx, tracerName, "update."+kind,
		attribute.Int("telegram.update_id", meta.UpdateID),
		attribute.Int64("telegram.user_id", meta.UserID),
		attribute.Int64("telegram.chat_id", meta.ChatID),
	)
	defer span.End()

	log := logger.WithContext(ctx, d.logger)
	ctx = logger.NewContext(ctx, log)

	result := "ok"
	defer func() {
		if r := recover(); r != nil {
			result = "panic"
			handlerPanics.Inc()
			span.SetStatus(codes.Error, "panic")
			log.ErrorContext(ctx, "panic while handling update",
				slog.String("kind", kind),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
		updatesTotal.WithLabelValues(kind, result).Inc()
		updateDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	var key string
	if meta.UpdateID > 0 {
		key = strconv.Itoa(meta.UpdateID)
	}

	err := idempotency.Guard(ctx, d.dedupe, key, log, func(ctx context.Context) error {
		return d.route(ctx, u)
	})
	if err != nil {
		result = apperrors.Kind(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.ErrorContext(ctx, "update handling failed",
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
	}
}

// private reports whether o comes from a one-to-one chat with the bot.
func private(o domain.Origin) bool {
	return o.ChatID == o.UserID
}

func (d *Dispatcher) route(ctx context.Context, u domain.Update) error {
	switch v := u.(type) {
	case domain.CommandUpdate:
		return d.command(ctx, v)

	case domain.TextUpdate:
		if !private(v.Origin) {
			return nil
		}
		return d.sessions.HandleText(ctx, v)

	case domain.PhotoUpdate:
		if !private(v.Origin) {
			return nil
		}
		return d.sessions.HandlePhoto(ctx, v)

	case domain.OtherUpdate:
		if !private(v.Origin) {
			return nil
		}
		return d.sessions.HandleOther(ctx, v)

	case domain.ChoiceUpdate:
		if !private(v.Origin) {
			d.answer(ctx, v.CallbackID, "")
			return nil
		}
		return d.sessions.HandleChoice(ctx, v)

	case domain.ModerationUpdate:
		outcome, err := d.moderator.Handle(ctx, v.Action)
		if err != nil {
			d.answer(ctx, v.CallbackID, domain.TextActionFailed)
			return err
		}
		d.answer(ctx, v.CallbackID, outcome.Ack())
		return nil

	case domain.UnknownCallbackUpdate:
		logger.FromContext(ctx).DebugContext(ctx, "unknown callback payload", slog.String("data", v.Data))
		d.answer(ctx, v.CallbackID, "")
		return nil

	default:
		return fmt.Errorf("unsupported update type %T", u)
	}
}

func (d *Dispatcher) command(ctx context.Context, c domain.CommandUpdate) error {
	switch c.Command {
	case "start":
		if !private(c.Origin) {
			return nil
		}
		return d.sessions.Start(ctx, c.Origin)

	case "cancel":
		if !private(c.Origin) {
			return nil
		}
		d.sessions.Cancel(ctx, c.Origin)
		return nil

	case "export":
		if !d.admins.Contains(c.UserID) {
			d.reply(ctx, c.ChatID, domain.TextNotAdmin)
			return nil
		}
		name, data, count, err := d.exporter.Export(ctx)
		if err != nil {
			d.reply(ctx, c.ChatID, domain.TextActionFailed)
			return err
		}
		if err := d.sender.SendDocument(ctx, c.ChatID, name, data, fmt.Sprintf("%d reviews", count)); err != nil {
			return err
		}
		logger.FromContext(ctx).InfoContext(ctx, "reviews exported", slog.Int("count", count))
		return nil

	case "stats":
		if !d.admins.Contains(c.UserID) {
			d.reply(ctx, c.ChatID, domain.TextNotAdmin)
			return nil
		}
		sum, count := d.aggregator.Snapshot()
		d.reply(ctx, c.ChatID, domain.FormatStats(sum, count))
		return nil

	default:
		if private(c.Origin) {
			d.reply(ctx, c.ChatID, domain.TextUnknownCommand)
		}
		return nil
	}
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string) {
	if _, err := d.sender.Send(ctx, chatID, domain.Message{Text: text}); err != nil {
		logger.FromContext(ctx).WarnContext(ctx, "failed to send reply", slog.String("error", err.Error()))
	}
}

func (d *Dispatcher) answer(ctx context.Context, callbackID, text string) {
	if err := d.sender.AnswerCallback(ctx, callbackID, text); err != nil {
		logger.FromContext(ctx).DebugContext(ctx, "failed to answer callback", slog.String("error", err.Error()))
	}
}
