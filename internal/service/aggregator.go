package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/domain"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/repository"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/sender"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/logger"
)

// Aggregator keeps the running sum and count of published ratings and
// mirrors them into the channel description.
type Aggregator struct {
	repo    repository.ReviewRepository
	sender  sender.Sender
	channel string
	logger  *slog.Logger

	mu    sync.Mutex
	sum   int64
	count int64
	seq   uint64

	// inflight counts publishes between the store transition and
	// RecordPublished; started counts every BeginPublish.
	inflight int
	started  uint64

	// sendMu orders description updates; sentSeq is the newest applied.
	sendMu  sync.Mutex
	sentSeq uint64
}

// NewAggregator creates an aggregator seeded with values read from the store.
func NewAggregator(sum, count int64, repo repository.ReviewRepository, snd sender.Sender, channel string, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		repo:    repo,
		sender:  snd,
		channel: channel,
		logger:  logger,
		sum:     sum,
		count:   count,
	}
}

// LoadAggregator seeds an aggregator from AggregatePublished.
func LoadAggregator(ctx context.Context, repo repository.ReviewRepository, snd sender.Sender, channel string, logger *slog.Logger) (*Aggregator, error) {
	sum, count, err := repo.AggregatePublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aggregate: %w", err)
	}
	return NewAggregator(sum, count, repo, snd, channel, logger), nil
}

// Snapshot returns the current sum and count.
func (a *Aggregator) Snapshot() (sum, count int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sum, a.count
}

// BeginPublish marks a publish whose store transition may already be visible
// to AggregatePublished but is not yet counted here. Every call must be
// paired with EndPublish.
func (a *Aggregator) BeginPublish() {
	a.mu.Lock()
	a.inflight++
	a.started++
	a.mu.Unlock()
}

// EndPublish closes a window opened by BeginPublish.
func (a *Aggregator) EndPublish() {
	a.mu.Lock()
	if a.inflight > 0 {
		a.inflight--
	}
	a.mu.Unlock()
}

// RecordPublished adds one published rating and updates the description.
func (a *Aggregator) RecordPublished(ctx context.Context, rating int) error {
	a.mu.Lock()
	a.sum += int64(rating)
	a.count++
	a.seq++
	seq, sum, count := a.seq, a.sum, a.count
	a.mu.Unlock()

	return a.describe(ctx, seq, sum, count)
}

// Refresh pushes the current snapshot to the channel.
func (a *Aggregator) Refresh(ctx context.Context) error {
	a.mu.Lock()
	a.seq++
	seq, sum, count := a.seq, a.sum, a.count
	a.mu.Unlock()

	return a.describe(ctx, seq, sum, count)
}

// describe applies snapshot seq unless a newer one has already been applied.
func (a *Aggregator) describe(ctx context.Context, seq uint64, sum, count int64) error {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	if seq <= a.sentSeq {
		return nil
	}

	text := domain.FormatDescription(sum, count)
	if text == "" || a.channel == "" {
		a.sentSeq = seq
		return nil
	}

	if err := a.sender.SetChannelDescription(ctx, a.channel, text); err != nil {
		deliveryErrors.WithLabelValues("set_description").Inc()
		logger.WithContext(ctx, a.logger).WarnContext(ctx, "failed to update channel description",
			slog.Int64("count", count),
			slog.String("error", err.Error()),
		)
		return err
	}
	a.sentSeq = seq
	return nil
}

// Reconcile re-reads the aggregate from the store and adopts it when the
// in-memory values have drifted. Nothing is adopted while a publish overlaps
// the read; the next run picks it up.
func (a *Aggregator) Reconcile(ctx context.Context) error {
	a.mu.Lock()
	busy, started := a.inflight > 0, a.started
	a.mu.Unlock()
	if busy {
		a.logger.DebugContext(ctx, "aggregate reconciliation deferred, publish in flight")
		return nil
	}

	sum, count, err := a.repo.AggregatePublished(ctx)
	if err != nil {
		return fmt.Errorf("reconcile aggregate: %w", err)
	}

	a.mu.Lock()
	if a.inflight > 0 || a.started != started {
		a.mu.Unlock()
		a.logger.DebugContext(ctx, "aggregate reconciliation deferred, publish in flight")
		return nil
	}
	if sum == a.sum && count == a.count {
		a.mu.Unlock()
		return nil
	}
	a.logger.WarnContext(ctx, "aggregate drift detected",
		slog.Int64("memory_sum", a.sum),
		slog.Int64("memory_count", a.count),
		slog.Int64("store_sum", sum),
		slog.Int64("store_count", count),
	)
	aggregateDrift.Inc()
	a.sum, a.count = sum, count
	a.seq++
	seq := a.seq
	a.mu.Unlock()

	return a.describe(ctx, seq, sum, count)
}

// RunReconciler calls Reconcile every interval until ctx is done.
func (a *Aggregator) RunReconciler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Reconcile(ctx); err != nil {
				a.logger.ErrorContext(ctx, "aggregate reconciliation failed", slog.String("error", err.Error()))
			}
		}
	}
}
