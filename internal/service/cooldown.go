package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/repository"
)

// DefaultCooldown is the minimum gap between two submissions of one user.
const DefaultCooldown = 12 * time.Hour

// Eligibility is the outcome of a cooldown check.
type Eligibility struct {
	Eligible bool
	// NextAllowedAt is set when Eligible is false.
	NextAllowedAt time.Time
}

// CooldownGate decides whether a user may start a new review.
type CooldownGate struct {
	repo   repository.ReviewRepository
	window time.Duration
	now    func() time.Time
}

// NewCooldownGate creates a gate. A non-positive window uses DefaultCooldown.
func NewCooldownGate(repo repository.ReviewRepository, window time.Duration) *CooldownGate {
	if window <= 0 {
		window = DefaultCooldown
	}
	return &CooldownGate{repo: repo, window: window, now: time.Now}
}

// Window returns the configured cooldown.
func (g *CooldownGate) Window() time.Duration { return g.window }

// Check reports whether userID may submit now. The latest review counts
// whatever its moderation state.
func (g *CooldownGate) Check(ctx context.Context, userID int64) (Eligibility, error) {
	latest, err := g.repo.LatestByUser(ctx, userID)
	if err != nil {
		return Eligibility{}, fmt.Errorf("check cooldown: %w", err)
	}
	if latest == nil {
		return Eligibility{Eligible: true}, nil
	}

	next := latest.SubmittedAt.Add(g.window)
	if !g.now().Before(next) {
		return Eligibility{Eligible: true}, nil
	}
	return Eligibility{NextAllowedAt: next}, nil
}

// IsEligible is Check without the retry time.
func (g *CooldownGate) IsEligible(ctx context.Context, userID int64) (bool, error) {
	e, err := g.Check(ctx, userID)
	return e.Eligible, err
}
