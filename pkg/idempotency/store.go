// Package idempotency guards handlers against processing the same key twice.
package idempotency

import (
	"context"
	"log/slog"
)

// Store records processed keys. Implementations must be safe for concurrent use.
type Store interface {
	// Claim marks key as in progress. It returns false when key was already
	// claimed and has not expired.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets key so a redelivery is processed again.
	Release(ctx context.Context, key string) error
}

// Guard runs fn once per key. A duplicate key is skipped and nil is returned.
// If fn fails the claim is released. A store failure is logged and fn runs
// anyway, since dropping an update is worse than handling it twice.
func Guard(ctx context.Context, store Store, key string, logger *slog.Logger, fn func(context.Context) error) error {
	if key == "" {
		return fn(ctx)
	}

	fresh, err := store.Claim(ctx, key)
	if err != nil {
		logger.WarnContext(ctx, "idempotency store claim failed, processing anyway",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return fn(ctx)
	}
	if !fresh {
		logger.DebugContext(ctx, "skipping duplicate", slog.String("key", key))
		return nil
	}

	if err := fn(ctx); err != nil {
		if relErr := store.Release(ctx, key); relErr != nil {
			logger.WarnContext(ctx, "failed to release idempotency key",
				slog.String("key", key),
				slog.String("error", relErr.Error()),
			)
		}
		return err
	}
	return nil
}
