// Command seed fills a development database with sample reviews. A share of
// them is published or rejected so /stats and /export have something to show.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/domain"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/internal/repository/postgres"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/migrations"
	pkgconfig "github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/config"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/database"
	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/logger"
)

// seedConfig is the subset of the bot configuration the seeder needs.
type seedConfig struct {
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"feedback"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"feedback_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"feedback"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
}

var (
	names = []string{"Anna", "Boris", "Chen", "Dilnoza", "Emil", "Fatima", "Gleb", "Hana", "Igor", "Julia"}
	texts = []string{
		"Arrived a day early and packed well.",
		"The seller answered every question quickly.",
		"Good quality, but the courier was late.",
		"Exactly as described. Would order again.",
		"Box was damaged, the item itself is fine.",
	}
)

func main() {
	count := flag.Int("n", 50, "number of reviews to insert")
	moderated := flag.Float64("moderated", 0.7, "share of reviews to moderate")
	flag.Parse()

	var cfg seedConfig
	if err := pkgconfig.Load(&cfg); err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("feedback-seed", cfg.LogLevel)

	if err := run(context.Background(), cfg, *count, *moderated, log); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg seedConfig, n int, moderated float64, log *slog.Logger) error {
	pgCfg := database.DefaultPostgresConfig()
	pgCfg.Host = cfg.PostgresHost
	pgCfg.Port = cfg.PostgresPort
	pgCfg.User = cfg.PostgresUser
	pgCfg.Password = cfg.PostgresPass
	pgCfg.DBName = cfg.PostgresDB
	pgCfg.SSLMode = cfg.PostgresSSL
	pgCfg.ApplicationName = "feedback-seed"

	pool, err := database.NewPostgresPool(ctx, &pgCfg, log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	repo := postgres.NewReviewRepository(pool)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	start := time.Now().UTC().Add(-time.Duration(n) * 6 * time.Hour)

	var published, rejected int
	for i := 0; i < n; i++ {
		r := &domain.Review{
			UserID:        int64(100000 + rng.Intn(5000)),
			Rating:        1 + rng.Intn(5),
			Communication: 1 + rng.Intn(5),
			Delivery:      1 + rng.Intn(5),
			Name:          names[rng.Intn(len(names))],
			Text:          texts[rng.Intn(len(texts))],
			SubmittedAt:   start.Add(time.Duration(i) * 6 * time.Hour),
			State:         domain.ReviewStatePending,
		}
		if err := r.Validate(); err != nil {
			return err
		}

		id, err := repo.Insert(ctx, r)
		if err != nil {
			return fmt.Errorf("insert review %d: %w", i, err)
		}

		if rng.Float64() >= moderated {
			continue
		}
		state := domain.ReviewStatePublished
		if rng.Intn(4) == 0 {
			state = domain.ReviewStateRejected
		}
		if err := repo.SetState(ctx, id, state, 0); err != nil {
			return fmt.Errorf("moderate review %d: %w", id, err)
		}
		if state == domain.ReviewStatePublished {
			published++
		} else {
			rejected++
		}
	}

	sum, total, err := repo.AggregatePublished(ctx)
	if err != nil {
		return err
	}
	log.Info("seed complete",
		slog.Int("inserted", n),
		slog.Int("published", published),
		slog.Int("rejected", rejected),
		slog.String("description", domain.FormatDescription(sum, total)),
	)
	return nil
}
