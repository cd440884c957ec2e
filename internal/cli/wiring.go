package cli

import (
	"context"
	"log"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/config"
	"classroom-quiz-service/internal/infra/memory"
	"classroom-quiz-service/internal/infra/postgres"
	infraredis "classroom-quiz-service/internal/infra/redis"
	transport "classroom-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
)

// backends holds the connections a config asks for; nil means in-process.
type backends struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{}
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		b.pool = pool
	}
	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	return b, nil
}

func (b *backends) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}

func (b *backends) store() app.Store {
	if b.pool != nil {
		return postgres.NewStore(b.pool)
	}
	log.Printf("postgres not configured, using in-memory store")
	return memory.NewStore()
}

// newServices wires every use case against the configured backends.
func newServices(cfg config.Config, b *backends) transport.Services {
	store := b.store()

	draftTTL := config.TTLDuration(cfg.Authoring.DraftTTL, 24*time.Hour)
	window := config.TTLDuration(cfg.RateLimit.Window, time.Minute)
	bannerTTL := config.TTLDuration(cfg.Live.BannerCacheTTL, 2*time.Second)
	staleness := config.TTLDuration(cfg.Live.Staleness, app.DefaultStalenessWindow)
	maxCalls := cfg.RateLimit.Max
	if maxCalls <= 0 {
		maxCalls = 5
	}

	var (
		drafts  app.DraftCache
		limiter app.RateLimiter
		lister  app.SessionLister
	)
	if b.redis != nil {
		drafts = infraredis.NewDraftCache(b.redis, draftTTL)
		limiter = infraredis.NewCooldown(b.redis, "ratelimit", maxCalls, window)
		lister = infraredis.NewBannerCache(b.redis, store, bannerTTL)
	} else {
		drafts = memory.NewDraftCache()
		limiter = memory.NewCooldown(maxCalls, window)
		lister = memory.NewBannerCache(store, bannerTTL)
	}

	draftManager := app.NewDraftManager(store, drafts)
	return transport.Services{
		Drafts:      draftManager,
		Persistence: app.NewQuizPersistence(store, store),
		Importer:    app.NewBankImporter(store, store, draftManager, limiter),
		Sessions: app.NewSessionFactory(store, store, limiter, cfg.SessionDefaults(),
			app.WithJoinCodeAttempts(cfg.Live.JoinCodeAttempts)),
		Joins:     app.NewJoinService(store, store),
		Discovery: app.NewDiscovery(lister, staleness),
	}
}
