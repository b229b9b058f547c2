package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/vedran77/ontomatch/internal/candidate"
	"github.com/vedran77/ontomatch/internal/config"
	"github.com/vedran77/ontomatch/internal/database"
	"github.com/vedran77/ontomatch/internal/realtime"
	"github.com/vedran77/ontomatch/internal/repository"
	postgresrepo "github.com/vedran77/ontomatch/internal/repository/postgres"
	"github.com/vedran77/ontomatch/internal/repository/sqlite"
)

// stores bundles the repositories of the configured driver.
type stores struct {
	matches    repository.MatchRepository
	chats      repository.ChatRepository
	messages   repository.MessageRepository
	candidates candidate.Source
	close      func()
}

func openStores(ctx context.Context, cfg *config.Config, migrate bool) (*stores, error) {
	switch cfg.StoreDriver {
	case "sqlite":
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		pool, err := candidate.ParseStatic(cfg.CandidatePool)
		if err != nil {
			store.Close()
			return nil, err
		}
		slog.Info("using sqlite store", "path", cfg.SQLitePath)
		return &stores{
			matches:    store.Matches(),
			chats:      store.Chats(),
			messages:   store.Messages(),
			candidates: pool,
			close:      func() { store.Close() },
		}, nil

	default:
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := database.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		slog.Info("connected to database")
		return &stores{
			matches:    postgresrepo.NewMatchRepo(pool),
			chats:      postgresrepo.NewChatRepo(pool),
			messages:   postgresrepo.NewMessageRepo(pool),
			candidates: candidate.NewPostgres(pool),
			close:      pool.Close,
		}, nil
	}
}

// openRealtime picks NATS and Redis when configured and the in-process
// implementations otherwise.
func openRealtime(ctx context.Context, cfg *config.Config) (*realtime.Adapter, func(), error) {
	var (
		broker   realtime.Broker
		presence realtime.PresenceStore
		closers  []func()
	)

	if cfg.NatsURL != "" {
		nb, err := realtime.NewNATSBroker(cfg.NatsURL)
		if err != nil {
			return nil, nil, err
		}
		broker = nb
		closers = append(closers, func() { nb.Close() })
		slog.Info("connected to NATS", "url", cfg.NatsURL)
	} else {
		broker = realtime.NewLocalBroker()
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisotel.InstrumentTracing(rdb); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("instrumenting redis: %w", err)
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		presence = realtime.NewRedisPresence(rdb, cfg.PresenceTTL)
		closers = append(closers, func() { rdb.Close() })
		slog.Info("connected to Redis", "addr", cfg.RedisAddr)
	} else {
		presence = realtime.NewLocalPresence()
	}

	adapter := realtime.NewAdapter(broker, presence)
	return adapter, func() {
		adapter.Close()
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}
