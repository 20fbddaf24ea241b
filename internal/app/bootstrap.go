// Package app assembles the stores, event bus and achievement flow from
// configuration. cmd/server, cmd/worker and cmd/practicectl share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/practice-hub/practice-hub/config"
	"github.com/practice-hub/practice-hub/internal/application/saga"
	"github.com/practice-hub/practice-hub/internal/domain/achievement"
	"github.com/practice-hub/practice-hub/internal/domain/practice"
	"github.com/practice-hub/practice-hub/internal/domain/shared"
	"github.com/practice-hub/practice-hub/internal/infrastructure/messaging"
	"github.com/practice-hub/practice-hub/internal/infrastructure/persistence/memory"
	"github.com/practice-hub/practice-hub/internal/infrastructure/persistence/postgres"
	redisstore "github.com/practice-hub/practice-hub/internal/infrastructure/persistence/redis"
	"github.com/practice-hub/practice-hub/internal/infrastructure/persistence/resilient"
	"github.com/practice-hub/practice-hub/internal/infrastructure/persistence/sqlite"
	"github.com/practice-hub/practice-hub/pkg/logger"
	"github.com/practice-hub/practice-hub/pkg/retry"
)

// Pinger is implemented by every backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency is a backing service the health endpoint reports on.
type Dependency struct {
	Name     string
	Pinger   Pinger
	Optional bool
}

// Stores holds the repositories selected by config.Store.
type Stores struct {
	Sessions  practice.SessionRepository
	Exercises practice.ExerciseRepository
	Unlocks   achievement.UnlockStore

	// Redis is set when the unlock store or the event bus needs it.
	Redis *redisstore.Client

	// Postgres is set for the postgres driver (used by the migrate command).
	Postgres *postgres.Connection

	Dependencies []Dependency

	closers []func() error
}

// Close releases every opened connection in reverse order.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// NewLogger builds the process logger from the observability section.
func NewLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Output = os.Stderr
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = cfg.Observability.LogFormat
	return logger.New(opts).With(
		logger.String("app", cfg.App.Name),
		logger.String("version", cfg.App.Version),
		logger.String("env", string(cfg.App.Environment)),
	)
}

// OpenStores connects the configured drivers. Remote services get a few
// startup retries; on error everything opened so far is closed.
func OpenStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *Stores, err error) {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("bootstrap"))

	s := &Stores{}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	onRetry := func(what string) func(int, error, time.Duration) {
		return func(attempt int, err error, delay time.Duration) {
			log.Warn("backing service not ready, retrying",
				logger.String("service", what),
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		}
	}

	var (
		mem *memory.Store
		lit *sqlite.Store
	)
	open := func(driver string) error {
		switch driver {
		case config.DriverMemory:
			if mem == nil {
				mem = memory.NewStore()
				s.Dependencies = append(s.Dependencies, Dependency{Name: "memory", Pinger: mem})
			}
		case config.DriverSQLite:
			if lit == nil {
				st, err := sqlite.Open(ctx, cfg.SQLite.Path)
				if err != nil {
					return err
				}
				lit = st
				s.closers = append(s.closers, st.Close)
				s.Dependencies = append(s.Dependencies, Dependency{Name: "sqlite", Pinger: st})
				log.Info("sqlite store opened", logger.String("path", cfg.SQLite.Path))
			}
		case config.DriverPostgres:
			if s.Postgres == nil {
				var conn *postgres.Connection
				err := retry.StartupRetrier(onRetry("postgres")).Do(ctx, func(ctx context.Context) error {
					var err error
					conn, err = postgres.NewConnection(ctx, postgresConfig(cfg.Database))
					return err
				})
				if err != nil {
					return fmt.Errorf("connect postgres: %w", err)
				}
				s.Postgres = conn
				s.closers = append(s.closers, func() error { conn.Close(); return nil })
				s.Dependencies = append(s.Dependencies, Dependency{Name: "postgres", Pinger: conn})

				if cfg.Database.AutoMigrate {
					applied, err := postgres.NewMigrator(conn).Migrate(ctx)
					if err != nil {
						return fmt.Errorf("migrate postgres: %w", err)
					}
					log.Info("postgres migrations applied", logger.Int("count", applied))
				}
			}
		case config.DriverRedis:
			// connected below
		default:
			return fmt.Errorf("unknown store driver %q", driver)
		}
		return nil
	}

	if err := open(cfg.Store.Driver); err != nil {
		return nil, err
	}
	unlockDriver := cfg.Store.UnlockStoreDriver()
	if err := open(unlockDriver); err != nil {
		return nil, err
	}

	if cfg.RedisEnabled() {
		var client *redisstore.Client
		err := retry.StartupRetrier(onRetry("redis")).Do(ctx, func(ctx context.Context) error {
			var err error
			client, err = redisstore.NewClient(ctx, redisConfig(cfg.Redis))
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		s.Redis = client
		s.closers = append(s.closers, client.Close)
		s.Dependencies = append(s.Dependencies, Dependency{
			Name:     "redis",
			Pinger:   client,
			Optional: unlockDriver != config.DriverRedis,
		})
	}

	switch cfg.Store.Driver {
	case config.DriverMemory:
		s.Sessions, s.Exercises = mem, mem
	case config.DriverSQLite:
		s.Sessions, s.Exercises = lit, lit
	case config.DriverPostgres:
		s.Sessions = postgres.NewSessionRepository(s.Postgres)
		s.Exercises = postgres.NewExerciseRepository(s.Postgres)
	}

	switch unlockDriver {
	case config.DriverMemory:
		s.Unlocks = mem
	case config.DriverSQLite:
		s.Unlocks = lit
	case config.DriverPostgres:
		s.Unlocks = resilient.NewUnlockStore(postgres.NewUnlockRepository(s.Postgres), "postgres_unlocks", log)
	case config.DriverRedis:
		s.Unlocks = resilient.NewUnlockStore(redisstore.NewUnlockStore(s.Redis, cfg.Redis.Profile), "redis_unlocks", log)
	}

	log.Info("stores ready",
		logger.String("driver", cfg.Store.Driver),
		logger.String("unlock_driver", unlockDriver),
	)
	return s, nil
}

// NewEventBus returns the Redis Pub/Sub bus when enabled, otherwise an
// in-process async bus.
func NewEventBus(ctx context.Context, cfg *config.Config, stores *Stores, log *logger.Logger) (shared.EventBus, error) {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = log

	if !cfg.Redis.EventBus {
		return messaging.NewInMemoryEventBus(local), nil
	}
	if stores.Redis == nil {
		return nil, errors.New("redis event bus enabled without a redis connection")
	}
	bus, err := messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
		Client:         stores.Redis.Redis(),
		ChannelName:    cfg.Redis.Channel,
		LocalBusConfig: local,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}
	return bus, nil
}

// NewFlow builds the achievement flow for the configured calendar.
func NewFlow(cfg *config.Config, stores *Stores, events shared.EventPublisher, log *logger.Logger) *saga.AchievementFlowSaga {
	flowCfg := saga.DefaultAchievementFlowConfig()
	flowCfg.EvaluatorOptions = []achievement.EvaluatorOption{achievement.WithCalendar(cfg.Achievements.Calendar)}
	flowCfg.PublishEvents = cfg.Achievements.PublishEvents
	flowCfg.Logger = log
	return saga.NewAchievementFlowSaga(stores.Sessions, stores.Exercises, stores.Unlocks, events, flowCfg)
}

func postgresConfig(c config.DatabaseConfig) postgres.Config {
	pg := postgres.DefaultConfig()
	pg.URL = c.URL
	pg.Host = c.Host
	pg.Port = c.Port
	pg.Database = c.Name
	pg.User = c.User
	pg.Password = c.Password
	pg.SSLMode = c.SSLMode
	pg.MaxConns = int32(c.MaxConns)
	pg.MinConns = int32(c.MinConns)
	pg.MaxConnLifetime = c.ConnMaxLifetime
	pg.MaxConnIdleTime = c.ConnMaxIdleTime
	pg.ConnectTimeout = c.ConnectTimeout
	return pg
}

func redisConfig(c config.RedisConfig) redisstore.Config {
	rc := redisstore.DefaultConfig()
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	rc.PoolSize = c.PoolSize
	rc.MinIdleConns = c.MinIdleConns
	rc.DialTimeout = c.DialTimeout
	rc.ReadTimeout = c.ReadTimeout
	rc.WriteTimeout = c.WriteTimeout
	rc.KeyPrefix = c.KeyPrefix
	return rc
}
