package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/service/contextcache"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/logging"
)

// Cache holds CLI flags for the context cache backend
type Cache struct {
	backend       string
	maxBytes      int64
	redisAddr     string
	redisPassword string
	redisDB       int
	redisPrefix   string
}

func (x *Cache) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "cache-backend",
			Usage:       "Context cache backend (ristretto, redis, none)",
			Category:    "Cache",
			Value:       "ristretto",
			Sources:     cli.EnvVars("RECEPTIONIST_CACHE_BACKEND"),
			Destination: &x.backend,
		},
		&cli.Int64Flag{
			Name:        "cache-max-bytes",
			Usage:       "Memory bound of the ristretto context cache",
			Category:    "Cache",
			Value:       64 << 20,
			Sources:     cli.EnvVars("RECEPTIONIST_CACHE_MAX_BYTES"),
			Destination: &x.maxBytes,
		},
		&cli.StringFlag{
			Name:        "redis-addr",
			Usage:       "Redis address (host:port) for the redis cache backend",
			Category:    "Cache",
			Sources:     cli.EnvVars("RECEPTIONIST_REDIS_ADDR"),
			Destination: &x.redisAddr,
		},
		&cli.StringFlag{
			Name:        "redis-password",
			Usage:       "Redis password",
			Category:    "Cache",
			Sources:     cli.EnvVars("RECEPTIONIST_REDIS_PASSWORD"),
			Destination: &x.redisPassword,
		},
		&cli.IntFlag{
			Name:        "redis-db",
			Usage:       "Redis database number",
			Category:    "Cache",
			Sources:     cli.EnvVars("RECEPTIONIST_REDIS_DB"),
			Destination: &x.redisDB,
		},
		&cli.StringFlag{
			Name:        "redis-key-prefix",
			Usage:       "Prefix for context cache keys in a shared redis",
			Category:    "Cache",
			Value:       "receptionist:",
			Sources:     cli.EnvVars("RECEPTIONIST_REDIS_KEY_PREFIX"),
			Destination: &x.redisPrefix,
		},
	}
}

func (x Cache) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", x.backend),
		slog.String("redis_addr", x.redisAddr),
		slog.Int("redis_password.len", len(x.redisPassword)),
	)
}

// Configure builds the context cache. The returned func releases it.
func (x *Cache) Configure(ctx context.Context) (interfaces.ContextCache, func(), error) {
	switch x.backend {
	case "ristretto", "":
		cache, err := contextcache.NewRistretto(x.maxBytes)
		if err != nil {
			return nil, nil, err
		}
		return cache, cache.Close, nil

	case "redis":
		if x.redisAddr == "" {
			return nil, nil, goerr.Wrap(ErrInvalidConfig, "redis-addr is required when using redis cache backend")
		}
		cache, err := contextcache.NewRedis(ctx, x.redisAddr, x.redisPassword, x.redisDB,
			contextcache.WithKeyPrefix(x.redisPrefix),
		)
		if err != nil {
			return nil, nil, err
		}
		closer := func() {
			if err := cache.Close(); err != nil {
				logging.Default().Warn("failed to close redis cache", logging.ErrAttr(err))
			}
		}
		return cache, closer, nil

	case "none":
		return contextcache.Noop{}, func() {}, nil

	default:
		return nil, nil, goerr.Wrap(ErrInvalidConfig, "invalid cache backend", goerr.V("backend", x.backend))
	}
}
