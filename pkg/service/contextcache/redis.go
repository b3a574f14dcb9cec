package contextcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/domain/model"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/logging"
)

// Redis shares cached bundles between engine instances
type Redis struct {
	rdb     *goredis.Client
	prefix  string
	timeout time.Duration
}

var _ interfaces.ContextCache = &Redis{}

type RedisOption func(*Redis)

// WithKeyPrefix namespaces keys when the redis instance is shared
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// WithOpTimeout bounds each cache round trip so a slow redis cannot eat the
// retrieval deadline
func WithOpTimeout(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRedis connects to addr and verifies the connection with PING
func NewRedis(ctx context.Context, addr, password string, db int, opts ...RedisOption) (*Redis, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, goerr.Wrap(err, "failed to ping redis", goerr.V("addr", addr))
	}

	r := &Redis{
		rdb:     rdb,
		timeout: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Redis) Get(ctx context.Context, key string) (*model.ContextBundle, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			logging.From(ctx).Warn("context cache get failed", "key", key, logging.ErrAttr(err))
		}
		return nil, false
	}

	var bundle model.ContextBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		logging.From(ctx).Warn("dropping undecodable context cache entry", "key", key, logging.ErrAttr(err))
		return nil, false
	}
	return &bundle, true
}

func (r *Redis) Put(ctx context.Context, key string, bundle *model.ContextBundle, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		logging.From(ctx).Warn("failed to encode context bundle", "key", key, logging.ErrAttr(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.rdb.Set(ctx, r.prefix+key, raw, ttl).Err(); err != nil {
		logging.From(ctx).Warn("context cache put failed", "key", key, logging.ErrAttr(err))
	}
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
