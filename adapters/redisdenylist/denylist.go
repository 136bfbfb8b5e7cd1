// Package redisdenylist stores revoked token ids in Redis. Each entry lives
// exactly as long as the token it revokes, so the set never needs pruning.
package redisdenylist

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "identity:revoked"

// Config controls the Redis client built by Open.
type Config struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	PingTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 3 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 2 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 2 * time.Second
	}
	if out.PoolSize <= 0 {
		out.PoolSize = 20
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	return out
}

// Open builds a client and checks connectivity with PING.
func Open(ctx context.Context, cfg Config) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, goerrors.New("redis addr is required", goerrors.CategoryValidation)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "redis ping failed")
	}

	return client, nil
}

// Denylist implements identity.Denylist on top of a Redis client.
type Denylist struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ identity.Denylist = (*Denylist)(nil)

func New(client redis.UniversalClient) *Denylist {
	return &Denylist{
		client: client,
		prefix: defaultPrefix,
		now:    time.Now,
	}
}

func (d *Denylist) WithPrefix(prefix string) *Denylist {
	if prefix != "" {
		d.prefix = prefix
	}
	return d
}

// WithClock overrides the time source used to compute entry TTLs.
func (d *Denylist) WithClock(now func() time.Time) *Denylist {
	if now != nil {
		d.now = now
	}
	return d
}

func (d *Denylist) IsRevoked(ctx context.Context, kind identity.TokenKind, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	n, err := d.client.Exists(ctx, d.key(kind, tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Revoke stores the id until expiresAt. Tokens that already expired are
// skipped. An existing entry is only ever extended.
func (d *Denylist) Revoke(ctx context.Context, kind identity.TokenKind, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return nil
	}

	ttl := expiresAt.Sub(d.now())
	if ttl <= 0 {
		return nil
	}

	key := d.key(kind, tokenID)
	current, err := d.client.PTTL(ctx, key).Result()
	if err != nil {
		return err
	}
	if current >= ttl {
		return nil
	}

	return d.client.Set(ctx, key, expiresAt.Unix(), ttl).Err()
}

// RevokeIfAbsent stores the id with SET NX so concurrent callers race on a
// single Redis command. Expired tokens are never stored and report false.
func (d *Denylist) RevokeIfAbsent(ctx context.Context, kind identity.TokenKind, tokenID string, expiresAt time.Time) (bool, error) {
	if tokenID == "" {
		return false, nil
	}

	ttl := expiresAt.Sub(d.now())
	if ttl <= 0 {
		return false, nil
	}

	return d.client.SetNX(ctx, d.key(kind, tokenID), expiresAt.Unix(), ttl).Result()
}

func (d *Denylist) key(kind identity.TokenKind, tokenID string) string {
	return fmt.Sprintf("%s:%s:%s", d.prefix, kind, tokenID)
}
