package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPingTimeout bounds the startup ping when Options leaves it unset.
const DefaultPingTimeout = 2 * time.Second

// Options configures the projection cache client.
type Options struct {
	Addr        string
	Password    string
	DB          int
	ClientName  string
	PingTimeout time.Duration
}

// New connects to Redis and pings it once. The caller decides whether an
// unreachable cache is fatal.
func New(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       opts.Addr,
		Password:   opts.Password,
		DB:         opts.DB,
		ClientName: opts.ClientName,
	})

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("projection cache: ping %s: %w", opts.Addr, err)
	}
	return client, nil
}
