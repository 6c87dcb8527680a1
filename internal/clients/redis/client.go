package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/appquest/appquest-backend/internal/platform/envutil"
	"github.com/appquest/appquest-backend/internal/platform/logger"
)

// Client owns the shared go-redis connection behind the "redis" provider.
type Client struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewClient(log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	password := strings.TrimSpace(os.Getenv("REDIS_PASSWORD"))
	db := envutil.Int("REDIS_DB", 0)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Client{
		log: log.With("service", "RedisClient"),
		rdb: rdb,
	}, nil
}

func (c *Client) RDB() *goredis.Client { return c.rdb }

// Addr reports the configured address, for the metrics collector.
func (c *Client) Addr() string { return c.rdb.Options().Addr }

func (c *Client) Close() error { return c.rdb.Close() }
