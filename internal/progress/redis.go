package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/timmy/subtitles/internal/domain"
)

// RedisConfig configures the Redis pub/sub publisher.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

// RedisPublisher publishes JSON snapshots on "{prefix}{jobID}".
type RedisPublisher struct {
	cli    *redis.Client
	prefix string
}

// NewRedisPublisher connects and pings Redis.
func NewRedisPublisher(ctx context.Context, cfg *RedisConfig) (*RedisPublisher, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisPublisher{cli: c, prefix: cfg.ChannelPrefix}, nil
}

func (p *RedisPublisher) Name() string { return "redis" }

// Channel returns the pub/sub channel for a job.
func (p *RedisPublisher) Channel(jobID string) string {
	return p.prefix + jobID
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, jobID string, snapshot domain.ProgressSnapshot) error {
	b, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return p.cli.Publish(ctx, p.Channel(jobID), b).Err()
}

// Close releases the connection pool.
func (p *RedisPublisher) Close() error { return p.cli.Close() }
