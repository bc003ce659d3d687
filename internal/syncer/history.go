package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jobsift/internal/config"
	"jobsift/pkg/models"
)

const (
	historyKey    = "jobsift:run_history"
	historyMaxLen = 100
)

// History stores completed run snapshots in Redis so operators can inspect
// past runs after the process restarts.
type History struct {
	client *redis.Client
	ttl    time.Duration
}

// NewHistory connects to Redis using the configured URL and verifies the
// connection with a ping.
func NewHistory(cfg *config.Config) (*History, error) {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &History{
		client: client,
		ttl:    cfg.Redis.HistoryTTL,
	}, nil
}

// Record prepends the snapshot to the history list, trims it to the retained
// window and refreshes the list TTL.
func (h *History) Record(ctx context.Context, status models.RunStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode run snapshot: %w", err)
	}

	pipe := h.client.TxPipeline()
	pipe.LPush(ctx, historyKey, payload)
	pipe.LTrim(ctx, historyKey, 0, historyMaxLen-1)
	pipe.Expire(ctx, historyKey, h.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store run snapshot: %w", err)
	}
	return nil
}

// Recent returns up to limit of the most recent run snapshots, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]models.RunStatus, error) {
	if limit <= 0 {
		limit = 10
	}

	raw, err := h.client.LRange(ctx, historyKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run history: %w", err)
	}

	snapshots := make([]models.RunStatus, 0, len(raw))
	for _, item := range raw {
		var snapshot models.RunStatus
		if err := json.Unmarshal([]byte(item), &snapshot); err != nil {
			return nil, fmt.Errorf("failed to decode run snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

// Close releases the Redis connection.
func (h *History) Close() error {
	return h.client.Close()
}
