package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Vinayak0987/CareSync-sub001/pkg/config"
	"github.com/Vinayak0987/CareSync-sub001/pkg/store"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisRepository is a ledger backend on plain Redis strings. Change
// notifications come from keyspace events, which must be enabled on the
// server (see EnableKeyspaceEvents).
type RedisRepository struct {
	client *redis.Client
	config *config.RedisConfig
	logger *zap.Logger

	mu      sync.Mutex
	written map[string]string
}

func NewRedisRepository(cfg *config.RedisConfig, logger *zap.Logger) *RedisRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRepository{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}),
		config:  cfg,
		logger:  logger.Named("redis"),
		written: make(map[string]string),
	}
}

// Client exposes the connection so the broadcast channel can share it.
func (r *RedisRepository) Client() *redis.Client {
	return r.client
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisRepository) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.written[key] = value
	r.mu.Unlock()
	return nil
}

// EnableKeyspaceEvents adds the K and $ flags to notify-keyspace-events
// while keeping whatever the server already has configured.
func (r *RedisRepository) EnableKeyspaceEvents(ctx context.Context) error {
	res, err := r.client.ConfigGet(ctx, "notify-keyspace-events").Result()
	if err != nil {
		return fmt.Errorf("failed to read notify-keyspace-events: %w", err)
	}
	current := ""
	if len(res) == 2 {
		if s, ok := res[1].(string); ok {
			current = s
		}
	}

	want := keyspaceFlags(current)
	if want == current {
		return nil
	}
	if err := r.client.ConfigSet(ctx, "notify-keyspace-events", want).Err(); err != nil {
		return fmt.Errorf("failed to set notify-keyspace-events: %w", err)
	}
	r.logger.Info("Enabled keyspace notifications", zap.String("flags", want))
	return nil
}

func keyspaceFlags(current string) string {
	flags := current
	if !strings.Contains(flags, "K") {
		flags += "K"
	}
	if !strings.Contains(flags, "$") && !strings.Contains(flags, "A") {
		flags += "$"
	}
	return flags
}

func (r *RedisRepository) keyspaceChannel(key string) string {
	return fmt.Sprintf("__keyspace@%d__:%s", r.config.DB, key)
}

// Watch subscribes to keyspace events of keys. Each event triggers a GET
// of the current value; values this repository wrote itself are not
// reported, as a browser does not fire storage events in the writing tab.
func (r *RedisRepository) Watch(ctx context.Context, keys ...string) (<-chan store.Change, error) {
	channels := make([]string, len(keys))
	prefix := r.keyspaceChannel("")
	for i, k := range keys {
		channels[i] = r.keyspaceChannel(k)
	}

	pubsub := r.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to keyspace events: %w", err)
	}

	out := make(chan store.Change, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				key := strings.TrimPrefix(m.Channel, prefix)
				change, report := r.change(ctx, key, m.Payload)
				if !report {
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (r *RedisRepository) change(ctx context.Context, key, event string) (store.Change, bool) {
	switch event {
	case "del", "expired", "evicted":
		return store.Change{Key: key, Deleted: true}, true
	case "set":
	default:
		return store.Change{}, false
	}

	value, found, err := r.Get(ctx, key)
	if err != nil {
		r.logger.Warn("Failed to read changed key", zap.String("key", key), zap.Error(err))
		return store.Change{}, false
	}
	if !found {
		return store.Change{Key: key, Deleted: true}, true
	}

	r.mu.Lock()
	last, wrote := r.written[key]
	own := wrote && last == value
	if wrote && !own {
		delete(r.written, key)
	}
	r.mu.Unlock()
	if own {
		return store.Change{}, false
	}
	return store.Change{Key: key, Value: value}, true
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}
