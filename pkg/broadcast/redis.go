package broadcast

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisChannel broadcasts over Redis PUBLISH/SUBSCRIBE. Redis delivers a
// message to every subscriber including the publisher, so messages are
// stamped with the channel's origin and dropped when they come back.
type RedisChannel struct {
	client *redis.Client
	name   string
	origin string
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[*redisSubscription]struct{}
	closed bool
}

func NewRedisChannel(client *redis.Client, name, origin string, logger *zap.Logger) *RedisChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisChannel{
		client: client,
		name:   name,
		origin: origin,
		logger: logger.Named("broadcast").With(zap.String("channel", name)),
		subs:   make(map[*redisSubscription]struct{}),
	}
}

func (c *RedisChannel) Origin() string {
	return c.origin
}

func (c *RedisChannel) Publish(ctx context.Context, msg Message) error {
	if msg.Origin == "" {
		msg.Origin = c.origin
	}
	data, err := encode(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := c.client.Publish(ctx, c.name, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", c.name, err)
	}
	return nil
}

type redisSubscription struct {
	channel *RedisChannel
	pubsub  *redis.PubSub
	done    chan struct{}
	once    sync.Once
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.pubsub.Close()
		<-s.done

		s.channel.mu.Lock()
		delete(s.channel.subs, s)
		s.channel.mu.Unlock()
	})
	return err
}

func (c *RedisChannel) Subscribe(ctx context.Context, h Handler) (Subscription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.mu.Unlock()

	pubsub := c.client.Subscribe(ctx, c.name)
	// Wait for the subscription confirmation so no publish after this
	// call returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", c.name, err)
	}

	sub := &redisSubscription{channel: c, pubsub: pubsub, done: make(chan struct{})}
	c.mu.Lock()
	c.subs[sub] = struct{}{}
	c.mu.Unlock()

	go func() {
		defer close(sub.done)
		for m := range pubsub.Channel() {
			msg, err := decode([]byte(m.Payload))
			if err != nil {
				c.logger.Warn("Dropping undecodable message", zap.Error(err))
				continue
			}
			if msg.Origin == c.origin {
				continue
			}
			h(msg)
		}
	}()

	return sub, nil
}

// Close ends all subscriptions. The redis client is owned by the caller.
func (c *RedisChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := make([]*redisSubscription, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		if err := s.Close(); err != nil {
			c.logger.Warn("Failed to close subscription", zap.Error(err))
		}
	}
	return nil
}
