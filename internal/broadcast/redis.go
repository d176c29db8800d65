package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "broadcast:"

// redisChannel fans events out across processes via Redis pub/sub.
type redisChannel struct {
	client *redis.Client
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]*redisSubscription
}

type redisSubscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	closed bool
}

// NewRedisChannel builds a channel on top of an existing Redis client.
func NewRedisChannel(client *redis.Client, logger *zap.Logger) Channel {
	return &redisChannel{
		client: client,
		logger: logger,
		subs:   make(map[string]*redisSubscription),
	}
}

func (c *redisChannel) Publish(ctx context.Context, topic string, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	data, err := event.Encode()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, channelPrefix+topic, data).Err()
}

func (c *redisChannel) Subscribe(topic string, handler Handler, onDrop DropHandler) (*Handle, error) {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := c.client.Subscribe(ctx, channelPrefix+topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, err
	}

	handle := &Handle{id: uuid.NewString(), topic: topic}
	sub := &redisSubscription{pubsub: pubsub, cancel: cancel}

	c.mu.Lock()
	c.subs[handle.id] = sub
	c.mu.Unlock()

	go c.receive(ctx, handle, sub, handler, onDrop)
	return handle, nil
}

func (c *redisChannel) receive(ctx context.Context, handle *Handle, sub *redisSubscription, handler Handler, onDrop DropHandler) {
	ch := sub.pubsub.Channel()
	for msg := range ch {
		event, err := Decode([]byte(msg.Payload))
		if err != nil {
			c.logger.Warn("broadcast: dropping undecodable event",
				zap.String("topic", handle.topic), zap.Error(err))
			continue
		}
		handler(event)
	}

	// Channel closed: either Unsubscribe or a lost connection.
	c.mu.Lock()
	closed := sub.closed
	delete(c.subs, handle.id)
	c.mu.Unlock()

	if !closed && onDrop != nil {
		onDrop(ctx.Err())
	}
}

func (c *redisChannel) Unsubscribe(handle *Handle) {
	if handle == nil {
		return
	}
	c.mu.Lock()
	sub, ok := c.subs[handle.id]
	if ok {
		sub.closed = true
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	sub.cancel()
	_ = sub.pubsub.Close()
}
