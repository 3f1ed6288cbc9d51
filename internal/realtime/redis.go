package realtime

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/kart-shop/internal/domain/product"
)

// DefaultChannel is the Redis channel catalog updates are exchanged on.
const DefaultChannel = "shop:products"

// RedisPublisher publishes catalog updates to a Redis channel so that every
// API instance relays them to its own clients.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

var _ product.Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher returns a publisher writing to channel.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Publish sends the encoded updateProducts frame to the channel.
func (p *RedisPublisher) Publish(ctx context.Context, products []product.Product) error {
	if err := p.client.Publish(ctx, p.channel, updateFrame(products)).Err(); err != nil {
		return errors.Wrapf(err, "publish to %q", p.channel)
	}
	return nil
}

// Relay forwards frames published on a Redis channel to a Hub.
type Relay struct {
	client  *redis.Client
	channel string
	hub     *Hub
}

// NewRelay returns a relay from channel to hub.
func NewRelay(client *redis.Client, channel string, hub *Hub) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{client: client, channel: channel, hub: hub}
}

// Start subscribes to the channel and returns once the subscription is
// confirmed. Frames are forwarded until ctx is canceled; the returned channel
// is closed when forwarding stops.
func (r *Relay) Start(ctx context.Context) (<-chan struct{}, error) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errors.Wrapf(err, "subscribe to %q", r.channel)
	}

	lg := zctx.From(ctx)
	lg.Info("Relaying catalog updates", zap.String("channel", r.channel))

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() { _ = pubsub.Close() }()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					lg.Warn("Relay subscription closed", zap.String("channel", r.channel))
					return
				}
				r.hub.Broadcast(ctx, []byte(msg.Payload))
			}
		}
	}()
	return done, nil
}
