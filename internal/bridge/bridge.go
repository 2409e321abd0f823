package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shineIB/flowsync/internal/metrics"
	"github.com/shineIB/flowsync/internal/models"
)

const (
	publishTimeout = 5 * time.Second

	retryBase = time.Second
	retryMax  = 30 * time.Second
)

// LocalHub is the slice of the hub the bridge needs: replaying remote
// messages into locally connected clients. The hub itself suppresses
// messages whose client_id is connected locally.
type LocalHub interface {
	DeliverRemote(msg models.Message)
}

// wireMessage is the bridge's redis payload. The origin stamp lets an
// instance skip its own publications without a round trip through the
// registry, the same way the presence channel does it elsewhere in
// this codebase's lineage.
type wireMessage struct {
	Origin  string         `json:"origin"`
	Message models.Message `json:"message"`
}

// Bridge relays broadcaster output across server instances over a
// redis pub/sub channel. Publishing is fire-and-forget; subscription
// runs until the context ends, degrading to local-only fan-out with
// exponential backoff while redis is unreachable.
type Bridge struct {
	log        *zap.Logger
	rdb        *redis.Client
	hub        LocalHub
	channel    string
	instanceID string
}

func New(log *zap.Logger, rdb *redis.Client, hub LocalHub, channel string) *Bridge {
	return &Bridge{
		log:        log,
		rdb:        rdb,
		hub:        hub,
		channel:    channel,
		instanceID: uuid.New().String(),
	}
}

// InstanceID returns this bridge's unique origin stamp.
func (b *Bridge) InstanceID() string { return b.instanceID }

// Publish sends one broadcaster message onto the shared channel.
// No acknowledgment is awaited; every message is idempotent or
// supersede-able by construction, so a lost publish only delays
// convergence until the next edit.
func (b *Bridge) Publish(msg models.Message) {
	data, err := json.Marshal(wireMessage{Origin: b.instanceID, Message: msg})
	if err != nil {
		b.log.Error("bridge marshal failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		b.log.Warn("bridge publish failed, local fan-out unaffected",
			zap.String("type", msg.Type),
			zap.Error(err))
		return
	}
	metrics.BridgePublished()
}

// Run subscribes to the shared channel and replays inbound messages
// into the local hub until ctx ends. Connection loss never crashes the
// process: the bridge logs the degradation and retries with capped
// exponential backoff.
func (b *Bridge) Run(ctx context.Context) {
	backoff := retryBase

	for {
		if ctx.Err() != nil {
			return
		}

		pubsub := b.rdb.Subscribe(ctx, b.channel)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			metrics.SetBridgeDegraded(true)
			b.log.Warn("bridge degraded, retrying subscribe",
				zap.Duration("backoff", backoff),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > retryMax {
				backoff = retryMax
			}
			continue
		}

		metrics.SetBridgeDegraded(false)
		backoff = retryBase
		b.log.Info("bridge subscribed",
			zap.String("channel", b.channel),
			zap.String("instance_id", b.instanceID))

		b.consume(ctx, pubsub.Channel())
		_ = pubsub.Close()
	}
}

func (b *Bridge) consume(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				// Channel closed means the redis connection dropped.
				metrics.SetBridgeDegraded(true)
				b.log.Warn("bridge subscription lost, entering local-only mode")
				return
			}

			var wire wireMessage
			if err := json.Unmarshal([]byte(msg.Payload), &wire); err != nil {
				b.log.Warn("bridge dropping unparsable payload", zap.Error(err))
				continue
			}
			if wire.Origin == b.instanceID {
				continue
			}

			metrics.BridgeReceived()
			b.hub.DeliverRemote(wire.Message)
		}
	}
}
