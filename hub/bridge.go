package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const bridgeChannelPrefix = "collabcode:room:"

// bridgeFrame is what travels over Redis: the already-encoded code-update
// envelope plus the id of the instance that published it, so instances
// can discard their own messages.
type bridgeFrame struct {
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisBridge relays accepted room events between server instances over
// Redis pub/sub, one channel per room. Room state stays instance-local;
// the bridge only widens broadcast reach, which is all the upstream
// deployment used Redis for.
type RedisBridge struct {
	log    *slog.Logger
	rdb    *redis.Client
	origin string
}

// NewRedisBridge connects to Redis and verifies the connection.
func NewRedisBridge(ctx context.Context, log *slog.Logger, addr string) (*RedisBridge, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisBridge{log: log, rdb: rdb, origin: uuid.NewString()}, nil
}

// Publish sends an encoded code-update frame to the room's channel.
// Errors are logged and dropped: cross-instance fanout is best effort.
func (b *RedisBridge) Publish(roomID string, frame []byte) {
	payload, err := json.Marshal(bridgeFrame{Origin: b.origin, Frame: frame})
	if err != nil {
		b.log.Error("encode bridge frame", "room", roomID, "err", err)
		return
	}
	if err := b.rdb.Publish(context.Background(), bridgeChannelPrefix+roomID, payload).Err(); err != nil {
		b.log.Error("publish to redis", "room", roomID, "err", err)
	}
}

// Run subscribes to every room channel and forwards frames from other
// instances into the hub until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context, h *Hub) error {
	pubsub := b.rdb.PSubscribe(ctx, bridgeChannelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var bf bridgeFrame
			if err := json.Unmarshal([]byte(msg.Payload), &bf); err != nil {
				b.log.Warn("malformed bridge frame", "channel", msg.Channel, "err", err)
				continue
			}
			if bf.Origin == b.origin {
				continue
			}
			roomID := strings.TrimPrefix(msg.Channel, bridgeChannelPrefix)
			h.RelayRemote(roomID, bf.Frame)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close releases the Redis connection.
func (b *RedisBridge) Close() error {
	return b.rdb.Close()
}
