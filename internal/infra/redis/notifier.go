package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Notifier implements app.Notifier over Redis pub/sub, keeping soft signals
// (kick and similar) on a channel independent of the session store's change
// feed.
type Notifier struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewNotifier(client *redis.Client, log zerolog.Logger) *Notifier {
	return &Notifier{client: client, log: log}
}

func (n *Notifier) Publish(ctx context.Context, sessionID, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return n.client.Publish(ctx, n.channel(sessionID, event), data).Err()
}

func (n *Notifier) Subscribe(ctx context.Context, sessionID, event string, handler func([]byte)) (func(), error) {
	sub := n.client.Subscribe(ctx, n.channel(sessionID, event))
	// Force the subscription onto the wire before returning, so a publish
	// immediately after Subscribe is not lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	go func() {
		for msg := range sub.Channel() {
			handler([]byte(msg.Payload))
		}
	}()

	cancel := func() {
		if err := sub.Close(); err != nil {
			n.log.Warn().Err(err).Str("session", sessionID).Str("event", event).Msg("pubsub close failed")
		}
	}
	return cancel, nil
}

func (n *Notifier) channel(sessionID, event string) string {
	return fmt.Sprintf("quiz:notify:%s:%s", sessionID, event)
}
