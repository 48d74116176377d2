package storage

import (
	"context"
	"encoding/json"

	"garagechat/backend/internal/metrics"
	"garagechat/backend/internal/models"
)

const inboxPrefix = "inbox:"

// InboxChannel is the Redis Pub/Sub channel carrying inbound events for a
// participant.
func InboxChannel(userID string) string {
	return inboxPrefix + userID
}

// PublishInbound publishes ev to the receiver's inbox channel.
func (s *Service) PublishInbound(receiverID string, ev models.InboundEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	if err := s.Redis.Publish(s.Ctx, InboxChannel(receiverID), payload).Err(); err != nil {
		metrics.InboundPublished.WithLabelValues("error").Inc()
		return err
	}
	metrics.InboundPublished.WithLabelValues("ok").Inc()
	return nil
}

// SubscribeInbound streams inbound events for userID until ctx is cancelled,
// then closes the returned channel.
func (s *Service) SubscribeInbound(ctx context.Context, userID string) (<-chan models.InboundEvent, error) {
	pubsub := s.Redis.Subscribe(ctx, InboxChannel(userID))
	// Wait for the subscription to be confirmed so no event published after
	// this call returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan models.InboundEvent)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev models.InboundEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					s.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("error unmarshalling inbound event")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
