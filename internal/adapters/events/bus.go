// Package events fans session updates out to live observers over watermill,
// either in process or through Redis streams.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"

	"github.com/PabloGalante/blue-shark/internal/domain"
	"github.com/PabloGalante/blue-shark/internal/observability"
)

// DefaultTopic carries every SessionUpdate.
const DefaultTopic = "blue_shark.session_updates"

const metadataKind = "kind"

// Bus implements domain.UpdatePublisher and hands out subscriptions.
type Bus struct {
	topic  string
	pub    message.Publisher
	sub    message.Subscriber
	logger watermill.LoggerAdapter

	// closeSub is set when sub is a separate component from pub.
	closeSub bool
}

// NewLocal returns an in-process bus backed by a watermill GoChannel.
// Publish waits for every subscriber to ack, so updates arrive in the
// order they were published.
func NewLocal(topic string) *Bus {
	logger := newLoggerAdapter(*observability.WithFields("component", "events"))
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            64,
		BlockPublishUntilSubscriberAck: true,
	}, logger)
	return &Bus{topic: topicOrDefault(topic), pub: ch, sub: ch, logger: logger}
}

// NewRedis returns a bus over Redis streams. Subscribers use fan-out reads
// so every process sees every update.
func NewRedis(client redis.UniversalClient, topic string) (*Bus, error) {
	logger := newLoggerAdapter(*observability.WithFields("component", "events"))
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating redis stream publisher: %w", err)
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:       client,
		Unmarshaller: marshaler,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("creating redis stream subscriber: %w", err)
	}

	return &Bus{topic: topicOrDefault(topic), pub: pub, sub: sub, logger: logger, closeSub: true}, nil
}

func topicOrDefault(topic string) string {
	if topic == "" {
		return DefaultTopic
	}
	return topic
}

// Publish implements domain.UpdatePublisher.
func (b *Bus) Publish(ctx context.Context, update domain.SessionUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("encoding session update: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metadataKind, string(update.Kind))
	if reqID := observability.RequestID(ctx); reqID != "" {
		msg.Metadata.Set("request_id", reqID)
	}

	if err := b.pub.Publish(b.topic, msg); err != nil {
		return fmt.Errorf("publishing session update: %w", err)
	}
	return nil
}

// Subscribe streams decoded updates until ctx is done. Undecodable
// messages are logged and skipped.
func (b *Bus) Subscribe(ctx context.Context) (<-chan domain.SessionUpdate, error) {
	msgs, err := b.sub.Subscribe(ctx, b.topic)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", b.topic, err)
	}

	out := make(chan domain.SessionUpdate)
	go func() {
		defer close(out)
		for msg := range msgs {
			var update domain.SessionUpdate
			if err := json.Unmarshal(msg.Payload, &update); err != nil {
				b.logger.Error("dropping undecodable session update", err, watermill.LogFields{"message_uuid": msg.UUID})
				msg.Ack()
				continue
			}
			msg.Ack()

			select {
			case out <- update:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (b *Bus) Close() error {
	err := b.pub.Close()
	if b.closeSub {
		if serr := b.sub.Close(); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}
