// Package bus carries live race events between the ingest endpoint and the
// live boards. In-process by default; Redis streams when Redis is configured
// so several instances see the same feed.
package bus

import (
	"context"
	"errors"

	"backend-racehub/internal/logger"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const TopicRaceEvents = "race.events"

type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
}

// Options tune the Redis transport. They are ignored in process.
type Options struct {
	// ConsumerGroup empty means every subscriber receives every message.
	ConsumerGroup string
	// MaxLen caps each topic's stream. Zero leaves streams untrimmed.
	MaxLen int64
}

func New(redisClient *redis.Client, log *logger.Logger, opts Options) (*Bus, error) {
	wlog := log.WithComponent("bus").Watermill()

	if redisClient == nil {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, wlog)
		return &Bus{publisher: ch, subscriber: ch}, nil
	}

	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client:        redisClient,
		Maxlens:       map[string]int64{TopicRaceEvents: opts.MaxLen},
		DefaultMaxlen: opts.MaxLen,
	}, wlog)
	if err != nil {
		return nil, err
	}
	subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        redisClient,
		ConsumerGroup: opts.ConsumerGroup,
	}, wlog)
	if err != nil {
		_ = publisher.Close()
		return nil, err
	}
	return &Bus{publisher: publisher, subscriber: subscriber}, nil
}

func (b *Bus) Publish(topic string, payload []byte) error {
	return b.publisher.Publish(topic, message.NewMessage(uuid.NewString(), payload))
}

func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.subscriber.Subscribe(ctx, topic)
}

// Close stops both sides. The Redis publisher and subscriber each close the
// shared client, so the second close is not an error.
func (b *Bus) Close() error {
	pubErr := b.publisher.Close()
	subErr := b.subscriber.Close()
	if errors.Is(subErr, redis.ErrClosed) {
		subErr = nil
	}
	if pubErr != nil {
		return pubErr
	}
	return subErr
}
