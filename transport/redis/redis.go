// Package redis feeds a transport.Queue from Redis pub/sub.
//
// Each message received on a subscribed channel or pattern becomes one
// transport.Item whose topic is the concrete channel name.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/uadp/log"
	"github.com/pithecene-io/uadp/transport"
)

// Config configures the Redis subscriber.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channels are subscribed with SUBSCRIBE.
	Channels []string
	// Patterns are subscribed with PSUBSCRIBE.
	Patterns []string
}

// Subscriber moves Redis pub/sub messages into a queue.
type Subscriber struct {
	config Config
	client *goredis.Client
	queue  *transport.Queue
	logger log.Sink
}

// New creates a subscriber. It returns an error if the URL is empty or
// invalid, or if no channel or pattern is configured.
func New(cfg Config, queue *transport.Queue, logger log.Sink) (*Subscriber, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis transport requires a URL")
	}
	if len(cfg.Channels) == 0 && len(cfg.Patterns) == 0 {
		return nil, errors.New("redis transport requires at least one channel or pattern")
	}
	if queue == nil {
		return nil, errors.New("redis transport requires a queue")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis transport: invalid URL: %w", err)
	}
	if logger == nil {
		logger = log.Nop()
	}

	return &Subscriber{
		config: cfg,
		client: goredis.NewClient(opts),
		queue:  queue,
		logger: logger,
	}, nil
}

// Run subscribes and enqueues messages until ctx is done. Messages that
// arrive while the queue is full are dropped and logged.
func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.config.Channels...)
	defer func() { _ = pubsub.Close() }()

	if len(s.config.Patterns) > 0 {
		if err := pubsub.PSubscribe(ctx, s.config.Patterns...); err != nil {
			return fmt.Errorf("redis transport: psubscribe: %w", err)
		}
	}
	// Wait for the first confirmation so connection errors surface here.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis transport: subscribe: %w", err)
	}

	s.logger.Info("subscribed to redis transport", map[string]any{
		"channels": s.config.Channels,
		"patterns": s.config.Patterns,
	})

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("redis transport: subscription closed")
			}
			item := transport.Item{Topic: msg.Channel, Payload: []byte(msg.Payload)}
			if err := s.queue.Offer(item); err != nil {
				s.logger.Warn("dropping message", map[string]any{
					"topic": msg.Channel,
					"size":  len(msg.Payload),
					"error": err.Error(),
				})
			}
		}
	}
}

// Close releases the Redis client.
func (s *Subscriber) Close() error {
	return s.client.Close()
}
