package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tastream/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultResultMaxLen = 5000
	defaultBarMaxLen    = 20000
	defaultLatestTTL    = 30 * time.Minute
)

// Publisher writes indicator results and bars to Redis.
type Publisher struct {
	client    *goredis.Client
	maxLen    int64
	latestTTL time.Duration
}

// NewPublisher wraps an existing client.
func NewPublisher(client *goredis.Client) *Publisher {
	return &Publisher{client: client, maxLen: defaultResultMaxLen, latestTTL: defaultLatestTTL}
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// WriteResultBatch writes ready results in a single Redis pipeline:
// XADD to the result stream, SET latest with TTL and PUBLISH for live
// subscribers. Results whose indicator is still warming up are skipped.
func (p *Publisher) WriteResultBatch(ctx context.Context, results []model.IndicatorResult) error {
	pipe := p.client.Pipeline()
	queued := 0
	for i := range results {
		r := &results[i]
		if !r.Ready {
			continue
		}
		data := string(r.JSON())
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: r.StreamKey(),
			MaxLen: p.maxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Set(ctx, r.LatestKey(), data, p.latestTTL)
		pipe.Publish(ctx, r.PubSubChannel(), data)
		queued++
	}
	if queued == 0 {
		return nil
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("result pipeline (%d results): %w", queued, err)
	}
	return nil
}

// PublishBars appends bars to their "bars:{symbol}" streams in one pipeline.
// Used by the bar feeder to drive the indicator engine.
func (p *Publisher) PublishBars(ctx context.Context, bars []model.TimedBar) error {
	if len(bars) == 0 {
		return nil
	}
	pipe := p.client.Pipeline()
	for _, tb := range bars {
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: model.StreamKey(tb.Symbol),
			MaxLen: defaultBarMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": string(tb.Message().JSON())},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bar pipeline (%d bars): %w", len(bars), err)
	}
	return nil
}

// Publish publishes a message to a Redis Pub/Sub channel.
func (p *Publisher) Publish(ctx context.Context, channel, message string) error {
	return p.client.Publish(ctx, channel, message).Err()
}

// Subscribe subscribes to a Pub/Sub channel and forwards payloads to the
// returned channel until ctx is cancelled.
func (p *Publisher) Subscribe(ctx context.Context, channel string) (<-chan string, error) {
	pubsub := p.client.Subscribe(ctx, channel)
	// Wait for confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan string, 8)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	slog.Info("subscribed", slog.String("component", "redis"), slog.String("channel", channel))
	return out, nil
}
