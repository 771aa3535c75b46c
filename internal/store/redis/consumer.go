package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tastream/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

var _ model.BarConsumer = (*Consumer)(nil)

const (
	barStreamPrefix = "bars:"
	readCount       = 100
	readBlock       = 2 * time.Second
	replayPageSize  = 1000
)

// ConsumerConfig configures the bar stream consumer.
type ConsumerConfig struct {
	Config
	ConsumerGroup string // consumer group name, e.g. "indengine"
	ConsumerName  string // unique consumer name, e.g. hostname
}

// Consumer reads validated bars from Redis Streams via consumer groups.
// Every message is decoded through BarBuilder; messages that fail are
// ACKed and dropped so they cannot block the group.
type Consumer struct {
	client        *goredis.Client
	consumerGroup string
	consumerName  string
	log           *slog.Logger

	// OnInvalid is called for every message dropped as undecodable (optional).
	OnInvalid func(stream string, err error)
}

// NewConsumer connects to Redis and returns a Consumer.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	client, err := Connect(cfg.Config)
	if err != nil {
		return nil, err
	}
	return NewConsumerFromClient(client, cfg.ConsumerGroup, cfg.ConsumerName), nil
}

// NewConsumerFromClient wraps an existing client.
func NewConsumerFromClient(client *goredis.Client, group, consumer string) *Consumer {
	if group == "" {
		group = "indengine"
	}
	if consumer == "" {
		consumer = "worker-1"
	}
	return &Consumer{
		client:        client,
		consumerGroup: group,
		consumerName:  consumer,
		log: slog.Default().With(
			slog.String("component", "redis-consumer"),
			slog.String("group", group),
			slog.String("consumer", consumer)),
	}
}

// Client returns the underlying Redis client for health checks.
func (c *Consumer) Client() *goredis.Client { return c.client }

// EnsureConsumerGroup creates the consumer group on the given streams if it
// doesn't exist. Fresh groups start at "$" (only new messages).
func (c *Consumer) EnsureConsumerGroup(ctx context.Context, streams []string) error {
	for _, stream := range streams {
		err := c.client.XGroupCreateMkStream(ctx, stream, c.consumerGroup, "$").Err()
		if err != nil && !isBusyGroup(err) {
			return fmt.Errorf("xgroup create %s: %w", stream, err)
		}
	}
	return nil
}

// EnsureConsumerGroupFrom creates the consumer group at startID, or moves an
// existing group's last-delivered ID there. Used after a snapshot restore so
// that consumption resumes right after the checkpoint.
func (c *Consumer) EnsureConsumerGroupFrom(ctx context.Context, stream, startID string) error {
	err := c.client.XGroupCreateMkStream(ctx, stream, c.consumerGroup, startID).Err()
	if err == nil {
		return nil
	}
	if isBusyGroup(err) {
		return c.client.XGroupSetID(ctx, stream, c.consumerGroup, startID).Err()
	}
	return fmt.Errorf("xgroup create %s at %s: %w", stream, startID, err)
}

// DiscoverBarStreams lists the existing "bars:*" streams.
func (c *Consumer) DiscoverBarStreams(ctx context.Context) ([]string, error) {
	var (
		streams []string
		cursor  uint64
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, barStreamPrefix+"*", 200).Result()
		if err != nil {
			return nil, fmt.Errorf("scan bar streams: %w", err)
		}
		streams = append(streams, keys...)
		if next == 0 {
			break
		}
		cursor = next
	}
	return streams, nil
}

// ConsumeBars reads bars via XREADGROUP and sends them to out, ACKing each
// message once it was handed over. Blocks until ctx is cancelled.
func (c *Consumer) ConsumeBars(ctx context.Context, streams []string, out chan<- model.TimedBar) error {
	args := streamArgs(streams)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		results, err := c.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    c.consumerGroup,
			Consumer: c.consumerName,
			Streams:  args,
			Count:    readCount,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) || ctx.Err() != nil {
				continue
			}
			c.log.Error("xreadgroup failed", slog.Any("err", err))
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range results {
			if err := c.deliver(ctx, stream.Stream, stream.Messages, out); err != nil {
				return err
			}
		}
	}
}

// RecoverPending claims and re-delivers this group's unACKed messages left
// over from a previous run (at-least-once delivery).
func (c *Consumer) RecoverPending(ctx context.Context, streams []string, out chan<- model.TimedBar) error {
	for _, stream := range streams {
		for {
			pending, err := c.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
				Stream: stream,
				Group:  c.consumerGroup,
				Start:  "-",
				End:    "+",
				Count:  readCount,
			}).Result()
			if err != nil || len(pending) == 0 {
				break
			}

			ids := make([]string, len(pending))
			for i, p := range pending {
				ids[i] = p.ID
			}

			claimed, err := c.client.XClaim(ctx, &goredis.XClaimArgs{
				Stream:   stream,
				Group:    c.consumerGroup,
				Consumer: c.consumerName,
				MinIdle:  0,
				Messages: ids,
			}).Result()
			if err != nil {
				c.log.Error("xclaim failed", slog.String("stream", stream), slog.Any("err", err))
				break
			}

			if err := c.deliver(ctx, stream, claimed, out); err != nil {
				return err
			}
			if len(claimed) < len(ids) {
				break
			}
		}
	}
	return nil
}

// ReclaimStale claims PEL entries of other consumers that have been idle for
// at least minIdle. Returns the claimed messages.
func (c *Consumer) ReclaimStale(ctx context.Context, stream string, minIdle time.Duration, batchSize int64) ([]goredis.XMessage, error) {
	pending, err := c.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: stream,
		Group:  c.consumerGroup,
		Start:  "-",
		End:    "+",
		Count:  batchSize,
		Idle:   minIdle,
	}).Result()
	if err != nil || len(pending) == 0 {
		return nil, err
	}

	var staleIDs []string
	for _, p := range pending {
		if p.Consumer != c.consumerName {
			staleIDs = append(staleIDs, p.ID)
		}
	}
	if len(staleIDs) == 0 {
		return nil, nil
	}

	claimed, err := c.client.XClaim(ctx, &goredis.XClaimArgs{
		Stream:   stream,
		Group:    c.consumerGroup,
		Consumer: c.consumerName,
		MinIdle:  minIdle,
		Messages: staleIDs,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim %s: %w", stream, err)
	}

	c.log.Info("reclaimed stale PEL entries", slog.String("stream", stream), slog.Int("count", len(claimed)))
	return claimed, nil
}

// StartPELReclaimer periodically reclaims stale PEL entries of dead consumers
// and re-delivers them to out. Runs until ctx is cancelled.
func (c *Consumer) StartPELReclaimer(ctx context.Context, streams []string, interval, minIdle time.Duration, out chan<- model.TimedBar, onReclaim func(count int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total := 0
			for _, stream := range streams {
				claimed, err := c.ReclaimStale(ctx, stream, minIdle, 50)
				if err != nil {
					c.log.Warn("PEL reclaim failed", slog.String("stream", stream), slog.Any("err", err))
					continue
				}
				if err := c.deliver(ctx, stream, claimed, out); err != nil {
					return
				}
				total += len(claimed)
			}
			if total > 0 && onReclaim != nil {
				onReclaim(total)
			}
		}
	}
}

// ReplayFromID sends every bar after startID (exclusive) to out, without
// touching the consumer group. Returns the last ID read.
func (c *Consumer) ReplayFromID(ctx context.Context, stream, startID string, out chan<- model.TimedBar) (string, error) {
	lastID := startID
	for {
		msgs, err := c.client.XRangeN(ctx, stream, "("+lastID, "+", replayPageSize).Result()
		if err != nil {
			return lastID, fmt.Errorf("xrange %s from %s: %w", stream, lastID, err)
		}
		for _, msg := range msgs {
			lastID = msg.ID
			tb, err := decodeMessage(msg.Values)
			if err != nil {
				c.invalid(stream, err)
				continue
			}
			select {
			case out <- tb:
			case <-ctx.Done():
				return lastID, ctx.Err()
			}
		}
		if len(msgs) < replayPageSize {
			return lastID, nil
		}
	}
}

// deliver decodes msgs, sends the valid bars to out and ACKs every message.
func (c *Consumer) deliver(ctx context.Context, stream string, msgs []goredis.XMessage, out chan<- model.TimedBar) error {
	for _, msg := range msgs {
		tb, err := decodeMessage(msg.Values)
		if err != nil {
			c.invalid(stream, err)
			// ACK even on bad message to avoid poison pill
			c.client.XAck(ctx, stream, c.consumerGroup, msg.ID)
			continue
		}

		select {
		case out <- tb:
		case <-ctx.Done():
			return ctx.Err()
		}

		c.client.XAck(ctx, stream, c.consumerGroup, msg.ID)
	}
	return nil
}

func (c *Consumer) invalid(stream string, err error) {
	c.log.Warn("dropping invalid bar", slog.String("stream", stream), slog.Any("err", err))
	if c.OnInvalid != nil {
		c.OnInvalid(stream, err)
	}
}

// Close closes the Redis client.
func (c *Consumer) Close() error {
	return c.client.Close()
}

// streamArgs builds XREADGROUP stream args: [s1, s2, ..., ">", ">", ...].
func streamArgs(streams []string) []string {
	args := make([]string, len(streams)*2)
	for i, s := range streams {
		args[i] = s
		args[len(streams)+i] = ">"
	}
	return args
}

// decodeMessage extracts and validates the bar carried in a stream message's
// "data" field.
func decodeMessage(values map[string]interface{}) (model.TimedBar, error) {
	raw, ok := values["data"]
	if !ok {
		return model.TimedBar{}, fmt.Errorf("stream message without data field: %w", model.ErrBarIncomplete)
	}
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return model.TimedBar{}, fmt.Errorf("stream message data of type %T", raw)
	}
	return model.DecodeBar(data)
}

// SymbolFromStream returns the symbol of a "bars:{symbol}" stream key.
func SymbolFromStream(stream string) (string, bool) {
	if !strings.HasPrefix(stream, barStreamPrefix) || len(stream) == len(barStreamPrefix) {
		return "", false
	}
	return stream[len(barStreamPrefix):], true
}
