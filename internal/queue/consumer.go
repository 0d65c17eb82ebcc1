package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrPermanent marks a handler failure that no retry can fix.
var ErrPermanent = errors.New("permanent task failure")

// Permanent wraps err so the consumer acks the entry instead of retrying it.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

type MessageHandler interface {
	Handle(ctx context.Context, msg redis.XMessage) error
}

// Consumer reads the task stream as part of a consumer group and reclaims
// entries another consumer left pending for longer than claimInterval.
type Consumer struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	claimInterval time.Duration
	claimBatch    int64
	block         time.Duration
	logger        zerolog.Logger
	handler       MessageHandler
}

func NewConsumer(client *redis.Client, stream, group, consumer string, claimInterval time.Duration, logger zerolog.Logger, handler MessageHandler) *Consumer {
	return &Consumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		claimInterval: claimInterval,
		claimBatch:    10,
		block:         5 * time.Second,
		logger:        logger.With().Str("stream", stream).Str("consumer", consumer).Logger(),
		handler:       handler,
	}
}

// EnsureGroup creates the stream and group when missing.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s: %w", c.group, err)
	}
	return nil
}

func (c *Consumer) Start(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(c.claimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if _, err := c.ReadOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Error().Err(err).Msg("stream read error")
				sleep(ctx, 2*time.Second)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := c.ClaimStalled(ctx); err != nil {
				c.logger.Error().Err(err).Msg("claim stalled failed")
			}
		default:
		}
	}
}

// ReadOnce reads and processes one batch; it returns how many entries were
// handled and acknowledged.
func (c *Consumer) ReadOnce(ctx context.Context) (int, error) {
	result, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    10,
		Block:    c.block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	acked := 0
	for _, stream := range result {
		for _, msg := range stream.Messages {
			if c.process(ctx, msg) {
				acked++
			}
		}
	}
	return acked, nil
}

// ClaimStalled walks the whole pending list in pages, claiming entries idle
// for at least claimInterval. It returns how many were handled and acked.
func (c *Consumer) ClaimStalled(ctx context.Context) (int, error) {
	acked := 0
	cursor := "-"
	for {
		pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: c.stream,
			Group:  c.group,
			Idle:   c.claimInterval,
			Start:  cursor,
			End:    "+",
			Count:  c.claimBatch,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return acked, err
		}
		if len(pending) == 0 {
			return acked, nil
		}

		ids := make([]string, 0, len(pending))
		for _, entry := range pending {
			ids = append(ids, entry.ID)
		}
		msgs, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   c.stream,
			Group:    c.group,
			Consumer: c.consumer,
			MinIdle:  c.claimInterval,
			Messages: ids,
		}).Result()
		if err != nil {
			return acked, fmt.Errorf("claim pending: %w", err)
		}
		for _, msg := range msgs {
			if c.process(ctx, msg) {
				acked++
			}
		}

		if int64(len(pending)) < c.claimBatch {
			return acked, nil
		}
		cursor, err = nextID(pending[len(pending)-1].ID)
		if err != nil {
			return acked, err
		}
	}
}

// process acks handled entries and entries failing with ErrPermanent; any
// other failure stays pending for ClaimStalled. Only handled entries count.
func (c *Consumer) process(ctx context.Context, msg redis.XMessage) bool {
	err := c.handler.Handle(ctx, msg)
	switch {
	case err == nil:
	case errors.Is(err, ErrPermanent):
		c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("dropping message")
	default:
		c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("handle message failed")
		return false
	}

	if ackErr := c.client.XAck(ctx, c.stream, c.group, msg.ID).Err(); ackErr != nil {
		c.logger.Error().Err(ackErr).Str("message_id", msg.ID).Msg("ack failed")
		return false
	}
	return err == nil
}

// nextID returns the smallest stream id greater than id.
func nextID(id string) (string, error) {
	ms, seq, err := parseID(id)
	if err != nil {
		return "", err
	}
	if seq == math.MaxUint64 {
		return strconv.FormatUint(ms+1, 10) + "-0", nil
	}
	return strconv.FormatUint(ms, 10) + "-" + strconv.FormatUint(seq+1, 10), nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
