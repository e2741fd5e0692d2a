package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Handler consumes one decoded event. Returning an error leaves the message
// un-acked so the group redelivers it.
type Handler func(ctx context.Context, event Event) error

const (
	defaultBatchSize = 10
	defaultBlock     = 5 * time.Second
	retryBackoff     = time.Second
)

// Subscriber drains one Redis stream through a consumer group and hands each
// event to a Handler, acking only on success.
type Subscriber struct {
	client  *redis.Client
	cfg     SubscriberConfig
	handler Handler
}

type SubscriberConfig struct {
	Group         string
	Consumer      string
	Stream        string
	BatchSize     int64
	BlockDuration time.Duration
}

func NewSubscriber(client *redis.Client, cfg SubscriberConfig, handler Handler) *Subscriber {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = defaultBlock
	}
	return &Subscriber{client: client, cfg: cfg, handler: handler}
}

// Start blocks until ctx is cancelled, polling the stream in batches.
func (s *Subscriber) Start(ctx context.Context) error {
	if err := s.ensureGroup(ctx); err != nil {
		return err
	}
	log.Printf("subscriber started: stream=%s group=%s consumer=%s",
		s.cfg.Stream, s.cfg.Group, s.cfg.Consumer)

	for {
		select {
		case <-ctx.Done():
			log.Printf("subscriber stopping: %s", s.cfg.Stream)
			return ctx.Err()
		default:
		}
		if err := s.poll(ctx); err != nil && ctx.Err() == nil {
			log.Printf("subscriber %s: %v", s.cfg.Stream, err)
			time.Sleep(retryBackoff)
		}
	}
}

func (s *Subscriber) ensureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.cfg.Stream, s.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

func (s *Subscriber) poll(ctx context.Context) error {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		Streams:  []string{s.cfg.Stream, ">"},
		Count:    s.cfg.BatchSize,
		Block:    s.cfg.BlockDuration,
	}).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read stream: %w", err)
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			if err := s.dispatch(ctx, msg); err != nil {
				// Left un-acked; the group will redeliver.
				log.Printf("handle message %s: %v", msg.ID, err)
				continue
			}
			if err := s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, msg.ID).Err(); err != nil {
				log.Printf("ack message %s: %v", msg.ID, err)
			}
		}
	}
	return nil
}

func (s *Subscriber) dispatch(ctx context.Context, msg redis.XMessage) error {
	raw, ok := msg.Values["event"].(string)
	if !ok {
		return fmt.Errorf("message %s has no event payload", msg.ID)
	}
	var event Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return s.handler(ctx, event)
}
