// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/logger"
	"github.com/emausjovem/comunidade/backend/metrics"
	"github.com/emausjovem/comunidade/backend/models"
)

const (
	// Redis channel prefix: comunidade:conv:group:12
	topicPrefix = "comunidade:"

	publishTimeout = 3 * time.Second
)

var _ Broker = (*Redis)(nil)

// Redis publishes events with PUBLISH and listens with one SUBSCRIBE per
// subscription. Redis pub/sub is fire-and-forget, which matches the
// best-effort contract of the channel.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

// DialRedis parses url, connects and pings.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return c, nil
}

func channelName(ref models.ConversationRef) string {
	return topicPrefix + ref.Topic()
}

func (r *Redis) Publish(ctx context.Context, ref models.ConversationRef, ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := r.rdb.Publish(ctx, channelName(ref), payload).Err(); err != nil {
		return chaterr.FromInfra(err, "publish event")
	}
	return nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	stop   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		err = s.pubsub.Close()
		metrics.ActiveSubscriptions.Dec()
	})
	return err
}

func (r *Redis) Subscribe(ctx context.Context, ref models.ConversationRef, h Handler) (Subscription, error) {
	pubsub := r.rdb.Subscribe(ctx, channelName(ref))

	// Wait for the subscription to be confirmed so no publish that follows
	// Subscribe is missed.
	confirmCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if _, err := pubsub.Receive(confirmCtx); err != nil {
		_ = pubsub.Close()
		return nil, chaterr.FromInfra(err, "subscribe")
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		stop:   make(chan struct{}),
	}
	metrics.ActiveSubscriptions.Inc()

	queue := NewQueue()
	go Pump(queue, sub.stop, h)
	go r.receive(logger.WithComponent(ctx, "comunidade.delivery.redis"), sub, ref, queue)

	return sub, nil
}

// receive decodes messages until the subscription or ctx ends. A dropped
// connection closes the go-redis channel; that is not reported as an error.
func (r *Redis) receive(ctx context.Context, sub *redisSubscription, ref models.ConversationRef, queue chan models.Event) {
	defer sub.Unsubscribe()

	ch := sub.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.stop:
			return
		case msg, ok := <-ch:
			if !ok {
				slog.DebugContext(ctx, "redis subscription closed", "channel", channelName(ref))
				return
			}
			var ev models.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				// Still a signal that something changed
				ev = models.Event{Conversation: ref}
			}
			Offer(queue, ev)
		}
	}
}
