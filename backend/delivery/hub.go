// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package delivery

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/metrics"
	"github.com/emausjovem/comunidade/backend/models"
)

var _ Broker = (*Hub)(nil)

// Hub is an in-process broker for single-node deployments and tests.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[string]*hubSubscription // topic -> subscription id -> sub
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[string]*hubSubscription)}
}

type hubSubscription struct {
	id    string
	topic string
	hub   *Hub
	queue chan models.Event
	stop  chan struct{}
	once  sync.Once
}

func (s *hubSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.stop)
		metrics.ActiveSubscriptions.Dec()
	})
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, ref models.ConversationRef, handler Handler) (Subscription, error) {
	sub := &hubSubscription{
		id:    uuid.NewString(),
		topic: ref.Topic(),
		hub:   h,
		queue: NewQueue(),
		stop:  make(chan struct{}),
	}

	h.mu.Lock()
	subs := h.topics[sub.topic]
	if subs == nil {
		subs = make(map[string]*hubSubscription)
		h.topics[sub.topic] = subs
	}
	subs[sub.id] = sub
	h.mu.Unlock()
	metrics.ActiveSubscriptions.Inc()

	go Pump(sub.queue, sub.stop, handler)
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Unsubscribe()
		case <-sub.stop:
		}
	}()

	return sub, nil
}

func (h *Hub) Publish(ctx context.Context, ref models.ConversationRef, ev models.Event) error {
	if err := ctx.Err(); err != nil {
		return chaterr.FromInfra(err, "publish")
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.topics[ref.Topic()] {
		Offer(sub.queue, ev)
	}
	return nil
}

// Subscribers reports how many subscriptions are open for ref.
func (h *Hub) Subscribers(ref models.ConversationRef) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[ref.Topic()])
}

func (h *Hub) remove(sub *hubSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.topics[sub.topic]
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(h.topics, sub.topic)
	}
}
