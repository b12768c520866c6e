// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package delivery notifies subscribers that a conversation has new messages.
// Delivery is at-least-once and best effort: handlers must re-fetch rather
// than trust an event, and callers must not depend on any event arriving.
package delivery

import (
	"context"

	"github.com/emausjovem/comunidade/backend/models"
)

// Handler reacts to an event. Calls for one subscription never overlap.
type Handler func(models.Event)

type Subscription interface {
	// Unsubscribe stops delivery. It is safe to call more than once and after
	// the underlying connection has dropped.
	Unsubscribe() error
}

type Channel interface {
	// Subscribe delivers events for ref to h until the subscription is
	// cancelled or ctx ends.
	Subscribe(ctx context.Context, ref models.ConversationRef, h Handler) (Subscription, error)
}

type Publisher interface {
	Publish(ctx context.Context, ref models.ConversationRef, ev models.Event) error
}

// Broker both publishes and subscribes.
type Broker interface {
	Channel
	Publisher
}

// QueueSize bounds pending events per subscription.
const QueueSize = 16

// NewQueue returns an event queue for one subscription.
func NewQueue() chan models.Event {
	return make(chan models.Event, QueueSize)
}

// Pump feeds events from queue to h until stop closes. Running one Pump per
// subscription keeps handler calls from overlapping.
func Pump(queue <-chan models.Event, stop <-chan struct{}, h Handler) {
	for {
		select {
		case <-stop:
			return
		case ev := <-queue:
			h(ev)
		}
	}
}

// Offer enqueues ev without blocking. A full queue already holds an event
// that will trigger the same re-fetch, so ev is dropped.
func Offer(queue chan models.Event, ev models.Event) bool {
	select {
	case queue <- ev:
		return true
	default:
		return false
	}
}
