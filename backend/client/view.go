// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/delivery"
	"github.com/emausjovem/comunidade/backend/logger"
	"github.com/emausjovem/comunidade/backend/models"
)

const defaultRefreshTimeout = 10 * time.Second

// Snapshot is what a view shows at one point in time.
type Snapshot struct {
	Active   ActiveConversation
	Epoch    uint64
	Messages []models.Message
}

type ViewOptions struct {
	// Limit is passed to FetchMessages; zero means the server default.
	Limit int
	// Fallback picks the conversation to land in after an eviction. It runs
	// with the view locked and must not call back into it.
	Fallback func() ActiveConversation
	// OnEvict reports that the view was forced out of a conversation.
	OnEvict func(from, to ActiveConversation, cause error)
	// OnChange receives snapshots in the order the view applied them; one
	// that was overtaken by a newer one is skipped. Calls never overlap and
	// must not call back into the view's Open, Close or Refresh.
	OnChange func(Snapshot)

	RefreshTimeout time.Duration
}

// View binds the open conversation to its delivery subscription and keeps
// its message list. Every trigger (delivery event, reconciliation, a sent
// message, a switch) converges on Refresh, which re-reads the store.
type View struct {
	fetcher Fetcher
	channel delivery.Channel
	opts    ViewOptions

	mu       sync.Mutex
	lifetime context.Context
	active   ActiveConversation
	epoch    uint64
	sub      delivery.Subscription
	messages []models.Message
	applied  uint64 // bumped on every state change, guarded by mu

	notifyMu sync.Mutex
	notified uint64
}

func NewView(fetcher Fetcher, channel delivery.Channel, opts ViewOptions) *View {
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = defaultRefreshTimeout
	}
	return &View{
		fetcher:  fetcher,
		channel:  channel,
		opts:     opts,
		lifetime: context.Background(),
	}
}

func (v *View) Active() ActiveConversation {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *View) snapshotLocked() Snapshot {
	msgs := make([]models.Message, len(v.messages))
	copy(msgs, v.messages)
	return Snapshot{Active: v.active, Epoch: v.epoch, Messages: msgs}
}

// Open switches the view to next and loads its first page. ctx bounds the
// lifetime of the delivery subscription, not only this call.
func (v *View) Open(ctx context.Context, next ActiveConversation) error {
	epoch := v.Transition(ctx, next)
	if next.IsNone() {
		return nil
	}
	return v.refresh(ctx, epoch)
}

// Close leaves the current conversation and drops its subscription.
func (v *View) Close() {
	v.Transition(context.Background(), NoConversation)
}

// Transition is the only place the open conversation changes. The previous
// subscription is cancelled before the next one is made, and events from a
// subscription that outlived its epoch are ignored.
func (v *View) Transition(ctx context.Context, next ActiveConversation) uint64 {
	v.mu.Lock()
	epoch, prev, snap, seq := v.swapLocked(ctx, next)
	v.mu.Unlock()

	v.subscribe(ctx, epoch, prev, snap, seq)
	return epoch
}

func (v *View) swapLocked(ctx context.Context, next ActiveConversation) (uint64, delivery.Subscription, Snapshot, uint64) {
	prev := v.sub
	v.sub = nil
	v.active = next
	v.epoch++
	v.messages = nil
	v.lifetime = ctx
	v.applied++
	return v.epoch, prev, v.snapshotLocked(), v.applied
}

func (v *View) subscribe(ctx context.Context, epoch uint64, prev delivery.Subscription, snap Snapshot, seq uint64) {
	if prev != nil {
		_ = prev.Unsubscribe()
	}
	v.notify(snap, seq)
	if snap.Active.IsNone() || v.channel == nil {
		return
	}

	sub, err := v.channel.Subscribe(ctx, snap.Active.Ref(), func(models.Event) {
		v.onEvent(epoch)
	})
	if err != nil {
		// Polling still converges the view without push
		slog.WarnContext(v.logCtx(ctx, snap.Active), "subscribe failed", "error", err)
		return
	}

	v.mu.Lock()
	if v.epoch != epoch {
		v.mu.Unlock()
		_ = sub.Unsubscribe()
		return
	}
	v.sub = sub
	v.mu.Unlock()
}

func (v *View) onEvent(epoch uint64) {
	v.mu.Lock()
	ctx := v.lifetime
	current := v.epoch
	v.mu.Unlock()
	if current != epoch {
		return
	}
	if err := v.refresh(ctx, epoch); err != nil {
		slog.DebugContext(ctx, "refresh after event failed", "error", err)
	}
}

// Refresh re-reads the open conversation. Transient failures leave the
// current list in place and are returned; permission and not-found errors
// evict the view.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	epoch := v.epoch
	v.mu.Unlock()
	return v.refresh(ctx, epoch)
}

func (v *View) refresh(ctx context.Context, epoch uint64) error {
	v.mu.Lock()
	if v.epoch != epoch || v.active.IsNone() {
		v.mu.Unlock()
		return nil
	}
	active := v.active
	v.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, v.opts.RefreshTimeout)
	defer cancel()
	msgs, err := v.fetcher.FetchMessages(fetchCtx, active.Ref(), v.opts.Limit)
	if err != nil {
		switch chaterr.KindOf(err) {
		case chaterr.KindPermission, chaterr.KindNotFound:
			v.Evict(ctx, epoch, err)
		}
		return err
	}

	v.mu.Lock()
	if v.epoch != epoch {
		// Switched away while fetching
		v.mu.Unlock()
		return nil
	}
	v.messages = msgs
	v.applied++
	snap, seq := v.snapshotLocked(), v.applied
	v.mu.Unlock()

	v.notify(snap, seq)
	return nil
}

// Evict forces the view out of the conversation opened at epoch and into the
// fallback. It is a no-op if the view has already moved on.
func (v *View) Evict(ctx context.Context, epoch uint64, cause error) {
	v.mu.Lock()
	if v.epoch != epoch {
		v.mu.Unlock()
		return
	}
	from := v.active
	to := NoConversation
	if v.opts.Fallback != nil {
		to = v.opts.Fallback()
	}
	if to == from {
		to = NoConversation
	}
	lifetime := v.lifetime
	next, prev, snap, seq := v.swapLocked(lifetime, to)
	v.mu.Unlock()

	slog.InfoContext(v.logCtx(ctx, from), "leaving conversation", "reason", cause, "fallback", to.String())
	v.subscribe(lifetime, next, prev, snap, seq)
	if v.opts.OnEvict != nil {
		v.opts.OnEvict(from, to, cause)
	}
	if !to.IsNone() {
		// A fallback that fails too lands in none
		_ = v.refresh(ctx, next)
	}
}

// Epoch identifies the current open conversation instance.
func (v *View) Epoch() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.epoch
}

// notify delivers s unless a snapshot applied after it was delivered first.
func (v *View) notify(s Snapshot, seq uint64) {
	if v.opts.OnChange == nil {
		return
	}
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()
	if seq <= v.notified {
		return
	}
	v.notified = seq
	v.opts.OnChange(s)
}

func (v *View) logCtx(ctx context.Context, a ActiveConversation) context.Context {
	return logger.WithLogFields(ctx, logger.LogFields{
		Component:    "comunidade.client.view",
		Conversation: a.String(),
	})
}
