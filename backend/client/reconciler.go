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
	"github.com/emausjovem/comunidade/backend/logger"
	"github.com/emausjovem/comunidade/backend/metrics"
	"github.com/emausjovem/comunidade/backend/models"
)

const DefaultReconcileInterval = 12 * time.Second

// DirectorySnapshot is the result of one reconciliation pass.
type DirectorySnapshot struct {
	Groups  []models.Group
	Members []models.Member
	At      time.Time
}

// Group looks up a group in the snapshot.
func (s DirectorySnapshot) Group(id int64) (models.Group, bool) {
	for _, g := range s.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return models.Group{}, false
}

func (s DirectorySnapshot) DefaultGroup() (models.Group, bool) {
	for _, g := range s.Groups {
		if g.IsDefault {
			return g, true
		}
	}
	if len(s.Groups) > 0 {
		return s.Groups[0], true
	}
	return models.Group{}, false
}

type ReconcilerOptions struct {
	Interval   time.Duration
	OnSnapshot func(DirectorySnapshot)
}

// Reconciler periodically re-reads the directory and the open conversation so
// the member converges even when no push event ever arrives.
type Reconciler struct {
	dir  Directory
	view *View
	opts ReconcilerOptions

	mu   sync.RWMutex
	last DirectorySnapshot
}

// NewReconciler builds a reconciler; view may be nil.
func NewReconciler(dir Directory, view *View, opts ReconcilerOptions) *Reconciler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultReconcileInterval
	}
	return &Reconciler{dir: dir, view: view, opts: opts}
}

func (r *Reconciler) Last() DirectorySnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Fallback returns the default group of the last snapshot, for use as
// ViewOptions.Fallback.
func (r *Reconciler) Fallback() ActiveConversation {
	g, ok := r.Last().DefaultGroup()
	if !ok {
		return NoConversation
	}
	return GroupConversation(g.ID)
}

// Start runs the loop in the background. The returned stop function cancels
// it and waits for the running pass to finish.
func (r *Reconciler) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// Run reconciles once immediately and then on every tick until ctx ends.
func (r *Reconciler) Run(ctx context.Context) {
	ctx = logger.WithComponent(ctx, "comunidade.client.reconciler")
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		if err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			if chaterr.Retryable(err) {
				slog.WarnContext(ctx, "reconcile failed, retrying next tick", "error", err)
			} else {
				slog.ErrorContext(ctx, "reconcile failed", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single pass: groups and members, then the open
// conversation. A group that vanished from the list evicts the view.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	snap, err := r.readDirectory(ctx)
	if err != nil {
		metrics.ReconcileRuns.WithLabelValues(string(chaterr.KindOf(err))).Inc()
		return err
	}

	r.mu.Lock()
	r.last = snap
	r.mu.Unlock()
	if r.opts.OnSnapshot != nil {
		r.opts.OnSnapshot(snap)
	}

	if r.view != nil {
		epoch := r.view.Epoch()
		active := r.view.Active()
		if ref := active.Ref(); ref.Kind == models.KindGroup {
			if _, ok := snap.Group(ref.GroupID); !ok {
				r.view.Evict(ctx, epoch, chaterr.NotFound("group %d is gone", ref.GroupID))
			}
		}
		if err := r.view.Refresh(ctx); err != nil {
			metrics.ReconcileRuns.WithLabelValues(string(chaterr.KindOf(err))).Inc()
			if chaterr.Retryable(err) {
				return err
			}
			// Permission and not-found already moved the view
			return nil
		}
	}

	metrics.ReconcileRuns.WithLabelValues("ok").Inc()
	return nil
}

func (r *Reconciler) readDirectory(ctx context.Context) (DirectorySnapshot, error) {
	groups, err := r.dir.ListGroups(ctx)
	if err != nil {
		return DirectorySnapshot{}, err
	}
	members, err := r.dir.ListMembers(ctx)
	if err != nil {
		return DirectorySnapshot{}, err
	}
	return DirectorySnapshot{Groups: groups, Members: members, At: time.Now()}, nil
}
