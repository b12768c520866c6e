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
	"strings"
	"sync"
	"unicode"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/logger"
	"github.com/emausjovem/comunidade/backend/models"
)

type ComposerState int

const (
	Composing ComposerState = iota
	Submitting
	Confirmed
	Failed
)

func (s ComposerState) String() string {
	switch s {
	case Composing:
		return "composing"
	case Submitting:
		return "submitting"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Refresher re-reads the open conversation after a confirmed send.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Composer holds one member's outgoing text and sends it at most one message
// at a time. It knows the store only through Sender.
type Composer struct {
	sender    Sender
	refresher Refresher
	memberID  string
	target    func() ActiveConversation

	// OnState is called after every state change.
	OnState func(ComposerState)

	mu      sync.Mutex
	state   ComposerState
	input   string
	lastErr error
}

// NewComposer sends as memberID into whatever target returns at submit time.
func NewComposer(sender Sender, refresher Refresher, memberID string, target func() ActiveConversation) *Composer {
	return &Composer{
		sender:    sender,
		refresher: refresher,
		memberID:  memberID,
		target:    target,
	}
}

// ComposerForView sends into the view's open conversation and refreshes it.
func ComposerForView(sender Sender, view *View, memberID string) *Composer {
	return NewComposer(sender, view, memberID, view.Active)
}

func (c *Composer) State() ComposerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Composer) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// Err is the reason of the last failed submission.
func (c *Composer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Composer) FailureKind() chaterr.Kind {
	return chaterr.KindOf(c.Err())
}

// SetInput replaces the text being composed. Typing after a confirmed or
// failed send starts a new message.
func (c *Composer) SetInput(text string) {
	c.mu.Lock()
	c.input = text
	changed := c.state == Confirmed || c.state == Failed
	if changed {
		c.state = Composing
		c.lastErr = nil
	}
	c.mu.Unlock()
	if changed {
		c.emit(Composing)
	}
}

// Submit sends the current input. Blank input is ignored and returns the zero
// Message. While a send is in flight further submits fail with ErrBusy.
func (c *Composer) Submit(ctx context.Context) (models.Message, error) {
	c.mu.Lock()
	if c.state == Submitting {
		c.mu.Unlock()
		return models.Message{}, ErrBusy
	}
	text := c.input
	if strings.TrimSpace(text) == "" {
		c.mu.Unlock()
		return models.Message{}, nil
	}
	target := c.target()
	if target.IsNone() {
		c.mu.Unlock()
		return models.Message{}, ErrNoConversation
	}
	c.input = ""
	c.state = Submitting
	c.lastErr = nil
	c.mu.Unlock()
	c.emit(Submitting)

	msg, err := c.sender.AppendMessage(ctx, target.Ref(), c.memberID, text)
	if err != nil {
		c.fail(text, err)
		return models.Message{}, err
	}

	c.mu.Lock()
	c.state = Confirmed
	c.mu.Unlock()
	c.emit(Confirmed)

	if c.refresher != nil {
		if rerr := c.refresher.Refresh(ctx); rerr != nil {
			slog.DebugContext(logger.WithComponent(ctx, "comunidade.client.composer"),
				"refresh after send failed", "error", rerr)
		}
	}
	return msg, nil
}

func (c *Composer) fail(text string, err error) {
	c.mu.Lock()
	// Keep anything typed while the send was in flight after the original
	c.input = joinDraft(text, c.input)
	c.state = Failed
	c.lastErr = err
	c.mu.Unlock()
	c.emit(Failed)
}

// joinDraft puts a space between the two parts unless one of them already
// supplies the break.
func joinDraft(restored, typed string) string {
	switch {
	case typed == "":
		return restored
	case strings.TrimRightFunc(restored, unicode.IsSpace) != restored,
		strings.TrimLeftFunc(typed, unicode.IsSpace) != typed:
		return restored + typed
	}
	return restored + " " + typed
}

func (c *Composer) emit(s ComposerState) {
	if c.OnState != nil {
		c.OnState(s)
	}
}
