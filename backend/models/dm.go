// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import (
	"errors"
	"time"
)

var (
	ErrSelfThread  = errors.New("a direct thread needs two distinct members")
	ErrEmptyMember = errors.New("member id is required")
)

// DirectPair is the unordered pair of members of a direct thread, stored in
// canonical order (Low < High by member id).
type DirectPair struct {
	Low  string `json:"low"`
	High string `json:"high"`
}

// NewDirectPair canonicalizes a and b. The result is the same for either
// argument order.
func NewDirectPair(a, b string) (DirectPair, error) {
	if a == "" || b == "" {
		return DirectPair{}, ErrEmptyMember
	}
	if a == b {
		return DirectPair{}, ErrSelfThread
	}
	if a > b {
		a, b = b, a
	}
	return DirectPair{Low: a, High: b}, nil
}

func (p DirectPair) Contains(memberID string) bool {
	return memberID != "" && (p.Low == memberID || p.High == memberID)
}

// Peer returns the other participant, or "" when memberID is not part of the pair.
func (p DirectPair) Peer(memberID string) string {
	switch memberID {
	case p.Low:
		return p.High
	case p.High:
		return p.Low
	}
	return ""
}

func (p DirectPair) Ref() ConversationRef {
	return DirectRef(p)
}

// ThreadHandle identifies a resolved direct thread.
type ThreadHandle struct {
	ID        int64      `json:"id" db:"id"`
	Pair      DirectPair `json:"pair"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

func (t ThreadHandle) Ref() ConversationRef {
	return DirectRef(t.Pair)
}
