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

package models

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type ConversationKind string

const (
	KindNone   ConversationKind = ""
	KindGroup  ConversationKind = "group"
	KindDirect ConversationKind = "direct"
)

// ConversationRef addresses either a group (by id) or a direct thread (by its
// member pair). The zero value addresses nothing.
type ConversationRef struct {
	Kind    ConversationKind `json:"kind"`
	GroupID int64            `json:"group_id,omitempty"`
	Pair    DirectPair       `json:"pair,omitempty"`
}

func GroupRef(id int64) ConversationRef {
	return ConversationRef{Kind: KindGroup, GroupID: id}
}

func DirectRef(pair DirectPair) ConversationRef {
	return ConversationRef{Kind: KindDirect, Pair: pair}
}

func (r ConversationRef) IsZero() bool {
	return r.Kind == KindNone
}

// String renders the ref as "group:<id>" or "direct:<low>:<high>" with member
// ids query-escaped. ParseConversationRef reverses it.
func (r ConversationRef) String() string {
	switch r.Kind {
	case KindGroup:
		return "group:" + strconv.FormatInt(r.GroupID, 10)
	case KindDirect:
		return "direct:" + url.QueryEscape(r.Pair.Low) + ":" + url.QueryEscape(r.Pair.High)
	}
	return ""
}

// Topic is the delivery channel topic for the conversation.
func (r ConversationRef) Topic() string {
	return "conv:" + r.String()
}

func ParseConversationRef(s string) (ConversationRef, error) {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok {
		return ConversationRef{}, fmt.Errorf("invalid conversation ref %q", s)
	}
	switch ConversationKind(kind) {
	case KindGroup:
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || id <= 0 {
			return ConversationRef{}, fmt.Errorf("invalid group id in %q", s)
		}
		return GroupRef(id), nil
	case KindDirect:
		a, b, ok := strings.Cut(rest, ":")
		if !ok {
			return ConversationRef{}, fmt.Errorf("invalid direct ref %q", s)
		}
		low, err := url.QueryUnescape(a)
		if err != nil {
			return ConversationRef{}, fmt.Errorf("invalid direct ref %q: %w", s, err)
		}
		high, err := url.QueryUnescape(b)
		if err != nil {
			return ConversationRef{}, fmt.Errorf("invalid direct ref %q: %w", s, err)
		}
		pair, err := NewDirectPair(low, high)
		if err != nil {
			return ConversationRef{}, fmt.Errorf("invalid direct ref %q: %w", s, err)
		}
		return DirectRef(pair), nil
	}
	return ConversationRef{}, fmt.Errorf("unknown conversation kind %q", kind)
}

// Conversation is a group or a direct thread. Exactly one of Group and
// Thread is set, matching Kind.
type Conversation struct {
	Kind   ConversationKind `json:"kind"`
	Group  *Group           `json:"group,omitempty"`
	Thread *ThreadHandle    `json:"thread,omitempty"`
}

func GroupConversation(g Group) Conversation {
	return Conversation{Kind: KindGroup, Group: &g}
}

func DirectConversation(t ThreadHandle) Conversation {
	return Conversation{Kind: KindDirect, Thread: &t}
}

func (c Conversation) Ref() ConversationRef {
	switch c.Kind {
	case KindGroup:
		return c.Group.Ref()
	case KindDirect:
		return c.Thread.Ref()
	}
	return ConversationRef{}
}

// Message is immutable once stored. CreatedAt comes from the store clock.
type Message struct {
	ID           int64           `json:"id" db:"id"`
	Conversation ConversationRef `json:"conversation"`
	SenderID     string          `json:"sender_id" db:"sender_id"`
	Body         string          `json:"body" db:"body"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// Less orders messages by (CreatedAt, ID).
func (m Message) Less(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// Event signals that a conversation has new messages. It is a hint only:
// receivers re-fetch instead of trusting it.
type Event struct {
	Conversation ConversationRef `json:"conversation"`
	MessageID    int64           `json:"message_id,omitempty"`
}
