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

// Package client holds the member-side state of the messaging core: which
// conversation is open, its message list, the periodic reconciliation pass
// and the composer state machine.
package client

import (
	"context"
	"errors"

	"github.com/emausjovem/comunidade/backend/models"
)

// Directory lists what the member can see. Implemented by directory.Service
// in process and by remote.Client over HTTP.
type Directory interface {
	ListGroups(ctx context.Context) ([]models.Group, error)
	ListMembers(ctx context.Context) ([]models.Member, error)
}

type Fetcher interface {
	FetchMessages(ctx context.Context, ref models.ConversationRef, limit int) ([]models.Message, error)
}

type Sender interface {
	AppendMessage(ctx context.Context, ref models.ConversationRef, senderID, body string) (models.Message, error)
}

// ActiveConversation names the conversation currently open in a view: none,
// a group or a direct thread. The zero value is none.
type ActiveConversation struct {
	ref models.ConversationRef
}

var NoConversation = ActiveConversation{}

func GroupConversation(id int64) ActiveConversation {
	return ActiveConversation{ref: models.GroupRef(id)}
}

func DirectConversation(pair models.DirectPair) ActiveConversation {
	return ActiveConversation{ref: models.DirectRef(pair)}
}

func Active(ref models.ConversationRef) ActiveConversation {
	return ActiveConversation{ref: ref}
}

func (a ActiveConversation) IsNone() bool {
	return a.ref.IsZero()
}

func (a ActiveConversation) Ref() models.ConversationRef {
	return a.ref
}

func (a ActiveConversation) String() string {
	if a.IsNone() {
		return "none"
	}
	return a.ref.String()
}

func (a ActiveConversation) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *ActiveConversation) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "" || s == "none" {
		*a = NoConversation
		return nil
	}
	ref, err := models.ParseConversationRef(s)
	if err != nil {
		return err
	}
	*a = Active(ref)
	return nil
}

var (
	ErrBusy           = errors.New("a message is already being sent")
	ErrNoConversation = errors.New("no conversation is open")
)
