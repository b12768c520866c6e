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

package storage

import (
	"context"

	"github.com/emausjovem/comunidade/backend/models"
)

// MemberStore mirrors the identity provider's members so they can be listed.
type MemberStore interface {
	UpsertMember(ctx context.Context, m models.Member) error
	GetMember(ctx context.Context, memberID string) (models.Member, error)
	ListMembers(ctx context.Context) ([]models.Member, error)
}

type GroupStore interface {
	CreateGroup(ctx context.Context, in models.GroupInput, creatorID string, isDefault bool) (models.Group, error)
	UpdateGroup(ctx context.Context, groupID int64, in models.GroupInput) (models.Group, error)
	// DeleteGroup removes the group and every message in it in one step.
	DeleteGroup(ctx context.Context, groupID int64) error
	GetGroup(ctx context.Context, groupID int64) (models.Group, error)
	// ListGroups returns every group ordered by (created_at, id).
	ListGroups(ctx context.Context) ([]models.Group, error)
	DefaultGroup(ctx context.Context) (models.Group, error)

	AddGroupMember(ctx context.Context, groupID int64, memberID string) error
	RemoveGroupMember(ctx context.Context, groupID int64, memberID string) error
	GetGroupMembers(ctx context.Context, groupID int64) ([]string, error)
	IsGroupMember(ctx context.Context, groupID int64, memberID string) (bool, error)
}

type DirectStore interface {
	// ResolveDirectThread returns the thread for pair, creating it when absent.
	ResolveDirectThread(ctx context.Context, pair models.DirectPair) (models.ThreadHandle, error)
	FindDirectThread(ctx context.Context, pair models.DirectPair) (models.ThreadHandle, error)
	ListDirectThreads(ctx context.Context, memberID string) ([]models.ThreadHandle, error)
	// ClearDirectThread deletes the thread's messages and reports how many went.
	ClearDirectThread(ctx context.Context, pair models.DirectPair) (int64, error)
}

type MessageStore interface {
	// AppendMessage stores body in ref with a store-assigned id and timestamp.
	// It fails with chaterr.ErrNotFound when the conversation does not exist
	// at commit time.
	AppendMessage(ctx context.Context, ref models.ConversationRef, senderID, body string) (models.Message, error)
	// FetchMessages returns up to limit most recent messages, oldest first.
	FetchMessages(ctx context.Context, ref models.ConversationRef, limit int) ([]models.Message, error)
}

type Store interface {
	MemberStore
	GroupStore
	DirectStore
	MessageStore
	Ping(ctx context.Context) error
}
