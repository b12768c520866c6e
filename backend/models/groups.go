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
	"strings"
	"time"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// DefaultIcon is used when a group is created without an icon tag.
const DefaultIcon = "fa-users"

// Group is an administrator-managed, many-member conversation.
type Group struct {
	ID          int64      `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	Description string     `json:"description" db:"description"`
	Icon        string     `json:"icon" db:"icon"`
	Visibility  Visibility `json:"visibility" db:"visibility"`
	IsDefault   bool       `json:"is_default" db:"is_default"`
	CreatedBy   string     `json:"created_by" db:"created_by"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Ref addresses the group as a conversation.
func (g Group) Ref() ConversationRef {
	return GroupRef(g.ID)
}

// Matches reports whether query appears in the name or description, ignoring case.
func (g Group) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(g.Name), q) ||
		strings.Contains(strings.ToLower(g.Description), q)
}

// GroupInput carries the mutable attributes of a group.
type GroupInput struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	Visibility  Visibility `json:"visibility"`
}

// GroupMember grants a member access to a private group.
type GroupMember struct {
	GroupID  int64     `json:"group_id" db:"group_id"`
	MemberID string    `json:"member_id" db:"member_id"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}
