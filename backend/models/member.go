// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Member is an authenticated participant as reported by the identity provider.
type Member struct {
	ID        string `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	AvatarURL string `json:"avatar_url,omitempty" db:"avatar_url"`
	Role      Role   `json:"role" db:"role"`
}

func (m Member) IsAdmin() bool {
	return m.Role == RoleAdmin
}
