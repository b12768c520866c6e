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

// Package identity carries the authenticated caller through a request.
package identity

import (
	"context"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/models"
)

// Provider answers who the caller is. Implementations treat the answer as a
// read-only, eventually consistent fact.
type Provider interface {
	CurrentMember(ctx context.Context) (models.Member, error)
	IsAdministrator(ctx context.Context) bool
}

type contextKey struct{}

// WithMember attaches the authenticated member to ctx.
func WithMember(ctx context.Context, m models.Member) context.Context {
	return context.WithValue(ctx, contextKey{}, m)
}

// MemberFrom returns the member attached by WithMember.
func MemberFrom(ctx context.Context) (models.Member, bool) {
	m, ok := ctx.Value(contextKey{}).(models.Member)
	return m, ok && m.ID != ""
}

// ContextProvider reads the caller from the request context.
type ContextProvider struct{}

func (ContextProvider) CurrentMember(ctx context.Context) (models.Member, error) {
	m, ok := MemberFrom(ctx)
	if !ok {
		return models.Member{}, chaterr.Permission("no authenticated member")
	}
	return m, nil
}

func (ContextProvider) IsAdministrator(ctx context.Context) bool {
	m, ok := MemberFrom(ctx)
	return ok && m.IsAdmin()
}

// Static always reports the same member. Client sessions use it.
type Static struct {
	Member models.Member
}

func (s Static) CurrentMember(context.Context) (models.Member, error) {
	if s.Member.ID == "" {
		return models.Member{}, chaterr.Permission("no authenticated member")
	}
	return s.Member, nil
}

func (s Static) IsAdministrator(context.Context) bool {
	return s.Member.IsAdmin()
}
