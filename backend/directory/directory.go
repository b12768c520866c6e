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

// Package directory keeps the set of conversations a member can see: groups
// managed by administrators and direct threads keyed by member pairs.
package directory

import (
	"context"
	"log/slog"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/identity"
	"github.com/emausjovem/comunidade/backend/logger"
	"github.com/emausjovem/comunidade/backend/models"
	"github.com/emausjovem/comunidade/backend/storage"
)

// SystemMemberID is recorded as creator of groups made at bootstrap.
const SystemMemberID = "system"

// Store is the part of the persistence layer the directory needs.
type Store interface {
	storage.MemberStore
	storage.GroupStore
	storage.DirectStore
}

type Service struct {
	store    Store
	identity identity.Provider
}

func NewService(store Store, id identity.Provider) *Service {
	return &Service{store: store, identity: id}
}

func (s *Service) ctx(ctx context.Context, caller models.Member) context.Context {
	return logger.WithLogFields(ctx, logger.LogFields{
		Component: "comunidade.directory",
		MemberID:  caller.ID,
	})
}

func (s *Service) caller(ctx context.Context) (models.Member, error) {
	return s.identity.CurrentMember(ctx)
}

func (s *Service) admin(ctx context.Context, action string) (models.Member, error) {
	m, err := s.caller(ctx)
	if err != nil {
		return models.Member{}, err
	}
	if !s.identity.IsAdministrator(ctx) {
		return models.Member{}, chaterr.Permission("only administrators can %s", action)
	}
	return m, nil
}

// ListGroups returns the groups visible to the caller, oldest first.
func (s *Service) ListGroups(ctx context.Context) ([]models.Group, error) {
	return s.SearchGroups(ctx, "")
}

// SearchGroups is ListGroups filtered by a case-insensitive match on name or
// description. An empty query matches everything.
func (s *Service) SearchGroups(ctx context.Context, query string) ([]models.Group, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		return nil, err
	}

	isAdmin := s.identity.IsAdministrator(ctx)
	visible := make([]models.Group, 0, len(groups))
	for _, g := range groups {
		if !g.Matches(query) {
			continue
		}
		ok, err := s.canSee(ctx, caller, isAdmin, g)
		if err != nil {
			return nil, err
		}
		if ok {
			visible = append(visible, g)
		}
	}
	return visible, nil
}

func (s *Service) canSee(ctx context.Context, caller models.Member, isAdmin bool, g models.Group) (bool, error) {
	if g.Visibility != models.VisibilityPrivate || isAdmin {
		return true, nil
	}
	return s.store.IsGroupMember(ctx, g.ID, caller.ID)
}

// GetGroup returns a group the caller may see. A private group the caller
// has no access to is reported as a permission error.
func (s *Service) GetGroup(ctx context.Context, groupID int64) (models.Group, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return models.Group{}, err
	}
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	ok, err := s.canSee(ctx, caller, s.identity.IsAdministrator(ctx), g)
	if err != nil {
		return models.Group{}, err
	}
	if !ok {
		return models.Group{}, chaterr.Permission("no access to group %d", groupID)
	}
	return g, nil
}

func (s *Service) ListMembers(ctx context.Context) ([]models.Member, error) {
	if _, err := s.caller(ctx); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx)
}

func (s *Service) CreateGroup(ctx context.Context, in models.GroupInput) (models.Group, error) {
	caller, err := s.admin(ctx, "create groups")
	if err != nil {
		return models.Group{}, err
	}
	in, err = NormalizeGroupInput(in)
	if err != nil {
		return models.Group{}, err
	}

	g, err := s.store.CreateGroup(ctx, in, caller.ID, false)
	if err != nil {
		return models.Group{}, err
	}
	slog.InfoContext(s.ctx(ctx, caller), "group created", "group_id", g.ID, "name", g.Name, "visibility", g.Visibility)
	return g, nil
}

func (s *Service) UpdateGroup(ctx context.Context, groupID int64, in models.GroupInput) (models.Group, error) {
	caller, err := s.admin(ctx, "edit groups")
	if err != nil {
		return models.Group{}, err
	}
	in, err = NormalizeGroupInput(in)
	if err != nil {
		return models.Group{}, err
	}

	current, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	if current.IsDefault && in.Visibility == models.VisibilityPrivate {
		return models.Group{}, chaterr.Validation("the default group must stay public")
	}

	g, err := s.store.UpdateGroup(ctx, groupID, in)
	if err != nil {
		return models.Group{}, err
	}
	slog.InfoContext(s.ctx(ctx, caller), "group updated", "group_id", g.ID)
	return g, nil
}

// DeleteGroup removes a group and its whole history. The default group is
// never deleted.
func (s *Service) DeleteGroup(ctx context.Context, groupID int64) error {
	caller, err := s.admin(ctx, "delete groups")
	if err != nil {
		return err
	}

	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if g.IsDefault {
		return chaterr.Permission("the default group cannot be deleted")
	}

	if err := s.store.DeleteGroup(ctx, groupID); err != nil {
		return err
	}
	slog.InfoContext(s.ctx(ctx, caller), "group deleted", "group_id", groupID)
	return nil
}

// GrantAccess lets memberID read and write in a private group.
func (s *Service) GrantAccess(ctx context.Context, groupID int64, memberID string) error {
	caller, err := s.admin(ctx, "manage group access")
	if err != nil {
		return err
	}
	if memberID == "" {
		return chaterr.Validation("member id is required")
	}
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if g.Visibility != models.VisibilityPrivate {
		return chaterr.Validation("group %d is public", groupID)
	}
	if _, err := s.store.GetMember(ctx, memberID); err != nil {
		return err
	}
	if err := s.store.AddGroupMember(ctx, groupID, memberID); err != nil {
		return err
	}
	slog.InfoContext(s.ctx(ctx, caller), "group access granted", "group_id", groupID, "grantee", memberID)
	return nil
}

func (s *Service) RevokeAccess(ctx context.Context, groupID int64, memberID string) error {
	caller, err := s.admin(ctx, "manage group access")
	if err != nil {
		return err
	}
	if err := s.store.RemoveGroupMember(ctx, groupID, memberID); err != nil {
		return err
	}
	slog.InfoContext(s.ctx(ctx, caller), "group access revoked", "group_id", groupID, "grantee", memberID)
	return nil
}

// GroupAccess lists the members granted access to a private group.
func (s *Service) GroupAccess(ctx context.Context, groupID int64) ([]string, error) {
	if _, err := s.admin(ctx, "manage group access"); err != nil {
		return nil, err
	}
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.store.GetGroupMembers(ctx, groupID)
}

// ResolveDirectThread returns the single thread shared by a and b, creating
// it on first use. Argument order does not matter. The caller must be one of
// the two members.
func (s *Service) ResolveDirectThread(ctx context.Context, a, b string) (models.ThreadHandle, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return models.ThreadHandle{}, err
	}
	pair, err := models.NewDirectPair(a, b)
	if err != nil {
		return models.ThreadHandle{}, chaterr.Validation("%s", err.Error())
	}
	if !pair.Contains(caller.ID) {
		return models.ThreadHandle{}, chaterr.Permission("cannot open a direct thread for other members")
	}
	if _, err := s.store.GetMember(ctx, pair.Peer(caller.ID)); err != nil {
		return models.ThreadHandle{}, err
	}
	return s.store.ResolveDirectThread(ctx, pair)
}

// ListDirectThreads returns the caller's threads, most recently active first.
func (s *Service) ListDirectThreads(ctx context.Context) ([]models.ThreadHandle, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.ListDirectThreads(ctx, caller.ID)
}

// ClearDirectThread deletes the history of a thread. Participants and
// administrators may do this; the thread itself stays.
func (s *Service) ClearDirectThread(ctx context.Context, pair models.DirectPair) (int64, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return 0, err
	}
	if !pair.Contains(caller.ID) && !s.identity.IsAdministrator(ctx) {
		return 0, chaterr.Permission("not a participant of this thread")
	}
	n, err := s.store.ClearDirectThread(ctx, pair)
	if err != nil {
		return 0, err
	}
	slog.InfoContext(s.ctx(ctx, caller), "direct thread cleared", "conversation", pair.Ref().String(), "deleted", n)
	return n, nil
}

// EnsureDefaultGroup makes sure the public group every member lands in
// exists. It runs without a caller at startup.
func (s *Service) EnsureDefaultGroup(ctx context.Context, name string) (models.Group, error) {
	g, err := s.store.DefaultGroup(ctx)
	if err == nil {
		return g, nil
	}
	if chaterr.KindOf(err) != chaterr.KindNotFound {
		return models.Group{}, err
	}

	in, err := NormalizeGroupInput(models.GroupInput{
		Name:        name,
		Description: "Grupo geral da comunidade",
		Visibility:  models.VisibilityPublic,
	})
	if err != nil {
		return models.Group{}, err
	}

	g, err = s.store.CreateGroup(ctx, in, SystemMemberID, true)
	if err != nil {
		// Another instance won the race
		if existing, lookupErr := s.store.DefaultGroup(ctx); lookupErr == nil {
			return existing, nil
		}
		return models.Group{}, err
	}
	slog.InfoContext(logger.WithComponent(ctx, "comunidade.directory"), "default group created", "group_id", g.ID, "name", g.Name)
	return g, nil
}
