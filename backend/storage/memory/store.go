// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package memory is an in-process Store used for development and tests.
// A single mutex serializes mutations, so a group deletion and an append to
// the same group can never interleave.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/models"
	"github.com/emausjovem/comunidade/backend/storage"
)

var _ storage.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	now func() time.Time

	members map[string]models.Member
	groups  map[int64]models.Group
	grants  map[int64]map[string]time.Time // group -> member -> joined
	threads map[models.DirectPair]models.ThreadHandle
	log     map[models.ConversationRef][]models.Message

	nextGroupID   int64
	nextThreadID  int64
	nextMessageID int64
}

type Option func(*Store)

// WithClock replaces time.Now as the store clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		now:     time.Now,
		members: map[string]models.Member{},
		groups:  map[int64]models.Group{},
		grants:  map[int64]map[string]time.Time{},
		threads: map[models.DirectPair]models.ThreadHandle{},
		log:     map[models.ConversationRef][]models.Message{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func alive(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return chaterr.Transient(err, "%s", op)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return alive(ctx, "ping")
}

// --- Members ----------------------------------------------------------------

func (s *Store) UpsertMember(ctx context.Context, m models.Member) error {
	if err := alive(ctx, "upsert member"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ID] = m
	return nil
}

func (s *Store) GetMember(ctx context.Context, memberID string) (models.Member, error) {
	if err := alive(ctx, "get member"); err != nil {
		return models.Member{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[memberID]
	if !ok {
		return models.Member{}, chaterr.NotFound("member %q not found", memberID)
	}
	return m, nil
}

func (s *Store) ListMembers(ctx context.Context) ([]models.Member, error) {
	if err := alive(ctx, "list members"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]models.Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// --- Groups -----------------------------------------------------------------

func (s *Store) CreateGroup(ctx context.Context, in models.GroupInput, creatorID string, isDefault bool) (models.Group, error) {
	if err := alive(ctx, "create group"); err != nil {
		return models.Group{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if isDefault {
		for _, g := range s.groups {
			if g.IsDefault {
				return models.Group{}, chaterr.Validation("a default group already exists")
			}
		}
	}

	s.nextGroupID++
	now := s.now()
	g := models.Group{
		ID:          s.nextGroupID,
		Name:        in.Name,
		Description: in.Description,
		Icon:        in.Icon,
		Visibility:  in.Visibility,
		IsDefault:   isDefault,
		CreatedBy:   creatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.groups[g.ID] = g
	s.grants[g.ID] = map[string]time.Time{}
	if in.Visibility == models.VisibilityPrivate {
		s.grants[g.ID][creatorID] = now
	}
	return g, nil
}

func (s *Store) UpdateGroup(ctx context.Context, groupID int64, in models.GroupInput) (models.Group, error) {
	if err := alive(ctx, "update group"); err != nil {
		return models.Group{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return models.Group{}, chaterr.NotFound("group %d not found", groupID)
	}
	g.Name, g.Description, g.Icon, g.Visibility = in.Name, in.Description, in.Icon, in.Visibility
	g.UpdatedAt = s.now()
	s.groups[groupID] = g
	return g, nil
}

func (s *Store) DeleteGroup(ctx context.Context, groupID int64) error {
	if err := alive(ctx, "delete group"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[groupID]; !ok {
		return chaterr.NotFound("group %d not found", groupID)
	}
	delete(s.groups, groupID)
	delete(s.grants, groupID)
	delete(s.log, models.GroupRef(groupID))
	return nil
}

func (s *Store) GetGroup(ctx context.Context, groupID int64) (models.Group, error) {
	if err := alive(ctx, "get group"); err != nil {
		return models.Group{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return models.Group{}, chaterr.NotFound("group %d not found", groupID)
	}
	return g, nil
}

func (s *Store) DefaultGroup(ctx context.Context) (models.Group, error) {
	if err := alive(ctx, "default group"); err != nil {
		return models.Group{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g.IsDefault {
			return g, nil
		}
	}
	return models.Group{}, chaterr.NotFound("no default group")
}

func (s *Store) ListGroups(ctx context.Context) ([]models.Group, error) {
	if err := alive(ctx, "list groups"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]models.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) AddGroupMember(ctx context.Context, groupID int64, memberID string) error {
	if err := alive(ctx, "add group member"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	grants, ok := s.grants[groupID]
	if !ok {
		return chaterr.NotFound("group %d not found", groupID)
	}
	if _, ok := grants[memberID]; !ok {
		grants[memberID] = s.now()
	}
	return nil
}

func (s *Store) RemoveGroupMember(ctx context.Context, groupID int64, memberID string) error {
	if err := alive(ctx, "remove group member"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	grants, ok := s.grants[groupID]
	if !ok {
		return chaterr.NotFound("group %d not found", groupID)
	}
	delete(grants, memberID)
	return nil
}

func (s *Store) GetGroupMembers(ctx context.Context, groupID int64) ([]string, error) {
	if err := alive(ctx, "get group members"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.grants[groupID]))
	for memberID := range s.grants[groupID] {
		out = append(out, memberID)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) IsGroupMember(ctx context.Context, groupID int64, memberID string) (bool, error) {
	if err := alive(ctx, "is group member"); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.grants[groupID][memberID]
	return ok, nil
}

// --- Direct threads ---------------------------------------------------------

func (s *Store) ResolveDirectThread(ctx context.Context, pair models.DirectPair) (models.ThreadHandle, error) {
	if err := alive(ctx, "resolve direct thread"); err != nil {
		return models.ThreadHandle{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.threads[pair]; ok {
		return t, nil
	}
	s.nextThreadID++
	t := models.ThreadHandle{ID: s.nextThreadID, Pair: pair, CreatedAt: s.now()}
	s.threads[pair] = t
	return t, nil
}

func (s *Store) FindDirectThread(ctx context.Context, pair models.DirectPair) (models.ThreadHandle, error) {
	if err := alive(ctx, "find direct thread"); err != nil {
		return models.ThreadHandle{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[pair]
	if !ok {
		return models.ThreadHandle{}, chaterr.NotFound("direct thread not found")
	}
	return t, nil
}

func (s *Store) ListDirectThreads(ctx context.Context, memberID string) ([]models.ThreadHandle, error) {
	if err := alive(ctx, "list direct threads"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	type entry struct {
		thread models.ThreadHandle
		last   time.Time
	}
	var entries []entry
	for pair, t := range s.threads {
		if !pair.Contains(memberID) {
			continue
		}
		last := t.CreatedAt
		if msgs := s.log[pair.Ref()]; len(msgs) > 0 {
			last = msgs[len(msgs)-1].CreatedAt
		}
		entries = append(entries, entry{thread: t, last: last})
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].last.Equal(entries[j].last) {
			return entries[i].last.After(entries[j].last)
		}
		return entries[i].thread.ID > entries[j].thread.ID
	})
	out := make([]models.ThreadHandle, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.thread)
	}
	return out, nil
}

func (s *Store) ClearDirectThread(ctx context.Context, pair models.DirectPair) (int64, error) {
	if err := alive(ctx, "clear direct thread"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[pair]; !ok {
		return 0, chaterr.NotFound("direct thread not found")
	}
	n := int64(len(s.log[pair.Ref()]))
	delete(s.log, pair.Ref())
	return n, nil
}

// --- Messages ---------------------------------------------------------------

func (s *Store) existsLocked(ref models.ConversationRef) error {
	switch ref.Kind {
	case models.KindGroup:
		if _, ok := s.groups[ref.GroupID]; !ok {
			return chaterr.NotFound("group %d not found", ref.GroupID)
		}
	case models.KindDirect:
		if _, ok := s.threads[ref.Pair]; !ok {
			return chaterr.NotFound("direct thread not found")
		}
	default:
		return chaterr.Validation("unknown conversation %q", ref.Kind)
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, ref models.ConversationRef, senderID, body string) (models.Message, error) {
	if err := alive(ctx, "append message"); err != nil {
		return models.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.existsLocked(ref); err != nil {
		return models.Message{}, err
	}

	s.nextMessageID++
	msg := models.Message{
		ID:           s.nextMessageID,
		Conversation: ref,
		SenderID:     senderID,
		Body:         body,
		CreatedAt:    s.now(),
	}
	msgs := append(s.log[ref], msg)
	// Keep the log ordered even if the clock steps backwards
	for i := len(msgs) - 1; i > 0 && msgs[i].Less(msgs[i-1]); i-- {
		msgs[i], msgs[i-1] = msgs[i-1], msgs[i]
	}
	s.log[ref] = msgs
	return msg, nil
}

func (s *Store) FetchMessages(ctx context.Context, ref models.ConversationRef, limit int) ([]models.Message, error) {
	if err := alive(ctx, "fetch messages"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.existsLocked(ref); err != nil {
		return nil, err
	}

	msgs := s.log[ref]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}
