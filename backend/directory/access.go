// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package directory

import (
	"context"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/models"
)

// Authorize checks that the caller may read and write in ref and returns the
// caller together with the resolved conversation.
//
// Public groups are open to every member, private groups to granted members
// and administrators, direct threads to their two participants only.
func (s *Service) Authorize(ctx context.Context, ref models.ConversationRef) (models.Member, models.Conversation, error) {
	caller, err := s.caller(ctx)
	if err != nil {
		return models.Member{}, models.Conversation{}, err
	}

	switch ref.Kind {
	case models.KindGroup:
		g, err := s.store.GetGroup(ctx, ref.GroupID)
		if err != nil {
			return models.Member{}, models.Conversation{}, err
		}
		ok, err := s.canSee(ctx, caller, s.identity.IsAdministrator(ctx), g)
		if err != nil {
			return models.Member{}, models.Conversation{}, err
		}
		if !ok {
			return models.Member{}, models.Conversation{}, chaterr.Permission("no access to group %d", g.ID)
		}
		return caller, models.GroupConversation(g), nil

	case models.KindDirect:
		if !ref.Pair.Contains(caller.ID) {
			return models.Member{}, models.Conversation{}, chaterr.Permission("not a participant of this thread")
		}
		t, err := s.store.FindDirectThread(ctx, ref.Pair)
		if err != nil {
			return models.Member{}, models.Conversation{}, err
		}
		return caller, models.DirectConversation(t), nil
	}

	return models.Member{}, models.Conversation{}, chaterr.Validation("unknown conversation %q", ref.String())
}
