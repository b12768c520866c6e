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

// Package messaging reads and appends to the ordered message log of a
// conversation and announces every committed append on the delivery channel.
package messaging

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/delivery"
	"github.com/emausjovem/comunidade/backend/logger"
	"github.com/emausjovem/comunidade/backend/metrics"
	"github.com/emausjovem/comunidade/backend/models"
	"github.com/emausjovem/comunidade/backend/storage"
)

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 500
	MaxBodyLength    = 4000

	publishTimeout = 3 * time.Second
)

// Authorizer decides whether the caller may use a conversation.
type Authorizer interface {
	Authorize(ctx context.Context, ref models.ConversationRef) (models.Member, models.Conversation, error)
}

type Service struct {
	store     storage.MessageStore
	access    Authorizer
	publisher delivery.Publisher
	pageLimit int
}

func NewService(store storage.MessageStore, access Authorizer, publisher delivery.Publisher, pageLimit int) *Service {
	if pageLimit <= 0 {
		pageLimit = DefaultPageLimit
	}
	if pageLimit > MaxPageLimit {
		pageLimit = MaxPageLimit
	}
	return &Service{
		store:     store,
		access:    access,
		publisher: publisher,
		pageLimit: pageLimit,
	}
}

func (s *Service) limit(n int) int {
	switch {
	case n <= 0:
		return s.pageLimit
	case n > MaxPageLimit:
		return MaxPageLimit
	}
	return n
}

// FetchMessages returns up to limit of the newest messages in ref, oldest
// first. An empty conversation yields an empty slice.
func (s *Service) FetchMessages(ctx context.Context, ref models.ConversationRef, limit int) ([]models.Message, error) {
	if _, _, err := s.access.Authorize(ctx, ref); err != nil {
		return nil, err
	}
	msgs, err := s.store.FetchMessages(ctx, ref, s.limit(limit))
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

// AppendMessage stores body as a message from senderID. The store assigns the
// id and timestamp. If the conversation is deleted before the append commits
// the call fails with chaterr.ErrNotFound.
func (s *Service) AppendMessage(ctx context.Context, ref models.ConversationRef, senderID, body string) (models.Message, error) {
	msg, err := s.appendMessage(ctx, ref, senderID, body)
	if err != nil {
		metrics.AppendFailures.WithLabelValues(string(chaterr.KindOf(err))).Inc()
		return models.Message{}, err
	}
	metrics.MessagesAppended.Inc()

	s.announce(ctx, msg)
	return msg, nil
}

func (s *Service) appendMessage(ctx context.Context, ref models.ConversationRef, senderID, body string) (models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return models.Message{}, chaterr.Validation("message body is empty")
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return models.Message{}, chaterr.Validation("message body is longer than %d characters", MaxBodyLength)
	}

	caller, _, err := s.access.Authorize(ctx, ref)
	if err != nil {
		return models.Message{}, err
	}
	if senderID != caller.ID {
		return models.Message{}, chaterr.Permission("cannot send as another member")
	}

	return s.store.AppendMessage(ctx, ref, senderID, body)
}

// announce publishes the new-message event. The message is already durable
// so a failed publish is only logged; readers catch up by reconciling.
func (s *Service) announce(ctx context.Context, msg models.Message) {
	if s.publisher == nil {
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component:    "comunidade.messaging",
		MemberID:     msg.SenderID,
		Conversation: msg.Conversation.String(),
	})
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	ev := models.Event{Conversation: msg.Conversation, MessageID: msg.ID}
	if err := s.publisher.Publish(pubCtx, msg.Conversation, ev); err != nil {
		metrics.PublishFailures.Inc()
		slog.WarnContext(ctx, "publish failed", "error", err, "message_id", msg.ID)
		return
	}
	metrics.EventsPublished.Inc()
}
