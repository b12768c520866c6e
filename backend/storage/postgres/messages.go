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

package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/models"
)

// lockConversation takes a share lock on the row owning ref and returns the
// column/value pair used to address its messages. A concurrent DeleteGroup
// either finishes first (NotFound here) or waits for this transaction.
func lockConversation(ctx context.Context, tx *sql.Tx, ref models.ConversationRef) (string, int64, error) {
	var id int64
	var err error
	switch ref.Kind {
	case models.KindGroup:
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM chat_groups WHERE id = $1 FOR SHARE`,
			ref.GroupID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, chaterr.NotFound("group %d not found", ref.GroupID)
		}
		return "group_id", id, err
	case models.KindDirect:
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM direct_threads
			WHERE member_low = $1 AND member_high = $2
			FOR SHARE`,
			ref.Pair.Low, ref.Pair.High).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, chaterr.NotFound("direct thread not found")
		}
		return "thread_id", id, err
	}
	return "", 0, chaterr.Validation("unknown conversation %q", ref.Kind)
}

func (s *Store) AppendMessage(ctx context.Context, ref models.ConversationRef, senderID, body string) (models.Message, error) {
	msg := models.Message{
		Conversation: ref,
		SenderID:     senderID,
		Body:         body,
	}
	err := s.withTx(ctx, "append message", func(ctx context.Context, tx *sql.Tx) error {
		column, id, err := lockConversation(ctx, tx, ref)
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `
			INSERT INTO messages (`+column+`, sender_id, body)
			VALUES ($1, $2, $3)
			RETURNING id, created_at`,
			id, senderID, body).Scan(&msg.ID, &msg.CreatedAt)
	})
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (s *Store) FetchMessages(ctx context.Context, ref models.ConversationRef, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := s.withTx(ctx, "fetch messages", func(ctx context.Context, tx *sql.Tx) error {
		column, id, err := lockConversation(ctx, tx, ref)
		if err != nil {
			return err
		}

		// Newest first, then reversed below
		rows, err := tx.QueryContext(ctx, `
			SELECT id, sender_id, body, created_at
			FROM messages
			WHERE `+column+` = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2`,
			id, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			msg := models.Message{Conversation: ref}
			if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.Body, &msg.CreatedAt); err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.Message, len(messages))
	for i, msg := range messages {
		out[len(messages)-1-i] = msg
	}
	return out, nil
}
