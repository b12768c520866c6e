// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/models"
)

// ResolveDirectThread finds or creates the thread for pair. The unique
// constraint on (member_low, member_high) makes concurrent resolves converge
// on one row.
func (s *Store) ResolveDirectThread(ctx context.Context, pair models.DirectPair) (models.ThreadHandle, error) {
	defer observe("resolve direct thread", time.Now())
	ctx, cancel := s.bound(ctx)
	defer cancel()

	t := models.ThreadHandle{Pair: pair}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO direct_threads (member_low, member_high)
		VALUES ($1, $2)
		ON CONFLICT (member_low, member_high) DO NOTHING
		RETURNING id, created_at`,
		pair.Low, pair.High).Scan(&t.ID, &t.CreatedAt)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) && !isUniqueViolation(err) {
		return models.ThreadHandle{}, mapErr(err, "resolve direct thread")
	}

	// Thread already exists; read it in a fresh statement so the committed
	// row is visible.
	err = s.db.QueryRowContext(ctx, `
		SELECT id, created_at FROM direct_threads
		WHERE member_low = $1 AND member_high = $2`,
		pair.Low, pair.High).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return models.ThreadHandle{}, mapErr(err, "resolve direct thread")
	}
	return t, nil
}

func (s *Store) FindDirectThread(ctx context.Context, pair models.DirectPair) (models.ThreadHandle, error) {
	defer observe("find direct thread", time.Now())
	ctx, cancel := s.bound(ctx)
	defer cancel()

	t := models.ThreadHandle{Pair: pair}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at FROM direct_threads
		WHERE member_low = $1 AND member_high = $2`,
		pair.Low, pair.High).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return models.ThreadHandle{}, mapErr(err, "find direct thread")
	}
	return t, nil
}

func (s *Store) ListDirectThreads(ctx context.Context, memberID string) ([]models.ThreadHandle, error) {
	defer observe("list direct threads", time.Now())
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.member_low, d.member_high, d.created_at
		FROM direct_threads d
		LEFT JOIN LATERAL (
			SELECT max(created_at) AS last_message_at FROM messages WHERE thread_id = d.id
		) m ON TRUE
		WHERE d.member_low = $1 OR d.member_high = $1
		ORDER BY COALESCE(m.last_message_at, d.created_at) DESC, d.id DESC`,
		memberID)
	if err != nil {
		return nil, mapErr(err, "list direct threads")
	}
	defer rows.Close()

	threads := []models.ThreadHandle{}
	for rows.Next() {
		var t models.ThreadHandle
		if err := rows.Scan(&t.ID, &t.Pair.Low, &t.Pair.High, &t.CreatedAt); err != nil {
			return nil, mapErr(err, "list direct threads")
		}
		threads = append(threads, t)
	}

	return threads, mapErr(rows.Err(), "list direct threads")
}

func (s *Store) ClearDirectThread(ctx context.Context, pair models.DirectPair) (int64, error) {
	var cleared int64
	err := s.withTx(ctx, "clear direct thread", func(ctx context.Context, tx *sql.Tx) error {
		var threadID int64
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM direct_threads
			WHERE member_low = $1 AND member_high = $2
			FOR UPDATE`,
			pair.Low, pair.High).Scan(&threadID)
		if errors.Is(err, sql.ErrNoRows) {
			return chaterr.NotFound("direct thread not found")
		}
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = $1`, threadID)
		if err != nil {
			return err
		}
		cleared, err = res.RowsAffected()
		return err
	})
	return cleared, err
}
