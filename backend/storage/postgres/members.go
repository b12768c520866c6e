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
	"time"

	"github.com/emausjovem/comunidade/backend/models"
)

func (s *Store) UpsertMember(ctx context.Context, m models.Member) error {
	return s.withTx(ctx, "upsert member", func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO members (id, name, avatar_url, role, updated_at)
			VALUES ($1, $2, $3, $4, clock_timestamp())
			ON CONFLICT (id) DO UPDATE
			SET name = $2, avatar_url = $3, role = $4, updated_at = clock_timestamp()`,
			m.ID, m.Name, m.AvatarURL, string(m.Role))
		return err
	})
}

func (s *Store) GetMember(ctx context.Context, memberID string) (models.Member, error) {
	defer observe("get member", time.Now())
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var m models.Member
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, avatar_url, role FROM members WHERE id = $1`,
		memberID).Scan(&m.ID, &m.Name, &m.AvatarURL, &role)
	if err != nil {
		return models.Member{}, mapErr(err, "get member")
	}
	m.Role = models.Role(role)
	return m, nil
}

func (s *Store) ListMembers(ctx context.Context) ([]models.Member, error) {
	defer observe("list members", time.Now())
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, avatar_url, role FROM members
		ORDER BY lower(name), id`)
	if err != nil {
		return nil, mapErr(err, "list members")
	}
	defer rows.Close()

	members := []models.Member{}
	for rows.Next() {
		var m models.Member
		var role string
		if err := rows.Scan(&m.ID, &m.Name, &m.AvatarURL, &role); err != nil {
			return nil, mapErr(err, "list members")
		}
		m.Role = models.Role(role)
		members = append(members, m)
	}

	return members, mapErr(rows.Err(), "list members")
}
