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
	"time"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/models"
)

const groupColumns = `id, name, description, icon, visibility, is_default, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (models.Group, error) {
	var g models.Group
	var visibility string
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.Icon, &visibility,
		&g.IsDefault, &g.CreatedBy, &g.CreatedAt, &g.UpdatedAt)
	g.Visibility = models.Visibility(visibility)
	return g, err
}

func (s *Store) CreateGroup(ctx context.Context, in models.GroupInput, creatorID string, isDefault bool) (models.Group, error) {
	var g models.Group
	err := s.withTx(ctx, "create group", func(ctx context.Context, tx *sql.Tx) error {
		var err error
		g, err = scanGroup(tx.QueryRowContext(ctx, `
			INSERT INTO chat_groups (name, description, icon, visibility, is_default, created_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+groupColumns,
			in.Name, in.Description, in.Icon, string(in.Visibility), isDefault, creatorID))
		if err != nil {
			return err
		}

		// Creator can always see a private group it made
		if in.Visibility == models.VisibilityPrivate {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO chat_group_members (group_id, member_id)
				VALUES ($1, $2)`,
				g.ID, creatorID)
		}
		return err
	})
	return g, err
}

func (s *Store) UpdateGroup(ctx context.Context, groupID int64, in models.GroupInput) (models.Group, error) {
	var g models.Group
	err := s.withTx(ctx, "update group", func(ctx context.Context, tx *sql.Tx) error {
		var err error
		g, err = scanGroup(tx.QueryRowContext(ctx, `
			UPDATE chat_groups
			SET name = $2, description = $3, icon = $4, visibility = $5, updated_at = clock_timestamp()
			WHERE id = $1
			RETURNING `+groupColumns,
			groupID, in.Name, in.Description, in.Icon, string(in.Visibility)))
		return err
	})
	return g, err
}

// DeleteGroup relies on ON DELETE CASCADE so the group, its grants and its
// messages disappear in the same statement. The row lock taken by DELETE
// conflicts with the FOR SHARE lock held by AppendMessage.
func (s *Store) DeleteGroup(ctx context.Context, groupID int64) error {
	return s.withTx(ctx, "delete group", func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM chat_groups WHERE id = $1`, groupID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return chaterr.NotFound("group %d not found", groupID)
		}
		return nil
	})
}

func (s *Store) GetGroup(ctx context.Context, groupID int64) (models.Group, error) {
	defer observe("get group", time.Now())
	ctx, cancel := s.bound(ctx)
	defer cancel()

	g, err := scanGroup(s.db.QueryRowContext(ctx, `
		SELECT `+groupColumns+` FROM chat_groups WHERE id = $1`, groupID))
	if err != nil {
		return models.Group{}, mapErr(err, "get group")
	}
	return g, nil
}

func (s *Store) DefaultGroup(ctx context.Context) (models.Group, error) {
	defer observe("default group", time.Now())
	ctx, cancel := s.bound(ctx)
	defer cancel()

	g, err := scanGroup(s.db.QueryRowContext(ctx, `
		SELECT `+groupColumns+` FROM chat_groups WHERE is_default`))
	if err != nil {
		return models.Group{}, mapErr(err, "default group")
	}
	return g, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]models.Group, error) {
	defer observe("list groups", time.Now())
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+groupColumns+`
		FROM chat_groups
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, mapErr(err, "list groups")
	}
	defer rows.Close()

	groups := []models.Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, mapErr(err, "list groups")
		}
		groups = append(groups, g)
	}

	return groups, mapErr(rows.Err(), "list groups")
}

func (s *Store) AddGroupMember(ctx context.Context, groupID int64, memberID string) error {
	return s.withTx(ctx, "add group member", func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chat_group_members (group_id, member_id)
			VALUES ($1, $2)
			ON CONFLICT (group_id, member_id) DO NOTHING`,
			groupID, memberID)
		return err
	})
}

func (s *Store) RemoveGroupMember(ctx context.Context, groupID int64, memberID string) error {
	return s.withTx(ctx, "remove group member", func(ctx context.Context, tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM chat_groups WHERE id = $1)`,
			groupID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return chaterr.NotFound("group %d not found", groupID)
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM chat_group_members
			WHERE group_id = $1 AND member_id = $2`,
			groupID, memberID)
		return err
	})
}

func (s *Store) GetGroupMembers(ctx context.Context, groupID int64) ([]string, error) {
	defer observe("get group members", time.Now())
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT member_id FROM chat_group_members
		WHERE group_id = $1
		ORDER BY member_id`,
		groupID)
	if err != nil {
		return nil, mapErr(err, "get group members")
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var memberID string
		if err := rows.Scan(&memberID); err != nil {
			return nil, mapErr(err, "get group members")
		}
		members = append(members, memberID)
	}

	return members, mapErr(rows.Err(), "get group members")
}

func (s *Store) IsGroupMember(ctx context.Context, groupID int64, memberID string) (bool, error) {
	defer observe("is group member", time.Now())
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var ok bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM chat_group_members
			WHERE group_id = $1 AND member_id = $2
		)`, groupID, memberID).Scan(&ok)
	return ok, mapErr(err, "is group member")
}
