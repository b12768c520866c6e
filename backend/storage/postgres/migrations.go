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

import "context"

func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		// Members mirrored from the identity provider
		`CREATE TABLE IF NOT EXISTS members (
			id VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			avatar_url TEXT NOT NULL DEFAULT '',
			role VARCHAR(20) NOT NULL DEFAULT 'member' CHECK (role IN ('member', 'admin')),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
		)`,

		// Groups table
		`CREATE TABLE IF NOT EXISTS chat_groups (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(80) NOT NULL CHECK (btrim(name) <> ''),
			description VARCHAR(280) NOT NULL CHECK (btrim(description) <> ''),
			icon VARCHAR(40) NOT NULL DEFAULT 'fa-users',
			visibility VARCHAR(10) NOT NULL DEFAULT 'public' CHECK (visibility IN ('public', 'private')),
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			created_by VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
		)`,

		// At most one default group
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_groups_default
		ON chat_groups(is_default) WHERE is_default`,

		// Private group grants
		`CREATE TABLE IF NOT EXISTS chat_group_members (
			group_id BIGINT NOT NULL,
			member_id VARCHAR(255) NOT NULL,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
			PRIMARY KEY (group_id, member_id),
			FOREIGN KEY (group_id) REFERENCES chat_groups(id) ON DELETE CASCADE
		)`,

		// Direct threads (exactly 2 members, canonical order)
		`CREATE TABLE IF NOT EXISTS direct_threads (
			id BIGSERIAL PRIMARY KEY,
			member_low VARCHAR(255) NOT NULL,
			member_high VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
			CONSTRAINT unique_direct_pair UNIQUE (member_low, member_high),
			CONSTRAINT ordered_members CHECK (member_low < member_high)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_direct_threads_high
		ON direct_threads(member_high)`,

		// Messages belong to exactly one group or direct thread
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			group_id BIGINT REFERENCES chat_groups(id) ON DELETE CASCADE,
			thread_id BIGINT REFERENCES direct_threads(id) ON DELETE CASCADE,
			sender_id VARCHAR(255) NOT NULL,
			body TEXT NOT NULL CHECK (btrim(body) <> ''),
			created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
			CONSTRAINT one_conversation CHECK ((group_id IS NULL) <> (thread_id IS NULL))
		)`,

		// Index for message retrieval
		`CREATE INDEX IF NOT EXISTS idx_messages_group
		ON messages(group_id, created_at DESC, id DESC) WHERE group_id IS NOT NULL`,

		`CREATE INDEX IF NOT EXISTS idx_messages_thread
		ON messages(thread_id, created_at DESC, id DESC) WHERE thread_id IS NOT NULL`,
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()
	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return mapErr(err, "migrate")
		}
	}

	return nil
}
