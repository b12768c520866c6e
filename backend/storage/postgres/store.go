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
	"time"

	"github.com/lib/pq"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/metrics"
	"github.com/emausjovem/comunidade/backend/storage"
)

const (
	defaultTimeout = 5 * time.Second

	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
	pqCheckViolation      = "23514"
	pqSerializationFailed = "40001"
	pqDeadlockDetected    = "40P01"
	pqQueryCanceled       = "57014"
	pqAdminShutdown       = "57P01"
)

var _ storage.Store = (*Store)(nil)

type Store struct {
	db      *sql.DB
	timeout time.Duration
}

// NewStore wraps db. Every call is bounded by timeout; zero means five seconds.
func NewStore(db *sql.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{
		db:      db,
		timeout: timeout,
	}
}

// Open connects with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, dsn string, timeout time.Duration) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	s := NewStore(db, timeout)
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return mapErr(s.db.PingContext(ctx), "ping database")
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// observe records the latency of a store call.
func observe(op string, started time.Time) {
	metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// withTx runs fn in a transaction bounded by the store timeout.
func (s *Store) withTx(ctx context.Context, op string, fn func(ctx context.Context, tx *sql.Tx) error) error {
	defer observe(op, time.Now())
	ctx, cancel := s.bound(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err, op)
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return mapErr(err, op)
	}
	return mapErr(tx.Commit(), op)
}

// mapErr translates driver failures into the chaterr taxonomy.
func mapErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if chaterr.KindOf(err) != chaterr.KindInternal {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return chaterr.NotFound("%s: not found", op)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqForeignKeyViolation:
			return chaterr.NotFound("%s: referenced row no longer exists", op)
		case pqCheckViolation:
			return chaterr.Validation("%s: %s", op, pqErr.Message)
		case pqSerializationFailed, pqDeadlockDetected, pqQueryCanceled, pqAdminShutdown:
			return chaterr.Transient(err, "%s", op)
		}
	}
	return chaterr.FromInfra(err, op)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation
}
