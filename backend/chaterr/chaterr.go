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

// Package chaterr defines the error kinds surfaced by the messaging core.
package chaterr

import (
	"context"
	"database/sql/driver"
	"net"

	"github.com/cockroachdb/errors"
)

// Kind sentinels. Errors produced by the core are marked with exactly one of
// them so callers can branch with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrPermission = errors.New("permission denied")
	ErrNotFound   = errors.New("not found")
	ErrTransient  = errors.New("transient error")
)

// Kind is the classification of an error.
type Kind string

const (
	KindNone       Kind = ""
	KindValidation Kind = "validation"
	KindPermission Kind = "permission"
	KindNotFound   Kind = "not_found"
	KindTransient  Kind = "transient"
	KindInternal   Kind = "internal"
)

func Validation(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

func Permission(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrPermission)
}

func NotFound(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

// Transient wraps cause as a retryable failure.
func Transient(cause error, format string, args ...any) error {
	if cause == nil {
		return errors.Mark(errors.Newf(format, args...), ErrTransient)
	}
	return errors.Mark(errors.Wrapf(cause, format, args...), ErrTransient)
}

// KindOf classifies err. Unmarked errors report KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrPermission):
		return KindPermission
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindInternal
	}
}

// Retryable reports whether err may succeed if the same call is repeated.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}

// FromInfra marks timeouts and connectivity failures as transient and leaves
// every other error untouched.
func FromInfra(err error, op string) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindInternal {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return Transient(err, "%s", op)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient(err, "%s", op)
	}
	return errors.Wrapf(err, "%s", op)
}
