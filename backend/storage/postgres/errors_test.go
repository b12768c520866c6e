// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package postgres_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/lib/pq"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/storage/postgres"
)

var _ = Describe("error mapping", func() {
	It("passes nil through", func() {
		Expect(postgres.MapErr(nil, "op")).To(Succeed())
	})

	It("maps missing rows to not found", func() {
		err := postgres.MapErr(sql.ErrNoRows, "get group")
		Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindNotFound))
	})

	It("maps a foreign key violation to not found", func() {
		err := postgres.MapErr(&pq.Error{Code: "23503"}, "append message")
		Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindNotFound))
	})

	It("maps a check violation to validation", func() {
		err := postgres.MapErr(&pq.Error{Code: "23514", Message: "body empty"}, "append message")
		Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindValidation))
		Expect(err.Error()).To(ContainSubstring("body empty"))
	})

	DescribeTable("retryable server conditions",
		func(code string) {
			err := postgres.MapErr(&pq.Error{Code: pq.ErrorCode(code)}, "op")
			Expect(chaterr.Retryable(err)).To(BeTrue())
		},
		Entry("serialization failure", "40001"),
		Entry("deadlock", "40P01"),
		Entry("statement canceled", "57014"),
		Entry("admin shutdown", "57P01"),
	)

	It("treats deadlines and dropped connections as transient", func() {
		Expect(chaterr.KindOf(postgres.MapErr(context.DeadlineExceeded, "op"))).To(Equal(chaterr.KindTransient))
		Expect(chaterr.KindOf(postgres.MapErr(fmt.Errorf("query: %w", driver.ErrBadConn), "op"))).To(Equal(chaterr.KindTransient))
	})

	It("keeps errors that are already classified", func() {
		original := chaterr.Permission("nope")
		Expect(postgres.MapErr(original, "op")).To(BeIdenticalTo(original))
	})

	It("leaves unknown failures internal", func() {
		err := postgres.MapErr(errors.New("boom"), "op")
		Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindInternal))
		Expect(err.Error()).To(ContainSubstring("boom"))
	})

	It("recognises unique violations", func() {
		Expect(postgres.IsUniqueViolation(&pq.Error{Code: "23505"})).To(BeTrue())
		Expect(postgres.IsUniqueViolation(&pq.Error{Code: "23503"})).To(BeFalse())
		Expect(postgres.IsUniqueViolation(errors.New("x"))).To(BeFalse())
	})
})
