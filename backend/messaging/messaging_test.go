// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package messaging_test

import (
	"context"
	"fmt"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/directory"
	"github.com/emausjovem/comunidade/backend/identity"
	"github.com/emausjovem/comunidade/backend/messaging"
	"github.com/emausjovem/comunidade/backend/models"
	"github.com/emausjovem/comunidade/backend/storage/memory"
)

var _ = Describe("Service", func() {
	var (
		store     *memory.Store
		dir       *directory.Service
		publisher *mockPublisher
		svc       *messaging.Service

		admin, member, alice, bob models.Member
		asAdmin, asMember         context.Context
		asAlice, asBob            context.Context
	)

	BeforeEach(func() {
		store = memory.New()
		dir = directory.NewService(store, identity.ContextProvider{})
		publisher = &mockPublisher{}
		svc = messaging.NewService(store, dir, publisher, 0)

		admin = models.Member{ID: "admin-1", Name: "Admin", Role: models.RoleAdmin}
		member = models.Member{ID: "m", Name: "M", Role: models.RoleMember}
		alice = models.Member{ID: "alice", Name: "Alice", Role: models.RoleMember}
		bob = models.Member{ID: "bob", Name: "Bob", Role: models.RoleMember}
		for _, m := range []models.Member{admin, member, alice, bob} {
			Expect(store.UpsertMember(context.Background(), m)).To(Succeed())
		}
		asAdmin = identity.WithMember(context.Background(), admin)
		asMember = identity.WithMember(context.Background(), member)
		asAlice = identity.WithMember(context.Background(), alice)
		asBob = identity.WithMember(context.Background(), bob)
	})

	newGroup := func(name string) models.Group {
		g, err := dir.CreateGroup(asAdmin, models.GroupInput{Name: name, Description: "General"})
		Expect(err).NotTo(HaveOccurred())
		return g
	}

	It("stores a message in a new group (create, append, fetch)", func() {
		g := newGroup("Youth")

		groups, err := dir.ListGroups(asMember)
		Expect(err).NotTo(HaveOccurred())
		Expect(groups).To(HaveLen(1))
		Expect(groups[0].Name).To(Equal("Youth"))

		_, err = svc.AppendMessage(asMember, g.Ref(), member.ID, "hello")
		Expect(err).NotTo(HaveOccurred())

		msgs, err := svc.FetchMessages(asMember, g.Ref(), 50)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(1))
		Expect(msgs[0].Body).To(Equal("hello"))
		Expect(msgs[0].SenderID).To(Equal(member.ID))
	})

	It("lets both sides of a direct thread see the same history", func() {
		fromAlice, err := dir.ResolveDirectThread(asAlice, alice.ID, bob.ID)
		Expect(err).NotTo(HaveOccurred())
		fromBob, err := dir.ResolveDirectThread(asBob, bob.ID, alice.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(fromBob).To(Equal(fromAlice))

		_, err = svc.AppendMessage(asAlice, fromAlice.Ref(), alice.ID, "hi")
		Expect(err).NotTo(HaveOccurred())

		msgs, err := svc.FetchMessages(asBob, fromBob.Ref(), 0)
		Expect(err).NotTo(HaveOccurred())
		bodies := []string{}
		for _, m := range msgs {
			bodies = append(bodies, m.Body)
		}
		Expect(bodies).To(Equal([]string{"hi"}))
	})

	It("keeps third parties out of a direct thread", func() {
		t, _ := dir.ResolveDirectThread(asAlice, alice.ID, bob.ID)
		_, err := svc.FetchMessages(asMember, t.Ref(), 0)
		Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindPermission))
		_, err = svc.AppendMessage(asMember, t.Ref(), member.ID, "hey")
		Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindPermission))
	})

	It("returns N appended messages in append order", func() {
		g := newGroup("Order")
		const n = 25
		for i := 0; i < n; i++ {
			_, err := svc.AppendMessage(asMember, g.Ref(), member.ID, fmt.Sprintf("msg %02d", i))
			Expect(err).NotTo(HaveOccurred())
		}

		msgs, err := svc.FetchMessages(asMember, g.Ref(), n)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(n))
		for i, m := range msgs {
			Expect(m.Body).To(Equal(fmt.Sprintf("msg %02d", i)))
			if i > 0 {
				Expect(msgs[i-1].Less(m)).To(BeTrue())
			}
		}
	})

	It("returns identical pages when nothing was appended in between", func() {
		g := newGroup("Stable")
		for _, body := range []string{"a", "b", "c"} {
			_, _ = svc.AppendMessage(asMember, g.Ref(), member.ID, body)
		}
		first, err := svc.FetchMessages(asMember, g.Ref(), 0)
		Expect(err).NotTo(HaveOccurred())
		second, err := svc.FetchMessages(asMember, g.Ref(), 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))
	})

	It("returns an empty list for a conversation without messages", func() {
		g := newGroup("Quiet")
		msgs, err := svc.FetchMessages(asMember, g.Ref(), 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).NotTo(BeNil())
		Expect(msgs).To(BeEmpty())
	})

	It("caps the page size", func() {
		g := newGroup("Busy")
		for i := 0; i < messaging.MaxPageLimit+5; i++ {
			_, err := store.AppendMessage(context.Background(), g.Ref(), member.ID, "x")
			Expect(err).NotTo(HaveOccurred())
		}
		msgs, err := svc.FetchMessages(asMember, g.Ref(), 10_000)
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(messaging.MaxPageLimit))

		msgs, _ = svc.FetchMessages(asMember, g.Ref(), 0)
		Expect(msgs).To(HaveLen(messaging.DefaultPageLimit))
	})

	Describe("validation", func() {
		var g models.Group

		BeforeEach(func() {
			g = newGroup("Youth")
		})

		DescribeTable("rejects bodies that are empty after trimming",
			func(body string) {
				_, err := svc.AppendMessage(asMember, g.Ref(), member.ID, body)
				Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindValidation))
				Expect(publisher.Events()).To(BeEmpty())
			},
			Entry("empty", ""),
			Entry("spaces", "   "),
			Entry("newlines and tabs", "\n\t "),
		)

		It("rejects overly long bodies", func() {
			_, err := svc.AppendMessage(asMember, g.Ref(), member.ID, strings.Repeat("a", messaging.MaxBodyLength+1))
			Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindValidation))
		})

		It("stores the trimmed body", func() {
			msg, err := svc.AppendMessage(asMember, g.Ref(), member.ID, "  oi  ")
			Expect(err).NotTo(HaveOccurred())
			Expect(msg.Body).To(Equal("oi"))
		})

		It("refuses to send on behalf of someone else", func() {
			_, err := svc.AppendMessage(asMember, g.Ref(), alice.ID, "spoof")
			Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindPermission))
		})
	})

	Describe("delivery", func() {
		It("announces every committed append", func() {
			g := newGroup("Youth")
			msg, err := svc.AppendMessage(asMember, g.Ref(), member.ID, "hello")
			Expect(err).NotTo(HaveOccurred())

			Expect(publisher.Events()).To(ConsistOf(models.Event{Conversation: g.Ref(), MessageID: msg.ID}))
		})

		It("keeps a committed append when publishing fails", func() {
			publisher.publishFn = func(context.Context, models.ConversationRef, models.Event) error {
				return errBrokerDown
			}
			g := newGroup("Youth")

			_, err := svc.AppendMessage(asMember, g.Ref(), member.ID, "hello")
			Expect(err).NotTo(HaveOccurred())

			msgs, _ := svc.FetchMessages(asMember, g.Ref(), 0)
			Expect(msgs).To(HaveLen(1))
		})
	})

	Describe("deletion", func() {
		It("makes later fetches fail with not found", func() {
			g := newGroup("Gone")
			_, _ = svc.AppendMessage(asMember, g.Ref(), member.ID, "bye")
			Expect(dir.DeleteGroup(asAdmin, g.ID)).To(Succeed())

			_, err := svc.FetchMessages(asMember, g.Ref(), 0)
			Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindNotFound))
		})

		It("never lets an append land in a deleted group", func() {
			for round := 0; round < 20; round++ {
				g := newGroup(fmt.Sprintf("Race %d", round))

				var wg sync.WaitGroup
				results := make(chan error, 10)
				for i := 0; i < 10; i++ {
					wg.Add(1)
					go func(i int) {
						defer GinkgoRecover()
						defer wg.Done()
						_, err := svc.AppendMessage(asMember, g.Ref(), member.ID, fmt.Sprintf("m%d", i))
						results <- err
					}(i)
				}
				Expect(dir.DeleteGroup(asAdmin, g.ID)).To(Succeed())
				wg.Wait()
				close(results)

				for err := range results {
					if err != nil {
						Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindNotFound))
					}
				}
				_, err := store.FetchMessages(context.Background(), g.Ref(), 0)
				Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindNotFound))
			}
		})
	})
})
