// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package directory_test

import (
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/directory"
	"github.com/emausjovem/comunidade/backend/identity"
	"github.com/emausjovem/comunidade/backend/models"
	"github.com/emausjovem/comunidade/backend/storage/memory"
)

var _ = Describe("Service", func() {
	var (
		store *memory.Store
		svc   *directory.Service

		admin, alice, bob models.Member
		asAdmin, asAlice  context.Context
		asBob             context.Context
	)

	BeforeEach(func() {
		store = memory.New()
		svc = directory.NewService(store, identity.ContextProvider{})

		admin = models.Member{ID: "admin-1", Name: "Admin", Role: models.RoleAdmin}
		alice = models.Member{ID: "alice", Name: "Alice", Role: models.RoleMember}
		bob = models.Member{ID: "bob", Name: "Bob", Role: models.RoleMember}
		for _, m := range []models.Member{admin, alice, bob} {
			Expect(store.UpsertMember(context.Background(), m)).To(Succeed())
		}

		asAdmin = identity.WithMember(context.Background(), admin)
		asAlice = identity.WithMember(context.Background(), alice)
		asBob = identity.WithMember(context.Background(), bob)
	})

	youth := models.GroupInput{Name: "Youth", Description: "General"}

	Describe("CreateGroup", func() {
		It("makes the group immediately visible", func() {
			g, err := svc.CreateGroup(asAdmin, youth)
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Icon).To(Equal(models.DefaultIcon))
			Expect(g.Visibility).To(Equal(models.VisibilityPublic))
			Expect(g.CreatedBy).To(Equal(admin.ID))

			groups, err := svc.ListGroups(asAlice)
			Expect(err).NotTo(HaveOccurred())
			Expect(groups).To(HaveLen(1))
			Expect(groups[0].Name).To(Equal("Youth"))
		})

		It("requires the administrator capability", func() {
			_, err := svc.CreateGroup(asAlice, youth)
			Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindPermission))
		})

		It("requires an authenticated caller", func() {
			_, err := svc.CreateGroup(context.Background(), youth)
			Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindPermission))
		})

		DescribeTable("rejects invalid input",
			func(in models.GroupInput) {
				_, err := svc.CreateGroup(asAdmin, in)
				Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindValidation))
			},
			Entry("empty name", models.GroupInput{Name: "  ", Description: "d"}),
			Entry("empty description", models.GroupInput{Name: "n", Description: ""}),
			Entry("long name", models.GroupInput{Name: strings.Repeat("a", 81), Description: "d"}),
			Entry("long description", models.GroupInput{Name: "n", Description: strings.Repeat("d", 281)}),
			Entry("bad icon", models.GroupInput{Name: "n", Description: "d", Icon: "<script>"}),
			Entry("bad visibility", models.GroupInput{Name: "n", Description: "d", Visibility: "secret"}),
		)
	})

	Describe("private groups", func() {
		var private models.Group

		BeforeEach(func() {
			var err error
			private, err = svc.CreateGroup(asAdmin, models.GroupInput{
				Name: "Leaders", Description: "Leaders only", Visibility: models.VisibilityPrivate,
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("is hidden until access is granted", func() {
			groups, _ := svc.ListGroups(asAlice)
			Expect(groups).To(BeEmpty())
			_, _, err := svc.Authorize(asAlice, private.Ref())
			Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindPermission))

			Expect(svc.GrantAccess(asAdmin, private.ID, alice.ID)).To(Succeed())

			groups, _ = svc.ListGroups(asAlice)
			Expect(groups).To(HaveLen(1))
			_, conv, err := svc.Authorize(asAlice, private.Ref())
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Kind).To(Equal(models.KindGroup))
			Expect(conv.Group.ID).To(Equal(private.ID))

			groups, _ = svc.ListGroups(asBob)
			Expect(groups).To(BeEmpty())
		})

		It("is always visible to administrators", func() {
			groups, err := svc.ListGroups(asAdmin)
			Expect(err).NotTo(HaveOccurred())
			Expect(groups).To(HaveLen(1))
		})

		It("loses access on revoke", func() {
			Expect(svc.GrantAccess(asAdmin, private.ID, alice.ID)).To(Succeed())
			Expect(svc.RevokeAccess(asAdmin, private.ID, alice.ID)).To(Succeed())
			groups, _ := svc.ListGroups(asAlice)
			Expect(groups).To(BeEmpty())
		})

		It("only grants known members on private groups", func() {
			Expect(chaterr.KindOf(svc.GrantAccess(asAdmin, private.ID, "ghost"))).To(Equal(chaterr.KindNotFound))
			Expect(chaterr.KindOf(svc.GrantAccess(asAlice, private.ID, bob.ID))).To(Equal(chaterr.KindPermission))

			public, _ := svc.CreateGroup(asAdmin, youth)
			Expect(chaterr.KindOf(svc.GrantAccess(asAdmin, public.ID, bob.ID))).To(Equal(chaterr.KindValidation))
		})
	})

	Describe("DeleteGroup", func() {
		It("removes the group from every listing", func() {
			g, _ := svc.CreateGroup(asAdmin, youth)
			Expect(svc.DeleteGroup(asAdmin, g.ID)).To(Succeed())

			groups, _ := svc.ListGroups(asAlice)
			Expect(groups).To(BeEmpty())
		})

		It("requires the administrator capability", func() {
			g, _ := svc.CreateGroup(asAdmin, youth)
			Expect(chaterr.KindOf(svc.DeleteGroup(asAlice, g.ID))).To(Equal(chaterr.KindPermission))
		})

		It("reports a group that no longer exists", func() {
			g, _ := svc.CreateGroup(asAdmin, youth)
			Expect(svc.DeleteGroup(asAdmin, g.ID)).To(Succeed())
			Expect(chaterr.KindOf(svc.DeleteGroup(asAdmin, g.ID))).To(Equal(chaterr.KindNotFound))
		})

		It("never deletes the default group", func() {
			def, err := svc.EnsureDefaultGroup(context.Background(), "Sala Geral")
			Expect(err).NotTo(HaveOccurred())
			Expect(chaterr.KindOf(svc.DeleteGroup(asAdmin, def.ID))).To(Equal(chaterr.KindPermission))
		})
	})

	Describe("UpdateGroup", func() {
		It("renames a group", func() {
			g, _ := svc.CreateGroup(asAdmin, youth)
			updated, err := svc.UpdateGroup(asAdmin, g.ID, models.GroupInput{Name: "Youth 2025", Description: "General", Icon: "fa-star"})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Name).To(Equal("Youth 2025"))
			Expect(updated.Icon).To(Equal("fa-star"))
		})

		It("keeps the default group public", func() {
			def, _ := svc.EnsureDefaultGroup(context.Background(), "Sala Geral")
			_, err := svc.UpdateGroup(asAdmin, def.ID, models.GroupInput{Name: "x", Description: "y", Visibility: models.VisibilityPrivate})
			Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindValidation))
		})

		It("is for administrators only", func() {
			g, _ := svc.CreateGroup(asAdmin, youth)
			_, err := svc.UpdateGroup(asBob, g.ID, youth)
			Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindPermission))
		})
	})

	Describe("SearchGroups", func() {
		It("filters by name or description", func() {
			_, _ = svc.CreateGroup(asAdmin, youth)
			_, _ = svc.CreateGroup(asAdmin, models.GroupInput{Name: "Choir", Description: "Sunday rehearsals"})

			found, err := svc.SearchGroups(asAlice, "sunday")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(HaveLen(1))
			Expect(found[0].Name).To(Equal("Choir"))
		})
	})

	Describe("EnsureDefaultGroup", func() {
		It("is idempotent", func() {
			first, err := svc.EnsureDefaultGroup(context.Background(), "Sala Geral")
			Expect(err).NotTo(HaveOccurred())
			second, err := svc.EnsureDefaultGroup(context.Background(), "Sala Geral")
			Expect(err).NotTo(HaveOccurred())
			Expect(second.ID).To(Equal(first.ID))
			Expect(second.IsDefault).To(BeTrue())
		})
	})

	Describe("ResolveDirectThread", func() {
		It("returns the same handle whichever side asks and in any order", func() {
			fromAlice, err := svc.ResolveDirectThread(asAlice, alice.ID, bob.ID)
			Expect(err).NotTo(HaveOccurred())
			fromBob, err := svc.ResolveDirectThread(asBob, bob.ID, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(fromBob).To(Equal(fromAlice))

			again, err := svc.ResolveDirectThread(asAlice, bob.ID, alice.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(Equal(fromAlice))
		})

		It("does not depend on display names", func() {
			before, _ := svc.ResolveDirectThread(asAlice, alice.ID, bob.ID)
			Expect(store.UpsertMember(context.Background(), models.Member{ID: bob.ID, Name: "Roberto"})).To(Succeed())
			after, _ := svc.ResolveDirectThread(asBob, bob.ID, alice.ID)
			Expect(after).To(Equal(before))
		})

		It("rejects a thread with oneself", func() {
			_, err := svc.ResolveDirectThread(asAlice, alice.ID, alice.ID)
			Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindValidation))
		})

		It("rejects callers outside the pair", func() {
			_, err := svc.ResolveDirectThread(asAdmin, alice.ID, bob.ID)
			Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindPermission))
		})

		It("reports unknown peers", func() {
			_, err := svc.ResolveDirectThread(asAlice, alice.ID, "ghost")
			Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindNotFound))
		})

		It("keeps outsiders out of the thread", func() {
			t, _ := svc.ResolveDirectThread(asAlice, alice.ID, bob.ID)
			_, _, err := svc.Authorize(asAdmin, t.Ref())
			Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindPermission))

			_, conv, err := svc.Authorize(asBob, t.Ref())
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.Kind).To(Equal(models.KindDirect))
			Expect(conv.Thread.ID).To(Equal(t.ID))
		})
	})

	Describe("direct thread history", func() {
		It("lists the caller's threads", func() {
			_, _ = svc.ResolveDirectThread(asAlice, alice.ID, bob.ID)
			threads, err := svc.ListDirectThreads(asBob)
			Expect(err).NotTo(HaveOccurred())
			Expect(threads).To(HaveLen(1))

			threads, _ = svc.ListDirectThreads(asAdmin)
			Expect(threads).To(BeEmpty())
		})

		It("can be cleared by a participant or an administrator", func() {
			t, _ := svc.ResolveDirectThread(asAlice, alice.ID, bob.ID)
			_, err := store.AppendMessage(context.Background(), t.Ref(), alice.ID, "hi")
			Expect(err).NotTo(HaveOccurred())

			n, err := svc.ClearDirectThread(asBob, t.Pair)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeEquivalentTo(1))

			_, err = svc.ClearDirectThread(asAdmin, t.Pair)
			Expect(err).NotTo(HaveOccurred())
		})

		It("cannot be cleared by anyone else", func() {
			carol := identity.WithMember(context.Background(), models.Member{ID: "carol", Role: models.RoleMember})
			t, _ := svc.ResolveDirectThread(asAlice, alice.ID, bob.ID)
			_, err := svc.ClearDirectThread(carol, t.Pair)
			Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindPermission))
		})
	})
})
