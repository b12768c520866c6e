// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package client_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/client"
	"github.com/emausjovem/comunidade/backend/models"
)

var _ = Describe("Composer", func() {
	var (
		ctx       context.Context
		sender    *mockSender
		refresher *mockRefresher
		target    client.ActiveConversation
		sent      []string
		states    []client.ComposerState
		composer  *client.Composer
	)

	BeforeEach(func() {
		ctx = context.Background()
		sent, states = nil, nil
		target = client.GroupConversation(1)
		sender = &mockSender{fn: func(_ context.Context, ref models.ConversationRef, senderID, body string) (models.Message, error) {
			sent = append(sent, body)
			return models.Message{ID: int64(len(sent)), Conversation: ref, SenderID: senderID, Body: body}, nil
		}}
		refresher = &mockRefresher{}
		composer = client.NewComposer(sender, refresher, "alice", func() client.ActiveConversation { return target })
		composer.OnState = func(s client.ComposerState) { states = append(states, s) }
	})

	It("ignores blank input", func() {
		composer.SetInput("   \n")
		msg, err := composer.Submit(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(msg).To(Equal(models.Message{}))
		Expect(sent).To(BeEmpty())
		Expect(composer.State()).To(Equal(client.Composing))
		Expect(composer.Input()).To(Equal("   \n"))
		Expect(refresher.Calls()).To(BeZero())
	})

	It("needs an open conversation", func() {
		target = client.NoConversation
		composer.SetInput("hello")
		_, err := composer.Submit(ctx)
		Expect(err).To(MatchError(client.ErrNoConversation))
		Expect(composer.Input()).To(Equal("hello"))
		Expect(composer.State()).To(Equal(client.Composing))
	})

	It("sends, clears the input and refreshes", func() {
		composer.SetInput("hello")
		msg, err := composer.Submit(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Body).To(Equal("hello"))
		Expect(msg.SenderID).To(Equal("alice"))
		Expect(msg.Conversation).To(Equal(target.Ref()))

		Expect(composer.State()).To(Equal(client.Confirmed))
		Expect(composer.Input()).To(BeEmpty())
		Expect(refresher.Calls()).To(Equal(1))
		Expect(states).To(Equal([]client.ComposerState{client.Submitting, client.Confirmed}))
	})

	It("restores the input and records why a send failed", func() {
		sender.fn = func(context.Context, models.ConversationRef, string, string) (models.Message, error) {
			return models.Message{}, chaterr.Permission("not a member")
		}
		composer.SetInput("hello")
		_, err := composer.Submit(ctx)
		Expect(chaterr.KindOf(err)).To(Equal(chaterr.KindPermission))

		Expect(composer.State()).To(Equal(client.Failed))
		Expect(composer.Input()).To(Equal("hello"))
		Expect(composer.FailureKind()).To(Equal(chaterr.KindPermission))
		Expect(refresher.Calls()).To(BeZero())

		composer.SetInput("hello again")
		Expect(composer.State()).To(Equal(client.Composing))
		Expect(composer.Err()).NotTo(HaveOccurred())
	})

	It("rejects a second submit while one is in flight", func() {
		entered := make(chan struct{})
		release := make(chan struct{})
		sender.fn = func(_ context.Context, ref models.ConversationRef, senderID, body string) (models.Message, error) {
			close(entered)
			<-release
			return models.Message{ID: 1, Conversation: ref, SenderID: senderID, Body: body}, nil
		}
		composer.OnState = nil
		composer.SetInput("first")

		done := make(chan error, 1)
		go func() {
			_, err := composer.Submit(ctx)
			done <- err
		}()
		<-entered
		Expect(composer.State()).To(Equal(client.Submitting))

		composer.SetInput("second")
		_, err := composer.Submit(ctx)
		Expect(err).To(MatchError(client.ErrBusy))

		close(release)
		Eventually(done).Should(Receive(BeNil()))
		Expect(composer.State()).To(Equal(client.Confirmed))
		Expect(composer.Input()).To(Equal("second"))
	})

	It("keeps text typed during a failed send apart from the restored text", func() {
		entered := make(chan struct{})
		release := make(chan struct{})
		sender.fn = func(context.Context, models.ConversationRef, string, string) (models.Message, error) {
			close(entered)
			<-release
			return models.Message{}, chaterr.Transient(nil, "store unavailable")
		}
		composer.OnState = nil
		composer.SetInput("hello")

		done := make(chan error, 1)
		go func() {
			_, err := composer.Submit(ctx)
			done <- err
		}()
		<-entered
		composer.SetInput("wor")
		close(release)

		Eventually(done).Should(Receive(HaveOccurred()))
		Expect(composer.State()).To(Equal(client.Failed))
		Expect(composer.Input()).To(Equal("hello wor"))
	})

	It("does not add a second break when the restored text ends with one", func() {
		entered := make(chan struct{})
		release := make(chan struct{})
		sender.fn = func(context.Context, models.ConversationRef, string, string) (models.Message, error) {
			close(entered)
			<-release
			return models.Message{}, chaterr.Transient(nil, "store unavailable")
		}
		composer.OnState = nil
		composer.SetInput("hello\n")

		done := make(chan error, 1)
		go func() {
			_, err := composer.Submit(ctx)
			done <- err
		}()
		<-entered
		composer.SetInput("again")
		close(release)

		Eventually(done).Should(Receive(HaveOccurred()))
		Expect(composer.Input()).To(Equal("hello\nagain"))
	})

	It("sends into the view's open conversation", func() {
		fetcher := &mockFetcher{}
		view := client.NewView(fetcher, nil, client.ViewOptions{})
		Expect(view.Open(ctx, client.GroupConversation(9))).To(Succeed())

		c := client.ComposerForView(sender, view, "alice")
		c.SetInput("oi")
		msg, err := c.Submit(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Conversation).To(Equal(models.GroupRef(9)))
		Expect(fetcher.Calls()).To(Equal(2))
	})
})
