// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/emausjovem/comunidade/backend/client"
	"github.com/emausjovem/comunidade/backend/client/remote"
	"github.com/emausjovem/comunidade/backend/middleware"
	"github.com/emausjovem/comunidade/backend/models"
)

func init() {
	chatCmd.Flags().Duration("interval", env.Reconcile.Interval, "reconciliation interval (default $RECONCILE_INTERVAL)")
	chatCmd.Flags().Int("limit", 50, "messages to show")

	tokenCmd.Flags().String("secret", os.Getenv("JWT_SECRET"), "signing secret (default $JWT_SECRET)")
	tokenCmd.Flags().String("issuer", envOr("JWT_ISSUER", "comunidade"), "token issuer")
	tokenCmd.Flags().String("name", "", "display name")
	tokenCmd.Flags().Bool("admin", false, "grant the admin role")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")

	rootCmd.AddCommand(directCmd, sendCmd, chatCmd, tokenCmd)
}

// conversationArg accepts a ref (group:3, direct:a:b) or @peer for a direct
// thread with that member.
func conversationArg(ctx context.Context, c *remote.Client, arg string) (models.ConversationRef, error) {
	if peer, ok := strings.CutPrefix(arg, "@"); ok {
		t, err := c.ResolveDirectThread(ctx, peer)
		if err != nil {
			return models.ConversationRef{}, err
		}
		return t.Ref(), nil
	}
	return models.ParseConversationRef(arg)
}

// tokenMemberID reads user_id from the token payload without verifying it;
// the server does the verification.
func tokenMemberID(tok string) string {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return ""
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ""
	}
	var claims middleware.Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return ""
	}
	return claims.UserID
}

var directCmd = &cobra.Command{
	Use:   "direct <member-id>",
	Short: "Open (or find) your direct thread with a member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		t, err := c.ResolveDirectThread(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(t.Ref())
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation|@member> <text...>",
	Short: "Send one message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ref, err := conversationArg(cmd.Context(), c, args[0])
		if err != nil {
			return err
		}

		composer := client.NewComposer(c, nil, tokenMemberID(token), func() client.ActiveConversation {
			return client.Active(ref)
		})
		composer.SetInput(strings.Join(args[1:], " "))
		msg, err := composer.Submit(cmd.Context())
		if err != nil {
			return fmt.Errorf("%s: %w", composer.FailureKind(), err)
		}
		if msg.ID == 0 {
			return fmt.Errorf("nothing to send")
		}
		fmt.Printf("sent #%d at %s\n", msg.ID, msg.CreatedAt.Format(time.RFC3339))
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat <conversation|@member>",
	Short: "Follow a conversation and send lines typed on stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		ref, err := conversationArg(ctx, c, args[0])
		if err != nil {
			return err
		}
		interval, _ := cmd.Flags().GetDuration("interval")
		limit, _ := cmd.Flags().GetInt("limit")

		printer := &messagePrinter{seen: map[int64]bool{}}
		var reconciler *client.Reconciler
		view := client.NewView(c, c, client.ViewOptions{
			Limit:    limit,
			OnChange: printer.print,
			Fallback: func() client.ActiveConversation {
				return reconciler.Fallback()
			},
			OnEvict: func(from, to client.ActiveConversation, cause error) {
				fmt.Fprintf(os.Stderr, "-- left %s: %v (now in %s)\n", from, cause, to)
			},
		})
		reconciler = client.NewReconciler(c, view, client.ReconcilerOptions{Interval: interval})

		if err := view.Open(ctx, client.Active(ref)); err != nil {
			return err
		}
		defer view.Close()
		stop := reconciler.Start(ctx)
		defer stop()

		composer := client.ComposerForView(c, view, tokenMemberID(token))
		fmt.Fprintf(os.Stderr, "-- in %s, type a line to send it, ctrl-d to quit\n", ref)

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			composer.SetInput(scanner.Text())
			if _, err := composer.Submit(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "-- not sent (%s): %v\n", composer.FailureKind(), err)
			}
		}
		return scanner.Err()
	},
}

// messagePrinter prints each message once, in the order the view shows them.
type messagePrinter struct {
	mu    sync.Mutex
	epoch uint64
	seen  map[int64]bool
}

func (p *messagePrinter) print(s client.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.Epoch != p.epoch {
		p.epoch = s.Epoch
		p.seen = map[int64]bool{}
		if !s.Active.IsNone() {
			fmt.Printf("== %s\n", s.Active)
		}
	}
	for _, m := range s.Messages {
		if p.seen[m.ID] {
			continue
		}
		p.seen[m.ID] = true
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04:05"), m.SenderID, m.Body)
	}
}

var tokenCmd = &cobra.Command{
	Use:   "token <member-id>",
	Short: "Sign a development token with the server secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, _ := cmd.Flags().GetString("secret")
		if secret == "" {
			return fmt.Errorf("--secret or JWT_SECRET is required")
		}
		issuer, _ := cmd.Flags().GetString("issuer")
		name, _ := cmd.Flags().GetString("name")
		admin, _ := cmd.Flags().GetBool("admin")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		claims := middleware.Claims{
			UserID:    args[0],
			Username:  args[0],
			Name:      name,
			Roles:     []string{string(models.RoleMember)},
			ExpiresAt: time.Now().Add(ttl).Unix(),
		}
		if admin {
			claims.Roles = append(claims.Roles, string(models.RoleAdmin))
		}
		tok, err := middleware.IssueToken(middleware.JWTConfig{Secret: secret, Issuer: issuer}, claims)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}
