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

package integration

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/emausjovem/comunidade/backend/delivery"
	"github.com/emausjovem/comunidade/backend/directory"
	"github.com/emausjovem/comunidade/backend/handlers"
	"github.com/emausjovem/comunidade/backend/identity"
	"github.com/emausjovem/comunidade/backend/messaging"
	"github.com/emausjovem/comunidade/backend/middleware"
	"github.com/emausjovem/comunidade/backend/storage"
)

// MessagingIntegration wires the messaging core so it can be mounted on a
// host application's router.
type MessagingIntegration struct {
	store     storage.Store
	broker    delivery.Broker
	directory *directory.Service
	messages  *messaging.Service
	limiter   *middleware.SendLimiter

	groupHandler   *handlers.GroupHandler
	directHandler  *handlers.DirectHandler
	messageHandler *handlers.MessageHandler
	streamHandler  *handlers.StreamHandler

	jwt            middleware.JWTConfig
	allowedOrigins []string
}

// Config holds configuration for the messaging integration
type Config struct {
	Store  storage.Store
	Broker delivery.Broker
	// Identity defaults to the member placed in the request context by the
	// auth middleware.
	Identity identity.Provider

	JWTSecret string
	JWTIssuer string

	PageLimit        int
	SendRatePerSec   float64
	SendBurst        int
	AllowedOrigins   []string
	DefaultGroupName string
}

// NewMessagingIntegration builds the services and makes sure the default
// group exists.
func NewMessagingIntegration(ctx context.Context, config *Config) (*MessagingIntegration, error) {
	if config.Store == nil {
		return nil, &ValidationError{Message: "a store is required"}
	}
	broker := config.Broker
	if broker == nil {
		broker = delivery.NewHub()
	}
	id := config.Identity
	if id == nil {
		id = identity.ContextProvider{}
	}

	dir := directory.NewService(config.Store, id)
	msgs := messaging.NewService(config.Store, dir, broker, config.PageLimit)

	if config.DefaultGroupName != "" {
		if _, err := dir.EnsureDefaultGroup(ctx, config.DefaultGroupName); err != nil {
			return nil, err
		}
	}

	var limiter *middleware.SendLimiter
	if config.SendRatePerSec > 0 {
		limiter = middleware.NewSendLimiter(config.SendRatePerSec, config.SendBurst)
	}

	return &MessagingIntegration{
		store:          config.Store,
		broker:         broker,
		directory:      dir,
		messages:       msgs,
		limiter:        limiter,
		groupHandler:   handlers.NewGroupHandler(dir),
		directHandler:  handlers.NewDirectHandler(dir),
		messageHandler: handlers.NewMessageHandler(msgs),
		streamHandler:  handlers.NewStreamHandler(dir, broker, config.AllowedOrigins),
		jwt:            middleware.JWTConfig{Secret: config.JWTSecret, Issuer: config.JWTIssuer},
		allowedOrigins: config.AllowedOrigins,
	}, nil
}

// RegisterRoutes adds the messaging routes to an existing router
// If authMiddleware is nil, it will use the built-in JWT validation
func (e *MessagingIntegration) RegisterRoutes(router *mux.Router, authMiddleware func(http.Handler) http.Handler) {
	api := router.PathPrefix("/api/chat").Subrouter()

	if authMiddleware != nil {
		api.Use(authMiddleware)
	} else {
		api.Use(middleware.NewAuthMiddleware(e.jwt, e.store))
	}

	// Groups
	api.HandleFunc("/groups", e.groupHandler.ListGroups).Methods("GET", "OPTIONS")
	api.HandleFunc("/groups", e.groupHandler.CreateGroup).Methods("POST", "OPTIONS")
	api.HandleFunc("/groups/{groupId:[0-9]+}", e.groupHandler.GetGroup).Methods("GET", "OPTIONS")
	api.HandleFunc("/groups/{groupId:[0-9]+}", e.groupHandler.UpdateGroup).Methods("PUT", "OPTIONS")
	api.HandleFunc("/groups/{groupId:[0-9]+}", e.groupHandler.DeleteGroup).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/groups/{groupId:[0-9]+}/members", e.groupHandler.GetGroupMembers).Methods("GET", "OPTIONS")
	api.HandleFunc("/groups/{groupId:[0-9]+}/members", e.groupHandler.GrantAccess).Methods("POST", "OPTIONS")
	api.HandleFunc("/groups/{groupId:[0-9]+}/members/{memberId}", e.groupHandler.RevokeAccess).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/members", e.groupHandler.ListMembers).Methods("GET", "OPTIONS")

	// Direct threads
	api.HandleFunc("/direct", e.directHandler.ListThreads).Methods("GET", "OPTIONS")
	api.HandleFunc("/direct", e.directHandler.ResolveThread).Methods("POST", "OPTIONS")
	api.HandleFunc("/direct/{peerId}", e.directHandler.ClearThread).Methods("DELETE", "OPTIONS")

	// Messages
	send := http.Handler(http.HandlerFunc(e.messageHandler.SendMessage))
	if e.limiter != nil {
		send = e.limiter.Middleware(send)
	}
	api.HandleFunc("/conversations/{ref}/messages", e.messageHandler.GetMessages).Methods("GET", "OPTIONS")
	api.Handle("/conversations/{ref}/messages", send).Methods("POST", "OPTIONS")
	api.HandleFunc("/conversations/{ref}/stream", e.streamHandler.Stream).Methods("GET")
}

// Directory returns the conversation directory service.
func (e *MessagingIntegration) Directory() *directory.Service {
	return e.directory
}

// Messages returns the message store service.
func (e *MessagingIntegration) Messages() *messaging.Service {
	return e.messages
}

func (e *MessagingIntegration) Broker() delivery.Broker {
	return e.broker
}

// ValidateSetup checks if the messaging module is properly configured
func (e *MessagingIntegration) ValidateSetup(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return err
	}

	if e.jwt.Secret == "" {
		return &ValidationError{Message: "JWT secret is not configured"}
	}

	return nil
}

// Shutdown stops background work owned by the integration.
func (e *MessagingIntegration) Shutdown() {
	if e.limiter != nil {
		e.limiter.Shutdown()
	}
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
