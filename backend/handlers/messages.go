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

package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/middleware"
	"github.com/emausjovem/comunidade/backend/models"
)

type MessageService interface {
	FetchMessages(ctx context.Context, ref models.ConversationRef, limit int) ([]models.Message, error)
	AppendMessage(ctx context.Context, ref models.ConversationRef, senderID, body string) (models.Message, error)
}

type MessageHandler struct {
	messages MessageService
}

func NewMessageHandler(messages MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// conversationRef reads {ref}, e.g. group:12 or direct:alice:bob
func conversationRef(r *http.Request) (models.ConversationRef, error) {
	ref, err := models.ParseConversationRef(mux.Vars(r)["ref"])
	if err != nil {
		return models.ConversationRef{}, chaterr.Validation("%s", err.Error())
	}
	return ref, nil
}

// GetMessages returns the newest page of a conversation, oldest first
// GET /api/chat/conversations/{ref}/messages?limit=
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	ref, err := conversationRef(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, chaterr.Validation("invalid limit %q", raw))
			return
		}
	}

	msgs, err := h.messages.FetchMessages(r.Context(), ref, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation": ref.String(),
		"messages":     msgs,
		"count":        len(msgs),
	})
}

// SendMessage appends a message from the caller
// POST /api/chat/conversations/{ref}/messages
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		writeError(w, r, chaterr.Permission("unauthorized"))
		return
	}
	ref, err := conversationRef(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	msg, err := h.messages.AppendMessage(r.Context(), ref, userID, req.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
