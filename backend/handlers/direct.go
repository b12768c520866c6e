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

	"github.com/gorilla/mux"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/middleware"
	"github.com/emausjovem/comunidade/backend/models"
)

// DirectService is the direct thread side of the conversation directory.
type DirectService interface {
	ResolveDirectThread(ctx context.Context, a, b string) (models.ThreadHandle, error)
	ListDirectThreads(ctx context.Context) ([]models.ThreadHandle, error)
	ClearDirectThread(ctx context.Context, pair models.DirectPair) (int64, error)
}

type DirectHandler struct {
	threads DirectService
}

func NewDirectHandler(threads DirectService) *DirectHandler {
	return &DirectHandler{threads: threads}
}

// ThreadResponse describes a direct thread from the caller's side.
type ThreadResponse struct {
	Thread       models.ThreadHandle `json:"thread"`
	PeerID       string              `json:"peer_id"`
	Conversation string              `json:"conversation"`
}

func threadResponse(t models.ThreadHandle, memberID string) ThreadResponse {
	return ThreadResponse{
		Thread:       t,
		PeerID:       t.Pair.Peer(memberID),
		Conversation: t.Ref().String(),
	}
}

// ResolveThread creates or retrieves the direct thread between the caller and
// a peer. Both sides get the same thread whichever of them asks first.
// POST /api/chat/direct
func (h *DirectHandler) ResolveThread(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		writeError(w, r, chaterr.Permission("unauthorized"))
		return
	}

	var req struct {
		PeerID string `json:"peer_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.PeerID == "" {
		writeError(w, r, chaterr.Validation("peer_id is required"))
		return
	}

	t, err := h.threads.ResolveDirectThread(r.Context(), userID, req.PeerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, threadResponse(t, userID))
}

// ListThreads lists the caller's direct threads, most recent activity first
// GET /api/chat/direct
func (h *DirectHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		writeError(w, r, chaterr.Permission("unauthorized"))
		return
	}

	threads, err := h.threads.ListDirectThreads(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]ThreadResponse, 0, len(threads))
	for _, t := range threads {
		out = append(out, threadResponse(t, userID))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"threads": out,
		"count":   len(out),
	})
}

// ClearThread deletes the history between the caller and {peerId}. An
// administrator may name another participant with ?member=.
// DELETE /api/chat/direct/{peerId}
func (h *DirectHandler) ClearThread(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		writeError(w, r, chaterr.Permission("unauthorized"))
		return
	}
	if other := r.URL.Query().Get("member"); other != "" {
		userID = other
	}

	pair, err := models.NewDirectPair(userID, mux.Vars(r)["peerId"])
	if err != nil {
		writeError(w, r, chaterr.Validation("%s", err.Error()))
		return
	}

	n, err := h.threads.ClearDirectThread(r.Context(), pair)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "cleared",
		"deleted": n,
	})
}
