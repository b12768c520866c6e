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

	"github.com/emausjovem/comunidade/backend/models"
)

// GroupService is the group side of the conversation directory.
type GroupService interface {
	SearchGroups(ctx context.Context, query string) ([]models.Group, error)
	GetGroup(ctx context.Context, groupID int64) (models.Group, error)
	CreateGroup(ctx context.Context, in models.GroupInput) (models.Group, error)
	UpdateGroup(ctx context.Context, groupID int64, in models.GroupInput) (models.Group, error)
	DeleteGroup(ctx context.Context, groupID int64) error
	GrantAccess(ctx context.Context, groupID int64, memberID string) error
	RevokeAccess(ctx context.Context, groupID int64, memberID string) error
	GroupAccess(ctx context.Context, groupID int64) ([]string, error)
	ListMembers(ctx context.Context) ([]models.Member, error)
}

type GroupHandler struct {
	groups GroupService
}

func NewGroupHandler(groups GroupService) *GroupHandler {
	return &GroupHandler{groups: groups}
}

// ListGroups returns the caller's visible groups, filtered by ?q= when given
// GET /api/chat/groups
func (h *GroupHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.SearchGroups(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"groups": groups,
		"count":  len(groups),
	})
}

// GET /api/chat/groups/{groupId}
func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathInt64(r, "groupId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	g, err := h.groups.GetGroup(r.Context(), groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// POST /api/chat/groups
func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var in models.GroupInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	g, err := h.groups.CreateGroup(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// PUT /api/chat/groups/{groupId}
func (h *GroupHandler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathInt64(r, "groupId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in models.GroupInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	g, err := h.groups.UpdateGroup(r.Context(), groupID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// DELETE /api/chat/groups/{groupId}
func (h *GroupHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathInt64(r, "groupId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.groups.DeleteGroup(r.Context(), groupID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /api/chat/groups/{groupId}/members
func (h *GroupHandler) GetGroupMembers(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathInt64(r, "groupId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	members, err := h.groups.GroupAccess(r.Context(), groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"group_id": groupID,
		"members":  members,
	})
}

// POST /api/chat/groups/{groupId}/members
func (h *GroupHandler) GrantAccess(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathInt64(r, "groupId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		MemberID string `json:"member_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.groups.GrantAccess(r.Context(), groupID, req.MemberID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "granted"})
}

// DELETE /api/chat/groups/{groupId}/members/{memberId}
func (h *GroupHandler) RevokeAccess(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathInt64(r, "groupId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.groups.RevokeAccess(r.Context(), groupID, mux.Vars(r)["memberId"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// ListMembers feeds the direct chat picker
// GET /api/chat/members
func (h *GroupHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.groups.ListMembers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"members": members,
		"count":   len(members),
	})
}
