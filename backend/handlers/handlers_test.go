// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gorilla/mux"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/handlers"
	"github.com/emausjovem/comunidade/backend/identity"
	"github.com/emausjovem/comunidade/backend/models"
)

var _ = Describe("StatusFor", func() {
	DescribeTable("maps error kinds to statuses",
		func(kind chaterr.Kind, status int) {
			Expect(handlers.StatusFor(kind)).To(Equal(status))
		},
		Entry("validation", chaterr.KindValidation, http.StatusBadRequest),
		Entry("permission", chaterr.KindPermission, http.StatusForbidden),
		Entry("not found", chaterr.KindNotFound, http.StatusNotFound),
		Entry("transient", chaterr.KindTransient, http.StatusServiceUnavailable),
		Entry("internal", chaterr.KindInternal, http.StatusInternalServerError),
	)
})

var _ = Describe("Handlers", func() {
	var (
		groups   *mockGroups
		threads  *mockThreads
		messages *mockMessages
		router   *mux.Router
		caller   models.Member
	)

	BeforeEach(func() {
		groups = &mockGroups{}
		threads = &mockThreads{}
		messages = &mockMessages{}
		caller = models.Member{ID: "alice", Name: "Alice", Role: models.RoleMember}

		gh := handlers.NewGroupHandler(groups)
		dh := handlers.NewDirectHandler(threads)
		mh := handlers.NewMessageHandler(messages)

		router = mux.NewRouter()
		api := router.PathPrefix("/api/chat").Subrouter()
		api.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(identity.WithMember(r.Context(), caller)))
			})
		})
		api.HandleFunc("/groups", gh.ListGroups).Methods("GET")
		api.HandleFunc("/groups", gh.CreateGroup).Methods("POST")
		api.HandleFunc("/groups/{groupId:[0-9]+}", gh.GetGroup).Methods("GET")
		api.HandleFunc("/groups/{groupId:[0-9]+}", gh.DeleteGroup).Methods("DELETE")
		api.HandleFunc("/groups/{groupId:[0-9]+}/members", gh.GrantAccess).Methods("POST")
		api.HandleFunc("/members", gh.ListMembers).Methods("GET")
		api.HandleFunc("/direct", dh.ResolveThread).Methods("POST")
		api.HandleFunc("/direct/{peerId}", dh.ClearThread).Methods("DELETE")
		api.HandleFunc("/conversations/{ref}/messages", mh.GetMessages).Methods("GET")
		api.HandleFunc("/conversations/{ref}/messages", mh.SendMessage).Methods("POST")
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		var r *http.Request
		if body == "" {
			r = httptest.NewRequest(method, path, nil)
		} else {
			r = httptest.NewRequest(method, path, strings.NewReader(body))
			r.Header.Set("Content-Type", "application/json")
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		return w
	}

	errorBody := func(w *httptest.ResponseRecorder) handlers.ErrorResponse {
		var e handlers.ErrorResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &e)).To(Succeed())
		return e
	}

	Describe("groups", func() {
		It("lists groups with a count and passes the search query", func() {
			var query string
			groups.searchFn = func(_ context.Context, q string) ([]models.Group, error) {
				query = q
				return []models.Group{{ID: 1, Name: "Geral"}}, nil
			}
			w := do(http.MethodGet, "/api/chat/groups?q=ger", "")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(query).To(Equal("ger"))

			var body struct {
				Groups []models.Group `json:"groups"`
				Count  int            `json:"count"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Count).To(Equal(1))
			Expect(body.Groups[0].Name).To(Equal("Geral"))
		})

		It("creates a group with 201", func() {
			groups.createFn = func(_ context.Context, in models.GroupInput) (models.Group, error) {
				return models.Group{ID: 4, Name: in.Name, Description: in.Description, Visibility: in.Visibility}, nil
			}
			w := do(http.MethodPost, "/api/chat/groups", `{"name":"Youth","description":"d","visibility":"private"}`)
			Expect(w.Code).To(Equal(http.StatusCreated))

			var g models.Group
			Expect(json.Unmarshal(w.Body.Bytes(), &g)).To(Succeed())
			Expect(g.ID).To(Equal(int64(4)))
			Expect(g.Visibility).To(Equal(models.VisibilityPrivate))
		})

		It("reports a non-admin create as 403", func() {
			groups.createFn = func(context.Context, models.GroupInput) (models.Group, error) {
				return models.Group{}, chaterr.Permission("only administrators can create groups")
			}
			w := do(http.MethodPost, "/api/chat/groups", `{"name":"Youth","description":"d"}`)
			Expect(w.Code).To(Equal(http.StatusForbidden))
			Expect(errorBody(w).Kind).To(Equal("permission"))
		})

		It("rejects malformed JSON with 400", func() {
			w := do(http.MethodPost, "/api/chat/groups", `{"name":`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(errorBody(w).Kind).To(Equal("validation"))
		})

		It("reports a deleted group as 404", func() {
			groups.getFn = func(context.Context, int64) (models.Group, error) {
				return models.Group{}, chaterr.NotFound("group 9 not found")
			}
			w := do(http.MethodGet, "/api/chat/groups/9", "")
			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(errorBody(w)).To(Equal(handlers.ErrorResponse{Error: "group 9 not found", Kind: "not_found"}))
		})

		It("deletes a group", func() {
			var deleted int64
			groups.deleteFn = func(_ context.Context, id int64) error {
				deleted = id
				return nil
			}
			w := do(http.MethodDelete, "/api/chat/groups/3", "")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(deleted).To(Equal(int64(3)))
		})

		It("grants access to a member", func() {
			var granted string
			groups.grantFn = func(_ context.Context, _ int64, memberID string) error {
				granted = memberID
				return nil
			}
			w := do(http.MethodPost, "/api/chat/groups/3/members", `{"member_id":"bob"}`)
			Expect(w.Code).To(BeNumerically("<", 300))
			Expect(granted).To(Equal("bob"))
		})

		It("hides internal errors", func() {
			groups.membersFn = func(context.Context) ([]models.Member, error) {
				return nil, errors.New("pq: relation members does not exist")
			}
			w := do(http.MethodGet, "/api/chat/members", "")
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(errorBody(w).Error).To(Equal("internal error"))
		})

		It("asks clients to retry transient failures", func() {
			groups.membersFn = func(context.Context) ([]models.Member, error) {
				return nil, chaterr.Transient(context.DeadlineExceeded, "list members")
			}
			w := do(http.MethodGet, "/api/chat/members", "")
			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(w.Header().Get("Retry-After")).NotTo(BeEmpty())
		})
	})

	Describe("direct threads", func() {
		It("resolves a thread for the caller and a peer", func() {
			threads.resolveFn = func(_ context.Context, a, b string) (models.ThreadHandle, error) {
				pair, err := models.NewDirectPair(a, b)
				Expect(err).NotTo(HaveOccurred())
				return models.ThreadHandle{ID: 7, Pair: pair}, nil
			}
			w := do(http.MethodPost, "/api/chat/direct", `{"peer_id":"bob"}`)
			Expect(w.Code).To(Equal(http.StatusOK))

			var resp handlers.ThreadResponse
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.PeerID).To(Equal("bob"))
			Expect(resp.Conversation).To(Equal("direct:alice:bob"))
		})

		It("requires a peer", func() {
			w := do(http.MethodPost, "/api/chat/direct", `{}`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("clears the thread with the peer", func() {
			var cleared models.DirectPair
			threads.clearFn = func(_ context.Context, pair models.DirectPair) (int64, error) {
				cleared = pair
				return 4, nil
			}
			w := do(http.MethodDelete, "/api/chat/direct/bob", "")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(cleared).To(Equal(models.DirectPair{Low: "alice", High: "bob"}))

			var body map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
			Expect(body["deleted"]).To(BeNumerically("==", 4))
		})

		It("rejects clearing a thread with oneself", func() {
			w := do(http.MethodDelete, "/api/chat/direct/alice", "")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("messages", func() {
		It("fetches a page with the requested limit", func() {
			var gotRef models.ConversationRef
			var gotLimit int
			messages.fetchFn = func(_ context.Context, ref models.ConversationRef, limit int) ([]models.Message, error) {
				gotRef, gotLimit = ref, limit
				return []models.Message{{ID: 1, Conversation: ref, SenderID: "bob", Body: "oi"}}, nil
			}
			w := do(http.MethodGet, "/api/chat/conversations/group:12/messages?limit=20", "")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(gotRef).To(Equal(models.GroupRef(12)))
			Expect(gotLimit).To(Equal(20))

			var body struct {
				Conversation string           `json:"conversation"`
				Messages     []models.Message `json:"messages"`
				Count        int              `json:"count"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Conversation).To(Equal("group:12"))
			Expect(body.Count).To(Equal(1))
		})

		It("parses direct refs", func() {
			var gotRef models.ConversationRef
			messages.fetchFn = func(_ context.Context, ref models.ConversationRef, _ int) ([]models.Message, error) {
				gotRef = ref
				return []models.Message{}, nil
			}
			w := do(http.MethodGet, "/api/chat/conversations/direct:alice:bob/messages", "")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(gotRef).To(Equal(models.DirectRef(models.DirectPair{Low: "alice", High: "bob"})))
		})

		DescribeTable("rejects bad input with 400",
			func(path string) {
				messages.fetchFn = func(context.Context, models.ConversationRef, int) ([]models.Message, error) {
					Fail("store should not be reached")
					return nil, nil
				}
				w := do(http.MethodGet, path, "")
				Expect(w.Code).To(Equal(http.StatusBadRequest))
			},
			Entry("unknown kind", "/api/chat/conversations/channel:1/messages"),
			Entry("bad limit", "/api/chat/conversations/group:1/messages?limit=many"),
		)

		It("sends as the caller and answers 201", func() {
			var sender, body string
			messages.appendFn = func(_ context.Context, ref models.ConversationRef, senderID, b string) (models.Message, error) {
				sender, body = senderID, b
				return models.Message{ID: 5, Conversation: ref, SenderID: senderID, Body: b}, nil
			}
			w := do(http.MethodPost, "/api/chat/conversations/group:1/messages", `{"body":"hello"}`)
			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(sender).To(Equal("alice"))
			Expect(body).To(Equal("hello"))
		})

		It("maps an empty body to 400", func() {
			messages.appendFn = func(context.Context, models.ConversationRef, string, string) (models.Message, error) {
				return models.Message{}, chaterr.Validation("message body is empty")
			}
			w := do(http.MethodPost, "/api/chat/conversations/group:1/messages", `{"body":"  "}`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(errorBody(w).Kind).To(Equal("validation"))
		})
	})
})
