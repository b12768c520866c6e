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

// Package remote talks to a comunidade server over HTTP and websockets and
// satisfies the ports the client package consumes.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/models"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

// New returns a client for the server at baseURL authenticating with token.
func New(baseURL, token string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return &Client{
		baseURL: u,
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}, nil
}

// endpoint joins an already escaped path onto the API root.
func (c *Client) endpoint(scheme, path string, query url.Values) (string, error) {
	u := *c.baseURL
	u.Scheme = scheme
	u.RawPath = c.baseURL.EscapedPath() + "/api/chat" + path
	decoded, err := url.PathUnescape(u.RawPath)
	if err != nil {
		return "", err
	}
	u.Path = decoded
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

func refPath(ref models.ConversationRef) string {
	return "/conversations/" + url.PathEscape(ref.String())
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	target, err := c.endpoint(c.baseURL.Scheme, path, query)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return chaterr.FromInfra(err, method+" "+path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}
	if body.Error == "" {
		body.Error = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return chaterr.Validation("%s", body.Error)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return chaterr.Permission("%s", body.Error)
	case resp.StatusCode == http.StatusNotFound:
		return chaterr.NotFound("%s", body.Error)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 502 && resp.StatusCode <= 504:
		return chaterr.Transient(nil, "%s", body.Error)
	}
	return fmt.Errorf("server error (%d): %s", resp.StatusCode, body.Error)
}

// --- Directory --------------------------------------------------------------

func (c *Client) ListGroups(ctx context.Context) ([]models.Group, error) {
	return c.SearchGroups(ctx, "")
}

func (c *Client) SearchGroups(ctx context.Context, query string) ([]models.Group, error) {
	var q url.Values
	if query != "" {
		q = url.Values{"q": {query}}
	}
	var out struct {
		Groups []models.Group `json:"groups"`
	}
	if err := c.do(ctx, http.MethodGet, "/groups", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Groups, nil
}

func (c *Client) ListMembers(ctx context.Context) ([]models.Member, error) {
	var out struct {
		Members []models.Member `json:"members"`
	}
	if err := c.do(ctx, http.MethodGet, "/members", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Members, nil
}

func (c *Client) CreateGroup(ctx context.Context, in models.GroupInput) (models.Group, error) {
	var g models.Group
	err := c.do(ctx, http.MethodPost, "/groups", nil, in, &g)
	return g, err
}

func (c *Client) UpdateGroup(ctx context.Context, groupID int64, in models.GroupInput) (models.Group, error) {
	var g models.Group
	err := c.do(ctx, http.MethodPut, "/groups/"+strconv.FormatInt(groupID, 10), nil, in, &g)
	return g, err
}

func (c *Client) DeleteGroup(ctx context.Context, groupID int64) error {
	return c.do(ctx, http.MethodDelete, "/groups/"+strconv.FormatInt(groupID, 10), nil, nil, nil)
}

// ResolveDirectThread opens the thread between the caller and peerID.
func (c *Client) ResolveDirectThread(ctx context.Context, peerID string) (models.ThreadHandle, error) {
	var out struct {
		Thread models.ThreadHandle `json:"thread"`
	}
	err := c.do(ctx, http.MethodPost, "/direct", nil, map[string]string{"peer_id": peerID}, &out)
	return out.Thread, err
}

func (c *Client) ListDirectThreads(ctx context.Context) ([]models.ThreadHandle, error) {
	var out struct {
		Threads []struct {
			Thread models.ThreadHandle `json:"thread"`
		} `json:"threads"`
	}
	if err := c.do(ctx, http.MethodGet, "/direct", nil, nil, &out); err != nil {
		return nil, err
	}
	threads := make([]models.ThreadHandle, 0, len(out.Threads))
	for _, t := range out.Threads {
		threads = append(threads, t.Thread)
	}
	return threads, nil
}

// --- Messages ---------------------------------------------------------------

func (c *Client) FetchMessages(ctx context.Context, ref models.ConversationRef, limit int) ([]models.Message, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, refPath(ref)+"/messages", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// AppendMessage sends body as the authenticated member. senderID is checked
// by the server against the token.
func (c *Client) AppendMessage(ctx context.Context, ref models.ConversationRef, senderID, body string) (models.Message, error) {
	var msg models.Message
	err := c.do(ctx, http.MethodPost, refPath(ref)+"/messages", nil, map[string]string{"body": body}, &msg)
	return msg, err
}
