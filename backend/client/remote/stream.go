// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emausjovem/comunidade/backend/chaterr"
	"github.com/emausjovem/comunidade/backend/delivery"
	"github.com/emausjovem/comunidade/backend/handlers"
	"github.com/emausjovem/comunidade/backend/logger"
	"github.com/emausjovem/comunidade/backend/models"
)

const readyWait = 10 * time.Second

var _ delivery.Channel = (*Client)(nil)

type streamSubscription struct {
	ws   *websocket.Conn
	stop chan struct{}
	once sync.Once
}

func (s *streamSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		_ = s.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = s.ws.Close()
	})
	return err
}

// Subscribe opens the conversation's websocket stream and returns once the
// server has confirmed the subscription. A dropped connection just ends the
// event flow; callers rely on reconciliation to catch up.
func (c *Client) Subscribe(ctx context.Context, ref models.ConversationRef, h delivery.Handler) (delivery.Subscription, error) {
	scheme := "ws"
	if c.baseURL.Scheme == "https" {
		scheme = "wss"
	}
	target, err := c.endpoint(scheme, refPath(ref)+"/stream", nil)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)
	dialer := websocket.Dialer{HandshakeTimeout: readyWait}
	ws, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, decodeError(resp)
		}
		return nil, chaterr.FromInfra(err, "open stream")
	}

	first, err := awaitReady(ws, ref)
	if err != nil {
		ws.Close()
		return nil, err
	}

	sub := &streamSubscription{ws: ws, stop: make(chan struct{})}
	queue := delivery.NewQueue()
	if first != nil {
		delivery.Offer(queue, *first)
	}
	go delivery.Pump(queue, sub.stop, h)
	go c.readStream(logger.WithComponent(ctx, "comunidade.client.stream"), sub, ref, queue)
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Unsubscribe()
		case <-sub.stop:
		}
	}()

	return sub, nil
}

// awaitReady reads the first frame. The server subscribes before it says
// ready, so a message frame is just as good a confirmation; it is returned so
// the event is not lost.
func awaitReady(ws *websocket.Conn, ref models.ConversationRef) (*models.Event, error) {
	_ = ws.SetReadDeadline(time.Now().Add(readyWait))
	defer ws.SetReadDeadline(time.Time{})

	var frame handlers.StreamFrame
	if err := ws.ReadJSON(&frame); err != nil {
		return nil, chaterr.FromInfra(err, "await stream ready")
	}
	switch frame.Type {
	case handlers.FrameReady:
		return nil, nil
	case handlers.FrameMessage:
		return &models.Event{Conversation: ref, MessageID: frame.MessageID}, nil
	}
	return nil, fmt.Errorf("unexpected first stream frame %q", frame.Type)
}

func (c *Client) readStream(ctx context.Context, sub *streamSubscription, ref models.ConversationRef, queue chan models.Event) {
	defer sub.Unsubscribe()
	for {
		_, data, err := sub.ws.ReadMessage()
		if err != nil {
			select {
			case <-sub.stop:
			default:
				slog.DebugContext(ctx, "stream ended", "conversation", ref.String(), "error", err)
			}
			return
		}

		var frame handlers.StreamFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type != handlers.FrameMessage {
			continue
		}
		delivery.Offer(queue, models.Event{Conversation: ref, MessageID: frame.MessageID})
	}
}
