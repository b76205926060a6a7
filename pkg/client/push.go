package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// EventMessageCreated is pushed to the other participants after an append
const EventMessageCreated = "message.created"

// PushEvent one event from the push channel
type PushEvent struct {
	Payload json.RawMessage `json:"payload"`
	Type    string          `json:"type"`
}

// Message decodes the payload of a message.created event
func (e *PushEvent) Message() (*Message, error) {
	if e.Type != EventMessageCreated {
		return nil, fmt.Errorf("event %q carries no message", e.Type)
	}
	var m Message
	if err := json.Unmarshal(e.Payload, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Subscribe connects to the push channel and calls fn for every event until ctx
// is cancelled or the connection drops. Push is a hint only; callers keep polling.
func (c *Client) Subscribe(ctx context.Context, fn func(PushEvent)) error {
	target := *c.base
	switch target.Scheme {
	case "https":
		target.Scheme = "wss"
	default:
		target.Scheme = "ws"
	}
	target.Path = strings.TrimRight(c.base.Path, "/") + "/ws/messages"

	header := http.Header{}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.timeout}
	conn, resp, err := dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		if resp != nil {
			return &APIError{Status: resp.StatusCode, Message: "push channel refused"}
		}
		return fmt.Errorf("dial push channel: %w", err)
	}
	defer conn.Close()

	// unblock ReadJSON on cancel
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var ev PushEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read push channel: %w", err)
		}
		fn(ev)
	}
}
