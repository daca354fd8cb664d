// Package client is the websocket client side of the CollabCode
// protocol: it dials the server, joins rooms, and turns inbound frames
// into typed callbacks. Reconnection policy is left to the caller; Dial
// itself retries with exponential backoff until the context is done.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"github.com/Nandu0007/collab-code-editor/protocol"
)

// Handlers receives inbound events. Nil entries are skipped. All
// callbacks run on the client's single read loop goroutine.
type Handlers struct {
	OnConnected     func(id string)
	OnDocumentState func(protocol.DocumentState)
	OnCodeUpdate    func(protocol.CodeChange)
	OnUserJoined    func(protocol.User)
	OnUserLeft      func(id string)
	OnUserList      func([]protocol.User)
	OnDisconnect    func(err error)
}

// Client is one connection to the server.
type Client struct {
	conn     *websocket.Conn
	handlers Handlers

	writeMu sync.Mutex
}

// Dial connects to the server at addr (host:port) and starts the read
// loop. Connection attempts back off exponentially until ctx is
// cancelled.
func Dial(ctx context.Context, addr string, handlers Handlers) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}

	var conn *websocket.Conn
	op := func() error {
		var err error
		conn, _, err = websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return nil, fmt.Errorf("dialing %s: %w", u.String(), err)
	}

	c := &Client{conn: conn, handlers: handlers}
	go c.readLoop()
	return c, nil
}

// Join registers this connection in a room under the given display name.
// The server answers with document-state and user-list frames.
func (c *Client) Join(roomID, name string) error {
	return c.sendEvent(protocol.EventJoinRoom, protocol.JoinRoom{
		RoomID: roomID,
		User:   protocol.User{Name: name, Cursor: protocol.Cursor{Line: 1, Column: 1}},
	})
}

// RequestDocument asks for the room's current snapshot.
func (c *Client) RequestDocument(roomID string) error {
	return c.sendEvent(protocol.EventRequestDocument, roomID)
}

// SendChange submits a code-change message.
func (c *Client) SendChange(cc protocol.CodeChange) error {
	return c.sendEvent(protocol.EventCodeChange, cc)
}

// Close tears the connection down. The read loop reports the closure via
// OnDisconnect.
func (c *Client) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	// Best-effort close handshake.
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

func (c *Client) sendEvent(event string, data any) error {
	frame, err := protocol.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) readLoop() {
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if c.handlers.OnDisconnect != nil {
				c.handlers.OnDisconnect(err)
			}
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env protocol.Envelope) {
	switch env.Event {
	case protocol.EventConnected:
		var conn protocol.Connected
		if json.Unmarshal(env.Data, &conn) == nil && c.handlers.OnConnected != nil {
			c.handlers.OnConnected(conn.ID)
		}
	case protocol.EventDocumentState:
		var ds protocol.DocumentState
		if json.Unmarshal(env.Data, &ds) == nil && c.handlers.OnDocumentState != nil {
			c.handlers.OnDocumentState(ds)
		}
	case protocol.EventCodeUpdate:
		var cc protocol.CodeChange
		if json.Unmarshal(env.Data, &cc) == nil && c.handlers.OnCodeUpdate != nil {
			c.handlers.OnCodeUpdate(cc)
		}
	case protocol.EventUserJoined:
		var u protocol.User
		if json.Unmarshal(env.Data, &u) == nil && c.handlers.OnUserJoined != nil {
			c.handlers.OnUserJoined(u)
		}
	case protocol.EventUserLeft:
		var id string
		if json.Unmarshal(env.Data, &id) == nil && c.handlers.OnUserLeft != nil {
			c.handlers.OnUserLeft(id)
		}
	case protocol.EventUserList:
		var users []protocol.User
		if json.Unmarshal(env.Data, &users) == nil && c.handlers.OnUserList != nil {
			c.handlers.OnUserList(users)
		}
	}
}
