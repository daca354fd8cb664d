package hub

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Nandu0007/collab-code-editor/protocol"
)

const sendQueueSize = 256

// Client is one websocket connection. Its id doubles as the user id in
// every room joined over it.
type Client struct {
	ID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu    sync.Mutex
	rooms map[string]bool
}

func newClient(h *Hub, conn *websocket.Conn, id string) *Client {
	return &Client{
		ID:    id,
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendQueueSize),
		done:  make(chan struct{}),
		rooms: make(map[string]bool),
	}
}

// trySend queues a frame for delivery, dropping it if the client's queue
// is full or the client is gone. Never blocks a room worker.
func (c *Client) trySend(frame []byte) {
	select {
	case <-c.done:
	default:
		select {
		case c.send <- frame:
		default:
			c.hub.log.Warn("send queue full, dropping frame", "client", c.ID)
		}
	}
}

// sendEvent marshals and queues an event for this client.
func (c *Client) sendEvent(event string, data any) {
	frame, err := protocol.NewEnvelope(event, data)
	if err != nil {
		c.hub.log.Error("encode event", "event", event, "err", err)
		return
	}
	c.trySend(frame)
}

func (c *Client) addRoom(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[id] = true
}

func (c *Client) roomIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	return out
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case frame := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		close(c.done)
		c.conn.Close()
		c.hub.dropClient(c)
	}()
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.log.Info("client disconnected", "client", c.ID, "err", err)
			}
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			c.hub.log.Warn("malformed frame", "client", c.ID, "err", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env protocol.Envelope) {
	switch env.Event {
	case protocol.EventJoinRoom:
		var join protocol.JoinRoom
		if err := json.Unmarshal(env.Data, &join); err != nil {
			c.hub.log.Warn("malformed join-room", "client", c.ID, "err", err)
			return
		}
		c.hub.handleJoin(c, join)
	case protocol.EventRequestDocument:
		var roomID string
		if err := json.Unmarshal(env.Data, &roomID); err != nil {
			c.hub.log.Warn("malformed request-document", "client", c.ID, "err", err)
			return
		}
		c.hub.handleRequestDocument(c, roomID)
	case protocol.EventCodeChange:
		var change protocol.CodeChange
		if err := json.Unmarshal(env.Data, &change); err != nil {
			c.hub.log.Warn("malformed code-change", "client", c.ID, "err", err)
			return
		}
		c.hub.handleCodeChange(c, change, env.Data)
	default:
		c.hub.log.Warn("unknown event", "client", c.ID, "event", env.Event)
	}
}
