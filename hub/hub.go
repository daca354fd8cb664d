// Package hub routes websocket traffic between clients and room state.
// Each room gets one worker goroutine; all joins, leaves, and content
// mutations for that room run on it in arrival order, so rooms never
// contend with each other and need no locks of their own.
package hub

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Nandu0007/collab-code-editor/diff"
	"github.com/Nandu0007/collab-code-editor/protocol"
	"github.com/Nandu0007/collab-code-editor/room"
)

// Bridge fans accepted room events out to other server instances. See
// RedisBridge.
type Bridge interface {
	Publish(roomID string, frame []byte)
}

// Hub accepts websocket connections and routes their events to per-room
// workers.
type Hub struct {
	log      *slog.Logger
	registry *room.Registry
	upgrader websocket.Upgrader

	workers workerMap

	bridge Bridge
}

func New(log *slog.Logger) *Hub {
	h := &Hub{
		log:      log,
		registry: room.NewRegistry(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	h.workers.init()
	return h
}

// Registry exposes the room registry, mainly for inspection in tests.
func (h *Hub) Registry() *room.Registry {
	return h.registry
}

// SetBridge attaches a cross-instance fanout bridge. Must be called
// before the hub starts serving connections.
func (h *Hub) SetBridge(b Bridge) {
	h.bridge = b
}

// ServeWS upgrades an HTTP request to a websocket session and runs its
// read and write pumps until the connection drops.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade", "err", err)
		return
	}
	c := newClient(h, conn, uuid.NewString())
	h.log.Info("client connected", "client", c.ID, "remote", r.RemoteAddr)

	// The connection id doubles as the user id; hand it over before any
	// other traffic, the way socket.io exposes socket.id at connect.
	c.sendEvent(protocol.EventConnected, protocol.Connected{ID: c.ID})

	go c.writePump()
	c.readPump()
}

// handleJoin registers the client in the room, assigning the server-side
// identity, then fans out the snapshot and presence events.
func (h *Hub) handleJoin(c *Client, join protocol.JoinRoom) {
	if join.RoomID == "" || join.User.Name == "" {
		h.log.Warn("rejecting join with empty room or name", "client", c.ID)
		return
	}
	w := h.workers.ensure(h, join.RoomID)
	w.do(func(r *room.Room, members map[string]*Client) {
		user := join.User
		user.ID = c.ID
		user.Color = protocol.Colors[rand.Intn(len(protocol.Colors))]

		r.AddUser(user)
		members[c.ID] = c
		c.addRoom(r.ID)

		c.sendEvent(protocol.EventDocumentState, r.Snapshot())
		c.sendEvent(protocol.EventUserList, r.Users())
		w.broadcast(c.ID, protocol.EventUserJoined, user)
		w.broadcast(c.ID, protocol.EventUserList, r.Users())

		h.log.Info("user joined room", "room", r.ID, "user", user.Name, "client", c.ID)
	})
}

// handleRequestDocument answers with the current snapshot. Requests for
// unknown rooms are dropped.
func (h *Hub) handleRequestDocument(c *Client, roomID string) {
	w, ok := h.workers.get(roomID)
	if !ok {
		return
	}
	w.do(func(r *room.Room, _ map[string]*Client) {
		c.sendEvent(protocol.EventDocumentState, r.Snapshot())
	})
}

// handleCodeChange runs the per-type state machine on the addressed
// room's worker. raw is the change payload as received, relayed verbatim
// so unrecognized fields survive the round trip. Changes addressed to
// unknown rooms are dropped.
func (h *Hub) handleCodeChange(c *Client, change protocol.CodeChange, raw json.RawMessage) {
	w, ok := h.workers.get(change.Room)
	if !ok {
		return
	}
	w.do(func(r *room.Room, _ map[string]*Client) {
		switch change.Type {
		case protocol.ChangeEdit:
			version, err := r.ApplyEdit(change.Diff)
			if err != nil {
				if !errors.Is(err, diff.ErrConflict) {
					h.log.Error("apply edit", "room", r.ID, "err", err)
					return
				}
				h.log.Warn("edit conflict, sending repair",
					"room", r.ID, "client", c.ID, "err", err)
				c.sendEvent(protocol.EventCodeUpdate, protocol.CodeChange{
					Room:    r.ID,
					Type:    protocol.ChangeFullContent,
					Content: r.Snapshot().Content,
					UserID:  protocol.ServerUserID,
				})
				return
			}
			h.log.Debug("edit accepted", "room", r.ID, "version", version, "client", c.ID)
			w.relay(c.ID, raw)
		case protocol.ChangeFullContent:
			r.ApplyFullContent(change.Content)
			w.relay(c.ID, raw)
		case protocol.ChangeLanguageChange:
			r.SetLanguage(change.Language)
			w.relay(c.ID, raw)
		case protocol.ChangeRequestFullContent:
			c.sendEvent(protocol.EventCodeUpdate, protocol.CodeChange{
				Room:    r.ID,
				Type:    protocol.ChangeFullContent,
				Content: r.Snapshot().Content,
				UserID:  protocol.ServerUserID,
			})
		default:
			// Forward-compatibility escape hatch: pass unrecognized
			// change types through untouched.
			w.relay(c.ID, raw)
		}
	})
}

// dropClient removes a disconnected client from every room it joined,
// resetting rooms it leaves empty.
func (h *Hub) dropClient(c *Client) {
	for _, roomID := range c.roomIDs() {
		w, ok := h.workers.get(roomID)
		if !ok {
			continue
		}
		w.do(func(r *room.Room, members map[string]*Client) {
			delete(members, c.ID)
			removed, empty := r.RemoveUser(c.ID)
			if !removed {
				return
			}
			w.broadcast("", protocol.EventUserLeft, c.ID)
			w.broadcast("", protocol.EventUserList, r.Users())
			h.log.Info("user left room", "room", r.ID, "client", c.ID)
			if empty {
				r.Reset()
				h.log.Info("room reset", "room", r.ID)
			}
		})
	}
}

// RelayRemote delivers a frame published by another instance to every
// local member of the room. Frames for rooms unknown here are dropped.
func (h *Hub) RelayRemote(roomID string, frame []byte) {
	w, ok := h.workers.get(roomID)
	if !ok {
		return
	}
	w.do(func(_ *room.Room, members map[string]*Client) {
		for _, m := range members {
			m.trySend(frame)
		}
	})
}
