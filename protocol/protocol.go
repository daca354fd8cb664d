// Package protocol defines the JSON messages exchanged between the
// CollabCode server and its clients over a single websocket connection.
// Each frame is an Envelope; Envelope.Data decodes into the payload
// struct matching Envelope.Event.
package protocol

import "encoding/json"

// Events carried in Envelope.Event.
const (
	// Client to server.
	EventJoinRoom        = "join-room"
	EventRequestDocument = "request-document"
	EventCodeChange      = "code-change"

	// Server to client.
	EventConnected     = "connected"
	EventDocumentState = "document-state"
	EventCodeUpdate    = "code-update"
	EventUserJoined    = "user-joined"
	EventUserLeft      = "user-left"
	EventUserList      = "user-list"
)

// CodeChange.Type values. Anything else is relayed to the room verbatim.
const (
	ChangeEdit               = "edit"
	ChangeFullContent        = "full-content"
	ChangeLanguageChange     = "language-change"
	ChangeRequestFullContent = "request-full-content"
)

// ServerUserID tags server-originated code updates, e.g. the full-content
// repair sent back after a rejected edit.
const ServerUserID = "server"

// MDNSService is the service type the server registers on the LAN and
// clients browse for.
const MDNSService = "_collabcode._tcp"

// DefaultContent is the document every room starts with, and returns to
// when its last user leaves.
const DefaultContent = "// Welcome to CollabCode!\n// Start typing here...\n\nfunction example() {\n  return \"Hello, world!\";\n}"

// DefaultLanguage is the language tag of a fresh room.
const DefaultLanguage = "javascript"

// Languages are the tags a client may select. The server stores whatever
// tag it is given; this list exists for UIs and the agent's validation.
var Languages = []string{"javascript", "python", "java", "html", "css"}

// Colors is the palette user colors are drawn from, duplicates included.
var Colors = []string{
	"#3498db", "#e74c3c", "#2ecc71", "#f39c12",
	"#9b59b6", "#1abc9c", "#d35400", "#c0392b",
	"#16a085", "#27ae60", "#2980b9", "#8e44ad",
	"#f1c40f", "#e67e22", "#d35400", "#c0392b",
	"#1abc9c", "#2ecc71", "#3498db", "#9b59b6",
}

// Envelope is the outer frame of every message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewEnvelope marshals data and wraps it in an Envelope, returning the
// encoded frame.
func NewEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// Connected is the payload of EventConnected, the first frame sent on a
// new connection. It carries the server-assigned connection id, which is
// also the user id for every room joined over this connection.
type Connected struct {
	ID string `json:"id"`
}

// Cursor is an advisory caret position. It plays no part in conflict
// resolution.
type Cursor struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// User describes a room member. ID and Color are assigned by the server;
// any client-proposed values are overwritten at join.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Color  string `json:"color"`
	Cursor Cursor `json:"cursor"`
}

// JoinRoom is the payload of EventJoinRoom.
type JoinRoom struct {
	RoomID string `json:"roomId"`
	User   User   `json:"user"`
}

// DocumentState is the payload of EventDocumentState: the authoritative
// snapshot sent at join and in answer to EventRequestDocument.
type DocumentState struct {
	Content  string `json:"content"`
	Version  int64  `json:"version"`
	Language string `json:"language"`
}

// Edit is a single contiguous splice: Removed is replaced by Inserted at
// byte offset Position. Positions index bytes of the UTF-8 content.
type Edit struct {
	Position int    `json:"position"`
	Removed  string `json:"removed"`
	Inserted string `json:"inserted"`
}

// Span is the length delta the edit applies to its target.
func (e Edit) Span() int {
	return len(e.Inserted) - len(e.Removed)
}

// CodeChange is the payload of EventCodeChange and of the mirrored
// EventCodeUpdate broadcast. Which fields are set depends on Type.
type CodeChange struct {
	Room      string `json:"room"`
	Type      string `json:"type"`
	Diff      *Edit  `json:"diff,omitempty"`
	Content   string `json:"content,omitempty"`
	Language  string `json:"language,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}
