// Package room holds the authoritative per-room document state: content,
// version counter, language tag, and the member registry.
//
// A Room is not safe for concurrent use. The hub funnels every mutation of
// a given room through that room's single worker goroutine, so no locking
// is needed here; only the Registry map itself is guarded.
package room

import (
	"sort"
	"sync"

	"github.com/Nandu0007/collab-code-editor/diff"
	"github.com/Nandu0007/collab-code-editor/protocol"
)

// Room is one collaboration session's state.
type Room struct {
	ID       string
	content  string
	version  int64
	language string
	users    map[string]protocol.User
}

func newRoom(id string) *Room {
	r := &Room{ID: id, users: make(map[string]protocol.User)}
	r.Reset()
	return r
}

// Reset returns the room to its default document, version 0, and default
// language. Members are untouched; the hub calls this once the last one
// has left.
func (r *Room) Reset() {
	r.content = protocol.DefaultContent
	r.version = 0
	r.language = protocol.DefaultLanguage
}

// ApplyEdit validates and applies a single splice. On success the content
// is replaced and the version incremented exactly once; on conflict the
// room is left unchanged and the error wraps diff.ErrConflict.
func (r *Room) ApplyEdit(e *protocol.Edit) (int64, error) {
	next, err := diff.Apply(r.content, e)
	if err != nil {
		return r.version, err
	}
	r.content = next
	r.version++
	return r.version, nil
}

// ApplyFullContent unconditionally replaces the document and increments
// the version. Used when a sender declares itself authoritative.
func (r *Room) ApplyFullContent(content string) int64 {
	r.content = content
	r.version++
	return r.version
}

// SetLanguage updates the language tag. Content and version are untouched.
func (r *Room) SetLanguage(lang string) {
	r.language = lang
}

// Snapshot returns the document state sent at join and on explicit
// request.
func (r *Room) Snapshot() protocol.DocumentState {
	return protocol.DocumentState{
		Content:  r.content,
		Version:  r.version,
		Language: r.language,
	}
}

// AddUser registers u under its id, replacing any previous entry.
func (r *Room) AddUser(u protocol.User) {
	r.users[u.ID] = u
}

// RemoveUser drops the user with the given id. It reports whether the
// user was present and whether the room is now empty.
func (r *Room) RemoveUser(id string) (removed, empty bool) {
	if _, ok := r.users[id]; !ok {
		return false, len(r.users) == 0
	}
	delete(r.users, id)
	return true, len(r.users) == 0
}

// HasUser reports whether id is a current member.
func (r *Room) HasUser(id string) bool {
	_, ok := r.users[id]
	return ok
}

// Users returns the member list ordered by id for deterministic fanout.
func (r *Room) Users() []protocol.User {
	out := make([]protocol.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UserCount returns the number of current members.
func (r *Room) UserCount() int {
	return len(r.users)
}

// Registry is the set of known rooms, created lazily on first join. Rooms
// are reset when emptied, never removed.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Ensure returns the room with the given id, creating it with defaults if
// it has not been seen before.
func (g *Registry) Ensure(id string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[id]
	if !ok {
		r = newRoom(id)
		g.rooms[id] = r
	}
	return r
}

// Get returns the room with the given id, or false if it was never
// created. Messages addressed to unknown rooms are dropped by the caller.
func (g *Registry) Get(id string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[id]
	return r, ok
}

// Len returns the number of rooms ever created.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}
