package hub

import (
	"encoding/json"
	"sync"

	"github.com/Nandu0007/collab-code-editor/protocol"
	"github.com/Nandu0007/collab-code-editor/room"
)

const inboxSize = 64

// worker owns one room. Every operation on the room and its member set is
// a closure queued on inbox and executed by the worker goroutine, giving
// single-writer semantics per room without locks.
type worker struct {
	hub     *Hub
	room    *room.Room
	members map[string]*Client
	inbox   chan func(*room.Room, map[string]*Client)
}

func (w *worker) run() {
	for fn := range w.inbox {
		fn(w.room, w.members)
	}
}

func (w *worker) do(fn func(*room.Room, map[string]*Client)) {
	w.inbox <- fn
}

// broadcast queues an event for every member except exceptID. An empty
// exceptID reaches everyone. Must be called from the worker goroutine.
func (w *worker) broadcast(exceptID, event string, data any) {
	frame, err := protocol.NewEnvelope(event, data)
	if err != nil {
		w.hub.log.Error("encode broadcast", "room", w.room.ID, "event", event, "err", err)
		return
	}
	for id, m := range w.members {
		if id == exceptID {
			continue
		}
		m.trySend(frame)
	}
}

// relay fans an accepted code-change payload out as a code-update to
// every member except the sender, preserving the payload byte for byte,
// and hands it to the bridge for other instances. Must be called from
// the worker goroutine.
func (w *worker) relay(senderID string, raw json.RawMessage) {
	frame, err := json.Marshal(protocol.Envelope{Event: protocol.EventCodeUpdate, Data: raw})
	if err != nil {
		w.hub.log.Error("encode relay", "room", w.room.ID, "err", err)
		return
	}
	for id, m := range w.members {
		if id == senderID {
			continue
		}
		m.trySend(frame)
	}
	if w.hub.bridge != nil {
		w.hub.bridge.Publish(w.room.ID, frame)
	}
}

// workerMap tracks the per-room workers. Workers are created on first
// join and live for the rest of the process, like registry rooms.
type workerMap struct {
	mu sync.RWMutex
	m  map[string]*worker
}

func (wm *workerMap) init() {
	wm.m = make(map[string]*worker)
}

func (wm *workerMap) ensure(h *Hub, roomID string) *worker {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	w, ok := wm.m[roomID]
	if !ok {
		w = &worker{
			hub:     h,
			room:    h.registry.Ensure(roomID),
			members: make(map[string]*Client),
			inbox:   make(chan func(*room.Room, map[string]*Client), inboxSize),
		}
		wm.m[roomID] = w
		go w.run()
	}
	return w
}

func (wm *workerMap) get(roomID string) (*worker, bool) {
	wm.mu.RLock()
	defer wm.mu.RUnlock()
	w, ok := wm.m[roomID]
	return w, ok
}
