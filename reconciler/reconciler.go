// Package reconciler keeps a local editor buffer in step with the
// server's copy of a room document. It diffs local edits against the
// last-known content and sends them out, applies remote edits to the
// live buffer, and falls back to a full-content resync whenever the two
// sides disagree.
//
// The reconciler talks to its surroundings only through the Editor
// interface and the send callback, so it can drive a terminal buffer, a
// GUI widget, or a test double alike.
package reconciler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Nandu0007/collab-code-editor/diff"
	"github.com/Nandu0007/collab-code-editor/protocol"
)

// Editor is the locally rendered document the reconciler reads and
// mutates. Cursor positions are byte offsets into Content.
type Editor interface {
	Content() string
	SetContent(string)
	Cursor() int
	SetCursor(int)
	SetEnabled(bool)
	SetLanguage(string)
}

// Options tunes the reconciler's timers.
type Options struct {
	// Debounce coalesces bursts of local changes into one diff. Zero
	// sends every change immediately.
	Debounce time.Duration
	// SuppressWindow is how long after a remote apply the reconciler
	// keeps treating local change reports as echoes of that apply. It
	// covers editors that report programmatic mutations asynchronously;
	// synchronous editors can leave it at zero because self-originated
	// updates are already discarded by user id.
	SuppressWindow time.Duration
}

// ErrNotReady reports a local change arriving before the initial
// document snapshot; such changes are never sent.
var ErrNotReady = errors.New("reconciler: initial document snapshot not yet received")

// Reconciler mirrors one room's document into one Editor.
type Reconciler struct {
	mu   sync.Mutex
	ed   Editor
	send func(protocol.CodeChange) error
	opts Options

	roomID string
	userID string

	lastContent    string
	ready          bool
	applyingRemote bool
	suppressTimer  *time.Timer

	pendingContent string
	hasPending     bool
	debounceTimer  *time.Timer
}

// New creates a reconciler for roomID. send is invoked with every
// outbound code-change; it must add no fields, the reconciler fills the
// whole payload.
func New(ed Editor, roomID string, send func(protocol.CodeChange) error, opts Options) *Reconciler {
	return &Reconciler{ed: ed, send: send, roomID: roomID, opts: opts}
}

// HandleConnected records the server-assigned user id, used to tag
// outbound changes and to discard their broadcast echoes.
func (r *Reconciler) HandleConnected(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userID = userID
}

// HandleDocumentState installs the authoritative snapshot and opens the
// gate for outbound diffs.
func (r *Reconciler) HandleDocumentState(ds protocol.DocumentState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropPendingLocked()
	r.ed.SetContent(ds.Content)
	if ds.Language != "" {
		r.ed.SetLanguage(ds.Language)
	}
	r.ed.SetEnabled(true)
	r.lastContent = ds.Content
	r.ready = true
}

// HandleDisconnect disables the editor and closes the outbound gate
// until a fresh snapshot arrives after reconnecting.
func (r *Reconciler) HandleDisconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropPendingLocked()
	r.ready = false
	r.ed.SetEnabled(false)
}

// HandleCodeUpdate processes one code-update broadcast. Updates tagged
// with our own user id are echoes of something we sent and are dropped.
func (r *Reconciler) HandleCodeUpdate(cc protocol.CodeChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.userID != "" && cc.UserID == r.userID {
		return nil
	}
	switch cc.Type {
	case protocol.ChangeEdit:
		return r.applyRemoteEditLocked(cc)
	case protocol.ChangeFullContent:
		r.applyFullContentLocked(cc.Content)
		return nil
	case protocol.ChangeLanguageChange:
		r.ed.SetLanguage(cc.Language)
		return nil
	default:
		return nil
	}
}

func (r *Reconciler) applyRemoteEditLocked(cc protocol.CodeChange) error {
	current := r.ed.Content()
	next, err := diff.Apply(current, cc.Diff)
	if err != nil {
		// Local copy has diverged; ask for the authoritative document
		// instead of attempting repair.
		if sendErr := r.send(protocol.CodeChange{
			Room:   r.roomID,
			Type:   protocol.ChangeRequestFullContent,
			UserID: r.userID,
		}); sendErr != nil {
			return fmt.Errorf("requesting resync after %v: %w", err, sendErr)
		}
		return err
	}

	r.beginRemoteApplyLocked()
	cursor := r.ed.Cursor()
	r.ed.SetContent(next)
	r.lastContent = next

	if cc.Diff.Position < cursor {
		cursor += cc.Diff.Span()
		if cursor < cc.Diff.Position {
			cursor = cc.Diff.Position
		}
	}
	if cursor > len(next) {
		cursor = len(next)
	}
	r.ed.SetCursor(cursor)
	r.endRemoteApplyLocked()
	return nil
}

func (r *Reconciler) applyFullContentLocked(content string) {
	r.beginRemoteApplyLocked()
	r.dropPendingLocked()
	r.ed.SetContent(content)
	r.lastContent = content
	// Caret position is not meaningfully preserved across a full
	// replacement; park it at the end.
	r.ed.SetCursor(len(content))
	r.endRemoteApplyLocked()
}

func (r *Reconciler) beginRemoteApplyLocked() {
	r.applyingRemote = true
	if r.suppressTimer != nil {
		r.suppressTimer.Stop()
		r.suppressTimer = nil
	}
}

func (r *Reconciler) endRemoteApplyLocked() {
	if r.opts.SuppressWindow <= 0 {
		r.applyingRemote = false
		return
	}
	r.suppressTimer = time.AfterFunc(r.opts.SuppressWindow, func() {
		r.mu.Lock()
		r.applyingRemote = false
		r.mu.Unlock()
	})
}

// HandleLocalChange reports that the editor buffer now holds newContent.
// The change is diffed against the last synchronized content and sent,
// coalesced by the debounce timer. Changes observed while a remote apply
// is settling, or before the initial snapshot, only refresh the shadow
// copy.
func (r *Reconciler) HandleLocalChange(newContent string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.applyingRemote {
		r.lastContent = newContent
		return nil
	}
	if !r.ready {
		r.lastContent = newContent
		return ErrNotReady
	}
	if r.opts.Debounce <= 0 {
		return r.flushLocked(newContent)
	}
	r.pendingContent = newContent
	r.hasPending = true
	if r.debounceTimer != nil {
		r.debounceTimer.Stop()
	}
	r.debounceTimer = time.AfterFunc(r.opts.Debounce, func() { r.Flush() })
	return nil
}

// Flush sends any debounced local change immediately.
func (r *Reconciler) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasPending {
		return nil
	}
	content := r.pendingContent
	r.hasPending = false
	return r.flushLocked(content)
}

func (r *Reconciler) flushLocked(content string) error {
	edit := diff.Compute(r.lastContent, content)
	r.lastContent = content
	if edit == nil {
		return nil
	}
	return r.send(protocol.CodeChange{
		Room:      r.roomID,
		Type:      protocol.ChangeEdit,
		Diff:      edit,
		UserID:    r.userID,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (r *Reconciler) dropPendingLocked() {
	r.hasPending = false
	if r.debounceTimer != nil {
		r.debounceTimer.Stop()
		r.debounceTimer = nil
	}
}

// ChangeLanguage applies a locally chosen language and announces it.
func (r *Reconciler) ChangeLanguage(lang string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ed.SetLanguage(lang)
	return r.send(protocol.CodeChange{
		Room:     r.roomID,
		Type:     protocol.ChangeLanguageChange,
		Language: lang,
		UserID:   r.userID,
	})
}

// RequestFullContent asks the server for an authoritative snapshot.
func (r *Reconciler) RequestFullContent() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.send(protocol.CodeChange{
		Room:   r.roomID,
		Type:   protocol.ChangeRequestFullContent,
		UserID: r.userID,
	})
}

// PushFullContent declares the local buffer authoritative, replacing the
// room content for everyone.
func (r *Reconciler) PushFullContent() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	content := r.ed.Content()
	r.lastContent = content
	r.dropPendingLocked()
	return r.send(protocol.CodeChange{
		Room:    r.roomID,
		Type:    protocol.ChangeFullContent,
		Content: content,
		UserID:  r.userID,
	})
}

// Ready reports whether the initial snapshot has been received and
// outbound diffing is enabled.
func (r *Reconciler) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}
