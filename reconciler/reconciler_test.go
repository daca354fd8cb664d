package reconciler_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/Nandu0007/collab-code-editor/diff"
	"github.com/Nandu0007/collab-code-editor/protocol"
	"github.com/Nandu0007/collab-code-editor/reconciler"
)

// fakeEditor records what the reconciler does to it.
type fakeEditor struct {
	content  string
	cursor   int
	enabled  bool
	language string
}

func (e *fakeEditor) Content() string      { return e.content }
func (e *fakeEditor) SetContent(s string)  { e.content = s }
func (e *fakeEditor) Cursor() int          { return e.cursor }
func (e *fakeEditor) SetCursor(n int)      { e.cursor = n }
func (e *fakeEditor) SetEnabled(b bool)    { e.enabled = b }
func (e *fakeEditor) SetLanguage(l string) { e.language = l }

type harness struct {
	ed  *fakeEditor
	rec *reconciler.Reconciler

	mu   sync.Mutex
	sent []protocol.CodeChange
}

func newHarness(t *testing.T, opts reconciler.Options) *harness {
	t.Helper()
	h := &harness{ed: &fakeEditor{}}
	h.rec = reconciler.New(h.ed, "room-1", func(cc protocol.CodeChange) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.sent = append(h.sent, cc)
		return nil
	}, opts)
	return h
}

func (h *harness) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sent)
}

func (h *harness) at(i int) protocol.CodeChange {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sent[i]
}

func (h *harness) start(content string) {
	h.rec.HandleConnected("me")
	h.rec.HandleDocumentState(protocol.DocumentState{
		Content: content, Version: 0, Language: "javascript",
	})
}

func TestLocalChangeGatedUntilSnapshot(t *testing.T) {
	h := newHarness(t, reconciler.Options{})
	err := h.rec.HandleLocalChange("typed before load")
	if !errors.Is(err, reconciler.ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	assert.Equal(t, h.count(), 0)
}

func TestSnapshotEnablesEditor(t *testing.T) {
	h := newHarness(t, reconciler.Options{})
	h.start("hello")
	assert.Equal(t, h.ed.enabled, true)
	assert.Equal(t, h.ed.content, "hello")
	assert.Equal(t, h.ed.language, "javascript")
	assert.Equal(t, h.rec.Ready(), true)
}

func TestLocalChangeSendsDiff(t *testing.T) {
	h := newHarness(t, reconciler.Options{})
	h.start("hello")

	err := h.rec.HandleLocalChange("hello world")
	assert.Equal(t, err, nil)
	assert.Equal(t, h.count(), 1)
	cc := h.at(0)
	assert.Equal(t, cc.Type, protocol.ChangeEdit)
	assert.Equal(t, cc.Room, "room-1")
	assert.Equal(t, cc.UserID, "me")
	assert.Equal(t, *cc.Diff, protocol.Edit{Position: 5, Removed: "", Inserted: " world"})

	// Reporting the same content again sends nothing.
	err = h.rec.HandleLocalChange("hello world")
	assert.Equal(t, err, nil)
	assert.Equal(t, h.count(), 1)
}

func TestDebounceCoalescesBurst(t *testing.T) {
	h := newHarness(t, reconciler.Options{Debounce: time.Hour})
	h.start("")

	h.rec.HandleLocalChange("a")
	h.rec.HandleLocalChange("ab")
	h.rec.HandleLocalChange("abc")
	assert.Equal(t, h.count(), 0)

	assert.Equal(t, h.rec.Flush(), nil)
	assert.Equal(t, h.count(), 1)
	assert.Equal(t, *h.at(0).Diff, protocol.Edit{Position: 0, Removed: "", Inserted: "abc"})

	// Nothing left to flush.
	assert.Equal(t, h.rec.Flush(), nil)
	assert.Equal(t, h.count(), 1)
}

func TestDebounceTimerFires(t *testing.T) {
	h := newHarness(t, reconciler.Options{Debounce: 10 * time.Millisecond})
	h.start("")

	h.rec.HandleLocalChange("x")
	deadline := time.Now().Add(time.Second)
	for h.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, h.count(), 1)
}

func TestOwnEchoDiscarded(t *testing.T) {
	h := newHarness(t, reconciler.Options{})
	h.start("hello")

	err := h.rec.HandleCodeUpdate(protocol.CodeChange{
		Type:   protocol.ChangeEdit,
		UserID: "me",
		Diff:   &protocol.Edit{Position: 99, Removed: "junk", Inserted: "x"},
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, h.ed.content, "hello")
	assert.Equal(t, h.count(), 0)
}

func TestRemoteEditApplied(t *testing.T) {
	h := newHarness(t, reconciler.Options{})
	h.start("hello world")

	err := h.rec.HandleCodeUpdate(protocol.CodeChange{
		Type:   protocol.ChangeEdit,
		UserID: "other",
		Diff:   &protocol.Edit{Position: 6, Removed: "world", Inserted: "there"},
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, h.ed.content, "hello there")

	// The applied change must not be re-diffed and re-sent.
	assert.Equal(t, h.rec.HandleLocalChange("hello there"), nil)
	assert.Equal(t, h.count(), 0)
}

func TestRemoteEditShiftsCursorAfterEdit(t *testing.T) {
	h := newHarness(t, reconciler.Options{})
	h.start("abcdef")
	h.ed.cursor = 4

	h.rec.HandleCodeUpdate(protocol.CodeChange{
		Type:   protocol.ChangeEdit,
		UserID: "other",
		Diff:   &protocol.Edit{Position: 0, Removed: "", Inserted: "xx"},
	})
	assert.Equal(t, h.ed.content, "xxabcdef")
	assert.Equal(t, h.ed.cursor, 6)
}

func TestRemoteEditClampsCursorAtEditPosition(t *testing.T) {
	h := newHarness(t, reconciler.Options{})
	h.start("abcdef")
	h.ed.cursor = 3

	h.rec.HandleCodeUpdate(protocol.CodeChange{
		Type:   protocol.ChangeEdit,
		UserID: "other",
		Diff:   &protocol.Edit{Position: 1, Removed: "bcde", Inserted: ""},
	})
	assert.Equal(t, h.ed.content, "af")
	assert.Equal(t, h.ed.cursor, 1)
}

func TestRemoteEditCursorBeforeEditUntouched(t *testing.T) {
	h := newHarness(t, reconciler.Options{})
	h.start("abcdef")
	h.ed.cursor = 2

	h.rec.HandleCodeUpdate(protocol.CodeChange{
		Type:   protocol.ChangeEdit,
		UserID: "other",
		Diff:   &protocol.Edit{Position: 4, Removed: "ef", Inserted: "EF!"},
	})
	assert.Equal(t, h.ed.content, "abcdEF!")
	assert.Equal(t, h.ed.cursor, 2)
}

func TestRemoteEditMismatchRequestsResync(t *testing.T) {
	h := newHarness(t, reconciler.Options{})
	h.start("abc")

	err := h.rec.HandleCodeUpdate(protocol.CodeChange{
		Type:   protocol.ChangeEdit,
		UserID: "other",
		Diff:   &protocol.Edit{Position: 0, Removed: "zzz", Inserted: "y"},
	})
	if !errors.Is(err, diff.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	assert.Equal(t, h.ed.content, "abc")
	assert.Equal(t, h.count(), 1)
	assert.Equal(t, h.at(0).Type, protocol.ChangeRequestFullContent)
}

func TestFullContentReplacesAndDropsPendingDiff(t *testing.T) {
	h := newHarness(t, reconciler.Options{Debounce: time.Hour})
	h.start("start")
	h.rec.HandleLocalChange("start typing")

	h.rec.HandleCodeUpdate(protocol.CodeChange{
		Type:    protocol.ChangeFullContent,
		UserID:  "other",
		Content: "authoritative",
	})
	assert.Equal(t, h.ed.content, "authoritative")
	assert.Equal(t, h.ed.cursor, len("authoritative"))

	// The in-flight local diff was superseded by the replacement.
	assert.Equal(t, h.rec.Flush(), nil)
	assert.Equal(t, h.count(), 0)
}

func TestRemoteLanguageChange(t *testing.T) {
	h := newHarness(t, reconciler.Options{})
	h.start("x")
	h.rec.HandleCodeUpdate(protocol.CodeChange{
		Type:     protocol.ChangeLanguageChange,
		UserID:   "other",
		Language: "python",
	})
	assert.Equal(t, h.ed.language, "python")
	assert.Equal(t, h.count(), 0)
}

func TestChangeLanguageSends(t *testing.T) {
	h := newHarness(t, reconciler.Options{})
	h.start("x")
	assert.Equal(t, h.rec.ChangeLanguage("css"), nil)
	assert.Equal(t, h.ed.language, "css")
	assert.Equal(t, h.count(), 1)
	assert.Equal(t, h.at(0).Type, protocol.ChangeLanguageChange)
	assert.Equal(t, h.at(0).Language, "css")
}

func TestDisconnectClosesGate(t *testing.T) {
	h := newHarness(t, reconciler.Options{})
	h.start("x")
	h.rec.HandleDisconnect()
	assert.Equal(t, h.ed.enabled, false)
	assert.Equal(t, h.rec.Ready(), false)

	err := h.rec.HandleLocalChange("xy")
	if !errors.Is(err, reconciler.ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	assert.Equal(t, h.count(), 0)

	// A fresh snapshot reopens it.
	h.rec.HandleDocumentState(protocol.DocumentState{Content: "xy", Language: "javascript"})
	assert.Equal(t, h.rec.HandleLocalChange("xyz"), nil)
	assert.Equal(t, h.count(), 1)
}

func TestSuppressWindowMasksEcho(t *testing.T) {
	h := newHarness(t, reconciler.Options{SuppressWindow: 40 * time.Millisecond})
	h.start("old")

	h.rec.HandleCodeUpdate(protocol.CodeChange{
		Type:    protocol.ChangeFullContent,
		UserID:  "other",
		Content: "new",
	})

	// Inside the window: treated as the editor reporting the remote
	// apply, shadow refreshed, nothing sent.
	assert.Equal(t, h.rec.HandleLocalChange("new"), nil)
	assert.Equal(t, h.count(), 0)

	time.Sleep(100 * time.Millisecond)

	// After the window: a genuinely new local edit goes out.
	assert.Equal(t, h.rec.HandleLocalChange("newer"), nil)
	assert.Equal(t, h.count(), 1)
	assert.Equal(t, *h.at(0).Diff, protocol.Edit{Position: 3, Removed: "", Inserted: "er"})
}

func TestPushFullContent(t *testing.T) {
	h := newHarness(t, reconciler.Options{})
	h.start("mine")
	assert.Equal(t, h.rec.PushFullContent(), nil)
	assert.Equal(t, h.count(), 1)
	assert.Equal(t, h.at(0).Type, protocol.ChangeFullContent)
	assert.Equal(t, h.at(0).Content, "mine")
}
