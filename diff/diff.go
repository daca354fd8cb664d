// Package diff computes and applies single-splice edits between document
// revisions. Compute trims the common prefix and suffix of two strings and
// reports everything in between as one replacement; Apply performs the
// replacement after checking that the text being removed is still there.
//
// This is deliberately not a minimal-edit-distance diff: two disjoint
// changes made in one step collapse into a single splice spanning both.
package diff

import (
	"errors"
	"fmt"

	"github.com/Nandu0007/collab-code-editor/protocol"
)

// ErrConflict reports that an edit's removed text no longer matches the
// target content at the edit position. The caller should resynchronize
// with a full-content snapshot rather than retry.
var ErrConflict = errors.New("diff: removed text does not match content at position")

// Compute returns the minimal single splice turning oldText into newText,
// or nil if the two are equal. Offsets are byte offsets.
func Compute(oldText, newText string) *protocol.Edit {
	if oldText == newText {
		return nil
	}

	start := 0
	for start < len(oldText) && start < len(newText) && oldText[start] == newText[start] {
		start++
	}

	// Trim the common suffix, never crossing the prefix cursor so the
	// removed and inserted regions stay disjoint.
	oldEnd, newEnd := len(oldText), len(newText)
	for oldEnd > start && newEnd > start && oldText[oldEnd-1] == newText[newEnd-1] {
		oldEnd--
		newEnd--
	}

	return &protocol.Edit{
		Position: start,
		Removed:  oldText[start:oldEnd],
		Inserted: newText[start:newEnd],
	}
}

// Apply splices edit into text. It succeeds only when the text at
// [edit.Position, edit.Position+len(edit.Removed)) equals edit.Removed,
// or when the edit is a pure append at the very end. Anything else is a
// conflict and text is returned unchanged.
func Apply(text string, edit *protocol.Edit) (string, error) {
	if edit == nil {
		return text, fmt.Errorf("diff: missing edit: %w", ErrConflict)
	}
	if edit.Position < 0 || edit.Position > len(text) {
		return text, fmt.Errorf("diff: position %d out of range [0,%d]: %w", edit.Position, len(text), ErrConflict)
	}
	if edit.Position == len(text) && edit.Removed == "" {
		return text + edit.Inserted, nil
	}
	end := edit.Position + len(edit.Removed)
	if end > len(text) || text[edit.Position:end] != edit.Removed {
		return text, fmt.Errorf("diff: mismatch at %d: %w", edit.Position, ErrConflict)
	}
	return text[:edit.Position] + edit.Inserted + text[end:], nil
}
