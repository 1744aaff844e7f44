// Package docstate bridges raw text edits and the opaque mergeable document
// structure supplied by automerge. A Handle owns one decoded document; all
// mutation goes through its methods under a single mutex, so callers never
// touch the underlying doc from two places at once.
package docstate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/automerge/automerge-go"
)

// DefaultTemplateText seeds documents that have never been saved.
const DefaultTemplateText = "// Start coding here...\n// Real-time sync is active.\n"

const textKey = "text"

var (
	// ErrSnapshotCorrupt indicates stored snapshot bytes could not be decoded
	// into a valid replicated state. Callers must surface this rather than
	// fall back to an empty document; only a missing snapshot resets to the
	// template.
	ErrSnapshotCorrupt = errors.New("docstate: snapshot bytes are not a valid replicated state")
	// ErrChangesInvalid indicates a received change payload could not be applied.
	ErrChangesInvalid = errors.New("docstate: change payload could not be applied")
	// ErrMissingText indicates a decoded snapshot lacks the expected text field.
	ErrMissingText = errors.New("docstate: snapshot has no text field")
)

// Handle is the single-owner mutable wrapper around a replicated document.
type Handle struct {
	mu  sync.Mutex
	doc *automerge.Doc
}

// NewHandle decodes a stored snapshot into a Handle. A nil or empty snapshot
// initializes a fresh document holding DefaultTemplateText.
func NewHandle(snapshot []byte) (*Handle, error) {
	if len(snapshot) == 0 {
		return NewHandleWithText(DefaultTemplateText)
	}
	doc, err := automerge.Load(snapshot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	handle := &Handle{doc: doc}
	if _, err := handle.text(); err != nil {
		return nil, err
	}
	return handle, nil
}

// NewHandleWithText initializes a fresh document around the given text.
func NewHandleWithText(initial string) (*Handle, error) {
	doc := automerge.New()
	if err := doc.Path(textKey).Set(automerge.NewText(initial)); err != nil {
		return nil, err
	}
	if _, err := doc.Commit("init"); err != nil {
		return nil, err
	}
	return &Handle{doc: doc}, nil
}

// Text returns the current materialized text.
func (h *Handle) Text() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	text, err := h.text()
	if err != nil {
		return "", err
	}
	return text.Get()
}

// ApplyLocalEdit splices the minimal difference between the document's
// current text and newText into the document, and returns an opaque change
// payload covering everything not yet emitted. A nil payload means the text
// was already up to date.
func (h *Handle) ApplyLocalEdit(newText string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	text, err := h.text()
	if err != nil {
		return nil, err
	}
	current, err := text.Get()
	if err != nil {
		return nil, err
	}
	if current == newText {
		return nil, nil
	}

	pos, del, insert := spliceArgs(current, newText)
	if err := text.Splice(pos, del, insert); err != nil {
		return nil, err
	}
	if _, err := h.doc.Commit("local edit"); err != nil {
		return nil, err
	}

	return h.doc.SaveIncremental(), nil
}

// ApplyRemoteChanges merges an opaque change payload received from the
// transport and returns the new materialized text. Applying the same payload
// twice, or two payloads in either order, converges on the same text.
func (h *Handle) ApplyRemoteChanges(payload []byte) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(payload) > 0 {
		if err := h.doc.LoadIncremental(payload); err != nil {
			return "", fmt.Errorf("%w: %v", ErrChangesInvalid, err)
		}
	}
	text, err := h.text()
	if err != nil {
		return "", err
	}
	return text.Get()
}

// Serialize produces a binary snapshot of the full current state, suitable
// for persistence and for initializing a fresh Handle elsewhere.
func (h *Handle) Serialize() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.doc.Save()
}

func (h *Handle) text() (*automerge.Text, error) {
	text, err := automerge.As[*automerge.Text](h.doc.Path(textKey).Get())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingText, err)
	}
	if text == nil {
		return nil, ErrMissingText
	}
	return text, nil
}

// spliceArgs computes the single splice turning current into next: the rune
// position of the first difference, the rune count to delete, and the
// replacement string.
func spliceArgs(current, next string) (pos int, del int, insert string) {
	currentRunes := []rune(current)
	nextRunes := []rune(next)

	prefix := 0
	for prefix < len(currentRunes) && prefix < len(nextRunes) && currentRunes[prefix] == nextRunes[prefix] {
		prefix++
	}

	suffix := 0
	for suffix < len(currentRunes)-prefix && suffix < len(nextRunes)-prefix &&
		currentRunes[len(currentRunes)-1-suffix] == nextRunes[len(nextRunes)-1-suffix] {
		suffix++
	}

	return prefix, len(currentRunes) - prefix - suffix, string(nextRunes[prefix : len(nextRunes)-suffix])
}
