// Package editor coordinates one editing session over a document: it owns
// the replicated state handle, a transport membership, and the persistence
// gateway, and keeps the three consistent as edits flow in both directions.
package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/codereef-labs/codereef/backend/internal/docstate"
	"github.com/codereef-labs/codereef/backend/internal/documents"
	"github.com/codereef-labs/codereef/backend/internal/relay"
	"go.uber.org/zap"
)

var (
	errMissingStore     = errors.New("editor: snapshot store is required")
	errMissingTransport = errors.New("editor: transport is required")
	errMissingDocument  = errors.New("editor: document id is required")
	errNotStarted       = errors.New("editor: session not started")
)

// SnapshotStore is the persistence gateway surface a session depends on.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, documentID documents.DocumentID) ([]byte, bool, error)
	SaveSnapshot(ctx context.Context, documentID documents.DocumentID, snapshot []byte) error
}

// Transport is the change-relay surface a session depends on.
type Transport interface {
	Join(ctx context.Context, documentID string) (relay.MemberID, <-chan relay.Frame, func())
	Publish(documentID string, sender relay.MemberID, frame relay.Frame)
}

// SessionConfig describes the collaborators an editing session is built from.
type SessionConfig struct {
	DocumentID documents.DocumentID
	Store      SnapshotStore
	Transport  Transport
	Logger     *zap.Logger

	// OnRemoteText observes the materialized text after remote changes merge.
	OnRemoteText func(text string)
	// OnCommentNotice observes payload-free comment notifications; receivers
	// re-fetch the comment list themselves.
	OnCommentNotice func()
}

// Session is the single owner of one document's replicated state handle.
type Session struct {
	documentID documents.DocumentID
	store      SnapshotStore
	transport  Transport
	logger     *zap.Logger

	onRemoteText    func(string)
	onCommentNotice func()

	mu     sync.Mutex
	handle *docstate.Handle
	member relay.MemberID
	leave  func()
}

// NewSession validates the configuration and returns an unstarted session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.DocumentID == "" {
		return nil, errMissingDocument
	}
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Transport == nil {
		return nil, errMissingTransport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		documentID:      cfg.DocumentID,
		store:           cfg.Store,
		transport:       cfg.Transport,
		logger:          logger,
		onRemoteText:    cfg.OnRemoteText,
		onCommentNotice: cfg.OnCommentNotice,
	}, nil
}

// Start loads the stored snapshot (or the template when none exists), joins
// the document's room, and begins applying relayed changes. A corrupt stored
// snapshot fails the whole start; it is never silently replaced.
func (s *Session) Start(ctx context.Context) error {
	snapshot, found, err := s.store.LoadSnapshot(ctx, s.documentID)
	if err != nil {
		return err
	}
	if !found {
		snapshot = nil
	}
	handle, err := docstate.NewHandle(snapshot)
	if err != nil {
		return err
	}

	member, stream, leave := s.transport.Join(ctx, s.documentID.String())

	s.mu.Lock()
	s.handle = handle
	s.member = member
	s.leave = leave
	s.mu.Unlock()

	go s.receiveLoop(ctx, stream)
	return nil
}

// Text returns the session's current materialized text.
func (s *Session) Text() (string, error) {
	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()
	if handle == nil {
		return "", errNotStarted
	}
	return handle.Text()
}

// ApplyLocalEdit folds a new full text value into the handle, relays the
// derived changes to other room members, and persists the updated snapshot.
// The relay is best-effort; only persistence failures surface to the caller,
// and the in-memory state remains valid either way.
func (s *Session) ApplyLocalEdit(ctx context.Context, newText string) error {
	s.mu.Lock()
	handle := s.handle
	member := s.member
	s.mu.Unlock()
	if handle == nil {
		return errNotStarted
	}

	changes, err := handle.ApplyLocalEdit(newText)
	if err != nil {
		return err
	}
	if changes == nil {
		return nil
	}

	payload, err := json.Marshal([][]byte{changes})
	if err != nil {
		return fmt.Errorf("editor: encode changes: %w", err)
	}
	s.transport.Publish(s.documentID.String(), member, relay.Frame{
		Event:   relay.EventReceiveChanges,
		Changes: payload,
	})

	// Saving after every accepted edit mirrors the reference flow; under
	// rapid typing this amplifies writes, and callers wanting fewer saves
	// can batch text updates before calling ApplyLocalEdit.
	if err := s.store.SaveSnapshot(ctx, s.documentID, handle.Serialize()); err != nil {
		return err
	}
	return nil
}

// NotifyCommentAdded broadcasts a payload-free comment notice to the room.
func (s *Session) NotifyCommentAdded() {
	s.mu.Lock()
	member := s.member
	started := s.handle != nil
	s.mu.Unlock()
	if !started {
		return
	}
	s.transport.Publish(s.documentID.String(), member, relay.Frame{
		Event: relay.EventReceiveComment,
	})
}

// Close leaves the document's room. The handle stays readable so callers can
// still materialize or re-derive state after disconnecting.
func (s *Session) Close() {
	s.mu.Lock()
	leave := s.leave
	s.leave = nil
	s.mu.Unlock()
	if leave != nil {
		leave()
	}
}

func (s *Session) receiveLoop(ctx context.Context, stream <-chan relay.Frame) {
	for {
		select {
		case frame := <-stream:
			s.handleFrame(frame)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) handleFrame(frame relay.Frame) {
	switch frame.Event {
	case relay.EventReceiveChanges:
		var batches [][]byte
		if err := json.Unmarshal(frame.Changes, &batches); err != nil {
			s.logger.Warn("dropping malformed change batch",
				zap.String("document_id", s.documentID.String()), zap.Error(err))
			return
		}
		s.mu.Lock()
		handle := s.handle
		s.mu.Unlock()
		if handle == nil {
			return
		}

		text := ""
		applied := false
		for _, batch := range batches {
			merged, err := handle.ApplyRemoteChanges(batch)
			if err != nil {
				s.logger.Warn("dropping unappliable change batch",
					zap.String("document_id", s.documentID.String()), zap.Error(err))
				continue
			}
			text = merged
			applied = true
		}
		if applied && s.onRemoteText != nil {
			s.onRemoteText(text)
		}
	case relay.EventReceiveComment:
		if s.onCommentNotice != nil {
			s.onCommentNotice()
		}
	}
}
