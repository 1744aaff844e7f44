package editor

import (
	"context"
	"testing"
	"time"

	"github.com/codereef-labs/codereef/backend/internal/docstate"
	"github.com/codereef-labs/codereef/backend/internal/documents"
	"github.com/codereef-labs/codereef/backend/internal/relay"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newDocumentService(t *testing.T) *documents.Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&documents.Document{}); err != nil {
		t.Fatalf("failed to migrate document schema: %v", err)
	}
	service, err := documents.NewService(documents.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create document service: %v", err)
	}
	return service
}

func createDocument(t *testing.T, service *documents.Service) documents.DocumentID {
	t.Helper()
	created, err := service.Create(context.Background(), "scratch.go", "project-1")
	if err != nil {
		t.Fatalf("create document failed: %v", err)
	}
	id, err := documents.NewDocumentID(created.DocumentID)
	if err != nil {
		t.Fatalf("unexpected document id error: %v", err)
	}
	return id
}

func startSession(t *testing.T, ctx context.Context, cfg SessionConfig) *Session {
	t.Helper()
	session, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	if err := session.Start(ctx); err != nil {
		t.Fatalf("start session failed: %v", err)
	}
	t.Cleanup(session.Close)
	return session
}

func waitForText(t *testing.T, updates <-chan string, expected string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case text := <-updates:
			if text == expected {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for text %q", expected)
		}
	}
}

func TestEditThenLoadThenLiveSync(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newDocumentService(t)
	hub := relay.NewHub()
	documentID := createDocument(t, store)

	// Client A loads the empty document, types, and saves.
	sessionA := startSession(t, ctx, SessionConfig{
		DocumentID: documentID,
		Store:      store,
		Transport:  hub,
	})
	textA, err := sessionA.Text()
	if err != nil {
		t.Fatalf("text failed: %v", err)
	}
	if textA != docstate.DefaultTemplateText {
		t.Fatalf("expected template text on fresh document, got %q", textA)
	}
	if err := sessionA.ApplyLocalEdit(ctx, "hello"); err != nil {
		t.Fatalf("local edit failed: %v", err)
	}

	// Client B loads the document and observes A's saved state.
	updatesB := make(chan string, 16)
	sessionB := startSession(t, ctx, SessionConfig{
		DocumentID:   documentID,
		Store:        store,
		Transport:    hub,
		OnRemoteText: func(text string) { updatesB <- text },
	})
	textB, err := sessionB.Text()
	if err != nil {
		t.Fatalf("text failed: %v", err)
	}
	if textB != "hello" {
		t.Fatalf("expected B to load %q, got %q", "hello", textB)
	}

	// A keeps typing; B picks the edit up live without reloading.
	if err := sessionA.ApplyLocalEdit(ctx, "hello world"); err != nil {
		t.Fatalf("second local edit failed: %v", err)
	}
	waitForText(t, updatesB, "hello world")
}

func TestLocalEditPersistsSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newDocumentService(t)
	hub := relay.NewHub()
	documentID := createDocument(t, store)

	session := startSession(t, ctx, SessionConfig{
		DocumentID: documentID,
		Store:      store,
		Transport:  hub,
	})
	if err := session.ApplyLocalEdit(ctx, "persisted text"); err != nil {
		t.Fatalf("local edit failed: %v", err)
	}

	snapshot, found, err := store.LoadSnapshot(ctx, documentID)
	if err != nil || !found {
		t.Fatalf("expected stored snapshot, err=%v found=%v", err, found)
	}
	handle, err := docstate.NewHandle(snapshot)
	if err != nil {
		t.Fatalf("stored snapshot failed to decode: %v", err)
	}
	text, err := handle.Text()
	if err != nil {
		t.Fatalf("text failed: %v", err)
	}
	if text != "persisted text" {
		t.Fatalf("expected persisted text, got %q", text)
	}
}

func TestNoOpEditDoesNotPublishOrSave(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newDocumentService(t)
	hub := relay.NewHub()
	documentID := createDocument(t, store)

	session := startSession(t, ctx, SessionConfig{
		DocumentID: documentID,
		Store:      store,
		Transport:  hub,
	})
	if err := session.ApplyLocalEdit(ctx, docstate.DefaultTemplateText); err != nil {
		t.Fatalf("no-op edit failed: %v", err)
	}

	_, found, err := store.LoadSnapshot(ctx, documentID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if found {
		t.Fatalf("expected no snapshot after a no-op edit")
	}
}

func TestStartFailsOnCorruptSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newDocumentService(t)
	hub := relay.NewHub()
	documentID := createDocument(t, store)

	if err := store.SaveSnapshot(ctx, documentID, []byte("corrupted beyond repair")); err != nil {
		t.Fatalf("seeding corrupt snapshot failed: %v", err)
	}

	session, err := NewSession(SessionConfig{
		DocumentID: documentID,
		Store:      store,
		Transport:  hub,
	})
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	if err := session.Start(ctx); err == nil {
		t.Fatalf("expected start to fail on corrupt snapshot")
	}
}

func TestCommentNoticeReachesOtherMembers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newDocumentService(t)
	hub := relay.NewHub()
	documentID := createDocument(t, store)

	notices := make(chan struct{}, 1)
	sessionA := startSession(t, ctx, SessionConfig{
		DocumentID: documentID,
		Store:      store,
		Transport:  hub,
	})
	startSession(t, ctx, SessionConfig{
		DocumentID:      documentID,
		Store:           store,
		Transport:       hub,
		OnCommentNotice: func() { notices <- struct{}{} },
	})

	sessionA.NotifyCommentAdded()

	select {
	case <-notices:
	case <-time.After(2 * time.Second):
		t.Fatal("expected comment notice to reach other member")
	}
}
