package documents

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, limit int64) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Document{}); err != nil {
		t.Fatalf("failed to migrate document schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database:           db,
		Clock:              func() time.Time { return time.Unix(1_700_000_000, 0) },
		SnapshotLimitBytes: limit,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func mustDocumentID(t *testing.T, raw string) DocumentID {
	t.Helper()
	id, err := NewDocumentID(raw)
	if err != nil {
		t.Fatalf("unexpected document id error: %v", err)
	}
	return id
}

func TestCreateStoresDocumentWithoutSnapshot(t *testing.T) {
	service := newTestService(t, 0)

	created, err := service.Create(context.Background(), "main.go", "project-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Snapshot != nil {
		t.Fatalf("expected nil snapshot on fresh document")
	}

	_, found, err := service.LoadSnapshot(context.Background(), mustDocumentID(t, created.DocumentID))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if found {
		t.Fatalf("expected absent snapshot for never-saved document")
	}
}

func TestSaveSnapshotRoundTrip(t *testing.T) {
	service := newTestService(t, 0)

	created, err := service.Create(context.Background(), "main.go", "project-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	documentID := mustDocumentID(t, created.DocumentID)

	payload := []byte{0x85, 0x6f, 0x4a, 0x83, 0x01, 0x02, 0x03}
	if err := service.SaveSnapshot(context.Background(), documentID, payload); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, found, err := service.LoadSnapshot(context.Background(), documentID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !found {
		t.Fatalf("expected snapshot to be present after save")
	}
	if !bytes.Equal(loaded, payload) {
		t.Fatalf("expected stored bytes to round-trip unchanged")
	}
}

func TestSaveSnapshotOverwritesPreviousValue(t *testing.T) {
	service := newTestService(t, 0)

	created, err := service.Create(context.Background(), "main.go", "project-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	documentID := mustDocumentID(t, created.DocumentID)

	if err := service.SaveSnapshot(context.Background(), documentID, []byte{0x01}); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if err := service.SaveSnapshot(context.Background(), documentID, []byte{0x02, 0x03}); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	loaded, _, err := service.LoadSnapshot(context.Background(), documentID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !bytes.Equal(loaded, []byte{0x02, 0x03}) {
		t.Fatalf("expected last write to win, got %v", loaded)
	}
}

func TestSaveSnapshotRejectsUnknownDocument(t *testing.T) {
	service := newTestService(t, 0)

	err := service.SaveSnapshot(context.Background(), mustDocumentID(t, "missing"), []byte{0x01})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveSnapshotEnforcesCeilingAndKeepsStoredValue(t *testing.T) {
	service := newTestService(t, 8)

	created, err := service.Create(context.Background(), "main.go", "project-1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	documentID := mustDocumentID(t, created.DocumentID)

	if err := service.SaveSnapshot(context.Background(), documentID, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("initial save failed: %v", err)
	}

	oversized := make([]byte, 9)
	err = service.SaveSnapshot(context.Background(), documentID, oversized)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}

	loaded, found, err := service.LoadSnapshot(context.Background(), documentID)
	if err != nil || !found {
		t.Fatalf("load after rejected save failed: %v found=%v", err, found)
	}
	if !bytes.Equal(loaded, []byte{0x01, 0x02}) {
		t.Fatalf("expected stored snapshot unchanged after rejected save, got %v", loaded)
	}
}

func TestGetUnknownDocumentReturnsNotFound(t *testing.T) {
	service := newTestService(t, 0)

	_, err := service.Get(context.Background(), mustDocumentID(t, "missing"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListByProjectReturnsDocumentsInCreationOrder(t *testing.T) {
	service := newTestService(t, 0)

	first, err := service.Create(context.Background(), "first.go", "project-2")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := service.Create(context.Background(), "second.go", "project-2"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := service.Create(context.Background(), "other.go", "project-3"); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	listed, err := service.ListByProject(context.Background(), "project-2")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(listed))
	}
	if listed[0].DocumentID != first.DocumentID {
		t.Fatalf("expected creation order, got %q first", listed[0].Title)
	}
}
