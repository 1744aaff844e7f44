// Package relay fans realtime frames out between the clients editing one
// document. The hub is a dumb relay: rooms are weightless process-local
// sets of subscribers, nothing is persisted, and frame payloads are never
// inspected. Delivery is best-effort at-most-once; durability comes only
// from the persistence gateway.
package relay

import (
	"context"
	"sync"
)

const defaultBufferFrames = 64

// MemberID identifies one room membership for sender exclusion.
type MemberID int64

// Hub tracks room membership per document and relays frames between members.
type Hub struct {
	mu           sync.RWMutex
	rooms        map[string]map[MemberID]*member
	nextID       MemberID
	bufferFrames int
}

type member struct {
	id   MemberID
	sink chan Frame
	// done is closed on leave so the context watcher exits even when the
	// caller leaves via the cleanup func under a long-lived context.
	done chan struct{}
}

// NewHub constructs a Hub with the default per-member frame buffer.
func NewHub() *Hub {
	return NewHubWithBuffer(defaultBufferFrames)
}

// NewHubWithBuffer constructs a Hub with an explicit per-member frame buffer.
func NewHubWithBuffer(bufferFrames int) *Hub {
	if bufferFrames <= 0 {
		bufferFrames = defaultBufferFrames
	}
	return &Hub{
		rooms:        make(map[string]map[MemberID]*member),
		bufferFrames: bufferFrames,
	}
}

// Join adds a subscriber to a document's room. The room springs into being
// on first join. The returned stream preserves publish order per sender;
// the cleanup func (also wired to ctx) removes the membership, and the last
// leave dissolves the room.
func (h *Hub) Join(ctx context.Context, documentID string) (MemberID, <-chan Frame, func()) {
	if documentID == "" {
		closed := make(chan Frame)
		close(closed)
		return 0, closed, func() {}
	}

	joined := &member{
		sink: make(chan Frame, h.bufferFrames),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.nextID++
	joined.id = h.nextID
	room, ok := h.rooms[documentID]
	if !ok {
		room = make(map[MemberID]*member)
		h.rooms[documentID] = room
	}
	room[joined.id] = joined
	h.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.leave(documentID, joined.id)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cleanup()
		case <-joined.done:
		}
	}()
	return joined.id, joined.sink, cleanup
}

// Publish relays a frame to every room member except the sender. Sends are
// non-blocking: a member whose buffer is full misses the frame, matching the
// channel's at-most-once contract.
func (h *Hub) Publish(documentID string, sender MemberID, frame Frame) {
	if documentID == "" || frame.Event == "" {
		return
	}

	h.mu.RLock()
	room := h.rooms[documentID]
	receivers := make([]*member, 0, len(room))
	for _, candidate := range room {
		if candidate.id == sender {
			continue
		}
		receivers = append(receivers, candidate)
	}
	h.mu.RUnlock()

	for _, receiver := range receivers {
		select {
		case receiver.sink <- frame:
		default:
		}
	}
}

// RoomSize reports the current number of members in a document's room.
func (h *Hub) RoomSize(documentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[documentID])
}

func (h *Hub) leave(documentID string, id MemberID) {
	h.mu.Lock()
	room := h.rooms[documentID]
	left, present := room[id]
	if present {
		delete(room, id)
		if len(room) == 0 {
			delete(h.rooms, documentID)
		}
	}
	h.mu.Unlock()
	if present {
		close(left.done)
	}
}
