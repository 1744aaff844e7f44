package relay

import "encoding/json"

// Event names exchanged on the realtime channel. Client-originated events
// carry a document id; relayed events are rewritten to their receive-side
// counterpart before fan-out.
const (
	EventJoinDocument   = "join-document"
	EventSendChanges    = "send-changes"
	EventReceiveChanges = "receive-changes"
	EventNewComment     = "new-comment"
	EventReceiveComment = "receive-comment"
)

// Frame is one realtime message. Changes stays raw JSON end to end: the
// relay forwards change payloads verbatim and never decodes them.
type Frame struct {
	Event      string          `json:"event"`
	DocumentID string          `json:"documentId,omitempty"`
	Changes    json.RawMessage `json:"changes,omitempty"`
}
