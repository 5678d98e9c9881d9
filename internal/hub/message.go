package hub

import (
	"encoding/json"

	"github.com/inkstream/inkstream/internal/store"
)

// GroupAll is the reserved group key meaning "every connection". Connections
// opened without a note id land here, and note_create/note_delete events are
// always delivered here.
const GroupAll = "all"

// Message kinds accepted on the inbound side of the duplex channel.
// Outbound frames use the same envelope with kinds {pong, note_update,
// note_create, note_delete}.
const (
	KindPing       = "ping"
	KindPong       = "pong"
	KindNoteUpdate = "note_update"
	KindNoteCreate = "note_create"
	KindNoteDelete = "note_delete"
)

// Envelope is the wire frame for every message in either direction.
// Payload shape depends on Type; unknown types are ignored.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// updatePayload is the inbound payload of a note_update frame: the target
// note id plus a partial mutation. Absent fields are left unchanged.
type updatePayload struct {
	ID string `json:"id"`
	store.Mutation
}

// marshal encodes an outbound envelope, returning nil on failure. A frame
// that cannot be encoded is dropped rather than closing the connection.
func marshal(typ string, payload any) []byte {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil
		}
		raw = b
	}
	b, err := json.Marshal(Envelope{Type: typ, Payload: raw})
	if err != nil {
		return nil
	}
	return b
}
