// Package hub implements the per-note WebSocket broadcast hub for inkstream.
//
// Connections are grouped by note id; a connection opened without a note id
// joins the reserved "all" group. The hub owns group membership: connections
// join on handshake and leave exactly once when their read loop exits, and
// the broadcast methods evict connections that fail delivery.
//
// Wire frames in both directions are `{"type": ..., "payload": ...}`:
//
//	inbound:  ping | note_update | note_create | note_delete
//	outbound: pong | note_update | note_create | note_delete
//
// note_update applies the payload's partial mutation through the document
// store and re-broadcasts the canonical post-mutation note to the note's
// group, including the sender. note_create and note_delete are re-broadcast
// as-is to every connection. Malformed and unknown frames are skipped.
//
// Delivery is best-effort: each recipient gets a non-blocking enqueue into a
// small buffer drained by its own write pump, so one slow peer can neither
// stall a broadcast nor another connection's read loop.
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The WebSocket endpoint is mounted at /ws by the server.
package hub
