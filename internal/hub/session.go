package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth. A client
	// that falls this far behind a broadcast is disconnected.
	sendBufSize = 16

	// maxFrameSize bounds a single inbound frame.
	maxFrameSize = 1 << 20

	// storeTimeout bounds one mutation applied through the document store.
	storeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins — callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client represents one connected WebSocket client. It belongs to exactly one
// group for its whole lifetime; a reconnect is a new client.
type client struct {
	conn  *websocket.Conn
	send  chan []byte
	group string
}

// enqueue offers data to the client's send buffer without blocking. It
// returns false when the buffer is full, which marks the client dead.
func (c *client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the client
// until it disconnects. The group key comes from the note_id query parameter;
// a connection without one is scoped to the GroupAll wildcard.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	group := r.URL.Query().Get("note_id")
	if group == "" {
		group = GroupAll
	}

	c := &client{
		conn:  conn,
		send:  make(chan []byte, sendBufSize),
		group: group,
	}
	h.join(c)
	// leave runs unconditionally, whatever path takes the read loop down.
	defer h.leave(c)

	go c.writePump()
	h.readPump(c) // blocks until the connection closes
}

// readPump reads inbound frames and dispatches them until a transport
// failure. Malformed frames are skipped, never fatal.
func (h *Hub) readPump(c *client) {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Debug("hub: skipping malformed frame", "group", c.group, "err", err)
			continue
		}
		h.dispatch(c, env)
	}
}

// dispatch handles one decoded inbound message. It may apply a mutation
// synchronously, but every onward delivery is a non-blocking enqueue, so a
// slow recipient elsewhere can never stall this connection's read loop.
func (h *Hub) dispatch(c *client, env Envelope) {
	switch env.Type {
	case KindPing:
		// Reply to the sender only.
		if data := marshal(KindPong, nil); data != nil {
			h.replyTo(c, data)
		}

	case KindNoteUpdate:
		var upd updatePayload
		if err := json.Unmarshal(env.Payload, &upd); err != nil || upd.ID == "" {
			slog.Debug("hub: ignoring malformed note_update payload", "err", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		note, err := h.store.ApplyMutation(ctx, upd.ID, upd.Mutation)
		cancel()
		if err != nil {
			// Best-effort channel: the mutation is dropped, nothing is sent
			// back to the mutating client.
			slog.Warn("hub: note mutation failed", "note_id", upd.ID, "err", err)
			return
		}
		h.Broadcast(note.ID, KindNoteUpdate, note.Payload())

	case KindNoteCreate:
		// The originating request path has already written the note; this
		// event only announces it.
		h.BroadcastAll(KindNoteCreate, env.Payload)

	case KindNoteDelete:
		h.BroadcastAll(KindNoteDelete, env.Payload)

	default:
		// Unknown kinds are a forward-compatibility no-op.
		slog.Debug("hub: ignoring unknown message type", "type", env.Type)
	}
}

// writePump owns every write on the socket: queued frames from the send
// channel plus the keepalive pings. Funnelling both through one goroutine
// satisfies gorilla's single-writer requirement. Runs per client.
func (c *client) writePump() {
	pings := time.NewTicker(pingPeriod)
	defer pings.Stop()
	defer c.conn.Close()

	write := func(messageType int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return c.conn.WriteMessage(messageType, data)
	}

	for {
		select {
		case frame, open := <-c.send:
			if !open {
				// Evicted by the hub or hub shutdown: send a close frame
				// before tearing the connection down.
				write(websocket.CloseMessage, //nolint:errcheck
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := write(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-pings.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
