// Package api implements the HTTP surface of the inkstream server.
//
// New(store, auth, relay, hubStats, uploadDir, corsOrigins) returns an
// http.Handler that serves:
//
//	GET  /api/health         — liveness
//	POST /api/auth/register  — create an account
//	POST /api/auth/login     — exchange credentials for a bearer token
//	GET  /api/auth/me        — the authenticated account         (auth)
//	GET  /api/notes          — own notes, most recent first      (auth)
//	POST /api/notes          — create a note                     (auth)
//	GET  /api/notes/{id}     — one note; 404 if unknown/foreign  (auth)
//	PUT  /api/notes/{id}     — partial update (title/content)    (auth)
//	DELETE /api/notes/{id}   — delete                            (auth)
//	POST /api/ai/process     — stream polished text as SSE       (auth)
//	POST /api/upload         — store a file, return its URL      (auth)
//	GET  /metrics            — Prometheus text exposition
//
// JSON endpoints respond with Content-Type: application/json and 405 for
// unexpected methods. /api/ai/process responds with text/event-stream. The
// WebSocket endpoint is served by internal/hub, not this package.
package api
