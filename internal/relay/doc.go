// Package relay streams the output of a slow, chunk-producing upstream call
// to a client incrementally.
//
// A session (one Run call) invokes its Producer exactly once on a dedicated
// goroutine and forwards each produced chunk, in order and verbatim, to the
// session's Sink as a discrete event. When the producer finishes, the session
// classifies the result — no output, suspiciously short output, or normal —
// and may append one synthetic advisory event before the terminal marker.
// The terminal marker is emitted exactly once on every path.
//
// Failures stay inside the session that caused them: a producer error becomes
// a single error event on that session's sink, and a chunk the sink cannot
// accept is skipped while the session continues.
//
// SSESink adapts a session to an HTTP response using Server-Sent Events with
// a `data: [DONE]` sentinel, which is what the web client consumes.
package relay
