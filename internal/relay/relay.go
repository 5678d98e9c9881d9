package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// chunkBuffer is the depth of the bridge channel between the producer
// goroutine and the forwarding loop.
const chunkBuffer = 10

// Advisory text emitted when a session completes without useful output.
const (
	emptyAdvisory = "The AI service returned no content. Check the API configuration and try again."
	shortAdvisory = "\n\nNote: the output may be incomplete. Please retry."
)

// Event is one frame on a session's outbound sink. Content and Err are
// mutually exclusive; Terminal marks the single end-of-session sentinel.
type Event struct {
	Content  string
	Err      string
	Terminal bool
}

// Sink receives the framed events of one session. A Send error for a content
// event skips that one chunk; the session keeps going.
type Sink interface {
	Send(Event) error
}

// Producer drives one external text transform. Produce blocks until the
// upstream stream is exhausted or fails, calling emit once per chunk in
// production order. It must respect ctx cancellation between chunks.
type Producer interface {
	Produce(ctx context.Context, text string, emit func(chunk string)) error
}

// ProducerFunc adapts a function to the Producer interface.
type ProducerFunc func(ctx context.Context, text string, emit func(chunk string)) error

func (f ProducerFunc) Produce(ctx context.Context, text string, emit func(chunk string)) error {
	return f(ctx, text, emit)
}

// Relay runs streaming transform sessions: each session drives one producer
// on its own goroutine and forwards its chunks to one sink.
type Relay struct {
	producer  Producer
	minOutput int

	active atomic.Int64
}

// New creates a Relay. minOutput is the forwarded-length threshold below
// which a completed session is flagged as possibly incomplete.
func New(producer Producer, minOutput int) *Relay {
	return &Relay{producer: producer, minOutput: minOutput}
}

// Active returns the number of sessions currently running.
func (r *Relay) Active() int { return int(r.active.Load()) }

// Run executes one session: it invokes the producer once for text, forwards
// every non-empty chunk to sink in production order, and finishes with
// exactly one terminal event — on every path, including producer failure.
//
// The producer runs on a dedicated goroutine bridged by a bounded channel, so
// a blocking upstream call never stalls the caller's goroutine and a single
// large session yields to its peers on every chunk handoff.
//
// Run returns when the terminal event has been offered to the sink, or
// earlier if ctx is cancelled (the session is then abandoned: no further
// chunks are forwarded and the producer is signalled to stop).
func (r *Relay) Run(ctx context.Context, text string, sink Sink) {
	r.active.Add(1)
	defer r.active.Add(-1)

	// The terminal marker is sent exactly once, whatever path exits Run.
	// If the sink has already gone away this fails silently, which is fine:
	// an abandoned session has nobody left to notify.
	defer func() {
		_ = sink.Send(Event{Terminal: true})
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks := make(chan string, chunkBuffer)
	errc := make(chan error, 1)
	go func() {
		defer close(chunks)
		errc <- r.producer.Produce(ctx, text, func(chunk string) {
			if chunk == "" {
				return
			}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
			}
		})
	}()

	var (
		total  int
		count  int
		skips  int
	)
	for chunk := range chunks {
		if ctx.Err() != nil {
			slog.Debug("relay: session abandoned, sink gone", "forwarded", count)
			return
		}
		if err := sink.Send(Event{Content: chunk}); err != nil {
			// One unprocessable chunk does not abort the session.
			skips++
			slog.Warn("relay: skipping chunk", "err", err)
			continue
		}
		total += len(chunk)
		count++
	}

	if err := <-errc; err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("relay: producer failed", "forwarded", count, "err", err)
		_ = sink.Send(Event{Err: fmt.Sprintf("AI processing failed: %v", err)})
		return
	}
	if ctx.Err() != nil {
		return
	}

	switch {
	case count == 0:
		slog.Warn("relay: producer yielded no content")
		_ = sink.Send(Event{Content: emptyAdvisory})
	case total < r.minOutput:
		slog.Warn("relay: output below threshold", "length", total, "min", r.minOutput)
		_ = sink.Send(Event{Content: shortAdvisory})
	}

	slog.Debug("relay: session complete", "chunks", count, "length", total, "skipped", skips)
}
