package events

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrStreamClosed is returned when the event stream's transport ends.
// The gateway client owns the reconnect decision; this package only
// surfaces the loss.
var ErrStreamClosed = errors.New("events: stream closed")

// readChunk is the stream read buffer size. The bridge sends small
// frames; anything larger just spans multiple reads.
const readChunk = 4096

// Stream is the long-lived read loop turning stream bytes into envelopes
// published on a hub. One Stream instance serves one connection attempt;
// the parser is fresh per attempt so a reconnect never inherits a stale
// partial frame.
type Stream struct {
	hub    *Hub
	logger Logger
}

// NewStream creates a stream consumer publishing to hub.
func NewStream(hub *Hub) *Stream {
	return &Stream{hub: hub, logger: noopLogger{}}
}

// SetLogger sets the logger for the stream and its parsers.
func (s *Stream) SetLogger(logger Logger) {
	s.logger = logger
}

// Consume reads the connection until the transport is lost, feeding every
// chunk through a frame parser and publishing decoded envelopes.
//
// Consume never reconnects: any return is a surfaced connection loss (or
// cancellation) for the caller to act on. A clean EOF is still a loss;
// the stream is unbounded by contract.
//
// Parameters:
//   - ctx: Read-loop context; cancellation is checked between reads
//   - r: Connected stream body
//
// Returns:
//   - error: ctx.Err() on cancellation, otherwise the transport failure
//     wrapped in ErrStreamClosed
func (s *Stream) Consume(ctx context.Context, r io.Reader) error {
	parser := NewParser(s.hub.Publish)
	parser.SetLogger(s.logger)

	buf := make([]byte, readChunk)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(buf)
		if n > 0 {
			parser.Feed(buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return ErrStreamClosed
			}
			return fmt.Errorf("%w: %v", ErrStreamClosed, err)
		}
	}
}
