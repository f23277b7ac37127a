package events

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

// chunkedReader hands out predefined chunks, then a final error.
type chunkedReader struct {
	chunks []string
	err    error
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, r.err
	}
	chunk := r.chunks[0]
	r.chunks = r.chunks[1:]
	return copy(p, chunk), nil
}

func TestStream_PublishesAndSurfacesLoss(t *testing.T) {
	h := NewHub(8)
	ch, cancel := h.Subscribe()
	defer cancel()

	reader := &chunkedReader{
		chunks: []string{sampleFrame[:20], sampleFrame[20:]},
		err:    errors.New("connection reset"),
	}

	err := NewStream(h).Consume(context.Background(), reader)
	if !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Consume() error = %v, want ErrStreamClosed", err)
	}

	select {
	case env := <-ch:
		if env.ResourceID != "abcd-1234" {
			t.Errorf("envelope = %s, want abcd-1234", env.ResourceID)
		}
	case <-time.After(time.Second):
		t.Fatal("no envelope published before transport loss")
	}
}

func TestStream_EOFIsStillLoss(t *testing.T) {
	h := NewHub(8)

	err := NewStream(h).Consume(context.Background(), strings.NewReader(sampleFrame))
	if !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Consume() error = %v, want ErrStreamClosed on EOF", err)
	}
}

func TestStream_Cancellation(t *testing.T) {
	h := NewHub(8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewStream(h).Consume(ctx, &chunkedReader{err: io.EOF})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Consume() error = %v, want context.Canceled", err)
	}
}

func TestStream_MalformedFrameKeepsReading(t *testing.T) {
	h := NewHub(8)
	ch, cancel := h.Subscribe()
	defer cancel()

	reader := &chunkedReader{
		chunks: []string{
			sampleFrame,
			"data: garbage{\n",
			sampleFrame,
		},
		err: io.EOF,
	}

	if err := NewStream(h).Consume(context.Background(), reader); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("Consume() error = %v, want ErrStreamClosed", err)
	}

	var delivered int
	for {
		select {
		case <-ch:
			delivered++
		default:
			if delivered != 2 {
				t.Errorf("delivered %d envelopes, want 2 (malformed frame skipped)", delivered)
			}
			return
		}
	}
}
