package events

import (
	"testing"
)

// sampleFrame is one well-formed event frame: an update touching a single
// light resource.
const sampleFrame = `data: [{"creationtime":"2026-08-28T10:00:00Z","id":"f1","type":"update","data":[{"id":"abcd-1234","type":"light","on":{"on":true}}]}]` + "\n"

func collectParser() (*Parser, *[]Envelope) {
	var got []Envelope
	p := NewParser(func(env Envelope) { got = append(got, env) })
	return p, &got
}

func TestParser_SingleFrame(t *testing.T) {
	p, got := collectParser()

	p.Feed([]byte(sampleFrame))

	if len(*got) != 1 {
		t.Fatalf("emitted %d envelopes, want 1", len(*got))
	}
	env := (*got)[0]
	if env.Type != "update" {
		t.Errorf("type = %q, want update", env.Type)
	}
	if env.ResourceID != "abcd-1234" || env.ResourceType != "light" {
		t.Errorf("resource = %s/%s, want abcd-1234/light", env.ResourceID, env.ResourceType)
	}
	if len(env.Data) == 0 {
		t.Error("payload is empty")
	}
	if env.ArrivedAt.IsZero() {
		t.Error("arrival time not set")
	}
}

func TestParser_FrameSplitAcrossThreeChunks(t *testing.T) {
	p, got := collectParser()

	// Split points are arbitrary, including mid-token.
	frame := sampleFrame
	p.Feed([]byte(frame[:17]))
	p.Feed([]byte(frame[17:63]))
	if len(*got) != 0 {
		t.Fatalf("emitted %d envelopes before frame completed, want 0", len(*got))
	}
	if p.Buffered() == 0 {
		t.Error("partial frame not retained in buffer")
	}
	p.Feed([]byte(frame[63:]))

	if len(*got) != 1 {
		t.Fatalf("emitted %d envelopes, want exactly 1", len(*got))
	}
}

func TestParser_MalformedFrameSkipped(t *testing.T) {
	p, got := collectParser()

	p.Feed([]byte(sampleFrame))
	p.Feed([]byte("data: {not valid json]\n"))
	p.Feed([]byte(sampleFrame))

	if len(*got) != 2 {
		t.Fatalf("emitted %d envelopes, want 2 (malformed frame skipped, stream open)", len(*got))
	}
}

func TestParser_IgnoresNonDataLines(t *testing.T) {
	p, got := collectParser()

	p.Feed([]byte(": hi\n"))
	p.Feed([]byte("id: 1337:0\n"))
	p.Feed([]byte("\n"))
	p.Feed([]byte("data:\n"))

	if len(*got) != 0 {
		t.Errorf("emitted %d envelopes from non-payload lines, want 0", len(*got))
	}
}

func TestParser_MultipleChangesInOneFrame(t *testing.T) {
	p, got := collectParser()

	p.Feed([]byte(`data: [{"type":"update","data":[{"id":"a","type":"light"},{"id":"b","type":"grouped_light"}]}]` + "\n"))

	if len(*got) != 2 {
		t.Fatalf("emitted %d envelopes, want 2", len(*got))
	}
	if (*got)[0].ResourceID != "a" || (*got)[1].ResourceID != "b" {
		t.Errorf("envelopes out of arrival order: %s, %s", (*got)[0].ResourceID, (*got)[1].ResourceID)
	}
}

func TestParser_TwoFramesInOneChunk(t *testing.T) {
	p, got := collectParser()

	p.Feed([]byte(sampleFrame + sampleFrame))

	if len(*got) != 2 {
		t.Fatalf("emitted %d envelopes, want 2", len(*got))
	}
}

func TestParser_CRLFLines(t *testing.T) {
	p, got := collectParser()

	frame := sampleFrame[:len(sampleFrame)-1] + "\r\n"
	p.Feed([]byte(frame))

	if len(*got) != 1 {
		t.Fatalf("emitted %d envelopes from CRLF frame, want 1", len(*got))
	}
}
