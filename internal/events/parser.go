package events

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Parser constants.
const (
	// dataPrefix marks payload lines in the event stream.
	dataPrefix = "data:"

	// maxBufferedLine caps the partial-line buffer. A frame payload larger
	// than this is not something the bridge produces; treat overflow as a
	// malformed frame rather than growing without bound.
	maxBufferedLine = 1 << 20
)

// Parser assembles event frames from arbitrarily-chunked stream bytes.
//
// Incoming data is buffered across chunk boundaries; a frame is only
// decoded once its full line has arrived. Partial lines are retained,
// never dropped or mis-parsed. A frame that fails to decode is logged
// and skipped; one malformed frame never terminates the stream.
//
// Thread Safety: not safe for concurrent use. One Parser belongs to one
// stream's read loop.
type Parser struct {
	buf    bytes.Buffer
	emit   func(Envelope)
	logger Logger
}

// NewParser creates a frame parser delivering decoded envelopes to emit.
func NewParser(emit func(Envelope)) *Parser {
	return &Parser{emit: emit, logger: noopLogger{}}
}

// SetLogger sets the logger for the parser.
func (p *Parser) SetLogger(logger Logger) {
	p.logger = logger
}

// Feed appends one chunk and emits every frame completed by it. Chunk
// boundaries carry no meaning; a frame may span any number of chunks and
// a chunk may complete several frames.
func (p *Parser) Feed(chunk []byte) {
	p.buf.Write(chunk)

	for {
		line, ok := p.nextLine()
		if !ok {
			return
		}
		p.handleLine(line)
	}
}

// Buffered returns how many bytes of an incomplete line are retained.
func (p *Parser) Buffered() int {
	return p.buf.Len()
}

// nextLine extracts one complete newline-terminated line, or reports that
// only a partial line remains buffered.
func (p *Parser) nextLine() (string, bool) {
	data := p.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		if p.buf.Len() > maxBufferedLine {
			p.logger.Warn("event frame exceeds buffer cap, discarding", "buffered", p.buf.Len())
			p.buf.Reset()
		}
		return "", false
	}

	line := string(data[:idx])
	p.buf.Next(idx + 1)
	return strings.TrimSuffix(line, "\r"), true
}

// handleLine processes one complete stream line. Only data lines carry
// frames; id lines, comments and keep-alive blanks are ignored.
func (p *Parser) handleLine(line string) {
	if !strings.HasPrefix(line, dataPrefix) {
		return
	}
	payload := strings.TrimSpace(line[len(dataPrefix):])
	if payload == "" {
		return
	}

	var records []eventRecord
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		p.logger.Warn("skipping malformed event frame", "error", err, "frame", truncateFrame(payload))
		return
	}

	arrived := time.Now().UTC()
	for _, record := range records {
		for _, raw := range record.Data {
			var ref resourceRef
			if err := json.Unmarshal(raw, &ref); err != nil {
				p.logger.Warn("skipping malformed event entry", "error", err)
				continue
			}
			p.emit(Envelope{
				Type:         record.Type,
				ResourceID:   ref.ID,
				ResourceType: ref.Type,
				Data:         raw,
				ArrivedAt:    arrived,
			})
		}
	}
}

// truncateFrame bounds a frame for log output.
func truncateFrame(s string) string {
	const max = 256
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
