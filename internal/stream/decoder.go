// Package stream posts a conversation to the chat gateway and decodes the
// server-sent event stream it answers with into text deltas.
package stream

import (
	"bytes"

	"github.com/javalab/jl-assistant/internal"
	"github.com/tidwall/gjson"
)

const (
	dataPrefix = "data: "
	doneMarker = "[DONE]"

	// JSON path of the incremental text in a chat completion chunk
	deltaPath = "choices.0.delta.content"
)

// Decoder reassembles SSE lines from arbitrarily chunked bytes and emits
// the delta text of every complete chat completion chunk.
//
// A line whose payload is not yet valid JSON is kept in the buffer until
// more bytes arrive. Flush gives such lines one last chance when the
// stream closes.
type Decoder struct {
	buf     []byte
	done    bool
	dropped int
	onDelta func(string)
}

// NewDecoder creates a decoder that calls onDelta for every non-empty delta
func NewDecoder(onDelta func(string)) *Decoder {
	if onDelta == nil {
		onDelta = func(string) {}
	}
	return &Decoder{onDelta: onDelta}
}

// Feed appends a chunk and processes every complete line in the buffer.
// It reports whether the [DONE] sentinel has been reached.
func (d *Decoder) Feed(chunk []byte) bool {
	if d.done {
		return true
	}
	d.buf = append(d.buf, chunk...)

	for !d.done {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := d.buf[:idx]
		if !d.handleLine(line, false) {
			// incomplete fragment stays at the front of the buffer
			break
		}
		d.buf = d.buf[idx+1:]
	}

	if d.done {
		d.buf = nil
	}
	return d.done
}

// Flush processes whatever is left in the buffer after the stream closed,
// including a final unterminated line. Lines that still fail to parse are
// dropped and logged.
func (d *Decoder) Flush() {
	if d.done || len(d.buf) == 0 {
		d.buf = nil
		return
	}

	rest := d.buf
	d.buf = nil
	for len(rest) > 0 && !d.done {
		var line []byte
		if idx := bytes.IndexByte(rest, '\n'); idx >= 0 {
			line, rest = rest[:idx], rest[idx+1:]
		} else {
			line, rest = rest, nil
		}
		d.handleLine(line, true)
	}
}

// Done reports whether the [DONE] sentinel was seen
func (d *Decoder) Done() bool {
	return d.done
}

// Dropped returns how many lines were discarded as unparseable on flush
func (d *Decoder) Dropped() int {
	return d.dropped
}

// Pending returns the number of buffered bytes not yet consumed
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// handleLine applies the line rules. It returns false only when the line
// should be retried once more bytes arrive.
func (d *Decoder) handleLine(line []byte, final bool) bool {
	line = bytes.TrimSuffix(line, []byte{'\r'})

	if len(bytes.TrimSpace(line)) == 0 || line[0] == ':' {
		return true
	}
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return true
	}

	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 {
		return true
	}
	if string(payload) == doneMarker {
		d.done = true
		return true
	}

	if !gjson.ValidBytes(payload) {
		if final {
			d.dropped++
			internal.LogWarn("Dropping unparseable stream line after close (%d bytes): %.80s", len(payload), payload)
			return true
		}
		internal.LogDebug("Buffering incomplete stream line (%d bytes)", len(payload))
		return false
	}

	delta := gjson.GetBytes(payload, deltaPath)
	if delta.Type == gjson.String && delta.Str != "" {
		d.onDelta(delta.Str)
	}
	return true
}
