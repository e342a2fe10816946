// Package stream implements the client side of the inference service's SSE-like wire format:
// a line-oriented decoder that reassembles frames from arbitrarily fragmented byte chunks, a
// pure classifier that maps frames onto the small set of semantic events the chat flows react
// to, and the session accumulator that reconciles those events into a finished answer.
package stream

import (
	"bytes"
	"strings"
)

// Frame is one decoded (event name, data payload) unit from the wire format. The event name is
// empty when the sender omitted the "event:" line for the surrounding block.
type Frame struct {
	Event string
	Data  string
}

const (
	eventPrefix = "event: "
	dataPrefix  = "data: "
)

// Decoder reassembles wire frames from raw transport chunks. Chunks may be fragmented at any
// byte offset; the decoder buffers the trailing incomplete line between Feed calls, so the frame
// sequence it produces is independent of how the transport happened to split the stream.
//
// The zero value is ready to use. Decoder is not safe for concurrent use; each stream owns one.
type Decoder struct {
	buf   []byte
	event string
}

// Feed appends a chunk to the decode buffer and returns all frames completed by it.
//
// A blank line ends the current event block and clears the event-name context. Lines matching
// neither known prefix are ignored; the format is sender-controlled and new line types must not
// break old clients. Feed never fails: payload validity is the interpreter's concern.
func (d *Decoder) Feed(chunk []byte) []Frame {
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(d.buf[:idx])
		d.buf = d.buf[idx+1:]

		switch {
		case strings.TrimSpace(line) == "":
			d.event = ""
		case strings.HasPrefix(line, eventPrefix):
			d.event = strings.TrimSpace(line[len(eventPrefix):])
		case strings.HasPrefix(line, dataPrefix):
			frames = append(frames, Frame{
				Event: d.event,
				Data:  strings.TrimSpace(line[len(dataPrefix):]),
			})
		}
	}
	return frames
}

// Pending reports whether an incomplete line is still buffered. A stream that closes with
// pending bytes ends mid-line; the partial line is not a valid frame and is discarded.
func (d *Decoder) Pending() bool {
	return len(d.buf) > 0
}
