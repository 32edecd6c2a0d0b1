// Package sse implements component A of the protocol translation core: a
// splitter that turns a fragmenting byte stream of upstream Server-Sent
// Events into complete "data: ..." payload strings.
package sse

import "strings"

// Splitter accumulates bytes across repeated Feed calls and yields complete
// frames as soon as a "\n\n" boundary closes them. The incomplete tail is
// retained internally for the next call. A Splitter is owned by exactly one
// request's AdapterStreamState and is never shared (§3.3, §5).
type Splitter struct {
	buf string
}

// NewSplitter returns an empty Splitter.
func NewSplitter() *Splitter {
	return &Splitter{}
}

// Feed appends chunk to the internal buffer, splits on "\n\n", and returns
// the "data: " payload of every complete frame found, in order. Frames with
// no "data:" line, or whose payload is empty (produced by leading blank
// lines), are silently skipped. The literal payload "[DONE]" is returned
// as-is — callers recognize it as the stream terminator.
func (s *Splitter) Feed(chunk []byte) []string {
	s.buf += string(chunk)

	parts := strings.Split(s.buf, "\n\n")
	s.buf = parts[len(parts)-1]
	frames := parts[:len(parts)-1]

	var payloads []string
	for _, frame := range frames {
		if frame == "" {
			continue
		}
		for _, line := range strings.Split(frame, "\n") {
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				continue
			}
			payloads = append(payloads, payload)
		}
	}
	return payloads
}
