// Package adapter defines the capability contract implemented independently
// by the four protocol adapters (§4.1 of the spec): Ollama, OpenAI Chat
// Completions, Anthropic Messages, and OpenAI Responses.
package adapter

import "github.com/jbctechsolutions/ghcp-gateway/internal/wire"

// Adapter converts between one public chat-completion protocol and the
// upstream OpenAI Chat Completions wire format. Implementations are
// stateless singletons — all mutable per-request parsing state lives in the
// StreamState returned by NewState (§3.3).
type Adapter interface {
	// ConvertRequest turns a decoded inbound payload into an UpstreamRequest.
	// It is pure and does not fail on malformed content: it converts what can
	// be converted and drops unrecognized content silently (§4.1.1). It
	// returns an error only when payload is not decodable JSON.
	ConvertRequest(payload []byte) (wire.UpstreamRequest, error)

	// DetectVisionRequest reports whether payload carries at least one image
	// content part native to this protocol (§4.1.2).
	DetectVisionRequest(payload []byte) bool

	// ParseResponse converts a complete, non-streaming upstream response body
	// into this protocol's outbound JSON body (§4.1.3).
	ParseResponse(upstreamBody []byte) ([]byte, error)

	// NewState returns a fresh, empty per-request stream-parsing state
	// (§3.2 AdapterStreamState). Called once per streaming request.
	NewState() StreamState
}

// Frame is one adapter-native outbound event, already framed for the wire.
// Event is the SSE "event:" line's value; it is empty for protocols that
// don't name their events (Ollama NDJSON, OpenAI passthrough).
type Frame struct {
	Event string
	Data  []byte
}

// StreamState is the per-request mutable state driving §4.3b/§4.4c/§4.2b's
// state machines. It is created by Adapter.NewState, owned exclusively by the
// Pipeline for one request's lifetime, and never shared across requests
// (§3.3, §5 "Shared resources").
type StreamState interface {
	// ParseChunk consumes one newly-arrived slice of raw upstream bytes
	// (which may contain zero, one, or many complete SSE frames, plus an
	// incomplete tail retained internally) and returns the outbound frames
	// it produces, in emission order.
	ParseChunk(chunk []byte) ([]Frame, error)

	// Flush is invoked exactly once, at upstream EOF, so the adapter can
	// close any life-cycle state still open (Anthropic's content_block_stop/
	// message_delta/message_stop, the Responses adapter's *.done events,
	// Ollama's terminal tool-call/usage frame).
	Flush() ([]Frame, error)
}
