// Package openaichat implements component D of the protocol translation
// core: the OpenAI Chat Completions adapter, which is a pass-through since
// the upstream speaks the same wire format natively (spec §4.6).
package openaichat

import (
	"encoding/json"

	"github.com/jbctechsolutions/ghcp-gateway/internal/adapter"
	"github.com/jbctechsolutions/ghcp-gateway/internal/sse"
	"github.com/jbctechsolutions/ghcp-gateway/internal/wire"
)

// Adapter is the stateless OpenAI Chat Completions protocol translator.
type Adapter struct{}

// New returns a ready-to-use Adapter.
func New() *Adapter { return &Adapter{} }

var _ adapter.Adapter = (*Adapter)(nil)

// ConvertRequest returns payload unchanged, decoded into an UpstreamRequest
// (§4.6, §8.1 "Round-trip of OpenAI pass-through").
func (Adapter) ConvertRequest(payload []byte) (wire.UpstreamRequest, error) {
	var out wire.UpstreamRequest
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DetectVisionRequest reports whether any message's content array carries an
// image_url part (§4.6).
func (Adapter) DetectVisionRequest(payload []byte) bool {
	var in struct {
		Messages []struct {
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(payload, &in); err != nil {
		return false
	}
	for _, m := range in.Messages {
		var parts []struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(m.Content, &parts); err != nil {
			continue
		}
		for _, p := range parts {
			if p.Type == "image_url" {
				return true
			}
		}
	}
	return false
}

// ParseResponse returns the upstream unary body unchanged (§4.6).
func (Adapter) ParseResponse(upstreamBody []byte) ([]byte, error) {
	return upstreamBody, nil
}

// NewState returns a fresh pass-through stream state.
func (Adapter) NewState() adapter.StreamState {
	return &streamState{splitter: sse.NewSplitter()}
}

type streamState struct {
	splitter *sse.Splitter
	closed   bool
}

// ParseChunk re-emits every upstream SSE frame as-is, stopping at "[DONE]"
// (§4.6).
func (s *streamState) ParseChunk(chunk []byte) ([]adapter.Frame, error) {
	if s.closed {
		return nil, nil
	}
	var frames []adapter.Frame
	for _, payload := range s.splitter.Feed(chunk) {
		if payload == "[DONE]" {
			s.closed = true
			break
		}
		frames = append(frames, adapter.Frame{Data: []byte(payload)})
	}
	return frames, nil
}

// Flush is a no-op: the OpenAI adapter has no life-cycle state to close, and
// the pipeline itself is responsible for writing the trailing "[DONE]"
// sentinel (§4.7 step 6).
func (s *streamState) Flush() ([]adapter.Frame, error) {
	return nil, nil
}
