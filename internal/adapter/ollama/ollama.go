// Package ollama implements component C of the protocol translation core:
// conversion between the Ollama chat API and the upstream OpenAI Chat
// Completions wire format (spec §4.2/§4.2b).
package ollama

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jbctechsolutions/ghcp-gateway/internal/adapter"
	"github.com/jbctechsolutions/ghcp-gateway/internal/gatewayerr"
	"github.com/jbctechsolutions/ghcp-gateway/internal/sse"
	"github.com/jbctechsolutions/ghcp-gateway/internal/upstreamchunk"
	"github.com/jbctechsolutions/ghcp-gateway/internal/wire"
)

// Adapter is the stateless Ollama protocol translator.
type Adapter struct{}

// New returns a ready-to-use Ollama Adapter.
func New() *Adapter { return &Adapter{} }

var _ adapter.Adapter = (*Adapter)(nil)

type inboundMessage struct {
	Role       string            `json:"role"`
	Content    string            `json:"content"`
	Images     []string          `json:"images,omitempty"`
	ToolCalls  []inboundToolCall `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Name       string            `json:"name,omitempty"`
}

type inboundToolCall struct {
	ID       string               `json:"id,omitempty"`
	Function inboundToolCallFunc `json:"function"`
}

type inboundToolCallFunc struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type inboundRequest struct {
	Model    string                 `json:"model"`
	Messages []inboundMessage       `json:"messages"`
	Stream   *bool                  `json:"stream"`
	Options  map[string]interface{} `json:"options"`
	Tools    interface{}            `json:"tools,omitempty"`
}

// ConvertRequest implements adapter.Adapter (§4.2).
func (Adapter) ConvertRequest(payload []byte) (wire.UpstreamRequest, error) {
	var in inboundRequest
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("decoding ollama request: %w", err)
	}

	out := wire.UpstreamRequest{}
	if in.Model != "" {
		out["model"] = in.Model
	}

	messages := make([]map[string]interface{}, 0, len(in.Messages))
	for _, m := range in.Messages {
		messages = append(messages, convertMessage(m))
	}
	out["messages"] = messages

	if in.Stream != nil {
		out["stream"] = *in.Stream
	}
	for k, v := range in.Options {
		out[k] = v
	}
	if in.Tools != nil {
		out["tools"] = in.Tools
	}
	return out, nil
}

func convertMessage(m inboundMessage) map[string]interface{} {
	out := map[string]interface{}{"role": m.Role}

	if len(m.Images) > 0 {
		parts := make([]map[string]interface{}, 0, len(m.Images)+1)
		parts = append(parts, map[string]interface{}{"type": "text", "text": m.Content})
		for _, img := range m.Images {
			mime := wire.DetectImageMIME(img)
			parts = append(parts, map[string]interface{}{
				"type":      "image_url",
				"image_url": map[string]interface{}{"url": "data:" + mime + ";base64," + img},
			})
		}
		out["content"] = parts
	} else {
		out["content"] = m.Content
	}

	if len(m.ToolCalls) > 0 {
		calls := make([]map[string]interface{}, 0, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			calls = append(calls, map[string]interface{}{
				"id":   tc.ID,
				"type": "function",
				"function": map[string]interface{}{
					"name":      tc.Function.Name,
					"arguments": argumentsToString(tc.Function.Arguments),
				},
			})
		}
		out["tool_calls"] = calls
	}

	if m.ToolCallID != "" {
		out["tool_call_id"] = m.ToolCallID
	}
	if m.Name != "" {
		out["name"] = m.Name
	}
	return out
}

// argumentsToString normalizes a tool call's arguments to a JSON-encoded
// string, serializing if the input was already a decoded object (§4.2).
func argumentsToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// DetectVisionRequest implements adapter.Adapter (§4.1.2).
func (Adapter) DetectVisionRequest(payload []byte) bool {
	var in struct {
		Messages []struct {
			Images []string `json:"images"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(payload, &in); err != nil {
		return false
	}
	for _, m := range in.Messages {
		if len(m.Images) > 0 {
			return true
		}
	}
	return false
}

// ParseResponse implements adapter.Adapter (§4.2b, unary case).
func (Adapter) ParseResponse(upstreamBody []byte) ([]byte, error) {
	var resp upstreamchunk.UnaryResponse
	if err := json.Unmarshal(upstreamBody, &resp); err != nil {
		return nil, fmt.Errorf("decoding upstream response: %w", err)
	}

	var content strings.Builder
	var toolCalls []upstreamchunk.ToolCallDelta
	for _, c := range resp.Choices {
		content.WriteString(c.Message.Content)
		toolCalls = append(toolCalls, c.Message.ToolCalls...)
	}

	message := map[string]interface{}{
		"role":    "assistant",
		"content": content.String(),
	}
	if len(toolCalls) > 0 {
		calls := make([]map[string]interface{}, 0, len(toolCalls))
		for _, tc := range toolCalls {
			calls = append(calls, map[string]interface{}{
				"function": map[string]interface{}{
					"name":      tc.Function.Name,
					"arguments": decodeArguments(tc.Function.Arguments),
				},
			})
		}
		message["tool_calls"] = calls
	}

	out := map[string]interface{}{
		"model":      resp.Model,
		"created_at": isoTime(resp.Created),
		"message":    message,
		"done":       true,
	}
	if resp.Usage != nil {
		out["prompt_eval_count"] = resp.Usage.PromptTokens
		out["eval_count"] = resp.Usage.CompletionTokens
	}
	return json.Marshal(out)
}

func decodeArguments(s string) interface{} {
	if s == "" {
		return map[string]interface{}{}
	}
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func isoTime(created int64) string {
	return time.Unix(created, 0).UTC().Format(time.RFC3339)
}

// NewState implements adapter.Adapter.
func (Adapter) NewState() adapter.StreamState {
	return &streamState{
		splitter:  sse.NewSplitter(),
		functions: map[string]*toolAccumulator{},
	}
}

type toolAccumulator struct {
	id   string
	name string
	args strings.Builder
}

// streamState is the per-request AdapterStreamState for Ollama streaming
// (§4.2b). Tool-call deltas are accumulated keyed by function name, not
// index — replicating the source's one-name = one-accumulator quirk (§9,
// Open Question 1): a later delta carrying the same name overwrites the
// earlier accumulator under that name.
type streamState struct {
	splitter *sse.Splitter

	model       string
	created     int64
	finishSeen  bool
	usage       *upstreamchunk.Usage
	functions   map[string]*toolAccumulator
	toolOrder   []string
	currentName string
	closed      bool
}

// ParseChunk implements adapter.StreamState.
func (s *streamState) ParseChunk(chunk []byte) ([]adapter.Frame, error) {
	if s.closed {
		return nil, nil
	}

	var frames []adapter.Frame
	for _, payload := range s.splitter.Feed(chunk) {
		if payload == "[DONE]" {
			frames = append(frames, s.finish()...)
			continue
		}

		var c upstreamchunk.Chunk
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			// §4.5: a malformed data payload is a parse failure, fatal for
			// this request — not the semantic adapter-internal tolerance.
			return frames, gatewayerr.Wrap(gatewayerr.KindParse, "malformed upstream chunk", err)
		}
		s.model = c.Model
		s.created = c.Created
		if c.Usage != nil {
			s.usage = c.Usage
		}

		for _, choice := range c.Choices {
			if choice.Delta.Content != "" {
				frames = append(frames, s.messageFrame(choice.Delta.Content, nil, false))
			}
			for _, td := range choice.Delta.ToolCalls {
				s.applyToolDelta(td)
			}
			if choice.FinishReason != "" {
				s.finishSeen = true
			}
		}
	}
	return frames, nil
}

func (s *streamState) applyToolDelta(td upstreamchunk.ToolCallDelta) {
	if td.Function.Name != "" {
		id := td.ID
		if id == "" {
			id = wire.NewID("call_")
		}
		if _, exists := s.functions[td.Function.Name]; !exists {
			s.toolOrder = append(s.toolOrder, td.Function.Name)
		}
		s.functions[td.Function.Name] = &toolAccumulator{id: id, name: td.Function.Name}
		s.currentName = td.Function.Name
	}
	if td.Function.Arguments != "" {
		target := td.Function.Name
		if target == "" {
			target = s.currentName
		}
		if acc, ok := s.functions[target]; ok {
			acc.args.WriteString(td.Function.Arguments)
		}
	}
}

func (s *streamState) messageFrame(content string, toolCalls []map[string]interface{}, done bool) adapter.Frame {
	message := map[string]interface{}{"role": "assistant"}
	if content != "" {
		message["content"] = content
	}
	if toolCalls != nil {
		message["tool_calls"] = toolCalls
	}
	body := map[string]interface{}{
		"done":       done,
		"message":    message,
		"model":      s.model,
		"created_at": isoTime(s.created),
	}
	data, _ := json.Marshal(body)
	return adapter.Frame{Data: data}
}

// finish closes out the stream: an optional tool-calls frame followed by a
// final done:true frame (§4.2b, §9 Open Question 3 — the terminal shape is
// two frames, with done:true only on the second).
func (s *streamState) finish() []adapter.Frame {
	if s.closed {
		return nil
	}
	s.closed = true

	var frames []adapter.Frame
	if len(s.toolOrder) > 0 {
		calls := make([]map[string]interface{}, 0, len(s.toolOrder))
		for _, name := range s.toolOrder {
			acc := s.functions[name]
			calls = append(calls, map[string]interface{}{
				"id":   acc.id,
				"type": "function",
				"function": map[string]interface{}{
					"name":      acc.name,
					"arguments": decodeArguments(acc.args.String()),
				},
			})
		}
		frames = append(frames, s.messageFrame("", calls, false))
	}

	final := map[string]interface{}{
		"done":        true,
		"done_reason": "stop",
		"model":       s.model,
		"created_at":  isoTime(s.created),
	}
	if s.usage != nil {
		final["prompt_eval_count"] = s.usage.PromptTokens
		final["eval_count"] = s.usage.CompletionTokens
	}
	data, _ := json.Marshal(final)
	frames = append(frames, adapter.Frame{Data: data})
	return frames
}

// Flush implements adapter.StreamState. Ollama's termination is driven by
// the "[DONE]" sentinel inside ParseChunk; Flush only matters if the
// upstream body closes without one (an abnormal truncation), in which case
// it still emits the final shape so the client sees a well-formed stream.
func (s *streamState) Flush() ([]adapter.Frame, error) {
	return s.finish(), nil
}
