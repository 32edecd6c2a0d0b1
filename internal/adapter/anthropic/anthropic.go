// Package anthropic implements component E of the protocol translation
// core: conversion between the Anthropic Messages API and the upstream
// OpenAI Chat Completions wire format, including the stateful
// message/content_block event life-cycle (spec §4.3/§4.3b/§4.3c).
package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jbctechsolutions/ghcp-gateway/internal/adapter"
	"github.com/jbctechsolutions/ghcp-gateway/internal/gatewayerr"
	"github.com/jbctechsolutions/ghcp-gateway/internal/sse"
	"github.com/jbctechsolutions/ghcp-gateway/internal/upstreamchunk"
	"github.com/jbctechsolutions/ghcp-gateway/internal/wire"
)

// Adapter is the stateless Anthropic Messages protocol translator.
type Adapter struct{}

// New returns a ready-to-use Adapter.
func New() *Adapter { return &Adapter{} }

var _ adapter.Adapter = (*Adapter)(nil)

type inboundRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	System      json.RawMessage `json:"system,omitempty"`
	Messages    []inboundMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	TopK        *int            `json:"top_k,omitempty"`
	Tools       []inboundTool   `json:"tools,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type inboundMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type inboundBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Source    *imageSource    `json:"source,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

type imageSource struct {
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data"`
}

type inboundTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// ConvertRequest implements adapter.Adapter (§4.3).
func (Adapter) ConvertRequest(payload []byte) (wire.UpstreamRequest, error) {
	var in inboundRequest
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("decoding anthropic request: %w", err)
	}

	out := wire.UpstreamRequest{}
	if in.Model != "" {
		out["model"] = in.Model
	}

	var messages []map[string]interface{}
	if sys := wire.StringOrBlocks(in.System); sys != "" {
		messages = append(messages, map[string]interface{}{"role": "system", "content": sys})
	}
	for _, m := range in.Messages {
		messages = append(messages, convertMessage(m))
	}
	out["messages"] = messages

	if in.MaxTokens > 0 {
		out["max_tokens"] = in.MaxTokens
	}
	if in.Temperature != nil {
		out["temperature"] = *in.Temperature
	}
	if in.TopP != nil {
		out["top_p"] = *in.TopP
	}
	if in.TopK != nil {
		out["top_k"] = *in.TopK
	}
	if in.Stream {
		out["stream"] = in.Stream
	}
	if len(in.Tools) > 0 {
		out["tools"] = convertTools(in.Tools)
	}
	return out, nil
}

func convertTools(tools []inboundTool) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		fn := map[string]interface{}{"name": t.Name}
		if t.Description != "" {
			fn["description"] = t.Description
		}
		var schema interface{}
		if len(t.InputSchema) > 0 {
			json.Unmarshal(t.InputSchema, &schema)
		} else {
			schema = map[string]interface{}{"type": "object"}
		}
		fn["parameters"] = schema
		out = append(out, map[string]interface{}{"type": "function", "function": fn})
	}
	return out
}

// convertMessage converts one Anthropic message (string or block-array
// content) to its upstream shape. A tool_result block is encoded as a
// tool-call-shaped entry rather than the conventional {role:"tool",
// tool_call_id} message — an intentional replication of the source's
// workaround (§4.3, §9 Open Question 2).
func convertMessage(m inboundMessage) map[string]interface{} {
	out := map[string]interface{}{"role": m.Role}

	var plain string
	if err := json.Unmarshal(m.Content, &plain); err == nil {
		out["content"] = plain
		return out
	}

	var blocks []inboundBlock
	if err := json.Unmarshal(m.Content, &blocks); err != nil {
		out["content"] = ""
		return out
	}

	var textParts []string
	var imageParts []map[string]interface{}
	var toolCalls []map[string]interface{}
	var resultCalls []map[string]interface{}

	for _, b := range blocks {
		switch b.Type {
		case "text":
			textParts = append(textParts, b.Text)
		case "image":
			mediaType := "image/jpeg"
			data := ""
			if b.Source != nil {
				if b.Source.MediaType != "" {
					mediaType = b.Source.MediaType
				}
				data = b.Source.Data
			}
			imageParts = append(imageParts, map[string]interface{}{
				"type":      "image_url",
				"image_url": map[string]interface{}{"url": "data:" + mediaType + ";base64," + data},
			})
		case "tool_use":
			var input interface{} = map[string]interface{}{}
			if len(b.Input) > 0 {
				json.Unmarshal(b.Input, &input)
			}
			args, _ := json.Marshal(input)
			toolCalls = append(toolCalls, map[string]interface{}{
				"id":   b.ID,
				"type": "function",
				"function": map[string]interface{}{
					"name":      b.Name,
					"arguments": string(args),
				},
			})
		case "tool_result":
			output := wire.StringOrBlocks(b.Content)
			resultCalls = append(resultCalls, map[string]interface{}{
				"id":   b.ToolUseID,
				"type": "function",
				"function": map[string]interface{}{
					"name":      "",
					"arguments": output,
				},
			})
		}
	}

	if len(imageParts) > 0 {
		parts := make([]map[string]interface{}, 0, len(imageParts)+1)
		if len(textParts) > 0 {
			parts = append(parts, map[string]interface{}{"type": "text", "text": strings.Join(textParts, "")})
		}
		parts = append(parts, imageParts...)
		out["content"] = parts
	} else {
		out["content"] = strings.Join(textParts, "")
	}

	if len(toolCalls) > 0 {
		out["tool_calls"] = toolCalls
	}
	if len(resultCalls) > 0 {
		out["role"] = "tool"
		out["tool_calls"] = resultCalls
	}
	return out
}

// DetectVisionRequest implements adapter.Adapter (§4.1.2).
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
		var blocks []inboundBlock
		if err := json.Unmarshal(m.Content, &blocks); err != nil {
			continue
		}
		for _, b := range blocks {
			if b.Type == "image" {
				return true
			}
		}
	}
	return false
}

// mapStopReason maps an upstream finish_reason to an Anthropic stop_reason
// (§4.3b).
func mapStopReason(reason string) string {
	switch reason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	case "content_filter":
		return "refusal"
	default:
		return reason
	}
}

// ParseResponse implements adapter.Adapter (§4.3c, unary case).
func (Adapter) ParseResponse(upstreamBody []byte) ([]byte, error) {
	var resp upstreamchunk.UnaryResponse
	if err := json.Unmarshal(upstreamBody, &resp); err != nil {
		return nil, fmt.Errorf("decoding upstream response: %w", err)
	}

	var text strings.Builder
	var toolCalls []upstreamchunk.ToolCallDelta
	var finishReason string
	for _, c := range resp.Choices {
		text.WriteString(c.Message.Content)
		toolCalls = append(toolCalls, c.Message.ToolCalls...)
		if c.FinishReason != "" {
			finishReason = c.FinishReason
		}
	}

	var content []map[string]interface{}
	if text.Len() > 0 {
		content = append(content, map[string]interface{}{"type": "text", "text": text.String()})
	}
	for _, tc := range toolCalls {
		var input interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
			input = map[string]interface{}{"arguments": tc.Function.Arguments}
		}
		content = append(content, map[string]interface{}{
			"type": "tool_use", "id": tc.ID, "name": tc.Function.Name, "input": input,
		})
	}

	promptTokens, completionTokens, cachedTokens := 0, 0, 0
	if resp.Usage != nil {
		promptTokens = resp.Usage.PromptTokens
		completionTokens = resp.Usage.CompletionTokens
		if resp.Usage.PromptTokensDetails != nil {
			cachedTokens = resp.Usage.PromptTokensDetails.CachedTokens
		}
	}

	out := map[string]interface{}{
		"id":            wire.NewID("msg_"),
		"type":          "message",
		"role":          "assistant",
		"content":       content,
		"model":         resp.Model,
		"stop_reason":   mapStopReason(finishReason),
		"stop_sequence": nil,
		"usage": map[string]interface{}{
			"input_tokens":                promptTokens - cachedTokens,
			"output_tokens":               completionTokens,
			"cache_read_input_tokens":     cachedTokens,
			"cache_creation_input_tokens": 0,
		},
	}
	return json.Marshal(out)
}

// NewState implements adapter.Adapter.
func (Adapter) NewState() adapter.StreamState {
	return &streamState{splitter: sse.NewSplitter(), currentIndex: -1, functions: map[string]*toolAcc{}}
}

type toolAcc struct {
	id    string
	name  string
	input strings.Builder
}

// streamState is the per-request AdapterStreamState rebuilding Anthropic's
// message_start/content_block_*/message_delta/message_stop life-cycle from
// upstream's flat choices[0].delta frames (§4.3b). Tool-call accumulators
// are keyed by function name, not index, replicating the same quirk as the
// Ollama adapter (§9, Open Question 1).
type streamState struct {
	splitter *sse.Splitter

	hasStarted             bool
	hasStartedCurrentBlock bool
	currentIndex           int
	currentType            string

	functions       map[string]*toolAcc
	currentToolName string

	messageID string
	model     string

	promptTokens int
	cachedTokens int
	outputTokens int
	stopReason   string

	closed bool
}

func (s *streamState) emit(event string, payload interface{}) adapter.Frame {
	data, _ := json.Marshal(payload)
	return adapter.Frame{Event: event, Data: data}
}

func (s *streamState) usage(outputTokens int) map[string]interface{} {
	return map[string]interface{}{
		"input_tokens":                s.promptTokens - s.cachedTokens,
		"output_tokens":               outputTokens,
		"cache_read_input_tokens":     s.cachedTokens,
		"cache_creation_input_tokens": 0,
	}
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

		if !s.hasStarted {
			s.hasStarted = true
			s.messageID = wire.NewID("msg_")
			s.model = c.Model
			if c.Usage != nil {
				s.promptTokens = c.Usage.PromptTokens
				if c.Usage.PromptTokensDetails != nil {
					s.cachedTokens = c.Usage.PromptTokensDetails.CachedTokens
				}
			}
			frames = append(frames, s.emit("message_start", map[string]interface{}{
				"type": "message_start",
				"message": map[string]interface{}{
					"id":            s.messageID,
					"type":          "message",
					"role":          "assistant",
					"content":       []interface{}{},
					"model":         s.model,
					"stop_reason":   nil,
					"stop_sequence": nil,
					"usage":         s.usage(0),
				},
			}))
		}

		if c.Usage != nil {
			s.promptTokens = c.Usage.PromptTokens
			s.outputTokens = c.Usage.CompletionTokens
			if c.Usage.PromptTokensDetails != nil {
				s.cachedTokens = c.Usage.PromptTokensDetails.CachedTokens
			}
		}

		for _, choice := range c.Choices {
			if choice.Delta.Content != "" {
				if !s.hasStartedCurrentBlock {
					s.currentIndex++
					frames = append(frames, s.emit("content_block_start", map[string]interface{}{
						"type":  "content_block_start",
						"index": s.currentIndex,
						"content_block": map[string]interface{}{
							"type": "text", "text": "",
						},
					}))
					s.hasStartedCurrentBlock = true
					s.currentType = "text"
				}
				frames = append(frames, s.emit("content_block_delta", map[string]interface{}{
					"type":  "content_block_delta",
					"index": s.currentIndex,
					"delta": map[string]interface{}{"type": "text", "text": choice.Delta.Content},
				}))
			}

			for _, td := range choice.Delta.ToolCalls {
				if td.Function.Name != "" {
					if s.currentType == "text" && s.hasStartedCurrentBlock {
						frames = append(frames, s.emit("content_block_stop", map[string]interface{}{
							"type": "content_block_stop", "index": s.currentIndex,
						}))
						s.hasStartedCurrentBlock = false
					}
					id := td.ID
					if id == "" {
						id = wire.NewID("call_")
					}
					s.functions[td.Function.Name] = &toolAcc{id: id, name: td.Function.Name}
					s.currentToolName = td.Function.Name
					s.currentIndex++
					frames = append(frames, s.emit("content_block_start", map[string]interface{}{
						"type":  "content_block_start",
						"index": s.currentIndex,
						"content_block": map[string]interface{}{
							"type": "tool_use", "id": id, "name": td.Function.Name, "input": map[string]interface{}{},
						},
					}))
					s.hasStartedCurrentBlock = true
					s.currentType = "tool_use"
				}
				if td.Function.Arguments != "" {
					if acc, ok := s.functions[s.currentToolName]; ok {
						acc.input.WriteString(td.Function.Arguments)
					}
					frames = append(frames, s.emit("content_block_delta", map[string]interface{}{
						"type":  "content_block_delta",
						"index": s.currentIndex,
						"delta": map[string]interface{}{"type": "input_json_delta", "partial_json": td.Function.Arguments},
					}))
				}
			}

			if choice.FinishReason != "" {
				s.stopReason = mapStopReason(choice.FinishReason)
			}
		}
	}
	return frames, nil
}

// finish emits the closing content_block_stop (if a block is open),
// message_delta, and message_stop (§4.3b, "[DONE] sentinel").
func (s *streamState) finish() []adapter.Frame {
	if s.closed {
		return nil
	}
	s.closed = true

	var frames []adapter.Frame
	if s.hasStartedCurrentBlock {
		frames = append(frames, s.emit("content_block_stop", map[string]interface{}{
			"type": "content_block_stop", "index": s.currentIndex,
		}))
		s.hasStartedCurrentBlock = false
	}
	frames = append(frames, s.emit("message_delta", map[string]interface{}{
		"type":  "message_delta",
		"delta": map[string]interface{}{"stop_reason": s.stopReason, "stop_sequence": nil},
		"usage": s.usage(s.outputTokens),
	}))
	frames = append(frames, s.emit("message_stop", map[string]interface{}{"type": "message_stop"}))
	return frames
}

// Flush implements adapter.StreamState.
func (s *streamState) Flush() ([]adapter.Frame, error) {
	return s.finish(), nil
}
