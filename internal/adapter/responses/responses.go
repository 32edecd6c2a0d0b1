// Package responses implements component F of the protocol translation
// core: conversion between the OpenAI Responses API and the upstream OpenAI
// Chat Completions wire format, including the response.* event life-cycle
// (spec §4.4/§4.4b/§4.4c).
package responses

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

// Adapter is the stateless OpenAI Responses protocol translator.
type Adapter struct{}

// New returns a ready-to-use Adapter.
func New() *Adapter { return &Adapter{} }

var _ adapter.Adapter = (*Adapter)(nil)

type inboundRequest struct {
	Model        string          `json:"model"`
	Input        json.RawMessage `json:"input,omitempty"`
	Instructions string          `json:"instructions,omitempty"`
	Reasoning    *struct {
		Effort string `json:"effort"`
	} `json:"reasoning,omitempty"`
	Text *struct {
		Format *responseFormat `json:"format"`
	} `json:"text,omitempty"`
	ToolChoice json.RawMessage   `json:"tool_choice,omitempty"`
	Tools      []json.RawMessage `json:"tools,omitempty"`
	Stream     bool              `json:"stream,omitempty"`
	Metadata   interface{}       `json:"metadata,omitempty"`
	User       string            `json:"user,omitempty"`
	Truncation interface{}       `json:"truncation,omitempty"`
}

type responseFormat struct {
	Type   string      `json:"type"`
	Name   string      `json:"name,omitempty"`
	Schema interface{} `json:"schema,omitempty"`
	Strict *bool       `json:"strict,omitempty"`
}

type inboundInputItem struct {
	Type    string          `json:"type"`
	Role    string          `json:"role,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	CallID  string          `json:"call_id,omitempty"`
	Output  json.RawMessage `json:"output,omitempty"`
}

// ConvertRequest implements adapter.Adapter (§4.4).
func (Adapter) ConvertRequest(payload []byte) (wire.UpstreamRequest, error) {
	var in inboundRequest
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("decoding responses request: %w", err)
	}

	out := wire.UpstreamRequest{}
	if in.Model != "" {
		out["model"] = in.Model
	}

	var messages []map[string]interface{}
	if in.Instructions != "" {
		messages = append(messages, map[string]interface{}{"role": "system", "content": in.Instructions})
	}
	messages = append(messages, convertInput(in.Input)...)
	out["messages"] = messages

	if in.Reasoning != nil && in.Reasoning.Effort != "" {
		out["reasoning_effort"] = in.Reasoning.Effort
	}
	if in.Text != nil && in.Text.Format != nil {
		switch in.Text.Format.Type {
		case "json_schema":
			out["response_format"] = map[string]interface{}{
				"type": "json_schema",
				"json_schema": map[string]interface{}{
					"name":   in.Text.Format.Name,
					"schema": in.Text.Format.Schema,
					"strict": in.Text.Format.Strict,
				},
			}
		case "json_object":
			out["response_format"] = map[string]interface{}{"type": "json_object"}
		}
	}
	if tc := flattenToolChoice(in.ToolChoice); tc != nil {
		out["tool_choice"] = tc
	}
	if len(in.Tools) > 0 {
		tools, webSearch := convertTools(in.Tools)
		if len(tools) > 0 {
			out["tools"] = tools
		}
		if webSearch != nil {
			out["web_search_options"] = webSearch
		}
	}
	if in.Stream {
		out["stream"] = in.Stream
	}
	if in.Metadata != nil {
		out["metadata"] = in.Metadata
	}
	if in.User != "" {
		out["user"] = in.User
	}
	if in.Truncation != nil {
		out["truncation"] = in.Truncation
	}
	return out, nil
}

// convertInput normalizes the Responses "input" field — a plain string or an
// array of typed items — into Chat Completions messages (§4.4).
func convertInput(raw json.RawMessage) []map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []map[string]interface{}{{"role": "user", "content": s}}
	}

	var items []inboundInputItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	out := make([]map[string]interface{}, 0, len(items))
	for _, it := range items {
		switch it.Type {
		case "function_call_output":
			out = append(out, map[string]interface{}{
				"role":         "tool",
				"tool_call_id": it.CallID,
				"content":      wire.StringOrBlocks(it.Output),
			})
		default:
			role := it.Role
			if role == "" {
				role = "user"
			}
			out = append(out, map[string]interface{}{"role": role, "content": normalizeContent(it.Content)})
		}
	}
	return out
}

// normalizeContent maps Responses content parts to Chat Completions content
// parts (§4.4), collapsing to a plain string when exactly one text part
// results.
func normalizeContent(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var rawParts []json.RawMessage
	if err := json.Unmarshal(raw, &rawParts); err != nil {
		return string(raw)
	}

	var parts []map[string]interface{}
	for _, rp := range rawParts {
		var p struct {
			Type     string      `json:"type"`
			Text     string      `json:"text,omitempty"`
			ImageURL interface{} `json:"image_url,omitempty"`
			URL      string      `json:"url,omitempty"`
			FileID   string      `json:"file_id,omitempty"`
			FileData interface{} `json:"file_data,omitempty"`
			Audio    interface{} `json:"audio,omitempty"`
		}
		if err := json.Unmarshal(rp, &p); err != nil {
			continue
		}
		switch p.Type {
		case "input_text", "output_text", "tool_result":
			parts = append(parts, map[string]interface{}{"type": "text", "text": p.Text})
		case "input_image":
			url := p.URL
			if s, ok := p.ImageURL.(string); ok && s != "" {
				url = s
			}
			parts = append(parts, map[string]interface{}{
				"type":      "image_url",
				"image_url": map[string]interface{}{"url": url},
			})
		case "input_file":
			var file interface{} = p.FileData
			if p.FileID != "" {
				file = p.FileID
			}
			parts = append(parts, map[string]interface{}{"type": "file", "file": file})
		case "input_audio":
			audio := p.Audio
			if audio == nil {
				audio = map[string]interface{}{"url": p.URL}
			}
			parts = append(parts, map[string]interface{}{"type": "input_audio", "input_audio": audio})
		default:
			var raw interface{}
			if err := json.Unmarshal(rp, &raw); err == nil {
				if m, ok := raw.(map[string]interface{}); ok {
					parts = append(parts, m)
				}
			}
		}
	}

	if len(parts) == 1 && parts[0]["type"] == "text" {
		return parts[0]["text"]
	}
	return parts
}

// flattenToolChoice implements the tool_choice flattening rule of §4.4.
func flattenToolChoice(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Type != "" {
		switch obj.Type {
		case "auto", "none":
			return obj.Type
		case "required", "tool":
			return "required"
		default:
			return obj.Type
		}
	}
	return nil
}

// convertTools normalizes the Responses "tools" array (§4.4): mcp tools
// pass through unchanged, web_search[_preview] tools are removed and
// aggregated into web_search_options, and function tools are rebuilt in
// Chat Completions shape with parameters.type set to "object" when absent.
func convertTools(tools []json.RawMessage) ([]map[string]interface{}, map[string]interface{}) {
	var out []map[string]interface{}
	var webSearch map[string]interface{}

	for _, raw := range tools {
		var peek struct {
			Type string `json:"type"`
		}
		json.Unmarshal(raw, &peek)

		switch peek.Type {
		case "mcp":
			var m map[string]interface{}
			if err := json.Unmarshal(raw, &m); err == nil {
				out = append(out, m)
			}
		case "web_search", "web_search_preview":
			var ws struct {
				SearchContextSize string      `json:"search_context_size,omitempty"`
				UserLocation      interface{} `json:"user_location,omitempty"`
			}
			json.Unmarshal(raw, &ws)
			webSearch = map[string]interface{}{}
			if ws.SearchContextSize != "" {
				webSearch["search_context_size"] = ws.SearchContextSize
			}
			if ws.UserLocation != nil {
				webSearch["user_location"] = ws.UserLocation
			}
		default:
			var t struct {
				Name           string          `json:"name"`
				Description    string          `json:"description,omitempty"`
				Parameters     json.RawMessage `json:"parameters,omitempty"`
				CacheControl   interface{}     `json:"cache_control,omitempty"`
				DeferLoading   interface{}      `json:"defer_loading,omitempty"`
				AllowedCallers interface{}     `json:"allowed_callers,omitempty"`
				InputExamples  interface{}     `json:"input_examples,omitempty"`
			}
			json.Unmarshal(raw, &t)

			fn := map[string]interface{}{"name": t.Name, "parameters": normalizeSchema(t.Parameters)}
			if t.Description != "" {
				fn["description"] = t.Description
			}
			entry := map[string]interface{}{"type": "function", "function": fn}
			if t.CacheControl != nil {
				entry["cache_control"] = t.CacheControl
			}
			if t.DeferLoading != nil {
				entry["defer_loading"] = t.DeferLoading
			}
			if t.AllowedCallers != nil {
				entry["allowed_callers"] = t.AllowedCallers
			}
			if t.InputExamples != nil {
				entry["input_examples"] = t.InputExamples
			}
			out = append(out, entry)
		}
	}
	return out, webSearch
}

func normalizeSchema(raw json.RawMessage) map[string]interface{} {
	var m map[string]interface{}
	if len(raw) > 0 {
		json.Unmarshal(raw, &m)
	}
	if m == nil {
		m = map[string]interface{}{}
	}
	if _, ok := m["type"]; !ok {
		m["type"] = "object"
	}
	return m
}

// DetectVisionRequest implements adapter.Adapter (§4.1.2).
func (Adapter) DetectVisionRequest(payload []byte) bool {
	var in struct {
		Input json.RawMessage `json:"input"`
	}
	if err := json.Unmarshal(payload, &in); err != nil {
		return false
	}
	var items []inboundInputItem
	if err := json.Unmarshal(in.Input, &items); err != nil {
		return false
	}
	for _, it := range items {
		var parts []struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(it.Content, &parts); err != nil {
			continue
		}
		for _, p := range parts {
			if p.Type == "input_image" {
				return true
			}
		}
	}
	return false
}

func annotationsOf(anns []upstreamchunk.Annotation) []map[string]interface{} {
	var out []map[string]interface{}
	for _, a := range anns {
		if a.Type != "url_citation" || a.URLCitation == nil {
			continue
		}
		out = append(out, map[string]interface{}{
			"type":        "url_citation",
			"start_index": a.URLCitation.StartIndex,
			"end_index":   a.URLCitation.EndIndex,
			"url":         a.URLCitation.URL,
			"title":       a.URLCitation.Title,
		})
	}
	return out
}

// ParseResponse implements adapter.Adapter (§4.4b, unary case).
func (Adapter) ParseResponse(upstreamBody []byte) ([]byte, error) {
	var resp upstreamchunk.UnaryResponse
	if err := json.Unmarshal(upstreamBody, &resp); err != nil {
		return nil, fmt.Errorf("decoding upstream response: %w", err)
	}

	var output []map[string]interface{}
	for _, c := range resp.Choices {
		if c.Message.ReasoningContent != "" {
			output = append(output, map[string]interface{}{
				"type": "reasoning",
				"id":   wire.NewID("reasoning_"),
				"summary": []interface{}{},
				"content": []map[string]interface{}{
					{"type": "reasoning_text", "text": c.Message.ReasoningContent},
				},
			})
		}
	}

	var outputText strings.Builder
	var toolCalls []upstreamchunk.ToolCallDelta
	var annotations []upstreamchunk.Annotation
	var finishReason string
	for _, c := range resp.Choices {
		outputText.WriteString(c.Message.Content)
		toolCalls = append(toolCalls, c.Message.ToolCalls...)
		annotations = append(annotations, c.Message.Annotations...)
		if c.FinishReason != "" {
			finishReason = c.FinishReason
		}
	}

	if outputText.Len() > 0 {
		output = append(output, map[string]interface{}{
			"type": "message", "id": wire.NewID("msg_"), "role": "assistant", "status": "completed",
			"content": []map[string]interface{}{
				{"type": "output_text", "text": outputText.String(), "annotations": annotationsOf(annotations)},
			},
		})
	}
	for _, tc := range toolCalls {
		output = append(output, map[string]interface{}{
			"type": "function_call", "id": wire.NewID("fc_"),
			"call_id": tc.ID, "name": tc.Function.Name, "arguments": tc.Function.Arguments,
		})
	}

	status := "completed"
	var incompleteDetails interface{}
	switch finishReason {
	case "length":
		status = "incomplete"
		incompleteDetails = map[string]interface{}{"reason": "max_tokens"}
	case "content_filter":
		status = "incomplete"
		incompleteDetails = map[string]interface{}{"reason": "content_filter"}
	}

	usage := map[string]interface{}{}
	if resp.Usage != nil {
		idt := map[string]interface{}{}
		odt := map[string]interface{}{}
		if resp.Usage.PromptTokensDetails != nil {
			idt["cached_tokens"] = resp.Usage.PromptTokensDetails.CachedTokens
			idt["text_tokens"] = resp.Usage.PromptTokensDetails.TextTokens
			idt["audio_tokens"] = resp.Usage.PromptTokensDetails.AudioTokens
		}
		if resp.Usage.CompletionTokensDetails != nil {
			odt["reasoning_tokens"] = resp.Usage.CompletionTokensDetails.ReasoningTokens
			odt["text_tokens"] = resp.Usage.CompletionTokensDetails.TextTokens
		}
		usage["input_tokens"] = resp.Usage.PromptTokens
		usage["output_tokens"] = resp.Usage.CompletionTokens
		usage["total_tokens"] = resp.Usage.TotalTokens
		usage["input_tokens_details"] = idt
		usage["output_tokens_details"] = odt
		if resp.Usage.Cost != nil {
			usage["cost"] = *resp.Usage.Cost
		}
	}

	out := map[string]interface{}{
		"id": wire.NewID("resp_"), "object": "response", "created_at": resp.Created, "model": resp.Model,
		"status": status, "incomplete_details": incompleteDetails,
		"output": output, "output_text": outputText.String(), "usage": usage,
	}
	return json.Marshal(out)
}

// NewState implements adapter.Adapter.
func (Adapter) NewState() adapter.StreamState {
	return &streamState{splitter: sse.NewSplitter(), toolCalls: map[int]*toolCallAcc{}}
}

type toolCallAcc struct {
	outputIndex int
	itemID      string
	name        string
	arguments   strings.Builder
}

// streamState is the per-request AdapterStreamState reconstructing the
// Responses API's response.* event life-cycle from upstream's flat
// choices[0].delta frames (§4.4c). toolCalls is keyed by the upstream
// tool-call index (unlike Ollama/Anthropic's name-keyed accumulators),
// per §4.4c's documented state shape.
type streamState struct {
	splitter *sse.Splitter

	started    bool
	responseID string
	createdAt  int64
	model      string

	outputText strings.Builder

	promptTokens, completionTokens, totalTokens       int
	cachedTokens, promptTextTokens, promptAudioTokens int
	reasoningTokens, completionTextTokens             int

	outputItemAdded  bool
	contentPartAdded bool
	itemID           string

	annotationAdded     bool
	currentAnnotations  []upstreamchunk.Annotation

	toolCalls map[int]*toolCallAcc
	toolOrder []int

	finishReason string
	closed       bool
}

func (s *streamState) emit(event string, payload interface{}) adapter.Frame {
	data, _ := json.Marshal(payload)
	return adapter.Frame{Event: event, Data: data}
}

func (s *streamState) mergeUsage(u *upstreamchunk.Usage) {
	s.promptTokens = u.PromptTokens
	s.completionTokens = u.CompletionTokens
	s.totalTokens = u.TotalTokens
	if u.PromptTokensDetails != nil {
		s.cachedTokens = u.PromptTokensDetails.CachedTokens
		s.promptTextTokens = u.PromptTokensDetails.TextTokens
		s.promptAudioTokens = u.PromptTokensDetails.AudioTokens
	}
	if u.CompletionTokensDetails != nil {
		s.reasoningTokens = u.CompletionTokensDetails.ReasoningTokens
		s.completionTextTokens = u.CompletionTokensDetails.TextTokens
	}
}

func (s *streamState) usagePayload() map[string]interface{} {
	return map[string]interface{}{
		"input_tokens": s.promptTokens, "output_tokens": s.completionTokens, "total_tokens": s.totalTokens,
		"input_tokens_details": map[string]interface{}{
			"cached_tokens": s.cachedTokens, "text_tokens": s.promptTextTokens, "audio_tokens": s.promptAudioTokens,
		},
		"output_tokens_details": map[string]interface{}{
			"reasoning_tokens": s.reasoningTokens, "text_tokens": s.completionTextTokens,
		},
	}
}

func (s *streamState) annotationPayloads() []map[string]interface{} {
	return annotationsOf(s.currentAnnotations)
}

func (s *streamState) envelope(status string) map[string]interface{} {
	return map[string]interface{}{
		"id": s.responseID, "object": "response", "created_at": s.createdAt, "model": s.model,
		"status": status, "output": []interface{}{}, "output_text": "",
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

		if !s.started {
			s.started = true
			s.responseID = wire.NewID("resp_")
			s.createdAt = c.Created
			s.model = c.Model
			frames = append(frames, s.emit("response.created", map[string]interface{}{
				"type": "response.created", "response": s.envelope("in_progress"),
			}))
			frames = append(frames, s.emit("response.in_progress", map[string]interface{}{
				"type": "response.in_progress", "response": s.envelope("in_progress"),
			}))
		}

		if c.Usage != nil {
			s.mergeUsage(c.Usage)
		}

		for _, choice := range c.Choices {
			hasDelta := choice.Delta.Content != "" || len(choice.Delta.ToolCalls) > 0 || len(choice.Delta.Annotations) > 0
			if hasDelta && !s.outputItemAdded {
				s.itemID = wire.NewID("msg_")
				s.outputItemAdded = true
				frames = append(frames, s.emit("response.output_item.added", map[string]interface{}{
					"type": "response.output_item.added", "output_index": 0,
					"item": map[string]interface{}{
						"id": s.itemID, "type": "message", "role": "assistant", "status": "in_progress", "content": []interface{}{},
					},
				}))
			}

			if choice.Delta.Content != "" {
				if !s.contentPartAdded {
					s.contentPartAdded = true
					frames = append(frames, s.emit("response.content_part.added", map[string]interface{}{
						"type": "response.content_part.added", "item_id": s.itemID, "output_index": 0, "content_index": 0,
						"part": map[string]interface{}{"type": "output_text", "text": "", "annotations": []interface{}{}},
					}))
				}
				s.outputText.WriteString(choice.Delta.Content)
				frames = append(frames, s.emit("response.output_text.delta", map[string]interface{}{
					"type": "response.output_text.delta", "item_id": s.itemID, "output_index": 0, "content_index": 0,
					"delta": choice.Delta.Content,
				}))
			}

			if len(choice.Delta.Annotations) > 0 && !s.annotationAdded {
				s.annotationAdded = true
				s.currentAnnotations = choice.Delta.Annotations
				for i, a := range annotationsOf(choice.Delta.Annotations) {
					frames = append(frames, s.emit("response.output_text.annotation_added", map[string]interface{}{
						"type": "response.output_text.annotation_added", "item_id": s.itemID, "output_index": 0, "content_index": 0,
						"annotation_index": i, "annotation": a,
					}))
				}
			}

			for _, td := range choice.Delta.ToolCalls {
				acc, ok := s.toolCalls[td.Index]
				if !ok {
					outputIndex := td.Index
					if s.outputText.Len() > 0 {
						outputIndex++
					}
					itemID := td.ID
					if itemID == "" {
						itemID = wire.NewID("fc_")
					}
					acc = &toolCallAcc{outputIndex: outputIndex, itemID: itemID}
					s.toolCalls[td.Index] = acc
					s.toolOrder = append(s.toolOrder, td.Index)
				}
				if td.Function.Name != "" {
					acc.name = td.Function.Name
				}
				if td.Function.Arguments != "" {
					acc.arguments.WriteString(td.Function.Arguments)
					frames = append(frames, s.emit("response.function_call_arguments.delta", map[string]interface{}{
						"type": "response.function_call_arguments.delta", "item_id": acc.itemID, "output_index": acc.outputIndex,
						"delta": td.Function.Arguments,
					}))
				}
			}

			if choice.FinishReason != "" {
				s.finishReason = choice.FinishReason
			}
		}
	}
	return frames, nil
}

// finish closes out the stream per §4.4c's "[DONE]" transition.
func (s *streamState) finish() []adapter.Frame {
	if s.closed {
		return nil
	}
	s.closed = true

	var frames []adapter.Frame
	anns := s.annotationPayloads()

	if s.contentPartAdded {
		frames = append(frames, s.emit("response.content_part.done", map[string]interface{}{
			"type": "response.content_part.done", "item_id": s.itemID, "output_index": 0, "content_index": 0,
			"part": map[string]interface{}{"type": "output_text", "text": s.outputText.String(), "annotations": anns},
		}))
	}
	if s.outputItemAdded {
		frames = append(frames, s.emit("response.output_item.done", map[string]interface{}{
			"type": "response.output_item.done", "output_index": 0,
			"item": map[string]interface{}{
				"id": s.itemID, "type": "message", "role": "assistant", "status": "completed",
				"content": []map[string]interface{}{
					{"type": "output_text", "text": s.outputText.String(), "annotations": anns},
				},
			},
		}))
	}
	if s.outputText.Len() > 0 {
		frames = append(frames, s.emit("response.output_text.done", map[string]interface{}{
			"type": "response.output_text.done", "item_id": s.itemID, "output_index": 0, "content_index": 0,
			"text": s.outputText.String(),
		}))
	}
	for _, idx := range s.toolOrder {
		acc := s.toolCalls[idx]
		frames = append(frames, s.emit("response.function_call_arguments.done", map[string]interface{}{
			"type": "response.function_call_arguments.done", "item_id": acc.itemID, "output_index": acc.outputIndex,
			"arguments": acc.arguments.String(),
		}))
	}

	frames = append(frames, s.emit("response.completed", map[string]interface{}{
		"type": "response.completed", "response": s.finalEnvelope(anns),
	}))
	return frames
}

func (s *streamState) finalEnvelope(anns []map[string]interface{}) map[string]interface{} {
	var output []map[string]interface{}
	if s.outputItemAdded {
		output = append(output, map[string]interface{}{
			"id": s.itemID, "type": "message", "role": "assistant", "status": "completed",
			"content": []map[string]interface{}{
				{"type": "output_text", "text": s.outputText.String(), "annotations": anns},
			},
		})
	}
	for _, idx := range s.toolOrder {
		acc := s.toolCalls[idx]
		output = append(output, map[string]interface{}{
			"id": acc.itemID, "type": "function_call", "call_id": acc.itemID, "name": acc.name,
			"arguments": acc.arguments.String(),
		})
	}
	return map[string]interface{}{
		"id": s.responseID, "object": "response", "created_at": s.createdAt, "model": s.model,
		"status": "completed", "output": output, "output_text": s.outputText.String(),
		"usage": s.usagePayload(),
	}
}

// Flush implements adapter.StreamState.
func (s *streamState) Flush() ([]adapter.Frame, error) {
	return s.finish(), nil
}
