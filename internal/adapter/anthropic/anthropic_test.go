package anthropic

import (
	"encoding/json"
	"testing"
)

func TestConvertRequestSystemBecomesFirstMessage(t *testing.T) {
	in := `{"model":"claude","system":"be nice","messages":[{"role":"user","content":"hi"}]}`
	out, err := New().ConvertRequest([]byte(in))
	if err != nil {
		t.Fatalf("ConvertRequest: %v", err)
	}
	msgs := out["messages"].([]map[string]interface{})
	if msgs[0]["role"] != "system" || msgs[0]["content"] != "be nice" {
		t.Errorf("first message = %v", msgs[0])
	}
	if msgs[1]["content"] != "hi" {
		t.Errorf("second message = %v", msgs[1])
	}
}

func TestConvertRequestToolUseBecomesToolCalls(t *testing.T) {
	in := `{"model":"claude","messages":[{"role":"assistant","content":[{"type":"tool_use","id":"call_1","name":"get_weather","input":{"location":"Paris"}}]}]}`
	out, err := New().ConvertRequest([]byte(in))
	if err != nil {
		t.Fatalf("ConvertRequest: %v", err)
	}
	msgs := out["messages"].([]map[string]interface{})
	calls := msgs[0]["tool_calls"].([]map[string]interface{})
	fn := calls[0]["function"].(map[string]interface{})
	if fn["name"] != "get_weather" {
		t.Errorf("name = %v", fn["name"])
	}
	var args map[string]interface{}
	json.Unmarshal([]byte(fn["arguments"].(string)), &args)
	if args["location"] != "Paris" {
		t.Errorf("arguments = %v", fn["arguments"])
	}
}

func TestConvertRequestImageBlock(t *testing.T) {
	in := `{"model":"claude","messages":[{"role":"user","content":[{"type":"text","text":"what"},{"type":"image","source":{"media_type":"image/png","data":"abc123"}}]}]}`
	out, err := New().ConvertRequest([]byte(in))
	if err != nil {
		t.Fatalf("ConvertRequest: %v", err)
	}
	msgs := out["messages"].([]map[string]interface{})
	parts := msgs[0]["content"].([]map[string]interface{})
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	url := parts[1]["image_url"].(map[string]interface{})["url"].(string)
	if url != "data:image/png;base64,abc123" {
		t.Errorf("url = %q", url)
	}
}

func TestDetectVisionRequest(t *testing.T) {
	a := New()
	plain := []byte(`{"messages":[{"role":"user","content":"hi"}]}`)
	if a.DetectVisionRequest(plain) {
		t.Error("expected no vision")
	}
	vision := []byte(`{"messages":[{"role":"user","content":[{"type":"image","source":{"media_type":"image/png","data":"x"}}]}]}`)
	if !a.DetectVisionRequest(vision) {
		t.Error("expected vision detected")
	}
}

// TestToolUseStream is scenario 3 of §8.3.
func TestToolUseStream(t *testing.T) {
	state := New().NewState()

	upstream := "" +
		`data: {"model":"gpt-4o","choices":[{"delta":{"tool_calls":[{"id":"call_abc","function":{"name":"get_weather"}}]}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"tool_calls":[{"function":{"arguments":"{\"loc"}}]}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"tool_calls":[{"function":{"arguments":"ation\":\"Beijing\"}"}}]}}]}` + "\n\n" +
		`data: {"choices":[{"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":100,"completion_tokens":20}}` + "\n\n" +
		`data: [DONE]` + "\n\n"

	frames, err := state.ParseChunk([]byte(upstream))
	if err != nil {
		t.Fatalf("ParseChunk: %v", err)
	}

	var events []string
	for _, f := range frames {
		events = append(events, f.Event)
	}
	want := []string{"message_start", "content_block_start", "content_block_delta", "content_block_delta", "content_block_stop", "message_delta", "message_stop"}
	if len(events) != len(want) {
		t.Fatalf("event sequence = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, events[i], want[i])
		}
	}

	var blockStart map[string]interface{}
	json.Unmarshal(frames[1].Data, &blockStart)
	cb := blockStart["content_block"].(map[string]interface{})
	if cb["type"] != "tool_use" || cb["name"] != "get_weather" {
		t.Errorf("content_block = %v", cb)
	}

	var delta map[string]interface{}
	json.Unmarshal(frames[5].Data, &delta)
	d := delta["delta"].(map[string]interface{})
	if d["stop_reason"] != "tool_use" {
		t.Errorf("stop_reason = %v", d["stop_reason"])
	}
	usage := delta["usage"].(map[string]interface{})
	if usage["input_tokens"].(float64) != 100 || usage["output_tokens"].(float64) != 20 {
		t.Errorf("usage = %v", usage)
	}
}

// TestSameNameToolCallOverwritesAccumulator covers §9 Open Question 1: a
// second tool-call delta carrying a repeated function name overwrites the
// earlier accumulator under that name (new id, reset argument buffer)
// rather than appending to it.
func TestSameNameToolCallOverwritesAccumulator(t *testing.T) {
	state := New().NewState()

	upstream := "" +
		`data: {"model":"gpt-4o","choices":[{"delta":{"tool_calls":[{"id":"call_1","function":{"name":"get_weather","arguments":"{\"loc"}}]}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"tool_calls":[{"id":"call_2","function":{"name":"get_weather"}}]}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"tool_calls":[{"function":{"arguments":"{\"location\":\"Tokyo\"}"}}]}}]}` + "\n\n" +
		`data: {"choices":[{"finish_reason":"tool_calls"}]}` + "\n\n" +
		`data: [DONE]` + "\n\n"

	frames, err := state.ParseChunk([]byte(upstream))
	if err != nil {
		t.Fatalf("ParseChunk: %v", err)
	}

	ss := state.(*streamState)
	if len(ss.functions) != 1 {
		t.Fatalf("expected one accumulator entry for the repeated name, got %d", len(ss.functions))
	}
	acc := ss.functions["get_weather"]
	if acc.id != "call_2" {
		t.Errorf("accumulator id = %q, want call_2 (second occurrence should overwrite the first)", acc.id)
	}
	if acc.input.String() != `{"location":"Tokyo"}` {
		t.Errorf("accumulator input = %q, a stale fragment from before the overwrite should not survive", acc.input.String())
	}

	var events []string
	for _, f := range frames {
		events = append(events, f.Event)
	}
	want := []string{"message_start", "content_block_start", "content_block_delta", "content_block_start", "content_block_delta", "content_block_stop", "message_delta", "message_stop"}
	if len(events) != len(want) {
		t.Fatalf("event sequence = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}

// TestCachedTokens is scenario 5 of §8.3.
func TestCachedTokens(t *testing.T) {
	state := New().NewState()

	upstream := `data: {"model":"gpt-4o","choices":[{"delta":{}}],"usage":{"prompt_tokens":100,"completion_tokens":8,"prompt_tokens_details":{"cached_tokens":80}}}` + "\n\n"

	frames, err := state.ParseChunk([]byte(upstream))
	if err != nil {
		t.Fatalf("ParseChunk: %v", err)
	}
	if len(frames) != 1 || frames[0].Event != "message_start" {
		t.Fatalf("expected single message_start frame, got %v", frames)
	}

	var start map[string]interface{}
	json.Unmarshal(frames[0].Data, &start)
	usage := start["message"].(map[string]interface{})["usage"].(map[string]interface{})
	if usage["input_tokens"].(float64) != 20 {
		t.Errorf("input_tokens = %v, want 20", usage["input_tokens"])
	}
	if usage["cache_read_input_tokens"].(float64) != 80 {
		t.Errorf("cache_read_input_tokens = %v, want 80", usage["cache_read_input_tokens"])
	}
}

func TestParseResponseUnary(t *testing.T) {
	body := `{"model":"gpt-4o","choices":[{"message":{"content":"answer"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":3}}`
	out, err := New().ParseResponse([]byte(body))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	var decoded map[string]interface{}
	json.Unmarshal(out, &decoded)
	if decoded["stop_reason"] != "end_turn" {
		t.Errorf("stop_reason = %v", decoded["stop_reason"])
	}
	content := decoded["content"].([]interface{})
	if len(content) != 1 || content[0].(map[string]interface{})["text"] != "answer" {
		t.Errorf("content = %v", content)
	}
}
