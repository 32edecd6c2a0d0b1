package ollama

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestConvertRequestBasic(t *testing.T) {
	in := `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"stream":true,"options":{"temperature":0.5}}`
	out, err := New().ConvertRequest([]byte(in))
	if err != nil {
		t.Fatalf("ConvertRequest: %v", err)
	}
	if out.Model() != "gpt-4o" {
		t.Errorf("model = %q", out.Model())
	}
	if out["temperature"] != 0.5 {
		t.Errorf("temperature not spread: %v", out["temperature"])
	}
	if out["stream"] != true {
		t.Errorf("stream = %v", out["stream"])
	}
}

func TestConvertRequestImagesBecomeContentArray(t *testing.T) {
	in := `{"model":"m","messages":[{"role":"user","content":"what is this","images":["iVBORw0KGgo="]}]}`
	out, err := New().ConvertRequest([]byte(in))
	if err != nil {
		t.Fatalf("ConvertRequest: %v", err)
	}
	msgs := out["messages"].([]map[string]interface{})
	content := msgs[0]["content"].([]map[string]interface{})
	if len(content) != 2 {
		t.Fatalf("expected 2 content parts, got %d", len(content))
	}
	if content[0]["type"] != "text" {
		t.Errorf("first part type = %v", content[0]["type"])
	}
	imgURL := content[1]["image_url"].(map[string]interface{})["url"].(string)
	if !strings.HasPrefix(imgURL, "data:image/png;base64,") {
		t.Errorf("image url = %q", imgURL)
	}
}

func TestConvertRequestNormalizesToolCallArguments(t *testing.T) {
	in := `{"model":"m","messages":[{"role":"assistant","content":"","tool_calls":[{"id":"call_1","function":{"name":"get_weather","arguments":{"location":"Paris"}}}]}]}`
	out, err := New().ConvertRequest([]byte(in))
	if err != nil {
		t.Fatalf("ConvertRequest: %v", err)
	}
	msgs := out["messages"].([]map[string]interface{})
	calls := msgs[0]["tool_calls"].([]map[string]interface{})
	args := calls[0]["function"].(map[string]interface{})["arguments"].(string)
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(args), &decoded); err != nil {
		t.Fatalf("arguments not valid JSON string: %v", err)
	}
	if decoded["location"] != "Paris" {
		t.Errorf("location = %v", decoded["location"])
	}
}

func TestDetectVisionRequest(t *testing.T) {
	a := New()
	if a.DetectVisionRequest([]byte(`{"messages":[{"role":"user","content":"hi"}]}`)) {
		t.Error("expected no vision")
	}
	if !a.DetectVisionRequest([]byte(`{"messages":[{"role":"user","content":"hi","images":["abc"]}]}`)) {
		t.Error("expected vision detected")
	}
}

func TestParseResponseUnary(t *testing.T) {
	body := `{"model":"gpt-4o","created":1700000000,"choices":[{"message":{"content":"hello"}}],"usage":{"prompt_tokens":5,"completion_tokens":2}}`
	out, err := New().ParseResponse([]byte(body))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["done"] != true {
		t.Errorf("done = %v", decoded["done"])
	}
	if decoded["prompt_eval_count"].(float64) != 5 {
		t.Errorf("prompt_eval_count = %v", decoded["prompt_eval_count"])
	}
	msg := decoded["message"].(map[string]interface{})
	if msg["content"] != "hello" {
		t.Errorf("content = %v", msg["content"])
	}
}

// TestStreamSimpleText is scenario 1 of §8.3.
func TestStreamSimpleText(t *testing.T) {
	state := New().NewState()

	upstream := "" +
		`data: {"choices":[{"delta":{"content":"Hello "}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"content":"world."}}]}` + "\n\n" +
		`data: {"choices":[{"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2}}` + "\n\n" +
		`data: [DONE]` + "\n\n"

	frames, err := state.ParseChunk([]byte(upstream))
	if err != nil {
		t.Fatalf("ParseChunk: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}

	var f0, f1, f2 map[string]interface{}
	json.Unmarshal(frames[0].Data, &f0)
	json.Unmarshal(frames[1].Data, &f1)
	json.Unmarshal(frames[2].Data, &f2)

	if f0["message"].(map[string]interface{})["content"] != "Hello " {
		t.Errorf("frame0 content = %v", f0["message"])
	}
	if f1["message"].(map[string]interface{})["content"] != "world." {
		t.Errorf("frame1 content = %v", f1["message"])
	}
	if f2["done"] != true || f2["prompt_eval_count"].(float64) != 5 || f2["eval_count"].(float64) != 2 {
		t.Errorf("final frame = %v", f2)
	}
}

func TestStreamToolCallAccumulatorKeyedByName(t *testing.T) {
	state := New().NewState()

	upstream := "" +
		`data: {"choices":[{"delta":{"tool_calls":[{"function":{"name":"get_weather"}}]}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"tool_calls":[{"function":{"arguments":"{\"loc"}}]}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"tool_calls":[{"function":{"arguments":"ation\":\"Beijing\"}"}}]}}]}` + "\n\n" +
		`data: {"choices":[{"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":100,"completion_tokens":20}}` + "\n\n" +
		`data: [DONE]` + "\n\n"

	frames, err := state.ParseChunk([]byte(upstream))
	if err != nil {
		t.Fatalf("ParseChunk: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected tool-calls frame + done frame, got %d", len(frames))
	}

	var toolFrame map[string]interface{}
	json.Unmarshal(frames[0].Data, &toolFrame)
	calls := toolFrame["message"].(map[string]interface{})["tool_calls"].([]interface{})
	if len(calls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(calls))
	}
	args := calls[0].(map[string]interface{})["function"].(map[string]interface{})["arguments"].(map[string]interface{})
	if args["location"] != "Beijing" {
		t.Errorf("location = %v", args["location"])
	}

	var doneFrame map[string]interface{}
	json.Unmarshal(frames[1].Data, &doneFrame)
	if doneFrame["done"] != true || doneFrame["done_reason"] != "stop" {
		t.Errorf("done frame = %v", doneFrame)
	}
}

// TestStreamSameNameToolCallOverwritesAccumulator covers §9 Open Question 1:
// a second tool-call delta carrying a repeated function name overwrites the
// earlier accumulator under that name rather than appending a second call
// or merging argument fragments across the two.
func TestStreamSameNameToolCallOverwritesAccumulator(t *testing.T) {
	state := New().NewState()

	upstream := "" +
		`data: {"choices":[{"delta":{"tool_calls":[{"function":{"name":"get_weather","arguments":"{\"loc"}}]}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"tool_calls":[{"function":{"name":"get_weather"}}]}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"tool_calls":[{"function":{"arguments":"{\"location\":\"Tokyo\"}"}}]}}]}` + "\n\n" +
		`data: {"choices":[{"finish_reason":"tool_calls"}]}` + "\n\n" +
		`data: [DONE]` + "\n\n"

	frames, err := state.ParseChunk([]byte(upstream))
	if err != nil {
		t.Fatalf("ParseChunk: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected tool-calls frame + done frame, got %d", len(frames))
	}

	var toolFrame map[string]interface{}
	json.Unmarshal(frames[0].Data, &toolFrame)
	calls := toolFrame["message"].(map[string]interface{})["tool_calls"].([]interface{})
	if len(calls) != 1 {
		t.Fatalf("expected the repeated name to overwrite, not append — got %d calls", len(calls))
	}
	args := calls[0].(map[string]interface{})["function"].(map[string]interface{})["arguments"].(map[string]interface{})
	if args["location"] != "Tokyo" {
		t.Errorf("location = %v, want Tokyo (stale fragment from before the overwrite should not survive)", args["location"])
	}
}
