package openaichat

import (
	"encoding/json"
	"testing"
)

func TestConvertRequestRoundTrip(t *testing.T) {
	in := []byte(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"stream":true}`)
	out, err := New().ConvertRequest(in)
	if err != nil {
		t.Fatalf("ConvertRequest: %v", err)
	}
	got, err := out.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}

	var want, have map[string]interface{}
	json.Unmarshal(in, &want)
	json.Unmarshal(got, &have)
	if len(want) != len(have) {
		t.Fatalf("field count mismatch: want %v have %v", want, have)
	}
	for k, v := range want {
		if !jsonEqual(have[k], v) {
			t.Errorf("field %q: want %v have %v", k, v, have[k])
		}
	}
}

func jsonEqual(a, b interface{}) bool {
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return string(ab) == string(bb)
}

func TestParseResponseRoundTrip(t *testing.T) {
	in := []byte(`{"id":"x","choices":[{"message":{"role":"assistant","content":"hi"}}]}`)
	out, err := New().ParseResponse(in)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if string(out) != string(in) {
		t.Errorf("got %s, want %s", out, in)
	}
}

func TestDetectVisionRequest(t *testing.T) {
	a := New()
	plain := []byte(`{"messages":[{"role":"user","content":"hi"}]}`)
	if a.DetectVisionRequest(plain) {
		t.Error("expected no vision")
	}
	vision := []byte(`{"messages":[{"role":"user","content":[{"type":"text","text":"what?"},{"type":"image_url","image_url":{"url":"data:image/png;base64,iVBOR"}}]}]}`)
	if !a.DetectVisionRequest(vision) {
		t.Error("expected vision detected")
	}
}

func TestParseStreamChunkPassesThroughAndStopsOnDone(t *testing.T) {
	state := New().NewState()
	upstream := "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\ndata: [DONE]\n\n"
	frames, err := state.ParseChunk([]byte(upstream))
	if err != nil {
		t.Fatalf("ParseChunk: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if string(frames[0].Data) != `{"choices":[{"delta":{"content":"hi"}}]}` {
		t.Errorf("frame = %s", frames[0].Data)
	}
}
