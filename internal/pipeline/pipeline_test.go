package pipeline

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jbctechsolutions/ghcp-gateway/internal/config"
	"github.com/jbctechsolutions/ghcp-gateway/internal/modelcatalog"
)

type fakeAuth struct {
	endpoint string
	token    string
}

func (f *fakeAuth) GetToken() (string, string, bool, time.Time) { return f.endpoint, f.token, false, time.Time{} }
func (f *fakeAuth) Refresh() bool                                { return true }

type fakeModels struct{ model modelcatalog.Model }

func (f *fakeModels) GetCurrentModel() (modelcatalog.Model, error) { return f.model, nil }

func newTestServer(upstream *httptest.Server) *Server {
	cfg := &config.Config{
		EditorVersion:        "test/1.0",
		EditorPluginVersion:  "test-plugin/1.0",
		CopilotIntegrationID: "test-integration",
	}
	return New(cfg, &fakeAuth{endpoint: upstream.URL, token: "tok"}, &fakeModels{model: modelcatalog.Model{ModelID: "gpt-4o"}}, nil)
}

func TestServeUnaryOllama(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"gpt-4o","choices":[{"message":{"content":"hi there"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2}}`))
	}))
	defer upstream.Close()

	srv := newTestServer(upstream)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", srv.handleBinding(srv.bindings["/api/chat"]))

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "hi there") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestServeStreamAnthropic(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		w.Write([]byte("data: {\"model\":\"gpt-4o\",\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n"))
		fl.Flush()
		w.Write([]byte("data: {\"choices\":[{\"finish_reason\":\"stop\"}],\"usage\":{\"prompt_tokens\":1,\"completion_tokens\":1}}\n\n"))
		fl.Flush()
		w.Write([]byte("data: [DONE]\n\n"))
		fl.Flush()
	}))
	defer upstream.Close()

	srv := newTestServer(upstream)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/messages", srv.handleBinding(srv.bindings["/v1/messages"]))

	req := httptest.NewRequest(http.MethodPost, "/v1/messages",
		strings.NewReader(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"stream":true}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	body := w.Body.String()
	for _, want := range []string{"event: message_start", "event: content_block_delta", "event: message_stop"} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in body:\n%s", want, body)
		}
	}
}

func TestServeStreamWritesTerminalErrorFrameOnMalformedChunk(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		w.Write([]byte("data: {\"model\":\"gpt-4o\",\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n"))
		fl.Flush()
		// A malformed data payload arriving after bytes have already been
		// written to the client must produce a terminal error frame, not a
		// silently truncated stream.
		w.Write([]byte("data: {not valid json\n\n"))
		fl.Flush()
	}))
	defer upstream.Close()

	srv := newTestServer(upstream)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/messages", srv.handleBinding(srv.bindings["/v1/messages"]))

	req := httptest.NewRequest(http.MethodPost, "/v1/messages",
		strings.NewReader(`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"stream":true}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, `"error"`) || !strings.Contains(body, `"message"`) {
		t.Errorf("expected a terminal {error, message} frame, got body:\n%s", body)
	}
	if strings.Contains(body, "event: message_stop") {
		t.Errorf("stream should end with an error frame, not a normal message_stop:\n%s", body)
	}
}

func TestHandleTags(t *testing.T) {
	srv := newTestServer(httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	req := httptest.NewRequest(http.MethodGet, "/api/tags", nil)
	w := httptest.NewRecorder()
	srv.handleTags(w, req)
	if !strings.Contains(w.Body.String(), "gpt-4o") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestDetectStreamDefaultsFalse(t *testing.T) {
	if detectStream([]byte(`{"model":"x"}`)) {
		t.Error("expected false when stream field absent")
	}
	if !detectStream([]byte(`{"stream":true}`)) {
		t.Error("expected true when stream field present and true")
	}
}
