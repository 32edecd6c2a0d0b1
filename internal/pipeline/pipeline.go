// Package pipeline implements components G and H of the protocol
// translation core — the Request Pipeline and Stream Dispatcher (spec
// §4.7) — plus the HTTP listener that drives them, grounded on the
// teacher's proxy.ProxyServer/proxy/stream.go shape.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jbctechsolutions/ghcp-gateway/internal/adapter"
	"github.com/jbctechsolutions/ghcp-gateway/internal/adapter/anthropic"
	"github.com/jbctechsolutions/ghcp-gateway/internal/adapter/ollama"
	"github.com/jbctechsolutions/ghcp-gateway/internal/adapter/openaichat"
	"github.com/jbctechsolutions/ghcp-gateway/internal/adapter/responses"
	"github.com/jbctechsolutions/ghcp-gateway/internal/auth"
	"github.com/jbctechsolutions/ghcp-gateway/internal/config"
	"github.com/jbctechsolutions/ghcp-gateway/internal/gatewayerr"
	"github.com/jbctechsolutions/ghcp-gateway/internal/modelcatalog"
	"github.com/jbctechsolutions/ghcp-gateway/internal/telemetry"
	"github.com/jbctechsolutions/ghcp-gateway/internal/transport"
)

// framing names the outbound wire shape a binding writes (§4.7 step 6).
type framing string

const (
	framingNDJSON framing = "ndjson"
	framingSSE    framing = "sse"
)

// binding pairs a URL path with the adapter that serves it.
type binding struct {
	protocol string
	adapter  adapter.Adapter
	framing  framing
	sentinel bool // emit "data: [DONE]\n\n" at EOF (§4.7 step 6, "OpenAI family")
}

// Server is the gateway's HTTP listener. It owns no per-request state;
// everything mutable lives in the StreamState created per request (§4.7,
// "The pipeline is the only owner of the state object").
type Server struct {
	cfg       *config.Config
	auth      auth.Provider
	models    modelcatalog.Provider
	transport *transport.Client
	telemetry *telemetry.Collector

	bindings map[string]binding
}

// New constructs a Server wired to the given external collaborators.
func New(cfg *config.Config, authProvider auth.Provider, models modelcatalog.Provider, tel *telemetry.Collector) *Server {
	client := transport.New(cfg.EditorVersion, cfg.EditorPluginVersion, cfg.CopilotIntegrationID)

	responsesAdapter := responses.New()

	return &Server{
		cfg:       cfg,
		auth:      authProvider,
		models:    models,
		transport: client,
		telemetry: tel,
		bindings: map[string]binding{
			"/api/chat":             {"ollama", ollama.New(), framingNDJSON, false},
			"/v1/chat/completions":  {"openai", openaichat.New(), framingSSE, true},
			"/v1/messages":          {"anthropic", anthropic.New(), framingSSE, false},
			"/v1/response":          {"responses", responsesAdapter, framingSSE, false},
			"/v1/response/compact":  {"responses", responsesAdapter, framingSSE, false},
		},
	}
}

// Start registers all route handlers and begins listening. It blocks until
// the server returns an error.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	for path, b := range s.bindings {
		mux.HandleFunc(path, s.handleBinding(b))
	}
	mux.HandleFunc("/api/tags", s.handleTags)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/dashboard", s.handleDashboard)

	handler := loggingMiddleware(mux)

	log.Printf("ghcp-gateway starting on port %s", s.cfg.ListenPort)
	return http.ListenAndServe(":"+s.cfg.ListenPort, handler)
}

// loggingMiddleware logs method, path, and elapsed time for every request.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleBinding returns the HTTP handler driving the Request Pipeline
// (§4.7) for one protocol binding.
func (s *Server) handleBinding(b binding) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, gatewayerr.KindInputInvalid, "method not allowed")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, gatewayerr.KindInputInvalid, "failed to read request body")
			return
		}
		defer r.Body.Close()

		s.serve(w, r.Context(), b, body)
	}
}

// serve implements spec §4.7 steps 1-6 for one decoded inbound request.
func (s *Server) serve(w http.ResponseWriter, ctx context.Context, b binding, body []byte) {
	start := time.Now()
	eventID := uuid.New().String()

	endpoint, token, expired, _ := s.auth.GetToken()
	if expired {
		s.auth.Refresh()
		endpoint, token, expired, _ = s.auth.GetToken()
	}
	if expired || token == "" {
		s.record(eventID, b.protocol, "", false, false, start, gatewayerr.KindAuth)
		writeError(w, gatewayerr.KindAuth, "upstream credential unavailable or expired")
		return
	}

	payload, err := b.adapter.ConvertRequest(body)
	if err != nil {
		s.record(eventID, b.protocol, "", false, false, start, gatewayerr.KindInputInvalid)
		writeError(w, gatewayerr.KindInputInvalid, "invalid request body: "+err.Error())
		return
	}

	if payload.Model() == "" {
		model, merr := s.models.GetCurrentModel()
		if merr != nil {
			model = modelcatalog.Fallback
			if s.cfg.DefaultModelID != "" {
				model.ModelID = s.cfg.DefaultModelID
			}
		}
		payload.SetModel(model.ModelID)
	}

	vision := b.adapter.DetectVisionRequest(body)
	streaming := detectStream(body)

	resp, err := s.transport.Send(ctx, endpoint, token, payload, vision)
	if err != nil {
		s.record(eventID, b.protocol, payload.Model(), streaming, vision, start, gatewayerr.KindUpstreamTransport)
		writeError(w, gatewayerr.KindUpstreamTransport, "upstream call failed: "+err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		s.record(eventID, b.protocol, payload.Model(), streaming, vision, start, gatewayerr.KindUpstreamStatus)
		writeError(w, gatewayerr.KindUpstreamStatus,
			fmt.Sprintf("upstream returned %d: %s", resp.StatusCode, excerpt))
		return
	}

	if !streaming {
		s.serveUnary(w, b, resp)
		s.record(eventID, b.protocol, payload.Model(), streaming, vision, start, "")
		return
	}

	s.serveStream(w, b, resp)
	s.record(eventID, b.protocol, payload.Model(), streaming, vision, start, "")
}

// serveUnary implements §4.7 step 5.
func (s *Server) serveUnary(w http.ResponseWriter, b binding, resp *http.Response) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		writeError(w, gatewayerr.KindUpstreamTransport, "failed to read upstream response")
		return
	}

	out, err := b.adapter.ParseResponse(body)
	if err != nil {
		writeError(w, gatewayerr.KindParse, "failed to parse upstream response: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(out) //nolint:errcheck
}

// serveStream implements §4.7 step 6: the Stream Dispatcher (component H).
func (s *Server) serveStream(w http.ResponseWriter, b binding, resp *http.Response) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, gatewayerr.KindInternal, "streaming not supported by this connection")
		return
	}

	switch b.framing {
	case framingNDJSON:
		w.Header().Set("Content-Type", "application/x-ndjson")
	default:
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
	}
	w.WriteHeader(http.StatusOK)

	if b.protocol == "ollama" {
		// Ollama preamble (§4.7 step 6: "Ollama: newline").
		fmt.Fprint(w, "\n")
		flusher.Flush()
	}

	state := b.adapter.NewState()

	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			frames, perr := state.ParseChunk(buf[:n])
			if perr != nil {
				log.Printf("stream parse error: %v", perr)
				writeErrorFrame(w, flusher, b.framing, gatewayerr.KindParse, perr.Error())
				return
			}
			for _, f := range frames {
				writeFrame(w, flusher, b.framing, f)
			}
		}
		if err == io.EOF {
			frames, ferr := state.Flush()
			if ferr != nil {
				log.Printf("stream flush error: %v", ferr)
				writeErrorFrame(w, flusher, b.framing, gatewayerr.KindParse, ferr.Error())
				return
			}
			for _, f := range frames {
				writeFrame(w, flusher, b.framing, f)
			}
			break
		}
		if err != nil {
			log.Printf("upstream read error: %v", err)
			writeErrorFrame(w, flusher, b.framing, gatewayerr.KindUpstreamTransport, err.Error())
			return
		}
	}

	if b.sentinel {
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}
}

// writeErrorFrame writes the terminal {error, message} frame §7 requires
// once bytes have already been written to a streaming client — the
// connection cannot fall back to an HTTP error status at this point, so the
// error is surfaced as one final frame in the binding's framing instead.
func writeErrorFrame(w http.ResponseWriter, f http.Flusher, fr framing, kind gatewayerr.Kind, message string) {
	body, err := json.Marshal(map[string]interface{}{
		"error":   string(kind),
		"message": message,
	})
	if err != nil {
		return
	}
	writeFrame(w, f, fr, adapter.Frame{Data: body})
}

// writeFrame serializes one adapter.Frame in the wire shape its binding
// requires (§6.1: NDJSON for Ollama, SSE `data: <json>\n\n` otherwise,
// with an `event:` line when the adapter names its events).
func writeFrame(w http.ResponseWriter, f http.Flusher, fr framing, frame adapter.Frame) {
	switch fr {
	case framingNDJSON:
		w.Write(frame.Data) //nolint:errcheck
		fmt.Fprint(w, "\n\n")
	default:
		if frame.Event != "" {
			fmt.Fprintf(w, "event: %s\n", frame.Event)
		}
		fmt.Fprintf(w, "data: %s\n\n", frame.Data)
	}
	f.Flush()
}

// detectStream extracts the inbound "stream" flag common to all four
// protocols; absence is false for every protocol (§6.1, "Anthropic uses
// absence → false as well").
func detectStream(body []byte) bool {
	var in struct {
		Stream bool `json:"stream"`
	}
	json.Unmarshal(body, &in)
	return in.Stream
}

// handleTags implements GET /api/tags (§6.1), listing the active model in
// Ollama's listing shape.
func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	model, err := s.models.GetCurrentModel()
	if err != nil {
		model = modelcatalog.Fallback
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
		"models": []map[string]interface{}{
			{
				"name":        model.ModelID,
				"modified_at": time.Now().Format(time.RFC3339),
				"size":        0,
				"digest":      "",
				"details":     map[string]interface{}{"family": model.ModelName},
			},
		},
	})
}

// handleHealth returns a liveness status payload.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
		"status":  "ok",
		"service": "ghcp-gateway",
	})
}

// handleDashboard returns aggregate telemetry (§4.12).
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.telemetry == nil {
		writeError(w, gatewayerr.KindInternal, "telemetry not available")
		return
	}
	stats, err := s.telemetry.GetStats("")
	if err != nil {
		writeError(w, gatewayerr.KindInternal, "failed to get stats: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats) //nolint:errcheck
}

// record stores one telemetry event, non-fatally (§4.12).
func (s *Server) record(eventID, protocol, model string, streaming, vision bool, start time.Time, kind gatewayerr.Kind) {
	if s.telemetry == nil {
		return
	}
	err := s.telemetry.Record(telemetry.Event{
		ID:        eventID,
		Protocol:  protocol,
		Model:     model,
		Streaming: streaming,
		Vision:    vision,
		LatencyMs: int(time.Since(start).Milliseconds()),
		ErrorKind: string(kind),
	})
	if err != nil {
		log.Printf("telemetry: failed to record event: %v", err)
	}
}

// writeError writes a {error, message} JSON body with the status code §7
// maps the kind to.
func writeError(w http.ResponseWriter, kind gatewayerr.Kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.HTTPStatus())
	json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
		"error":   string(kind),
		"message": message,
	})
}
