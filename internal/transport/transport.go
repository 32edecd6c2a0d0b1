// Package transport sends an UpstreamRequest to Copilot's chat/completions
// endpoint. Grounded on the teacher's router/providers.go call* functions
// (http.NewRequestWithContext + http.Client.Do, one header block per
// request), collapsed to the gateway's single upstream.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jbctechsolutions/ghcp-gateway/internal/wire"
)

// Client posts UpstreamRequest bodies to the Copilot chat/completions
// endpoint (§6.2). It performs no retries and propagates context
// cancellation; retry and backoff policy belongs to a caller, not here.
type Client struct {
	httpClient *http.Client

	editorVersion        string
	editorPluginVersion  string
	copilotIntegrationID string
}

// New returns a Client that identifies itself with the given editor/plugin
// strings on every request (§6.2, "opaque strings owned by configuration").
func New(editorVersion, editorPluginVersion, copilotIntegrationID string) *Client {
	return &Client{
		httpClient:           &http.Client{Timeout: 5 * time.Minute},
		editorVersion:        editorVersion,
		editorPluginVersion:  editorPluginVersion,
		copilotIntegrationID: copilotIntegrationID,
	}
}

// Send posts body to "<baseURL>/chat/completions" with the Copilot
// authentication and identification headers, setting Copilot-Vision-Request
// when vision is true. The caller owns closing the returned response body.
func (c *Client) Send(ctx context.Context, baseURL, token string, body wire.UpstreamRequest, vision bool) (*http.Response, error) {
	data, err := body.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshalling upstream request: %w", err)
	}

	endpoint := strings.TrimRight(baseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating upstream request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Copilot-Integration-Id", c.copilotIntegrationID)
	httpReq.Header.Set("Editor-Version", c.editorVersion)
	httpReq.Header.Set("Editor-Plugin-Version", c.editorPluginVersion)
	if vision {
		httpReq.Header.Set("Copilot-Vision-Request", "true")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling upstream: %w", err)
	}
	return resp, nil
}
