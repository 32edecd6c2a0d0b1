// Package wire holds the request-side data model shared across adapters: the
// upstream OpenAI Chat Completions payload shape (§3.1 of the spec) and the
// small set of helpers (MIME sniffing, ID minting) every adapter needs.
package wire

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// UpstreamRequest is the OpenAI Chat Completions payload an adapter's
// ConvertRequest produces. It is a typed map rather than a fully-enumerated
// struct: every adapter recognizes a different subset of fields, and the
// spec requires unrecognized/extension fields to pass through untouched
// (Ollama's options spread, Responses' metadata/user/truncation). A map is
// the "typed map-of-JSON" middle ground called out for this purpose.
type UpstreamRequest map[string]interface{}

// Model returns the "model" field, or "" if absent/blank.
func (u UpstreamRequest) Model() string {
	v, _ := u["model"].(string)
	return v
}

// SetModel sets the "model" field. Used by the pipeline to fill in the
// configured default model when an adapter leaves it blank (§4.7 step 3).
func (u UpstreamRequest) SetModel(id string) {
	u["model"] = id
}

// MarshalJSON lets UpstreamRequest satisfy json.Marshaler for clarity at call
// sites even though map[string]interface{} already marshals correctly on its
// own; keeping an explicit method documents intent at the type's call sites.
func (u UpstreamRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(u))
}

// NewID mints an identifier of the form "<prefix><random hex>", used for
// message IDs, call IDs, and response IDs minted by adapters (the spec
// permits clock/random-derived IDs — §8.1 "Adapter purity").
func NewID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// DetectImageMIME sniffs a base64-encoded image payload's MIME type from its
// leading characters, per the Ollama adapter's documented prefix table
// (§4.2). Unknown prefixes default to image/jpeg.
func DetectImageMIME(base64Data string) string {
	switch {
	case strings.HasPrefix(base64Data, "/9j/"):
		return "image/jpeg"
	case strings.HasPrefix(base64Data, "iVBOR"):
		return "image/png"
	case strings.HasPrefix(base64Data, "R0lGO"):
		return "image/gif"
	case strings.HasPrefix(base64Data, "UklGR"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// StringOrBlocks decodes a field that may be a plain JSON string or an array
// of {"type":"text","text":"..."} content blocks, concatenating the text of
// every block whose type is "text". This is the shape of Anthropic's `system`
// field and `tool_result` content, and of the Responses API's
// `function_call_output` output.
func StringOrBlocks(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var sb strings.Builder
		for _, b := range blocks {
			if b.Type == "text" {
				sb.WriteString(b.Text)
			}
		}
		return sb.String()
	}

	return string(raw)
}
