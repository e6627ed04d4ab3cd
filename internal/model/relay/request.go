package relay

// Header names carrying the request signature.
const (
	HeaderTimestamp = "X-Auth-Timestamp"
	HeaderSignature = "X-Auth-Signature"
	HeaderRequestID = "X-Request-ID"
)

// DefaultModel is used when a request does not name one.
const DefaultModel = "llama3:8b"

// RequestPayload is the signed body of an /ask call. Field order is the
// lexicographic key order so the JSON encoding doubles as the canonical form.
type RequestPayload struct {
	Model        string `json:"model"`
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// SignedRequest is a payload together with its authentication metadata.
type SignedRequest struct {
	Payload   RequestPayload
	Timestamp int64
	Signature string
}

// ModelResponse is the subset of the inference reply the client reads.
type ModelResponse struct {
	Model    string `json:"model,omitempty"`
	Response string `json:"response"`
	Done     bool   `json:"done,omitempty"`
}
