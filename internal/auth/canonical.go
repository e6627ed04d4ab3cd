package auth

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/zhouzirui/z-tavern/relay/internal/model/relay"
)

// Canonicalize renders payload in the stable form that is signed: compact
// JSON, keys in lexicographic order, no HTML escaping, no trailing newline.
// Signer and verifier must both go through this function.
func Canonicalize(payload relay.RequestPayload) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(payload); err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
