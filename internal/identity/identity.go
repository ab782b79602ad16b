// Package identity loads the local DID material used to authenticate the
// transport. The handshake itself lives in the transport layer; the engine
// only needs the DID strings.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Document bundles a DID with its key material and DID document.
type Document struct {
	DID           string          `json:"did"`
	PrivateKeyPEM string          `json:"private_key_pem"`
	DIDDocument   json.RawMessage `json:"did_document,omitempty"`
}

// Load reads a DID document bundle from a JSON file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read did file: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode did file %s: %w", path, err)
	}
	if strings.TrimSpace(doc.DID) == "" {
		return nil, fmt.Errorf("did file %s: missing did", path)
	}
	return &doc, nil
}
