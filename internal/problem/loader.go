package problem

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a portfolio document (YAML or JSON) from a file
func Load(path string) (*Document, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	doc, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, data, err
	}
	return doc, data, nil
}

// Decode parses and validates a portfolio document.
// KnownFields(true) makes typos and unknown fields fail immediately.
// JSON input is accepted as well since it is valid YAML.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, ValidationError{Field: "document", Message: "empty"}
		}
		return nil, fmt.Errorf("decode portfolio: %w", ValidationError{Field: "document", Message: err.Error()})
	}

	if err := Validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Hash returns the SHA256 of the canonical JSON form of a document
func Hash(doc *Document) (string, error) {
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}
