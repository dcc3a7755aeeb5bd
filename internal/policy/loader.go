package policy

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// Default returns the built-in policy
func Default() *Policy {
	var p Policy
	if err := defaults.Set(&p); err != nil {
		panic(fmt.Sprintf("policy defaults: %v", err))
	}
	return &p
}

// Load reads a YAML policy file and returns it with the raw bytes.
// An empty path yields the built-in policy.
func Load(path string) (*Policy, []byte, error) {
	if path == "" {
		return Default(), nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read policy %s: %w", path, err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, data, err
	}
	return p, data, nil
}

// Parse decodes YAML on top of the defaults and validates the result.
// KnownFields(true) makes typos and stale keys fail immediately.
func Parse(data []byte) (*Policy, error) {
	p := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode policy: %w", err)
	}

	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Hash generates a SHA-256 over the canonical JSON form.
// Structs and sorted map keys keep the hash reproducible.
func Hash(p *Policy) (string, error) {
	jsonBytes, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}
