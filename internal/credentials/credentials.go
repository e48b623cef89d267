// Package credentials decodes the base64-encoded service-account bundle the
// proxy authenticates with. The decoded bundle is transient: callers derive a
// token from it and discard it, so the private key never outlives a single
// token mint.
package credentials

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrMalformedEncoding = errors.New("credentials are not valid base64")
	ErrInvalidJSON       = errors.New("credentials are not valid JSON")
	ErrMissingFields     = errors.New("credentials are missing required fields")
)

// Bundle is a decoded Google service-account key file.
type Bundle struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
}

// Decode parses a base64-encoded service-account JSON bundle. All five
// identity fields must be present; the returned error enumerates any that
// are missing, in the order they are checked.
func Decode(encoded string) (*Bundle, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEncoding, err)
	}
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: decoded bytes are not valid UTF-8", ErrMalformedEncoding)
	}

	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"type", b.Type},
		{"project_id", b.ProjectID},
		{"private_key_id", b.PrivateKeyID},
		{"private_key", b.PrivateKey},
		{"client_email", b.ClientEmail},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}

	return &b, nil
}

// Encode is the inverse of Decode, used by the credential CLI to produce the
// configuration value from a key file's contents.
func Encode(b *Bundle) (string, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("marshal bundle: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
