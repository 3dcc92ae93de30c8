package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// canonicalVersion tags the byte layout so the server can reject requests
// signed under a different framing.
const canonicalVersion = "NA1"

// ErrInvalidField indicates a signable field that violates the canonical
// layout rules.
var ErrInvalidField = errors.New("invalid signable field")

// Canonicalize renders the signable request fields into the fixed v1 byte
// layout: one field per line, newline separated, in the order version tag,
// method, path, timestamp, nonce, body digest, service slug. The body enters
// as its SHA-256 hex digest and every other field is rejected if it contains
// the separator, so no two distinct logical requests share a canonical form.
// Timestamp and nonce may both be empty when replay protection is disabled;
// the slug may be empty when the client has none configured.
func Canonicalize(method, path, timestamp, nonce, serviceSlug string, body []byte) ([]byte, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return nil, fmt.Errorf("%w: method must not be empty", ErrInvalidField)
	}
	if path == "" {
		return nil, fmt.Errorf("%w: path must not be empty", ErrInvalidField)
	}
	if (timestamp == "") != (nonce == "") {
		return nil, fmt.Errorf("%w: timestamp and nonce must be set together", ErrInvalidField)
	}
	fields := []struct {
		name  string
		value string
	}{
		{"method", method},
		{"path", path},
		{"timestamp", timestamp},
		{"nonce", nonce},
		{"service slug", serviceSlug},
	}
	for _, field := range fields {
		if strings.ContainsRune(field.value, '\n') {
			return nil, fmt.Errorf("%w: %s must not contain newlines", ErrInvalidField, field.name)
		}
	}
	canonical := strings.Join([]string{
		canonicalVersion,
		method,
		path,
		timestamp,
		nonce,
		BodyDigest(body),
		serviceSlug,
	}, "\n")
	return []byte(canonical), nil
}

// BodyDigest returns the lowercase hex SHA-256 of the request body.
func BodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
