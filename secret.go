package nebulauth

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// Redacted is the placeholder substituted for secret material in any
// formatted output.
const Redacted = "[REDACTED]"

// Secret holds credential material such as the bearer token or signing
// secret. Every formatting path (fmt, JSON, slog) emits a redacted
// placeholder; only Reveal returns the raw value, and call sites should hand
// the result straight to the signing or header layer without retaining it.
type Secret string

// IsZero reports whether the secret is empty or whitespace.
func (s Secret) IsZero() bool { return strings.TrimSpace(string(s)) == "" }

// Reveal returns the raw secret value.
func (s Secret) Reveal() string { return string(s) }

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return Redacted
}

func (s Secret) GoString() string { return "nebulauth.Secret(" + s.String() + ")" }

// MarshalJSON writes the redacted placeholder, never the raw value.
func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// LogValue keeps slog output redacted even when the secret is logged as a
// plain attribute value.
func (s Secret) LogValue() slog.Value { return slog.StringValue(s.String()) }
