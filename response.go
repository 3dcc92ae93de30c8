package nebulauth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Response is the parsed result of one API call. It is immutable once
// constructed; Data holds the decoded JSON payload and is opaque to the
// signing core.
type Response struct {
	StatusCode int
	OK         bool
	Data       any
	Headers    map[string]string
}

// DecodeResponse reads and parses a transport response into a typed result.
// 2xx responses must carry JSON (or an empty body, decoded as an empty
// object); anything else fails with KindDeserialization. Non-2xx responses
// fail with KindServer, carrying the parsed payload, with a non-JSON body
// preserved under an "error" key.
func DecodeResponse(resp *http.Response) (*Response, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapError(KindTransport, err, "read response body")
	}
	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}
	out := &Response{
		StatusCode: resp.StatusCode,
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		Headers:    headers,
	}

	trimmed := bytes.TrimSpace(raw)
	var decodeErr error
	switch {
	case len(trimmed) == 0:
		out.Data = map[string]any{}
	default:
		decodeErr = json.Unmarshal(trimmed, &out.Data)
	}

	if out.OK {
		if decodeErr != nil {
			return nil, wrapError(KindDeserialization, decodeErr, "response body is not valid JSON")
		}
		return out, nil
	}
	if decodeErr != nil {
		out.Data = map[string]any{"error": string(trimmed)}
	}
	return nil, &Error{
		Kind:     KindServer,
		Message:  fmt.Sprintf("server returned status %d", resp.StatusCode),
		Response: out,
	}
}
