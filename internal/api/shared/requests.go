package shared

import (
	"encoding/json"
	"errors"
	"net/http"
)

// maxRequestBodySize bounds request bodies at 1 MiB.
const maxRequestBodySize = 1 << 20

// ErrInvalidJSON is returned by DecodeJSON for malformed request bodies.
var ErrInvalidJSON = errors.New("invalid JSON request body")

// DecodeJSON parses the request body into v, rejecting unknown fields
// and oversized bodies.
func DecodeJSON(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxRequestBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		return ErrInvalidJSON
	}
	return nil
}
