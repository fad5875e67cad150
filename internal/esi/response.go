package esi

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// Response is the outcome of one Operation. Err is set for transport
// failures, auth failures and non-200 statuses.
type Response struct {
	Operation  Operation
	StatusCode int
	Body       []byte
	Pages      int
	Cached     bool
	Err        error
}

// OK reports a successful 200 response.
func (r *Response) OK() bool {
	return r.Err == nil && r.StatusCode == http.StatusOK
}

// AuthFailed reports a 401 or 403 from upstream.
func (r *Response) AuthFailed() bool {
	return r.StatusCode == http.StatusUnauthorized || r.StatusCode == http.StatusForbidden
}

// HasData reports whether the body carries a value.
func (r *Response) HasData() bool {
	b := bytes.TrimSpace(r.Body)
	return len(b) > 0 && !bytes.Equal(b, []byte("null"))
}

// Decode unmarshals the body into v. An empty body yields ErrDataIntegrity.
func (r *Response) Decode(v any) error {
	if !r.HasData() {
		return ErrDataIntegrity
	}
	return json.Unmarshal(r.Body, v)
}

// errorMessage extracts the upstream {"error": "..."} message, if any.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Error
}
