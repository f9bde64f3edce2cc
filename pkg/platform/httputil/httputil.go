// Package httputil writes JSON responses and error envelopes.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "veriflow/pkg/domain-errors"
)

// WriteJSON serializes v with the given status. Encoding failures are
// swallowed; the status line is already on the wire.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError maps a coded error onto its HTTP status and error envelope.
// Internal errors omit the description so store and dependency details never
// leak to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		var de *dErrors.Error
		if errors.As(err, &de) {
			body["error_description"] = de.Message
		} else {
			body["error_description"] = err.Error()
		}
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}
