package llmproxy

import (
	"encoding/json"
	"net/http"
	"strings"
)

// hopByHopHeaders must never be forwarded to the upstream or copied
// back to the client verbatim (RFC 7230 §6.1).
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"TE", "Trailer", "Transfer-Encoding", "Upgrade", "Authorization",
}

func isTextContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "json") || strings.Contains(ct, "text") || strings.Contains(ct, "event-stream")
}

type apiError struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
		Detail  string `json:"detail,omitempty"`
	} `json:"error"`
}

func writeJSONError(w http.ResponseWriter, status int, kind, message, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := apiError{}
	body.Error.Kind = kind
	body.Error.Message = message
	body.Error.Detail = detail
	_ = json.NewEncoder(w).Encode(body)
}
