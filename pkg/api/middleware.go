package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/hlog"
)

const (
	apiKeyHeader    = "X-API-Key"
	requestIDHeader = "X-Request-Id"
)

// requestIDMiddleware tags every request with an xid, echoed in the
// X-Request-Id response header and in the req_id field of request logs
func requestIDMiddleware() func(http.Handler) http.Handler {
	return hlog.RequestIDHandler("req_id", requestIDHeader)
}

// apiKeyMiddleware rejects requests whose X-API-Key does not match
// expectedKey. The comparison runs in constant time.
func apiKeyMiddleware(expectedKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get(apiKeyHeader)
			if apiKey == "" {
				hlog.FromRequest(r).Debug().Str("path", r.URL.Path).Msg("request without api key")
				sendError(w, r, "Missing X-API-Key header", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(expectedKey)) != 1 {
				hlog.FromRequest(r).Warn().Str("path", r.URL.Path).Msg("rejected invalid api key")
				sendError(w, r, "Invalid API key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestID returns the id requestIDMiddleware gave r, empty outside of it
func requestID(r *http.Request) string {
	id, ok := hlog.IDFromRequest(r)
	if !ok {
		return ""
	}
	return id.String()
}

func sendJSON(w http.ResponseWriter, r *http.Request, statusCode int, response APIResponse) {
	response.RequestID = requestID(r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		hlog.FromRequest(r).Debug().Err(err).Msg("failed to write response")
	}
}

// sendSuccess sends a 200 envelope around data
func sendSuccess(w http.ResponseWriter, r *http.Request, data interface{}) {
	sendJSON(w, r, http.StatusOK, APIResponse{Success: true, Data: data})
}

// sendError sends an error envelope with statusCode
func sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	sendJSON(w, r, statusCode, APIResponse{Error: message})
}
