package utils

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"regexp"
)

// Error codes carried next to the human readable message
const (
	CodeBadRequest       = "bad_request"
	CodeUnauthorized     = "unauthorized"
	CodeNotFound         = "not_found"
	CodeUnsupportedMedia = "unsupported_media_type"
	CodeBadGateway       = "bad_gateway"
	CodeGatewayTimeout   = "gateway_timeout"
	CodeInternal         = "internal_error"
)

// ErrorResponse is the body of every failed API call. Clients such as
// Bodhi only read message.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// jsonpCallback limits callbacks to dotted JavaScript identifiers
var jsonpCallback = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\.[A-Za-z_$][A-Za-z0-9_$]*)*$`)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 response. A "callback" query parameter wraps the
// body for JSONP clients; callbacks that are not identifiers are ignored.
func WriteOK(w http.ResponseWriter, r *http.Request, data interface{}) error {
	callback := ""
	if r != nil {
		callback = r.URL.Query().Get("callback")
	}
	if callback == "" || !jsonpCallback.MatchString(callback) {
		return WriteJSON(w, http.StatusOK, data)
	}

	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/javascript")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write([]byte(callback + "(" + string(body) + ");"))
	return err
}

// WriteBadRequest writes a 400 response for an invalid decision request
// or listener message
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return WriteJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   CodeBadRequest,
		Message: message,
		Details: details,
	})
}

// WriteUnauthorized writes a 401 response
func WriteUnauthorized(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Authentication required"
	}
	return WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error:   CodeUnauthorized,
		Message: message,
	})
}

// WriteNotFound writes a 404 response, either for an unknown URL or for a
// decision with no applicable policies
func WriteNotFound(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "The requested URL was not found on the server."
	}
	return WriteJSON(w, http.StatusNotFound, ErrorResponse{
		Error:   CodeNotFound,
		Message: message,
	})
}

// WriteUnsupportedMediaType writes a 415 response for missing or non-JSON bodies
func WriteUnsupportedMediaType(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusUnsupportedMediaType, ErrorResponse{
		Error:   CodeUnsupportedMedia,
		Message: message,
	})
}

// WriteUpstreamError writes a 504 when ResultsDB, WaiverDB, Koji or a
// remote rule host timed out and a 502 for any other upstream failure
func WriteUpstreamError(w http.ResponseWriter, err error, details map[string]interface{}) error {
	if IsTimeout(err) {
		return WriteJSON(w, http.StatusGatewayTimeout, ErrorResponse{
			Error:   CodeGatewayTimeout,
			Message: "Timeout connecting to upstream server: " + err.Error(),
			Details: details,
		})
	}
	return WriteJSON(w, http.StatusBadGateway, ErrorResponse{
		Error:   CodeBadGateway,
		Message: err.Error(),
		Details: details,
	})
}

// WriteInternalServerError writes a 500 response
func WriteInternalServerError(w http.ResponseWriter, message string) error {
	if message == "" {
		message = "Server encountered unexpected error"
	}
	return WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   CodeInternal,
		Message: message,
	})
}

// IsTimeout reports whether err was caused by a deadline or a network
// timeout
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
