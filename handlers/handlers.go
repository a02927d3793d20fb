package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/release-engineering/greenwave-sub000/services"
)

const maxBodyBytes = 10 << 20

// decodeJSON reads a JSON request body into v. A missing body or one that is
// not declared as JSON is reported as services.ErrNoPayload.
func decodeJSON(r *http.Request, v interface{}) error {
	if !isJSON(r.Header.Get("Content-Type")) {
		return services.ErrNoPayload
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return services.NewValidationError("Failed to read request body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return services.ErrNoPayload
	}
	if err := json.Unmarshal(body, v); err != nil {
		return services.NewValidationError("Failed to decode JSON object: " + err.Error())
	}
	return nil
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
