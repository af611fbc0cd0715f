package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes {"error": message}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// ErrBadRequestBody is returned for bodies that are not a single JSON object.
var ErrBadRequestBody = errors.New("invalid request body")

// DecodeJSON decodes the request body into dst and validates it.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrBadRequestBody, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("%w: trailing data", ErrBadRequestBody)
	}
	return Validate(dst)
}

// DecodeError writes the response for a DecodeJSON failure.
func DecodeError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	var ve *ValidationError
	switch {
	case errors.As(err, &maxErr):
		Error(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.As(err, &ve):
		JSON(w, http.StatusBadRequest, map[string]any{
			"error":  "missing or invalid fields",
			"fields": ve.Fields,
		})
	default:
		Error(w, http.StatusBadRequest, ErrBadRequestBody.Error())
	}
}
