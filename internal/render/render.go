package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrorResponse is the body of every JSON failure on the gateway surface.
type ErrorResponse struct {
	OK    bool `json:"ok"`
	Error any  `json:"error"`
}

// JSON writes data with the given status.
func JSON(w http.ResponseWriter, status int, data any) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// Error writes {"ok":false,"error":message}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{OK: false, Error: message})
}

// NoStoreChallenge marks a response as an uncacheable bearer challenge.
func NoStoreChallenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Cache-Control", "no-store")
}

// Unauthorized writes a 401 JSON body with the bearer challenge headers.
func Unauthorized(w http.ResponseWriter, data any) {
	NoStoreChallenge(w)
	JSON(w, http.StatusUnauthorized, data)
}

// Text writes a plain text body.
func Text(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, message)
}

// Redirect sends a 302 to location.
func Redirect(w http.ResponseWriter, r *http.Request, location string) {
	http.Redirect(w, r, location, http.StatusFound)
}

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 10 << 20

// DecodeObject reads a JSON object body. Numbers are kept as json.Number so
// large integers survive re-encoding.
func DecodeObject(r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("body is empty")
		}
		return nil, fmt.Errorf("body is not valid JSON: %w", err)
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("body must be a JSON object")
	}
	return obj, nil
}
