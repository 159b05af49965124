package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

var (
	ErrBodyTooLarge = errors.New("request body too large")
	ErrInvalidJSON  = errors.New("invalid json body")
)

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]any{
		"success": false,
		"message": message,
	})
}

// ReadJSON decodes one JSON value from r's body into dst, reading at most maxBytes.
func ReadJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ErrBodyTooLarge
		}
		if errors.Is(err, io.EOF) {
			return ErrInvalidJSON
		}
		return errors.Join(ErrInvalidJSON, err)
	}
	return nil
}
