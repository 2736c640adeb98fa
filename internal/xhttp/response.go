package xhttp

import (
	"bytes"
	"net/http"

	go_json "github.com/goccy/go-json"
)

// WriteJSON encodes data before writing any header, so an unencodable value
// becomes a 500 rather than a truncated success.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := go_json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	SetHeaderContentTypeApplicationJSON(w)
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// WriteCreated answers a create with 201, the new resource and its location.
func WriteCreated(w http.ResponseWriter, location string, data any) {
	if location != "" {
		w.Header().Set(Location, location)
	}
	WriteJSON(w, http.StatusCreated, data)
}

func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func WriteOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, data)
}
