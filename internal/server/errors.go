package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/geneacademy/geneacademy/internal/ingestion"
	"github.com/geneacademy/geneacademy/internal/store"
)

// errorResponse is the JSON body for all error replies
type errorResponse struct {
	Error string `json:"error"`
}

// httpStatus maps domain errors to response codes
func httpStatus(err error) int {
	var validationErr *ingestion.ValidationError
	var formatErr *ingestion.UnsupportedFormatError
	switch {
	case errors.As(err, &validationErr), errors.As(err, &formatErr):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrSessionTerminal):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
