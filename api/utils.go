package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"parking-analyst/database"
)

// writeJSON serializes the payload with the given status code
func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("API Error: failed to encode response: %v", err)
	}
}

// respondWithError logs the error and sends a JSON error response.
// Use this to avoid exposing internal errors while still logging them.
func respondWithError(w http.ResponseWriter, code int, message string, err error) {
	if err != nil {
		log.Printf("API Error [%d]: %s - %v", code, message, err)
	} else {
		log.Printf("API Error [%d]: %s", code, message)
	}
	writeJSON(w, code, map[string]string{"error": message})
}

// respondWithDomainError maps the repository error taxonomy onto HTTP codes
func respondWithDomainError(w http.ResponseWriter, err error) {
	var notFound *database.NotFoundError
	var access *database.AccessError
	var validation *database.ValidationError

	switch {
	case errors.As(err, &notFound):
		respondWithError(w, http.StatusNotFound, notFound.Error(), nil)
	case errors.As(err, &access):
		respondWithError(w, http.StatusForbidden, access.Error(), nil)
	case errors.As(err, &validation):
		respondWithError(w, http.StatusBadRequest, validation.Error(), nil)
	default:
		respondWithError(w, http.StatusInternalServerError, "internal error", err)
	}
}

// getIntParam retrieves an integer query parameter with default value and optional range validation
func getIntParam(r *http.Request, key string, defaultVal int, minVal, maxVal *int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}

	if minVal != nil && val < *minVal {
		return defaultVal
	}
	if maxVal != nil && val > *maxVal {
		return defaultVal
	}

	return val
}

// decodeJSONBody decodes the request body into dest, rejecting unknown noise
func decodeJSONBody(r *http.Request, dest interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dest)
}
