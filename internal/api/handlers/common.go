package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

// respondWithError отправляет JSON ошибку
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

// parseLimit читает query-параметр limit; 0 означает "по умолчанию"
func parseLimit(r *http.Request) int {
	limitParam := r.URL.Query().Get("limit")
	if limitParam == "" {
		return 0
	}
	limit, err := strconv.Atoi(limitParam)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
