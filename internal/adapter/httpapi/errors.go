package httpapi

import (
	"encoding/json"
	"net/http"
)

const (
	codeMethodNotAllowed     = "method_not_allowed"
	codeNotFound             = "not_found"
	codeInvalidRequestBody   = "invalid_request_body"
	codeMissingRequiredField = "missing_required_field"
	codeInvalidCustomerID    = "invalid_customer_id"
	codeEmptyBatch           = "empty_batch"
	codeBatchTooLarge        = "batch_too_large"
	codeInvalidQuery         = "invalid_query"
	codeInternalError        = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
