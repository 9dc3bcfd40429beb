// Package response renders the gateway's JSON envelopes. Success bodies live
// under "data", request history adds pagination under "meta", and failures
// carry a machine-readable code plus a human message under "error".
package response

import (
	"encoding/json"
	"net/http"
)

// PaginationMeta accompanies request-history collections.
type PaginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

type body struct {
	Data  any             `json:"data,omitempty"`
	Meta  *PaginationMeta `json:"meta,omitempty"`
	Error *errorBody      `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes a 200 data envelope. Submission responses go through here even
// on workflow success with a failed save; "saved" inside the data reports
// durability separately from the HTTP status.
func JSON(w http.ResponseWriter, data any) {
	write(w, http.StatusOK, body{Data: data})
}

// Created writes a 201 data envelope, used when minting API keys.
func Created(w http.ResponseWriter, data any) {
	write(w, http.StatusCreated, body{Data: data})
}

// NoContent writes a bare 204, used for request deletion and key revocation.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Collection writes a 200 envelope with pagination meta.
func Collection(w http.ResponseWriter, data any, meta PaginationMeta) {
	write(w, http.StatusOK, body{Data: data, Meta: &meta})
}

// Error writes an error envelope. Code is one of the gateway's stable error
// codes (VALIDATION_FAILED, REQUEST_IN_PROGRESS, WORKFLOW_FAILED, ...);
// details, when present, holds field-level or per-service diagnostics.
func Error(w http.ResponseWriter, httpStatus int, code, message string, details any) {
	write(w, httpStatus, body{Error: &errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

func write(w http.ResponseWriter, status int, v body) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
