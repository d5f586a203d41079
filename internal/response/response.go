// Package response writes the JSON envelope shared by every HTTP endpoint.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/johndosdos/tradechat/internal/logging"
)

// Response represents a standard API response.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	CodeBadRequest      = "BAD_REQUEST"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeTooManyRequests = "TOO_MANY_REQUESTS"
	CodeInternal        = "INTERNAL_ERROR"
)

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		l := logging.Ctx(r.Context())
		l.Warn().Err(err).Msg("failed to encode response")
	}
}

// OK sends a 200 response carrying data.
func OK(w http.ResponseWriter, r *http.Request, data any) {
	JSON(w, r, http.StatusOK, Response{Success: true, Data: data})
}

// Created sends a 201 response carrying data.
func Created(w http.ResponseWriter, r *http.Request, data any) {
	JSON(w, r, http.StatusCreated, Response{Success: true, Data: data})
}

// Error sends an error response with a stable machine-readable code.
func Error(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	JSON(w, r, status, Response{
		Success: false,
		Error:   &ErrorInfo{Code: code, Message: message},
	})
}

func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, http.StatusBadRequest, CodeBadRequest, message)
}

func Unauthorized(w http.ResponseWriter, r *http.Request, code, message string) {
	Error(w, r, http.StatusUnauthorized, code, message)
}

func Forbidden(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, http.StatusForbidden, CodeForbidden, message)
}

func NotFound(w http.ResponseWriter, r *http.Request, code, message string) {
	Error(w, r, http.StatusNotFound, code, message)
}

func Conflict(w http.ResponseWriter, r *http.Request, code, message string) {
	Error(w, r, http.StatusConflict, code, message)
}

func TooManyRequests(w http.ResponseWriter, r *http.Request) {
	Error(w, r, http.StatusTooManyRequests, CodeTooManyRequests, "Too many requests. Try again later.")
}

// InternalError hides err from the client and logs it instead.
func InternalError(w http.ResponseWriter, r *http.Request, err error) {
	l := logging.Ctx(r.Context())
	l.Error().Err(err).Msg("request failed")
	Error(w, r, http.StatusInternalServerError, CodeInternal, "Server error.")
}
