package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shaiso/bomflow/internal/flow"
	"github.com/shaiso/bomflow/internal/knowledge"
	"github.com/shaiso/bomflow/internal/repo"
	"github.com/shaiso/bomflow/internal/telemetry"
)

// ErrorCode — машинно-читаемый код ошибки в теле ответа.
type ErrorCode string

const (
	ErrCodeBadRequest    ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeConflict      ErrorCode = "CONFLICT"
	ErrCodeInvalidState  ErrorCode = "INVALID_STATE"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrCodeUnavailable   ErrorCode = "UNAVAILABLE"
)

// ErrorResponse — тело ответа с ошибкой: {"error": {"code", "message"}}.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — код и текст ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// DataResponse — тело успешного ответа: {"data": ...}.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — тело ответа со списком.
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// Success — 200 с данными.
func Success(w http.ResponseWriter, data any) { writeJSON(w, http.StatusOK, DataResponse{Data: data}) }

// Created — 201 с созданным ресурсом.
func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, DataResponse{Data: data})
}

// Accepted — 202, работа поставлена в очередь.
func Accepted(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusAccepted, DataResponse{Data: data})
}

// NoContent — 204.
func NoContent(w http.ResponseWriter) { w.WriteHeader(http.StatusNoContent) }

// List — 200 со списком и общим количеством.
func List(w http.ResponseWriter, data any, total int) {
	writeJSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

// BadRequest — 400.
func BadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// NotFound — 404.
func NotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// Unavailable — 503.
func Unavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// InternalError логирует err логгером запроса и отвечает 500 без деталей.
func InternalError(w http.ResponseWriter, r *http.Request, err error) {
	telemetry.FromContext(r.Context()).Error("internal error", "error", err)
	writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// errorClass — соответствие sentinel-ошибок HTTP статусам.
var errorClasses = []struct {
	targets []error
	status  int
	code    ErrorCode
}{
	{[]error{repo.ErrNotFound, knowledge.ErrNotFound}, http.StatusNotFound, ErrCodeNotFound},
	{[]error{flow.ErrInvalidInput, knowledge.ErrInvalid}, http.StatusBadRequest, ErrCodeBadRequest},
	{[]error{repo.ErrAlreadyExists, flow.ErrProjectBusy}, http.StatusConflict, ErrCodeConflict},
	{[]error{flow.ErrProjectTerminal}, http.StatusUnprocessableEntity, ErrCodeInvalidState},
}

// HandleRepoError отвечает на ошибку хранилища или движка.
// Возвращает true, если ответ отправлен. notFoundMsg заменяет текст 404.
func HandleRepoError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) bool {
	if err == nil {
		return false
	}

	for _, c := range errorClasses {
		for _, target := range c.targets {
			if !errors.Is(err, target) {
				continue
			}
			msg := err.Error()
			if c.status == http.StatusNotFound && notFoundMsg != "" {
				msg = notFoundMsg
			}
			writeError(w, c.status, c.code, msg)
			return true
		}
	}

	InternalError(w, r, err)
	return true
}
