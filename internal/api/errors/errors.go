// Пакет errors — конструкторы стандартных ошибок в формате MediaSeal.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // конфликт со stdlib допустим, импортируется как apierrors

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок API.
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeAlreadyExists       = "ALREADY_EXISTS"
	CodeGuardBlocked        = "GUARD_BLOCKED"
	CodeIntegrityMismatch   = "INTEGRITY_MISMATCH"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeInternalError       = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Stage   string   `json:"stage,omitempty"`
	Details []string `json:"details,omitempty"`

	// BlobRef, LedgerError — заполняются только при частичном успехе
	// регистрации: blob записан, запись в ledger не прошла
	BlobRef     string `json:"blob_ref,omitempty"`
	LedgerError string `json:"ledger_error,omitempty"`
}

// WriteError записывает ответ ошибки в стандартном формате MediaSeal.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// WriteErrorStage записывает ошибку с указанием отказавшей стадии pipeline.
func WriteErrorStage(w http.ResponseWriter, statusCode int, code, message, stage string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
			Stage:   stage,
		},
	})
}

// WriteGuardBlocked записывает структурированный отказ эвристического guard-а
// с человекочитаемыми предупреждениями.
func WriteGuardBlocked(w http.ResponseWriter, message string, warnings []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    CodeGuardBlocked,
			Message: message,
			Details: warnings,
		},
	})
}

// WritePartialSuccess записывает отчёт о частичном успехе регистрации:
// blob сохранён, запись в ledger не выполнена, компенсация не применяется.
func WritePartialSuccess(w http.ResponseWriter, message, stage, blobRef, ledgerError string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:        CodeUpstreamUnavailable,
			Message:     message,
			Stage:       stage,
			BlobRef:     blobRef,
			LedgerError: ledgerError,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// AlreadyExists — 409 хэш уже зарегистрирован в ledger.
func AlreadyExists(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeAlreadyExists, message)
}

// UpstreamUnavailable — 502 ledger или blob-хранилище недоступны.
func UpstreamUnavailable(w http.ResponseWriter, message, stage string) {
	WriteErrorStage(w, http.StatusBadGateway, CodeUpstreamUnavailable, message, stage)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
