// verify.go — обработчик POST /api/v1/verify.
// Статусы unknown и tampered — штатные ответы 200, не ошибки.
package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/mediaseal/internal/api/errors"
	"github.com/bigkaa/mediaseal/internal/service"
)

// verifyRequest — JSON-вариант запроса верификации.
type verifyRequest struct {
	ContentHash string `json:"content_hash"`
}

// Verify — реализация POST /api/v1/verify.
func (h *APIHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var input service.VerifyInput

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			apierrors.ValidationError(w, "Некорректная multipart-форма")
			return
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			apierrors.ValidationError(w, "Отсутствует поле file в форме")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			h.logger.Error("Чтение проверяемого файла",
				slog.String("error", err.Error()),
			)
			apierrors.InternalError(w, "Чтение проверяемого файла не удалось")
			return
		}
		input.Data = data
	} else {
		var req verifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
			return
		}
		input.ContentHash = req.ContentHash
	}

	out, pe := h.verify.Verify(r.Context(), input)
	if pe != nil {
		h.writePipelineError(w, pe)
		return
	}

	writeJSON(w, http.StatusOK, out)
}
