// register.go — обработчик POST /api/v1/register.
// Принимает multipart/form-data с файлом медиа либо application/json
// с готовым content_hash.
package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/mediaseal/internal/api/errors"
	"github.com/bigkaa/mediaseal/internal/api/middleware"
	"github.com/bigkaa/mediaseal/internal/service"
)

// maxMultipartMemory — лимит памяти на разбор multipart-формы,
// остальное уходит во временные файлы.
const maxMultipartMemory = 32 << 20

// registerRequest — JSON-вариант запроса регистрации.
type registerRequest struct {
	ContentHash string `json:"content_hash"`
	Source      string `json:"source"`
	MediaType   string `json:"media_type"`
	AIGenerated bool   `json:"ai_generated"`
	Metadata    string `json:"metadata"`
	Creator     string `json:"creator"`
}

// Register — реализация POST /api/v1/register.
func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	input, ok := h.parseRegisterInput(w, r)
	if !ok {
		return
	}

	// Аутентифицированный sub имеет приоритет над creator из тела
	if creator := middleware.CreatorFromContext(r.Context()); creator != "" {
		input.Creator = creator
	}

	out, pe := h.register.Register(r.Context(), input)
	if pe != nil {
		h.writePipelineError(w, pe)
		return
	}

	writeJSON(w, http.StatusCreated, out)
}

// parseRegisterInput разбирает запрос в обоих поддерживаемых форматах.
func (h *APIHandler) parseRegisterInput(w http.ResponseWriter, r *http.Request) (service.RegisterInput, bool) {
	var input service.RegisterInput

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			apierrors.ValidationError(w, "Некорректная multipart-форма")
			return input, false
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			apierrors.ValidationError(w, "Отсутствует поле file в форме")
			return input, false
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			h.logger.Error("Чтение загружаемого файла",
				slog.String("error", err.Error()),
			)
			apierrors.InternalError(w, "Чтение загружаемого файла не удалось")
			return input, false
		}

		input.Data = data
		input.Source = r.FormValue("source")
		input.MediaType = r.FormValue("media_type")
		input.AIGenerated = r.FormValue("ai_generated") == "true"
		input.Metadata = r.FormValue("metadata")
		input.Creator = r.FormValue("creator")
		return input, true
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return input, false
	}

	input.ContentHash = req.ContentHash
	input.Source = req.Source
	input.MediaType = req.MediaType
	input.AIGenerated = req.AIGenerated
	input.Metadata = req.Metadata
	input.Creator = req.Creator
	return input, true
}

// writePipelineError сериализует типизированную ошибку пайплайна.
func (h *APIHandler) writePipelineError(w http.ResponseWriter, pe *service.PipelineError) {
	switch {
	case pe.Code == apierrors.CodeGuardBlocked:
		apierrors.WriteGuardBlocked(w, pe.Message, pe.Warnings)
	case pe.BlobRef != "":
		apierrors.WritePartialSuccess(w, pe.Message, string(pe.Stage), pe.BlobRef, pe.LedgerError)
	default:
		apierrors.WriteErrorStage(w, pe.StatusCode, pe.Code, pe.Message, string(pe.Stage))
	}
}
