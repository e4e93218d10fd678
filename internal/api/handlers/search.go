// search.go — обработчики POST /api/v1/search и GET /api/v1/stats.
// Ответы строятся из локального индекса: отражают известную этому
// инстансу часть ledger.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	apierrors "github.com/bigkaa/mediaseal/internal/api/errors"
	"github.com/bigkaa/mediaseal/internal/domain/model"
	"github.com/bigkaa/mediaseal/internal/index"
)

// searchRequest — параметры фильтрованного поиска.
// Все поля опциональны; отсутствующий фильтр не применяется.
type searchRequest struct {
	Creator     *string `json:"creator"`
	Source      *string `json:"source"`
	DateFrom    *string `json:"date_from"`
	DateTo      *string `json:"date_to"`
	MediaType   *string `json:"media_type"`
	AIGenerated *bool   `json:"ai_generated"`
}

// searchResponse — результат поиска.
type searchResponse struct {
	Results []*model.IndexEntry `json:"results"`
	Total   int                 `json:"total"`
}

// Search — реализация POST /api/v1/search.
func (h *APIHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}

	filters := index.SearchFilters{
		Creator: req.Creator,
		Source:  req.Source,
	}

	if req.MediaType != nil {
		mt, err := model.ParseMediaType(*req.MediaType)
		if err != nil {
			apierrors.ValidationError(w, err.Error())
			return
		}
		filters.MediaType = &mt
	}
	filters.AIGenerated = req.AIGenerated

	if req.DateFrom != nil {
		from, err := time.Parse(time.RFC3339, *req.DateFrom)
		if err != nil {
			apierrors.ValidationError(w, "date_from: ожидается RFC3339")
			return
		}
		filters.DateFrom = &from
	}
	if req.DateTo != nil {
		to, err := time.Parse(time.RFC3339, *req.DateTo)
		if err != nil {
			apierrors.ValidationError(w, "date_to: ожидается RFC3339")
			return
		}
		filters.DateTo = &to
	}

	results := h.search.Search(filters)
	writeJSON(w, http.StatusOK, searchResponse{
		Results: results,
		Total:   len(results),
	})
}

// Stats — реализация GET /api/v1/stats.
// Параметр limit ограничивает размер топов и списка недавних записей.
func (h *APIHandler) Stats(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			apierrors.ValidationError(w, "limit: ожидается неотрицательное число")
			return
		}
		limit = n
	}

	writeJSON(w, http.StatusOK, h.search.Stats(limit))
}
