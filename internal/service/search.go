package service

import (
	"log/slog"

	"github.com/bigkaa/mediaseal/internal/domain/model"
	"github.com/bigkaa/mediaseal/internal/index"
)

// SearchService — поиск и статистика поверх индекса аттестаций.
// Индекс одноразовый: ответы отражают известную этому инстансу часть
// ledger, не глобальную истину.
type SearchService struct {
	index  *index.Index
	logger *slog.Logger
}

// NewSearchService создаёт сервис поиска.
func NewSearchService(idx *index.Index, logger *slog.Logger) *SearchService {
	return &SearchService{
		index:  idx,
		logger: logger.With(slog.String("component", "search_service")),
	}
}

// Search выполняет фильтрованный поиск по индексу.
func (s *SearchService) Search(filters index.SearchFilters) []*model.IndexEntry {
	results := s.index.Search(filters)
	s.logger.Debug("Поиск по индексу выполнен",
		slog.Int("results", len(results)),
	)
	return results
}

// Stats возвращает агрегатную статистику индекса.
func (s *SearchService) Stats(limit int) *index.Stats {
	return s.index.Stats(limit)
}
