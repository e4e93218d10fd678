// Пакет index — потокобезопасный in-memory индекс аттестаций.
//
// Производная проекция над ledger: первичная карта по attestation_id,
// вторичные set-индексы по creator и source, карта content_hash →
// attestation_id и список recency (новые первые), пересортируемый
// при каждой вставке. Обеспечивает фильтрованный поиск и агрегатную
// статистику без обращений к ledger.
//
// Не персистентный и не авторитетный: при рестарте пересобирается
// из событий создания ledger (bootstrap) либо стартует пустым.
// Использует sync.RWMutex для конкурентного чтения и
// эксклюзивной записи.
package index

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/mediaseal/internal/domain/model"
)

// SearchFilters — параметры фильтрации поиска.
// Нулевые указатели означают отсутствие фильтра.
type SearchFilters struct {
	Creator     *string
	Source      *string
	DateFrom    *time.Time
	DateTo      *time.Time
	MediaType   *model.MediaType
	AIGenerated *bool
}

// Stats — агрегатная статистика индекса.
type Stats struct {
	// TotalAttestations — общее количество записей
	TotalAttestations int `json:"total_attestations"`
	// TotalVerifications — сумма счётчиков верификаций
	TotalVerifications int64 `json:"total_verifications"`
	// TopCreators — топ создателей по количеству регистраций
	TopCreators []RankEntry `json:"top_creators"`
	// TopSources — топ источников по количеству регистраций
	TopSources []RankEntry `json:"top_sources"`
	// ByMediaType — количество записей по типам медиа
	ByMediaType map[model.MediaType]int `json:"by_media_type"`
	// Recent — последние записи (новые первые)
	Recent []*model.IndexEntry `json:"recent"`
}

// RankEntry — позиция в топе создателей/источников.
type RankEntry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Index — потокобезопасный многоключевой индекс аттестаций.
type Index struct {
	mu sync.RWMutex

	// entries — первичная карта attestation_id → запись
	entries map[string]*model.IndexEntry
	// byHash — content_hash → attestation_id
	byHash map[string]string
	// byCreator — creator → набор attestation_id
	byCreator map[string]map[string]bool
	// bySource — source → набор attestation_id
	bySource map[string]map[string]bool
	// recent — id в порядке убывания created_at, пересортировывается при вставке
	recent []string
	// firstSeen — порядковый номер первой вставки ключа; детерминированный
	// tie-break в топах stats
	firstSeenCreator map[string]int64
	firstSeenSource  map[string]int64
	seq              int64

	ready  bool
	logger *slog.Logger
}

// New создаёт пустой индекс.
func New(logger *slog.Logger) *Index {
	return &Index{
		entries:          make(map[string]*model.IndexEntry),
		byHash:           make(map[string]string),
		byCreator:        make(map[string]map[string]bool),
		bySource:         make(map[string]map[string]bool),
		firstSeenCreator: make(map[string]int64),
		firstSeenSource:  make(map[string]int64),
		logger:           logger.With(slog.String("component", "index")),
	}
}

// SetReady помечает индекс готовым (bootstrap завершён или отключён).
func (idx *Index) SetReady() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.ready = true
}

// IsReady возвращает true, если индекс готов к использованию.
func (idx *Index) IsReady() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.ready
}

// Insert добавляет запись в первичную карту, вторичные индексы
// и recency-список. Повторная вставка того же attestation_id
// перезаписывает запись.
func (idx *Index) Insert(entry *model.IndexEntry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	// Копия — защита от внешних мутаций
	copied := *entry

	if _, exists := idx.entries[copied.AttestationID]; !exists {
		idx.recent = append(idx.recent, copied.AttestationID)
	}
	idx.entries[copied.AttestationID] = &copied
	idx.byHash[copied.ContentHash] = copied.AttestationID

	addToSet(idx.byCreator, copied.Creator, copied.AttestationID)
	addToSet(idx.bySource, copied.Source, copied.AttestationID)

	idx.seq++
	if _, ok := idx.firstSeenCreator[copied.Creator]; !ok {
		idx.firstSeenCreator[copied.Creator] = idx.seq
	}
	if _, ok := idx.firstSeenSource[copied.Source]; !ok {
		idx.firstSeenSource[copied.Source] = idx.seq
	}

	// Пересортировка recency при каждой вставке (новые первые)
	sort.SliceStable(idx.recent, func(i, j int) bool {
		return idx.entries[idx.recent[i]].CreatedAt.After(idx.entries[idx.recent[j]].CreatedAt)
	})
}

// GetByHash возвращает запись по content_hash.
// Возвращает nil, если запись не найдена.
func (idx *Index) GetByHash(contentHash string) *model.IndexEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	id, ok := idx.byHash[contentHash]
	if !ok {
		return nil
	}
	copied := *idx.entries[id]
	return &copied
}

// UpdateVerificationCount обновляет денормализованную копию счётчика
// верификаций. Обратной записи в ledger не выполняет.
// Возвращает ошибку, если запись не найдена.
func (idx *Index) UpdateVerificationCount(attestationID string, count int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	entry, ok := idx.entries[attestationID]
	if !ok {
		return fmt.Errorf("аттестация %s не найдена в индексе", attestationID)
	}
	entry.VerificationCount = count
	return nil
}

// Search выполняет фильтрованный поиск.
//
// Алгоритм: при наличии обоих set-фильтров (creator и source) стартовое
// множество — пересечение кандидатов из вторичных индексов (пустое
// пересечение, если любой фильтр не дал совпадений); при одном —
// соответствующий набор; иначе — все id. Оставшиеся скалярные фильтры
// применяются линейными предикатными проходами. Результат отсортирован
// по created_at по убыванию. Порядок применения фильтров на результат
// не влияет (коммутативность).
func (idx *Index) Search(filters SearchFilters) []*model.IndexEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	// Стартовое множество кандидатов из set-индексов
	var candidates map[string]bool
	switch {
	case filters.Creator != nil && filters.Source != nil:
		candidates = intersect(idx.byCreator[*filters.Creator], idx.bySource[*filters.Source])
	case filters.Creator != nil:
		candidates = idx.byCreator[*filters.Creator]
	case filters.Source != nil:
		candidates = idx.bySource[*filters.Source]
	}

	var result []*model.IndexEntry
	appendIfMatch := func(id string) {
		entry := idx.entries[id]
		if !matchScalar(entry, filters) {
			return
		}
		copied := *entry
		result = append(result, &copied)
	}

	if filters.Creator != nil || filters.Source != nil {
		for id := range candidates {
			appendIfMatch(id)
		}
	} else {
		for id := range idx.entries {
			appendIfMatch(id)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		// Детерминированный порядок при равных timestamp-ах
		return result[i].AttestationID < result[j].AttestationID
	})

	return result
}

// Stats возвращает агрегатную статистику.
// limit ограничивает топы и список recent (<=0 — значение по умолчанию 10).
func (idx *Index) Stats(limit int) *Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	stats := &Stats{
		TotalAttestations: len(idx.entries),
		ByMediaType:       make(map[model.MediaType]int),
	}

	for _, entry := range idx.entries {
		stats.TotalVerifications += entry.VerificationCount
		stats.ByMediaType[entry.MediaType]++
	}

	stats.TopCreators = topN(idx.byCreator, idx.firstSeenCreator, limit)
	stats.TopSources = topN(idx.bySource, idx.firstSeenSource, limit)

	// Последние записи из recency-списка
	n := limit
	if n > len(idx.recent) {
		n = len(idx.recent)
	}
	stats.Recent = make([]*model.IndexEntry, 0, n)
	for _, id := range idx.recent[:n] {
		copied := *idx.entries[id]
		stats.Recent = append(stats.Recent, &copied)
	}

	return stats
}

// Count возвращает общее количество записей в индексе.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// --- Вспомогательные функции ---

// addToSet добавляет id в set-индекс по ключу.
func addToSet(sets map[string]map[string]bool, key, id string) {
	set, ok := sets[key]
	if !ok {
		set = make(map[string]bool)
		sets[key] = set
	}
	set[id] = true
}

// intersect возвращает пересечение двух наборов id.
func intersect(a, b map[string]bool) map[string]bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	out := make(map[string]bool)
	for id := range a {
		if b[id] {
			out[id] = true
		}
	}
	return out
}

// matchScalar применяет скалярные фильтры к записи.
func matchScalar(entry *model.IndexEntry, f SearchFilters) bool {
	if f.DateFrom != nil && entry.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && entry.CreatedAt.After(*f.DateTo) {
		return false
	}
	if f.MediaType != nil && entry.MediaType != *f.MediaType {
		return false
	}
	if f.AIGenerated != nil && entry.AIGenerated != *f.AIGenerated {
		return false
	}
	return true
}

// topN строит топ ключей по количеству записей.
// Tie-break детерминированный: меньший порядковый номер первой вставки.
func topN(sets map[string]map[string]bool, firstSeen map[string]int64, limit int) []RankEntry {
	ranked := make([]RankEntry, 0, len(sets))
	for key, set := range sets {
		ranked = append(ranked, RankEntry{Key: key, Count: len(set)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return firstSeen[ranked[i].Key] < firstSeen[ranked[j].Key]
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
