// Пакет service — оркестрация register/verify/search/stats поверх
// нормализатора, proof-движка, ledger- и blob-клиентов и индекса.
package service

import (
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/mediaseal/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ms_cache_hits_total",
		Help: "Количество попаданий в кэш аттестаций.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ms_cache_misses_total",
		Help: "Количество промахов кэша аттестаций.",
	})
)

// CacheService — LRU-кэш разрешённых аттестаций с TTL.
// Ключ — content_hash. Снимает повторные lookup-ы с ledger-шлюза
// при верификации одного и того же контента.
type CacheService struct {
	lru    *expirable.LRU[string, *model.Attestation]
	logger *slog.Logger
}

// NewCacheService создаёт кэш аттестаций.
// size — максимальное количество записей, ttl — время жизни записи.
func NewCacheService(size int, ttl time.Duration, logger *slog.Logger) *CacheService {
	return &CacheService{
		lru:    expirable.NewLRU[string, *model.Attestation](size, nil, ttl),
		logger: logger.With(slog.String("component", "attestation_cache")),
	}
}

// Get возвращает копию аттестации по content_hash, если она в кэше.
// Копия изолирует кэшированную запись от мутаций вызывающего кода;
// та же дисциплина copy-on-read, что и в индексе.
func (c *CacheService) Get(contentHash string) (*model.Attestation, bool) {
	att, ok := c.lru.Get(contentHash)
	if ok {
		cacheHitsTotal.Inc()
		copied := *att
		return &copied, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set сохраняет копию аттестации в кэше.
func (c *CacheService) Set(att *model.Attestation) {
	copied := *att
	c.lru.Add(copied.ContentHash, &copied)
}

// Len возвращает текущее количество записей в кэше.
func (c *CacheService) Len() int {
	return c.lru.Len()
}
