// Пакет ledger — единственный шлюз системы к внешнему immutable ledger.
//
// HTTP-клиент ledger-шлюза: запись регистрационных транзакций и
// разрешение content_hash → attestation. Ledger сам обеспечивает
// уникальность хэша (повторная регистрация отклоняется на его стороне)
// и эмитирует событие создания с назначенным адресом записи.
//
// Чтения eventually consistent: lookup применяет ограниченную
// retry-политику; NotFound после исчерпания попыток — валидный
// терминальный результат, не ошибка.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/mediaseal/internal/domain/model"
)

// Ошибки клиента.
var (
	// ErrNotFound — хэш отсутствует в ledger после исчерпания попыток.
	// Нормальный, неисключительный результат.
	ErrNotFound = errors.New("аттестация не найдена в ledger")
	// ErrAlreadyExists — хэш уже зарегистрирован (отклонение на стороне ledger).
	ErrAlreadyExists = errors.New("хэш уже зарегистрирован в ledger")
	// ErrUnavailable — ключ подписи не настроен либо ledger недоступен.
	ErrUnavailable = errors.New("ledger недоступен")
)

// Prometheus-метрики ledger-клиента.
var (
	registerTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ms_ledger_register_total",
		Help: "Общее количество регистрационных транзакций по результату.",
	}, []string{"result"})
	lookupRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ms_ledger_lookup_retries_total",
		Help: "Общее количество повторных попыток lookup.",
	})
	eventScanFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ms_ledger_event_scan_fallback_total",
		Help: "Количество lookup-ов, ушедших в fallback-сканирование событий.",
	})
)

// eventTypeCreated — тип события создания аттестации в ledger.
const eventTypeCreated = "attestation.created"

// RegisterParams — параметры регистрационной транзакции.
type RegisterParams struct {
	ContentHash string
	BlobRef     string
	Source      string
	MediaType   model.MediaType
	AIGenerated bool
	Metadata    string
	Creator     string
}

// RegisterResult — результат успешной записи в ledger.
type RegisterResult struct {
	// TxID — идентификатор транзакции
	TxID string `json:"tx_id"`
	// AttestationID — назначенный ledger-ом адрес записи
	AttestationID string `json:"attestation_id"`
	// Creator — адрес создателя, подтверждённый ledger-ом
	Creator string `json:"creator"`
}

// Client — HTTP-клиент ledger-шлюза.
type Client struct {
	baseURL    string
	signerKey  string
	httpClient *http.Client
	retry      RetryPolicy
	sleep      SleepFunc
	scanLimit  int
	logger     *slog.Logger
}

// Option — опция конструктора клиента.
type Option func(*Client)

// WithSleepFunc подменяет функцию паузы (fake clock в тестах).
func WithSleepFunc(fn SleepFunc) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New создаёт клиент ledger-шлюза.
//
// baseURL — базовый URL шлюза (например, https://ledger-gw:9040).
// signerKey — ключ подписи транзакций; пустая строка допустима,
// но Register будет возвращать ErrUnavailable.
// retry — политика повторов lookup (см. DefaultRetryPolicy).
// scanLimit — глубина fallback-сканирования событий.
func New(baseURL, signerKey string, timeout time.Duration, retry RetryPolicy, scanLimit int, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		signerKey: signerKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				// Пул idle-соединений для переиспользования
				MaxIdleConnsPerHost: 10,
			},
		},
		retry:     retry,
		sleep:     time.Sleep,
		scanLimit: scanLimit,
		logger:    logger.With(slog.String("component", "ledger_client")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// --- Wire-структуры ledger-шлюза ---

type registerRequest struct {
	ContentHash string `json:"content_hash"`
	BlobRef     string `json:"blob_ref"`
	Source      string `json:"source"`
	MediaType   string `json:"media_type"`
	AIGenerated bool   `json:"ai_generated"`
	Metadata    string `json:"metadata,omitempty"`
	Creator     string `json:"creator,omitempty"`
}

type hashIndexResponse struct {
	AttestationID string `json:"attestation_id"`
}

type eventsResponse struct {
	Events []model.CreationEvent `json:"events"`
}

// Register отправляет регистрационную транзакцию.
//
// Ledger проверяет длину хэша (32 байта) и уникальность; повторная
// регистрация того же хэша отклоняется с ErrAlreadyExists — при двух
// одновременных регистрациях одного контента ровно одна завершится
// успехом, race разрешает сам ledger.
func (c *Client) Register(ctx context.Context, params RegisterParams) (*RegisterResult, error) {
	if c.signerKey == "" {
		registerTotal.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("ключ подписи не настроен: %w", ErrUnavailable)
	}

	body, err := json.Marshal(registerRequest{
		ContentHash: params.ContentHash,
		BlobRef:     params.BlobRef,
		Source:      params.Source,
		MediaType:   string(params.MediaType),
		AIGenerated: params.AIGenerated,
		Metadata:    params.Metadata,
		Creator:     params.Creator,
	})
	if err != nil {
		return nil, fmt.Errorf("сериализация транзакции: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("создание запроса Register: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.signerKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		registerTotal.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("запрос Register к %s: %w", c.baseURL, errors.Join(ErrUnavailable, err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var result RegisterResult
		if decErr := json.NewDecoder(resp.Body).Decode(&result); decErr != nil {
			return nil, fmt.Errorf("декодирование ответа Register: %w", decErr)
		}
		registerTotal.WithLabelValues("ok").Inc()
		return &result, nil
	case http.StatusConflict:
		registerTotal.WithLabelValues("already_exists").Inc()
		return nil, fmt.Errorf("content_hash %s: %w", params.ContentHash, ErrAlreadyExists)
	default:
		registerTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("Register: ledger вернул статус %d: %w", resp.StatusCode, ErrUnavailable)
	}
}

// Lookup разрешает content_hash → Attestation с retry-политикой.
//
// Каждая попытка: прямой keyed-поиск по hash-индексу ledger; если
// этот access pattern не поддерживается или вернул ошибку — fallback
// на сканирование последних scanLimit событий создания. Транзиентная
// сетевая ошибка расходует попытку, как и промах. После исчерпания
// попыток lookup детерминированно сходится к ErrNotFound.
func (c *Client) Lookup(ctx context.Context, contentHash string) (*model.Attestation, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			lookupRetriesTotal.Inc()
			c.sleep(c.retry.Delay)
		}

		attestationID, err := c.resolveID(ctx, contentHash)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				lastErr = err
				continue
			}
			// Транзиентная ошибка тоже расходует попытку
			c.logger.Warn("Попытка lookup завершилась ошибкой",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			lastErr = err
			continue
		}

		att, err := c.GetRecord(ctx, attestationID)
		if err != nil {
			lastErr = err
			continue
		}
		return att, nil
	}

	if lastErr != nil && !errors.Is(lastErr, ErrNotFound) {
		c.logger.Warn("Lookup исчерпал попытки с транзиентными ошибками, вердикт NotFound",
			slog.String("last_error", lastErr.Error()),
		)
	}
	return nil, fmt.Errorf("content_hash %s после %d попыток: %w", contentHash, c.retry.MaxAttempts, ErrNotFound)
}

// resolveID находит attestation_id по хэшу: сначала прямой keyed-поиск,
// при его недоступности — сканирование последних событий создания.
func (c *Client) resolveID(ctx context.Context, contentHash string) (string, error) {
	id, err := c.lookupDirect(ctx, contentHash)
	if err == nil {
		return id, nil
	}
	if errors.Is(err, ErrNotFound) {
		return "", err
	}

	// Прямой индекс недоступен — сканируем события
	eventScanFallbackTotal.Inc()
	c.logger.Debug("Прямой hash-индекс недоступен, fallback на сканирование событий",
		slog.String("error", err.Error()),
	)
	return c.lookupByEvents(ctx, contentHash)
}

// lookupDirect — keyed-поиск по hash-индексу ledger.
func (c *Client) lookupDirect(ctx context.Context, contentHash string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/index/"+contentHash, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("создание запроса lookup: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("запрос hash-индекса: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body hashIndexResponse
		if decErr := json.NewDecoder(resp.Body).Decode(&body); decErr != nil {
			return "", fmt.Errorf("декодирование ответа hash-индекса: %w", decErr)
		}
		if body.AttestationID == "" {
			return "", ErrNotFound
		}
		return body.AttestationID, nil
	case http.StatusNotFound:
		return "", ErrNotFound
	default:
		return "", fmt.Errorf("hash-индекс вернул статус %d", resp.StatusCode)
	}
}

// lookupByEvents сканирует последние события создания в поиске хэша.
func (c *Client) lookupByEvents(ctx context.Context, contentHash string) (string, error) {
	events, err := c.QueryRecentEvents(ctx, c.scanLimit)
	if err != nil {
		return "", err
	}
	for _, ev := range events {
		if ev.ContentHash == contentHash {
			return ev.AttestationID, nil
		}
	}
	return "", ErrNotFound
}

// QueryRecentEvents возвращает последние события создания (новые первые).
func (c *Client) QueryRecentEvents(ctx context.Context, limit int) ([]model.CreationEvent, error) {
	url := fmt.Sprintf("%s/api/v1/events?type=%s&limit=%d&order=desc", c.baseURL, eventTypeCreated, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса событий: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос событий: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("запрос событий вернул статус %d", resp.StatusCode)
	}

	var body eventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("декодирование событий: %w", err)
	}
	return body.Events, nil
}

// GetRecord разрешает полные поля аттестации по её адресу.
func (c *Client) GetRecord(ctx context.Context, attestationID string) (*model.Attestation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/records/"+attestationID, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса записи: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос записи %s: %w", attestationID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var att model.Attestation
		if decErr := json.NewDecoder(resp.Body).Decode(&att); decErr != nil {
			return nil, fmt.Errorf("декодирование записи: %w", decErr)
		}
		return &att, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("запись %s: %w", attestationID, ErrNotFound)
	default:
		// Тело ответа не нужно, но дочитываем для переиспользования соединения
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("запрос записи вернул статус %d", resp.StatusCode)
	}
}

// IncrementVerification отправляет транзакцию инкремента счётчика
// верификаций. Возвращает новое значение счётчика.
func (c *Client) IncrementVerification(ctx context.Context, attestationID string) (int64, error) {
	if c.signerKey == "" {
		return 0, fmt.Errorf("ключ подписи не настроен: %w", ErrUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/records/"+attestationID+"/verifications", http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("создание запроса инкремента: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.signerKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("запрос инкремента: %w", errors.Join(ErrUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("инкремент вернул статус %d", resp.StatusCode)
	}

	var body struct {
		VerificationCount int64 `json:"verification_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("декодирование ответа инкремента: %w", err)
	}
	return body.VerificationCount, nil
}
