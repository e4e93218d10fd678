// Пакет blobstore — HTTP-клиент контент-адресуемого blob-хранилища.
//
// Хранилище принимает JSON-конверт {metadata, proof} и возвращает
// назначенный blob_id. Конверт самодостаточен: по нему можно
// проверить целостность записи без обращения к ledger.
package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
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
	// ErrNotFound — blob отсутствует в хранилище.
	ErrNotFound = errors.New("blob не найден в хранилище")
	// ErrUnavailable — хранилище недоступно.
	ErrUnavailable = errors.New("blob-хранилище недоступно")
)

// Prometheus-метрики blob-клиента.
var (
	putTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ms_blobstore_put_total",
		Help: "Общее количество загрузок конвертов по результату.",
	}, []string{"result"})
	getTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ms_blobstore_get_total",
		Help: "Общее количество чтений конвертов по результату.",
	}, []string{"result"})
)

// Envelope — конверт аттестации в blob-хранилище.
type Envelope struct {
	// Metadata — произвольные метаданные создателя
	Metadata string `json:"metadata"`
	// Proof — доказательство целостности исходного медиа
	Proof *model.ProofRecord `json:"proof"`
}

// Client — HTTP-клиент blob-хранилища.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option — опция конструктора клиента.
type Option func(*Client)

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New создаёт клиент blob-хранилища.
func New(baseURL string, timeout time.Duration, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
			},
		},
		logger: logger.With(slog.String("component", "blobstore_client")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type putResponse struct {
	BlobID string `json:"blob_id"`
}

// Put загружает конверт и возвращает назначенный blob_id.
func (c *Client) Put(ctx context.Context, env *Envelope) (string, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("сериализация конверта: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/blobs", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("создание запроса Put: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		putTotal.WithLabelValues("unavailable").Inc()
		return "", fmt.Errorf("запрос Put к %s: %w", c.baseURL, errors.Join(ErrUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		putTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("Put: хранилище вернуло статус %d: %w", resp.StatusCode, ErrUnavailable)
	}

	var result putResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("декодирование ответа Put: %w", err)
	}
	if result.BlobID == "" {
		return "", fmt.Errorf("Put: хранилище вернуло пустой blob_id: %w", ErrUnavailable)
	}

	putTotal.WithLabelValues("ok").Inc()
	c.logger.Debug("Конверт загружен в blob-хранилище",
		slog.String("blob_id", result.BlobID),
	)
	return result.BlobID, nil
}

// Get читает конверт по blob_id.
func (c *Client) Get(ctx context.Context, blobID string) (*Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/blobs/"+blobID, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса Get: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		getTotal.WithLabelValues("unavailable").Inc()
		return nil, fmt.Errorf("запрос Get %s: %w", blobID, errors.Join(ErrUnavailable, err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var env Envelope
		if decErr := json.NewDecoder(resp.Body).Decode(&env); decErr != nil {
			return nil, fmt.Errorf("декодирование конверта %s: %w", blobID, decErr)
		}
		getTotal.WithLabelValues("ok").Inc()
		return &env, nil
	case http.StatusNotFound:
		getTotal.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("blob %s: %w", blobID, ErrNotFound)
	default:
		getTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("Get: хранилище вернуло статус %d: %w", resp.StatusCode, ErrUnavailable)
	}
}
