// Пакет config — загрузка и валидация конфигурации MediaSeal
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации MediaSeal.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Уникальный идентификатор инстанса (например, "mediaseal-01")
	InstanceID string

	// Базовый URL ledger-шлюза (например, https://ledger-gw:9040)
	LedgerURL string
	// Ключ подписи транзакций ledger. Пустая строка — регистрация недоступна
	// (lookup продолжает работать).
	LedgerSignerKey string
	// Таймаут HTTP-запросов к ledger
	LedgerTimeout time.Duration
	// Количество попыток lookup до вердикта NotFound
	LookupMaxAttempts int
	// Пауза между попытками lookup
	LookupDelay time.Duration
	// Глубина сканирования событий в fallback-поиске
	EventScanLimit int

	// Базовый URL blob-хранилища
	BlobStoreURL string
	// Таймаут HTTP-запросов к blob-хранилищу
	BlobStoreTimeout time.Duration

	// Размер чанка для генерации proof (байт)
	ProofChunkSize int
	// Алгоритм proof: merkle-sha256 или flat-sha256.
	// Выбирается один раз при старте, per-call переключение не поддерживается.
	ProofAlgorithm string

	// Количество последних событий ledger для прогрева индекса при старте.
	// 0 — bootstrap отключён, индекс стартует пустым.
	IndexBootstrapEvents int

	// Максимальный размер LRU-кэша аттестаций (записей)
	CacheSize int
	// TTL записи кэша аттестаций
	CacheTTL time.Duration

	// Creator по умолчанию для анонимных запросов без поля creator
	DefaultCreator string
	// Максимальный размер загружаемого медиа-файла в байтах
	MaxMediaSize int64

	// Порог блокировки similarity guard (0-100)
	SimilarityBlockThreshold int
	// Порог предупреждения similarity guard (0-100)
	SimilarityWarnThreshold int
	// Минимальный репутационный балл для регистрации (0-100)
	ReputationFloor int

	// URL JWKS endpoint для JWT-аутентификации (опционально).
	// Пустая строка — сервер стартует без аутентификации.
	JWKSUrl string
	// Путь к CA-сертификату для проверки TLS JWKS endpoint (опционально)
	JWKSCACert string

	// Путь к TLS сертификату (опционально)
	TLSCert string
	// Путь к TLS приватному ключу (опционально)
	TLSKey string

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// MS_PORT — порт HTTP-сервера (по умолчанию 9030)
	cfg.Port, err = getEnvInt("MS_PORT", 9030)
	if err != nil {
		return nil, fmt.Errorf("MS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("MS_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// MS_INSTANCE_ID — обязательный
	cfg.InstanceID, err = getEnvRequired("MS_INSTANCE_ID")
	if err != nil {
		return nil, err
	}

	// MS_LEDGER_URL — обязательный
	cfg.LedgerURL, err = getEnvRequired("MS_LEDGER_URL")
	if err != nil {
		return nil, err
	}

	// MS_LEDGER_SIGNER_KEY — ключ подписи (опционально, без него регистрация недоступна)
	cfg.LedgerSignerKey = getEnvDefault("MS_LEDGER_SIGNER_KEY", "")

	// MS_LEDGER_TIMEOUT — таймаут запросов к ledger (по умолчанию 30s)
	cfg.LedgerTimeout, err = getEnvDuration("MS_LEDGER_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MS_LEDGER_TIMEOUT: %w", err)
	}

	// MS_LOOKUP_MAX_ATTEMPTS — попытки lookup (по умолчанию 3)
	cfg.LookupMaxAttempts, err = getEnvInt("MS_LOOKUP_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, fmt.Errorf("MS_LOOKUP_MAX_ATTEMPTS: %w", err)
	}
	if cfg.LookupMaxAttempts < 1 {
		return nil, fmt.Errorf("MS_LOOKUP_MAX_ATTEMPTS: значение должно быть >= 1, получено %d", cfg.LookupMaxAttempts)
	}

	// MS_LOOKUP_DELAY — пауза между попытками lookup (по умолчанию 2s)
	cfg.LookupDelay, err = getEnvDuration("MS_LOOKUP_DELAY", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MS_LOOKUP_DELAY: %w", err)
	}

	// MS_EVENT_SCAN_LIMIT — глубина fallback-сканирования событий (по умолчанию 100)
	cfg.EventScanLimit, err = getEnvInt("MS_EVENT_SCAN_LIMIT", 100)
	if err != nil {
		return nil, fmt.Errorf("MS_EVENT_SCAN_LIMIT: %w", err)
	}
	if cfg.EventScanLimit < 1 {
		return nil, fmt.Errorf("MS_EVENT_SCAN_LIMIT: значение должно быть >= 1, получено %d", cfg.EventScanLimit)
	}

	// MS_BLOB_STORE_URL — обязательный
	cfg.BlobStoreURL, err = getEnvRequired("MS_BLOB_STORE_URL")
	if err != nil {
		return nil, err
	}

	// MS_BLOB_STORE_TIMEOUT — таймаут запросов к blob-хранилищу (по умолчанию 30s)
	cfg.BlobStoreTimeout, err = getEnvDuration("MS_BLOB_STORE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MS_BLOB_STORE_TIMEOUT: %w", err)
	}

	// MS_PROOF_CHUNK_SIZE — размер чанка proof (по умолчанию 1024)
	cfg.ProofChunkSize, err = getEnvInt("MS_PROOF_CHUNK_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("MS_PROOF_CHUNK_SIZE: %w", err)
	}
	if cfg.ProofChunkSize < 1 {
		return nil, fmt.Errorf("MS_PROOF_CHUNK_SIZE: значение должно быть >= 1, получено %d", cfg.ProofChunkSize)
	}

	// MS_PROOF_ALGORITHM — алгоритм proof (по умолчанию merkle-sha256)
	cfg.ProofAlgorithm = getEnvDefault("MS_PROOF_ALGORITHM", "merkle-sha256")
	if cfg.ProofAlgorithm != "merkle-sha256" && cfg.ProofAlgorithm != "flat-sha256" {
		return nil, fmt.Errorf("MS_PROOF_ALGORITHM: недопустимое значение %q, допустимые: merkle-sha256, flat-sha256", cfg.ProofAlgorithm)
	}

	// MS_INDEX_BOOTSTRAP_EVENTS — прогрев индекса при старте (по умолчанию 0 = отключён)
	cfg.IndexBootstrapEvents, err = getEnvInt("MS_INDEX_BOOTSTRAP_EVENTS", 0)
	if err != nil {
		return nil, fmt.Errorf("MS_INDEX_BOOTSTRAP_EVENTS: %w", err)
	}
	if cfg.IndexBootstrapEvents < 0 {
		return nil, fmt.Errorf("MS_INDEX_BOOTSTRAP_EVENTS: значение должно быть >= 0, получено %d", cfg.IndexBootstrapEvents)
	}

	// MS_CACHE_SIZE — размер LRU-кэша аттестаций (по умолчанию 1000)
	cfg.CacheSize, err = getEnvInt("MS_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("MS_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize < 1 {
		return nil, fmt.Errorf("MS_CACHE_SIZE: значение должно быть >= 1, получено %d", cfg.CacheSize)
	}

	// MS_CACHE_TTL — TTL записи кэша (по умолчанию 5m)
	cfg.CacheTTL, err = getEnvDuration("MS_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MS_CACHE_TTL: %w", err)
	}

	// MS_DEFAULT_CREATOR — creator для анонимных запросов (по умолчанию "anonymous")
	cfg.DefaultCreator = getEnvDefault("MS_DEFAULT_CREATOR", "anonymous")

	// MS_MAX_MEDIA_SIZE — максимальный размер медиа (по умолчанию 50 MB)
	cfg.MaxMediaSize, err = getEnvInt64("MS_MAX_MEDIA_SIZE", 52428800)
	if err != nil {
		return nil, fmt.Errorf("MS_MAX_MEDIA_SIZE: %w", err)
	}
	if cfg.MaxMediaSize <= 0 {
		return nil, fmt.Errorf("MS_MAX_MEDIA_SIZE: значение должно быть положительным")
	}

	// MS_SIMILARITY_BLOCK_THRESHOLD — порог блокировки (по умолчанию 95)
	cfg.SimilarityBlockThreshold, err = getEnvInt("MS_SIMILARITY_BLOCK_THRESHOLD", 95)
	if err != nil {
		return nil, fmt.Errorf("MS_SIMILARITY_BLOCK_THRESHOLD: %w", err)
	}

	// MS_SIMILARITY_WARN_THRESHOLD — порог предупреждения (по умолчанию 85)
	cfg.SimilarityWarnThreshold, err = getEnvInt("MS_SIMILARITY_WARN_THRESHOLD", 85)
	if err != nil {
		return nil, fmt.Errorf("MS_SIMILARITY_WARN_THRESHOLD: %w", err)
	}
	if cfg.SimilarityWarnThreshold > cfg.SimilarityBlockThreshold {
		return nil, fmt.Errorf("MS_SIMILARITY_WARN_THRESHOLD: значение %d должно быть <= MS_SIMILARITY_BLOCK_THRESHOLD (%d)",
			cfg.SimilarityWarnThreshold, cfg.SimilarityBlockThreshold)
	}

	// MS_REPUTATION_FLOOR — минимальный репутационный балл (по умолчанию 20)
	cfg.ReputationFloor, err = getEnvInt("MS_REPUTATION_FLOOR", 20)
	if err != nil {
		return nil, fmt.Errorf("MS_REPUTATION_FLOOR: %w", err)
	}
	if cfg.ReputationFloor < 0 || cfg.ReputationFloor > 100 {
		return nil, fmt.Errorf("MS_REPUTATION_FLOOR: значение %d вне допустимого диапазона 0-100", cfg.ReputationFloor)
	}

	// MS_JWKS_URL — JWT-аутентификация (опционально)
	cfg.JWKSUrl = getEnvDefault("MS_JWKS_URL", "")

	// MS_JWKS_CA_CERT — путь к CA-сертификату для JWKS endpoint (опционально)
	cfg.JWKSCACert = getEnvDefault("MS_JWKS_CA_CERT", "")

	// MS_TLS_CERT / MS_TLS_KEY — TLS сервера (опционально, но только парой)
	cfg.TLSCert = getEnvDefault("MS_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("MS_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("MS_TLS_CERT и MS_TLS_KEY должны задаваться вместе")
	}

	// MS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("MS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("MS_LOG_LEVEL: %w", err)
	}

	// MS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("MS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("MS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// MS_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("MS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// MS_DEPHEALTH_GROUP — имя группы в метриках topologymetrics (по умолчанию "mediaseal")
	cfg.DephealthGroup = getEnvDefault("MS_DEPHEALTH_GROUP", "mediaseal")

	// MS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("MS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MS_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
