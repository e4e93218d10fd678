package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

// msEnvKeys — все переменные окружения MS_*, очищаемые перед тестом.
var msEnvKeys = []string{
	"MS_PORT", "MS_INSTANCE_ID",
	"MS_LEDGER_URL", "MS_LEDGER_SIGNER_KEY", "MS_LEDGER_TIMEOUT",
	"MS_LOOKUP_MAX_ATTEMPTS", "MS_LOOKUP_DELAY", "MS_EVENT_SCAN_LIMIT",
	"MS_BLOB_STORE_URL", "MS_BLOB_STORE_TIMEOUT",
	"MS_PROOF_CHUNK_SIZE", "MS_PROOF_ALGORITHM",
	"MS_INDEX_BOOTSTRAP_EVENTS", "MS_CACHE_SIZE", "MS_CACHE_TTL",
	"MS_DEFAULT_CREATOR", "MS_MAX_MEDIA_SIZE",
	"MS_SIMILARITY_BLOCK_THRESHOLD", "MS_SIMILARITY_WARN_THRESHOLD",
	"MS_REPUTATION_FLOOR",
	"MS_JWKS_URL", "MS_JWKS_CA_CERT", "MS_TLS_CERT", "MS_TLS_KEY",
	"MS_LOG_LEVEL", "MS_LOG_FORMAT",
	"MS_DEPHEALTH_CHECK_INTERVAL", "MS_DEPHEALTH_GROUP",
	"MS_SHUTDOWN_TIMEOUT",
}

// setupEnv очищает все MS_* переменные и устанавливает переданные.
// Использует t.Setenv для автоматического восстановления.
func setupEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for _, k := range msEnvKeys {
		if _, ok := os.LookupEnv(k); ok {
			t.Setenv(k, "")
			os.Unsetenv(k)
		}
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

// minimalEnv — минимальный набор обязательных переменных.
func minimalEnv() map[string]string {
	return map[string]string{
		"MS_INSTANCE_ID":   "mediaseal-test",
		"MS_LEDGER_URL":    "http://ledger-gw:9040",
		"MS_BLOB_STORE_URL": "http://blob-store:9050",
	}
}

// TestLoad_Defaults проверяет загрузку с минимальным набором переменных
// и значениями по умолчанию.
func TestLoad_Defaults(t *testing.T) {
	setupEnv(t, minimalEnv())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() ошибка: %v", err)
	}

	if cfg.Port != 9030 {
		t.Errorf("Port = %d, ожидался 9030", cfg.Port)
	}
	if cfg.LookupMaxAttempts != 3 {
		t.Errorf("LookupMaxAttempts = %d, ожидался 3", cfg.LookupMaxAttempts)
	}
	if cfg.LookupDelay != 2*time.Second {
		t.Errorf("LookupDelay = %v, ожидалось 2s", cfg.LookupDelay)
	}
	if cfg.ProofChunkSize != 1024 {
		t.Errorf("ProofChunkSize = %d, ожидался 1024", cfg.ProofChunkSize)
	}
	if cfg.ProofAlgorithm != "merkle-sha256" {
		t.Errorf("ProofAlgorithm = %q, ожидался merkle-sha256", cfg.ProofAlgorithm)
	}
	if cfg.SimilarityBlockThreshold != 95 || cfg.SimilarityWarnThreshold != 85 {
		t.Errorf("Similarity thresholds = %d/%d, ожидались 95/85",
			cfg.SimilarityBlockThreshold, cfg.SimilarityWarnThreshold)
	}
	if cfg.ReputationFloor != 20 {
		t.Errorf("ReputationFloor = %d, ожидался 20", cfg.ReputationFloor)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидался json", cfg.LogFormat)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидался info", cfg.LogLevel)
	}
	if cfg.IndexBootstrapEvents != 0 {
		t.Errorf("IndexBootstrapEvents = %d, ожидался 0", cfg.IndexBootstrapEvents)
	}
}

// TestLoad_MissingRequired проверяет ошибки при отсутствии обязательных переменных.
func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name string
		omit string
	}{
		{"без MS_INSTANCE_ID", "MS_INSTANCE_ID"},
		{"без MS_LEDGER_URL", "MS_LEDGER_URL"},
		{"без MS_BLOB_STORE_URL", "MS_BLOB_STORE_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := minimalEnv()
			delete(env, tt.omit)
			setupEnv(t, env)

			if _, err := Load(); err == nil {
				t.Errorf("Load() без %s должен вернуть ошибку", tt.omit)
			}
		})
	}
}

// TestLoad_InvalidValues проверяет валидацию некорректных значений.
func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"некорректный порт", "MS_PORT", "abc"},
		{"порт вне диапазона", "MS_PORT", "70000"},
		{"нулевые попытки lookup", "MS_LOOKUP_MAX_ATTEMPTS", "0"},
		{"некорректная длительность", "MS_LOOKUP_DELAY", "2 seconds"},
		{"неизвестный алгоритм proof", "MS_PROOF_ALGORITHM", "md5-tree"},
		{"отрицательный bootstrap", "MS_INDEX_BOOTSTRAP_EVENTS", "-1"},
		{"неизвестный формат логов", "MS_LOG_FORMAT", "xml"},
		{"неизвестный уровень логов", "MS_LOG_LEVEL", "trace"},
		{"репутация вне диапазона", "MS_REPUTATION_FLOOR", "150"},
		{"отрицательный размер медиа", "MS_MAX_MEDIA_SIZE", "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := minimalEnv()
			env[tt.key] = tt.val
			setupEnv(t, env)

			if _, err := Load(); err == nil {
				t.Errorf("Load() с %s=%q должен вернуть ошибку", tt.key, tt.val)
			}
		})
	}
}

// TestLoad_TLSPair проверяет, что TLS cert и key задаются только парой.
func TestLoad_TLSPair(t *testing.T) {
	env := minimalEnv()
	env["MS_TLS_CERT"] = "/etc/tls/cert.pem"
	setupEnv(t, env)

	if _, err := Load(); err == nil {
		t.Error("Load() с MS_TLS_CERT без MS_TLS_KEY должен вернуть ошибку")
	}
}

// TestLoad_WarnThresholdAboveBlock проверяет согласованность порогов similarity.
func TestLoad_WarnThresholdAboveBlock(t *testing.T) {
	env := minimalEnv()
	env["MS_SIMILARITY_WARN_THRESHOLD"] = "99"
	env["MS_SIMILARITY_BLOCK_THRESHOLD"] = "90"
	setupEnv(t, env)

	if _, err := Load(); err == nil {
		t.Error("Load() с warn > block должен вернуть ошибку")
	}
}

// TestLoad_Overrides проверяет переопределение значений по умолчанию.
func TestLoad_Overrides(t *testing.T) {
	env := minimalEnv()
	env["MS_PORT"] = "9035"
	env["MS_LOOKUP_MAX_ATTEMPTS"] = "5"
	env["MS_LOOKUP_DELAY"] = "500ms"
	env["MS_PROOF_ALGORITHM"] = "flat-sha256"
	env["MS_LEDGER_SIGNER_KEY"] = "test-signer-key"
	env["MS_LOG_FORMAT"] = "text"
	env["MS_LOG_LEVEL"] = "debug"
	setupEnv(t, env)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() ошибка: %v", err)
	}

	if cfg.Port != 9035 {
		t.Errorf("Port = %d, ожидался 9035", cfg.Port)
	}
	if cfg.LookupMaxAttempts != 5 {
		t.Errorf("LookupMaxAttempts = %d, ожидался 5", cfg.LookupMaxAttempts)
	}
	if cfg.LookupDelay != 500*time.Millisecond {
		t.Errorf("LookupDelay = %v, ожидалось 500ms", cfg.LookupDelay)
	}
	if cfg.ProofAlgorithm != "flat-sha256" {
		t.Errorf("ProofAlgorithm = %q, ожидался flat-sha256", cfg.ProofAlgorithm)
	}
	if cfg.LedgerSignerKey != "test-signer-key" {
		t.Errorf("LedgerSignerKey = %q, ожидался test-signer-key", cfg.LedgerSignerKey)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, ожидался debug", cfg.LogLevel)
	}
}
