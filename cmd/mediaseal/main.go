// Точка входа MediaSeal — сервиса контент-адресуемой аттестации медиа.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/bigkaa/mediaseal/internal/api/handlers"
	"github.com/bigkaa/mediaseal/internal/api/middleware"
	"github.com/bigkaa/mediaseal/internal/blobstore"
	"github.com/bigkaa/mediaseal/internal/config"
	"github.com/bigkaa/mediaseal/internal/guard"
	"github.com/bigkaa/mediaseal/internal/index"
	"github.com/bigkaa/mediaseal/internal/ledger"
	"github.com/bigkaa/mediaseal/internal/normalize"
	"github.com/bigkaa/mediaseal/internal/proof"
	"github.com/bigkaa/mediaseal/internal/server"
	"github.com/bigkaa/mediaseal/internal/service"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("MediaSeal запускается",
		slog.String("instance_id", cfg.InstanceID),
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("ledger_url", cfg.LedgerURL),
		slog.String("blob_store_url", cfg.BlobStoreURL),
	)

	// --- Инициализация компонентов ---

	// 1. Proof-движок
	engine, err := proof.NewEngine(cfg.ProofAlgorithm, cfg.ProofChunkSize)
	if err != nil {
		logger.Error("Ошибка инициализации proof-движка", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Proof-движок настроен",
		slog.String("algorithm", cfg.ProofAlgorithm),
		slog.Int("chunk_size", cfg.ProofChunkSize),
	)

	// 2. Нормализатор медиа
	normalizer := normalize.New(logger)

	// 3. Клиенты внешних систем
	ledgerClient := ledger.New(
		cfg.LedgerURL,
		cfg.LedgerSignerKey,
		cfg.LedgerTimeout,
		ledger.RetryPolicy{
			MaxAttempts: cfg.LookupMaxAttempts,
			Delay:       cfg.LookupDelay,
		},
		cfg.EventScanLimit,
		logger,
	)
	if cfg.LedgerSignerKey == "" {
		logger.Warn("Ключ подписи ledger не задан: регистрация будет недоступна, только верификация")
	}

	blobClient := blobstore.New(cfg.BlobStoreURL, cfg.BlobStoreTimeout, logger)

	// 4. In-memory индекс аттестаций
	idx := index.New(logger)

	// 5. Guard-ы и кэш
	similarity := guard.NewSimilarityGuard(cfg.SimilarityBlockThreshold, cfg.SimilarityWarnThreshold)
	reputation := guard.NewReputationGuard(cfg.ReputationFloor)
	cache := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL, logger)

	// 6. Сервисы
	registerSvc := service.NewRegisterService(
		normalizer, engine, ledgerClient, blobClient, idx, cache,
		similarity, reputation,
		cfg.DefaultCreator, cfg.MaxMediaSize, logger,
	)
	verifySvc := service.NewVerifyService(
		normalizer, engine, ledgerClient, blobClient, idx, cache,
		reputation, logger,
	)
	searchSvc := service.NewSearchService(idx, logger)

	// 7. Фоновые процессы
	ctx := context.Background()

	// 7.1 Bootstrap индекса из событий ledger
	bootstrapper := service.NewBootstrapper(ledgerClient, idx, cfg.IndexBootstrapEvents, logger)
	go bootstrapper.Run(ctx)

	// 7.2 topologymetrics — мониторинг зависимостей
	dephealthSvc, dephealthErr := service.NewDephealthService(
		cfg.InstanceID,
		cfg.DephealthGroup,
		cfg.LedgerURL,
		cfg.BlobStoreURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 8. Handlers
	healthHandler := handlers.NewHealthHandler(idx)
	apiHandler := handlers.NewAPIHandler(healthHandler, registerSvc, verifySvc, searchSvc, logger)

	// 9. Middleware: метрики, логирование, опциональный JWT
	middlewares := []func(http.Handler) http.Handler{
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	}

	var registerGuard func(http.Handler) http.Handler

	if cfg.JWKSUrl != "" {
		jwtAuth, jwtErr := middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSUrl,
			CACertPath:      cfg.JWKSCACert,
			ClientTimeout:   10 * time.Second,
			RefreshInterval: time.Hour,
			JWTLeeway:       time.Minute,
		}, logger)
		if jwtErr != nil {
			// JWT недоступен — запускаем без аутентификации (для разработки)
			logger.Warn("JWT JWKS недоступен, запуск без аутентификации",
				slog.String("jwks_url", cfg.JWKSUrl),
				slog.String("error", jwtErr.Error()),
			)
		} else {
			logger.Info("JWT аутентификация настроена",
				slog.String("jwks_url", cfg.JWKSUrl),
			)
			// Служебные endpoints и чтение остаются публичными
			middlewares = append(middlewares, server.JWTAuthWithExclusions(
				jwtAuth.Middleware(),
				"/health/", "/metrics",
				"/api/v1/verify", "/api/v1/search", "/api/v1/stats",
			))
			// Регистрация дополнительно требует scope в токене
			registerGuard = middleware.RequireScope(middleware.ScopeRegister)
		}
	}

	// 10. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, registerGuard, middlewares...)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("MediaSeal остановлен")
}
