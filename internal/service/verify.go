package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/mediaseal/internal/api/errors"
	"github.com/bigkaa/mediaseal/internal/blobstore"
	"github.com/bigkaa/mediaseal/internal/domain/model"
	"github.com/bigkaa/mediaseal/internal/guard"
	"github.com/bigkaa/mediaseal/internal/hasher"
	"github.com/bigkaa/mediaseal/internal/ledger"
	"github.com/bigkaa/mediaseal/internal/normalize"
	"github.com/bigkaa/mediaseal/internal/proof"
)

// Статусы верификации.
const (
	// StatusVerified — контент найден, целостность подтверждена.
	StatusVerified = "verified"
	// StatusUnknown — контент не зарегистрирован.
	StatusUnknown = "unknown"
	// StatusTampered — контент найден, но proof не сошёлся.
	StatusTampered = "tampered"
)

var verifyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ms_verify_total",
	Help: "Количество верификаций по статусу.",
}, []string{"status"})

// VerifyInput — параметры верификации: сырые байты либо готовый хэш.
type VerifyInput struct {
	Data        []byte
	ContentHash string
}

// VerifyOutput — результат верификации.
//
// StatusUnknown и StatusTampered — валидные ответы, а не ошибки:
// обращение «этот контент не зарегистрирован» или «контент изменён» —
// штатный результат работы системы.
type VerifyOutput struct {
	Status      string             `json:"status"`
	ContentHash string             `json:"content_hash"`
	// Reason — машиночитаемый код причины для статуса tampered
	Reason      string             `json:"reason,omitempty"`
	Attestation *model.Attestation `json:"attestation,omitempty"`
}

// VerifyService — оркестратор пайплайна верификации.
type VerifyService struct {
	normalizer *normalize.Normalizer
	engine     *proof.Engine
	ledger     LedgerClient
	blobs      BlobStore
	index      AttestationIndex
	cache      *CacheService
	reputation *guard.ReputationGuard
	logger     *slog.Logger
}

// NewVerifyService создаёт оркестратор верификации.
func NewVerifyService(
	normalizer *normalize.Normalizer,
	engine *proof.Engine,
	ledgerClient LedgerClient,
	blobs BlobStore,
	index AttestationIndex,
	cache *CacheService,
	reputation *guard.ReputationGuard,
	logger *slog.Logger,
) *VerifyService {
	return &VerifyService{
		normalizer: normalizer,
		engine:     engine,
		ledger:     ledgerClient,
		blobs:      blobs,
		index:      index,
		cache:      cache,
		reputation: reputation,
		logger:     logger.With(slog.String("component", "verify_service")),
	}
}

// Verify проверяет регистрацию контента: нормализация → хэш → lookup
// в ledger (с кэшем) → чтение конверта из blob-хранилища → проверка
// proof. Тип медиа при верификации неизвестен, поэтому для байтов,
// прошедших нормализацию, промах по нормализованному хэшу повторяет
// lookup по хэшу исходных байтов: так находится контент,
// зарегистрированный не как изображение. Несовпадение proof
// трактуется строго: статус tampered, без инкремента счётчика.
func (s *VerifyService) Verify(ctx context.Context, input VerifyInput) (*VerifyOutput, *PipelineError) {
	var (
		contentHash string
		payload     []byte
		rawHash     string
	)
	switch {
	case len(input.Data) > 0:
		normalized := s.normalizer.Image(input.Data)
		payload = normalized.Bytes
		contentHash = hasher.Sum(payload)
		// Контент, зарегистрированный не как изображение, хэшировался
		// без нормализации; хэш исходных байтов — запасной ключ lookup-а
		if normalized.Normalized {
			rawHash = hasher.Sum(input.Data)
		}
	case input.ContentHash != "":
		if err := hasher.ValidateHex(input.ContentHash); err != nil {
			return nil, &PipelineError{
				StatusCode: http.StatusBadRequest,
				Code:       apierrors.CodeValidationError,
				Message:    err.Error(),
			}
		}
		contentHash = input.ContentHash
	default:
		return nil, &PipelineError{
			StatusCode: http.StatusBadRequest,
			Code:       apierrors.CodeValidationError,
			Message:    "требуется либо файл медиа, либо content_hash",
		}
	}

	att, pe := s.resolve(ctx, contentHash)
	if pe != nil {
		return nil, pe
	}
	if att == nil && rawHash != "" && rawHash != contentHash {
		if att, pe = s.resolve(ctx, rawHash); pe != nil {
			return nil, pe
		}
		if att != nil {
			contentHash = rawHash
			payload = input.Data
		}
	}
	if att == nil {
		verifyTotal.WithLabelValues(StatusUnknown).Inc()
		return &VerifyOutput{Status: StatusUnknown, ContentHash: contentHash}, nil
	}

	// Проверка целостности по конверту возможна только при наличии
	// сырых байтов: хэш сам по себе proof не пересчитает
	if payload != nil && att.BlobRef != "" {
		env, err := s.blobs.Get(ctx, att.BlobRef)
		switch {
		case err == nil:
			if env.Proof != nil {
				if verr := s.engine.Verify(payload, env.Proof); verr != nil {
					if !errors.Is(verr, proof.ErrRootMismatch) {
						s.logger.Warn("Проверка proof завершилась ошибкой",
							slog.String("content_hash", contentHash),
							slog.String("error", verr.Error()),
						)
					}
					verifyTotal.WithLabelValues(StatusTampered).Inc()
					return &VerifyOutput{
						Status:      StatusTampered,
						ContentHash: contentHash,
						Reason:      apierrors.CodeIntegrityMismatch,
						Attestation: att,
					}, nil
				}
			}
		case errors.Is(err, blobstore.ErrNotFound):
			// Конверт утерян: целостность по proof недоказуема
			verifyTotal.WithLabelValues(StatusTampered).Inc()
			s.logger.Warn("Конверт аттестации отсутствует в blob-хранилище",
				slog.String("blob_ref", att.BlobRef),
			)
			return &VerifyOutput{
				Status:      StatusTampered,
				ContentHash: contentHash,
				Reason:      apierrors.CodeIntegrityMismatch,
				Attestation: att,
			}, nil
		default:
			return nil, &PipelineError{
				StatusCode: http.StatusBadGateway,
				Code:       apierrors.CodeUpstreamUnavailable,
				Message:    fmt.Sprintf("чтение конверта из blob-хранилища: %v", err),
			}
		}
	}

	// Инкремент счётчика best-effort: сбой не отменяет вердикт
	if count, err := s.ledger.IncrementVerification(ctx, att.AttestationID); err != nil {
		s.logger.Warn("Инкремент счётчика верификаций не выполнен",
			slog.String("attestation_id", att.AttestationID),
			slog.String("error", err.Error()),
		)
	} else {
		att.VerificationCount = count
		if ierr := s.index.UpdateVerificationCount(att.AttestationID, count); ierr != nil {
			s.logger.Debug("Запись отсутствует в индексе",
				slog.String("attestation_id", att.AttestationID),
			)
		}
		s.cache.Set(att)
	}

	s.reputation.RecordVerified(att.Creator)

	verifyTotal.WithLabelValues(StatusVerified).Inc()
	return &VerifyOutput{
		Status:      StatusVerified,
		ContentHash: contentHash,
		Attestation: att,
	}, nil
}

// resolve находит аттестацию по хэшу: кэш → ledger с retry-политикой.
// Возвращает (nil, nil), если контент не зарегистрирован.
func (s *VerifyService) resolve(ctx context.Context, contentHash string) (*model.Attestation, *PipelineError) {
	if att, ok := s.cache.Get(contentHash); ok {
		return att, nil
	}

	att, err := s.ledger.Lookup(ctx, contentHash)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, nil
		}
		return nil, &PipelineError{
			StatusCode: http.StatusBadGateway,
			Code:       apierrors.CodeUpstreamUnavailable,
			Message:    fmt.Sprintf("lookup в ledger: %v", err),
		}
	}

	s.cache.Set(att)
	return att, nil
}
