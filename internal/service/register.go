package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/mediaseal/internal/api/errors"
	"github.com/bigkaa/mediaseal/internal/blobstore"
	"github.com/bigkaa/mediaseal/internal/domain/model"
	"github.com/bigkaa/mediaseal/internal/domain/pipeline"
	"github.com/bigkaa/mediaseal/internal/guard"
	"github.com/bigkaa/mediaseal/internal/hasher"
	"github.com/bigkaa/mediaseal/internal/ledger"
	"github.com/bigkaa/mediaseal/internal/normalize"
	"github.com/bigkaa/mediaseal/internal/proof"
)

// Prometheus-метрики пайплайна регистрации.
var (
	registerPipelineTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ms_register_pipeline_total",
		Help: "Количество регистраций по результату.",
	}, []string{"result"})
	registerFailedStage = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ms_register_failed_stage_total",
		Help: "Количество отказов регистрации по стадии пайплайна.",
	}, []string{"stage"})
)

// LedgerClient — потребительский интерфейс ledger-клиента.
type LedgerClient interface {
	Register(ctx context.Context, params ledger.RegisterParams) (*ledger.RegisterResult, error)
	Lookup(ctx context.Context, contentHash string) (*model.Attestation, error)
	GetRecord(ctx context.Context, attestationID string) (*model.Attestation, error)
	QueryRecentEvents(ctx context.Context, limit int) ([]model.CreationEvent, error)
	IncrementVerification(ctx context.Context, attestationID string) (int64, error)
}

// BlobStore — потребительский интерфейс blob-хранилища.
type BlobStore interface {
	Put(ctx context.Context, env *blobstore.Envelope) (string, error)
	Get(ctx context.Context, blobID string) (*blobstore.Envelope, error)
}

// AttestationIndex — потребительский интерфейс индекса.
type AttestationIndex interface {
	Insert(entry *model.IndexEntry)
	GetByHash(contentHash string) *model.IndexEntry
	UpdateVerificationCount(attestationID string, count int64) error
}

// PipelineError — типизированная ошибка пайплайна регистрации.
// Несёт HTTP-статус, машинный код и стадию отказа; при частичном
// успехе (blob записан, ledger нет) дополнительно BlobRef и описание
// ошибки ledger.
type PipelineError struct {
	StatusCode  int
	Code        string
	Stage       pipeline.Stage
	Message     string
	Warnings    []string
	BlobRef     string
	LedgerError string
}

// Error реализует интерфейс error.
func (e *PipelineError) Error() string {
	return fmt.Sprintf("стадия %s: %s", e.Stage, e.Message)
}

// RegisterInput — параметры регистрации.
// Либо Data (сырые байты медиа), либо готовый ContentHash;
// при наличии обоих приоритет у Data.
type RegisterInput struct {
	Data        []byte
	ContentHash string
	Source      string
	MediaType   string
	AIGenerated bool
	Metadata    string
	Creator     string
}

// RegisterOutput — результат успешной регистрации.
type RegisterOutput struct {
	AttestationID string   `json:"attestation_id"`
	TxDigest      string   `json:"tx_digest"`
	ContentHash   string   `json:"content_hash"`
	BlobRef       string   `json:"blob_ref"`
	Creator       string   `json:"creator"`
	Warnings      []string `json:"warnings,omitempty"`
}

// RegisterService — оркестратор пайплайна регистрации.
type RegisterService struct {
	normalizer *normalize.Normalizer
	engine     *proof.Engine
	ledger     LedgerClient
	blobs      BlobStore
	index      AttestationIndex
	cache      *CacheService
	similarity *guard.SimilarityGuard
	reputation *guard.ReputationGuard

	defaultCreator string
	maxMediaSize   int64
	logger         *slog.Logger
	now            func() time.Time
}

// NewRegisterService создаёт оркестратор регистрации.
func NewRegisterService(
	normalizer *normalize.Normalizer,
	engine *proof.Engine,
	ledgerClient LedgerClient,
	blobs BlobStore,
	index AttestationIndex,
	cache *CacheService,
	similarity *guard.SimilarityGuard,
	reputation *guard.ReputationGuard,
	defaultCreator string,
	maxMediaSize int64,
	logger *slog.Logger,
) *RegisterService {
	return &RegisterService{
		normalizer:     normalizer,
		engine:         engine,
		ledger:         ledgerClient,
		blobs:          blobs,
		index:          index,
		cache:          cache,
		similarity:     similarity,
		reputation:     reputation,
		defaultCreator: defaultCreator,
		maxMediaSize:   maxMediaSize,
		logger:         logger.With(slog.String("component", "register_service")),
		now:            time.Now,
	}
}

// Register проводит регистрацию через все стадии пайплайна.
//
// Отказ на стадии ledger_writing после успешной загрузки blob-а
// не откатывает blob: хранилище не имеет транзакционной связи с
// ledger, пайплайн отчитывается о частичном успехе вместо компенсации.
func (s *RegisterService) Register(ctx context.Context, input RegisterInput) (*RegisterOutput, *PipelineError) {
	requestID := uuid.NewString()
	machine := pipeline.New()
	log := s.logger.With(slog.String("request_id", requestID))

	fail := func(statusCode int, code, message string) *PipelineError {
		stage := machine.Current()
		_ = machine.Fail(message)
		registerPipelineTotal.WithLabelValues("failed").Inc()
		registerFailedStage.WithLabelValues(string(stage)).Inc()
		log.Warn("Регистрация отклонена",
			slog.String("stage", string(stage)),
			slog.String("code", code),
			slog.String("reason", message),
		)
		return &PipelineError{
			StatusCode: statusCode,
			Code:       code,
			Stage:      stage,
			Message:    message,
		}
	}

	// --- validating: входные параметры, нормализация, хэширование ---

	mediaType, err := model.ParseMediaType(input.MediaType)
	if err != nil {
		return nil, fail(http.StatusBadRequest, apierrors.CodeValidationError, err.Error())
	}
	if len(input.Source) > model.MaxSourceLength {
		return nil, fail(http.StatusBadRequest, apierrors.CodeValidationError,
			fmt.Sprintf("source длиннее %d символов", model.MaxSourceLength))
	}

	creator := input.Creator
	if creator == "" {
		creator = s.defaultCreator
	}

	var (
		contentHash string
		payload     []byte
		normalized  *normalize.Result
	)
	switch {
	case len(input.Data) > 0:
		if int64(len(input.Data)) > s.maxMediaSize {
			return nil, fail(http.StatusBadRequest, apierrors.CodeValidationError,
				fmt.Sprintf("размер медиа превышает лимит %d байт", s.maxMediaSize))
		}
		// Нормализация только для изображений; остальные типы медиа
		// хэшируются как есть
		payload = input.Data
		if mediaType == model.MediaPhoto {
			normalized = s.normalizer.Image(input.Data)
			payload = normalized.Bytes
		}
		contentHash = hasher.Sum(payload)
	case input.ContentHash != "":
		if err := hasher.ValidateHex(input.ContentHash); err != nil {
			return nil, fail(http.StatusBadRequest, apierrors.CodeValidationError, err.Error())
		}
		contentHash = input.ContentHash
	default:
		return nil, fail(http.StatusBadRequest, apierrors.CodeValidationError,
			"требуется либо файл медиа, либо content_hash")
	}

	// --- guard_checking: advisory-эвристики ---

	if err := machine.Advance(pipeline.StageGuardChecking, ""); err != nil {
		return nil, fail(http.StatusInternalServerError, apierrors.CodeInternalError, err.Error())
	}

	var warnings []string

	repVerdict := s.reputation.Check(creator)
	if !repVerdict.Allowed {
		pe := fail(http.StatusUnprocessableEntity, apierrors.CodeGuardBlocked,
			"регистрация заблокирована репутационной проверкой")
		pe.Warnings = repVerdict.Warnings
		return nil, pe
	}
	warnings = append(warnings, repVerdict.Warnings...)

	// Сигнатура схожести доступна только при наличии сырых байтов.
	// Запоминается после успешной записи в ledger, не здесь.
	var (
		sig    guard.Signature
		hasSig bool
	)
	if payload != nil {
		width, height, format := 0, 0, ""
		if normalized != nil {
			width, height, format = normalized.Width, normalized.Height, normalized.SourceFormat
		}
		sig = guard.NewSignature(width, height, int64(len(payload)), format, contentHash)
		hasSig = true
		simVerdict := s.similarity.Check(sig)
		if !simVerdict.Allowed {
			pe := fail(http.StatusUnprocessableEntity, apierrors.CodeGuardBlocked,
				"регистрация заблокирована проверкой схожести")
			pe.Warnings = simVerdict.Warnings
			return nil, pe
		}
		warnings = append(warnings, simVerdict.Warnings...)
	}

	// --- proof_generating ---

	if err := machine.Advance(pipeline.StageProofGenerating, ""); err != nil {
		return nil, fail(http.StatusInternalServerError, apierrors.CodeInternalError, err.Error())
	}

	// Без сырых байтов proof построить не из чего; конверт уйдёт без него
	var proofRecord *model.ProofRecord
	if payload != nil {
		proofRecord = s.engine.Generate(payload)
	}

	// --- blob_uploading ---

	if err := machine.Advance(pipeline.StageBlobUploading, ""); err != nil {
		return nil, fail(http.StatusInternalServerError, apierrors.CodeInternalError, err.Error())
	}

	blobRef, err := s.blobs.Put(ctx, &blobstore.Envelope{
		Metadata: input.Metadata,
		Proof:    proofRecord,
	})
	if err != nil {
		return nil, fail(http.StatusBadGateway, apierrors.CodeUpstreamUnavailable,
			fmt.Sprintf("загрузка в blob-хранилище: %v", err))
	}

	// --- ledger_writing ---

	if err := machine.Advance(pipeline.StageLedgerWriting, ""); err != nil {
		return nil, fail(http.StatusInternalServerError, apierrors.CodeInternalError, err.Error())
	}

	result, err := s.ledger.Register(ctx, ledger.RegisterParams{
		ContentHash: contentHash,
		BlobRef:     blobRef,
		Source:      input.Source,
		MediaType:   mediaType,
		AIGenerated: input.AIGenerated,
		Metadata:    input.Metadata,
		Creator:     creator,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrAlreadyExists) {
			return nil, fail(http.StatusConflict, apierrors.CodeAlreadyExists,
				"контент с таким хэшем уже зарегистрирован")
		}
		// Частичный успех: blob записан, запись в ledger не прошла
		pe := fail(http.StatusBadGateway, apierrors.CodeUpstreamUnavailable,
			"blob сохранён, но запись в ledger не выполнена")
		pe.BlobRef = blobRef
		pe.LedgerError = err.Error()
		return nil, pe
	}

	// --- indexing ---

	if err := machine.Advance(pipeline.StageIndexing, ""); err != nil {
		return nil, fail(http.StatusInternalServerError, apierrors.CodeInternalError, err.Error())
	}

	// Ledger может переписать creator на подтверждённый адрес подписанта
	confirmedCreator := result.Creator
	if confirmedCreator == "" {
		confirmedCreator = creator
	}

	att := &model.Attestation{
		AttestationID: result.AttestationID,
		ContentHash:   contentHash,
		BlobRef:       blobRef,
		Creator:       confirmedCreator,
		Source:        input.Source,
		MediaType:     mediaType,
		AIGenerated:   input.AIGenerated,
		Metadata:      input.Metadata,
		CreatedAt:     s.now().UTC(),
	}
	s.index.Insert(model.EntryFromAttestation(att))
	s.cache.Set(att)
	s.reputation.RecordRegistration(confirmedCreator)

	// Окно схожести пополняется только подтверждёнными регистрациями:
	// отказ на blob_uploading или ledger_writing не должен занимать окно
	if hasSig {
		s.similarity.Remember(sig)
	}

	if err := machine.Advance(pipeline.StageDone, ""); err != nil {
		return nil, fail(http.StatusInternalServerError, apierrors.CodeInternalError, err.Error())
	}

	registerPipelineTotal.WithLabelValues("ok").Inc()
	log.Info("Регистрация завершена",
		slog.String("attestation_id", result.AttestationID),
		slog.String("content_hash", contentHash),
		slog.String("creator", confirmedCreator),
	)

	return &RegisterOutput{
		AttestationID: result.AttestationID,
		TxDigest:      result.TxID,
		ContentHash:   contentHash,
		BlobRef:       blobRef,
		Creator:       confirmedCreator,
		Warnings:      warnings,
	}, nil
}
