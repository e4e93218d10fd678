// Пакет model — доменные модели MediaSeal.
// Attestation — запись аттестации в ledger, ProofRecord — целостностный
// дайджест контента, IndexEntry — денормализованная проекция для индекса.
package model

import (
	"fmt"
	"time"
)

// MediaType — тип медиа-контента.
type MediaType string

const (
	// MediaPhoto — изображение
	MediaPhoto MediaType = "photo"
	// MediaVideo — видео
	MediaVideo MediaType = "video"
	// MediaDocument — документ
	MediaDocument MediaType = "document"
	// MediaAudio — аудио
	MediaAudio MediaType = "audio"
)

// ParseMediaType валидирует строку и возвращает MediaType.
// Возвращает ошибку для неизвестных значений.
func ParseMediaType(s string) (MediaType, error) {
	switch MediaType(s) {
	case MediaPhoto, MediaVideo, MediaDocument, MediaAudio:
		return MediaType(s), nil
	default:
		return "", fmt.Errorf("неизвестный media_type %q, допустимые: photo, video, document, audio", s)
	}
}

// MaxSourceLength — максимальная длина поля source.
const MaxSourceLength = 100

// Attestation — запись аттестации контента.
// Создаётся только через успешную запись в ledger; неизменяема,
// кроме счётчика верификаций (мутируется только через verify).
type Attestation struct {
	// AttestationID — адрес записи, назначенный ledger-ом
	AttestationID string `json:"attestation_id"`

	// ContentHash — SHA-256 хэш нормализованного контента (64 hex-символа)
	ContentHash string `json:"content_hash"`

	// BlobRef — непрозрачный указатель на metadata+proof в blob-хранилище
	BlobRef string `json:"blob_ref"`

	// Creator — идентификатор создателя (account identity)
	Creator string `json:"creator"`

	// Source — источник контента (свободный текст, до 100 символов)
	Source string `json:"source"`

	// MediaType — тип медиа
	MediaType MediaType `json:"media_type"`

	// AIGenerated — флаг AI-сгенерированного контента
	AIGenerated bool `json:"ai_generated"`

	// Metadata — непрозрачный блоб метаданных (может содержать встроенный proof)
	Metadata string `json:"metadata,omitempty"`

	// VerificationCount — монотонно возрастающий счётчик верификаций
	VerificationCount int64 `json:"verification_count"`

	// CreatedAt — время создания записи (UTC)
	CreatedAt time.Time `json:"created_at"`
}

// ProofRecord — целостностный дайджест контента.
// Строится детерминированно из байтов контента и размера чанка;
// после создания не мутируется. Сравнение — по равенству Root.
type ProofRecord struct {
	// Root — корневой хэш (64 hex-символа)
	Root string `json:"root"`

	// ChunkCount — количество чанков
	ChunkCount int `json:"chunk_count"`

	// ChunkSize — размер чанка в байтах
	ChunkSize int `json:"chunk_size"`

	// Algorithm — тег алгоритма (merkle-sha256, flat-sha256)
	Algorithm string `json:"algorithm"`

	// Timestamp — время генерации proof (UTC)
	Timestamp time.Time `json:"timestamp"`
}

// Equal сравнивает два proof-а по корневому хэшу.
func (p *ProofRecord) Equal(other *ProofRecord) bool {
	return p.Root == other.Root
}

// IndexEntry — денормализованная проекция Attestation для индекса.
// Принадлежит исключительно индексу; пересобирается в любой момент
// из событий создания ledger. Кэш, не источник истины.
type IndexEntry struct {
	// AttestationID — адрес записи в ledger
	AttestationID string `json:"attestation_id"`

	// ContentHash — первичный ключ индекса
	ContentHash string `json:"content_hash"`

	// Creator — ключ вторичного индекса по создателю
	Creator string `json:"creator"`

	// Source — ключ вторичного индекса по источнику
	Source string `json:"source"`

	// MediaType — тип медиа для фильтрации
	MediaType MediaType `json:"media_type"`

	// AIGenerated — флаг для фильтрации
	AIGenerated bool `json:"ai_generated"`

	// VerificationCount — денормализованная копия счётчика
	VerificationCount int64 `json:"verification_count"`

	// CreatedAt — время создания для сортировки по recency
	CreatedAt time.Time `json:"created_at"`
}

// EntryFromAttestation строит IndexEntry из Attestation.
func EntryFromAttestation(att *Attestation) *IndexEntry {
	return &IndexEntry{
		AttestationID:     att.AttestationID,
		ContentHash:       att.ContentHash,
		Creator:           att.Creator,
		Source:            att.Source,
		MediaType:         att.MediaType,
		AIGenerated:       att.AIGenerated,
		VerificationCount: att.VerificationCount,
		CreatedAt:         att.CreatedAt,
	}
}

// CreationEvent — событие создания аттестации, эмитируемое ledger-ом.
// Используется fallback-поиском и bootstrap-репликацией индекса.
type CreationEvent struct {
	// AttestationID — назначенный адрес записи
	AttestationID string `json:"attestation_id"`

	// ContentHash — хэш зарегистрированного контента
	ContentHash string `json:"content_hash"`

	// Creator — адрес создателя
	Creator string `json:"creator"`

	// TimestampMs — время события в миллисекундах Unix
	TimestampMs int64 `json:"timestamp_ms"`
}
