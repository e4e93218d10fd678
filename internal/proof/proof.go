// Пакет proof — генерация и верификация целостностного дайджеста контента.
//
// Merkle-стиль: данные режутся на чанки фиксированного размера, каждый
// чанк хэшируется SHA-256, пары хэшей сворачиваются снизу вверх до
// единственного корня. Дайджест меняется при изменении любого байта
// входа (лавинный эффект SHA-256).
//
// Это whole-data дайджест, не селективный inclusion proof: per-chunk
// пути членства не строятся и не проверяются.
package proof

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/bigkaa/mediaseal/internal/domain/model"
)

// DefaultChunkSize — размер чанка по умолчанию (байт).
const DefaultChunkSize = 1024

// Теги алгоритмов. Стратегия выбирается один раз при конструировании
// Engine, per-call переключение не поддерживается.
const (
	// AlgorithmMerkle — бинарное дерево SHA-256 над чанками
	AlgorithmMerkle = "merkle-sha256"
	// AlgorithmFlat — одиночный SHA-256 по всему буферу (без чанкования)
	AlgorithmFlat = "flat-sha256"
)

// ErrRootMismatch — корень proof не совпал с пересчитанным.
var ErrRootMismatch = errors.New("корень proof не совпадает с пересчитанным")

// Engine — движок генерации/верификации proof-ов.
// Алгоритм и размер чанка фиксируются при создании.
type Engine struct {
	algorithm string
	chunkSize int
}

// NewEngine создаёт движок с указанным алгоритмом и размером чанка.
// chunkSize <= 0 заменяется на DefaultChunkSize.
func NewEngine(algorithm string, chunkSize int) (*Engine, error) {
	switch algorithm {
	case AlgorithmMerkle, AlgorithmFlat:
	default:
		return nil, fmt.Errorf("неизвестный алгоритм proof %q, допустимые: %s, %s",
			algorithm, AlgorithmMerkle, AlgorithmFlat)
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Engine{algorithm: algorithm, chunkSize: chunkSize}, nil
}

// Algorithm возвращает тег алгоритма движка.
func (e *Engine) Algorithm() string {
	return e.algorithm
}

// Generate строит ProofRecord для данных.
// Детерминирован по (data, chunkSize), кроме поля Timestamp.
func (e *Engine) Generate(data []byte) *model.ProofRecord {
	root, chunkCount := e.computeRoot(data, e.chunkSize)
	return &model.ProofRecord{
		Root:       root,
		ChunkCount: chunkCount,
		ChunkSize:  e.chunkSize,
		Algorithm:  e.algorithm,
		Timestamp:  time.Now().UTC(),
	}
}

// Verify пересчитывает корень по представленным данным с размером чанка
// из оригинального proof и сравнивает на равенство.
// Возвращает ErrRootMismatch при расхождении.
func (e *Engine) Verify(data []byte, record *model.ProofRecord) error {
	if record == nil {
		return errors.New("proof record отсутствует")
	}
	if record.ChunkSize <= 0 {
		return fmt.Errorf("некорректный chunk_size в proof: %d", record.ChunkSize)
	}

	var root string
	switch record.Algorithm {
	case AlgorithmMerkle:
		root, _ = merkleRoot(data, record.ChunkSize)
	case AlgorithmFlat:
		root, _ = flatRoot(data)
	default:
		return fmt.Errorf("неизвестный алгоритм proof %q", record.Algorithm)
	}

	if root != record.Root {
		return ErrRootMismatch
	}
	return nil
}

// computeRoot считает корень по стратегии движка.
func (e *Engine) computeRoot(data []byte, chunkSize int) (string, int) {
	if e.algorithm == AlgorithmFlat {
		return flatRoot(data)
	}
	return merkleRoot(data, chunkSize)
}

// flatRoot — одиночный SHA-256 по всему буферу.
func flatRoot(data []byte) (string, int) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), 1
}

// merkleRoot строит бинарное дерево хэшей снизу вверх.
// Последний чанк может быть короче chunkSize. При нечётном количестве
// узлов на уровне последний узел дублируется. Пустой вход считается
// одним пустым чанком.
func merkleRoot(data []byte, chunkSize int) (string, int) {
	// Хэши листьев
	var level [][32]byte
	if len(data) == 0 {
		level = append(level, sha256.Sum256(nil))
	} else {
		for off := 0; off < len(data); off += chunkSize {
			end := off + chunkSize
			if end > len(data) {
				end = len(data)
			}
			level = append(level, sha256.Sum256(data[off:end]))
		}
	}
	chunkCount := len(level)

	// Свёртка уровней до корня
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][32]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			pair := make([]byte, 0, 64)
			pair = append(pair, level[i][:]...)
			pair = append(pair, level[i+1][:]...)
			next = append(next, sha256.Sum256(pair))
		}
		level = next
	}

	return hex.EncodeToString(level[0][:]), chunkCount
}
