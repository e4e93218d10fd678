// Пакет guard — эвристические анти-абьюзные проверки перед записью.
//
// Оба guard-а — advisory-эвристики, а не криптографические гарантии:
// они дополняют проверку целостности, но никогда не заменяют её.
// Чистые score-функции отделены от политики порогов, чтобы их можно
// было тестировать независимо.
package guard

import (
	"fmt"
	"sync"
)

// Пороги схожести по умолчанию.
const (
	// DefaultBlockThreshold — схожесть, блокирующая регистрацию.
	DefaultBlockThreshold = 95
	// DefaultWarnThreshold — схожесть, добавляющая предупреждение.
	DefaultWarnThreshold = 85

	// signatureHashPrefixLen — длина префикса content_hash в сигнатуре.
	signatureHashPrefixLen = 16
	// maxStoredSignatures — ограничение памяти на хранимые сигнатуры.
	maxStoredSignatures = 1000
)

// Signature — грубая перцептивная сигнатура медиа-контента.
//
// Сознательно дешёвая: размеры, объём, формат и префикс хэша.
// Этого достаточно для отлова массовой повторной загрузки почти
// идентичного контента, но не для полноценного perceptual hashing.
type Signature struct {
	Width      int
	Height     int
	Size       int64
	Format     string
	HashPrefix string
}

// NewSignature строит сигнатуру из параметров нормализованного медиа.
func NewSignature(width, height int, size int64, format, contentHash string) Signature {
	prefix := contentHash
	if len(prefix) > signatureHashPrefixLen {
		prefix = prefix[:signatureHashPrefixLen]
	}
	return Signature{
		Width:      width,
		Height:     height,
		Size:       size,
		Format:     format,
		HashPrefix: prefix,
	}
}

// SimilarityScore — чистая функция схожести двух сигнатур, 0–100.
//
// Взвешенная сумма покомпонентных расстояний в стиле Хэмминга:
// префикс хэша 40, близость размеров 30, близость объёма 20,
// совпадение формата 10. Симметрична: Score(a,b) == Score(b,a).
func SimilarityScore(a, b Signature) int {
	score := 0

	// Префикс хэша: по 1/16 веса за каждый совпавший символ
	matched := 0
	n := min(len(a.HashPrefix), len(b.HashPrefix))
	for i := 0; i < n; i++ {
		if a.HashPrefix[i] == b.HashPrefix[i] {
			matched++
		}
	}
	if n > 0 {
		score += 40 * matched / signatureHashPrefixLen
	}

	// Близость геометрии: относительное отклонение площади
	score += 30 * proximity(int64(a.Width)*int64(a.Height), int64(b.Width)*int64(b.Height))

	// Близость объёма в байтах
	score += 20 * proximity(a.Size, b.Size)

	if a.Format != "" && a.Format == b.Format {
		score += 10
	}
	return score
}

// proximity возвращает 1, если значения отличаются не более чем на 5%,
// иначе 0. Грубая метрика, интегральные веса остаются целыми.
func proximity(a, b int64) int {
	if a == 0 && b == 0 {
		return 1
	}
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo <= 0 {
		return 0
	}
	// |a-b|/max <= 5%
	if (hi-lo)*20 <= hi {
		return 1
	}
	return 0
}

// Verdict — решение guard-а.
type Verdict struct {
	// Allowed — регистрация разрешена
	Allowed bool
	// Warnings — advisory-предупреждения, прикрепляемые к ответу
	Warnings []string
	// Score — максимальная найденная схожесть либо репутационный балл
	Score int
}

// SimilarityGuard хранит сигнатуры недавних регистраций и сравнивает
// новые загрузки с ними. Хранилище ограничено и одноразово: после
// рестарта guard начинает с чистого листа, это допустимо для
// advisory-эвристики.
type SimilarityGuard struct {
	mu             sync.Mutex
	signatures     []Signature
	blockThreshold int
	warnThreshold  int
}

// NewSimilarityGuard создаёт guard с порогами блокировки и предупреждения.
func NewSimilarityGuard(blockThreshold, warnThreshold int) *SimilarityGuard {
	return &SimilarityGuard{
		signatures:     make([]Signature, 0, maxStoredSignatures),
		blockThreshold: blockThreshold,
		warnThreshold:  warnThreshold,
	}
}

// Check сравнивает сигнатуру со всеми сохранёнными и применяет пороги.
// Хранилище не изменяет: сигнатуру запоминает вызывающий код через
// Remember после того, как регистрация действительно состоялась.
func (g *SimilarityGuard) Check(sig Signature) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	maxScore := 0
	for _, prior := range g.signatures {
		if s := SimilarityScore(sig, prior); s > maxScore {
			maxScore = s
		}
	}

	if maxScore >= g.blockThreshold {
		return Verdict{
			Allowed: false,
			Score:   maxScore,
			Warnings: []string{fmt.Sprintf(
				"контент слишком похож на ранее зарегистрированный (схожесть %d)", maxScore)},
		}
	}

	if maxScore >= g.warnThreshold {
		return Verdict{
			Allowed: true,
			Score:   maxScore,
			Warnings: []string{fmt.Sprintf(
				"контент похож на ранее зарегистрированный (схожесть %d)", maxScore)},
		}
	}
	return Verdict{Allowed: true, Score: maxScore}
}

// Remember добавляет сигнатуру подтверждённой регистрации,
// вытесняя самую старую при переполнении. Регистрации, отклонённые
// guard-ом или отказавшие дальше по пайплайну, окно не занимают.
func (g *SimilarityGuard) Remember(sig Signature) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.signatures) >= maxStoredSignatures {
		g.signatures = g.signatures[1:]
	}
	g.signatures = append(g.signatures, sig)
}
