package guard

import (
	"fmt"
	"strings"
	"testing"
)

// TestSimilarityScore_Identical проверяет максимальный балл для
// идентичных сигнатур.
func TestSimilarityScore_Identical(t *testing.T) {
	sig := NewSignature(1920, 1080, 500_000, "png", strings.Repeat("a", 64))
	if score := SimilarityScore(sig, sig); score != 100 {
		t.Errorf("score = %d, ожидалось 100", score)
	}
}

// TestSimilarityScore_Symmetry проверяет симметричность функции.
func TestSimilarityScore_Symmetry(t *testing.T) {
	a := NewSignature(1920, 1080, 500_000, "png", strings.Repeat("a", 64))
	b := NewSignature(640, 480, 80_000, "jpeg", strings.Repeat("b", 64))
	if SimilarityScore(a, b) != SimilarityScore(b, a) {
		t.Errorf("функция несимметрична: %d != %d", SimilarityScore(a, b), SimilarityScore(b, a))
	}
}

// TestSimilarityScore_Unrelated проверяет низкий балл для непохожего контента.
func TestSimilarityScore_Unrelated(t *testing.T) {
	a := NewSignature(1920, 1080, 500_000, "png", strings.Repeat("a", 64))
	b := NewSignature(100, 100, 3_000, "gif", strings.Repeat("f", 64))
	if score := SimilarityScore(a, b); score >= DefaultWarnThreshold {
		t.Errorf("score = %d, ожидалось меньше %d", score, DefaultWarnThreshold)
	}
}

// TestCheck_BlocksDuplicate проверяет блокировку почти идентичной загрузки.
func TestCheck_BlocksDuplicate(t *testing.T) {
	g := NewSimilarityGuard(DefaultBlockThreshold, DefaultWarnThreshold)
	sig := NewSignature(1920, 1080, 500_000, "png", strings.Repeat("a", 64))

	first := g.Check(sig)
	if !first.Allowed || len(first.Warnings) != 0 {
		t.Fatalf("первая загрузка: %+v", first)
	}
	g.Remember(sig)

	second := g.Check(sig)
	if second.Allowed {
		t.Errorf("повторная идентичная загрузка должна блокироваться: %+v", second)
	}
	if second.Score < DefaultBlockThreshold {
		t.Errorf("score = %d, ожидалось не меньше %d", second.Score, DefaultBlockThreshold)
	}
}

// TestCheck_WarnsOnSimilar проверяет предупреждение без блокировки
// для похожего, но не идентичного контента.
func TestCheck_WarnsOnSimilar(t *testing.T) {
	g := NewSimilarityGuard(DefaultBlockThreshold, DefaultWarnThreshold)

	base := NewSignature(1920, 1080, 500_000, "png", strings.Repeat("a", 64))
	g.Remember(base)

	// Совпадают геометрия, объём и формат; префикс хэша совпадает
	// в 10 символах из 16 → балл в warn-диапазоне
	similar := NewSignature(1920, 1080, 500_000, "png",
		strings.Repeat("a", 10)+strings.Repeat("b", 54))
	verdict := g.Check(similar)
	if !verdict.Allowed {
		t.Fatalf("похожая загрузка не должна блокироваться: %+v", verdict)
	}
	if len(verdict.Warnings) == 0 {
		t.Errorf("ожидалось предупреждение, verdict = %+v", verdict)
	}
}

// TestCheck_DoesNotRemember проверяет, что Check не изменяет хранилище:
// сигнатура попадает в окно только через Remember.
func TestCheck_DoesNotRemember(t *testing.T) {
	g := NewSimilarityGuard(DefaultBlockThreshold, DefaultWarnThreshold)
	sig := NewSignature(1920, 1080, 500_000, "png", strings.Repeat("a", 64))

	g.Check(sig)
	g.Check(sig)
	if n := len(g.signatures); n != 0 {
		t.Errorf("хранимых сигнатур = %d, ожидалось 0", n)
	}

	g.Remember(sig)
	if n := len(g.signatures); n != 1 {
		t.Errorf("хранимых сигнатур = %d, ожидалась 1", n)
	}
}

// TestRemember_Bounded проверяет вытеснение при переполнении хранилища.
func TestRemember_Bounded(t *testing.T) {
	g := NewSimilarityGuard(DefaultBlockThreshold, DefaultWarnThreshold)
	for i := 0; i < maxStoredSignatures+50; i++ {
		g.Remember(NewSignature(i, i, int64(i), "png",
			fmt.Sprintf("%064d", i)))
	}
	if n := len(g.signatures); n != maxStoredSignatures {
		t.Errorf("хранимых сигнатур = %d, ожидалось %d", n, maxStoredSignatures)
	}
}
