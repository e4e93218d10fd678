package guard

import (
	"fmt"
	"sync"
	"time"
)

// Параметры репутационной модели.
const (
	// DefaultReputationFloor — балл, ниже которого регистрация блокируется.
	DefaultReputationFloor = 20
	// reputationWarnLevel — балл, ниже которого добавляется предупреждение.
	reputationWarnLevel = 40
	// reputationBase — стартовый балл нового создателя.
	reputationBase = 50
	// decayPeriod — период неактивности, за который списывается балл.
	decayPeriod = 30 * 24 * time.Hour
	// maxDecay — ограничение суммарного decay-штрафа.
	maxDecay = 15
)

// CreatorStats — счётчики активности создателя.
type CreatorStats struct {
	// Registrations — всего регистраций
	Registrations int
	// Verified — регистрации, прошедшие последующую верификацию
	Verified int
	// Challenges — оспаривания контента создателя
	Challenges int
	// ChallengesUpheld — подтверждённые оспаривания
	ChallengesUpheld int
	// LastActivity — момент последней активности
	LastActivity time.Time
}

// ReputationScore — чистая функция репутационного балла, всегда в [0,100].
//
// База 50, регистрации и верификации поднимают балл, оспаривания
// опускают, подтверждённые оспаривания опускают сильнее. Неактивность
// списывает по одному баллу за каждый полный decayPeriod, но не более
// maxDecay суммарно.
func ReputationScore(stats CreatorStats, now time.Time) int {
	score := reputationBase

	score += min(stats.Registrations, 10)
	score += min(stats.Verified*2, 30)
	score -= stats.Challenges * 5
	score -= stats.ChallengesUpheld * 10

	if !stats.LastActivity.IsZero() && now.After(stats.LastActivity) {
		periods := int(now.Sub(stats.LastActivity) / decayPeriod)
		score -= min(periods, maxDecay)
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// ReputationGuard ведёт репутационные счётчики по создателям.
// Как и хранилище сигнатур, состояние одноразовое и живёт в памяти.
type ReputationGuard struct {
	mu    sync.Mutex
	stats map[string]*CreatorStats
	floor int
	now   func() time.Time
}

// NewReputationGuard создаёт guard с порогом блокировки floor.
func NewReputationGuard(floor int) *ReputationGuard {
	return &ReputationGuard{
		stats: make(map[string]*CreatorStats),
		floor: floor,
		now:   time.Now,
	}
}

// WithNowFunc подменяет источник времени (для тестов).
func (g *ReputationGuard) WithNowFunc(now func() time.Time) *ReputationGuard {
	g.now = now
	return g
}

// Check вычисляет балл создателя и применяет порог блокировки.
// Блокировка только ниже floor; низкий, но проходной балл даёт
// предупреждение, поток продолжается.
func (g *ReputationGuard) Check(creator string) Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	score := reputationBase
	if s, ok := g.stats[creator]; ok {
		score = ReputationScore(*s, g.now())
	}

	if score < g.floor {
		return Verdict{
			Allowed: false,
			Score:   score,
			Warnings: []string{fmt.Sprintf(
				"репутация создателя ниже порога (балл %d)", score)},
		}
	}
	if score < reputationWarnLevel {
		return Verdict{
			Allowed: true,
			Score:   score,
			Warnings: []string{fmt.Sprintf(
				"низкая репутация создателя (балл %d)", score)},
		}
	}
	return Verdict{Allowed: true, Score: score}
}

// RecordRegistration учитывает успешную регистрацию создателя.
func (g *ReputationGuard) RecordRegistration(creator string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.lookup(creator)
	s.Registrations++
	s.LastActivity = g.now()
}

// RecordVerified учитывает верификацию контента создателя.
func (g *ReputationGuard) RecordVerified(creator string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.lookup(creator)
	s.Verified++
	s.LastActivity = g.now()
}

// RecordChallenge учитывает оспаривание контента создателя.
func (g *ReputationGuard) RecordChallenge(creator string, upheld bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.lookup(creator)
	s.Challenges++
	if upheld {
		s.ChallengesUpheld++
	}
	s.LastActivity = g.now()
}

// ScoreOf возвращает текущий балл создателя.
func (g *ReputationGuard) ScoreOf(creator string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.stats[creator]; ok {
		return ReputationScore(*s, g.now())
	}
	return reputationBase
}

func (g *ReputationGuard) lookup(creator string) *CreatorStats {
	s, ok := g.stats[creator]
	if !ok {
		s = &CreatorStats{}
		g.stats[creator] = s
	}
	return s
}
