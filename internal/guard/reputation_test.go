package guard

import (
	"testing"
	"time"
)

var guardNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// TestReputationScore_NewCreator проверяет стартовый балл.
func TestReputationScore_NewCreator(t *testing.T) {
	if score := ReputationScore(CreatorStats{}, guardNow); score != reputationBase {
		t.Errorf("score = %d, ожидался %d", score, reputationBase)
	}
}

// TestReputationScore_Bounds проверяет границы [0,100].
func TestReputationScore_Bounds(t *testing.T) {
	high := CreatorStats{Registrations: 100, Verified: 100, LastActivity: guardNow}
	if score := ReputationScore(high, guardNow); score > 100 {
		t.Errorf("score = %d, выход за верхнюю границу", score)
	}

	low := CreatorStats{Challenges: 20, ChallengesUpheld: 20, LastActivity: guardNow}
	if score := ReputationScore(low, guardNow); score < 0 {
		t.Errorf("score = %d, выход за нижнюю границу", score)
	}
}

// TestReputationScore_Decay проверяет штраф за неактивность.
func TestReputationScore_Decay(t *testing.T) {
	stats := CreatorStats{
		Registrations: 5,
		LastActivity:  guardNow.Add(-100 * 24 * time.Hour),
	}
	active := ReputationScore(CreatorStats{Registrations: 5, LastActivity: guardNow}, guardNow)
	decayed := ReputationScore(stats, guardNow)
	// 100 дней неактивности — три полных decay-периода
	if decayed != active-3 {
		t.Errorf("decayed = %d, ожидалось %d", decayed, active-3)
	}
}

// TestReputationScore_DecayCapped проверяет ограничение decay-штрафа.
func TestReputationScore_DecayCapped(t *testing.T) {
	stats := CreatorStats{
		LastActivity: guardNow.Add(-10 * 365 * 24 * time.Hour),
	}
	if score := ReputationScore(stats, guardNow); score != reputationBase-maxDecay {
		t.Errorf("score = %d, ожидался %d", score, reputationBase-maxDecay)
	}
}

// TestReputationCheck_NewCreatorAllowed проверяет, что новый создатель
// проходит без предупреждений.
func TestReputationCheck_NewCreatorAllowed(t *testing.T) {
	g := NewReputationGuard(DefaultReputationFloor)
	verdict := g.Check("0xnew")
	if !verdict.Allowed || len(verdict.Warnings) != 0 {
		t.Errorf("verdict = %+v", verdict)
	}
}

// TestReputationCheck_BlocksBelowFloor проверяет блокировку создателя
// с подтверждёнными оспариваниями.
func TestReputationCheck_BlocksBelowFloor(t *testing.T) {
	g := NewReputationGuard(DefaultReputationFloor).
		WithNowFunc(func() time.Time { return guardNow })

	// Четыре подтверждённых оспаривания: 50 - 4*5 - 4*10 = 0
	for i := 0; i < 4; i++ {
		g.RecordChallenge("0xbad", true)
	}

	verdict := g.Check("0xbad")
	if verdict.Allowed {
		t.Errorf("создатель ниже порога должен блокироваться: %+v", verdict)
	}
	if verdict.Score >= DefaultReputationFloor {
		t.Errorf("score = %d, ожидалось меньше %d", verdict.Score, DefaultReputationFloor)
	}
}

// TestReputationCheck_WarnsOnLowScore проверяет предупреждение для
// низкого, но проходного балла.
func TestReputationCheck_WarnsOnLowScore(t *testing.T) {
	g := NewReputationGuard(DefaultReputationFloor).
		WithNowFunc(func() time.Time { return guardNow })

	// Три неподтверждённых оспаривания: 50 - 3*5 = 35, выше floor, ниже warn
	for i := 0; i < 3; i++ {
		g.RecordChallenge("0xrisky", false)
	}

	verdict := g.Check("0xrisky")
	if !verdict.Allowed {
		t.Fatalf("создатель выше порога не должен блокироваться: %+v", verdict)
	}
	if len(verdict.Warnings) == 0 {
		t.Errorf("ожидалось предупреждение, verdict = %+v", verdict)
	}
}

// TestReputation_VerifiedRaisesScore проверяет рост балла от верификаций.
func TestReputation_VerifiedRaisesScore(t *testing.T) {
	g := NewReputationGuard(DefaultReputationFloor).
		WithNowFunc(func() time.Time { return guardNow })

	before := g.ScoreOf("0xgood")
	g.RecordRegistration("0xgood")
	g.RecordVerified("0xgood")
	after := g.ScoreOf("0xgood")
	if after <= before {
		t.Errorf("балл не вырос: %d -> %d", before, after)
	}
}
