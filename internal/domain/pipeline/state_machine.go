// Пакет pipeline — конечный автомат стадий регистрации.
//
// Линейный pipeline:
//
//	validating → guard_checking → proof_generating → blob_uploading →
//	ledger_writing → indexing → done
//
// Из любой стадии возможен переход в failed. Особый случай —
// отказ на ledger_writing после успешного blob_uploading: откат
// blob-записи не выполняется (хранилища не связаны транзакционно),
// pipeline фиксирует partial-результат.
//
// Один экземпляр — одна регистрация; создаётся на каждый запрос.
package pipeline

import (
	"fmt"
	"time"
)

// Stage — стадия pipeline регистрации.
type Stage string

const (
	// StageValidating — валидация входных данных
	StageValidating Stage = "validating"
	// StageGuardChecking — эвристические guard-проверки
	StageGuardChecking Stage = "guard_checking"
	// StageProofGenerating — генерация целостностного proof
	StageProofGenerating Stage = "proof_generating"
	// StageBlobUploading — загрузка metadata+proof в blob-хранилище
	StageBlobUploading Stage = "blob_uploading"
	// StageLedgerWriting — запись транзакции в ledger
	StageLedgerWriting Stage = "ledger_writing"
	// StageIndexing — обновление локального индекса
	StageIndexing Stage = "indexing"
	// StageDone — регистрация завершена
	StageDone Stage = "done"
	// StageFailed — pipeline прерван
	StageFailed Stage = "failed"
)

// validTransitions — матрица допустимых переходов.
// Pipeline линейный; из каждой рабочей стадии возможен переход
// либо в следующую, либо в failed.
var validTransitions = map[Stage]map[Stage]bool{
	StageValidating:      {StageGuardChecking: true, StageFailed: true},
	StageGuardChecking:   {StageProofGenerating: true, StageFailed: true},
	StageProofGenerating: {StageBlobUploading: true, StageFailed: true},
	StageBlobUploading:   {StageLedgerWriting: true, StageFailed: true},
	StageLedgerWriting:   {StageIndexing: true, StageFailed: true},
	StageIndexing:        {StageDone: true, StageFailed: true},
	StageDone:            {}, // Конечная стадия
	StageFailed:          {}, // Конечная стадия
}

// TransitionRecord — запись о переходе между стадиями.
type TransitionRecord struct {
	From      Stage     `json:"from"`
	To        Stage     `json:"to"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Machine — конечный автомат одной регистрации.
// Не потокобезопасен: один запрос — один экземпляр, одна горутина.
type Machine struct {
	current Stage
	history []TransitionRecord
}

// New создаёт автомат в начальной стадии validating.
func New() *Machine {
	return &Machine{
		current: StageValidating,
		history: make([]TransitionRecord, 0, 8),
	}
}

// Current возвращает текущую стадию.
func (m *Machine) Current() Stage {
	return m.current
}

// Advance выполняет переход в указанную стадию.
// detail — произвольный комментарий для истории (например, причина отказа).
// Возвращает ошибку для недопустимых переходов.
func (m *Machine) Advance(target Stage, detail string) error {
	transitions, ok := validTransitions[m.current]
	if !ok || !transitions[target] {
		return fmt.Errorf("переход %s → %s недопустим", m.current, target)
	}

	m.history = append(m.history, TransitionRecord{
		From:      m.current,
		To:        target,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
	m.current = target
	return nil
}

// Fail переводит автомат в failed с указанием причины.
// На конечных стадиях (done, failed) — no-op с ошибкой.
func (m *Machine) Fail(reason string) error {
	return m.Advance(StageFailed, reason)
}

// Terminal возвращает true, если автомат в конечной стадии.
func (m *Machine) Terminal() bool {
	return m.current == StageDone || m.current == StageFailed
}

// History возвращает копию истории переходов.
func (m *Machine) History() []TransitionRecord {
	out := make([]TransitionRecord, len(m.history))
	copy(out, m.history)
	return out
}

// FailedAt возвращает стадию, на которой pipeline был прерван,
// и пустую строку, если отказа не было.
func (m *Machine) FailedAt() Stage {
	if m.current != StageFailed {
		return ""
	}
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].To == StageFailed {
			return m.history[i].From
		}
	}
	return ""
}
