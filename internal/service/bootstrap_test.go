package service

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/mediaseal/internal/domain/model"
	"github.com/bigkaa/mediaseal/internal/index"
	"github.com/bigkaa/mediaseal/internal/ledger"
)

// TestBootstrap_Disabled проверяет, что при нулевой глубине реплея
// индекс сразу помечается готовым.
func TestBootstrap_Disabled(t *testing.T) {
	idx := index.New(slog.Default())
	b := NewBootstrapper(&mockLedger{}, idx, 0, slog.Default())

	b.Run(context.Background())
	if !idx.IsReady() {
		t.Error("индекс должен быть готов")
	}
	if idx.Count() != 0 {
		t.Errorf("записей = %d, ожидалось 0", idx.Count())
	}
}

// TestBootstrap_Replay проверяет наполнение индекса из событий;
// неразрешившиеся записи пропускаются.
func TestBootstrap_Replay(t *testing.T) {
	hashA := strings.Repeat("a", 64)
	lc := &mockLedger{
		queryEventsFn: func(_ context.Context, limit int) ([]model.CreationEvent, error) {
			if limit != 50 {
				t.Errorf("limit = %d, ожидалось 50", limit)
			}
			return []model.CreationEvent{
				{AttestationID: "att-1", ContentHash: hashA},
				{AttestationID: "att-broken", ContentHash: strings.Repeat("b", 64)},
			}, nil
		},
		getRecordFn: func(_ context.Context, id string) (*model.Attestation, error) {
			if id == "att-1" {
				return &model.Attestation{
					AttestationID: "att-1",
					ContentHash:   hashA,
					Creator:       "0xcreator",
					MediaType:     model.MediaPhoto,
					CreatedAt:     time.Now().UTC(),
				}, nil
			}
			return nil, ledger.ErrNotFound
		},
	}
	idx := index.New(slog.Default())
	b := NewBootstrapper(lc, idx, 50, slog.Default())

	b.Run(context.Background())
	if !idx.IsReady() {
		t.Error("индекс должен быть готов")
	}
	if idx.Count() != 1 {
		t.Errorf("записей = %d, ожидалась 1", idx.Count())
	}
	if entry := idx.GetByHash(hashA); entry == nil || entry.AttestationID != "att-1" {
		t.Errorf("entry = %+v", entry)
	}
}

// TestBootstrap_LedgerDown проверяет, что недоступность событий не
// мешает готовности: индекс стартует пустым.
func TestBootstrap_LedgerDown(t *testing.T) {
	lc := &mockLedger{
		queryEventsFn: func(_ context.Context, _ int) ([]model.CreationEvent, error) {
			return nil, ledger.ErrUnavailable
		},
	}
	idx := index.New(slog.Default())
	b := NewBootstrapper(lc, idx, 100, slog.Default())

	b.Run(context.Background())
	if !idx.IsReady() {
		t.Error("индекс должен быть готов даже при недоступном ledger")
	}
	if idx.Count() != 0 {
		t.Errorf("записей = %d, ожидалось 0", idx.Count())
	}
}
