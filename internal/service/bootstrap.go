package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/bigkaa/mediaseal/internal/domain/model"
	"github.com/bigkaa/mediaseal/internal/index"
)

// Bootstrapper наполняет индекс из последних событий создания ledger
// при старте. Индекс — одноразовый кэш: потеря при рестарте штатна,
// bootstrap лишь сокращает окно холодного старта.
type Bootstrapper struct {
	ledger LedgerClient
	index  *index.Index
	events int
	logger *slog.Logger
}

// NewBootstrapper создаёт bootstrap-репликатор.
// events — глубина реплея; 0 отключает реплей, индекс сразу готов.
func NewBootstrapper(ledgerClient LedgerClient, idx *index.Index, events int, logger *slog.Logger) *Bootstrapper {
	return &Bootstrapper{
		ledger: ledgerClient,
		index:  idx,
		events: events,
		logger: logger.With(slog.String("component", "index_bootstrap")),
	}
}

// Run выполняет реплей событий и помечает индекс готовым.
// Ошибки отдельных записей логируются и пропускаются: частично
// наполненный индекс полезнее пустого.
func (b *Bootstrapper) Run(ctx context.Context) {
	started := time.Now()
	defer b.index.SetReady()

	if b.events <= 0 {
		b.logger.Info("Bootstrap индекса отключён")
		return
	}

	events, err := b.ledger.QueryRecentEvents(ctx, b.events)
	if err != nil {
		b.logger.Warn("События для bootstrap недоступны, индекс стартует пустым",
			slog.String("error", err.Error()),
		)
		return
	}

	loaded := 0
	for _, ev := range events {
		att, err := b.ledger.GetRecord(ctx, ev.AttestationID)
		if err != nil {
			b.logger.Warn("Запись события не разрешилась, пропуск",
				slog.String("attestation_id", ev.AttestationID),
				slog.String("error", err.Error()),
			)
			continue
		}
		b.index.Insert(model.EntryFromAttestation(att))
		loaded++
	}

	b.logger.Info("Bootstrap индекса завершён",
		slog.Int("events", len(events)),
		slog.Int("loaded", loaded),
		slog.Duration("elapsed", time.Since(started)),
	)
}
