package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/kitchen-order-service/internal/clock"
	"github.com/example/kitchen-order-service/internal/domain"
)

// StatusSyncReport is the row-level outcome of a committed status batch.
type StatusSyncReport struct {
	Applied  int
	NotFound []string
}

// ApplyStatusChanges applies a batch of kitchen status events in one
// transaction: the batch either fully lands or fully rolls back.
// Targets that do not exist are recorded and skipped. After the commit the
// written rows replace any cached copy.
type ApplyStatusChanges struct {
	Repo   domain.OrderRepository
	Cache  domain.OrderCache
	Clock  clock.Clock
	Logger *slog.Logger
}

// HandleMessage decodes one channel message and applies it.
func (uc ApplyStatusChanges) HandleMessage(ctx context.Context, raw []byte) error {
	events, err := domain.DecodeStatusChanges(raw)
	if err != nil {
		return err
	}
	_, err = uc.Execute(ctx, events)
	return err
}

func (uc ApplyStatusChanges) Execute(ctx context.Context, events []domain.StatusChangeEvent) (StatusSyncReport, error) {
	if len(events) == 0 {
		return StatusSyncReport{}, nil
	}
	log := loggerOr(uc.Logger)
	now := uc.now()

	var (
		report  StatusSyncReport
		written []domain.Order
	)
	err := uc.Repo.WithTx(ctx, func(txCtx context.Context) error {
		report = StatusSyncReport{}
		written = written[:0]
		for i, ev := range events {
			if !domain.IsValidID(ev.ID) {
				report.NotFound = append(report.NotFound, ev.ID)
				log.WarnContext(ctx, "status change for unknown order", "order_id", ev.ID, "reason", "malformed id")
				continue
			}
			o, matched, err := uc.Repo.UpdateStatus(txCtx, domain.StatusUpdate{
				OrderID:    ev.ID,
				StatusID:   ev.StatusID,
				RecipeName: ev.RecipeName,
				UpdatedAt:  now,
			})
			if err != nil {
				return fmt.Errorf("event %d (order %s): %w", i, ev.ID, err)
			}
			if !matched {
				report.NotFound = append(report.NotFound, ev.ID)
				log.WarnContext(ctx, "status change for unknown order", "order_id", ev.ID)
				continue
			}
			report.Applied++
			written = append(written, o)
		}
		return nil
	})
	if err != nil {
		log.ErrorContext(ctx, "status batch rolled back", "events", len(events), "error", err)
		return StatusSyncReport{}, fmt.Errorf("%w: %w", domain.ErrStatusSyncFailed, err)
	}

	if uc.Cache != nil {
		cacheCtx := context.WithoutCancel(ctx)
		for _, o := range written {
			uc.Cache.Set(cacheCtx, o)
		}
	}
	log.InfoContext(ctx, "status batch applied",
		"events", len(events),
		"applied", report.Applied,
		"not_found", len(report.NotFound),
	)
	return report, nil
}

func (uc ApplyStatusChanges) now() time.Time {
	if uc.Clock == nil {
		return clock.NewSystem().Now()
	}
	return uc.Clock.Now()
}
