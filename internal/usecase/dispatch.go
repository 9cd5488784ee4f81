package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/kitchen-order-service/internal/clock"
	"github.com/example/kitchen-order-service/internal/domain"
	"github.com/google/uuid"
)

// DispatchedMessage is the confirmation returned for a committed batch.
const DispatchedMessage = "Order dispatched successfully"

// CreateOrders persists a batch of new orders in one transaction and, only
// after the commit, announces each of them to the kitchen. Execute returns as
// soon as the batch is committed; announcements run in the background.
//
// Announcement is at most once: if the process dies between commit and
// publish, or the publish itself fails, the orders stay committed but are
// never announced. Those cases are logged per order.
type CreateOrders struct {
	Repo      domain.OrderRepository
	Publisher domain.EventPublisher
	Clock     clock.Clock
	NewID     func() string
	Logger    *slog.Logger
	// Pending, when set, tracks background announcements so shutdown can wait for them.
	Pending *sync.WaitGroup
}

func (uc CreateOrders) Execute(ctx context.Context, reqs []domain.NewOrderRequest) (domain.DispatchResult, error) {
	if len(reqs) == 0 {
		return domain.DispatchResult{}, fmt.Errorf("%w: empty order batch", domain.ErrValidation)
	}
	log := loggerOr(uc.Logger)

	now := uc.now()
	orders := make([]domain.Order, len(reqs))
	for i, r := range reqs {
		orders[i] = domain.Order{
			ID:         uc.newID(),
			CustomerID: r.CustomerID,
			StatusID:   domain.StatusReceived,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}

	err := uc.Repo.WithTx(ctx, func(txCtx context.Context) error {
		return uc.Repo.InsertOrders(txCtx, orders)
	})
	if err != nil {
		log.ErrorContext(ctx, "order batch rolled back", "orders", len(orders), "error", err)
		return domain.DispatchResult{}, fmt.Errorf("%w: %w", domain.ErrDispatchFailed, err)
	}

	// The batch is durable from here on; a cancelled request must not stop the announcements.
	announceCtx := context.WithoutCancel(ctx)
	announced := append([]domain.Order(nil), orders...)
	if uc.Pending != nil {
		uc.Pending.Add(1)
	}
	go func() {
		if uc.Pending != nil {
			defer uc.Pending.Done()
		}
		uc.announce(announceCtx, announced)
	}()

	return domain.DispatchResult{Message: DispatchedMessage, Orders: orders}, nil
}

func (uc CreateOrders) announce(ctx context.Context, orders []domain.Order) {
	log := loggerOr(uc.Logger)
	for _, o := range orders {
		if err := uc.Publisher.PublishOrderDispatched(ctx, domain.NewDispatchEvent(o, uc.now())); err != nil {
			log.ErrorContext(ctx, "order committed but not announced",
				"order_id", o.ID,
				"customer_id", o.CustomerID,
				"error", err,
			)
			continue
		}
		log.DebugContext(ctx, "order announced", "order_id", o.ID)
	}
}

func (uc CreateOrders) now() time.Time {
	if uc.Clock == nil {
		return clock.NewSystem().Now()
	}
	return uc.Clock.Now()
}

func (uc CreateOrders) newID() string {
	if uc.NewID == nil {
		return uuid.NewString()
	}
	return uc.NewID()
}
