package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/kitchen-order-service/internal/domain"
)

// DefaultMaxLimit caps the page size when ListOrders.MaxLimit is unset.
const DefaultMaxLimit = 100

// GetOrderByID performs a point lookup, cache first. An unknown or malformed id is a
// normal miss, not an error.
type GetOrderByID struct {
	Repo  domain.OrderRepository
	Cache domain.OrderCache
}

func (uc GetOrderByID) Execute(ctx context.Context, id string) (domain.Order, bool, error) {
	if !domain.IsValidID(id) {
		return domain.Order{}, false, nil
	}
	if uc.Cache != nil {
		if o, ok := uc.Cache.Get(ctx, id); ok {
			return o, true, nil
		}
	}
	o, ok, err := uc.Repo.GetByID(ctx, id)
	if err != nil || !ok {
		return domain.Order{}, false, err
	}
	if uc.Cache != nil {
		uc.Cache.Set(ctx, o)
	}
	return o, true, nil
}

// ListOrders returns a paginated listing, most recent first.
type ListOrders struct {
	Repo     domain.OrderRepository
	MaxLimit int
}

func (uc ListOrders) Execute(ctx context.Context, f domain.OrderFilter) (domain.OrderPage, error) {
	maxLimit := uc.MaxLimit
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	switch {
	case f.Page < 1:
		return domain.OrderPage{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	case f.Limit < 1:
		return domain.OrderPage{}, fmt.Errorf("%w: limit must be >= 1", domain.ErrValidation)
	case f.Limit > maxLimit:
		return domain.OrderPage{}, fmt.Errorf("%w: limit must be <= %d", domain.ErrValidation, maxLimit)
	case f.StatusID < 0:
		return domain.OrderPage{}, fmt.Errorf("%w: statusId must be positive", domain.ErrValidation)
	case f.CustomerID != "" && !domain.IsValidID(f.CustomerID):
		return domain.OrderPage{}, fmt.Errorf("%w: malformed customerId", domain.ErrValidation)
	}

	data, total, err := uc.Repo.List(ctx, f)
	if err != nil {
		return domain.OrderPage{}, err
	}
	if data == nil {
		data = []domain.Order{}
	}
	return domain.OrderPage{
		Data:       data,
		Page:       f.Page,
		Limit:      f.Limit,
		TotalPages: domain.TotalPages(total, f.Limit),
		TotalItems: total,
	}, nil
}

// ListStatuses returns the status vocabulary.
type ListStatuses struct {
	Repo domain.OrderRepository
}

func (uc ListStatuses) Execute(ctx context.Context) ([]domain.Status, error) {
	return uc.Repo.ListStatuses(ctx)
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
