package domain

import "context"

// OrderRepository is the port for order persistence.
type OrderRepository interface {
	// WithTx runs fn inside one store transaction. The transaction commits when
	// fn returns nil and rolls back otherwise, including on panic or timeout.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// InsertOrders writes all orders in a single statement.
	InsertOrders(ctx context.Context, orders []Order) error
	// UpdateStatus applies a targeted update and returns the row as written.
	// matched is false when no row has the id.
	UpdateStatus(ctx context.Context, u StatusUpdate) (o Order, matched bool, err error)
	GetByID(ctx context.Context, id string) (Order, bool, error)
	List(ctx context.Context, f OrderFilter) ([]Order, int, error)
	ListStatuses(ctx context.Context) ([]Status, error)
}

// OrderCache is the port for fast order lookups (cache).
// Set keeps the newest snapshot per id: an order whose UpdatedAt is older than
// the cached one is ignored.
type OrderCache interface {
	Get(ctx context.Context, id string) (Order, bool)
	Set(ctx context.Context, o Order)
}

// EventPublisher is the port for announcing committed orders downstream.
type EventPublisher interface {
	PublishOrderDispatched(ctx context.Context, ev DispatchEvent) error
}

// MessageSubscriber is the port for the inbound status-change channel.
type MessageSubscriber interface {
	// Subscribe consumes until ctx is done, then returns nil. Any other return
	// means the consumer has stopped. Ack and redelivery are the adapter's job.
	Subscribe(ctx context.Context, handler func(ctx context.Context, raw []byte) error) error
}

// Common domain errors.
var (
	ErrValidation       = validationError("invalid data")
	ErrDispatchFailed   = internalError("failed to dispatch orders")
	ErrStatusSyncFailed = internalError("failed to apply status changes")
)

type validationError string

func (e validationError) Error() string { return string(e) }

type internalError string

func (e internalError) Error() string { return string(e) }
