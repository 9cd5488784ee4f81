package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/example/kitchen-order-service/internal/domain"
)

type fakeTxKey struct{}

type fakeTx struct {
	orders map[string]domain.Order
}

// fakeStore stages writes per transaction and only exposes them on commit.
type fakeStore struct {
	mu        sync.Mutex
	committed map[string]domain.Order
	statuses  map[int]string

	failInsertAt  int // 1-based row index that fails inside InsertOrders
	failCommit    error
	failUpdateFor string
	afterInsert   func()
	afterGet      func() // runs between the read and the return

	txCount   int
	commits   int
	rollbacks int
	updates   int
}

func newFakeStore() *fakeStore {
	statuses := make(map[int]string)
	for _, s := range domain.DefaultStatuses {
		statuses[s.ID] = s.Name
	}
	return &fakeStore{committed: make(map[string]domain.Order), statuses: statuses}
}

func (f *fakeStore) seed(orders ...domain.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range orders {
		f.committed[o.ID] = o
	}
}

func (f *fakeStore) order(id string) (domain.Order, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.committed[id]
	return o, ok
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.committed)
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	f.txCount++
	staged := make(map[string]domain.Order, len(f.committed))
	for k, v := range f.committed {
		staged[k] = v
	}
	f.mu.Unlock()

	tx := &fakeTx{orders: staged}
	if err := fn(context.WithValue(ctx, fakeTxKey{}, tx)); err != nil {
		f.mu.Lock()
		f.rollbacks++
		f.mu.Unlock()
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCommit != nil {
		f.rollbacks++
		return f.failCommit
	}
	f.committed = tx.orders
	f.commits++
	return nil
}

func txOf(ctx context.Context) (*fakeTx, error) {
	tx, ok := ctx.Value(fakeTxKey{}).(*fakeTx)
	if !ok {
		return nil, errors.New("write outside transaction")
	}
	return tx, nil
}

func (f *fakeStore) InsertOrders(ctx context.Context, orders []domain.Order) error {
	tx, err := txOf(ctx)
	if err != nil {
		return err
	}
	for i, o := range orders {
		if f.failInsertAt == i+1 {
			return errors.New("violates check constraint")
		}
		if _, exists := tx.orders[o.ID]; exists {
			return fmt.Errorf("duplicate key %s", o.ID)
		}
		if _, ok := f.statuses[o.StatusID]; !ok {
			return fmt.Errorf("unknown status %d", o.StatusID)
		}
		tx.orders[o.ID] = o
	}
	if f.afterInsert != nil {
		f.afterInsert()
	}
	return nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, u domain.StatusUpdate) (domain.Order, bool, error) {
	tx, err := txOf(ctx)
	if err != nil {
		return domain.Order{}, false, err
	}
	if u.OrderID == f.failUpdateFor {
		return domain.Order{}, false, errors.New("connection reset by peer")
	}
	o, ok := tx.orders[u.OrderID]
	if !ok {
		return domain.Order{}, false, nil
	}
	if _, ok := f.statuses[u.StatusID]; !ok {
		return domain.Order{}, false, fmt.Errorf("violates foreign key: status %d", u.StatusID)
	}
	o.StatusID = u.StatusID
	if u.RecipeName.Set {
		if u.RecipeName.Value == nil {
			o.RecipeName = nil
		} else {
			v := *u.RecipeName.Value
			o.RecipeName = &v
		}
	}
	o.UpdatedAt = u.UpdatedAt
	tx.orders[u.OrderID] = o
	f.mu.Lock()
	f.updates++
	f.mu.Unlock()
	return o, true, nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (domain.Order, bool, error) {
	o, ok := f.order(id)
	if f.afterGet != nil {
		f.afterGet()
	}
	return o, ok, nil
}

func (f *fakeStore) List(_ context.Context, flt domain.OrderFilter) ([]domain.Order, int, error) {
	f.mu.Lock()
	var all []domain.Order
	for _, o := range f.committed {
		if flt.StatusID > 0 && o.StatusID != flt.StatusID {
			continue
		}
		if flt.CustomerID != "" && o.CustomerID != flt.CustomerID {
			continue
		}
		all = append(all, o)
	}
	f.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	total := len(all)
	start := flt.Offset()
	if start > total {
		start = total
	}
	end := start + flt.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (f *fakeStore) ListStatuses(context.Context) ([]domain.Status, error) {
	return domain.DefaultStatuses, nil
}

// recordingPublisher fails the test setup when an order is published before
// its creation is visible as committed.
type recordingPublisher struct {
	mu          sync.Mutex
	store       *fakeStore
	events      []domain.DispatchEvent
	uncommitted []string
	ctxErrs     []error
	failFor     map[string]bool
}

func (p *recordingPublisher) PublishOrderDispatched(ctx context.Context, ev domain.DispatchEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.store.order(ev.Order.ID); !ok {
		p.uncommitted = append(p.uncommitted, ev.Order.ID)
	}
	if err := ctx.Err(); err != nil {
		p.ctxErrs = append(p.ctxErrs, err)
	}
	if p.failFor[ev.Order.ID] {
		return errors.New("channel unavailable")
	}
	p.events = append(p.events, ev)
	return nil
}

// blockingPublisher holds every publish until release is closed.
type blockingPublisher struct {
	mu      sync.Mutex
	ids     []string
	started chan struct{}
	release chan struct{}
}

func (p *blockingPublisher) PublishOrderDispatched(_ context.Context, ev domain.DispatchEvent) error {
	select {
	case p.started <- struct{}{}:
	default:
	}
	<-p.release
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, ev.Order.ID)
	return nil
}

func (p *blockingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}

type spyCache struct {
	mu      sync.Mutex
	entries map[string]domain.Order
	writes  []string
	gets    int
}

func newSpyCache() *spyCache {
	return &spyCache{entries: make(map[string]domain.Order)}
}

func (c *spyCache) Get(_ context.Context, id string) (domain.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	o, ok := c.entries[id]
	return o, ok
}

func (c *spyCache) Set(_ context.Context, o domain.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, o.ID)
	if cur, ok := c.entries[o.ID]; ok && cur.UpdatedAt.After(o.UpdatedAt) {
		return
	}
	c.entries[o.ID] = o
}
