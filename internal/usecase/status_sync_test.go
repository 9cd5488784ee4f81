package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/example/kitchen-order-service/internal/clock"
	"github.com/example/kitchen-order-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	order1 = "11111111-1111-4111-8111-111111111111"
	order3 = "33333333-3333-4333-8333-333333333333"
	absent = "99999999-9999-4999-8999-999999999999"
)

func seededStore(created time.Time) *fakeStore {
	store := newFakeStore()
	store.seed(
		domain.Order{ID: order1, CustomerID: customerA, StatusID: domain.StatusReceived, CreatedAt: created, UpdatedAt: created},
		domain.Order{ID: order3, CustomerID: customerB, StatusID: domain.StatusReceived, CreatedAt: created, UpdatedAt: created},
	)
	return store
}

func TestApplyStatusChanges_Execute(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)
	now := created.Add(time.Minute)

	t.Run("missing targets are recorded and siblings still apply", func(t *testing.T) {
		t.Parallel()
		store := seededStore(created)
		uc := ApplyStatusChanges{Repo: store, Clock: clock.NewFixed(now)}

		report, err := uc.Execute(context.Background(), []domain.StatusChangeEvent{
			{ID: order1, StatusID: domain.StatusInProgress},
			{ID: absent, StatusID: domain.StatusInProgress},
			{ID: "missing", StatusID: domain.StatusInProgress},
			{ID: order3, StatusID: domain.StatusFailed},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, report.Applied)
		assert.Equal(t, []string{absent, "missing"}, report.NotFound)

		o1, _ := store.order(order1)
		o3, _ := store.order(order3)
		assert.Equal(t, domain.StatusInProgress, o1.StatusID)
		assert.Equal(t, domain.StatusFailed, o3.StatusID)
		assert.Equal(t, now, o1.UpdatedAt)
		assert.Equal(t, created, o1.CreatedAt)
		assert.Equal(t, 1, store.commits)
	})

	t.Run("applying the same batch twice yields the same state", func(t *testing.T) {
		t.Parallel()
		store := seededStore(created)
		uc := ApplyStatusChanges{Repo: store, Clock: clock.NewFixed(now)}
		batch := []domain.StatusChangeEvent{
			{ID: order1, StatusID: domain.StatusReady, RecipeName: domain.SomeString("margherita")},
			{ID: order1, StatusID: domain.StatusReady, RecipeName: domain.SomeString("margherita")},
		}

		_, err := uc.Execute(context.Background(), batch)
		require.NoError(t, err)
		first, _ := store.order(order1)

		_, err = uc.Execute(context.Background(), batch)
		require.NoError(t, err)
		second, _ := store.order(order1)

		assert.Equal(t, first, second)
		assert.Equal(t, domain.StatusReady, second.StatusID)
		require.NotNil(t, second.RecipeName)
		assert.Equal(t, "margherita", *second.RecipeName)
	})

	t.Run("events for the same order apply in array order", func(t *testing.T) {
		t.Parallel()
		store := seededStore(created)
		uc := ApplyStatusChanges{Repo: store, Clock: clock.NewFixed(now)}

		_, err := uc.Execute(context.Background(), []domain.StatusChangeEvent{
			{ID: order1, StatusID: domain.StatusInProgress, RecipeName: domain.SomeString("draft")},
			{ID: order1, StatusID: domain.StatusReady, RecipeName: domain.SomeString("final")},
		})
		require.NoError(t, err)

		o1, _ := store.order(order1)
		assert.Equal(t, domain.StatusReady, o1.StatusID)
		require.NotNil(t, o1.RecipeName)
		assert.Equal(t, "final", *o1.RecipeName)
	})

	t.Run("absent recipe keeps the stored value and null clears it", func(t *testing.T) {
		t.Parallel()
		store := seededStore(created)
		uc := ApplyStatusChanges{Repo: store, Clock: clock.NewFixed(now)}

		_, err := uc.Execute(context.Background(), []domain.StatusChangeEvent{
			{ID: order1, StatusID: domain.StatusInProgress, RecipeName: domain.SomeString("carbonara")},
			{ID: order1, StatusID: domain.StatusReady},
		})
		require.NoError(t, err)
		o1, _ := store.order(order1)
		require.NotNil(t, o1.RecipeName)
		assert.Equal(t, "carbonara", *o1.RecipeName)

		_, err = uc.Execute(context.Background(), []domain.StatusChangeEvent{
			{ID: order1, StatusID: domain.StatusReady, RecipeName: domain.NullString()},
		})
		require.NoError(t, err)
		o1, _ = store.order(order1)
		assert.Nil(t, o1.RecipeName)
	})

	t.Run("store error rolls back every update of the batch", func(t *testing.T) {
		t.Parallel()
		store := seededStore(created)
		store.failUpdateFor = order3
		cache := newSpyCache()
		uc := ApplyStatusChanges{Repo: store, Cache: cache, Clock: clock.NewFixed(now)}

		_, err := uc.Execute(context.Background(), []domain.StatusChangeEvent{
			{ID: order1, StatusID: domain.StatusReady},
			{ID: order3, StatusID: domain.StatusReady},
		})
		require.ErrorIs(t, err, domain.ErrStatusSyncFailed)

		o1, _ := store.order(order1)
		assert.Equal(t, domain.StatusReceived, o1.StatusID)
		assert.Equal(t, created, o1.UpdatedAt)
		assert.Equal(t, 1, store.rollbacks)
		assert.Empty(t, cache.writes, "rolled back rows never reach the cache")
	})

	t.Run("unknown status aborts the batch", func(t *testing.T) {
		t.Parallel()
		store := seededStore(created)
		uc := ApplyStatusChanges{Repo: store, Clock: clock.NewFixed(now)}

		_, err := uc.Execute(context.Background(), []domain.StatusChangeEvent{
			{ID: order1, StatusID: domain.StatusReady},
			{ID: order3, StatusID: 42},
		})
		require.ErrorIs(t, err, domain.ErrStatusSyncFailed)
		o1, _ := store.order(order1)
		assert.Equal(t, domain.StatusReceived, o1.StatusID)
	})

	t.Run("committed rows replace cached orders", func(t *testing.T) {
		t.Parallel()
		store := seededStore(created)
		cache := newSpyCache()
		stale, _ := store.order(order1)
		untouched, _ := store.order(order3)
		cache.Set(context.Background(), stale)
		cache.Set(context.Background(), untouched)
		uc := ApplyStatusChanges{Repo: store, Cache: cache, Clock: clock.NewFixed(now)}

		_, err := uc.Execute(context.Background(), []domain.StatusChangeEvent{
			{ID: order1, StatusID: domain.StatusInProgress},
			{ID: absent, StatusID: domain.StatusReady},
			{ID: order1, StatusID: domain.StatusReady, RecipeName: domain.SomeString("pesto")},
		})
		require.NoError(t, err)

		cached, ok := cache.Get(context.Background(), order1)
		require.True(t, ok)
		assert.Equal(t, domain.StatusReady, cached.StatusID)
		require.NotNil(t, cached.RecipeName)
		assert.Equal(t, "pesto", *cached.RecipeName)
		assert.Equal(t, now, cached.UpdatedAt)

		_, ok = cache.Get(context.Background(), absent)
		assert.False(t, ok)
		o3, ok := cache.Get(context.Background(), order3)
		require.True(t, ok)
		assert.Equal(t, untouched, o3)
	})

	t.Run("empty batch does not open a transaction", func(t *testing.T) {
		t.Parallel()
		store := seededStore(created)
		uc := ApplyStatusChanges{Repo: store}

		report, err := uc.Execute(context.Background(), nil)
		require.NoError(t, err)
		assert.Zero(t, report.Applied)
		assert.Equal(t, 0, store.txCount)
	})
}

func TestApplyStatusChanges_HandleMessage(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

	t.Run("single object", func(t *testing.T) {
		t.Parallel()
		store := seededStore(created)
		uc := ApplyStatusChanges{Repo: store}

		err := uc.HandleMessage(context.Background(), []byte(`{"id":"`+order1+`","statusId":3,"recipeName":"pesto"}`))
		require.NoError(t, err)
		o1, _ := store.order(order1)
		assert.Equal(t, domain.StatusReady, o1.StatusID)
		require.NotNil(t, o1.RecipeName)
		assert.Equal(t, "pesto", *o1.RecipeName)
	})

	t.Run("array with snake_case keys", func(t *testing.T) {
		t.Parallel()
		store := seededStore(created)
		uc := ApplyStatusChanges{Repo: store}

		err := uc.HandleMessage(context.Background(), []byte(`[
			{"id":"`+order1+`","status_id":2},
			{"id":"`+order3+`","status_id":4,"recipe_name":"risotto"}
		]`))
		require.NoError(t, err)
		o1, _ := store.order(order1)
		o3, _ := store.order(order3)
		assert.Equal(t, domain.StatusInProgress, o1.StatusID)
		assert.Equal(t, domain.StatusFailed, o3.StatusID)
		require.NotNil(t, o3.RecipeName)
		assert.Equal(t, "risotto", *o3.RecipeName)
	})

	t.Run("undecodable payload is a validation error", func(t *testing.T) {
		t.Parallel()
		store := seededStore(created)
		uc := ApplyStatusChanges{Repo: store}

		err := uc.HandleMessage(context.Background(), []byte(`{not json`))
		require.ErrorIs(t, err, domain.ErrValidation)
		assert.Equal(t, 0, store.txCount)
	})
}
