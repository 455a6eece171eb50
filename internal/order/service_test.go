package order_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poscillo/poscillo/internal/events"
	"github.com/poscillo/poscillo/internal/order"
)

var (
	customer      = order.Actor{ID: "cust-1", Role: order.RoleCustomer}
	otherCustomer = order.Actor{ID: "cust-2", Role: order.RoleCustomer}
	cook          = order.Actor{ID: "cook-1", Role: order.RoleCook}
	cashier       = order.Actor{ID: "caja-1", Role: order.RoleCashier}
)

type recordingPublisher struct {
	updates []events.StatusUpdate
	err     error
}

func (p *recordingPublisher) PublishStatusUpdate(ctx context.Context, update events.StatusUpdate) error {
	p.updates = append(p.updates, update)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type mockStore struct {
	getFunc    func(ctx context.Context, id string) (*order.Order, error)
	putFunc    func(ctx context.Context, o *order.Order) error
	updateFunc func(ctx context.Context, o *order.Order, expectedVersion int64) error
	settleFunc func(ctx context.Context, rec *order.ArchivedOrder, expectedVersion int64) error
	queryFunc  func(ctx context.Context, f order.Filter) ([]order.Order, error)
	archFunc   func(ctx context.Context, id string) (*order.ArchivedOrder, error)
}

func (m *mockStore) Get(ctx context.Context, id string) (*order.Order, error) {
	return m.getFunc(ctx, id)
}
func (m *mockStore) Put(ctx context.Context, o *order.Order) error { return m.putFunc(ctx, o) }
func (m *mockStore) Update(ctx context.Context, o *order.Order, expectedVersion int64) error {
	return m.updateFunc(ctx, o, expectedVersion)
}
func (m *mockStore) Settle(ctx context.Context, rec *order.ArchivedOrder, expectedVersion int64) error {
	return m.settleFunc(ctx, rec, expectedVersion)
}
func (m *mockStore) Query(ctx context.Context, f order.Filter) ([]order.Order, error) {
	return m.queryFunc(ctx, f)
}
func (m *mockStore) GetArchived(ctx context.Context, id string) (*order.ArchivedOrder, error) {
	return m.archFunc(ctx, id)
}

func seedOrder(t *testing.T, store *order.MemoryStore, o order.Order) {
	t.Helper()
	if o.Version == 0 {
		o.Version = 1
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
		o.UpdatedAt = o.CreatedAt
	}
	require.NoError(t, store.Put(context.Background(), &o))
}

func cartOrder(customerID string, items ...order.OrderItem) order.Order {
	if items == nil {
		items = []order.OrderItem{}
	}
	return order.Order{
		ID:         customerID,
		CustomerID: customerID,
		TableID:    order.TableUnassigned,
		Items:      items,
		Status:     order.StatusCart,
	}
}

func TestService_AddItem(t *testing.T) {
	ctx := context.Background()

	t.Run("first_add_creates_cart", func(t *testing.T) {
		store := order.NewMemoryStore()
		svc := order.NewService(store, nil)

		o, err := svc.AddItem(ctx, customer, customer.ID, order.OrderItem{
			ItemID: "burger-1", Title: "Hamburguesa", UnitPrice: 8.5, Quantity: 2,
		})
		require.NoError(t, err)
		assert.Equal(t, order.StatusCart, o.Status)
		assert.Equal(t, customer.ID, o.ID)
		assert.Equal(t, order.TableUnassigned, o.TableID)
		assert.Equal(t, int64(1), o.Version)
		require.Len(t, o.Items, 1)
		assert.Equal(t, 2, o.Items[0].Quantity)
	})

	t.Run("repeated_add_increments_quantity", func(t *testing.T) {
		store := order.NewMemoryStore()
		svc := order.NewService(store, nil)

		item := order.OrderItem{ItemID: "burger-1", Title: "Hamburguesa", UnitPrice: 8.5, Quantity: 1}
		_, err := svc.AddItem(ctx, customer, customer.ID, item)
		require.NoError(t, err)
		o, err := svc.AddItem(ctx, customer, customer.ID, item)
		require.NoError(t, err)

		require.Len(t, o.Items, 1)
		assert.Equal(t, 2, o.Items[0].Quantity)
		assert.Equal(t, int64(2), o.Version)
	})

	t.Run("add_to_submitted_order_fails", func(t *testing.T) {
		store := order.NewMemoryStore()
		svc := order.NewService(store, nil)
		o := cartOrder(customer.ID, order.OrderItem{ItemID: "x", Quantity: 1})
		o.Status = order.StatusPending
		seedOrder(t, store, o)

		_, err := svc.AddItem(ctx, customer, customer.ID, order.OrderItem{ItemID: "y", Quantity: 1})
		assert.ErrorIs(t, err, order.ErrInvalidState)
	})

	t.Run("non_owner_cannot_add", func(t *testing.T) {
		svc := order.NewService(order.NewMemoryStore(), nil)

		_, err := svc.AddItem(ctx, otherCustomer, customer.ID, order.OrderItem{ItemID: "x", Quantity: 1})
		assert.ErrorIs(t, err, order.ErrUnauthorized)

		_, err = svc.AddItem(ctx, cook, cook.ID, order.OrderItem{ItemID: "x", Quantity: 1})
		assert.ErrorIs(t, err, order.ErrUnauthorized)
	})

	t.Run("zero_quantity_rejected", func(t *testing.T) {
		svc := order.NewService(order.NewMemoryStore(), nil)

		_, err := svc.AddItem(ctx, customer, customer.ID, order.OrderItem{ItemID: "x", Quantity: 0})
		assert.ErrorIs(t, err, order.ErrInvalidItem)
	})
}

func TestService_SetItemQuantity(t *testing.T) {
	ctx := context.Background()

	t.Run("upserts_missing_item", func(t *testing.T) {
		store := order.NewMemoryStore()
		svc := order.NewService(store, nil)
		seedOrder(t, store, cartOrder(customer.ID))

		o, err := svc.SetItemQuantity(ctx, customer, customer.ID, "burger-1", 2)
		require.NoError(t, err)
		require.Len(t, o.Items, 1)
		assert.Equal(t, "burger-1", o.Items[0].ItemID)
		assert.Equal(t, 2, o.Items[0].Quantity)
	})

	t.Run("zero_removes_item", func(t *testing.T) {
		store := order.NewMemoryStore()
		svc := order.NewService(store, nil)
		seedOrder(t, store, cartOrder(customer.ID, order.OrderItem{ItemID: "x", Quantity: 1}))

		o, err := svc.SetItemQuantity(ctx, customer, customer.ID, "x", 0)
		require.NoError(t, err)
		assert.Empty(t, o.Items)
	})

	t.Run("zero_is_equivalent_to_remove", func(t *testing.T) {
		seed := cartOrder(customer.ID,
			order.OrderItem{ItemID: "x", Title: "Pizza", UnitPrice: 10, Quantity: 2},
			order.OrderItem{ItemID: "y", Title: "Ensalada", UnitPrice: 5, Quantity: 1},
		)

		storeA := order.NewMemoryStore()
		seedOrder(t, storeA, seed)
		a, err := order.NewService(storeA, nil).SetItemQuantity(ctx, customer, customer.ID, "x", 0)
		require.NoError(t, err)

		storeB := order.NewMemoryStore()
		seedOrder(t, storeB, seed)
		b, err := order.NewService(storeB, nil).RemoveItem(ctx, customer, customer.ID, "x")
		require.NoError(t, err)

		assert.Equal(t, a.Items, b.Items)
	})

	t.Run("mutation_outside_cart_fails_and_leaves_order_unchanged", func(t *testing.T) {
		for _, status := range []order.Status{order.StatusPending, order.StatusPreparing, order.StatusReady} {
			t.Run(status.String(), func(t *testing.T) {
				store := order.NewMemoryStore()
				svc := order.NewService(store, nil)
				o := cartOrder(customer.ID, order.OrderItem{ItemID: "x", Quantity: 3})
				o.Status = status
				seedOrder(t, store, o)

				_, err := svc.SetItemQuantity(ctx, customer, customer.ID, "x", 1)
				assert.ErrorIs(t, err, order.ErrInvalidState)

				stored, err := store.Get(ctx, customer.ID)
				require.NoError(t, err)
				assert.Equal(t, 3, stored.Items[0].Quantity)
				assert.Equal(t, status, stored.Status)
			})
		}
	})

	t.Run("negative_quantity_rejected", func(t *testing.T) {
		store := order.NewMemoryStore()
		svc := order.NewService(store, nil)
		seedOrder(t, store, cartOrder(customer.ID, order.OrderItem{ItemID: "x", Quantity: 1}))

		_, err := svc.SetItemQuantity(ctx, customer, customer.ID, "x", -1)
		assert.ErrorIs(t, err, order.ErrInvalidItem)
	})

	t.Run("missing_order_fails", func(t *testing.T) {
		svc := order.NewService(order.NewMemoryStore(), nil)

		_, err := svc.SetItemQuantity(ctx, customer, customer.ID, "x", 1)
		assert.ErrorIs(t, err, order.ErrNotFound)
	})
}

func TestService_AssignTable(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns_and_overwrites", func(t *testing.T) {
		store := order.NewMemoryStore()
		svc := order.NewService(store, nil)
		seedOrder(t, store, cartOrder(customer.ID, order.OrderItem{ItemID: "x", Quantity: 1}))

		o, err := svc.AssignTable(ctx, customer, customer.ID, "mesa-4")
		require.NoError(t, err)
		assert.Equal(t, "mesa-4", o.TableID)

		// Last write wins: a second scan rebinds the table.
		o, err = svc.AssignTable(ctx, customer, customer.ID, "mesa-9")
		require.NoError(t, err)
		assert.Equal(t, "mesa-9", o.TableID)
	})

	t.Run("fails_after_submit", func(t *testing.T) {
		store := order.NewMemoryStore()
		svc := order.NewService(store, nil)
		o := cartOrder(customer.ID, order.OrderItem{ItemID: "x", Quantity: 1})
		o.Status = order.StatusPending
		seedOrder(t, store, o)

		_, err := svc.AssignTable(ctx, customer, customer.ID, "mesa-4")
		assert.ErrorIs(t, err, order.ErrInvalidState)
	})
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("unassigned_table_fails_regardless_of_items", func(t *testing.T) {
		store := order.NewMemoryStore()
		svc := order.NewService(store, nil)
		seedOrder(t, store, cartOrder(customer.ID, order.OrderItem{ItemID: "x", Quantity: 1}))

		_, err := svc.Submit(ctx, customer, customer.ID)
		assert.ErrorIs(t, err, order.ErrTableUnassigned)

		stored, err := store.Get(ctx, customer.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusCart, stored.Status)
	})

	t.Run("empty_order_fails_even_with_table", func(t *testing.T) {
		store := order.NewMemoryStore()
		svc := order.NewService(store, nil)
		o := cartOrder(customer.ID)
		o.TableID = "mesa-1"
		seedOrder(t, store, o)

		_, err := svc.Submit(ctx, customer, customer.ID)
		assert.ErrorIs(t, err, order.ErrEmptyOrder)
	})

	t.Run("sends_cart_to_kitchen", func(t *testing.T) {
		store := order.NewMemoryStore()
		publisher := &recordingPublisher{}
		svc := order.NewService(store, publisher)
		o := cartOrder(customer.ID, order.OrderItem{ItemID: "x", UnitPrice: 8, Quantity: 2})
		o.TableID = "mesa-1"
		seedOrder(t, store, o)

		submitted, err := svc.Submit(ctx, customer, customer.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusPending, submitted.Status)

		require.Len(t, publisher.updates, 1)
		assert.Equal(t, "cart", publisher.updates[0].OldStatus)
		assert.Equal(t, "pending", publisher.updates[0].NewStatus)
		assert.Equal(t, 16.0, publisher.updates[0].Total)
	})

	t.Run("staff_cannot_submit", func(t *testing.T) {
		svc := order.NewService(order.NewMemoryStore(), nil)

		_, err := svc.Submit(ctx, cook, customer.ID)
		assert.ErrorIs(t, err, order.ErrUnauthorized)
		_, err = svc.Submit(ctx, cashier, customer.ID)
		assert.ErrorIs(t, err, order.ErrUnauthorized)
	})

	t.Run("missing_order_fails", func(t *testing.T) {
		svc := order.NewService(order.NewMemoryStore(), nil)

		_, err := svc.Submit(ctx, customer, customer.ID)
		assert.ErrorIs(t, err, order.ErrNotFound)
	})
}

func TestService_KitchenTransitions(t *testing.T) {
	ctx := context.Background()

	submitted := func(t *testing.T) (*order.MemoryStore, order.Service) {
		store := order.NewMemoryStore()
		svc := order.NewService(store, nil)
		o := cartOrder(customer.ID, order.OrderItem{ItemID: "x", UnitPrice: 8, Quantity: 1})
		o.TableID = "mesa-1"
		o.Status = order.StatusPending
		seedOrder(t, store, o)
		return store, svc
	}

	t.Run("accept_then_ready", func(t *testing.T) {
		_, svc := submitted(t)

		o, err := svc.Accept(ctx, cook, customer.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusPreparing, o.Status)

		o, err = svc.MarkReady(ctx, cook, customer.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusReady, o.Status)
	})

	t.Run("accept_twice_fails", func(t *testing.T) {
		_, svc := submitted(t)

		_, err := svc.Accept(ctx, cook, customer.ID)
		require.NoError(t, err)
		_, err = svc.Accept(ctx, cook, customer.ID)
		assert.ErrorIs(t, err, order.ErrInvalidState)
	})

	t.Run("ready_before_accept_fails", func(t *testing.T) {
		_, svc := submitted(t)

		_, err := svc.MarkReady(ctx, cook, customer.ID)
		assert.ErrorIs(t, err, order.ErrInvalidState)
	})

	t.Run("only_cook_transitions", func(t *testing.T) {
		_, svc := submitted(t)

		_, err := svc.Accept(ctx, customer, customer.ID)
		assert.ErrorIs(t, err, order.ErrUnauthorized)
		_, err = svc.Accept(ctx, cashier, customer.ID)
		assert.ErrorIs(t, err, order.ErrUnauthorized)
	})

	t.Run("no_path_back_to_cart", func(t *testing.T) {
		_, svc := submitted(t)

		_, err := svc.Accept(ctx, cook, customer.ID)
		require.NoError(t, err)

		_, err = svc.SetItemQuantity(ctx, customer, customer.ID, "x", 5)
		assert.ErrorIs(t, err, order.ErrInvalidState)
		_, err = svc.AssignTable(ctx, customer, customer.ID, "mesa-2")
		assert.ErrorIs(t, err, order.ErrInvalidState)
	})
}

func TestService_Settle(t *testing.T) {
	ctx := context.Background()

	readyOrder := func(t *testing.T, store *order.MemoryStore) {
		o := cartOrder(customer.ID,
			order.OrderItem{ItemID: "x", Title: "Pizza", UnitPrice: 10, Quantity: 2},
			order.OrderItem{ItemID: "y", Title: "Agua", UnitPrice: 1.5, Quantity: 1},
		)
		o.TableID = "mesa-1"
		o.Status = order.StatusReady
		seedOrder(t, store, o)
	}

	t.Run("cashier_settles_and_archives", func(t *testing.T) {
		store := order.NewMemoryStore()
		svc := order.NewService(store, nil)
		readyOrder(t, store)

		rec, err := svc.Settle(ctx, cashier, customer.ID)
		require.NoError(t, err)
		assert.Equal(t, 21.5, rec.Total)
		assert.Equal(t, cashier.ID, rec.SettledBy)

		// The active record is gone.
		_, err = store.Get(ctx, customer.ID)
		assert.ErrorIs(t, err, order.ErrNotFound)

		// The archive keeps the audit trail.
		archived, err := svc.Receipt(ctx, cashier, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, customer.ID, archived.CustomerID)
		assert.Len(t, archived.Items, 2)
	})

	t.Run("owner_settles_own_order", func(t *testing.T) {
		store := order.NewMemoryStore()
		svc := order.NewService(store, nil)
		readyOrder(t, store)

		_, err := svc.Settle(ctx, customer, customer.ID)
		require.NoError(t, err)
	})

	t.Run("customer_cannot_settle_foreign_order", func(t *testing.T) {
		store := order.NewMemoryStore()
		svc := order.NewService(store, nil)
		readyOrder(t, store)

		_, err := svc.Settle(ctx, otherCustomer, customer.ID)
		assert.ErrorIs(t, err, order.ErrUnauthorized)
	})

	t.Run("settle_before_ready_fails", func(t *testing.T) {
		store := order.NewMemoryStore()
		svc := order.NewService(store, nil)
		o := cartOrder(customer.ID, order.OrderItem{ItemID: "x", Quantity: 1})
		o.TableID = "mesa-1"
		o.Status = order.StatusPreparing
		seedOrder(t, store, o)

		_, err := svc.Settle(ctx, cashier, customer.ID)
		assert.ErrorIs(t, err, order.ErrInvalidState)
	})

	t.Run("settle_twice_reports_not_found", func(t *testing.T) {
		store := order.NewMemoryStore()
		svc := order.NewService(store, nil)
		readyOrder(t, store)

		_, err := svc.Settle(ctx, cashier, customer.ID)
		require.NoError(t, err)
		_, err = svc.Settle(ctx, cashier, customer.ID)
		assert.ErrorIs(t, err, order.ErrNotFound)
	})
}

func TestService_Queues(t *testing.T) {
	ctx := context.Background()
	store := order.NewMemoryStore()
	svc := order.NewService(store, nil)

	for i, st := range []order.Status{order.StatusCart, order.StatusPending, order.StatusPreparing, order.StatusReady} {
		o := cartOrder(string(rune('a' + i)))
		o.Status = st
		o.TableID = "mesa-1"
		o.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		o.UpdatedAt = o.CreatedAt
		seedOrder(t, store, o)
	}

	t.Run("kitchen_sees_pending_and_preparing", func(t *testing.T) {
		orders, err := svc.KitchenQueue(ctx, cook)
		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Equal(t, order.StatusPending, orders[0].Status)
		assert.Equal(t, order.StatusPreparing, orders[1].Status)
	})

	t.Run("cashier_sees_ready", func(t *testing.T) {
		orders, err := svc.ReadyQueue(ctx, cashier)
		require.NoError(t, err)
		require.Len(t, orders, 1)
		assert.Equal(t, order.StatusReady, orders[0].Status)
	})

	t.Run("queues_are_role_gated", func(t *testing.T) {
		_, err := svc.KitchenQueue(ctx, customer)
		assert.ErrorIs(t, err, order.ErrUnauthorized)
		_, err = svc.ReadyQueue(ctx, cook)
		assert.ErrorIs(t, err, order.ErrUnauthorized)
	})
}

func TestService_VersionConflictPropagates(t *testing.T) {
	ctx := context.Background()
	cart := cartOrder(customer.ID, order.OrderItem{ItemID: "x", Quantity: 1})
	cart.Version = 3

	store := &mockStore{
		getFunc: func(ctx context.Context, id string) (*order.Order, error) {
			cp := cart
			return &cp, nil
		},
		updateFunc: func(ctx context.Context, o *order.Order, expectedVersion int64) error {
			assert.Equal(t, int64(3), expectedVersion)
			return order.ErrVersionConflict
		},
	}
	svc := order.NewService(store, nil)

	_, err := svc.SetItemQuantity(ctx, customer, customer.ID, "x", 2)
	assert.ErrorIs(t, err, order.ErrVersionConflict)
}

func TestService_PublishFailureDoesNotFailTransition(t *testing.T) {
	ctx := context.Background()
	store := order.NewMemoryStore()
	publisher := &recordingPublisher{err: errors.New("broker down")}
	svc := order.NewService(store, publisher)

	o := cartOrder(customer.ID, order.OrderItem{ItemID: "x", Quantity: 1})
	o.TableID = "mesa-1"
	seedOrder(t, store, o)

	submitted, err := svc.Submit(ctx, customer, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, submitted.Status)
}
