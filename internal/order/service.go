package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/poscillo/poscillo/internal/events"
)

// Service is the order lifecycle engine. It is stateless: every command
// loads the current snapshot, validates it against the transition table and
// the actor's role, and persists the whole updated snapshot with a
// compare-and-swap on the version. A stale version surfaces as
// ErrVersionConflict; the engine never retries.
type Service interface {
	GetActive(ctx context.Context, actor Actor, customerID string) (*Order, error)
	AddItem(ctx context.Context, actor Actor, customerID string, item OrderItem) (*Order, error)
	SetItemQuantity(ctx context.Context, actor Actor, customerID, itemID string, quantity int) (*Order, error)
	RemoveItem(ctx context.Context, actor Actor, customerID, itemID string) (*Order, error)
	AssignTable(ctx context.Context, actor Actor, customerID, tableID string) (*Order, error)
	Submit(ctx context.Context, actor Actor, customerID string) (*Order, error)
	Accept(ctx context.Context, actor Actor, orderID string) (*Order, error)
	MarkReady(ctx context.Context, actor Actor, orderID string) (*Order, error)
	Settle(ctx context.Context, actor Actor, orderID string) (*ArchivedOrder, error)
	KitchenQueue(ctx context.Context, actor Actor) ([]Order, error)
	ReadyQueue(ctx context.Context, actor Actor) ([]Order, error)
	Receipt(ctx context.Context, actor Actor, id string) (*ArchivedOrder, error)
	Watch(ctx context.Context, actor Actor, f Filter, interval time.Duration) (<-chan []Order, error)
}

type service struct {
	store     Store
	publisher events.Publisher
}

func NewService(store Store, publisher events.Publisher) Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &service{store: store, publisher: publisher}
}

func (s *service) GetActive(ctx context.Context, actor Actor, customerID string) (*Order, error) {
	if actor.Role == RoleCustomer && actor.ID != customerID {
		return nil, ErrUnauthorized
	}

	o, err := s.store.Get(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch active order: %w", err)
	}
	return o, nil
}

func (s *service) AddItem(ctx context.Context, actor Actor, customerID string, item OrderItem) (*Order, error) {
	if err := requireOwner(actor, customerID); err != nil {
		return nil, err
	}
	if item.ItemID == "" {
		return nil, fmt.Errorf("%w: item id is required", ErrInvalidItem)
	}
	if item.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidItem)
	}

	now := time.Now().UTC()

	o, err := s.store.Get(ctx, customerID)
	if errors.Is(err, ErrNotFound) {
		// First add creates the cart.
		o = &Order{
			ID:         customerID,
			CustomerID: customerID,
			TableID:    TableUnassigned,
			Items:      []OrderItem{item},
			Status:     StatusCart,
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.store.Put(ctx, o); err != nil {
			return nil, fmt.Errorf("service: failed to create order: %w", err)
		}
		log.Info().Str("order_id", o.ID).Str("item_id", item.ItemID).Msg("service: cart created")
		return o, nil
	}
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch order: %w", err)
	}

	if o.Status != StatusCart {
		return nil, ErrInvalidState
	}

	if i := o.ItemIndex(item.ItemID); i >= 0 {
		o.Items[i].Quantity += item.Quantity
	} else {
		o.Items = append(o.Items, item)
	}

	return s.commit(ctx, o, now)
}

func (s *service) SetItemQuantity(ctx context.Context, actor Actor, customerID, itemID string, quantity int) (*Order, error) {
	if err := requireOwner(actor, customerID); err != nil {
		return nil, err
	}
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity cannot be negative", ErrInvalidItem)
	}

	o, err := s.cartFor(ctx, customerID)
	if err != nil {
		return nil, err
	}

	// Quantity zero removes the item: the invariant is quantity >= 1 for
	// every stored item. A missing item with a positive quantity is
	// inserted, so the command is a keyed upsert.
	i := o.ItemIndex(itemID)
	switch {
	case i < 0 && quantity == 0:
		return o, nil
	case i < 0:
		o.Items = append(o.Items, OrderItem{ItemID: itemID, Quantity: quantity})
	case quantity == 0:
		o.Items = append(o.Items[:i], o.Items[i+1:]...)
	default:
		o.Items[i].Quantity = quantity
	}

	return s.commit(ctx, o, time.Now().UTC())
}

func (s *service) RemoveItem(ctx context.Context, actor Actor, customerID, itemID string) (*Order, error) {
	return s.SetItemQuantity(ctx, actor, customerID, itemID, 0)
}

func (s *service) AssignTable(ctx context.Context, actor Actor, customerID, tableID string) (*Order, error) {
	if err := requireOwner(actor, customerID); err != nil {
		return nil, err
	}
	if tableID == "" {
		tableID = TableUnassigned
	}

	o, err := s.cartFor(ctx, customerID)
	if err != nil {
		return nil, err
	}

	// Last write wins: scanning a second QR code simply rebinds the table.
	o.TableID = tableID
	return s.commit(ctx, o, time.Now().UTC())
}

func (s *service) Submit(ctx context.Context, actor Actor, customerID string) (*Order, error) {
	if err := requireOwner(actor, customerID); err != nil {
		return nil, err
	}

	o, err := s.cartFor(ctx, customerID)
	if err != nil {
		return nil, err
	}

	// Table precondition is checked before the empty-order check.
	if o.TableID == TableUnassigned || o.TableID == "" {
		return nil, ErrTableUnassigned
	}
	if len(o.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	return s.advance(ctx, o, StatusPending)
}

func (s *service) Accept(ctx context.Context, actor Actor, orderID string) (*Order, error) {
	if actor.Role != RoleCook {
		return nil, ErrUnauthorized
	}
	return s.transition(ctx, orderID, StatusPending, StatusPreparing)
}

func (s *service) MarkReady(ctx context.Context, actor Actor, orderID string) (*Order, error) {
	if actor.Role != RoleCook {
		return nil, ErrUnauthorized
	}
	return s.transition(ctx, orderID, StatusPreparing, StatusReady)
}

func (s *service) Settle(ctx context.Context, actor Actor, orderID string) (*ArchivedOrder, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch order for settle: %w", err)
	}

	// The cashier settles any ready order from the cross-customer queue;
	// a customer settles only their own.
	switch actor.Role {
	case RoleCashier:
	case RoleCustomer:
		if actor.ID != o.CustomerID {
			return nil, ErrUnauthorized
		}
	default:
		return nil, ErrUnauthorized
	}

	if o.Status != StatusReady {
		return nil, ErrInvalidState
	}

	archiveID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate receipt id: %w", err)
	}

	rec := &ArchivedOrder{
		ID:         archiveID.String(),
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		TableID:    o.TableID,
		Items:      o.Items,
		Total:      o.Total(),
		CreatedAt:  o.CreatedAt,
		SettledAt:  time.Now().UTC(),
		SettledBy:  actor.ID,
	}

	if err := s.store.Settle(ctx, rec, o.Version); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service: failed to settle order: %w", err)
	}

	log.Info().
		Str("order_id", o.ID).
		Str("receipt_id", rec.ID).
		Str("settled_by", actor.ID).
		Float64("total", rec.Total).
		Msg("service: order settled")

	s.publish(ctx, o, o.Status, StatusPaid)
	return rec, nil
}

func (s *service) KitchenQueue(ctx context.Context, actor Actor) ([]Order, error) {
	if actor.Role != RoleCook {
		return nil, ErrUnauthorized
	}
	return s.query(ctx, Filter{Statuses: []Status{StatusPending, StatusPreparing}})
}

func (s *service) ReadyQueue(ctx context.Context, actor Actor) ([]Order, error) {
	if actor.Role != RoleCashier {
		return nil, ErrUnauthorized
	}
	return s.query(ctx, Filter{Statuses: []Status{StatusReady}})
}

func (s *service) Receipt(ctx context.Context, actor Actor, id string) (*ArchivedOrder, error) {
	if actor.Role != RoleCashier {
		return nil, ErrUnauthorized
	}

	rec, err := s.store.GetArchived(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch receipt: %w", err)
	}
	return rec, nil
}

// cartFor loads the customer's active order and verifies it is still a
// cart; every item mutation and the table assignment go through here.
func (s *service) cartFor(ctx context.Context, customerID string) (*Order, error) {
	o, err := s.store.Get(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch order: %w", err)
	}
	if o.Status != StatusCart {
		return nil, ErrInvalidState
	}
	return o, nil
}

// transition advances an order along one edge of the lifecycle graph. Any
// other current status fails with ErrInvalidState, including repeats of a
// transition that already happened.
func (s *service) transition(ctx context.Context, orderID string, from, to Status) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch order for transition: %w", err)
	}

	if o.Status != from {
		log.Warn().
			Str("order_id", o.ID).
			Str("current_status", o.Status.String()).
			Str("requested_status", to.String()).
			Msg("service: invalid status transition attempt")
		return nil, ErrInvalidState
	}

	return s.advance(ctx, o, to)
}

func (s *service) advance(ctx context.Context, o *Order, to Status) (*Order, error) {
	if !o.Status.CanTransition(to) {
		return nil, ErrInvalidState
	}

	from := o.Status
	o.Status = to

	updated, err := s.commit(ctx, o, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("order_id", o.ID).
		Str("old_status", from.String()).
		Str("new_status", to.String()).
		Msg("service: order status updated")

	s.publish(ctx, updated, from, to)
	return updated, nil
}

// commit persists the snapshot with a CAS on the version the snapshot was
// loaded at.
func (s *service) commit(ctx context.Context, o *Order, now time.Time) (*Order, error) {
	expected := o.Version
	o.Version++
	o.UpdatedAt = now

	if err := s.store.Update(ctx, o, expected); err != nil {
		if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service: failed to persist order: %w", err)
	}
	return o, nil
}

func (s *service) query(ctx context.Context, f Filter) ([]Order, error) {
	orders, err := s.store.Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("service: failed to query orders: %w", err)
	}
	return orders, nil
}

// publish is best effort: a broken broker must not fail a committed
// transition.
func (s *service) publish(ctx context.Context, o *Order, from, to Status) {
	update := events.StatusUpdate{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		TableID:    o.TableID,
		OldStatus:  from.String(),
		NewStatus:  to.String(),
		Total:      o.Total(),
		OccurredAt: time.Now().UTC(),
	}
	if err := s.publisher.PublishStatusUpdate(ctx, update); err != nil {
		log.Warn().Err(err).Str("order_id", o.ID).Msg("service: failed to publish status update")
	}
}

func requireOwner(actor Actor, customerID string) error {
	if actor.Role != RoleCustomer || actor.ID != customerID {
		return ErrUnauthorized
	}
	return nil
}
