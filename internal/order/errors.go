package order

import "errors"

var (
	// ErrNotFound means no active order matches the given id. After
	// settlement the active record is gone, so a settled order reports
	// ErrNotFound too; GetArchived disambiguates.
	ErrNotFound = errors.New("order not found")

	// ErrInvalidState means the command is not legal in the order's
	// current status. Repeating a transition that already happened fails
	// with this error rather than silently succeeding.
	ErrInvalidState = errors.New("command not allowed in current order status")

	// ErrTableUnassigned is the submit precondition: an order cannot go to
	// the kitchen before a table has been assigned.
	ErrTableUnassigned = errors.New("table not assigned")

	// ErrEmptyOrder rejects submitting an order with no items.
	ErrEmptyOrder = errors.New("order has no items")

	// ErrInvalidItem rejects item payloads that violate the item
	// invariants (missing id, quantity below 1 on add, negative quantity
	// on update).
	ErrInvalidItem = errors.New("invalid order item")

	// ErrUnauthorized means the actor's role (or identity, for owner-only
	// commands) does not permit the command.
	ErrUnauthorized = errors.New("actor not permitted for this command")

	// ErrVersionConflict means a concurrent writer committed first. The
	// engine never retries; the caller decides.
	ErrVersionConflict = errors.New("order was modified concurrently")
)
