package order

import "time"

// Status is the lifecycle state of an order. Statuses advance forward only;
// the legal edges live in allowedTransitions.
type Status string

const (
	StatusCart      Status = "cart"
	StatusPending   Status = "pending"
	StatusPreparing Status = "preparandose"
	StatusReady     Status = "listo"
	StatusPaid      Status = "paid"
)

func (s Status) String() string {
	return string(s)
}

// allowedTransitions is the single definition of the lifecycle graph.
// There are no backward edges: once an order leaves the cart it can only
// move toward settlement.
var allowedTransitions = map[Status]map[Status]bool{
	StatusCart: {
		StatusPending: true,
	},
	StatusPending: {
		StatusPreparing: true,
	},
	StatusPreparing: {
		StatusReady: true,
	},
	StatusReady: {
		StatusPaid: true,
	},
	StatusPaid: {},
}

// CanTransition reports whether the lifecycle graph has an edge from s to next.
func (s Status) CanTransition(next Status) bool {
	return allowedTransitions[s][next]
}

// TableUnassigned is the sentinel value for an order that has not been
// bound to a table yet. Submit refuses to send such an order to the kitchen.
const TableUnassigned = "Sin Asignar"

// Role identifies which kind of actor issues a command. Which role may
// issue which command is enforced by the service, not assumed.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleCook     Role = "cook"
	RoleCashier  Role = "cashier"
)

// Actor is the authenticated identity attached to every command. It is
// supplied by the authentication boundary; the engine trusts it.
type Actor struct {
	ID   string
	Role Role
}

// OrderItem is a snapshot of a menu dish at the time it was added to the
// order. Items are keyed by ItemID within an order, so updating a quantity
// is a single keyed write rather than a remove+insert pair.
type OrderItem struct {
	ItemID    string  `json:"item_id" db:"item_id"`
	Title     string  `json:"title" db:"title"`
	UnitPrice float64 `json:"unit_price" db:"unit_price"`
	Quantity  int     `json:"quantity" db:"quantity"`
}

// Order is the shared mutable record advanced by the three roles. Active
// orders are keyed by the owning customer (ID == CustomerID), which is what
// enforces "one non-terminal order per customer". Version increases on
// every committed write and is checked on every update.
type Order struct {
	ID         string      `json:"id" db:"id"`
	CustomerID string      `json:"customer_id" db:"customer_id"`
	TableID    string      `json:"table_id" db:"table_id"`
	Items      []OrderItem `json:"items" db:"-"`
	Status     Status      `json:"status" db:"status"`
	Version    int64       `json:"version" db:"version"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}

// Total is the sum of unit price times quantity over all items.
func (o *Order) Total() float64 {
	total := 0.0
	for _, it := range o.Items {
		total += it.UnitPrice * float64(it.Quantity)
	}
	return total
}

// ItemIndex returns the position of the item with the given id, or -1.
func (o *Order) ItemIndex(itemID string) int {
	for i := range o.Items {
		if o.Items[i].ItemID == itemID {
			return i
		}
	}
	return -1
}

// ArchivedOrder is the settlement record kept after an order leaves the
// active set. It answers "was this paid or did it never exist" questions
// that a bare delete cannot.
type ArchivedOrder struct {
	ID         string      `json:"id" db:"id"`
	OrderID    string      `json:"order_id" db:"order_id"`
	CustomerID string      `json:"customer_id" db:"customer_id"`
	TableID    string      `json:"table_id" db:"table_id"`
	Items      []OrderItem `json:"items" db:"-"`
	Total      float64     `json:"total" db:"total"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	SettledAt  time.Time   `json:"settled_at" db:"settled_at"`
	SettledBy  string      `json:"settled_by" db:"settled_by"`
}
