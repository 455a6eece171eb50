package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Filter selects active orders for the role queues.
type Filter struct {
	Statuses   []Status
	CustomerID string
}

// Store is the order persistence boundary the lifecycle engine talks to.
// Put creates or replaces, Update is a compare-and-swap on Version, and
// Settle atomically archives the order and removes it from the active set.
type Store interface {
	Get(ctx context.Context, id string) (*Order, error)
	Put(ctx context.Context, o *Order) error
	Update(ctx context.Context, o *Order, expectedVersion int64) error
	Settle(ctx context.Context, rec *ArchivedOrder, expectedVersion int64) error
	Query(ctx context.Context, f Filter) ([]Order, error)
	GetArchived(ctx context.Context, id string) (*ArchivedOrder, error)
}

type postgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by the orders, order_items and
// archived_orders tables.
func NewPostgresStore(db *pgxpool.Pool) Store {
	return &postgresStore{db: db}
}

func (s *postgresStore) Get(ctx context.Context, id string) (*Order, error) {
	query := `
		SELECT id, customer_id, table_id, status, version, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var o Order
	err := s.db.QueryRow(ctx, query, id).Scan(
		&o.ID,
		&o.CustomerID,
		&o.TableID,
		&o.Status,
		&o.Version,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order %s: %w", id, err)
	}

	items, err := s.loadItems(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	if o.Items == nil {
		o.Items = []OrderItem{}
	}

	return &o, nil
}

func (s *postgresStore) Put(ctx context.Context, o *Order) error {
	return s.write(ctx, o, nil)
}

func (s *postgresStore) Update(ctx context.Context, o *Order, expectedVersion int64) error {
	return s.write(ctx, o, &expectedVersion)
}

// write persists the full order snapshot. With expectedVersion set it is a
// CAS update; without it the order row is created or replaced. Items are
// rewritten inside the same transaction so the snapshot is never half
// visible.
func (s *postgresStore) write(ctx context.Context, o *Order, expectedVersion *int64) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Str("order_id", o.ID).Msg("repository: failed to rollback order write")
			}
		}
	}()

	if expectedVersion == nil {
		queryOrder := `
			INSERT INTO orders (id, customer_id, table_id, status, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				customer_id = EXCLUDED.customer_id,
				table_id = EXCLUDED.table_id,
				status = EXCLUDED.status,
				version = EXCLUDED.version,
				created_at = EXCLUDED.created_at,
				updated_at = EXCLUDED.updated_at
		`
		_, err = tx.Exec(ctx, queryOrder,
			o.ID, o.CustomerID, o.TableID, string(o.Status), o.Version, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("repository: failed to put order %s: %w", o.ID, err)
		}
	} else {
		queryOrder := `
			UPDATE orders
			SET table_id = $1, status = $2, version = $3, updated_at = $4
			WHERE id = $5 AND version = $6
		`
		cmdTag, execErr := tx.Exec(ctx, queryOrder,
			o.TableID, string(o.Status), o.Version, o.UpdatedAt, o.ID, *expectedVersion)
		if execErr != nil {
			err = fmt.Errorf("repository: failed to update order %s: %w", o.ID, execErr)
			return err
		}
		if cmdTag.RowsAffected() == 0 {
			// Either the row is gone or another writer bumped the version.
			var exists bool
			if scanErr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); scanErr != nil {
				err = fmt.Errorf("repository: failed to check order %s existence: %w", o.ID, scanErr)
				return err
			}
			if !exists {
				err = ErrNotFound
				return err
			}
			err = ErrVersionConflict
			return err
		}
	}

	_, err = tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, o.ID)
	if err != nil {
		return fmt.Errorf("repository: failed to clear items for order %s: %w", o.ID, err)
	}

	queryItem := `
		INSERT INTO order_items (order_id, item_id, title, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, it := range o.Items {
		_, err = tx.Exec(ctx, queryItem, o.ID, it.ItemID, it.Title, it.UnitPrice, it.Quantity)
		if err != nil {
			return fmt.Errorf("repository: failed to insert item %s for order %s: %w", it.ItemID, o.ID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit order write %s: %w", o.ID, err)
	}
	return nil
}

func (s *postgresStore) Settle(ctx context.Context, rec *ArchivedOrder, expectedVersion int64) (err error) {
	itemsJSON, err := json.Marshal(rec.Items)
	if err != nil {
		return fmt.Errorf("repository: failed to marshal archived items for order %s: %w", rec.OrderID, err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Str("order_id", rec.OrderID).Msg("repository: failed to rollback settle")
			}
		}
	}()

	cmdTag, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1 AND version = $2`, rec.OrderID, expectedVersion)
	if err != nil {
		return fmt.Errorf("repository: failed to delete order %s: %w", rec.OrderID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		var exists bool
		if scanErr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, rec.OrderID).Scan(&exists); scanErr != nil {
			err = fmt.Errorf("repository: failed to check order %s existence: %w", rec.OrderID, scanErr)
			return err
		}
		if !exists {
			err = ErrNotFound
			return err
		}
		err = ErrVersionConflict
		return err
	}

	queryArchive := `
		INSERT INTO archived_orders (id, order_id, customer_id, table_id, items, total, created_at, settled_at, settled_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = tx.Exec(ctx, queryArchive,
		rec.ID, rec.OrderID, rec.CustomerID, rec.TableID, itemsJSON, rec.Total,
		rec.CreatedAt, rec.SettledAt, rec.SettledBy)
	if err != nil {
		return fmt.Errorf("repository: failed to archive order %s: %w", rec.OrderID, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit settle for order %s: %w", rec.OrderID, err)
	}
	return nil
}

func (s *postgresStore) Query(ctx context.Context, f Filter) ([]Order, error) {
	query := `
		SELECT id, customer_id, table_id, status, version, created_at, updated_at
		FROM orders
		WHERE ($1::text[] IS NULL OR status = ANY($1))
		  AND ($2 = '' OR customer_id = $2)
		ORDER BY created_at ASC
	`

	var statuses []string
	for _, st := range f.Statuses {
		statuses = append(statuses, string(st))
	}

	rows, err := s.db.Query(ctx, query, statuses, f.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	ordersByID := make(map[string]*Order)
	var ids []string
	for rows.Next() {
		var o Order
		err := rows.Scan(&o.ID, &o.CustomerID, &o.TableID, &o.Status, &o.Version, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		o.Items = []OrderItem{}
		ordersByID[o.ID] = &o
		ids = append(ids, o.ID)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders: %w", err)
	}

	if len(ids) == 0 {
		return []Order{}, nil
	}

	itemsByOrder, err := s.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for id, items := range itemsByOrder {
		if o, ok := ordersByID[id]; ok {
			o.Items = items
		}
	}

	result := make([]Order, 0, len(ids))
	for _, id := range ids {
		result = append(result, *ordersByID[id])
	}
	return result, nil
}

func (s *postgresStore) GetArchived(ctx context.Context, id string) (*ArchivedOrder, error) {
	query := `
		SELECT id, order_id, customer_id, table_id, items, total, created_at, settled_at, settled_by
		FROM archived_orders
		WHERE id = $1 OR order_id = $1
		ORDER BY settled_at DESC
		LIMIT 1
	`

	var rec ArchivedOrder
	var itemsJSON []byte
	err := s.db.QueryRow(ctx, query, id).Scan(
		&rec.ID,
		&rec.OrderID,
		&rec.CustomerID,
		&rec.TableID,
		&itemsJSON,
		&rec.Total,
		&rec.CreatedAt,
		&rec.SettledAt,
		&rec.SettledBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select archived order %s: %w", id, err)
	}

	if err := json.Unmarshal(itemsJSON, &rec.Items); err != nil {
		return nil, fmt.Errorf("repository: failed to unmarshal archived items for %s: %w", id, err)
	}

	return &rec, nil
}

func (s *postgresStore) loadItems(ctx context.Context, orderIDs []string) (map[string][]OrderItem, error) {
	query := `
		SELECT order_id, item_id, title, unit_price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY title ASC
	`

	rows, err := s.db.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	itemsByOrder := make(map[string][]OrderItem)
	for rows.Next() {
		var orderID string
		var it OrderItem
		if err := rows.Scan(&orderID, &it.ItemID, &it.Title, &it.UnitPrice, &it.Quantity); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		itemsByOrder[orderID] = append(itemsByOrder[orderID], it)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items: %w", err)
	}

	return itemsByOrder, nil
}
