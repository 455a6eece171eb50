package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Watch re-runs the query on an interval and emits a snapshot whenever the
// observed set changes. The contract is "eventually reflects the latest
// committed state": between polls a consumer may briefly see a stale list.
// The channel closes when ctx is done.
//
// The first snapshot is emitted immediately so a subscriber does not wait
// a full interval for its initial view.
func (s *service) Watch(ctx context.Context, actor Actor, f Filter, interval time.Duration) (<-chan []Order, error) {
	switch actor.Role {
	case RoleCook, RoleCashier:
	case RoleCustomer:
		// A customer may only watch their own orders.
		if f.CustomerID != actor.ID {
			return nil, ErrUnauthorized
		}
	default:
		return nil, ErrUnauthorized
	}

	if interval <= 0 {
		interval = time.Second
	}

	out := make(chan []Order, 1)
	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		lastSeen := ""
		poll := func() {
			orders, err := s.store.Query(ctx, f)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Msg("watch: query failed")
				return
			}
			sig := snapshotSignature(orders)
			if sig == lastSeen {
				return
			}
			lastSeen = sig
			select {
			case out <- orders:
			case <-ctx.Done():
			}
		}

		poll()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				poll()
			}
		}
	}()

	return out, nil
}

// snapshotSignature identifies a query result by the ids and versions it
// contains; any committed write bumps a version, so this catches item and
// table changes as well as transitions.
func snapshotSignature(orders []Order) string {
	var b strings.Builder
	for _, o := range orders {
		fmt.Fprintf(&b, "%s@%d;", o.ID, o.Version)
	}
	return b.String()
}
