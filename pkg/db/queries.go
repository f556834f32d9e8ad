// Package db holds the OMS entity model and its durable stores.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

var _ Store = (*Database)(nil)

// ----------------------------------------
// SenderInfo Queries
// ----------------------------------------

// PutSenderInfo writes the sender record for a router id.
func (d *Database) PutSenderInfo(ctx context.Context, routerID string, info SenderInfo) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO sender_info (router_id, client_order_id, sender_comp_id, strategy, team)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(router_id) DO UPDATE SET
			client_order_id = excluded.client_order_id,
			sender_comp_id = excluded.sender_comp_id,
			strategy = excluded.strategy,
			team = excluded.team
	`, routerID, info.ClientOrderID, info.SenderCompID, info.Strategy, info.Team)
	if err != nil {
		return fmt.Errorf("put sender info %s: %w", routerID, err)
	}
	return nil
}

// GetSenderInfo returns ErrNotFound when the router id was never routed.
func (d *Database) GetSenderInfo(ctx context.Context, routerID string) (SenderInfo, error) {
	var info SenderInfo
	err := d.DB.QueryRowContext(ctx, `
		SELECT client_order_id, sender_comp_id, strategy, team
		FROM sender_info WHERE router_id = ?
	`, routerID).Scan(&info.ClientOrderID, &info.SenderCompID, &info.Strategy, &info.Team)
	if errors.Is(err, sql.ErrNoRows) {
		return SenderInfo{}, ErrNotFound
	}
	if err != nil {
		return SenderInfo{}, fmt.Errorf("get sender info %s: %w", routerID, err)
	}
	return info, nil
}

// ScanSenderInfo visits every sender record in insertion order.
func (d *Database) ScanSenderInfo(ctx context.Context, fn SenderVisitor) error {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT router_id, client_order_id, sender_comp_id, strategy, team
		FROM sender_info ORDER BY rowid
	`)
	if err != nil {
		return fmt.Errorf("scan sender info: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			routerID string
			info     SenderInfo
		)
		if err := rows.Scan(&routerID, &info.ClientOrderID, &info.SenderCompID, &info.Strategy, &info.Team); err != nil {
			return fmt.Errorf("scan sender info row: %w", err)
		}
		if err := fn(routerID, info); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ----------------------------------------
// Order / Position / Trade Queries
// ----------------------------------------

// GetOrder loads an order by exchange order id.
func (d *Database) GetOrder(ctx context.Context, id string) (Order, error) {
	var (
		o        Order
		execJSON string
		prevJSON string
	)
	err := d.DB.QueryRowContext(ctx, `
		SELECT id, exchange, symbol, version, price, qty, exec, prev_versions, pending_cancel, pending_amend
		FROM orders WHERE id = ?
	`, id).Scan(&o.ID, &o.Exchange, &o.Symbol, &o.Version, &o.PQ.Price, &o.PQ.Quantity,
		&execJSON, &prevJSON, &o.PendingCancel, &o.PendingAmend)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(execJSON), &o.Exec); err != nil {
		return Order{}, fmt.Errorf("decode exec for order %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(prevJSON), &o.PrevVersions); err != nil {
		return Order{}, fmt.Errorf("decode versions for order %s: %w", id, err)
	}
	return o, nil
}

// GetPosition loads a position by exchange|symbol id.
func (d *Database) GetPosition(ctx context.Context, id string) (Position, error) {
	p := Position{ID: id}
	err := d.DB.QueryRowContext(ctx, `
		SELECT price, qty, amount FROM positions WHERE id = ?
	`, id).Scan(&p.PQ.Price, &p.PQ.Quantity, &p.Amount)
	if errors.Is(err, sql.ErrNoRows) {
		return Position{}, ErrNotFound
	}
	if err != nil {
		return Position{}, fmt.Errorf("get position %s: %w", id, err)
	}
	return p, nil
}

// ListPositions returns every position ordered by id.
func (d *Database) ListPositions(ctx context.Context) ([]Position, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, price, qty, amount FROM positions ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.ID, &p.PQ.Price, &p.PQ.Quantity, &p.Amount); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// GetTrade loads a trade by execution id.
func (d *Database) GetTrade(ctx context.Context, execID string) (Trade, error) {
	t := Trade{ID: execID}
	err := d.DB.QueryRowContext(ctx, `
		SELECT order_id, price, qty FROM trades WHERE exec_id = ?
	`, execID).Scan(&t.OrderID, &t.Price, &t.Quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return Trade{}, ErrNotFound
	}
	if err != nil {
		return Trade{}, fmt.Errorf("get trade %s: %w", execID, err)
	}
	return t, nil
}

// Commit writes the batch in a single transaction.
func (d *Database) Commit(ctx context.Context, b Batch) error {
	if b.Empty() {
		return nil
	}
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if b.Order != nil {
			if err := upsertOrder(ctx, tx, *b.Order); err != nil {
				return err
			}
		}
		if b.Position != nil {
			p := b.Position
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO positions (id, price, qty, amount, updated_at)
				VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
				ON CONFLICT(id) DO UPDATE SET
					price = excluded.price,
					qty = excluded.qty,
					amount = excluded.amount,
					updated_at = CURRENT_TIMESTAMP
			`, p.ID, p.PQ.Price, p.PQ.Quantity, p.Amount); err != nil {
				return fmt.Errorf("upsert position %s: %w", p.ID, err)
			}
		}
		if b.Trade != nil {
			t := b.Trade
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO trades (exec_id, order_id, price, qty)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(exec_id) DO UPDATE SET
					order_id = excluded.order_id,
					price = excluded.price,
					qty = excluded.qty
			`, t.ID, t.OrderID, t.Price, t.Quantity); err != nil {
				return fmt.Errorf("upsert trade %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

func upsertOrder(ctx context.Context, tx *sql.Tx, o Order) error {
	execJSON, err := json.Marshal(o.Exec)
	if err != nil {
		return fmt.Errorf("encode exec for order %s: %w", o.ID, err)
	}
	prev := o.PrevVersions
	if prev == nil {
		prev = []PQ{}
	}
	prevJSON, err := json.Marshal(prev)
	if err != nil {
		return fmt.Errorf("encode versions for order %s: %w", o.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, exchange, symbol, version, price, qty, exec, prev_versions, pending_cancel, pending_amend, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			exchange = excluded.exchange,
			symbol = excluded.symbol,
			version = excluded.version,
			price = excluded.price,
			qty = excluded.qty,
			exec = excluded.exec,
			prev_versions = excluded.prev_versions,
			pending_cancel = excluded.pending_cancel,
			pending_amend = excluded.pending_amend,
			updated_at = CURRENT_TIMESTAMP
	`, o.ID, o.Exchange, o.Symbol, o.Version, o.PQ.Price, o.PQ.Quantity,
		string(execJSON), string(prevJSON), o.PendingCancel, o.PendingAmend)
	if err != nil {
		return fmt.Errorf("upsert order %s: %w", o.ID, err)
	}
	return nil
}

// ----------------------------------------
// Counters
// ----------------------------------------

// Sequence is a durable named counter stored in the counters table.
type Sequence struct {
	db   *Database
	name string
}

// Sequence returns the named counter handle.
func (d *Database) Sequence(name string) *Sequence {
	return &Sequence{db: d, name: name}
}

// Increment atomically bumps the counter and returns the new value.
func (s *Sequence) Increment(ctx context.Context) (int64, error) {
	var next int64
	err := s.db.DB.QueryRowContext(ctx, `
		INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value
	`, s.name).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", s.name, err)
	}
	return next, nil
}

// Floor raises the counter to at least floor. It never lowers it.
func (s *Sequence) Floor(ctx context.Context, floor int64) error {
	_, err := s.db.DB.ExecContext(ctx, `
		INSERT INTO counters (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = MAX(value, excluded.value)
	`, s.name, floor)
	if err != nil {
		return fmt.Errorf("floor counter %s: %w", s.name, err)
	}
	return nil
}
