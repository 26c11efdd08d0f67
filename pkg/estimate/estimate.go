// Package estimate is the schema and query layer for silver estimates. It
// consumes the live working-copy connection from the vault and calls back
// into the flush pipeline after every mutation it wants persisted.
package estimate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Estimate is a customer estimate header with its line items.
type Estimate struct {
	ID          string
	VoucherNo   string
	Date        time.Time
	SilverRate  float64 // rupees per kg
	Note        string
	TotalGross  float64
	TotalNet    float64
	TotalFine   float64
	TotalAmount float64
	CreatedAt   time.Time
	Items       []Item
}

// Item is a single line of an estimate.
type Item struct {
	ID        int64
	ItemName  string
	GrossWt   float64
	PolyWt    float64
	NetWt     float64
	Purity    float64
	FineWt    float64
	LaborRate float64
	Amount    float64
}

// Store provides estimate persistence over the working-copy connection.
// flush schedules persistence of committed writes into the encrypted file;
// it is called after every mutation.
type Store struct {
	db    *sql.DB
	flush func()
}

// NewStore wraps the live connection. flush may be nil when no persistence
// callback is wanted (tests).
func NewStore(db *sql.DB, flush func()) *Store {
	return &Store{db: db, flush: flush}
}

func (s *Store) requestFlush() {
	if s.flush != nil {
		s.flush()
	}
}

// SaveEstimate inserts an estimate and its items in one transaction,
// replacing any existing estimate with the same voucher number.
func (s *Store) SaveEstimate(ctx context.Context, e *Estimate) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM estimates WHERE voucher_no = ?`, e.VoucherNo); err != nil {
		return fmt.Errorf("failed to replace estimate: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO estimates (id, voucher_no, date, silver_rate, note, total_gross, total_net, total_fine, total_amount, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.VoucherNo, e.Date.Unix(), e.SilverRate, e.Note,
		e.TotalGross, e.TotalNet, e.TotalFine, e.TotalAmount, e.CreatedAt.Unix(),
	); err != nil {
		return fmt.Errorf("failed to insert estimate: %w", err)
	}
	for i := range e.Items {
		it := &e.Items[i]
		res, err := tx.ExecContext(ctx,
			`INSERT INTO estimate_items (estimate_id, item_name, gross_wt, poly_wt, net_wt, purity, fine_wt, labor_rate, amount)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, it.ItemName, it.GrossWt, it.PolyWt, it.NetWt, it.Purity, it.FineWt, it.LaborRate, it.Amount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert estimate item: %w", err)
		}
		it.ID, _ = res.LastInsertId()
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit estimate: %w", err)
	}
	s.requestFlush()
	return nil
}

// GetEstimate retrieves an estimate and its items by voucher number.
func (s *Store) GetEstimate(ctx context.Context, voucherNo string) (*Estimate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, voucher_no, date, silver_rate, note, total_gross, total_net, total_fine, total_amount, created_at
		 FROM estimates WHERE voucher_no = ?`, voucherNo)
	e, err := scanEstimate(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("estimate not found: %s", voucherNo)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan estimate: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_name, gross_wt, poly_wt, net_wt, purity, fine_wt, labor_rate, amount
		 FROM estimate_items WHERE estimate_id = ? ORDER BY id`, e.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list estimate items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.ItemName, &it.GrossWt, &it.PolyWt, &it.NetWt, &it.Purity, &it.FineWt, &it.LaborRate, &it.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan estimate item: %w", err)
		}
		e.Items = append(e.Items, it)
	}
	return e, rows.Err()
}

// ListEstimates returns all estimate headers, newest first. Items are not
// populated.
func (s *Store) ListEstimates(ctx context.Context) ([]*Estimate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, voucher_no, date, silver_rate, note, total_gross, total_net, total_fine, total_amount, created_at
		 FROM estimates ORDER BY date DESC, voucher_no DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list estimates: %w", err)
	}
	defer rows.Close()

	var out []*Estimate
	for rows.Next() {
		e, err := scanEstimate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan estimate: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteEstimate removes an estimate and, via cascade, its items.
func (s *Store) DeleteEstimate(ctx context.Context, voucherNo string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM estimates WHERE voucher_no = ?`, voucherNo)
	if err != nil {
		return fmt.Errorf("failed to delete estimate: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("estimate not found: %s", voucherNo)
	}
	s.requestFlush()
	return nil
}

// Count returns the number of estimates.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM estimates`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count estimates: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEstimate(row scanner) (*Estimate, error) {
	var e Estimate
	var date, createdAt int64
	if err := row.Scan(&e.ID, &e.VoucherNo, &date, &e.SilverRate, &e.Note,
		&e.TotalGross, &e.TotalNet, &e.TotalFine, &e.TotalAmount, &createdAt); err != nil {
		return nil, err
	}
	e.Date = time.Unix(date, 0)
	e.CreatedAt = time.Unix(createdAt, 0)
	return &e, nil
}
