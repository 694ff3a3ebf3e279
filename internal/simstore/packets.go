package simstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hochfrequenz/scenario-sim/internal/domain"
)

// SavePacket inserts or replaces the packet for its date
func (s *Store) SavePacket(ctx context.Context, p *domain.DayPacket) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding packet: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO day_packets (date, id, body, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			id = excluded.id,
			body = excluded.body,
			created_at = excluded.created_at
	`, p.Date, p.ID, string(body), p.CreatedAt)
	return domain.Persistence("save packet", err)
}

// GetPacket retrieves the stored packet for a date
func (s *Store) GetPacket(ctx context.Context, date domain.Date) (*domain.DayPacket, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM day_packets WHERE date = ?`, date).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("packet %s: %w", date, domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.Persistence("get packet", err)
	}

	var p domain.DayPacket
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, domain.Persistence("decode packet", err)
	}
	return &p, nil
}

// ListPacketDates returns the dates that have a stored packet, ascending
func (s *Store) ListPacketDates(ctx context.Context) ([]domain.Date, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date FROM day_packets ORDER BY date`)
	if err != nil {
		return nil, domain.Persistence("list packets", err)
	}
	defer rows.Close()

	var dates []domain.Date
	for rows.Next() {
		var d domain.Date
		if err := rows.Scan(&d); err != nil {
			return nil, domain.Persistence("list packets", err)
		}
		dates = append(dates, d)
	}
	return dates, domain.Persistence("list packets", rows.Err())
}

// DeletePacketsAfter removes packets dated strictly after date
func (s *Store) DeletePacketsAfter(ctx context.Context, date domain.Date) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM day_packets WHERE date > ?`, date)
	if err != nil {
		return 0, domain.Persistence("delete packets", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.Persistence("delete packets", err)
	}
	return int(n), nil
}

// PutFinanceSnapshots upserts a finance series in one transaction
func (s *Store) PutFinanceSnapshots(ctx context.Context, snaps []domain.FinanceSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Persistence("put finance", err)
	}
	defer tx.Rollback()

	for _, f := range snaps {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO finance_snapshots (as_of, cash_on_hand_usd, monthly_burn_usd, revenue_mtd_usd, ap_usd, ar_usd, headcount)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(as_of) DO UPDATE SET
				cash_on_hand_usd = excluded.cash_on_hand_usd,
				monthly_burn_usd = excluded.monthly_burn_usd,
				revenue_mtd_usd = excluded.revenue_mtd_usd,
				ap_usd = excluded.ap_usd,
				ar_usd = excluded.ar_usd,
				headcount = excluded.headcount
		`, f.AsOf, f.CashOnHandUSD, f.MonthlyBurnUSD, f.RevenueMTDUSD, f.APUSD, f.ARUSD, f.Headcount)
		if err != nil {
			return domain.Persistence("put finance", err)
		}
	}

	return domain.Persistence("put finance", tx.Commit())
}

// FinanceAsOf returns the latest snapshot on or before date
func (s *Store) FinanceAsOf(ctx context.Context, date domain.Date) (*domain.FinanceSnapshot, error) {
	var f domain.FinanceSnapshot
	err := s.db.QueryRowContext(ctx, `
		SELECT as_of, cash_on_hand_usd, monthly_burn_usd, revenue_mtd_usd, ap_usd, ar_usd, headcount
		FROM finance_snapshots WHERE as_of <= ? ORDER BY as_of DESC LIMIT 1
	`, date).Scan(&f.AsOf, &f.CashOnHandUSD, &f.MonthlyBurnUSD, &f.RevenueMTDUSD, &f.APUSD, &f.ARUSD, &f.Headcount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("finance snapshot as of %s: %w", date, domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.Persistence("get finance", err)
	}
	return &f, nil
}

// CountFinanceSnapshots reports how many finance rows are seeded
func (s *Store) CountFinanceSnapshots(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM finance_snapshots`).Scan(&n)
	return n, domain.Persistence("count finance", err)
}
