// Package fixtures provides the synthetic company the simulation runs
// against: a finance time series and an employee roster.
package fixtures

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/hochfrequenz/scenario-sim/internal/domain"
	"github.com/hochfrequenz/scenario-sim/internal/observability"
)

const (
	BaseCashUSD       = 420_000_000
	MonthlyBurnUSD    = 14_800_000
	MonthlyRevenueUSD = 12_800_000
	Headcount         = 481

	baseAPUSD = 5_000_000
	baseARUSD = 8_000_000
)

// DefaultDays is how much history Seed writes when none is given
const DefaultDays = 90

// DefaultFinance is the snapshot reported when no fixture covers a date
func DefaultFinance(asOf domain.Date) domain.FinanceSnapshot {
	return domain.FinanceSnapshot{
		AsOf:           asOf,
		CashOnHandUSD:  BaseCashUSD,
		MonthlyBurnUSD: MonthlyBurnUSD,
		RevenueMTDUSD:  38_400_000,
		APUSD:          baseAPUSD,
		ARUSD:          baseARUSD,
		Headcount:      Headcount,
	}
}

// FinanceSeries returns one snapshot per day starting at start. Cash burns
// daily, revenue accrues month-to-date and resets on the 1st, and AP/AR
// oscillate around their baselines.
func FinanceSeries(start domain.Date, days int) []domain.FinanceSnapshot {
	if days <= 0 {
		return nil
	}

	out := make([]domain.FinanceSnapshot, 0, days)
	cash := float64(BaseCashUSD)
	revenueMTD := 0.0

	for i := 0; i < days; i++ {
		date := start.AddDays(i)
		if date.Day() == 1 {
			revenueMTD = 0
		}
		revenueMTD += MonthlyRevenueUSD / 30.0
		cash -= MonthlyBurnUSD / 30.0

		out = append(out, domain.FinanceSnapshot{
			AsOf:           date,
			CashOnHandUSD:  math.Max(0, cash),
			MonthlyBurnUSD: MonthlyBurnUSD,
			RevenueMTDUSD:  revenueMTD,
			APUSD:          baseAPUSD + math.Sin(float64(i)/10)*1_000_000,
			ARUSD:          baseARUSD + math.Cos(float64(i)/7)*2_000_000,
			Headcount:      Headcount,
		})
	}
	return out
}

// FinanceWriter is the persistence Seed needs
type FinanceWriter interface {
	PutFinanceSnapshots(ctx context.Context, snaps []domain.FinanceSnapshot) error
}

// Seed writes days of finance history starting at start. Existing snapshots
// for the same dates are replaced.
func Seed(ctx context.Context, store FinanceWriter, start domain.Date, days int, logger *slog.Logger) (int, error) {
	log := observability.For(logger, observability.ChannelSystem)
	if start.IsZero() {
		return 0, fmt.Errorf("%w: seed start date is required", domain.ErrInvalidOperation)
	}
	if days <= 0 {
		days = DefaultDays
	}

	log.Info("Starting database seed", "start", start.String(), "days", days)
	snaps := FinanceSeries(start, days)
	if err := store.PutFinanceSnapshots(ctx, snaps); err != nil {
		log.Error("Database seed failed", "error", err)
		return 0, err
	}
	log.Info("Database seed completed", "finance_snapshots", len(snaps))
	return len(snaps), nil
}
