package fixtures

import (
	"context"
	"math"
	"testing"

	"github.com/hochfrequenz/scenario-sim/internal/domain"
	"github.com/hochfrequenz/scenario-sim/internal/observability"
	"github.com/hochfrequenz/scenario-sim/internal/simstore/memstore"
)

func TestFinanceSeries(t *testing.T) {
	start := domain.MustParseDate("2025-01-01")
	series := FinanceSeries(start, 90)

	if len(series) != 90 {
		t.Fatalf("len = %d, want 90", len(series))
	}
	if series[89].AsOf.String() != "2025-03-31" {
		t.Errorf("last AsOf = %s, want 2025-03-31", series[89].AsOf)
	}

	first := series[0]
	if want := BaseCashUSD - MonthlyBurnUSD/30.0; math.Abs(first.CashOnHandUSD-want) > 0.01 {
		t.Errorf("day 0 cash = %f, want %f", first.CashOnHandUSD, want)
	}
	if first.APUSD != baseAPUSD {
		t.Errorf("day 0 AP = %f, want %d", first.APUSD, baseAPUSD)
	}
	if first.ARUSD != baseARUSD+2_000_000 {
		t.Errorf("day 0 AR = %f, want %d", first.ARUSD, baseARUSD+2_000_000)
	}

	for i := 1; i < len(series); i++ {
		if series[i].CashOnHandUSD >= series[i-1].CashOnHandUSD {
			t.Fatalf("cash did not fall on day %d", i)
		}
		if series[i].Headcount != Headcount {
			t.Fatalf("headcount day %d = %d", i, series[i].Headcount)
		}
	}

	// Feb 1 resets month-to-date revenue to a single day's accrual.
	feb1 := series[31]
	if feb1.AsOf.String() != "2025-02-01" {
		t.Fatalf("series[31] = %s", feb1.AsOf)
	}
	if math.Abs(feb1.RevenueMTDUSD-MonthlyRevenueUSD/30.0) > 0.01 {
		t.Errorf("Feb 1 revenue MTD = %f, want one day", feb1.RevenueMTDUSD)
	}
	if series[30].RevenueMTDUSD <= feb1.RevenueMTDUSD {
		t.Error("Jan 31 revenue MTD should exceed Feb 1")
	}
}

func TestFinanceSeries_Empty(t *testing.T) {
	if got := FinanceSeries(domain.MustParseDate("2025-01-01"), 0); got != nil {
		t.Errorf("FinanceSeries(0) = %v, want nil", got)
	}
}

func TestEmployees(t *testing.T) {
	staff, err := Employees()
	if err != nil {
		t.Fatal(err)
	}
	if len(staff) != Headcount {
		t.Fatalf("len = %d, want %d", len(staff), Headcount)
	}

	ceo, ok := FindByRole(staff, "CEO")
	if !ok || ceo.Name != "Dr. Elena Zhou" || ceo.Email != "elena.zhou@xiweipharma.com" {
		t.Fatalf("CEO = %+v", ceo)
	}
	if ceo.ManagerID != "" {
		t.Errorf("CEO has manager %q", ceo.ManagerID)
	}

	cso, _ := FindByRole(staff, "CSO")
	safety, _ := FindByRole(staff, "Head of Safety")
	it, _ := FindByRole(staff, "Head of IT & Facilities")

	ids := make(map[string]bool)
	for _, e := range staff {
		if ids[e.ID] {
			t.Fatalf("duplicate id %s", e.ID)
		}
		ids[e.ID] = true
		if e.Site != domain.SiteRedwoodCity && e.Site != domain.SiteShenzhen {
			t.Errorf("%s has site %q", e.Name, e.Site)
		}

		switch {
		case e.Role == "Biosecurity Officer" && e.ManagerID != safety.ID:
			t.Errorf("%s reports to %s, want Head of Safety", e.Name, e.ManagerID)
		case e.Role == "PI" && e.ManagerID != cso.ID:
			t.Errorf("%s reports to %s, want CSO", e.Name, e.ManagerID)
		case e.Role == "Lab Technician" && e.Department == "IT" && e.ManagerID != it.ID:
			t.Errorf("%s reports to %s, want Head of IT", e.Name, e.ManagerID)
		}
	}

	again, _ := Employees()
	if again[100].ID != staff[100].ID {
		t.Error("ids are not stable across calls")
	}
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	n, err := Seed(ctx, store, domain.MustParseDate("2025-01-01"), 0, observability.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if n != DefaultDays {
		t.Errorf("seeded %d, want %d", n, DefaultDays)
	}

	snap, err := store.FinanceAsOf(ctx, domain.MustParseDate("2025-06-01"))
	if err != nil {
		t.Fatal(err)
	}
	if snap.AsOf.String() != "2025-03-31" {
		t.Errorf("latest snapshot = %s, want 2025-03-31", snap.AsOf)
	}
}
