package domain

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"2025-01-01", "2025-01-01", false},
		{"2024-02-29", "2024-02-29", false},
		{"2025-02-29", "", true},
		{"2025-1-1", "", true},
		{"01/05/2025", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d, err := ParseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if err == nil && d.String() != tt.want {
				t.Errorf("ParseDate(%q) = %s, want %s", tt.input, d, tt.want)
			}
		})
	}
}

func TestDate_AddDays(t *testing.T) {
	tests := []struct {
		start string
		days  int
		want  string
	}{
		{"2025-01-01", 0, "2025-01-01"},
		{"2025-01-01", 12, "2025-01-13"},
		{"2025-01-31", 1, "2025-02-01"},
		{"2024-02-28", 1, "2024-02-29"},
		{"2025-12-31", 1, "2026-01-01"},
		{"2025-03-01", -1, "2025-02-28"},
	}

	for _, tt := range tests {
		got := MustParseDate(tt.start).AddDays(tt.days)
		if got.String() != tt.want {
			t.Errorf("%s.AddDays(%d) = %s, want %s", tt.start, tt.days, got, tt.want)
		}
	}
}

func TestDate_DaysSince(t *testing.T) {
	a := MustParseDate("2025-01-01")
	b := MustParseDate("2025-03-01")

	if got := b.DaysSince(a); got != 59 {
		t.Errorf("DaysSince = %d, want 59", got)
	}
	if got := a.DaysSince(b); got != -59 {
		t.Errorf("DaysSince = %d, want -59", got)
	}

	// Spans beyond what time.Duration can hold
	far := MustParseDate("2525-01-01")
	if got, want := far.DaysSince(a), 182621; got != want {
		t.Errorf("DaysSince over 500 years = %d, want %d", got, want)
	}
	if got, want := MustParseDate("9999-12-31").DaysSince(MustParseDate("0001-01-01")), 3652058; got != want {
		t.Errorf("DaysSince full range = %d, want %d", got, want)
	}
}

func TestDate_Shift(t *testing.T) {
	start := MustParseDate("2025-01-01")

	tests := []struct {
		name    string
		from    Date
		days    int
		want    string
		wantErr bool
	}{
		{"forward", start, 31, "2025-02-01", false},
		{"backward", start, -1, "2024-12-31", false},
		{"last supported day", MustParseDate("9999-12-30"), 1, "9999-12-31", false},
		{"past year 9999", start, 3_000_000, "", true},
		{"before year 1", MustParseDate("0001-01-01"), -1, "", true},
		{"offset overflow", start, math.MaxInt, "", true},
		{"negative overflow", start, math.MinInt, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.from.Shift(tt.days)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidOperation) {
					t.Fatalf("Shift(%d) error = %v, want ErrInvalidOperation", tt.days, err)
				}
				if !got.Equal(tt.from) {
					t.Errorf("Shift(%d) = %s on error, want unchanged %s", tt.days, got, tt.from)
				}
				return
			}
			if err != nil {
				t.Fatalf("Shift(%d) error = %v", tt.days, err)
			}
			if got.String() != tt.want {
				t.Errorf("Shift(%d) = %s, want %s", tt.days, got, tt.want)
			}
		})
	}
}

func TestDate_ValueRejectsUnstorableYears(t *testing.T) {
	far := MustParseDate("9999-12-31").AddDays(1)
	if _, err := far.Value(); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("Value() error = %v, want ErrInvalidOperation", err)
	}

	v, err := Date{}.Value()
	if err != nil || v != "" {
		t.Errorf("zero Value() = %v, %v, want empty string", v, err)
	}
}

func TestDate_Compare(t *testing.T) {
	a := MustParseDate("2025-01-05")
	b := MustParseDate("2025-01-10")

	if !a.Before(b) || b.Before(a) {
		t.Error("Before ordering wrong")
	}
	if !b.After(a) {
		t.Error("After ordering wrong")
	}
	if a.Compare(b) != -1 || b.Compare(a) != 1 || a.Compare(a) != 0 {
		t.Error("Compare ordering wrong")
	}
	if !a.Equal(DateOf(time.Date(2025, 1, 5, 23, 59, 0, 0, time.UTC))) {
		t.Error("DateOf should drop the time of day")
	}
}

func TestDate_JSON(t *testing.T) {
	type wrapper struct {
		D Date `json:"d"`
	}

	data, err := json.Marshal(wrapper{D: MustParseDate("2025-02-01")})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"d":"2025-02-01"}` {
		t.Errorf("Marshal = %s", data)
	}

	var w wrapper
	if err := json.Unmarshal([]byte(`{"d":"2025-02-03"}`), &w); err != nil {
		t.Fatal(err)
	}
	if w.D.String() != "2025-02-03" {
		t.Errorf("Unmarshal = %s, want 2025-02-03", w.D)
	}

	if err := json.Unmarshal([]byte(`{"d":"tomorrow"}`), &w); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestDate_Scan(t *testing.T) {
	var d Date
	if err := d.Scan("2025-04-01"); err != nil {
		t.Fatal(err)
	}
	if d.String() != "2025-04-01" {
		t.Errorf("Scan = %s", d)
	}
	if err := d.Scan(nil); err != nil || !d.IsZero() {
		t.Errorf("Scan(nil) = %v, %v", d, err)
	}
	if err := d.Scan(42); err == nil {
		t.Error("expected error scanning int")
	}
}
