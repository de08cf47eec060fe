package model

import (
	"testing"
	"time"
)

func TestDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{"midday utc", time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC), "2025-03-14"},
		{"already midnight", time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), "2025-03-14"},
		{"local wall clock preserved", time.Date(2025, 3, 14, 22, 0, 0, 0, ny), "2025-03-14"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Day(tt.in)
			if got.Format(ISODate) != tt.want {
				t.Errorf("Day(%v) = %s, want %s", tt.in, got.Format(ISODate), tt.want)
			}
			if got.Location() != time.UTC {
				t.Errorf("Day(%v) location = %v, want UTC", tt.in, got.Location())
			}
			if h, m, s := got.Clock(); h != 0 || m != 0 || s != 0 {
				t.Errorf("Day(%v) clock = %02d:%02d:%02d, want midnight", tt.in, h, m, s)
			}
		})
	}
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2024-07-04")
	if err != nil {
		t.Fatalf("ParseDay: %v", err)
	}
	if d.Format(ISODate) != "2024-07-04" {
		t.Errorf("ParseDay round trip = %s, want 2024-07-04", d.Format(ISODate))
	}
	if d.Location() != time.UTC {
		t.Errorf("ParseDay location = %v, want UTC", d.Location())
	}

	if _, err := ParseDay("07/04/2024"); err == nil {
		t.Error("ParseDay accepted a non-ISO date")
	}
}

func TestSplitLegs(t *testing.T) {
	legs := []OptionQuote{
		{ContractID: "A", Side: SidePut},
		{ContractID: "B", Side: SideCall},
		{ContractID: "C", Side: SidePut},
		{ContractID: "D", Side: SideCall},
	}

	puts, calls := SplitLegs(legs)

	if len(puts) != 2 || len(calls) != 2 {
		t.Fatalf("SplitLegs = %d puts, %d calls, want 2 and 2", len(puts), len(calls))
	}
	if puts[0].ContractID != "A" || puts[1].ContractID != "C" {
		t.Errorf("puts order = %s,%s, want A,C", puts[0].ContractID, puts[1].ContractID)
	}
	if calls[0].ContractID != "B" || calls[1].ContractID != "D" {
		t.Errorf("calls order = %s,%s, want B,D", calls[0].ContractID, calls[1].ContractID)
	}
}

func TestChainLegs(t *testing.T) {
	c := OptionChain{
		Symbol: "AAPL",
		Day:    Day(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)),
		Puts:   []OptionQuote{{ContractID: "P1", Side: SidePut}},
		Calls:  []OptionQuote{{ContractID: "C1", Side: SideCall}},
	}

	legs := c.Legs()
	if len(legs) != 2 {
		t.Fatalf("Legs() len = %d, want 2", len(legs))
	}
	if legs[0].ContractID != "P1" || legs[1].ContractID != "C1" {
		t.Errorf("Legs() order = %s,%s, want P1,C1", legs[0].ContractID, legs[1].ContractID)
	}
}
