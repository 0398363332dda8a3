package expiry

import (
	"testing"
	"time"
)

var today = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

func TestDaysUntil(t *testing.T) {
	tests := []struct {
		name string
		date string
		want int
	}{
		{"empty date", "", NeverExpires},
		{"garbage", "next tuesday", NeverExpires},
		{"today", "2025-03-10", 0},
		{"tomorrow", "2025-03-11", 1},
		{"yesterday", "2025-03-09", -1},
		{"four days out", "2025-03-14", 4},
		{"timestamp form", "2025-03-12T08:00:00", 2},
		{"rfc3339", "2025-03-13T08:00:00Z", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysUntil(tt.date, today); got != tt.want {
				t.Errorf("DaysUntil(%q) = %d, want %d", tt.date, got, tt.want)
			}
		})
	}
}

func TestBand_Boundaries(t *testing.T) {
	tests := []struct {
		days int
		want string
	}{
		{-3, BandRed},
		{0, BandRed},
		{1, BandRed},
		{2, BandAmber},
		{3, BandAmber},
		{4, BandGreen},
		{10, BandGreen},
		{NeverExpires, BandGreen},
	}

	for _, tt := range tests {
		if got := Band(tt.days); got != tt.want {
			t.Errorf("Band(%d) = %q, want %q", tt.days, got, tt.want)
		}
	}
}

func TestScan_BandsAndActions(t *testing.T) {
	inv := []any{
		map[string]any{"name": "Milk", "amount": float64(2), "unit": "pints", "category": "dairy", "bestBefore": "2025-03-11"},
		map[string]any{"name": "Chicken thighs", "amount": "500", "unit": "g", "category": "protein", "bestBefore": "2025-03-12"},
		map[string]any{"name": "Rice", "amount": float64(1), "unit": "kg", "category": "pantry"},
	}

	alerts := Scan(inv, today)

	if len(alerts.Red) != 1 || len(alerts.Amber) != 1 || len(alerts.Green) != 1 {
		t.Fatalf("band sizes = %d/%d/%d, want 1/1/1",
			len(alerts.Red), len(alerts.Amber), len(alerts.Green))
	}

	red := alerts.Red[0]
	if red.Item != "Milk" {
		t.Errorf("red item = %q, want Milk", red.Item)
	}
	if red.DaysUntil != 1 {
		t.Errorf("red daysUntil = %d, want 1", red.DaysUntil)
	}
	if red.Action != "USE TODAY — cook, eat, or freeze immediately" {
		t.Errorf("red action = %q", red.Action)
	}
	if red.Amount != "2 pints" {
		t.Errorf("red amount = %q, want %q", red.Amount, "2 pints")
	}

	if alerts.Amber[0].Action != "Plan to use in next 1-2 meals" {
		t.Errorf("amber action = %q", alerts.Amber[0].Action)
	}

	green := alerts.Green[0]
	if green.DaysUntil != NeverExpires {
		t.Errorf("undated item daysUntil = %d, want %d", green.DaysUntil, NeverExpires)
	}
	if green.Action != "" {
		t.Errorf("green action = %q, want empty", green.Action)
	}
}

func TestScan_PreservesInventoryOrder(t *testing.T) {
	inv := []any{
		map[string]any{"name": "A", "bestBefore": "2025-03-10"},
		map[string]any{"name": "B", "bestBefore": "2025-03-20"},
		map[string]any{"name": "C", "bestBefore": "2025-03-11"},
		map[string]any{"name": "D", "bestBefore": "2025-03-09"},
	}

	alerts := Scan(inv, today)

	wantRed := []string{"A", "C", "D"}
	if len(alerts.Red) != len(wantRed) {
		t.Fatalf("red count = %d, want %d", len(alerts.Red), len(wantRed))
	}
	for i, want := range wantRed {
		if alerts.Red[i].Item != want {
			t.Errorf("red[%d] = %q, want %q", i, alerts.Red[i].Item, want)
		}
	}
}

func TestScan_FallsBackToExpiryKey(t *testing.T) {
	inv := []any{
		map[string]any{"name": "Yoghurt", "expiry": "2025-03-10"},
	}

	alerts := Scan(inv, today)
	if len(alerts.Red) != 1 {
		t.Fatalf("red count = %d, want 1", len(alerts.Red))
	}
	if alerts.Red[0].BestBefore != "2025-03-10" {
		t.Errorf("bestBefore = %q, want expiry value", alerts.Red[0].BestBefore)
	}
}

func TestAnnotate(t *testing.T) {
	item := map[string]any{"name": "Milk", "bestBefore": "2025-03-11"}
	Annotate([]any{item}, today)

	if item["_daysUntil"] != 1 {
		t.Errorf("_daysUntil = %v, want 1", item["_daysUntil"])
	}
	if item["_expiryStatus"] != BandRed {
		t.Errorf("_expiryStatus = %v, want red", item["_expiryStatus"])
	}
}
