// Package expiry classifies inventory items into freshness bands by how
// soon they expire. Classification is recomputed on demand from the
// inventory document and "today", never cached, because the answer
// changes at midnight and with every inventory edit.
package expiry

import (
	"strconv"
	"strings"
	"time"
)

// NeverExpires is the sentinel for items with no usable date: far enough
// out that they always land in the green band.
const NeverExpires = 999

// Freshness bands.
const (
	BandRed   = "red"
	BandAmber = "amber"
	BandGreen = "green"
)

// Action strings surfaced with red and amber items. The dashboard and
// the model prompt both display these verbatim.
const (
	ActionRed   = "USE TODAY — cook, eat, or freeze immediately"
	ActionAmber = "Plan to use in next 1-2 meals"
)

// Entry is one classified inventory item.
type Entry struct {
	Item       string `json:"item"`
	Amount     string `json:"amount"`
	BestBefore string `json:"bestBefore"`
	DaysUntil  int    `json:"daysUntil"`
	Category   string `json:"category"`
	Action     string `json:"action,omitempty"`
}

// Alerts groups classified items by band, preserving inventory order
// within each band.
type Alerts struct {
	Red   []Entry `json:"red"`
	Amber []Entry `json:"amber"`
	Green []Entry `json:"green"`
}

// DaysUntil returns whole days from today until the given ISO date.
// Empty or unparsable dates return NeverExpires. Both bare dates
// (2006-01-02) and full timestamps are accepted; only the calendar date
// matters.
func DaysUntil(dateStr string, today time.Time) int {
	if dateStr == "" {
		return NeverExpires
	}
	exp, ok := parseDate(dateStr)
	if !ok {
		return NeverExpires
	}
	t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return int(exp.Sub(t).Hours() / 24)
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// Band maps a days-until-expiry count to a freshness band: one day or
// less (including already expired) is red, two to three days amber,
// four or more green.
func Band(days int) string {
	switch {
	case days <= 1:
		return BandRed
	case days <= 3:
		return BandAmber
	default:
		return BandGreen
	}
}

// ItemDate extracts the expiry date from an inventory item, preferring
// bestBefore over the legacy expiry key.
func ItemDate(item map[string]any) string {
	if v, _ := item["bestBefore"].(string); v != "" {
		return v
	}
	v, _ := item["expiry"].(string)
	return v
}

// Scan classifies every inventory item relative to today.
func Scan(inv []any, today time.Time) Alerts {
	var alerts Alerts
	for _, raw := range inv {
		item, _ := raw.(map[string]any)
		if item == nil {
			continue
		}
		dateStr := ItemDate(item)
		d := DaysUntil(dateStr, today)
		entry := Entry{
			Item:       stringOr(item["name"], "Unknown"),
			Amount:     strings.TrimSpace(anyString(item["amount"]) + " " + anyString(item["unit"])),
			BestBefore: dateStr,
			DaysUntil:  d,
			Category:   anyString(item["category"]),
		}
		switch Band(d) {
		case BandRed:
			entry.Action = ActionRed
			alerts.Red = append(alerts.Red, entry)
		case BandAmber:
			entry.Action = ActionAmber
			alerts.Amber = append(alerts.Amber, entry)
		default:
			alerts.Green = append(alerts.Green, entry)
		}
	}
	return alerts
}

// Annotate decorates inventory items in place with derived _daysUntil
// and _expiryStatus keys for the model's context. The underscore prefix
// marks them as computed; they are never written back to disk.
func Annotate(inv []any, today time.Time) {
	for _, raw := range inv {
		item, _ := raw.(map[string]any)
		if item == nil {
			continue
		}
		d := DaysUntil(ItemDate(item), today)
		item["_daysUntil"] = d
		item["_expiryStatus"] = Band(d)
	}
}

// anyString renders a JSON scalar the way the dashboard displays it:
// numbers without a trailing ".0", nil as empty.
func anyString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}
