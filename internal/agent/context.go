package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hearthward/larder/internal/docstore"
	"github.com/hearthward/larder/internal/expiry"
)

// BuildContext renders the household's current state as the context
// block prefixed to the user's request: today's date, red and amber
// expiry alerts, the full inventory annotated with derived expiry
// fields, the meal plan, preferences, and status. Rebuilt for every
// run — the answer changes daily and with every document write.
func BuildContext(store *docstore.Store, today time.Time) string {
	prefs := store.Read(docstore.Preferences, nil)
	inv := store.ReadList(docstore.Inventory, nil)
	meals := store.Read(docstore.MealPlan, nil)
	status := store.Read(docstore.Status, nil)

	expiry.Annotate(inv, today)
	alerts := expiry.Scan(inv, today)

	return fmt.Sprintf(`
TODAY: %s (%s)

EXPIRY ALERTS:
RED (use immediately): %s
AMBER (use soon): %s

CURRENT INVENTORY (%d items):
%s

CURRENT MEAL PLAN:
%s

USER PREFERENCES:
%s

CURRENT STATUS:
%s
`,
		today.Format("2006-01-02"), today.Weekday(),
		entriesOrNone(alerts.Red),
		entriesOrNone(alerts.Amber),
		len(inv),
		mustJSON(inv),
		mapOr(meals, "No meal plan yet."),
		mapOr(prefs, "No preferences set yet — use sensible defaults."),
		mapOr(status, "No status data yet."),
	)
}

func entriesOrNone(entries []expiry.Entry) string {
	if len(entries) == 0 {
		return "None"
	}
	return mustJSON(entries)
}

func mapOr(m map[string]any, fallback string) string {
	if len(m) == 0 {
		return fallback
	}
	return mustJSON(m)
}

// mustJSON renders v as indented JSON. The documents come straight from
// json.Unmarshal (plus scalar annotations), so marshalling cannot fail
// in practice; a failure falls back to fmt rather than panicking.
func mustJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
