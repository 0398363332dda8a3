package expiry

import (
	"time"

	"github.com/hearthward/larder/internal/docstore"
)

// StatusAlerts renders alerts as the status document's expiryAlerts
// section, stamped with the scan date.
func StatusAlerts(alerts Alerts, today time.Time) map[string]any {
	return map[string]any{
		"red":         alerts.Red,
		"amber":       alerts.Amber,
		"green":       alerts.Green,
		"lastChecked": today.Format("2006-01-02"),
	}
}

// RefreshStatus rescans the inventory and rewrites the status
// document's expiryAlerts section. Called at startup, on the periodic
// rescan, after every assistant run, and after inventory edits so the
// dashboard's alert panel never goes stale.
func RefreshStatus(store *docstore.Store, today time.Time) (Alerts, error) {
	inv := store.ReadList(docstore.Inventory, nil)
	alerts := Scan(inv, today)

	st := store.Read(docstore.Status, nil)
	st["expiryAlerts"] = StatusAlerts(alerts, today)
	if err := store.Write(docstore.Status, st); err != nil {
		return alerts, err
	}
	return alerts, nil
}
