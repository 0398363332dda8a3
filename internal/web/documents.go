package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hearthward/larder/internal/docstore"
	"github.com/hearthward/larder/internal/events"
	"github.com/hearthward/larder/internal/expiry"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Read(docstore.Status, map[string]any{
		"expiryAlerts": map[string]any{"red": []any{}, "amber": []any{}, "green": []any{}},
	}))
}

// publishDocWrite tells subscribers a document changed outside a tool
// call so the dashboard and MQTT sensors can refresh.
func (s *Server) publishDocWrite(document string) {
	s.bus.Publish(events.Event{
		Timestamp: s.now(),
		Source:    events.SourceDocs,
		Kind:      events.KindDocumentWritten,
		Data:      map[string]any{"document": document},
	})
}

// --- Meals ---

func (s *Server) readMealPlan() (map[string]any, map[string]any) {
	plan := s.store.Read(docstore.MealPlan, map[string]any{"meals": map[string]any{}})
	meals, _ := plan["meals"].(map[string]any)
	if meals == nil {
		meals = map[string]any{}
	}
	return plan, meals
}

func (s *Server) handleGetMeals(w http.ResponseWriter, r *http.Request) {
	plan, _ := s.readMealPlan()
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleGetMeal(w http.ResponseWriter, r *http.Request) {
	day := chi.URLParam(r, "day")
	_, meals := s.readMealPlan()
	meal, ok := meals[day]
	if !ok {
		httpError(w, http.StatusNotFound, "No meal for '%s'", day)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"day": day, "meal": meal})
}

func (s *Server) handleMarkCooked(w http.ResponseWriter, r *http.Request) {
	day := chi.URLParam(r, "day")
	plan, meals := s.readMealPlan()
	meal, ok := meals[day]
	if !ok {
		httpError(w, http.StatusNotFound, "No meal for '%s'", day)
		return
	}

	// A plain-string meal gets promoted to an object so the cooked flag
	// has somewhere to live.
	if m, isMap := meal.(map[string]any); isMap {
		m["cooked"] = true
	} else {
		meals[day] = map[string]any{"description": meal, "cooked": true}
	}
	plan["meals"] = meals
	if err := s.store.Write(docstore.MealPlan, plan); err != nil {
		httpError(w, http.StatusInternalServerError, "Write error: %v", err)
		return
	}
	s.publishDocWrite(docstore.MealPlan)
	writeJSON(w, http.StatusOK, map[string]any{"day": day, "cooked": true})
}

func (s *Server) handleDeleteMeal(w http.ResponseWriter, r *http.Request) {
	day := chi.URLParam(r, "day")
	plan, meals := s.readMealPlan()
	if _, ok := meals[day]; !ok {
		httpError(w, http.StatusNotFound, "No meal for '%s'", day)
		return
	}
	delete(meals, day)
	plan["meals"] = meals
	if err := s.store.Write(docstore.MealPlan, plan); err != nil {
		httpError(w, http.StatusInternalServerError, "Write error: %v", err)
		return
	}
	s.publishDocWrite(docstore.MealPlan)
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "day": day})
}

// --- Inventory ---

func (s *Server) handleGetInventory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ReadList(docstore.Inventory, nil))
}

func (s *Server) handleAddInventory(w http.ResponseWriter, r *http.Request) {
	var item map[string]any
	if err := decodeJSON(w, r, &item); err != nil || item == nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var missing []string
	for _, field := range []string{"name", "amount", "unit", "category"} {
		if _, ok := item[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		httpError(w, http.StatusBadRequest, "Missing: %v", missing)
		return
	}

	inv := s.store.ReadList(docstore.Inventory, nil)
	if _, ok := item["addedDate"]; !ok {
		item["addedDate"] = s.now().Format("2006-01-02")
	}
	inv = append(inv, item)
	if err := s.store.Write(docstore.Inventory, inv); err != nil {
		httpError(w, http.StatusInternalServerError, "Write error: %v", err)
		return
	}

	if _, err := expiry.RefreshStatus(s.store, s.now()); err != nil {
		s.logger.Error("expiry alert refresh failed", "error", err)
	}
	s.publishDocWrite(docstore.Inventory)
	writeJSON(w, http.StatusOK, map[string]any{"status": "added", "item": item, "index": len(inv) - 1})
}

func (s *Server) handleUpdateInventory(w http.ResponseWriter, r *http.Request) {
	index := parseIndex(chi.URLParam(r, "index"))
	var item map[string]any
	if err := decodeJSON(w, r, &item); err != nil || item == nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	inv := s.store.ReadList(docstore.Inventory, nil)
	if index < 0 || index >= len(inv) {
		httpError(w, http.StatusNotFound, "Index %d not found", index)
		return
	}
	inv[index] = item
	if err := s.store.Write(docstore.Inventory, inv); err != nil {
		httpError(w, http.StatusInternalServerError, "Write error: %v", err)
		return
	}
	s.publishDocWrite(docstore.Inventory)
	writeJSON(w, http.StatusOK, map[string]any{"status": "updated", "item": item, "index": index})
}

func (s *Server) handleDeleteInventory(w http.ResponseWriter, r *http.Request) {
	index := parseIndex(chi.URLParam(r, "index"))
	inv := s.store.ReadList(docstore.Inventory, nil)
	if index < 0 || index >= len(inv) {
		httpError(w, http.StatusNotFound, "Index %d not found", index)
		return
	}
	removed := inv[index]
	inv = append(inv[:index], inv[index+1:]...)
	if err := s.store.Write(docstore.Inventory, inv); err != nil {
		httpError(w, http.StatusInternalServerError, "Write error: %v", err)
		return
	}
	s.publishDocWrite(docstore.Inventory)
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "item": removed})
}

// --- Shopping ---

func defaultShoppingList() map[string]any {
	return map[string]any{
		"deliveries": map[string]any{
			"sunday":  map[string]any{"items": []any{}},
			"midweek": map[string]any{"items": []any{}},
		},
	}
}

func (s *Server) handleGetShopping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Read(docstore.ShoppingList, defaultShoppingList()))
}

// shoppingItems digs the item list for one delivery out of the shopping
// document, tolerating missing intermediate keys.
func shoppingItems(list map[string]any, delivery string) []any {
	deliveries, _ := list["deliveries"].(map[string]any)
	slot, _ := deliveries[delivery].(map[string]any)
	items, _ := slot["items"].([]any)
	return items
}

func setShoppingItems(list map[string]any, delivery string, items []any) {
	deliveries, _ := list["deliveries"].(map[string]any)
	if deliveries == nil {
		deliveries = map[string]any{}
		list["deliveries"] = deliveries
	}
	slot, _ := deliveries[delivery].(map[string]any)
	if slot == nil {
		slot = map[string]any{}
		deliveries[delivery] = slot
	}
	slot["items"] = items
}

func validDelivery(d string) bool {
	return d == "sunday" || d == "midweek"
}

func (s *Server) handleTogglePurchased(w http.ResponseWriter, r *http.Request) {
	delivery := chi.URLParam(r, "delivery")
	if !validDelivery(delivery) {
		httpError(w, http.StatusBadRequest, "Invalid delivery '%s'", delivery)
		return
	}
	index := parseIndex(chi.URLParam(r, "index"))

	list := s.store.Read(docstore.ShoppingList, map[string]any{"deliveries": map[string]any{}})
	items := shoppingItems(list, delivery)
	if index < 0 || index >= len(items) {
		httpError(w, http.StatusNotFound, "Item %d not found", index)
		return
	}

	purchased := false
	if item, ok := items[index].(map[string]any); ok {
		current, _ := item["purchased"].(bool)
		item["purchased"] = !current
		purchased = !current
	}
	setShoppingItems(list, delivery, items)
	if err := s.store.Write(docstore.ShoppingList, list); err != nil {
		httpError(w, http.StatusInternalServerError, "Write error: %v", err)
		return
	}
	s.publishDocWrite(docstore.ShoppingList)
	writeJSON(w, http.StatusOK, map[string]any{"status": "toggled", "purchased": purchased})
}

func (s *Server) handleDeleteShoppingItem(w http.ResponseWriter, r *http.Request) {
	delivery := chi.URLParam(r, "delivery")
	if !validDelivery(delivery) {
		httpError(w, http.StatusBadRequest, "Invalid delivery '%s'", delivery)
		return
	}
	index := parseIndex(chi.URLParam(r, "index"))

	list := s.store.Read(docstore.ShoppingList, map[string]any{"deliveries": map[string]any{}})
	items := shoppingItems(list, delivery)
	if index < 0 || index >= len(items) {
		httpError(w, http.StatusNotFound, "Item %d not found", index)
		return
	}
	removed := items[index]
	items = append(items[:index], items[index+1:]...)
	setShoppingItems(list, delivery, items)
	if err := s.store.Write(docstore.ShoppingList, list); err != nil {
		httpError(w, http.StatusInternalServerError, "Write error: %v", err)
		return
	}
	s.publishDocWrite(docstore.ShoppingList)
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "item": removed})
}

// --- Preferences ---

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Read(docstore.Preferences, nil))
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var changes map[string]any
	if err := decodeJSON(w, r, &changes); err != nil || changes == nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	prefs := s.store.Read(docstore.Preferences, nil)
	docstore.DeepMerge(prefs, changes)
	if err := s.store.Write(docstore.Preferences, prefs); err != nil {
		httpError(w, http.StatusInternalServerError, "Write error: %v", err)
		return
	}
	s.publishDocWrite(docstore.Preferences)
	writeJSON(w, http.StatusOK, prefs)
}
