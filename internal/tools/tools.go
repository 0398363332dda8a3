// Package tools declares the side-effecting operations the model may
// request and executes them against the document store. The catalog is
// fixed and versionless: five tools covering the five documents. The
// executor never returns a Go error — every failure is captured as a
// Result value so the orchestrator can hand it back to the model, which
// gets a chance to adapt on the next round.
package tools

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hearthward/larder/internal/docstore"
)

// Tool names.
const (
	UpdateMealPlan     = "update_meal_plan"
	UpdateShoppingList = "update_shopping_list"
	UpdateInventory    = "update_inventory"
	UpdateStatus       = "update_status"
	UpdatePreferences  = "update_preferences"
)

// Spec describes one catalog entry in the shape the model API expects.
type Spec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Result is the outcome of one tool execution.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func errorResult(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

func okResult(format string, args ...any) Result {
	return Result{Success: true, Message: fmt.Sprintf(format, args...)}
}

// Catalog returns the full tool catalog. The schemas are the structural
// contract the model is instructed to honor; the executor still guards
// against malformed input because instructions are not guarantees.
func Catalog() []Spec {
	return []Spec{
		{
			Name:        UpdateMealPlan,
			Description: "Write or update the weekly meal plan. Provide the complete meal plan object including weekOf, meals (keyed by day name with full recipe objects), plantTracking, and fiveADayTracking.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"meal_plan": map[string]any{
						"type":        "object",
						"description": "Complete meal plan object to write to meal-plan.json",
					},
				},
				"required": []string{"meal_plan"},
			},
		},
		{
			Name:        UpdateShoppingList,
			Description: "Write or update the shopping list. Provide complete shopping list with deliveries split by sunday and midweek.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"shopping_list": map[string]any{
						"type":        "object",
						"description": "Complete shopping list object to write to shopping-list.json",
					},
				},
				"required": []string{"shopping_list"},
			},
		},
		{
			Name:        UpdateInventory,
			Description: "Add, remove, or modify items in the storecupboard inventory. Provide the action and items.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"action": map[string]any{
						"type":        "string",
						"enum":        []string{"add", "remove", "update", "replace_all"},
						"description": "add=append items, remove=delete by name, update=modify existing, replace_all=overwrite entire inventory",
					},
					"items": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "object"},
						"description": "Array of item objects. For add/update: {name, amount, unit, category, bestBefore?, notes?}. For remove: {name}.",
					},
				},
				"required": []string{"action", "items"},
			},
		},
		{
			Name:        UpdateStatus,
			Description: "Update the status file with expiry alerts, current week info, and meal status.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"status": map[string]any{
						"type":        "object",
						"description": "Complete or partial status object. Will be merged with existing.",
					},
				},
				"required": []string{"status"},
			},
		},
		{
			Name:        UpdatePreferences,
			Description: "Update user preferences. Provide partial object to merge with existing preferences.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"preferences": map[string]any{
						"type":        "object",
						"description": "Partial preferences to merge",
					},
				},
				"required": []string{"preferences"},
			},
		},
	}
}

// Executor applies tool invocations to the document store.
type Executor struct {
	store  *docstore.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewExecutor creates an Executor bound to a store.
func NewExecutor(store *docstore.Store, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{store: store, logger: logger, now: time.Now}
}

// Execute runs the named tool with the given input. All failure modes —
// unknown tool, malformed input, write errors — come back as a Result
// with Success false; Execute itself never fails.
func (e *Executor) Execute(name string, input map[string]any) Result {
	var res Result
	switch name {
	case UpdateMealPlan:
		res = e.writeDocument(docstore.MealPlan, input, "meal_plan", "Meal plan updated")
	case UpdateShoppingList:
		res = e.writeDocument(docstore.ShoppingList, input, "shopping_list", "Shopping list updated")
	case UpdateInventory:
		res = e.updateInventory(input)
	case UpdateStatus:
		res = e.updateStatus(input)
	case UpdatePreferences:
		res = e.updatePreferences(input)
	default:
		res = errorResult("Unknown tool: %s", name)
	}

	if !res.Success {
		e.logger.Warn("tool execution failed", "tool", name, "error", res.Error)
	}
	return res
}

// writeDocument handles the two whole-document tools, which share a
// shape: a single required object field replaces the document.
func (e *Executor) writeDocument(doc string, input map[string]any, field, message string) Result {
	value, ok := input[field].(map[string]any)
	if !ok {
		return errorResult("%s must be an object", field)
	}
	if err := e.store.Write(doc, value); err != nil {
		return errorResult("%v", err)
	}
	return okResult("%s", message)
}

func (e *Executor) updateInventory(input map[string]any) Result {
	action, _ := input["action"].(string)
	items, ok := itemList(input["items"])
	if !ok {
		return errorResult("items must be an array of objects")
	}

	inv := e.store.ReadList(docstore.Inventory, nil)

	switch action {
	case "add":
		today := e.now().Format("2006-01-02")
		for _, item := range items {
			if _, ok := item["addedDate"]; !ok {
				item["addedDate"] = today
			}
			inv = append(inv, item)
		}

	case "remove":
		remove := make(map[string]bool, len(items))
		for _, item := range items {
			remove[lowerName(item)] = true
		}
		kept := inv[:0]
		for _, raw := range inv {
			existing, _ := raw.(map[string]any)
			if existing != nil && remove[lowerName(existing)] {
				continue
			}
			kept = append(kept, raw)
		}
		inv = kept

	case "update":
		for _, item := range items {
			name := lowerName(item)
			found := false
			for i, raw := range inv {
				existing, _ := raw.(map[string]any)
				if existing == nil || lowerName(existing) != name {
					continue
				}
				merged := make(map[string]any, len(existing)+len(item))
				for k, v := range existing {
					merged[k] = v
				}
				for k, v := range item {
					merged[k] = v
				}
				inv[i] = merged
				found = true
				break
			}
			if !found {
				inv = append(inv, item)
			}
		}

	case "replace_all":
		inv = make([]any, 0, len(items))
		for _, item := range items {
			inv = append(inv, item)
		}

	default:
		return errorResult("unknown inventory action: %q", action)
	}

	if err := e.store.Write(docstore.Inventory, inv); err != nil {
		return errorResult("%v", err)
	}
	return okResult("Inventory %s: %d items", action, len(items))
}

func (e *Executor) updateStatus(input map[string]any) Result {
	patch, ok := input["status"].(map[string]any)
	if !ok {
		return errorResult("status must be an object")
	}
	existing := e.store.Read(docstore.Status, nil)
	for k, v := range patch {
		existing[k] = v
	}
	if err := e.store.Write(docstore.Status, existing); err != nil {
		return errorResult("%v", err)
	}
	return okResult("Status updated")
}

func (e *Executor) updatePreferences(input map[string]any) Result {
	patch, ok := input["preferences"].(map[string]any)
	if !ok {
		return errorResult("preferences must be an object")
	}
	existing := e.store.Read(docstore.Preferences, nil)
	docstore.DeepMerge(existing, patch)
	if err := e.store.Write(docstore.Preferences, existing); err != nil {
		return errorResult("%v", err)
	}
	return okResult("Preferences updated")
}

// itemList coerces the items field into a slice of objects.
func itemList(v any) ([]map[string]any, bool) {
	raw, ok := v.([]any)
	if !ok {
		if v == nil {
			return nil, true
		}
		return nil, false
	}
	items := make([]map[string]any, 0, len(raw))
	for _, el := range raw {
		m, ok := el.(map[string]any)
		if !ok {
			return nil, false
		}
		items = append(items, m)
	}
	return items, true
}

func lowerName(item map[string]any) string {
	name, _ := item["name"].(string)
	return strings.ToLower(name)
}
