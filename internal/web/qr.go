package web

import (
	"fmt"
	"net/http"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/hearthward/larder/internal/docstore"
)

// handleShoppingQR renders the outstanding shopping items as a QR code
// PNG, one line per item, for scanning at the shop.
func (s *Server) handleShoppingQR(w http.ResponseWriter, r *http.Request) {
	list := s.store.Read(docstore.ShoppingList, defaultShoppingList())

	var lines []string
	for _, delivery := range []string{"sunday", "midweek"} {
		for _, raw := range shoppingItems(list, delivery) {
			item, ok := raw.(map[string]any)
			if !ok {
				if str, isStr := raw.(string); isStr && str != "" {
					lines = append(lines, str)
				}
				continue
			}
			if purchased, _ := item["purchased"].(bool); purchased {
				continue
			}
			lines = append(lines, shoppingLine(item))
		}
	}
	if len(lines) == 0 {
		lines = []string{"Shopping list is empty"}
	}

	png, err := qrcode.Encode(strings.Join(lines, "\n"), qrcode.Medium, 512)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "%v", err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func shoppingLine(item map[string]any) string {
	name, _ := item["name"].(string)
	if name == "" {
		name, _ = item["item"].(string)
	}
	amount := scalarString(item["amount"])
	unit, _ := item["unit"].(string)

	switch {
	case amount != "" && unit != "":
		return fmt.Sprintf("%s %s %s", amount, unit, name)
	case amount != "":
		return fmt.Sprintf("%s %s", amount, name)
	default:
		return name
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%.2f", t), ".00")
	default:
		return ""
	}
}
