package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hearthward/larder/internal/events"
	"github.com/hearthward/larder/internal/jobs"
	"github.com/hearthward/larder/internal/ratelimit"
)

// actionPrompts are the canned instructions behind the dashboard's
// one-click buttons. create_recipe is templated with the requested day.
var actionPrompts = map[string]string{
	"generate_meal_plan": "Generate a complete weekly meal plan for this week. Include full recipes with ingredients and step-by-step instructions for every dinner. Also include breakfast rotation, lunch suggestions, plant tracking, and 5-a-day tracking. Use the update_meal_plan tool to save it.",
	"update_shopping":    "Based on the current meal plan and inventory, generate a shopping list split by Sunday and midweek deliveries. Account for what's already in stock. Use the update_shopping_list tool to save it.",
	"scan_expiry":        "Scan the current inventory for expiry dates. Report what needs using urgently. Suggest which meals should use the expiring items first. Update the status with current expiry alerts using the update_status tool.",
}

// submit queues an assistant job and returns its handle. The run gets a
// fresh context: the HTTP request that spawned it returns immediately.
func (s *Server) submit(kind, message string) string {
	id := s.registry.Submit(message, func(jobID string) {
		s.runner.Run(context.Background(), jobID, kind, message)
	})
	s.bus.Publish(events.Event{
		Timestamp: s.now(),
		Source:    events.SourceJobs,
		Kind:      events.KindJobQueued,
		Data:      map[string]any{"job_id": id, "kind": kind},
	})
	return id
}

// checkRate enforces the shared assistant-request budget. Returns false
// after writing the 429 response.
func (s *Server) checkRate(w http.ResponseWriter) bool {
	if err := s.limiter.Allow(); err != nil {
		if errors.Is(err, ratelimit.ErrLimited) {
			httpError(w, http.StatusTooManyRequests, "Rate limit exceeded — try again in a minute")
			return false
		}
		httpError(w, http.StatusInternalServerError, "%v", err)
		return false
	}
	return true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.checkRate(w) {
		return
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	message := strings.TrimSpace(body.Message)
	if message == "" {
		httpError(w, http.StatusBadRequest, "Message required")
		return
	}

	id := s.submit("chat", message)
	writeJSON(w, http.StatusOK, map[string]any{"response_id": id, "status": jobs.StatusPending})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if !s.checkRate(w) {
		return
	}
	var body struct {
		Action string `json:"action"`
		Day    string `json:"day"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	message, ok := actionPrompts[body.Action]
	if !ok && body.Action == "create_recipe" {
		day := body.Day
		if day == "" {
			day = "today"
		}
		message = fmt.Sprintf("Create a recipe for %s. It should fit the day theme, use expiring ingredients where possible, and respect all preferences. Update just that day in the meal plan using update_meal_plan.", day)
		ok = true
	}
	if !ok {
		httpError(w, http.StatusBadRequest, "Unknown action: %s", body.Action)
		return
	}

	id := s.submit("action", message)
	writeJSON(w, http.StatusOK, map[string]any{"response_id": id, "status": jobs.StatusPending})
}

func (s *Server) handleChatResponse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "response_id")
	job, err := s.registry.Get(id)
	if err != nil {
		httpError(w, http.StatusNotFound, "Response not found")
		return
	}

	resp := map[string]any{
		"status":          job.Status,
		"claude_response": nil,
		"tools_executed":  job.ToolLog,
		"error":           nil,
	}
	if job.Response != "" {
		resp["claude_response"] = job.Response
	}
	if job.ResponseHTML != "" {
		resp["claude_response_html"] = job.ResponseHTML
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleImportRecipe(w http.ResponseWriter, r *http.Request) {
	if !s.checkRate(w) {
		return
	}
	var body struct {
		URL string `json:"url"`
		Day string `json:"day"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.URL) == "" {
		httpError(w, http.StatusBadRequest, "URL required")
		return
	}

	page, err := s.fetcher.Fetch(r.Context(), body.URL, 0)
	if err != nil {
		httpError(w, http.StatusBadGateway, "Could not fetch page: %v", err)
		return
	}

	day := body.Day
	if day == "" {
		day = "a suitable day this week"
	}
	message := fmt.Sprintf(
		"Import the recipe from this web page and add it to the meal plan for %s using update_meal_plan. Normalise ingredients to {name, amount, unit} and keep the instructions as clear numbered steps.\n\nPAGE TITLE: %s\nPAGE URL: %s\n\nPAGE CONTENT:\n%s",
		day, page.Title, page.URL, page.Content,
	)

	id := s.submit("import", message)
	writeJSON(w, http.StatusOK, map[string]any{"response_id": id, "status": jobs.StatusPending})
}
