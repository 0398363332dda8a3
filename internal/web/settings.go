package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/hearthward/larder/internal/usage"
)

// keyPreview masks a credential for display: first 10 and last 4
// characters when the key is long enough to keep the middle secret.
func keyPreview(key string) string {
	if key == "" {
		return ""
	}
	if len(key) > 14 {
		return key[:10] + "..." + key[len(key)-4:]
	}
	return "***"
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	key := s.keystore.Load()
	writeJSON(w, http.StatusOK, map[string]any{
		"api_key_set":     key != "",
		"api_key_preview": keyPreview(key),
		"claude_enabled":  s.factory.Enabled(),
	})
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AnthropicAPIKey string `json:"anthropic_api_key"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	key := strings.TrimSpace(body.AnthropicAPIKey)
	if key == "" {
		httpError(w, http.StatusBadRequest, "API key required")
		return
	}
	if !strings.HasPrefix(key, "sk-ant-") {
		httpError(w, http.StatusBadRequest, "Invalid key format — should start with sk-ant-")
		return
	}
	if err := s.keystore.Save(key); err != nil {
		httpError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	s.logger.Info("api key saved")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "saved",
		"claude_enabled": s.factory.Enabled(),
	})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"tokens_today": 0,
		"today":        map[string]any{},
		"total":        map[string]any{},
	}
	if s.usage == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	now := s.now()
	tokens, err := s.usage.TokensToday(now)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	today, err := s.usage.Summary(midnight, now.Add(time.Second))
	if err != nil {
		httpError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	total, err := s.usage.Summary(time.Time{}, now.Add(time.Second))
	if err != nil {
		httpError(w, http.StatusInternalServerError, "%v", err)
		return
	}

	resp["tokens_today"] = tokens
	resp["today"] = totalsJSON(today)
	resp["total"] = totalsJSON(total)
	writeJSON(w, http.StatusOK, resp)
}

func totalsJSON(t *usage.Totals) map[string]any {
	return map[string]any{
		"runs":          t.Runs,
		"rounds":        t.Rounds,
		"input_tokens":  t.InputTokens,
		"output_tokens": t.OutputTokens,
	}
}
