package agent

import (
	"bytes"
	"encoding/json"

	"github.com/yuin/goldmark"

	"github.com/hearthward/larder/internal/tools"
)

// RenderHTML converts the assistant's markdown reply to an HTML
// fragment for the dashboard. A conversion failure returns "" — the
// dashboard falls back to the plain text it always receives.
func RenderHTML(md string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return ""
	}
	return buf.String()
}

// resultJSON serializes a tool result for the tool_result block fed
// back to the model.
func resultJSON(r tools.Result) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
