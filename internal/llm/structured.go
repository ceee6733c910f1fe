package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON parses a completion response that is expected to contain a
// single JSON object or array. Models frequently wrap output in markdown
// code fences or surround it with prose; both are stripped before decoding.
func DecodeJSON(raw string, v any) error {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "[") {
		objStart := strings.Index(text, "{")
		objEnd := strings.LastIndex(text, "}")
		arrStart := strings.Index(text, "[")
		arrEnd := strings.LastIndex(text, "]")

		switch {
		case objStart >= 0 && objEnd > objStart && (arrStart < 0 || objStart < arrStart):
			text = text[objStart : objEnd+1]
		case arrStart >= 0 && arrEnd > arrStart:
			text = text[arrStart : arrEnd+1]
		}
	}

	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("llm: structured response parse: %w", err)
	}
	return nil
}
