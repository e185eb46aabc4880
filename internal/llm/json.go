package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// CleanJSON strips markdown fences and surrounding prose, keeping the text
// from the first '{' to the last '}'.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

var (
	unquotedKey   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	halfQuotedKey = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)":`)
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// RepairJSON fixes the usual model slips: unquoted keys, a key missing its
// opening quote, and trailing commas.
func RepairJSON(s string) string {
	s = unquotedKey.ReplaceAllString(s, `$1"$2":`)
	s = halfQuotedKey.ReplaceAllString(s, `$1"$2":`)
	s = trailingComma.ReplaceAllString(s, "$1")
	return s
}

// Validator is implemented by decoded types that check their own invariants.
type Validator interface {
	Validate() error
}

// DecodeJSON parses model output into T. It cleans and, when needed, repairs
// the text first. On any failure it returns fallback with the error.
func DecodeJSON[T any](text string, fallback T) (T, error) {
	cleaned := CleanJSON(text)
	if !strings.HasPrefix(cleaned, "{") {
		return fallback, eris.Errorf("llm: no JSON object in response: %.80q", text)
	}

	var out T
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		var repaired T
		if err2 := json.Unmarshal([]byte(RepairJSON(cleaned)), &repaired); err2 != nil {
			return fallback, eris.Wrap(err, "llm: decode JSON")
		}
		out = repaired
	}

	if v, ok := any(&out).(Validator); ok {
		if err := v.Validate(); err != nil {
			return fallback, eris.Wrap(err, "llm: invalid JSON payload")
		}
	}
	return out, nil
}
