package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Matches the outermost {...} span, newlines included. Models frequently wrap
// their JSON in prose or code fences; the greedy span from the first "{" to
// the last "}" recovers the object in both cases.
var jsonSpan = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractFirstJSON returns the first JSON object found in text, or nil when
// none parses. Markdown code fences are stripped before matching.
func ExtractFirstJSON(text string) map[string]interface{} {
	cleaned := StripFences(text)
	span := jsonSpan.FindString(cleaned)
	if span == "" {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(span), &out); err != nil {
		return nil
	}
	return out
}

// StripFences removes ``` fence lines from a model response.
func StripFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
