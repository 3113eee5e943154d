package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON parses text as a JSON object, falling back to the first
// balanced {…} substring when the provider wrapped the object in prose or a
// markdown fence.
func ExtractJSON(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)

	var direct map[string]any
	if err := json.Unmarshal([]byte(trimmed), &direct); err == nil {
		return direct, nil
	}

	// Strip a markdown code fence if present.
	if fenced, ok := unfence(trimmed); ok {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(fenced), &parsed); err == nil {
			return parsed, nil
		}

		trimmed = fenced
	}

	candidate, ok := firstBalancedObject(trimmed)
	if !ok {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return nil, fmt.Errorf("extracted object does not parse: %w", err)
	}

	return parsed, nil
}

func unfence(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}

	rest := text[start+3:]

	// Drop an optional language tag on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine == "json" || firstLine == "" {
			rest = rest[nl+1:]
		}
	}

	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest), true
	}

	return strings.TrimSpace(rest[:end]), true
}

// firstBalancedObject scans for the first top-level {…} with balanced braces,
// honoring strings and escapes.
func firstBalancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]

		if escaped {
			escaped = false
			continue
		}

		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}

	return "", false
}
