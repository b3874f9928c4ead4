package generation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// LLMs routinely wrap JSON answers in markdown code fences even when
// told not to. Treat that as cosmetic rather than an error.
var codeBlockRegex = regexp.MustCompile("(?s)^\\s*```(?:json|JSON)?\\s*\n?(.*?)\\s*```\\s*$")

// stripCodeFences removes a surrounding markdown code fence, if any, and
// returns the trimmed inner text.
func stripCodeFences(content string) string {
	content = strings.TrimSpace(content)

	if matches := codeBlockRegex.FindStringSubmatch(content); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```JSON")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx != -1 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}

	return content
}

// decodeResponse leniently parses an LLM response as JSON into v.
// Parse failures wrap ErrInvalidResponse so workers classify them as
// retryable.
func decodeResponse(content string, v any) error {
	cleaned := stripCodeFences(content)
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}
