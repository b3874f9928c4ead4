// Package redact scrubs sensitive fragments from failure reasons before
// they are persisted onto courses or the task queue. Generation errors
// often embed provider responses, which can carry API keys, request
// URLs, or connection details that must not reach clients.
package redact

import "regexp"

// Placeholders substituted for matched fragments.
const (
	CredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	KeyPlaceholder        = "[REDACTED_KEY]"
	HostPlaceholder       = "[REDACTED_HOST]"
)

var (
	// Connection URLs with inline credentials (postgres://user:pw@host).
	connURLRegex = regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.-]*://[^@\s]+@`)

	// API keys and bearer tokens as they appear in provider error text.
	apiKeyRegex = regexp.MustCompile(
		`(?i)(api[_-]?key|bearer|token|secret|authorization)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`,
	)

	// key=... query parameters, the way Google APIs echo them back.
	keyParamRegex = regexp.MustCompile(`(?i)([?&]key=)[A-Za-z0-9_-]{8,}`)

	// host:port pairs from dial and timeout errors.
	hostPortRegex = regexp.MustCompile(
		`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}:\d{1,5}\b`,
	)
)

// String returns input with sensitive fragments replaced by placeholders.
func String(input string) string {
	if input == "" {
		return input
	}

	result := connURLRegex.ReplaceAllString(input, CredentialPlaceholder+"@")
	result = apiKeyRegex.ReplaceAllString(result, "${1}${2}"+KeyPlaceholder)
	result = keyParamRegex.ReplaceAllString(result, "${1}"+KeyPlaceholder)
	result = hostPortRegex.ReplaceAllString(result, HostPlaceholder)
	return result
}

// Error redacts err's message. A nil error yields the empty string.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
