package generation

import "context"

// Completer is the narrow contract against the external LLM collaborator.
// Implementations live in internal/platform and own transport-level
// concerns (retries, backoff, provider SDKs); callers treat latency in
// the tens of seconds and occasional malformed output as normal.
type Completer interface {
	// Complete sends a system and user prompt and returns the raw model
	// text. Errors are classified into the package's sentinel taxonomy.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
