package generation

import "errors"

// Common errors returned by the generation package. Workers classify
// failures with errors.Is against these sentinels.
var (
	// ErrGenerationFailed is returned when generation fails for any general reason.
	ErrGenerationFailed = errors.New("content generation failed")

	// ErrInvalidResponse is returned when the LLM response cannot be parsed
	// or fails schema validation. Retryable: a reprompt often succeeds.
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the LLM refuses the content due to
	// safety filters. Terminal: retrying the same prompt will not help.
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary transport errors that
	// might resolve on retry.
	ErrTransientFailure = errors.New("transient error during generation")

	// ErrInvalidConfig is returned when a generator or provider client is
	// misconfigured.
	ErrInvalidConfig = errors.New("invalid generator configuration")
)
