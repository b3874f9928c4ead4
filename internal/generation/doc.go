// Package generation contains the LLM boundary of the pipeline: the
// narrow Completer contract implemented by provider adapters, the stage
// prompt registry, and the generators that turn completions into
// validated domain payloads.
package generation
