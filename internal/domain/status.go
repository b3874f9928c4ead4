package domain

// GenerationStatus represents the generation state of a course outline or
// a lesson's block skeleton. These string values are part of the wire
// contract consumed by frontend listeners and must not change.
type GenerationStatus string

// Possible generation status values
const (
	GenerationStatusPending    GenerationStatus = "pending"
	GenerationStatusGenerating GenerationStatus = "generating"
	GenerationStatusReady      GenerationStatus = "ready"
	GenerationStatusFailed     GenerationStatus = "failed"
)

// ContentStatus represents the generation state of an individual block's
// content. It mirrors GenerationStatus but uses "error" as its terminal
// failure value, matching the persisted block schema.
type ContentStatus string

// Possible content status values
const (
	ContentStatusPending    ContentStatus = "pending"
	ContentStatusGenerating ContentStatus = "generating"
	ContentStatusReady      ContentStatus = "ready"
	ContentStatusError      ContentStatus = "error"
)

// IsValid reports whether the status is a known generation status.
func (s GenerationStatus) IsValid() bool {
	switch s {
	case GenerationStatusPending, GenerationStatusGenerating,
		GenerationStatusReady, GenerationStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is a terminal generation state.
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationStatusReady || s == GenerationStatusFailed
}

// CanStartGeneration reports whether a worker may transition this status
// to generating. Only pending entities are eligible; failed entities
// require an explicit regeneration request first.
func (s GenerationStatus) CanStartGeneration() bool {
	return s == GenerationStatusPending || s == GenerationStatusGenerating
}

// CanRegenerate reports whether an explicit regeneration request is
// allowed from this status. Regeneration resets failed or ready entities
// back to pending; it is never applied to in-flight generation.
func (s GenerationStatus) CanRegenerate() bool {
	return s == GenerationStatusFailed || s == GenerationStatusReady
}

// IsValid reports whether the status is a known content status.
func (s ContentStatus) IsValid() bool {
	switch s {
	case ContentStatusPending, ContentStatusGenerating,
		ContentStatusReady, ContentStatusError:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is a terminal content state.
func (s ContentStatus) IsTerminal() bool {
	return s == ContentStatusReady || s == ContentStatusError
}

// CanStartGeneration reports whether a worker may begin generating
// content for a block in this status.
func (s ContentStatus) CanStartGeneration() bool {
	return s == ContentStatusPending || s == ContentStatusGenerating
}

// CanRegenerate reports whether an explicit regeneration request is
// allowed from this status.
func (s ContentStatus) CanRegenerate() bool {
	return s == ContentStatusError || s == ContentStatusReady
}

// LessonProgressStatus is the learner-progress axis of a lesson. It is
// mutated by progress handlers outside this module and is entirely
// independent of BlocksStatus; the generation pipeline never writes it.
type LessonProgressStatus string

// Possible learner-progress values
const (
	LessonProgressPending    LessonProgressStatus = "pending"
	LessonProgressInProgress LessonProgressStatus = "in_progress"
	LessonProgressCompleted  LessonProgressStatus = "completed"
	LessonProgressSkipped    LessonProgressStatus = "skipped"
)
