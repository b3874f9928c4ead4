package task

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind identifies which generation stage a task drives.
type Kind string

// Possible task kinds
const (
	KindOutline      Kind = "outline"
	KindLessonBlocks Kind = "lesson_blocks"
	KindBlockContent Kind = "block_content"
)

// State represents the lifecycle of a queued task.
type State string

// Possible task states
const (
	StateQueued State = "queued"
	StateLeased State = "leased"
	StateDone   State = "done"
	StateFailed State = "failed"
)

// Priority orders lease selection within a kind. Lower values lease
// first; ties break by creation time.
type Priority int

// Priority levels, from most to least urgent.
const (
	// PriorityUrgent is used for content of blocks the learner is about
	// to read.
	PriorityUrgent Priority = 0
	// PriorityHigh is used for the skeleton of a lesson the learner is
	// actively viewing.
	PriorityHigh Priority = 1
	// PriorityMedium is used for outline generation.
	PriorityMedium Priority = 2
	// PriorityLow is used for speculative look-ahead work.
	PriorityLow Priority = 3
)

// Common validation errors for Task
var (
	ErrInvalidKind     = errors.New("invalid task kind")
	ErrInvalidPriority = errors.New("invalid task priority")
	ErrMissingTarget   = errors.New("task target does not match its kind")
)

// Task is one unit of queued generation work, addressed at a course, a
// lesson within a course, or a block within a lesson depending on Kind.
// At most one queued-or-leased task may exist per target and kind; the
// store enforces this on enqueue.
type Task struct {
	ID             uuid.UUID
	Kind           Kind
	CourseID       uuid.UUID
	LessonID       string
	BlockID        string
	Priority       Priority
	State          State
	Attempts       int
	LastError      string
	LeaseOwner     string
	LeaseExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func newTask(kind Kind, courseID uuid.UUID, lessonID, blockID string, priority Priority) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        uuid.New(),
		Kind:      kind,
		CourseID:  courseID,
		LessonID:  lessonID,
		BlockID:   blockID,
		Priority:  priority,
		State:     StateQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewOutlineTask creates a queued outline generation task for a course.
func NewOutlineTask(courseID uuid.UUID, priority Priority) *Task {
	return newTask(KindOutline, courseID, "", "", priority)
}

// NewLessonBlocksTask creates a queued skeleton generation task for a
// lesson.
func NewLessonBlocksTask(courseID uuid.UUID, lessonID string, priority Priority) *Task {
	return newTask(KindLessonBlocks, courseID, lessonID, "", priority)
}

// NewBlockContentTask creates a queued content generation task for a
// block.
func NewBlockContentTask(courseID uuid.UUID, lessonID, blockID string, priority Priority) *Task {
	return newTask(KindBlockContent, courseID, lessonID, blockID, priority)
}

// IsValid reports whether the kind is known.
func (k Kind) IsValid() bool {
	switch k {
	case KindOutline, KindLessonBlocks, KindBlockContent:
		return true
	default:
		return false
	}
}

// IsValid reports whether the state is known.
func (s State) IsValid() bool {
	switch s {
	case StateQueued, StateLeased, StateDone, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state is done or failed.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// Validate checks the task's structural invariants, in particular that
// its target fields match its kind.
func (t *Task) Validate() error {
	if !t.Kind.IsValid() {
		return ErrInvalidKind
	}

	if t.Priority < PriorityUrgent || t.Priority > PriorityLow {
		return ErrInvalidPriority
	}

	if t.CourseID == uuid.Nil {
		return ErrMissingTarget
	}

	switch t.Kind {
	case KindOutline:
		if t.LessonID != "" || t.BlockID != "" {
			return ErrMissingTarget
		}
	case KindLessonBlocks:
		if t.LessonID == "" || t.BlockID != "" {
			return ErrMissingTarget
		}
	case KindBlockContent:
		if t.LessonID == "" || t.BlockID == "" {
			return ErrMissingTarget
		}
	}

	return nil
}
