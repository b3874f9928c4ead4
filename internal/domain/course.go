package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Course
var (
	ErrEmptyCourseID      = errors.New("course ID cannot be empty")
	ErrEmptyCourseOwnerID = errors.New("course owner ID cannot be empty")
	ErrEmptyCourseTitle   = errors.New("course title cannot be empty")
	ErrInvalidStatus      = errors.New("invalid status value")
	ErrNilOutlineForReady = errors.New("outline cannot be nil when status is ready")
)

// Course is the root entity of the generation pipeline. The outline is a
// nullable structured document generated once per course; lessons and
// blocks live inside it. OutlineStatus and Outline are always written
// together in a single transaction so readers never observe ready with a
// nil outline.
type Course struct {
	ID            uuid.UUID        `json:"id"`
	OwnerID       uuid.UUID        `json:"ownerId"`
	Title         string           `json:"title"`
	OutlineStatus GenerationStatus `json:"outlineStatus"`
	OutlineError  string           `json:"outlineError,omitempty"`
	Outline       *Outline         `json:"outline,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// Outline is the generated course structure: ordered sections containing
// ordered lessons. It is immutable once ready except for per-lesson block
// generation writes.
type Outline struct {
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	LearningOutcomes []string  `json:"learningOutcomes,omitempty"`
	Sections         []Section `json:"sections"`
}

// Section is an ordered child of the outline.
type Section struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Lessons     []Lesson `json:"lessons"`
}

// Lesson carries two independent status axes: BlocksStatus tracks block
// skeleton generation (written by the pipeline), Status tracks learner
// progress (written by external progress handlers). They must never be
// conflated.
type Lesson struct {
	ID               string               `json:"id"`
	Title            string               `json:"title"`
	Description      string               `json:"description,omitempty"`
	EstimatedMinutes int                  `json:"estimatedMinutes,omitempty"`
	BlocksStatus     GenerationStatus     `json:"blocksStatus"`
	BlocksError      string               `json:"blocksError,omitempty"`
	Blocks           []Block              `json:"blocks,omitempty"`
	Status           LessonProgressStatus `json:"status"`
}

// NewCourse creates a course with a pending outline.
// Returns an error if validation fails.
func NewCourse(ownerID uuid.UUID, title string) (*Course, error) {
	now := time.Now().UTC()
	course := &Course{
		ID:            uuid.New(),
		OwnerID:       ownerID,
		Title:         title,
		OutlineStatus: GenerationStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := course.Validate(); err != nil {
		return nil, err
	}

	return course, nil
}

// Validate checks the course's structural invariants, including the
// status/payload coupling: a ready outline status requires a non-nil
// outline.
func (c *Course) Validate() error {
	if c.ID == uuid.Nil {
		return ErrEmptyCourseID
	}

	if c.OwnerID == uuid.Nil {
		return ErrEmptyCourseOwnerID
	}

	if c.Title == "" {
		return ErrEmptyCourseTitle
	}

	if !c.OutlineStatus.IsValid() {
		return ErrInvalidStatus
	}

	if c.OutlineStatus == GenerationStatusReady && c.Outline == nil {
		return ErrNilOutlineForReady
	}

	return nil
}

// NewLesson creates a lesson skeleton with both axes pending.
func NewLesson(id, title, description string, estimatedMinutes int) Lesson {
	return Lesson{
		ID:               id,
		Title:            title,
		Description:      description,
		EstimatedMinutes: estimatedMinutes,
		BlocksStatus:     GenerationStatusPending,
		Status:           LessonProgressPending,
	}
}

// FindLesson returns the lesson with the given ID together with its
// parent section, or nil if the course has no outline or no such lesson.
func (c *Course) FindLesson(lessonID string) (*Lesson, *Section) {
	if c.Outline == nil {
		return nil, nil
	}

	for i := range c.Outline.Sections {
		section := &c.Outline.Sections[i]
		for j := range section.Lessons {
			if section.Lessons[j].ID == lessonID {
				return &section.Lessons[j], section
			}
		}
	}

	return nil, nil
}

// LessonsAfter returns up to count lessons that follow the given lesson
// in reading order, crossing section boundaries. It returns nil if the
// lesson is not found or is the last lesson of the course.
func (c *Course) LessonsAfter(lessonID string, count int) []*Lesson {
	if c.Outline == nil || count <= 0 {
		return nil
	}

	var following []*Lesson
	seen := false
	for i := range c.Outline.Sections {
		lessons := c.Outline.Sections[i].Lessons
		for j := range lessons {
			if seen {
				following = append(following, &lessons[j])
				if len(following) == count {
					return following
				}
				continue
			}
			if lessons[j].ID == lessonID {
				seen = true
			}
		}
	}

	if !seen {
		return nil
	}
	return following
}

// TotalLessons returns the number of lessons across all sections.
func (c *Course) TotalLessons() int {
	if c.Outline == nil {
		return 0
	}

	total := 0
	for _, section := range c.Outline.Sections {
		total += len(section.Lessons)
	}
	return total
}
