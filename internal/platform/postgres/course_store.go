package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/coursegen-api/internal/domain"
	"github.com/phrazzld/coursegen-api/internal/platform/logger"
	"github.com/phrazzld/coursegen-api/internal/store"
)

// PostgresCourseStore implements the store.CourseStore interface using
// PostgreSQL.
type PostgresCourseStore struct {
	db store.DBTX
}

// NewPostgresCourseStore creates a new PostgresCourseStore.
func NewPostgresCourseStore(db store.DBTX) *PostgresCourseStore {
	return &PostgresCourseStore{db: db}
}

// WithTx returns a CourseStore bound to the provided transaction.
func (s *PostgresCourseStore) WithTx(tx *sql.Tx) store.CourseStore {
	return &PostgresCourseStore{db: tx}
}

// Create persists a new course with a pending outline.
func (s *PostgresCourseStore) Create(ctx context.Context, course *domain.Course) error {
	log := logger.FromContext(ctx)

	if err := course.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	outlineJSON, err := marshalOutline(course.Outline)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO courses (id, owner_id, title, outline_status, outline_error, outline, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.db.ExecContext(ctx, query,
		course.ID,
		course.OwnerID,
		course.Title,
		course.OutlineStatus,
		course.OutlineError,
		outlineJSON,
		course.CreatedAt,
		course.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		log.Error("failed to insert course",
			"course_id", course.ID,
			"error", err)
		return fmt.Errorf("failed to insert course: %w", err)
	}

	return nil
}

// GetByID retrieves a course with its full outline document.
func (s *PostgresCourseStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Course, error) {
	query := `
		SELECT id, owner_id, title, outline_status, outline_error, outline, created_at, updated_at
		FROM courses
		WHERE id = $1
	`
	return s.scanCourse(s.db.QueryRowContext(ctx, query, id))
}

// MarkOutlineGenerating transitions the outline status to generating.
func (s *PostgresCourseStore) MarkOutlineGenerating(ctx context.Context, courseID uuid.UUID) error {
	return s.update(ctx, courseID, func(c *domain.Course) error {
		if c.OutlineStatus.IsTerminal() {
			return store.ErrStaleWrite
		}
		c.OutlineStatus = domain.GenerationStatusGenerating
		return nil
	})
}

// SaveOutline writes the ready status and outline document atomically.
func (s *PostgresCourseStore) SaveOutline(ctx context.Context, courseID uuid.UUID, outline *domain.Outline) error {
	if outline == nil {
		return fmt.Errorf("%w: outline cannot be nil", domain.ErrValidation)
	}
	return s.update(ctx, courseID, func(c *domain.Course) error {
		if c.OutlineStatus == domain.GenerationStatusReady {
			return store.ErrStaleWrite
		}
		c.OutlineStatus = domain.GenerationStatusReady
		c.OutlineError = ""
		c.Outline = outline
		return nil
	})
}

// FailOutline writes the failed status and error message atomically.
func (s *PostgresCourseStore) FailOutline(ctx context.Context, courseID uuid.UUID, errMsg string) error {
	return s.update(ctx, courseID, func(c *domain.Course) error {
		if c.OutlineStatus == domain.GenerationStatusReady {
			return store.ErrStaleWrite
		}
		c.OutlineStatus = domain.GenerationStatusFailed
		c.OutlineError = errMsg
		return nil
	})
}

// ResetOutline is the explicit regeneration path for the outline.
func (s *PostgresCourseStore) ResetOutline(ctx context.Context, courseID uuid.UUID) error {
	return s.update(ctx, courseID, func(c *domain.Course) error {
		if !c.OutlineStatus.CanRegenerate() {
			return domain.ErrInvalidTransition
		}
		c.OutlineStatus = domain.GenerationStatusPending
		c.OutlineError = ""
		c.Outline = nil
		return nil
	})
}

// MarkLessonBlocksGenerating transitions a lesson's block status to
// generating.
func (s *PostgresCourseStore) MarkLessonBlocksGenerating(ctx context.Context, courseID uuid.UUID, lessonID string) error {
	return s.updateLesson(ctx, courseID, lessonID, func(l *domain.Lesson) error {
		if l.BlocksStatus.IsTerminal() {
			return store.ErrStaleWrite
		}
		l.BlocksStatus = domain.GenerationStatusGenerating
		return nil
	})
}

// SaveLessonBlocks writes the ready status and block skeleton atomically.
func (s *PostgresCourseStore) SaveLessonBlocks(ctx context.Context, courseID uuid.UUID, lessonID string, blocks []domain.Block) error {
	for i := range blocks {
		if err := blocks[i].Validate(); err != nil {
			return fmt.Errorf("%w: block %d: %v", domain.ErrValidation, i, err)
		}
	}
	return s.updateLesson(ctx, courseID, lessonID, func(l *domain.Lesson) error {
		if l.BlocksStatus == domain.GenerationStatusReady {
			return store.ErrStaleWrite
		}
		l.BlocksStatus = domain.GenerationStatusReady
		l.BlocksError = ""
		l.Blocks = blocks
		return nil
	})
}

// FailLessonBlocks writes the failed status and error message atomically.
func (s *PostgresCourseStore) FailLessonBlocks(ctx context.Context, courseID uuid.UUID, lessonID string, errMsg string) error {
	return s.updateLesson(ctx, courseID, lessonID, func(l *domain.Lesson) error {
		if l.BlocksStatus == domain.GenerationStatusReady {
			return store.ErrStaleWrite
		}
		l.BlocksStatus = domain.GenerationStatusFailed
		l.BlocksError = errMsg
		return nil
	})
}

// MarkBlockContentGenerating transitions a block's content status to
// generating.
func (s *PostgresCourseStore) MarkBlockContentGenerating(ctx context.Context, courseID uuid.UUID, lessonID, blockID string) error {
	return s.updateBlock(ctx, courseID, lessonID, blockID, func(b *domain.Block) error {
		if b.ContentStatus.IsTerminal() {
			return store.ErrStaleWrite
		}
		b.ContentStatus = domain.ContentStatusGenerating
		return nil
	})
}

// SaveBlockContent writes the ready status and content atomically.
func (s *PostgresCourseStore) SaveBlockContent(ctx context.Context, courseID uuid.UUID, lessonID, blockID string, content *domain.BlockContent) error {
	if content == nil {
		return fmt.Errorf("%w: content cannot be nil", domain.ErrValidation)
	}
	if err := content.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return s.updateBlock(ctx, courseID, lessonID, blockID, func(b *domain.Block) error {
		if b.ContentStatus == domain.ContentStatusReady {
			return store.ErrStaleWrite
		}
		if !content.Matches(b.Type) {
			return fmt.Errorf("%w: content variant does not match block type %q",
				domain.ErrValidation, b.Type)
		}
		b.ContentStatus = domain.ContentStatusReady
		b.ContentError = ""
		b.Content = content
		return nil
	})
}

// FailBlockContent writes the error status and message atomically.
func (s *PostgresCourseStore) FailBlockContent(ctx context.Context, courseID uuid.UUID, lessonID, blockID string, errMsg string) error {
	return s.updateBlock(ctx, courseID, lessonID, blockID, func(b *domain.Block) error {
		if b.ContentStatus == domain.ContentStatusReady {
			return store.ErrStaleWrite
		}
		b.ContentStatus = domain.ContentStatusError
		b.ContentError = errMsg
		b.Content = nil
		return nil
	})
}

// ResetBlockContent is the explicit regeneration path for one block.
func (s *PostgresCourseStore) ResetBlockContent(ctx context.Context, courseID uuid.UUID, lessonID, blockID string) error {
	return s.updateBlock(ctx, courseID, lessonID, blockID, func(b *domain.Block) error {
		if !b.ContentStatus.CanRegenerate() {
			return domain.ErrInvalidTransition
		}
		b.ContentStatus = domain.ContentStatusPending
		b.ContentError = ""
		b.Content = nil
		return nil
	})
}

// update applies fn to the course document under a row lock and writes
// the result back. When the store is bound to a plain connection pool,
// it opens its own transaction; when bound to a transaction via WithTx,
// it joins it.
func (s *PostgresCourseStore) update(ctx context.Context, courseID uuid.UUID, fn func(*domain.Course) error) error {
	if db, ok := s.db.(*sql.DB); ok {
		return store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			return (&PostgresCourseStore{db: tx}).updateLocked(ctx, courseID, fn)
		})
	}
	return s.updateLocked(ctx, courseID, fn)
}

func (s *PostgresCourseStore) updateLocked(ctx context.Context, courseID uuid.UUID, fn func(*domain.Course) error) error {
	log := logger.FromContext(ctx)

	query := `
		SELECT id, owner_id, title, outline_status, outline_error, outline, created_at, updated_at
		FROM courses
		WHERE id = $1
		FOR UPDATE
	`
	course, err := s.scanCourse(s.db.QueryRowContext(ctx, query, courseID))
	if err != nil {
		return err
	}

	if err := fn(course); err != nil {
		return err
	}

	outlineJSON, err := marshalOutline(course.Outline)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE courses
		SET outline_status = $1, outline_error = $2, outline = $3, updated_at = $4
		WHERE id = $5
	`,
		course.OutlineStatus,
		course.OutlineError,
		outlineJSON,
		time.Now().UTC(),
		courseID,
	)
	if err != nil {
		log.Error("failed to update course document",
			"course_id", courseID,
			"error", err)
		return fmt.Errorf("failed to update course: %w", err)
	}

	return nil
}

// updateLesson narrows update to one lesson of the outline.
func (s *PostgresCourseStore) updateLesson(ctx context.Context, courseID uuid.UUID, lessonID string, fn func(*domain.Lesson) error) error {
	return s.update(ctx, courseID, func(c *domain.Course) error {
		lesson, _ := c.FindLesson(lessonID)
		if lesson == nil {
			return store.ErrLessonNotFound
		}
		return fn(lesson)
	})
}

// updateBlock narrows update to one block of a lesson.
func (s *PostgresCourseStore) updateBlock(ctx context.Context, courseID uuid.UUID, lessonID, blockID string, fn func(*domain.Block) error) error {
	return s.updateLesson(ctx, courseID, lessonID, func(l *domain.Lesson) error {
		for i := range l.Blocks {
			if l.Blocks[i].ID == blockID {
				return fn(&l.Blocks[i])
			}
		}
		return store.ErrBlockNotFound
	})
}

// scanCourse reads one course row, decoding the outline document.
func (s *PostgresCourseStore) scanCourse(row *sql.Row) (*domain.Course, error) {
	var course domain.Course
	var outlineJSON []byte

	err := row.Scan(
		&course.ID,
		&course.OwnerID,
		&course.Title,
		&course.OutlineStatus,
		&course.OutlineError,
		&outlineJSON,
		&course.CreatedAt,
		&course.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to scan course row: %w", err)
	}

	if len(outlineJSON) > 0 {
		var outline domain.Outline
		if err := json.Unmarshal(outlineJSON, &outline); err != nil {
			return nil, fmt.Errorf("failed to decode outline document: %w", err)
		}
		course.Outline = &outline
	}

	return &course, nil
}

// marshalOutline encodes the outline for the JSONB column; a nil
// outline stays NULL.
func marshalOutline(outline *domain.Outline) ([]byte, error) {
	if outline == nil {
		return nil, nil
	}
	data, err := json.Marshal(outline)
	if err != nil {
		return nil, fmt.Errorf("failed to encode outline document: %w", err)
	}
	return data, nil
}

var _ store.CourseStore = (*PostgresCourseStore)(nil)
