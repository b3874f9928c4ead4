package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/coursegen-api/internal/domain"
)

// Prompt template names, matching prompts.yaml.
const (
	promptOutline      = "outline"
	promptLessonBlocks = "lesson-blocks"
	promptBlockContent = "block-content"
)

// Common construction errors
var (
	ErrNilCompleter = errors.New("completer cannot be nil")
	ErrNilLogger    = errors.New("logger cannot be nil")
)

// Service implements the three generation stages on top of a Completer.
// It owns prompt construction, lenient JSON decoding, and schema
// validation; it holds no state about individual tasks, so a single
// instance is shared by all workers.
type Service struct {
	completer Completer
	prompts   *promptRegistry
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewService creates a generation service backed by the given completer.
func NewService(completer Completer, logger *slog.Logger) (*Service, error) {
	if completer == nil {
		return nil, ErrNilCompleter
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	prompts, err := loadPrompts()
	if err != nil {
		return nil, err
	}

	return &Service{
		completer: completer,
		prompts:   prompts,
		validate:  validator.New(),
		logger:    logger.With("component", "generation_service"),
	}, nil
}

// outlineVars feeds the outline prompt template.
type outlineVars struct {
	CourseTitle string
}

// outlineResponse is the schema the outline prompt asks the model for.
type outlineResponse struct {
	Title            string   `json:"title"            validate:"required"`
	Description      string   `json:"description"      validate:"required"`
	LearningOutcomes []string `json:"learningOutcomes"`
	Sections         []struct {
		Title       string `json:"title" validate:"required"`
		Description string `json:"description"`
		Lessons     []struct {
			Title            string `json:"title" validate:"required"`
			Description      string `json:"description"`
			EstimatedMinutes int    `json:"estimatedMinutes" validate:"gte=0"`
		} `json:"lessons" validate:"required,min=1,dive"`
	} `json:"sections" validate:"required,min=1,dive"`
}

// GenerateOutline produces the course outline from the course title.
// Section and lesson IDs are assigned here, not by the model, so they
// are stable and unique regardless of model output.
func (s *Service) GenerateOutline(ctx context.Context, course *domain.Course) (*domain.Outline, error) {
	systemPrompt, userPrompt, err := s.prompts.render(promptOutline, outlineVars{
		CourseTitle: course.Title,
	})
	if err != nil {
		return nil, err
	}

	raw, err := s.completer.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	var resp outlineResponse
	if err := decodeResponse(raw, &resp); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(&resp); err != nil {
		return nil, fmt.Errorf("%w: outline failed schema validation: %v", ErrInvalidResponse, err)
	}

	outline := &domain.Outline{
		Title:            resp.Title,
		Description:      resp.Description,
		LearningOutcomes: resp.LearningOutcomes,
	}
	for _, section := range resp.Sections {
		domainSection := domain.Section{
			ID:          uuid.New().String(),
			Title:       section.Title,
			Description: section.Description,
		}
		for _, lesson := range section.Lessons {
			domainSection.Lessons = append(domainSection.Lessons, domain.NewLesson(
				uuid.New().String(),
				lesson.Title,
				lesson.Description,
				lesson.EstimatedMinutes,
			))
		}
		outline.Sections = append(outline.Sections, domainSection)
	}

	s.logger.InfoContext(ctx, "outline generated",
		"course_id", course.ID,
		"sections", len(outline.Sections))

	return outline, nil
}

// lessonBlocksVars feeds the lesson-blocks prompt template.
type lessonBlocksVars struct {
	CourseTitle       string
	SectionTitle      string
	LessonTitle       string
	LessonDescription string
	EstimatedMinutes  int
}

// lessonBlocksResponse is the schema for the skeleton stage.
type lessonBlocksResponse struct {
	Blocks []struct {
		Type    string `json:"type"    validate:"required"`
		Title   string `json:"title"   validate:"required"`
		Purpose string `json:"purpose"`
	} `json:"blocks" validate:"required,min=1,dive"`
}

// GenerateLessonBlocks produces the block skeleton for a lesson. All
// returned blocks are pending with no content; block IDs and order are
// assigned here.
func (s *Service) GenerateLessonBlocks(
	ctx context.Context,
	course *domain.Course,
	section *domain.Section,
	lesson *domain.Lesson,
) ([]domain.Block, error) {
	systemPrompt, userPrompt, err := s.prompts.render(promptLessonBlocks, lessonBlocksVars{
		CourseTitle:       course.Title,
		SectionTitle:      section.Title,
		LessonTitle:       lesson.Title,
		LessonDescription: lesson.Description,
		EstimatedMinutes:  lesson.EstimatedMinutes,
	})
	if err != nil {
		return nil, err
	}

	raw, err := s.completer.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	var resp lessonBlocksResponse
	if err := decodeResponse(raw, &resp); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(&resp); err != nil {
		return nil, fmt.Errorf("%w: block skeleton failed schema validation: %v", ErrInvalidResponse, err)
	}

	blocks := make([]domain.Block, 0, len(resp.Blocks))
	for i, raw := range resp.Blocks {
		blockType := domain.BlockType(raw.Type)
		if !blockType.IsValid() {
			return nil, fmt.Errorf("%w: unknown block type %q", ErrInvalidResponse, raw.Type)
		}
		blocks = append(blocks, domain.NewBlock(
			uuid.New().String(), blockType, raw.Title, raw.Purpose, i))
	}

	s.logger.InfoContext(ctx, "lesson blocks generated",
		"course_id", course.ID,
		"lesson_id", lesson.ID,
		"blocks", len(blocks))

	return blocks, nil
}

// blockContentVars feeds the block-content prompt template.
type blockContentVars struct {
	CourseTitle       string
	LessonTitle       string
	LessonDescription string
	LessonBlocks      string
	BlockTitle        string
	BlockType         string
	BlockPurpose      string
}

// GenerateBlockContent produces the typed content payload for one block.
// The model must populate exactly the variant matching the block type.
func (s *Service) GenerateBlockContent(
	ctx context.Context,
	course *domain.Course,
	lesson *domain.Lesson,
	block *domain.Block,
) (*domain.BlockContent, error) {
	systemPrompt, userPrompt, err := s.prompts.render(promptBlockContent, blockContentVars{
		CourseTitle:       course.Title,
		LessonTitle:       lesson.Title,
		LessonDescription: lesson.Description,
		LessonBlocks:      describeBlocks(lesson.Blocks),
		BlockTitle:        block.Title,
		BlockType:         string(block.Type),
		BlockPurpose:      block.Purpose,
	})
	if err != nil {
		return nil, err
	}

	raw, err := s.completer.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	var content domain.BlockContent
	if err := decodeResponse(raw, &content); err != nil {
		return nil, err
	}

	if err := content.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if !content.Matches(block.Type) {
		return nil, fmt.Errorf("%w: content variant does not match block type %q",
			ErrInvalidResponse, block.Type)
	}
	if err := s.validate.Struct(&content); err != nil {
		return nil, fmt.Errorf("%w: block content failed schema validation: %v", ErrInvalidResponse, err)
	}

	s.logger.InfoContext(ctx, "block content generated",
		"course_id", course.ID,
		"lesson_id", lesson.ID,
		"block_id", block.ID,
		"block_type", block.Type)

	return &content, nil
}

// describeBlocks renders the lesson's block plan as a bullet list so the
// content prompt can reference surrounding blocks.
func describeBlocks(blocks []domain.Block) string {
	var sb strings.Builder
	for _, block := range blocks {
		fmt.Fprintf(&sb, "- %s (%s) [%s]\n", block.Title, block.Type, block.ContentStatus)
	}
	if sb.Len() == 0 {
		return "- (no other blocks)\n"
	}
	return sb.String()
}
