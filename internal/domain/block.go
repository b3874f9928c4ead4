package domain

import "errors"

// BlockType identifies the kind of content a block carries.
type BlockType string

// Possible block types
const (
	BlockTypeText      BlockType = "text"
	BlockTypeCode      BlockType = "code"
	BlockTypeQuestion  BlockType = "question"
	BlockTypeTask      BlockType = "task"
	BlockTypeFlashcard BlockType = "flashcard"
	BlockTypeSummary   BlockType = "summary"
)

// Common validation errors for Block
var (
	ErrEmptyBlockID        = errors.New("block ID cannot be empty")
	ErrInvalidBlockType    = errors.New("invalid block type")
	ErrContentStatusCouple = errors.New(
		"block content must be set exactly when content status is ready")
	ErrContentErrorCouple = errors.New(
		"block content error must be set exactly when content status is error")
	ErrAmbiguousContent = errors.New(
		"block content must populate exactly one variant")
)

// Block is the smallest unit of lesson content. It is created empty
// (pending) when the lesson skeleton is generated; Content is filled in
// by the content generation stage. Content is non-nil iff ContentStatus
// is ready, and ContentError is non-empty iff ContentStatus is error.
type Block struct {
	ID            string        `json:"id"`
	Type          BlockType     `json:"type"`
	Title         string        `json:"title"`
	Purpose       string        `json:"purpose,omitempty"`
	Order         int           `json:"order"`
	ContentStatus ContentStatus `json:"contentStatus"`
	ContentError  string        `json:"contentError,omitempty"`
	Content       *BlockContent `json:"content,omitempty"`
}

// BlockContent is a type-tagged payload: exactly one field is populated,
// matching the block's Type.
type BlockContent struct {
	Text      *TextContent      `json:"text,omitempty"`
	Code      *CodeContent      `json:"code,omitempty"`
	Question  *QuestionContent  `json:"question,omitempty"`
	Task      *TaskContent      `json:"task,omitempty"`
	Flashcard *FlashcardContent `json:"flashcard,omitempty"`
	Summary   *SummaryContent   `json:"summary,omitempty"`
}

// TextContent is markdown explanatory text.
type TextContent struct {
	Markdown string `json:"markdown" validate:"required"`
}

// CodeContent is a code example with an optional explanation.
type CodeContent struct {
	Language    string `json:"language"    validate:"required"`
	Code        string `json:"code"        validate:"required"`
	Explanation string `json:"explanation,omitempty"`
}

// QuestionContent is a knowledge-check question.
type QuestionContent struct {
	Text          string   `json:"text"          validate:"required"`
	Type          string   `json:"type"          validate:"required,oneof=multiple_choice true_false fill_blank short_answer"`
	Options       []Option `json:"options,omitempty" validate:"dive"`
	CorrectAnswer string   `json:"correctAnswer" validate:"required"`
	Explanation   string   `json:"explanation,omitempty"`
}

// Option is a choice in a multiple-choice question.
type Option struct {
	ID   string `json:"id"   validate:"required"`
	Text string `json:"text" validate:"required"`
}

// TaskContent is a hands-on practice task.
type TaskContent struct {
	Instruction string   `json:"instruction" validate:"required"`
	Hints       []string `json:"hints,omitempty"`
	Solution    string   `json:"solution,omitempty"`
}

// FlashcardContent is a front/back card for spaced repetition.
type FlashcardContent struct {
	Front string `json:"front" validate:"required"`
	Back  string `json:"back"  validate:"required"`
	Hint  string `json:"hint,omitempty"`
}

// SummaryContent lists a lesson's key takeaways.
type SummaryContent struct {
	KeyPoints []string `json:"keyPoints" validate:"required,min=1"`
	NextUp    string   `json:"nextUp,omitempty"`
}

// NewBlock creates a pending block skeleton.
func NewBlock(id string, blockType BlockType, title, purpose string, order int) Block {
	return Block{
		ID:            id,
		Type:          blockType,
		Title:         title,
		Purpose:       purpose,
		Order:         order,
		ContentStatus: ContentStatusPending,
	}
}

// IsValid reports whether the block type is one of the known kinds.
func (t BlockType) IsValid() bool {
	switch t {
	case BlockTypeText, BlockTypeCode, BlockTypeQuestion,
		BlockTypeTask, BlockTypeFlashcard, BlockTypeSummary:
		return true
	default:
		return false
	}
}

// Validate checks the block's structural invariants, including the
// content/status and error/status coupling rules.
func (b *Block) Validate() error {
	if b.ID == "" {
		return ErrEmptyBlockID
	}

	if !b.Type.IsValid() {
		return ErrInvalidBlockType
	}

	if !b.ContentStatus.IsValid() {
		return ErrInvalidStatus
	}

	if (b.Content != nil) != (b.ContentStatus == ContentStatusReady) {
		return ErrContentStatusCouple
	}

	if (b.ContentError != "") != (b.ContentStatus == ContentStatusError) {
		return ErrContentErrorCouple
	}

	if b.Content != nil {
		if err := b.Content.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks that exactly one content variant is populated.
func (c *BlockContent) Validate() error {
	populated := 0
	if c.Text != nil {
		populated++
	}
	if c.Code != nil {
		populated++
	}
	if c.Question != nil {
		populated++
	}
	if c.Task != nil {
		populated++
	}
	if c.Flashcard != nil {
		populated++
	}
	if c.Summary != nil {
		populated++
	}

	if populated != 1 {
		return ErrAmbiguousContent
	}
	return nil
}

// Matches reports whether the populated content variant matches the
// given block type.
func (c *BlockContent) Matches(t BlockType) bool {
	switch t {
	case BlockTypeText:
		return c.Text != nil
	case BlockTypeCode:
		return c.Code != nil
	case BlockTypeQuestion:
		return c.Question != nil
	case BlockTypeTask:
		return c.Task != nil
	case BlockTypeFlashcard:
		return c.Flashcard != nil
	case BlockTypeSummary:
		return c.Summary != nil
	default:
		return false
	}
}
