// Package api implements the HTTP trigger surface of the generation
// pipeline. Handlers validate, scope by owner, and either read the
// course document or hand intent to the scheduler; they never touch the
// task queue directly.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/phrazzld/coursegen-api/internal/api/shared"
	"github.com/phrazzld/coursegen-api/internal/domain"
	"github.com/phrazzld/coursegen-api/internal/events"
	"github.com/phrazzld/coursegen-api/internal/store"
)

// Scheduler is the slice of the cascade scheduler the handlers use.
type Scheduler interface {
	RequestOutline(ctx context.Context, courseID uuid.UUID) error
	RequestOutlineRegeneration(ctx context.Context, courseID uuid.UUID) error
	RequestBlockRegeneration(ctx context.Context, courseID uuid.UUID, lessonID, blockID string) error
}

// CreateCourseRequest represents the request body for creating a course.
type CreateCourseRequest struct {
	Title string `json:"title" validate:"required,min=1,max=500"`
}

// CourseHandler handles course-related HTTP requests.
type CourseHandler struct {
	courses   store.CourseStore
	scheduler Scheduler
	emitter   events.Emitter
	validator *validator.Validate
}

// NewCourseHandler creates a new CourseHandler.
func NewCourseHandler(courses store.CourseStore, scheduler Scheduler, emitter events.Emitter) *CourseHandler {
	return &CourseHandler{
		courses:   courses,
		scheduler: scheduler,
		emitter:   emitter,
		validator: validator.New(),
	}
}

// CreateCourse handles POST /courses requests. The course is persisted
// with a pending outline and generation starts in the background; the
// client polls GET /courses/{id} to observe progress.
func (h *CourseHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.GetUserID(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	var req CreateCourseRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Title is required")
		return
	}

	course, err := domain.NewCourse(userID, req.Title)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid course")
		return
	}

	if err := h.courses.Create(r.Context(), course); err != nil {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to create course")
		return
	}

	if err := h.scheduler.RequestOutline(r.Context(), course.ID); err != nil {
		// The course row exists; outline generation can still be kicked
		// off later via regeneration, so surface the course anyway.
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to schedule outline generation")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, course)
}

// GetCourse handles GET /courses/{id} requests, returning the course
// document exactly as stored, statuses included.
func (h *CourseHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	course, ok := h.loadOwnedCourse(w, r)
	if !ok {
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, course)
}

// ViewLesson handles POST /courses/{id}/lessons/{lessonID}/view
// requests. The view is an intent signal: it is acknowledged with 202
// and the look-ahead cascade runs from the event, never inline.
func (h *CourseHandler) ViewLesson(w http.ResponseWriter, r *http.Request) {
	course, ok := h.loadOwnedCourse(w, r)
	if !ok {
		return
	}

	lessonID := chi.URLParam(r, "lessonID")
	if lesson, _ := course.FindLesson(lessonID); lesson == nil {
		shared.RespondWithError(w, r, http.StatusNotFound, "Lesson not found")
		return
	}

	event, err := events.NewViewIntentEvent(course.ID, lessonID)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to record view")
		return
	}
	if err := h.emitter.EmitEvent(r.Context(), event); err != nil {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to process view")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, nil)
}

// RegenerateOutline handles POST /courses/{id}/regenerate-outline
// requests, the explicit retry path for a failed (or stale ready)
// outline.
func (h *CourseHandler) RegenerateOutline(w http.ResponseWriter, r *http.Request) {
	course, ok := h.loadOwnedCourse(w, r)
	if !ok {
		return
	}

	if err := h.scheduler.RequestOutlineRegeneration(r.Context(), course.ID); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			shared.RespondWithError(w, r, http.StatusConflict, "Outline is not in a regenerable state")
			return
		}
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to schedule regeneration")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, nil)
}

// RegenerateBlock handles
// POST /courses/{id}/lessons/{lessonID}/blocks/{blockID}/regenerate
// requests, the explicit retry path for a single errored block.
func (h *CourseHandler) RegenerateBlock(w http.ResponseWriter, r *http.Request) {
	course, ok := h.loadOwnedCourse(w, r)
	if !ok {
		return
	}

	lessonID := chi.URLParam(r, "lessonID")
	blockID := chi.URLParam(r, "blockID")

	err := h.scheduler.RequestBlockRegeneration(r.Context(), course.ID, lessonID, blockID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidTransition):
			shared.RespondWithError(w, r, http.StatusConflict, "Block is not in a regenerable state")
		case store.IsNotFoundError(err):
			shared.RespondWithError(w, r, http.StatusNotFound, "Block not found")
		default:
			shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to schedule regeneration")
		}
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, nil)
}

// loadOwnedCourse parses the course ID, loads the course, and verifies
// ownership. Cross-owner access reads as 404, never 403, so course IDs
// are not probeable.
func (h *CourseHandler) loadOwnedCourse(w http.ResponseWriter, r *http.Request) (*domain.Course, bool) {
	userID, ok := shared.GetUserID(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return nil, false
	}

	courseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid course ID")
		return nil, false
	}

	course, err := h.courses.GetByID(r.Context(), courseID)
	if err != nil {
		if store.IsNotFoundError(err) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Course not found")
			return nil, false
		}
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to load course")
		return nil, false
	}

	if course.OwnerID != userID {
		shared.RespondWithError(w, r, http.StatusNotFound, "Course not found")
		return nil, false
	}

	return course, true
}
