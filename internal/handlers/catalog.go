package handlers

import (
	"net/http"
	"strings"

	"github.com/coursedeck/backend/internal/logging"
)

// CatalogHandler implements the public browse endpoints and the
// learner-facing enrollment endpoints.
type CatalogHandler struct {
	Catalog CatalogService
	Auth    Authenticator
}

// ListCourses handles GET /api/v1/courses requests. Lecture bodies are never
// included in listings.
func (h CatalogHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	courses, err := h.Catalog.ListCourses(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("list courses failed", "error", err)
		respondFailure(ctx, w, err)
		return
	}

	respondData(ctx, w, http.StatusOK, courses, "courses fetched successfully")
}

// GetCourseDetail handles GET /api/v1/courses/{courseId} requests. The
// endpoint is public; a valid session only widens what is returned (owners
// and enrolled learners see lecture bodies).
func (h CatalogHandler) GetCourseDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	courseID := strings.TrimSpace(r.PathValue("courseId"))
	if courseID == "" {
		respondError(ctx, w, http.StatusBadRequest, "courseId is required")
		return
	}

	viewer := h.Auth.Identify(r)

	course, err := h.Catalog.GetCourse(ctx, courseID, viewer)
	if err != nil {
		logging.FromContext(ctx).Error("get course detail failed", "error", err, "courseId", courseID)
		respondFailure(ctx, w, err)
		return
	}

	respondData(ctx, w, http.StatusOK, course, "course fetched successfully")
}

// MyCourses handles GET /api/v1/learner/my-courses requests.
func (h CatalogHandler) MyCourses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	learner, ok := IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	courses, err := h.Catalog.ListEnrolled(ctx, learner.ID)
	if err != nil {
		logging.FromContext(ctx).Error("list enrolled courses failed", "error", err, "learnerId", learner.ID)
		respondFailure(ctx, w, err)
		return
	}

	respondData(ctx, w, http.StatusOK, courses, "enrolled courses fetched successfully")
}

// Enroll handles POST /api/v1/learner/enroll/{courseId} requests. Enrolling
// twice in the same course is a no-op success.
func (h CatalogHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	learner, ok := IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	courseID := strings.TrimSpace(r.PathValue("courseId"))
	if courseID == "" {
		respondError(ctx, w, http.StatusBadRequest, "courseId is required")
		return
	}

	ref, err := h.Catalog.Enroll(ctx, learner, courseID)
	if err != nil {
		logging.FromContext(ctx).Error("enroll failed", "error", err, "learnerId", learner.ID, "courseId", courseID)
		respondFailure(ctx, w, err)
		return
	}

	respondData(ctx, w, http.StatusOK, ref, "enrolled successfully")
}
