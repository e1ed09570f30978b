package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/coursedeck/backend/internal/catalog"
	"github.com/coursedeck/backend/internal/logging"
	"github.com/coursedeck/backend/internal/models"
)

// CourseHandler implements the uploader-facing course management endpoints.
// Ownership-gated endpoints expect to run behind Authenticator.RequireOwner.
type CourseHandler struct {
	Catalog CatalogService
	TempDir string
}

// CreateCourse handles POST /api/v1/uploader/create-course requests
// (multipart, poster and document required).
func (h CourseHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	uploader, ok := IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		logger.Warn("invalid create course payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid multipart request body")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	description := strings.TrimSpace(r.FormValue("description"))
	category := strings.TrimSpace(r.FormValue("category"))
	priceRaw := strings.TrimSpace(r.FormValue("price"))

	if anyBlank(title, description, category, priceRaw) {
		respondError(ctx, w, http.StatusBadRequest, "all fields are mandatory")
		return
	}

	price, err := strconv.ParseInt(priceRaw, 10, 64)
	if err != nil || price < 0 {
		respondError(ctx, w, http.StatusBadRequest, "price must be a non-negative integer")
		return
	}

	posterPath, posterCleanup, err := stageUpload(r, "poster", h.TempDir)
	if err != nil {
		logger.Warn("create course poster staging failed", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "poster is required")
		return
	}
	defer posterCleanup()

	documentPath, documentCleanup, err := stageUpload(r, "document", h.TempDir)
	if err != nil {
		logger.Warn("create course document staging failed", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "document is required")
		return
	}
	defer documentCleanup()

	course, err := h.Catalog.CreateCourse(ctx, uploader, catalog.CreateCourseInput{
		Title:        title,
		Description:  description,
		Category:     category,
		Price:        price,
		PosterPath:   posterPath,
		DocumentPath: documentPath,
	})
	if err != nil {
		logger.Error("create course failed", "error", err, "uploaderId", uploader.ID)
		respondFailure(ctx, w, err)
		return
	}

	respondData(ctx, w, http.StatusCreated, course, "course created successfully")
}

// EditCourse handles PUT /api/v1/uploader/edit-course/{courseId} requests.
// Blank fields keep the stored values.
func (h CourseHandler) EditCourse(w http.ResponseWriter, r *http.Request, course models.Course) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req editCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid edit course payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.Catalog.EditCourse(ctx, course, catalog.EditCourseInput{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
		Price:       req.Price,
	})
	if err != nil {
		logger.Error("edit course failed", "error", err, "courseId", course.ID)
		respondFailure(ctx, w, err)
		return
	}

	respondData(ctx, w, http.StatusOK, updated, "course updated successfully")
}

// DeleteCourse handles DELETE /api/v1/uploader/delete-course/{courseId}
// requests. The response reports any blob deletions that could not be
// completed; the course itself is always gone on success.
func (h CourseHandler) DeleteCourse(w http.ResponseWriter, r *http.Request, course models.Course) {
	ctx := r.Context()

	uploader, ok := IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	report, err := h.Catalog.DeleteCourse(ctx, uploader, course)
	if err != nil {
		logging.FromContext(ctx).Error("delete course failed", "error", err, "courseId", course.ID)
		respondFailure(ctx, w, err)
		return
	}

	respondData(ctx, w, http.StatusOK, report, "course deleted successfully")
}

// AddLecture handles POST /api/v1/uploader/add-lecture/{courseId} requests
// (multipart, video required).
func (h CourseHandler) AddLecture(w http.ResponseWriter, r *http.Request, course models.Course) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		logger.Warn("invalid add lecture payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid multipart request body")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	description := strings.TrimSpace(r.FormValue("description"))
	if anyBlank(title, description) {
		respondError(ctx, w, http.StatusBadRequest, "title and description are mandatory")
		return
	}

	videoPath, cleanup, err := stageUpload(r, "video", h.TempDir)
	if err != nil {
		logger.Warn("add lecture video staging failed", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "video is required")
		return
	}
	defer cleanup()

	lecture, err := h.Catalog.AddLecture(ctx, course, catalog.LectureInput{
		Title:       title,
		Description: description,
		VideoPath:   videoPath,
	})
	if err != nil {
		logger.Error("add lecture failed", "error", err, "courseId", course.ID)
		respondFailure(ctx, w, err)
		return
	}

	respondData(ctx, w, http.StatusCreated, lecture, "lecture added successfully")
}

// DeleteLecture handles DELETE /api/v1/uploader/delete-lecture requests.
// The course and lecture are identified by query parameters.
func (h CourseHandler) DeleteLecture(w http.ResponseWriter, r *http.Request, course models.Course) {
	ctx := r.Context()

	lectureID := strings.TrimSpace(r.URL.Query().Get("lectureId"))
	if lectureID == "" {
		respondError(ctx, w, http.StatusBadRequest, "lectureId is required")
		return
	}

	if err := h.Catalog.DeleteLecture(ctx, course, lectureID); err != nil {
		logging.FromContext(ctx).Error("delete lecture failed", "error", err, "courseId", course.ID, "lectureId", lectureID)
		respondFailure(ctx, w, err)
		return
	}

	respondData(ctx, w, http.StatusOK, nil, "lecture deleted successfully")
}

// GetCourse handles GET /api/v1/uploader/course/{courseId} requests. Any
// authenticated uploader may fetch any course; lecture bodies are included
// only for the owner.
func (h CourseHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := IdentityFromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	courseID := strings.TrimSpace(r.PathValue("courseId"))
	if courseID == "" {
		respondError(ctx, w, http.StatusBadRequest, "courseId is required")
		return
	}

	detail, err := h.Catalog.GetCourse(ctx, courseID, &identity)
	if err != nil {
		logging.FromContext(ctx).Error("get course failed", "error", err, "courseId", courseID)
		respondFailure(ctx, w, err)
		return
	}

	respondData(ctx, w, http.StatusOK, detail, "course fetched successfully")
}

type editCourseRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Price       *int64 `json:"price"`
}
