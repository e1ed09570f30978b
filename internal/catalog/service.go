package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coursedeck/backend/internal/blobstore"
	"github.com/coursedeck/backend/internal/logging"
	"github.com/coursedeck/backend/internal/models"
	"github.com/coursedeck/backend/internal/repositories"
)

// ErrNotOwner indicates an authenticated uploader attempted to mutate a course
// they do not own. The owner reference on the course row is the source of
// truth; the relation list is only denormalization.
var ErrNotOwner = errors.New("identity does not own the course")

// IdentityStore captures the identity persistence the catalog needs.
type IdentityStore interface {
	FindByID(ctx context.Context, id string) (models.Identity, error)
	MutateCourseRefs(ctx context.Context, id string, mutate func([]models.CourseRef) ([]models.CourseRef, error)) error
}

// CourseStore captures the course persistence the catalog needs.
type CourseStore interface {
	Create(ctx context.Context, course models.Course) error
	FindByID(ctx context.Context, id string) (models.Course, error)
	List(ctx context.Context) ([]models.Course, error)
	UpdateDetails(ctx context.Context, course models.Course) error
	UpdateLectures(ctx context.Context, courseID string, lectures []models.Lecture, numVideos int) error
	Delete(ctx context.Context, id string) error
}

// Service implements course ownership, lecture management, and enrollment on
// top of the identity and course stores plus the external blob store.
//
// Multi-entity sequences here are deliberately not atomic: each single-row
// write is, but a failure between writes can leave documented gaps (an
// un-listed orphan course, a dangling optedCourses entry). Those gaps are
// surfaced in logs, never silently patched.
type Service struct {
	identities IdentityStore
	courses    CourseStore
	blobs      blobstore.Store
	now        func() time.Time
}

// NewService wires the catalog service.
func NewService(identities IdentityStore, courses CourseStore, blobs blobstore.Store) *Service {
	if identities == nil || courses == nil || blobs == nil {
		panic("catalog: all service dependencies must be provided")
	}
	return &Service{
		identities: identities,
		courses:    courses,
		blobs:      blobs,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithNowFunc overrides the time source. Useful for tests.
func (s *Service) WithNowFunc(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateCourseInput carries the validated course fields plus the staged local
// paths of the poster and document uploads.
type CreateCourseInput struct {
	Title        string
	Description  string
	Category     string
	Price        int64
	PosterPath   string
	DocumentPath string
}

// CreateCourse uploads the poster and document, inserts the course row, and
// appends the {courseId, title} snapshot to the uploader's relation list.
//
// A duplicate title within the uploader's own list is a conflict; the scan is
// linear because the per-uploader list is small. The course insert and the
// relation-list update are two independent writes: a failure between them
// leaves an orphan course that is not listed anywhere, which is logged and
// reported rather than rolled back.
func (s *Service) CreateCourse(ctx context.Context, uploader models.Identity, in CreateCourseInput) (models.Course, error) {
	title := strings.TrimSpace(in.Title)
	for _, ref := range uploader.CourseRefs {
		if ref.Title == title {
			return models.Course{}, fmt.Errorf("uploader already owns a course titled %q: %w", title, repositories.ErrConflict)
		}
	}

	poster, err := s.blobs.Upload(ctx, in.PosterPath, blobstore.KindImage)
	if err != nil {
		return models.Course{}, fmt.Errorf("upload poster: %w", err)
	}

	document, err := s.blobs.Upload(ctx, in.DocumentPath, blobstore.KindDocument)
	if err != nil {
		return models.Course{}, fmt.Errorf("upload document: %w", err)
	}

	now := s.now()
	course := models.Course{
		ID:          uuid.NewString(),
		Title:       title,
		Description: in.Description,
		Category:    in.Category,
		Price:       in.Price,
		OwnerID:     uploader.ID,
		OwnerName:   uploader.FullName,
		Poster:      poster,
		Document:    document,
		Lectures:    []models.Lecture{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.courses.Create(ctx, course); err != nil {
		return models.Course{}, fmt.Errorf("insert course: %w", err)
	}

	err = s.identities.MutateCourseRefs(ctx, uploader.ID, func(refs []models.CourseRef) ([]models.CourseRef, error) {
		return append(refs, models.CourseRef{CourseID: course.ID, Title: course.Title}), nil
	})
	if err != nil {
		// The course row exists but is listed nowhere: an orphan requiring a
		// reconciliation pass, not a rollback.
		logging.FromContext(ctx).Error("course created but owner list update failed; orphan course",
			"courseId", course.ID, "uploaderId", uploader.ID, "error", err)
		return models.Course{}, fmt.Errorf("append owner course ref: %w", err)
	}

	return course, nil
}

// EditCourseInput carries the editable course fields. Blank fields keep their
// current values.
type EditCourseInput struct {
	Title       string
	Description string
	Category    string
	Price       *int64
}

// EditCourse updates the editable course fields. Title snapshots in relation
// lists are intentionally left as captured at creation; they drift.
func (s *Service) EditCourse(ctx context.Context, course models.Course, in EditCourseInput) (models.Course, error) {
	if title := strings.TrimSpace(in.Title); title != "" {
		course.Title = title
	}
	if desc := strings.TrimSpace(in.Description); desc != "" {
		course.Description = desc
	}
	if cat := strings.TrimSpace(in.Category); cat != "" {
		course.Category = cat
	}
	if in.Price != nil {
		course.Price = *in.Price
	}
	course.UpdatedAt = s.now()

	if err := s.courses.UpdateDetails(ctx, course); err != nil {
		return models.Course{}, fmt.Errorf("update course details: %w", err)
	}

	return course, nil
}

// LectureInput carries the lecture fields plus the staged local path of the
// video upload.
type LectureInput struct {
	Title       string
	Description string
	VideoPath   string
}

// AddLecture uploads the video, appends the lecture, recomputes the derived
// video count, and persists through the permissive lectures-only save.
func (s *Service) AddLecture(ctx context.Context, course models.Course, in LectureInput) (models.Lecture, error) {
	video, err := s.blobs.Upload(ctx, in.VideoPath, blobstore.KindVideo)
	if err != nil {
		return models.Lecture{}, fmt.Errorf("upload lecture video: %w", err)
	}

	lecture := models.Lecture{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Video:       video,
	}

	lectures := append(course.Lectures, lecture)
	if err := s.courses.UpdateLectures(ctx, course.ID, lectures, len(lectures)); err != nil {
		return models.Lecture{}, fmt.Errorf("persist lectures: %w", err)
	}

	return lecture, nil
}

// DeleteLecture removes a lecture from its course. The video blob is deleted
// before the list entry; blob deletion is best-effort with no rollback.
func (s *Service) DeleteLecture(ctx context.Context, course models.Course, lectureID string) error {
	idx := -1
	for i, lecture := range course.Lectures {
		if lecture.ID == lectureID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("lecture %s: %w", lectureID, repositories.ErrNotFound)
	}

	victim := course.Lectures[idx]
	if err := s.blobs.Delete(ctx, victim.Video.PublicID, blobstore.KindVideo); err != nil {
		logging.FromContext(ctx).Error("lecture video blob deletion failed",
			"courseId", course.ID, "lectureId", lectureID, "publicId", victim.Video.PublicID, "error", err)
	}

	lectures := append(course.Lectures[:idx:idx], course.Lectures[idx+1:]...)
	if err := s.courses.UpdateLectures(ctx, course.ID, lectures, len(lectures)); err != nil {
		return fmt.Errorf("persist lectures: %w", err)
	}

	return nil
}

// Enroll appends a {courseId, title} snapshot to the learner's optedCourses.
// It is idempotent: an already-present courseId is a no-op success, never a
// duplicate entry.
func (s *Service) Enroll(ctx context.Context, learner models.Identity, courseID string) (models.CourseRef, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return models.CourseRef{}, fmt.Errorf("load course %s: %w", courseID, err)
	}

	ref := models.CourseRef{CourseID: course.ID, Title: course.Title}
	err = s.identities.MutateCourseRefs(ctx, learner.ID, func(refs []models.CourseRef) ([]models.CourseRef, error) {
		for _, existing := range refs {
			if existing.CourseID == course.ID {
				ref = existing
				return refs, nil
			}
		}
		return append(refs, ref), nil
	})
	if err != nil {
		return models.CourseRef{}, fmt.Errorf("append enrollment: %w", err)
	}

	return ref, nil
}

// ListEnrolled resolves each optedCourses entry to a live course, lecture
// bodies excluded. Entries whose course no longer exists are skipped on read
// and never purged here.
func (s *Service) ListEnrolled(ctx context.Context, learnerID string) ([]models.Course, error) {
	learner, err := s.identities.FindByID(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("load learner %s: %w", learnerID, err)
	}

	courses := make([]models.Course, 0, len(learner.CourseRefs))
	for _, ref := range learner.CourseRefs {
		course, err := s.courses.FindByID(ctx, ref.CourseID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				logging.FromContext(ctx).Warn("skipping dangling enrollment entry",
					"learnerId", learnerID, "courseId", ref.CourseID)
				continue
			}
			return nil, fmt.Errorf("resolve course %s: %w", ref.CourseID, err)
		}
		courses = append(courses, course.WithoutLectures())
	}

	return courses, nil
}

// ListCourses returns the public catalog, lecture bodies excluded.
func (s *Service) ListCourses(ctx context.Context) ([]models.Course, error) {
	return s.courses.List(ctx)
}

// GetCourse returns a course by id. Lecture bodies are included only when the
// viewer is the owner or an enrolled learner; every other caller gets the
// course with lectures excluded.
func (s *Service) GetCourse(ctx context.Context, courseID string, viewer *models.Identity) (models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return models.Course{}, fmt.Errorf("load course %s: %w", courseID, err)
	}

	if viewer != nil {
		if viewer.ID == course.OwnerID {
			return course, nil
		}
		for _, ref := range viewer.CourseRefs {
			if ref.CourseID == course.ID {
				return course, nil
			}
		}
	}

	return course.WithoutLectures(), nil
}
