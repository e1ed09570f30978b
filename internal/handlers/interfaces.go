package handlers

import (
	"context"

	"github.com/coursedeck/backend/internal/auth"
	"github.com/coursedeck/backend/internal/blobstore"
	"github.com/coursedeck/backend/internal/catalog"
	"github.com/coursedeck/backend/internal/models"
)

// IdentityStore captures the persistence operations required by the identity handlers.
type IdentityStore interface {
	Create(ctx context.Context, identity models.Identity) error
	FindByID(ctx context.Context, id string) (models.Identity, error)
	FindByEmail(ctx context.Context, role models.Role, email string) (models.Identity, error)
	SetRefreshToken(ctx context.Context, id, token string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// TokenService issues, verifies, and rotates session token pairs.
type TokenService interface {
	IssuePair(ctx context.Context, identity models.Identity) (models.TokenPair, error)
	VerifyAccess(token string) (auth.AccessClaims, error)
	Rotate(ctx context.Context, presented string) (models.Identity, models.TokenPair, error)
}

// CourseFinder loads courses for the ownership gate and viewers.
type CourseFinder interface {
	FindByID(ctx context.Context, id string) (models.Course, error)
}

// CatalogService captures the course, lecture, and enrollment operations
// required by the HTTP handlers.
type CatalogService interface {
	CreateCourse(ctx context.Context, uploader models.Identity, in catalog.CreateCourseInput) (models.Course, error)
	EditCourse(ctx context.Context, course models.Course, in catalog.EditCourseInput) (models.Course, error)
	AddLecture(ctx context.Context, course models.Course, in catalog.LectureInput) (models.Lecture, error)
	DeleteLecture(ctx context.Context, course models.Course, lectureID string) error
	DeleteCourse(ctx context.Context, uploader models.Identity, course models.Course) (catalog.CascadeReport, error)
	Enroll(ctx context.Context, learner models.Identity, courseID string) (models.CourseRef, error)
	ListEnrolled(ctx context.Context, learnerID string) ([]models.Course, error)
	ListCourses(ctx context.Context) ([]models.Course, error)
	GetCourse(ctx context.Context, courseID string, viewer *models.Identity) (models.Course, error)
}

// BlobUploader uploads staged files to the external blob store.
type BlobUploader interface {
	Upload(ctx context.Context, localPath string, kind blobstore.Kind) (models.Blob, error)
}
