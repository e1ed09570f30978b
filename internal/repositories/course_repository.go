package repositories

import (
	"context"

	"github.com/coursedeck/backend/internal/models"
)

// CourseRepository defines data access for courses and their embedded lectures.
type CourseRepository interface {
	Create(ctx context.Context, course models.Course) error
	FindByID(ctx context.Context, id string) (models.Course, error)

	// List returns the public catalog with lecture bodies excluded.
	List(ctx context.Context) ([]models.Course, error)

	// UpdateDetails persists title, description, category, and price only.
	UpdateDetails(ctx context.Context, course models.Course) error

	// UpdateLectures is the permissive save used by lecture mutations: it
	// rewrites the lecture list and derived count without touching, or
	// re-validating, any other column.
	UpdateLectures(ctx context.Context, courseID string, lectures []models.Lecture, numVideos int) error

	Delete(ctx context.Context, id string) error
}
