package repositories

import (
	"context"

	"github.com/coursedeck/backend/internal/models"
)

// IdentityRepository defines the data access contract for learner and
// uploader accounts.
type IdentityRepository interface {
	Create(ctx context.Context, identity models.Identity) error
	FindByID(ctx context.Context, id string) (models.Identity, error)
	FindByEmail(ctx context.Context, role models.Role, email string) (models.Identity, error)

	// SetRefreshToken overwrites the identity's single session slot in one
	// atomic row update. An empty token clears the slot.
	SetRefreshToken(ctx context.Context, id, token string) error

	// UpdatePassword replaces the stored credential hash.
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// MutateCourseRefs applies mutate to the identity's relation list under
	// read-modify-write discipline and persists the result atomically.
	MutateCourseRefs(ctx context.Context, id string, mutate func([]models.CourseRef) ([]models.CourseRef, error)) error
}
