package app

import (
	"context"
	"time"

	"github.com/coursedeck/backend/internal/auth"
	"github.com/coursedeck/backend/internal/blobstore"
	"github.com/coursedeck/backend/internal/catalog"
	"github.com/coursedeck/backend/internal/config"
	"github.com/coursedeck/backend/internal/db"
	"github.com/coursedeck/backend/internal/handlers"
	"github.com/coursedeck/backend/internal/middleware"
	"github.com/coursedeck/backend/internal/repositories"
)

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, error) {
	identities := repositories.NewPostgresIdentityRepository(pool)
	courses := repositories.NewPostgresCourseRepository(pool)

	s3Store, err := blobstore.NewS3Store(ctx, cfg.ObjectStore)
	if err != nil {
		return handlers.Dependencies{}, err
	}
	blobs := blobstore.NewResilientStore(s3Store)

	tokens := auth.NewTokenService(cfg.Tokens, identities)
	svc := catalog.NewService(identities, courses, blobs)

	limiter := middleware.NewIPRateLimiter(cfg.RateLimitPerMin, time.Minute, cfg.RateLimitBurst, 10*time.Minute)

	return handlers.Dependencies{
		Identities: identities,
		Tokens:     tokens,
		Courses:    courses,
		Catalog:    svc,
		Blobs:      blobs,
		TempDir:    cfg.UploadTempDir,
		Limiter:    limiter,
	}, nil
}
