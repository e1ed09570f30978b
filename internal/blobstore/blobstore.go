package blobstore

import (
	"context"
	"errors"

	"github.com/coursedeck/backend/internal/models"
)

// Kind classifies a stored media object. It selects the key prefix on upload
// and must be passed back on delete.
type Kind string

const (
	KindImage    Kind = "image"
	KindDocument Kind = "document"
	KindVideo    Kind = "video"
)

// ErrUnavailable indicates the blob store rejected the call before it was
// attempted, e.g. because the circuit breaker is open.
var ErrUnavailable = errors.New("blob store unavailable")

// Store is the external blob-store collaborator. Media files are uploaded
// from a staged local path and addressed afterwards by their opaque public id.
type Store interface {
	Upload(ctx context.Context, localPath string, kind Kind) (models.Blob, error)
	Delete(ctx context.Context, publicID string, kind Kind) error
}
