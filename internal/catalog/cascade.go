package catalog

import (
	"context"
	"fmt"

	"github.com/coursedeck/backend/internal/blobstore"
	"github.com/coursedeck/backend/internal/logging"
	"github.com/coursedeck/backend/internal/models"
)

// BlobDeletion records one attempted blob removal inside a cascade.
type BlobDeletion struct {
	PublicID string         `json:"publicId"`
	Kind     blobstore.Kind `json:"kind"`
	Error    string         `json:"error,omitempty"`
}

// CascadeReport summarises a course deletion cascade. Blob failures are
// collected rather than swallowed; the sequence itself never retries.
type CascadeReport struct {
	CourseID string         `json:"courseId"`
	Attempts []BlobDeletion `json:"attempts"`
	Failed   []BlobDeletion `json:"failed,omitempty"`
}

// DeleteCourse runs the ordered deletion sequence for a course:
//
//  1. verify ownership against the course row (source of truth)
//  2. remove the entry from the uploader's relation list and persist it
//  3. delete the poster blob, the document blob, and every lecture video
//     blob, serially, each attempted exactly once
//  4. delete the course row
//
// The owner is unlinked before anything irreversible so a mid-sequence
// failure leaves an orphaned-but-retrievable course rather than a dangling
// reference. No step cascades into any learner's optedCourses: deleted
// courses may remain referenced there, a documented gap.
func (s *Service) DeleteCourse(ctx context.Context, uploader models.Identity, course models.Course) (CascadeReport, error) {
	logger := logging.FromContext(ctx)
	report := CascadeReport{CourseID: course.ID}

	if course.OwnerID != uploader.ID {
		return report, ErrNotOwner
	}

	err := s.identities.MutateCourseRefs(ctx, uploader.ID, func(refs []models.CourseRef) ([]models.CourseRef, error) {
		kept := refs[:0]
		for _, ref := range refs {
			if ref.CourseID != course.ID {
				kept = append(kept, ref)
			}
		}
		return kept, nil
	})
	if err != nil {
		return report, fmt.Errorf("unlink owner course ref: %w", err)
	}

	deletions := []BlobDeletion{
		{PublicID: course.Poster.PublicID, Kind: blobstore.KindImage},
		{PublicID: course.Document.PublicID, Kind: blobstore.KindDocument},
	}
	for _, lecture := range course.Lectures {
		deletions = append(deletions, BlobDeletion{PublicID: lecture.Video.PublicID, Kind: blobstore.KindVideo})
	}

	for _, deletion := range deletions {
		if err := s.blobs.Delete(ctx, deletion.PublicID, deletion.Kind); err != nil {
			deletion.Error = err.Error()
			report.Failed = append(report.Failed, deletion)
			logger.Error("cascade blob deletion failed",
				"courseId", course.ID, "publicId", deletion.PublicID, "kind", deletion.Kind, "error", err)
		}
		report.Attempts = append(report.Attempts, deletion)
	}

	if err := s.courses.Delete(ctx, course.ID); err != nil {
		return report, fmt.Errorf("delete course row: %w", err)
	}

	if len(report.Failed) > 0 {
		logger.Warn("course deleted with unreclaimed blobs",
			"courseId", course.ID, "failedBlobDeletes", len(report.Failed))
	}

	return report, nil
}
