package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/coursedeck/backend/internal/blobstore"
	"github.com/coursedeck/backend/internal/models"
	"github.com/coursedeck/backend/internal/repositories"
)

func cascadeCourse() models.Course {
	return models.Course{
		ID:       "course-1",
		Title:    "Gardening",
		OwnerID:  "uploader-1",
		Poster:   models.Blob{PublicID: "poster-1"},
		Document: models.Blob{PublicID: "document-1"},
		Lectures: []models.Lecture{
			{ID: "lecture-1", Video: models.Blob{PublicID: "video-1"}},
			{ID: "lecture-2", Video: models.Blob{PublicID: "video-2"}},
		},
		NumVideos: 2,
	}
}

func TestDeleteCourseCascadeOrder(t *testing.T) {
	uploader := testUploader()
	uploader.CourseRefs = []models.CourseRef{
		{CourseID: "course-1", Title: "Gardening"},
		{CourseID: "course-2", Title: "Baking"},
	}
	identities := newFakeIdentityStore(uploader)
	course := cascadeCourse()
	courses := newFakeCourseStore(course)
	blobs := &fakeBlobStore{}
	svc := NewService(identities, courses, blobs)

	report, err := svc.DeleteCourse(context.Background(), uploader, course)
	if err != nil {
		t.Fatalf("delete course: %v", err)
	}

	if report.CourseID != "course-1" {
		t.Fatalf("unexpected report course id: %q", report.CourseID)
	}
	if len(report.Failed) != 0 {
		t.Fatalf("expected no failed deletions, got %+v", report.Failed)
	}

	// The owner keeps only the unrelated entry.
	refs := identities.refs("uploader-1")
	if len(refs) != 1 || refs[0].CourseID != "course-2" {
		t.Fatalf("expected only the unrelated course ref, got %+v", refs)
	}

	// Poster, document, then each lecture video, each exactly once.
	deletes := blobs.deletes()
	want := []blobCall{
		{op: "delete", publicID: "poster-1", kind: blobstore.KindImage},
		{op: "delete", publicID: "document-1", kind: blobstore.KindDocument},
		{op: "delete", publicID: "video-1", kind: blobstore.KindVideo},
		{op: "delete", publicID: "video-2", kind: blobstore.KindVideo},
	}
	if len(deletes) != len(want) {
		t.Fatalf("expected %d blob deletes, got %+v", len(want), deletes)
	}
	for i, call := range want {
		if deletes[i] != call {
			t.Fatalf("delete %d: expected %+v got %+v", i, call, deletes[i])
		}
	}

	if _, err := courses.FindByID(context.Background(), "course-1"); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("expected course row deleted, got %v", err)
	}
}

func TestDeleteCourseRejectsNonOwner(t *testing.T) {
	course := cascadeCourse()
	blobs := &fakeBlobStore{}
	svc := NewService(newFakeIdentityStore(), newFakeCourseStore(course), blobs)

	intruder := models.Identity{ID: "uploader-2", Role: models.RoleUploader}
	if _, err := svc.DeleteCourse(context.Background(), intruder, course); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner got %v", err)
	}
	if len(blobs.calls) != 0 {
		t.Fatalf("expected no blob activity for rejected delete, got %+v", blobs.calls)
	}
}

func TestDeleteCourseBlobFailuresReportedNotRetried(t *testing.T) {
	uploader := testUploader()
	uploader.CourseRefs = []models.CourseRef{{CourseID: "course-1", Title: "Gardening"}}
	identities := newFakeIdentityStore(uploader)
	course := cascadeCourse()
	courses := newFakeCourseStore(course)
	blobs := &fakeBlobStore{deleteErr: map[string]error{
		"document-1": errors.New("store unreachable"),
		"video-2":    errors.New("store unreachable"),
	}}
	svc := NewService(identities, courses, blobs)

	report, err := svc.DeleteCourse(context.Background(), uploader, course)
	if err != nil {
		t.Fatalf("cascade must complete past blob failures: %v", err)
	}

	if len(report.Attempts) != 4 {
		t.Fatalf("expected 4 attempts, got %+v", report.Attempts)
	}
	if len(report.Failed) != 2 {
		t.Fatalf("expected 2 failed deletions, got %+v", report.Failed)
	}
	if report.Failed[0].PublicID != "document-1" || report.Failed[1].PublicID != "video-2" {
		t.Fatalf("unexpected failed set: %+v", report.Failed)
	}

	// Each blob attempted exactly once, failures included.
	if deletes := blobs.deletes(); len(deletes) != 4 {
		t.Fatalf("expected each blob attempted once, got %+v", deletes)
	}

	// The row is gone regardless of blob outcomes.
	if _, err := courses.FindByID(context.Background(), "course-1"); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("expected course row deleted, got %v", err)
	}
}

func TestDeleteCourseLeavesLearnerEnrollments(t *testing.T) {
	uploader := testUploader()
	uploader.CourseRefs = []models.CourseRef{{CourseID: "course-1", Title: "Gardening"}}
	learner := testLearner()
	learner.CourseRefs = []models.CourseRef{{CourseID: "course-1", Title: "Gardening"}}
	identities := newFakeIdentityStore(uploader, learner)
	course := cascadeCourse()
	svc := NewService(identities, newFakeCourseStore(course), &fakeBlobStore{})

	if _, err := svc.DeleteCourse(context.Background(), uploader, course); err != nil {
		t.Fatalf("delete course: %v", err)
	}

	// The cascade never reaches into learner lists; the dangling entry is
	// skipped at read time instead.
	if refs := identities.refs("learner-1"); len(refs) != 1 {
		t.Fatalf("expected learner enrollment untouched, got %+v", refs)
	}

	courses, err := svc.ListEnrolled(context.Background(), "learner-1")
	if err != nil {
		t.Fatalf("list enrolled: %v", err)
	}
	if len(courses) != 0 {
		t.Fatalf("expected dangling enrollment skipped on read, got %+v", courses)
	}
}
