package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/coursedeck/backend/internal/blobstore"
	"github.com/coursedeck/backend/internal/models"
	"github.com/coursedeck/backend/internal/repositories"
)

type fakeIdentityStore struct {
	mu         sync.Mutex
	identities map[string]models.Identity
	mutateErr  error
}

func newFakeIdentityStore(identities ...models.Identity) *fakeIdentityStore {
	store := &fakeIdentityStore{identities: make(map[string]models.Identity)}
	for _, identity := range identities {
		store.identities[identity.ID] = identity
	}
	return store
}

func (s *fakeIdentityStore) FindByID(_ context.Context, id string) (models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return models.Identity{}, repositories.ErrNotFound
	}
	return identity, nil
}

func (s *fakeIdentityStore) MutateCourseRefs(_ context.Context, id string, mutate func([]models.CourseRef) ([]models.CourseRef, error)) error {
	if s.mutateErr != nil {
		return s.mutateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return repositories.ErrNotFound
	}
	mutated, err := mutate(identity.CourseRefs)
	if err != nil {
		return err
	}
	identity.CourseRefs = mutated
	s.identities[id] = identity
	return nil
}

func (s *fakeIdentityStore) refs(id string) []models.CourseRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identities[id].CourseRefs
}

type fakeCourseStore struct {
	mu      sync.Mutex
	courses map[string]models.Course
	deleted []string
}

func newFakeCourseStore(courses ...models.Course) *fakeCourseStore {
	store := &fakeCourseStore{courses: make(map[string]models.Course)}
	for _, course := range courses {
		store.courses[course.ID] = course
	}
	return store
}

func (s *fakeCourseStore) Create(_ context.Context, course models.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.courses[course.ID]; exists {
		return repositories.ErrConflict
	}
	s.courses[course.ID] = course
	return nil
}

func (s *fakeCourseStore) FindByID(_ context.Context, id string) (models.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	course, ok := s.courses[id]
	if !ok {
		return models.Course{}, repositories.ErrNotFound
	}
	return course, nil
}

func (s *fakeCourseStore) List(_ context.Context) ([]models.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	courses := make([]models.Course, 0, len(s.courses))
	for _, course := range s.courses {
		courses = append(courses, course.WithoutLectures())
	}
	return courses, nil
}

func (s *fakeCourseStore) UpdateDetails(_ context.Context, course models.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.courses[course.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	stored.Title = course.Title
	stored.Description = course.Description
	stored.Category = course.Category
	stored.Price = course.Price
	stored.UpdatedAt = course.UpdatedAt
	s.courses[course.ID] = stored
	return nil
}

func (s *fakeCourseStore) UpdateLectures(_ context.Context, courseID string, lectures []models.Lecture, numVideos int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.courses[courseID]
	if !ok {
		return repositories.ErrNotFound
	}
	stored.Lectures = lectures
	stored.NumVideos = numVideos
	s.courses[courseID] = stored
	return nil
}

func (s *fakeCourseStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.courses, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type blobCall struct {
	op       string
	publicID string
	kind     blobstore.Kind
}

type fakeBlobStore struct {
	mu        sync.Mutex
	calls     []blobCall
	uploadErr error
	deleteErr map[string]error
	counter   int
}

func (s *fakeBlobStore) Upload(_ context.Context, localPath string, kind blobstore.Kind) (models.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return models.Blob{}, s.uploadErr
	}
	s.counter++
	publicID := fmt.Sprintf("%s-%d", kind, s.counter)
	s.calls = append(s.calls, blobCall{op: "upload", publicID: publicID, kind: kind})
	return models.Blob{PublicID: publicID, SecureURL: "https://cdn.example.com/" + publicID}, nil
}

func (s *fakeBlobStore) Delete(_ context.Context, publicID string, kind blobstore.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, blobCall{op: "delete", publicID: publicID, kind: kind})
	if err, ok := s.deleteErr[publicID]; ok {
		return err
	}
	return nil
}

func (s *fakeBlobStore) deletes() []blobCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deletes []blobCall
	for _, call := range s.calls {
		if call.op == "delete" {
			deletes = append(deletes, call)
		}
	}
	return deletes
}

func testUploader() models.Identity {
	return models.Identity{ID: "uploader-1", Role: models.RoleUploader, FullName: "Priya Shah"}
}

func testLearner() models.Identity {
	return models.Identity{ID: "learner-1", Role: models.RoleLearner, FullName: "Ken Watanabe"}
}

func TestCreateCourse(t *testing.T) {
	identities := newFakeIdentityStore(testUploader())
	courses := newFakeCourseStore()
	blobs := &fakeBlobStore{}
	svc := NewService(identities, courses, blobs)

	course, err := svc.CreateCourse(context.Background(), testUploader(), CreateCourseInput{
		Title:        "Intro to Gardening",
		Description:  "Soil, seeds, seasons",
		Category:     "hobby",
		Price:        4900,
		PosterPath:   "/tmp/poster.png",
		DocumentPath: "/tmp/syllabus.pdf",
	})
	if err != nil {
		t.Fatalf("create course: %v", err)
	}

	if course.ID == "" {
		t.Fatal("expected generated course id")
	}
	if course.OwnerID != "uploader-1" || course.OwnerName != "Priya Shah" {
		t.Fatalf("unexpected owner snapshot: %+v", course)
	}
	if course.Poster.PublicID == "" || course.Document.PublicID == "" {
		t.Fatalf("expected poster and document blobs: %+v", course)
	}
	if course.NumVideos != 0 || len(course.Lectures) != 0 {
		t.Fatalf("expected an empty lecture list: %+v", course)
	}

	refs := identities.refs("uploader-1")
	if len(refs) != 1 || refs[0].CourseID != course.ID || refs[0].Title != "Intro to Gardening" {
		t.Fatalf("expected owner relation snapshot, got %+v", refs)
	}

	if len(blobs.calls) != 2 || blobs.calls[0].kind != blobstore.KindImage || blobs.calls[1].kind != blobstore.KindDocument {
		t.Fatalf("expected poster then document upload, got %+v", blobs.calls)
	}
}

func TestCreateCourseDuplicateTitle(t *testing.T) {
	uploader := testUploader()
	uploader.CourseRefs = []models.CourseRef{{CourseID: "course-0", Title: "Intro to Gardening"}}
	identities := newFakeIdentityStore(uploader)
	blobs := &fakeBlobStore{}
	svc := NewService(identities, newFakeCourseStore(), blobs)

	_, err := svc.CreateCourse(context.Background(), uploader, CreateCourseInput{Title: "Intro to Gardening"})
	if !errors.Is(err, repositories.ErrConflict) {
		t.Fatalf("expected ErrConflict got %v", err)
	}
	if len(blobs.calls) != 0 {
		t.Fatalf("expected no uploads for a rejected duplicate, got %+v", blobs.calls)
	}
}

func TestCreateCourseOrphanOnRefFailure(t *testing.T) {
	identities := newFakeIdentityStore(testUploader())
	identities.mutateErr = errors.New("boom")
	courses := newFakeCourseStore()
	svc := NewService(identities, courses, &fakeBlobStore{})

	_, err := svc.CreateCourse(context.Background(), testUploader(), CreateCourseInput{Title: "Orphaned"})
	if err == nil {
		t.Fatal("expected error when the owner list update fails")
	}

	// The course row survives as an orphan; there is no rollback.
	all, _ := courses.List(context.Background())
	if len(all) != 1 {
		t.Fatalf("expected the orphan course row to remain, got %d rows", len(all))
	}
}

func TestEditCourseKeepsBlankFields(t *testing.T) {
	course := models.Course{ID: "course-1", Title: "Old Title", Description: "Old desc", Category: "old", Price: 100}
	courses := newFakeCourseStore(course)
	svc := NewService(newFakeIdentityStore(), courses, &fakeBlobStore{})

	newPrice := int64(250)
	updated, err := svc.EditCourse(context.Background(), course, EditCourseInput{Title: "  ", Description: "New desc", Price: &newPrice})
	if err != nil {
		t.Fatalf("edit course: %v", err)
	}

	if updated.Title != "Old Title" {
		t.Fatalf("blank title must keep current value, got %q", updated.Title)
	}
	if updated.Description != "New desc" || updated.Price != 250 {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if updated.Category != "old" {
		t.Fatalf("absent category must keep current value, got %q", updated.Category)
	}
}

func TestEditCourseDoesNotRewriteSnapshots(t *testing.T) {
	uploader := testUploader()
	uploader.CourseRefs = []models.CourseRef{{CourseID: "course-1", Title: "Old Title"}}
	identities := newFakeIdentityStore(uploader)
	course := models.Course{ID: "course-1", Title: "Old Title", OwnerID: uploader.ID}
	svc := NewService(identities, newFakeCourseStore(course), &fakeBlobStore{})

	if _, err := svc.EditCourse(context.Background(), course, EditCourseInput{Title: "New Title"}); err != nil {
		t.Fatalf("edit course: %v", err)
	}

	refs := identities.refs(uploader.ID)
	if refs[0].Title != "Old Title" {
		t.Fatalf("relation snapshot must keep the creation-time title, got %q", refs[0].Title)
	}
}

func TestAddAndDeleteLecture(t *testing.T) {
	course := models.Course{ID: "course-1", Title: "Gardening", Lectures: []models.Lecture{}}
	courses := newFakeCourseStore(course)
	blobs := &fakeBlobStore{}
	svc := NewService(newFakeIdentityStore(), courses, blobs)

	lecture, err := svc.AddLecture(context.Background(), course, LectureInput{Title: "Composting", Description: "Week one", VideoPath: "/tmp/video.mp4"})
	if err != nil {
		t.Fatalf("add lecture: %v", err)
	}
	if lecture.ID == "" || lecture.Video.PublicID == "" {
		t.Fatalf("expected lecture with id and video blob: %+v", lecture)
	}

	stored, _ := courses.FindByID(context.Background(), "course-1")
	if len(stored.Lectures) != 1 || stored.NumVideos != 1 {
		t.Fatalf("expected one lecture and numVideos 1, got %+v", stored)
	}

	if err := svc.DeleteLecture(context.Background(), stored, lecture.ID); err != nil {
		t.Fatalf("delete lecture: %v", err)
	}

	stored, _ = courses.FindByID(context.Background(), "course-1")
	if len(stored.Lectures) != 0 || stored.NumVideos != 0 {
		t.Fatalf("expected empty lecture list and numVideos 0, got %+v", stored)
	}

	deletes := blobs.deletes()
	if len(deletes) != 1 || deletes[0].publicID != lecture.Video.PublicID || deletes[0].kind != blobstore.KindVideo {
		t.Fatalf("expected exactly one video blob delete, got %+v", deletes)
	}
}

func TestDeleteLectureUnknownID(t *testing.T) {
	course := models.Course{ID: "course-1", Lectures: []models.Lecture{{ID: "lecture-1"}}}
	svc := NewService(newFakeIdentityStore(), newFakeCourseStore(course), &fakeBlobStore{})

	if err := svc.DeleteLecture(context.Background(), course, "nope"); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestDeleteLectureBlobFailureStillRemoves(t *testing.T) {
	course := models.Course{ID: "course-1", Lectures: []models.Lecture{
		{ID: "lecture-1", Video: models.Blob{PublicID: "video-1"}},
	}}
	courses := newFakeCourseStore(course)
	blobs := &fakeBlobStore{deleteErr: map[string]error{"video-1": errors.New("unreachable")}}
	svc := NewService(newFakeIdentityStore(), courses, blobs)

	if err := svc.DeleteLecture(context.Background(), course, "lecture-1"); err != nil {
		t.Fatalf("delete lecture should tolerate blob failure: %v", err)
	}

	stored, _ := courses.FindByID(context.Background(), "course-1")
	if len(stored.Lectures) != 0 {
		t.Fatalf("expected lecture removed despite blob failure, got %+v", stored.Lectures)
	}
}

func TestEnrollIdempotent(t *testing.T) {
	identities := newFakeIdentityStore(testLearner())
	course := models.Course{ID: "course-1", Title: "Gardening"}
	svc := NewService(identities, newFakeCourseStore(course), &fakeBlobStore{})

	for i := 0; i < 3; i++ {
		ref, err := svc.Enroll(context.Background(), testLearner(), "course-1")
		if err != nil {
			t.Fatalf("enroll attempt %d: %v", i+1, err)
		}
		if ref.CourseID != "course-1" || ref.Title != "Gardening" {
			t.Fatalf("unexpected enrollment ref: %+v", ref)
		}
	}

	refs := identities.refs("learner-1")
	if len(refs) != 1 {
		t.Fatalf("expected exactly one enrollment entry, got %+v", refs)
	}
}

func TestEnrollUnknownCourse(t *testing.T) {
	svc := NewService(newFakeIdentityStore(testLearner()), newFakeCourseStore(), &fakeBlobStore{})

	if _, err := svc.Enroll(context.Background(), testLearner(), "missing"); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestListEnrolledSkipsDanglingEntries(t *testing.T) {
	learner := testLearner()
	learner.CourseRefs = []models.CourseRef{
		{CourseID: "course-1", Title: "Gardening"},
		{CourseID: "course-gone", Title: "Deleted"},
	}
	identities := newFakeIdentityStore(learner)
	course := models.Course{ID: "course-1", Title: "Gardening", Lectures: []models.Lecture{{ID: "lecture-1"}}}
	svc := NewService(identities, newFakeCourseStore(course), &fakeBlobStore{})

	courses, err := svc.ListEnrolled(context.Background(), "learner-1")
	if err != nil {
		t.Fatalf("list enrolled: %v", err)
	}

	if len(courses) != 1 || courses[0].ID != "course-1" {
		t.Fatalf("expected only the live course, got %+v", courses)
	}
	if len(courses[0].Lectures) != 0 {
		t.Fatal("listings must exclude lecture bodies")
	}

	// The dangling entry is skipped, never purged.
	if refs := identities.refs("learner-1"); len(refs) != 2 {
		t.Fatalf("expected dangling entry to remain, got %+v", refs)
	}
}

func TestGetCourseLectureGating(t *testing.T) {
	course := models.Course{
		ID:      "course-1",
		OwnerID: "uploader-1",
		Lectures: []models.Lecture{
			{ID: "lecture-1", Title: "Composting"},
		},
		NumVideos: 1,
	}
	svc := NewService(newFakeIdentityStore(), newFakeCourseStore(course), &fakeBlobStore{})

	owner := testUploader()
	enrolled := testLearner()
	enrolled.CourseRefs = []models.CourseRef{{CourseID: "course-1", Title: "Gardening"}}
	stranger := models.Identity{ID: "learner-2", Role: models.RoleLearner}

	tests := []struct {
		name         string
		viewer       *models.Identity
		wantLectures bool
	}{
		{name: "anonymous", viewer: nil, wantLectures: false},
		{name: "owner", viewer: &owner, wantLectures: true},
		{name: "enrolled learner", viewer: &enrolled, wantLectures: true},
		{name: "unenrolled learner", viewer: &stranger, wantLectures: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.GetCourse(context.Background(), "course-1", tc.viewer)
			if err != nil {
				t.Fatalf("get course: %v", err)
			}
			if tc.wantLectures && len(got.Lectures) == 0 {
				t.Fatal("expected lecture bodies for privileged viewer")
			}
			if !tc.wantLectures && len(got.Lectures) != 0 {
				t.Fatal("expected lecture bodies withheld")
			}
			if got.NumVideos != 1 {
				t.Fatalf("video count must survive gating, got %d", got.NumVideos)
			}
		})
	}
}
