package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coursedeck/backend/internal/auth"
	"github.com/coursedeck/backend/internal/blobstore"
	"github.com/coursedeck/backend/internal/catalog"
	"github.com/coursedeck/backend/internal/config"
	"github.com/coursedeck/backend/internal/models"
	"github.com/coursedeck/backend/internal/repositories"
)

type memIdentityStore struct {
	mu         sync.Mutex
	identities map[string]models.Identity
}

func newMemIdentityStore() *memIdentityStore {
	return &memIdentityStore{identities: make(map[string]models.Identity)}
}

func (s *memIdentityStore) Create(_ context.Context, identity models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.identities {
		if existing.Role == identity.Role && existing.Email == identity.Email {
			return repositories.ErrConflict
		}
	}
	s.identities[identity.ID] = identity
	return nil
}

func (s *memIdentityStore) FindByID(_ context.Context, id string) (models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return models.Identity{}, repositories.ErrNotFound
	}
	return identity, nil
}

func (s *memIdentityStore) FindByEmail(_ context.Context, role models.Role, email string) (models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, identity := range s.identities {
		if identity.Role == role && identity.Email == email {
			return identity, nil
		}
	}
	return models.Identity{}, repositories.ErrNotFound
}

func (s *memIdentityStore) SetRefreshToken(_ context.Context, id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return repositories.ErrNotFound
	}
	identity.RefreshToken = token
	s.identities[id] = identity
	return nil
}

func (s *memIdentityStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return repositories.ErrNotFound
	}
	identity.Password = passwordHash
	s.identities[id] = identity
	return nil
}

func (s *memIdentityStore) MutateCourseRefs(_ context.Context, id string, mutate func([]models.CourseRef) ([]models.CourseRef, error)) error {
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

type memCourseStore struct {
	mu      sync.Mutex
	courses map[string]models.Course
	order   []string
}

func newMemCourseStore() *memCourseStore {
	return &memCourseStore{courses: make(map[string]models.Course)}
}

func (s *memCourseStore) Create(_ context.Context, course models.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.courses[course.ID]; exists {
		return repositories.ErrConflict
	}
	s.courses[course.ID] = course
	s.order = append(s.order, course.ID)
	return nil
}

func (s *memCourseStore) FindByID(_ context.Context, id string) (models.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	course, ok := s.courses[id]
	if !ok {
		return models.Course{}, repositories.ErrNotFound
	}
	return course, nil
}

func (s *memCourseStore) List(_ context.Context) ([]models.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var courses []models.Course
	for _, id := range s.order {
		if course, ok := s.courses[id]; ok {
			courses = append(courses, course.WithoutLectures())
		}
	}
	return courses, nil
}

func (s *memCourseStore) UpdateDetails(_ context.Context, course models.Course) error {
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

func (s *memCourseStore) UpdateLectures(_ context.Context, courseID string, lectures []models.Lecture, numVideos int) error {
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

func (s *memCourseStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.courses, id)
	return nil
}

type recordingBlobStore struct {
	mu      sync.Mutex
	uploads []string
	deletes []string
	counter int
}

func (s *recordingBlobStore) Upload(_ context.Context, localPath string, kind blobstore.Kind) (models.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	publicID := fmt.Sprintf("%s-%d", kind, s.counter)
	s.uploads = append(s.uploads, publicID)
	return models.Blob{PublicID: publicID, SecureURL: "https://cdn.example.com/" + publicID}, nil
}

func (s *recordingBlobStore) Delete(_ context.Context, publicID string, _ blobstore.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, publicID)
	return nil
}

// testEnv wires the full handler surface over in-memory stores with the real
// token and catalog services.
type testEnv struct {
	mux        *http.ServeMux
	identities *memIdentityStore
	courses    *memCourseStore
	blobs      *recordingBlobStore
	tokens     *auth.TokenService
	tempDir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	identities := newMemIdentityStore()
	courses := newMemCourseStore()
	blobs := &recordingBlobStore{}

	tokens := auth.NewTokenService(config.TokenConfig{
		AccessSecret:  "access-secret",
		AccessTTL:     15 * time.Minute,
		RefreshSecret: "refresh-secret",
		RefreshTTL:    24 * time.Hour,
	}, identities)

	svc := catalog.NewService(identities, courses, blobs)

	tempDir := t.TempDir()
	mux := http.NewServeMux()
	RegisterRoutes(mux, Dependencies{
		Identities: identities,
		Tokens:     tokens,
		Courses:    courses,
		Catalog:    svc,
		Blobs:      blobs,
		TempDir:    tempDir,
	})

	return &testEnv{mux: mux, identities: identities, courses: courses, blobs: blobs, tokens: tokens, tempDir: tempDir}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

// register creates an account through the HTTP surface and returns the stored identity.
func (e *testEnv) register(t *testing.T, role models.Role, email, fullName, password string) models.Identity {
	t.Helper()

	body, contentType := multipartBody(t, map[string]string{
		"fullName": fullName,
		"email":    email,
		"password": password,
	}, map[string]string{"avatar": "avatar.png"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/"+string(role)+"/register", body)
	req.Header.Set("Content-Type", contentType)
	rec := e.do(t, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: expected 201 got %d: %s", email, rec.Code, rec.Body.String())
	}

	identity, err := e.identities.FindByEmail(context.Background(), role, email)
	if err != nil {
		t.Fatalf("registered identity not stored: %v", err)
	}
	return identity
}

// login authenticates through the HTTP surface and returns the session cookies.
func (e *testEnv) login(t *testing.T, role models.Role, email, password string) []*http.Cookie {
	t.Helper()

	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		t.Fatalf("marshal login: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/"+string(role)+"/login", bytes.NewReader(body))
	rec := e.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200 got %d: %s", email, rec.Code, rec.Body.String())
	}

	cookies := rec.Result().Cookies()
	if len(cookies) < 2 {
		t.Fatalf("expected session cookies, got %+v", cookies)
	}
	return cookies
}

func attachCookies(req *http.Request, cookies []*http.Cookie) *http.Request {
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	return req
}

func cookieValue(cookies []*http.Cookie, name string) string {
	for _, cookie := range cookies {
		if cookie.Name == name {
			return cookie.Value
		}
	}
	return ""
}

// multipartBody builds a multipart form with the given fields and one small
// synthetic file per named field.
func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	for field, filename := range files {
		part, err := writer.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("create form file %s: %v", field, err)
		}
		if _, err := io.WriteString(part, "file-contents-"+field); err != nil {
			t.Fatalf("write form file %s: %v", field, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

// testEnvelope mirrors the response envelope with raw data for per-test decoding.
type testEnvelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
	Errors     []string        `json:"errors"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}
