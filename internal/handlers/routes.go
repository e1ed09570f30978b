package handlers

import (
	"net/http"

	"github.com/coursedeck/backend/internal/models"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	authn := Authenticator{Tokens: deps.Tokens, Identities: deps.Identities}

	health := HealthHandler{}
	identity := IdentityHandler{
		Identities: deps.Identities,
		Tokens:     deps.Tokens,
		Blobs:      deps.Blobs,
		TempDir:    deps.TempDir,
		Limiter:    deps.Limiter,
	}
	courses := CourseHandler{Catalog: deps.Catalog, TempDir: deps.TempDir}
	catalog := CatalogHandler{Catalog: deps.Catalog, Auth: authn}

	pathCourseID := func(r *http.Request) string { return r.PathValue("courseId") }
	queryCourseID := func(r *http.Request) string { return r.URL.Query().Get("courseId") }

	mux.HandleFunc("GET /healthz", health.Handle)

	for _, role := range []models.Role{models.RoleLearner, models.RoleUploader} {
		prefix := "/api/v1/" + string(role)
		mux.HandleFunc("POST "+prefix+"/register", identity.Register(role))
		mux.HandleFunc("POST "+prefix+"/login", identity.Login(role))
		mux.HandleFunc("POST "+prefix+"/logout", authn.Require(role, identity.Logout))
		mux.HandleFunc("GET "+prefix+"/current", authn.Require(role, identity.Current))
		mux.HandleFunc("PATCH "+prefix+"/password", authn.Require(role, identity.ChangePassword))
	}

	mux.HandleFunc("POST /api/v1/auth/refresh-token", identity.Refresh)

	mux.HandleFunc("GET /api/v1/courses", catalog.ListCourses)
	mux.HandleFunc("GET /api/v1/courses/{courseId}", catalog.GetCourseDetail)

	mux.HandleFunc("GET /api/v1/learner/my-courses",
		authn.Require(models.RoleLearner, catalog.MyCourses))
	mux.HandleFunc("POST /api/v1/learner/enroll/{courseId}",
		authn.Require(models.RoleLearner, catalog.Enroll))

	mux.HandleFunc("POST /api/v1/uploader/create-course",
		authn.Require(models.RoleUploader, courses.CreateCourse))
	mux.HandleFunc("GET /api/v1/uploader/course/{courseId}",
		authn.Require(models.RoleUploader, courses.GetCourse))
	mux.HandleFunc("PUT /api/v1/uploader/edit-course/{courseId}",
		authn.Require(models.RoleUploader, authn.RequireOwner(deps.Courses, pathCourseID, courses.EditCourse)))
	mux.HandleFunc("DELETE /api/v1/uploader/delete-course/{courseId}",
		authn.Require(models.RoleUploader, authn.RequireOwner(deps.Courses, pathCourseID, courses.DeleteCourse)))
	mux.HandleFunc("POST /api/v1/uploader/add-lecture/{courseId}",
		authn.Require(models.RoleUploader, authn.RequireOwner(deps.Courses, pathCourseID, courses.AddLecture)))
	mux.HandleFunc("DELETE /api/v1/uploader/delete-lecture",
		authn.Require(models.RoleUploader, authn.RequireOwner(deps.Courses, queryCourseID, courses.DeleteLecture)))
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Identities IdentityStore
	Tokens     TokenService
	Courses    CourseFinder
	Catalog    CatalogService
	Blobs      BlobUploader
	TempDir    string
	Limiter    RateLimiter
}
