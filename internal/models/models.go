package models

import "time"

// Role discriminates the two identity classes supported by the platform.
type Role string

const (
	RoleLearner  Role = "learner"
	RoleUploader Role = "uploader"
)

// Valid reports whether the role is one of the two supported classes.
func (r Role) Valid() bool {
	return r == RoleLearner || r == RoleUploader
}

// Blob references a media object held by the external blob store.
type Blob struct {
	PublicID  string `json:"publicId"`
	SecureURL string `json:"secureUrl"`
}

// Identity represents a learner or uploader account.
//
// RefreshToken is the single live session slot: it is overwritten on every
// login and rotation and cleared on logout. CourseRefs holds the denormalized
// relation list — uploadedCourses for uploaders, optedCourses for learners.
type Identity struct {
	ID           string      `json:"id"`
	Role         Role        `json:"role"`
	Email        string      `json:"email"`
	FullName     string      `json:"fullName"`
	Password     string      `json:"-"`
	RefreshToken string      `json:"-"`
	Avatar       Blob        `json:"avatar"`
	CourseRefs   []CourseRef `json:"courseRefs"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// Sanitized returns a copy with credential and session material stripped,
// safe to attach to a request context or serialize in a response.
func (i Identity) Sanitized() Identity {
	i.Password = ""
	i.RefreshToken = ""
	return i
}

// CourseRef is a denormalized {courseId, title} snapshot cross-referencing a
// course from an identity's relation list. The title is captured at creation
// time and is not kept in sync with later course edits.
type CourseRef struct {
	CourseID string `json:"courseId"`
	Title    string `json:"title"`
}

// Course is an uploader-owned resource whose media lives in the blob store.
// OwnerID is the source of truth for ownership; the owner's relation list is
// denormalization on top of it.
type Course struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Price       int64     `json:"price"`
	OwnerID     string    `json:"ownerId"`
	OwnerName   string    `json:"ownerName"`
	Poster      Blob      `json:"poster"`
	Document    Blob      `json:"document"`
	Lectures    []Lecture `json:"lectures,omitempty"`
	NumVideos   int       `json:"numOfVideos"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// WithoutLectures returns a copy with lecture bodies excluded. NumVideos is
// preserved so listings can still show the lecture count.
func (c Course) WithoutLectures() Course {
	c.Lectures = nil
	return c
}

// Lecture exists only embedded inside exactly one course; its id is unique
// within that course.
type Lecture struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Video       Blob   `json:"video"`
}

// TokenPair groups the signed session credentials issued to an identity.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
