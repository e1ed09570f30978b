package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	crdbpgxv5 "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/coursedeck/backend/internal/db"
	"github.com/coursedeck/backend/internal/models"
)

// PostgresIdentityRepository provides PostgreSQL-backed persistence for identities.
type PostgresIdentityRepository struct {
	pool db.Pool
}

// NewPostgresIdentityRepository constructs an identity repository backed by PostgreSQL.
func NewPostgresIdentityRepository(pool db.Pool) *PostgresIdentityRepository {
	return &PostgresIdentityRepository{pool: pool}
}

const identityColumns = `id, role, email, full_name, password_hash, refresh_token,
        avatar_public_id, avatar_url, course_refs, created_at, updated_at`

// Create persists a new identity record.
func (r *PostgresIdentityRepository) Create(ctx context.Context, identity models.Identity) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	refs, err := marshalCourseRefs(identity.CourseRefs)
	if err != nil {
		return err
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO identities (id, role, email, full_name, password_hash, refresh_token,
                avatar_public_id, avatar_url, course_refs, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11)
    `, identity.ID, identity.Role, identity.Email, identity.FullName, identity.Password,
		identity.RefreshToken, identity.Avatar.PublicID, identity.Avatar.SecureURL,
		refs, identity.CreatedAt, identity.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert identity: %w", err)
	}

	return nil
}

// FindByID fetches an identity by its id.
func (r *PostgresIdentityRepository) FindByID(ctx context.Context, id string) (models.Identity, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Identity{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+identityColumns+`
        FROM identities
        WHERE id = $1
    `, id)

	return scanIdentity(row)
}

// FindByEmail fetches an identity by role and email. Emails are unique per
// role, not globally.
func (r *PostgresIdentityRepository) FindByEmail(ctx context.Context, role models.Role, email string) (models.Identity, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Identity{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+identityColumns+`
        FROM identities
        WHERE role = $1 AND email = $2
    `, role, email)

	return scanIdentity(row)
}

// SetRefreshToken overwrites the single refresh-token slot. An empty token
// clears the slot, ending the identity's session.
func (r *PostgresIdentityRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE identities
        SET refresh_token = NULLIF($2, ''), updated_at = $3
        WHERE id = $1
    `, id, token, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdatePassword replaces the stored credential hash.
func (r *PostgresIdentityRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE identities
        SET password_hash = $2, updated_at = $3
        WHERE id = $1
    `, id, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// MutateCourseRefs applies mutate to the relation list inside a retryable
// transaction holding a row lock, so concurrent mutations serialize instead
// of losing updates.
func (r *PostgresIdentityRepository) MutateCourseRefs(ctx context.Context, id string, mutate func([]models.CourseRef) ([]models.CourseRef, error)) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return crdbpgxv5.ExecuteTx(ctx, conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var raw []byte
		row := tx.QueryRow(ctx, `
            SELECT course_refs
            FROM identities
            WHERE id = $1
            FOR UPDATE
        `, id)
		if err := row.Scan(&raw); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("select course refs: %w", err)
		}

		var refs []models.CourseRef
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &refs); err != nil {
				return fmt.Errorf("decode course refs: %w", err)
			}
		}

		mutated, err := mutate(refs)
		if err != nil {
			return err
		}

		encoded, err := marshalCourseRefs(mutated)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
            UPDATE identities
            SET course_refs = $2, updated_at = $3
            WHERE id = $1
        `, id, encoded, time.Now().UTC()); err != nil {
			return fmt.Errorf("update course refs: %w", err)
		}

		return nil
	})
}

func scanIdentity(row pgx.Row) (models.Identity, error) {
	var (
		identity     models.Identity
		refreshToken sql.NullString
		refs         []byte
	)

	if err := row.Scan(&identity.ID, &identity.Role, &identity.Email, &identity.FullName,
		&identity.Password, &refreshToken, &identity.Avatar.PublicID, &identity.Avatar.SecureURL,
		&refs, &identity.CreatedAt, &identity.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Identity{}, ErrNotFound
		}
		return models.Identity{}, fmt.Errorf("select identity: %w", err)
	}

	if refreshToken.Valid {
		identity.RefreshToken = refreshToken.String
	}

	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &identity.CourseRefs); err != nil {
			return models.Identity{}, fmt.Errorf("decode course refs: %w", err)
		}
	}

	return identity, nil
}

func marshalCourseRefs(refs []models.CourseRef) ([]byte, error) {
	if refs == nil {
		refs = []models.CourseRef{}
	}
	encoded, err := json.Marshal(refs)
	if err != nil {
		return nil, fmt.Errorf("encode course refs: %w", err)
	}
	return encoded, nil
}

// PostgresCourseRepository provides PostgreSQL-backed persistence for courses.
type PostgresCourseRepository struct {
	pool db.Pool
}

// NewPostgresCourseRepository constructs a course repository backed by PostgreSQL.
func NewPostgresCourseRepository(pool db.Pool) *PostgresCourseRepository {
	return &PostgresCourseRepository{pool: pool}
}

// Create stores a new course row.
func (r *PostgresCourseRepository) Create(ctx context.Context, course models.Course) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	lectures, err := marshalLectures(course.Lectures)
	if err != nil {
		return err
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO courses (id, title, description, category, price, owner_id, owner_name,
                poster_public_id, poster_url, document_public_id, document_url,
                lectures, num_videos, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
    `, course.ID, course.Title, course.Description, course.Category, course.Price,
		course.OwnerID, course.OwnerName,
		course.Poster.PublicID, course.Poster.SecureURL,
		course.Document.PublicID, course.Document.SecureURL,
		lectures, course.NumVideos, course.CreatedAt, course.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert course: %w", err)
	}

	return nil
}

// FindByID fetches a course including its embedded lectures.
func (r *PostgresCourseRepository) FindByID(ctx context.Context, id string) (models.Course, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Course{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, title, description, category, price, owner_id, owner_name,
               poster_public_id, poster_url, document_public_id, document_url,
               lectures, num_videos, created_at, updated_at
        FROM courses
        WHERE id = $1
    `, id)

	var (
		course   models.Course
		lectures []byte
	)
	if err := row.Scan(&course.ID, &course.Title, &course.Description, &course.Category,
		&course.Price, &course.OwnerID, &course.OwnerName,
		&course.Poster.PublicID, &course.Poster.SecureURL,
		&course.Document.PublicID, &course.Document.SecureURL,
		&lectures, &course.NumVideos, &course.CreatedAt, &course.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Course{}, ErrNotFound
		}
		return models.Course{}, fmt.Errorf("select course: %w", err)
	}

	if len(lectures) > 0 {
		if err := json.Unmarshal(lectures, &course.Lectures); err != nil {
			return models.Course{}, fmt.Errorf("decode lectures: %w", err)
		}
	}

	return course, nil
}

// List returns all courses in reverse chronological order with lecture bodies
// excluded.
func (r *PostgresCourseRepository) List(ctx context.Context) ([]models.Course, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, title, description, category, price, owner_id, owner_name,
               poster_public_id, poster_url, document_public_id, document_url,
               num_videos, created_at, updated_at
        FROM courses
        ORDER BY created_at DESC
    `)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	var courses []models.Course
	for rows.Next() {
		var course models.Course
		if err := rows.Scan(&course.ID, &course.Title, &course.Description, &course.Category,
			&course.Price, &course.OwnerID, &course.OwnerName,
			&course.Poster.PublicID, &course.Poster.SecureURL,
			&course.Document.PublicID, &course.Document.SecureURL,
			&course.NumVideos, &course.CreatedAt, &course.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		courses = append(courses, course)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}

	return courses, nil
}

// UpdateDetails persists the editable course fields. Lecture bodies, blob
// references, and ownership are untouched.
func (r *PostgresCourseRepository) UpdateDetails(ctx context.Context, course models.Course) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE courses
        SET title = $2, description = $3, category = $4, price = $5, updated_at = $6
        WHERE id = $1
    `, course.ID, course.Title, course.Description, course.Category, course.Price, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update course details: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateLectures rewrites the lecture list and derived video count without
// touching any other column.
func (r *PostgresCourseRepository) UpdateLectures(ctx context.Context, courseID string, lectures []models.Lecture, numVideos int) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	encoded, err := marshalLectures(lectures)
	if err != nil {
		return err
	}

	tag, err := conn.Exec(ctx, `
        UPDATE courses
        SET lectures = $2, num_videos = $3, updated_at = $4
        WHERE id = $1
    `, courseID, encoded, numVideos, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update lectures: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a course row.
func (r *PostgresCourseRepository) Delete(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM courses
        WHERE id = $1
    `, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func marshalLectures(lectures []models.Lecture) ([]byte, error) {
	if lectures == nil {
		lectures = []models.Lecture{}
	}
	encoded, err := json.Marshal(lectures)
	if err != nil {
		return nil, fmt.Errorf("encode lectures: %w", err)
	}
	return encoded, nil
}

var _ IdentityRepository = (*PostgresIdentityRepository)(nil)
var _ CourseRepository = (*PostgresCourseRepository)(nil)
