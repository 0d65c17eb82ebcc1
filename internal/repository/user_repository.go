package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"elearning/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrInvalidInput = errors.New("invalid input value")
)

const (
	uniqueViolation     = "23505"
	invalidTextEncoding = "22P02"
)

// DBTX is the subset of pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type UserRepository struct {
	pool DBTX
}

func NewUserRepository(pool DBTX) *UserRepository {
	return &UserRepository{pool: pool}
}

const (
	publicColumns = `id, name, email, NULL::bytea, avatar_public_id, avatar_url, role, is_verified, courses, created_at, updated_at`
	secretColumns = `id, name, email, password_hash, avatar_public_id, avatar_url, role, is_verified, courses, created_at, updated_at`
)

func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	const query = `
		INSERT INTO users (
			id, name, email, password_hash, avatar_public_id, avatar_url, role, is_verified, courses, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW()
		)
	`

	courses, err := encodeCourses(user.Courses)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Avatar.PublicID,
		user.Avatar.URL,
		string(user.Role),
		user.IsVerified,
		courses,
	)
	return translate(err)
}

// FindByEmail is the default read: the password hash is never selected.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.scanOne(ctx, `SELECT `+publicColumns+` FROM users WHERE email = $1`, email)
}

// FindCredentialsByEmail also loads the password hash, for login only.
func (r *UserRepository) FindCredentialsByEmail(ctx context.Context, email string) (models.User, error) {
	return r.scanOne(ctx, `SELECT `+secretColumns+` FROM users WHERE email = $1`, email)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	return r.scanOne(ctx, `SELECT `+publicColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) GetCredentialsByID(ctx context.Context, id string) (models.User, error) {
	return r.scanOne(ctx, `SELECT `+secretColumns+` FROM users WHERE id = $1`, id)
}

// UpdateInfo writes name and email. An empty value keeps the stored column.
func (r *UserRepository) UpdateInfo(ctx context.Context, id, name, email string) (models.User, error) {
	const query = `
		UPDATE users
		SET name = COALESCE(NULLIF($2, ''), name),
		    email = COALESCE(NULLIF($3, ''), email),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + publicColumns
	return r.scanOne(ctx, query, id, name, email)
}

// UpdateAvatar swaps the avatar columns only and returns the avatar it
// replaced, read under the same row lock.
func (r *UserRepository) UpdateAvatar(ctx context.Context, id string, avatar models.Avatar) (models.Avatar, models.User, error) {
	const query = `
		WITH prev AS (
			SELECT avatar_public_id AS previous_public_id, avatar_url AS previous_url
			FROM users
			WHERE id = $1
			FOR UPDATE
		)
		UPDATE users
		SET avatar_public_id = $2,
		    avatar_url = $3,
		    updated_at = NOW()
		FROM prev
		WHERE id = $1
		RETURNING prev.previous_public_id, prev.previous_url, ` + publicColumns

	var previous models.Avatar
	user, err := scanUser(r.pool.QueryRow(ctx, query, id, avatar.PublicID, avatar.URL), &previous.PublicID, &previous.URL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Avatar{}, models.User{}, ErrUserNotFound
		}
		return models.Avatar{}, models.User{}, translate(err)
	}
	return previous, user, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash []byte) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) UpdateRole(ctx context.Context, id string, role models.UserRole) error {
	const query = `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, string(role))
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	query := `SELECT ` + publicColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) scanOne(ctx context.Context, query string, args ...any) (models.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, translate(err)
	}
	return user, nil
}

// scanUser reads the user columns after any extra leading destinations.
func scanUser(row pgx.Row, extra ...any) (models.User, error) {
	var (
		user    models.User
		role    string
		courses []byte
	)
	dest := append(extra,
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Avatar.PublicID,
		&user.Avatar.URL,
		&role,
		&user.IsVerified,
		&courses,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		return models.User{}, err
	}

	user.Role = models.UserRole(role)
	user.Courses = []models.CourseRef{}
	if len(courses) > 0 {
		if err := json.Unmarshal(courses, &user.Courses); err != nil {
			return models.User{}, fmt.Errorf("decode courses: %w", err)
		}
	}
	return user, nil
}

func encodeCourses(courses []models.CourseRef) ([]byte, error) {
	if courses == nil {
		courses = []models.CourseRef{}
	}
	raw, err := json.Marshal(courses)
	if err != nil {
		return nil, fmt.Errorf("encode courses: %w", err)
	}
	return raw, nil
}

// translate maps constraint violations to repository errors; the unique
// index on email is the authoritative duplicate guard.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case uniqueViolation:
		return fmt.Errorf("%w: %s", ErrEmailTaken, pgErr.ConstraintName)
	case invalidTextEncoding:
		return fmt.Errorf("%w: %s", ErrInvalidInput, pgErr.Message)
	}
	return err
}
