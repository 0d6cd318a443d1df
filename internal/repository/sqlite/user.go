package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/polly-app/polly/internal/apperror"
	"github.com/polly-app/polly/internal/model"
	"github.com/polly-app/polly/internal/repository"
)

// UserRepo implements repository.UserRepository on the shared pool.
type UserRepo struct {
	conn *sql.DB
}

func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{conn: db.conn}
}

var _ repository.UserRepository = (*UserRepo)(nil)

// Create inserts a new password-based user. The caller is expected to have
// hashed the password already; this layer never sees plaintext.
// Returns apperror.ErrConflict if the email is already registered.
func (r *UserRepo) Create(ctx context.Context, user *model.User) error {
	now := time.Now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, username, password_hash, avatar_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.AvatarURL,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		// The UNIQUE constraint on email is the only one this insert can
		// trip; surface it as a domain conflict rather than a raw SQL error.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperror.Conflict("an account with this email already exists")
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their internal ID.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getUser(ctx, `WHERE id = ?`, id)
}

// GetByEmail retrieves a user by email. Used by the login flow.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getUser(ctx, `WHERE email = ?`, email)
}

func (r *UserRepo) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	var (
		u        model.User
		githubID sql.NullInt64
	)

	err := r.conn.QueryRowContext(ctx,
		`SELECT id, email, username, password_hash, github_id, avatar_url, created_at, updated_at
		 FROM users `+where,
		arg,
	).Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.PasswordHash,
		&githubID,
		&u.AvatarURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting user: %w", err)
	}

	if githubID.Valid {
		u.GitHubID = githubID.Int64
	}

	return &u, nil
}

// UpsertGitHub inserts or refreshes a user keyed by their GitHub ID.
// First OAuth login creates the account; later logins update the username,
// email, and avatar in case they changed on GitHub, while keeping the
// internal ID stable.
func (r *UserRepo) UpsertGitHub(ctx context.Context, user *model.User) error {
	var existingID string
	err := r.conn.QueryRowContext(ctx,
		`SELECT id FROM users WHERE github_id = ?`, user.GitHubID,
	).Scan(&existingID)

	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", user.GitHubID, err)
	}

	if existingID != "" {
		user.ID = existingID
		user.UpdatedAt = time.Now()
		_, err = r.conn.ExecContext(ctx,
			`UPDATE users SET username = ?, email = ?, avatar_url = ?, updated_at = ?
			 WHERE id = ?`,
			user.Username,
			user.Email,
			user.AvatarURL,
			user.UpdatedAt,
			user.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
		}
		return nil
	}

	now := time.Now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = r.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, username, github_id, avatar_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.Username,
		user.GitHubID,
		user.AvatarURL,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user (githubID=%d): %w", user.GitHubID, err)
	}

	return nil
}
