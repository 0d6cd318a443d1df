// Package service contains the business logic layer: validation, the voting
// and ownership policies, and orchestration between repositories. Services
// accept plain values and a context — never HTTP types — and return domain
// errors from the apperror package for the handlers to translate.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/polly-app/polly/internal/apperror"
	"github.com/polly-app/polly/internal/auth"
	"github.com/polly-app/polly/internal/model"
	"github.com/polly-app/polly/internal/repository"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

// AuthService handles registration, login, and the OAuth account upsert.
// Identity is always an explicit input or output here — nothing reads it from
// ambient global state.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user record with the issued session token so the
// handler can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates a password account and signs the new user in.
func (s *AuthService) Register(ctx context.Context, email, username, password string) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	username = strings.TrimSpace(username)

	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperror.ValidationFailed("email", "email address is not valid")
	}
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return nil, apperror.ValidationFailed("username",
			fmt.Sprintf("username must be between %d and %d characters", MinUsernameLength, MaxUsernameLength))
	}
	if len(password) < auth.MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
	}

	// The repository surfaces a duplicate email as apperror.ErrConflict.
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	return &AuthResult{User: user, Token: token}, nil
}

// Login verifies email/password credentials and issues a session token.
// Every failure mode — unknown email, OAuth-only account, wrong password —
// returns the same Unauthorized message so responses don't reveal which
// emails are registered.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperror.Unauthorized("invalid email or password")
	}

	if user.PasswordHash == "" {
		// GitHub-only account; there is no password to check.
		return nil, apperror.Unauthorized("invalid email or password")
	}

	ok, err := s.passwords.Verify(user.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}
	if !ok {
		return nil, apperror.Unauthorized("invalid email or password")
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))

	return &AuthResult{User: user, Token: token}, nil
}

// LoginOrRegisterGitHub completes the OAuth callback: upsert the account by
// GitHub ID (insert on first login, refresh profile on later ones) and issue
// a session token.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user := &model.User{
		GitHubID:  ghUser.ID,
		Username:  ghUser.Login,
		Email:     strings.ToLower(ghUser.Email),
		AvatarURL: ghUser.AvatarURL,
	}

	if err := s.users.UpsertGitHub(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	return &AuthResult{User: user, Token: token}, nil
}

// GetUserByID returns the user for the given internal ID. Used by /api/me
// after the middleware has validated the session token.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthorized("authentication required")
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}

	return user, nil
}
