package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/sakif/hydrate/internal/apperror"
	"github.com/sakif/hydrate/internal/auth"
	"github.com/sakif/hydrate/internal/model"
	"github.com/sakif/hydrate/internal/repository"
)

// ProfileInitializer creates the starting profile of a new account.
// *ProfileService implements it.
type ProfileInitializer interface {
	EnsureProfile(ctx context.Context, userID, email string, loc *time.Location) error
}

// AuthService is the identity provider adapter: email/password accounts,
// GitHub sign-in and the session tokens that follow either.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (store)
//	                               ↘ TokenService (JWT)
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	profiles  ProfileInitializer
	logger    *slog.Logger
}

// NewAuthService wires the service. profiles may be nil, in which case the
// profile is created lazily on first read.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	profiles ProfileInitializer,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		profiles:  profiles,
		logger:    logger,
	}
}

// AuthResult bundles the user and the issued session token so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// NormalizeEmail trims and lower-cases email and checks that it is a bare address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.ValidationFailed("email", "enter a valid email address")
	}
	return email, nil
}

// SignUp creates an email/password account.
//
// Errors: validation for a malformed email, apperror.ErrWeakPassword when the
// password fails the length policy, apperror.ErrEmailInUse for a taken email.
func (s *AuthService) SignUp(ctx context.Context, email, password string, loc *time.Location) (*AuthResult, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := auth.CheckPolicy(password); err != nil {
		return nil, apperror.WeakPassword()
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	login, _, _ := strings.Cut(email, "@")
	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		Login:        login,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.EmailInUse()
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.InfoContext(ctx, "user signed up", slog.String("userID", user.ID))
	s.initProfile(ctx, user, loc)
	return s.issue(user)
}

// SignIn checks an email/password pair. An unknown email and a wrong password
// both come back as apperror.ErrInvalidCredentials.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperror.InvalidCredentials()
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}
	if !user.HasPassword() {
		return nil, apperror.InvalidCredentials()
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.InfoContext(ctx, "sign-in rejected", slog.String("userID", user.ID))
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	s.logger.InfoContext(ctx, "user signed in", slog.String("userID", user.ID))
	return s.issue(user)
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback: upsert the account
// keyed by GitHub ID and issue a session token. It does not touch cookies or
// requests; that stays in the handler.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser, loc *time.Location) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user := &model.User{
		GitHubID: ghUser.ID,
		Login:    ghUser.Login,
		Email:    strings.ToLower(ghUser.Email),
	}

	// After Upsert, user.ID is populated by the repository.
	if err := s.users.Upsert(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.EmailInUse()
		}
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	s.logger.InfoContext(ctx, "user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", user.Login),
	)

	s.initProfile(ctx, user, loc)
	return s.issue(user)
}

// GetUserByID returns the account behind a session.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// ValidateToken returns the user ID a session token was issued for.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

// TokenTTL is the lifetime of issued tokens.
func (s *AuthService) TokenTTL() time.Duration {
	return s.tokens.TTL()
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// initProfile creates the profile up front. A failure is only logged: the
// read path creates a missing profile anyway.
func (s *AuthService) initProfile(ctx context.Context, user *model.User, loc *time.Location) {
	if s.profiles == nil {
		return
	}
	if err := s.profiles.EnsureProfile(ctx, user.ID, user.Email, loc); err != nil {
		s.logger.WarnContext(ctx, "initial profile not created",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	}
}
