package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/Skotchmaster/hospital_desk/internal/events"
	"github.com/Skotchmaster/hospital_desk/internal/hash"
	"github.com/Skotchmaster/hospital_desk/internal/logging"
	"github.com/Skotchmaster/hospital_desk/internal/models"
	"github.com/Skotchmaster/hospital_desk/internal/repo"
	"github.com/Skotchmaster/hospital_desk/internal/tokens"
)

const (
	MinUsernameLen = 3
	MinPasswordLen = 6
	AdminUsername  = "admin"
)

type AuthService struct {
	Repo   *repo.GormRepo
	Issuer *tokens.Issuer
	Events events.Publisher
	// RegistrationCode, when set, must accompany every registration.
	RegistrationCode string
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      models.User
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	if username == "" || password == "" {
		return nil, ErrMissingFields
	}

	user, err := s.Repo.FindUserByUsername(ctx, username)
	if errors.Is(err, repo.ErrNotFound) {
		hash.BurnCompare(password)
		l.Warn("login_failed", "status", 401, "reason", "invalid username or password")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "status", 401, "reason", "invalid username or password")
		return nil, ErrInvalidCredentials
	}

	token, claims, err := s.Issuer.Issue(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	l.Info("login_successful", "user_id", user.ID, "role", user.Role)
	events.Emit(ctx, s.Events, l, events.New(events.UserLoggedIn, user.ID, map[string]any{"role": user.Role}))

	return &LoginResult{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: *user}, nil
}

func (s *AuthService) Register(ctx context.Context, username, password, code string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	switch {
	case username == "" || password == "":
		return nil, ErrMissingFields
	case utf8.RuneCountInString(username) < MinUsernameLen:
		return nil, ErrUsernameTooShort
	case utf8.RuneCountInString(password) < MinPasswordLen:
		return nil, ErrPasswordTooShort
	case len(password) > hash.MaxPasswordBytes:
		return nil, ErrPasswordTooLong
	}

	if s.RegistrationCode != "" &&
		subtle.ConstantTimeCompare([]byte(code), []byte(s.RegistrationCode)) != 1 {
		l.Warn("register_error", "status", 403, "reason", "invalid registration code")
		return nil, ErrInvalidRegistrationCode
	}

	if _, err := s.Repo.FindUserByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("find user: %w", err)
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{Username: username, PasswordHash: pwHash, Role: models.RoleStaff}
	if err := s.Repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	l.Info("register_successful", "user_id", user.ID)
	events.Emit(ctx, s.Events, l, events.New(events.UserRegistered, user.ID, nil))
	return user, nil
}

// Logout revokes the caller's token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, id models.Identity) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	if err := s.Repo.RevokeToken(ctx, id.JTI, id.UserID, id.ExpiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	l.Info("successful_logout", "user_id", id.UserID)
	events.Emit(ctx, s.Events, l, events.New(events.UserLoggedOut, id.UserID, nil))
	return nil
}

func (s *AuthService) Me(ctx context.Context, id models.Identity) (*models.User, error) {
	user, err := s.Repo.GetUserByID(ctx, id.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	return user, err
}

// IsRevoked reports whether jti was logged out.
func (s *AuthService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return s.Repo.IsTokenRevoked(ctx, jti)
}

// SeedAdmin creates the admin account if it does not exist yet. An existing
// admin keeps its password.
func (s *AuthService) SeedAdmin(ctx context.Context, password string) (bool, error) {
	pwHash, err := hash.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}
	created, err := s.Repo.CreateUserIfNotExists(ctx, &models.User{
		Username:     AdminUsername,
		PasswordHash: pwHash,
		Role:         models.RoleAdmin,
	})
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	return created, nil
}

// PurgeRevoked drops denylist rows for tokens that have expired.
func (s *AuthService) PurgeRevoked(ctx context.Context) (int64, error) {
	return s.Repo.PurgeExpiredTokens(ctx, time.Now().UTC())
}
