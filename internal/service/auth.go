// Package service contains the business logic layer: the credential service
// (accounts and sessions) and the library service (tracked anime and stats).
//
// Services accept primitives and return domain models and apperror values.
// They know nothing about HTTP — handlers translate both directions.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jsedeno/anitrack/internal/apperror"
	"github.com/jsedeno/anitrack/internal/auth"
	"github.com/jsedeno/anitrack/internal/model"
	"github.com/jsedeno/anitrack/internal/repository"
	"github.com/jsedeno/anitrack/internal/secrets"
)

// Session marker location in the secret store. The value is the raw user ID.
const (
	sessionService = "anitrack"
	sessionAccount = "current_user"
)

// Validation constants for registration input.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
	MinPasswordLength = 6
	MaxBioLength      = 500
)

// AuthService owns user identity: registration, login, the persisted
// "current session" marker, and profile updates.
//
// The session marker lives in the secret store, independent of process
// lifetime — a restart does not log the user out. Durable user state lives
// in the repository; the two are kept consistent by compensating on partial
// failure (see Register).
type AuthService struct {
	users     repository.UserRepository
	secrets   secrets.Store
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	avatarDir string
	logger    *slog.Logger
}

// NewAuthService wires the credential service. avatarDir is where profile
// images are written (one file per user, addressed by user ID).
func NewAuthService(
	users repository.UserRepository,
	secretStore secrets.Store,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	avatarDir string,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		secrets:   secretStore,
		passwords: passwords,
		tokens:    tokens,
		avatarDir: avatarDir,
		logger:    logger,
	}
}

// Register creates a new account and opens a session for it.
//
// The user row and its zeroed stats row are created in one repository
// transaction; the session marker is then written to the secret store. If
// the marker write fails, the freshly created account is deleted again so
// no half-registered state survives: either the account exists with a
// session, or nothing exists at all.
//
// Email matching is exact and case-sensitive.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if len(username) < MinUsernameLength {
		return nil, apperror.ValidationFailed("username",
			fmt.Sprintf("username must be at least %d characters", MinUsernameLength))
	}
	if len(username) > MaxUsernameLength {
		return nil, apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d characters or less", MaxUsernameLength))
	}
	if !strings.Contains(email, "@") {
		return nil, apperror.ValidationFailed("email", "email address is not valid")
	}
	if len(password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user %s: %w", email, err)
	}

	if err := s.setSession(user.ID); err != nil {
		// Compensate: the account was created but the session marker could
		// not be written. Remove the account again so registration is
		// all-or-nothing from the caller's point of view.
		if delErr := s.users.DeleteUser(ctx, user.ID); delErr != nil {
			s.logger.Error("failed to roll back user after session write failure",
				slog.String("userID", user.ID),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("service/auth: writing session for new user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Login authenticates by email and password and overwrites the session
// marker. Unknown email and wrong password both come back as
// ErrInvalidCredentials, and a failed login never alters session state.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.TrimSpace(email)

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, apperror.InvalidCredentials()
	}

	if err := s.setSession(user.ID); err != nil {
		return nil, fmt.Errorf("service/auth: writing session: %w", err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return user, nil
}

// CurrentUser resolves the persisted session marker to a user.
//
// No marker is not an error — it just means nobody is logged in, so the
// secret store's not-found is swallowed here (the one documented place where
// that happens). A marker pointing at a deleted user is treated the same
// way, and the dangling marker is cleared as a side effect.
func (s *AuthService) CurrentUser(ctx context.Context) (*model.User, error) {
	raw, err := s.secrets.Get(sessionService, sessionAccount)
	if err != nil {
		if errors.Is(err, secrets.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("service/auth: reading session marker: %w", err)
	}

	user, err := s.users.GetUserByID(ctx, string(raw))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// Stale marker: the referenced account no longer exists.
			if delErr := s.secrets.Delete(sessionService, sessionAccount); delErr != nil {
				s.logger.Warn("failed to clear dangling session marker",
					slog.String("error", delErr.Error()))
			}
			return nil, nil
		}
		return nil, fmt.Errorf("service/auth: resolving session user: %w", err)
	}

	return user, nil
}

// Logout clears the session marker. Logging out twice is fine — the secret
// store's delete is idempotent.
func (s *AuthService) Logout(ctx context.Context) error {
	if err := s.secrets.Delete(sessionService, sessionAccount); err != nil {
		return fmt.Errorf("service/auth: deleting session marker: %w", err)
	}
	s.logger.Info("user logged out")
	return nil
}

// UpdateProfile mutates the given user's username, bio, and optionally their
// avatar image. userID is the authenticated caller's identity — never the
// session marker, which only reflects whoever logged in last on this machine.
//
// Avatar bytes are written to {avatarDir}/{userID}.jpg and the path stored
// on the user, so re-uploading replaces the previous image in place.
func (s *AuthService) UpdateProfile(ctx context.Context, userID, username, bio string, avatar []byte) (*model.User, error) {
	if userID == "" {
		return nil, apperror.NotAuthenticated()
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	username = strings.TrimSpace(username)
	if username != "" {
		if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
			return nil, apperror.ValidationFailed("username",
				fmt.Sprintf("username must be between %d and %d characters", MinUsernameLength, MaxUsernameLength))
		}
		user.Username = username
	}
	if len(bio) > MaxBioLength {
		return nil, apperror.ValidationFailed("bio",
			fmt.Sprintf("bio must be %d characters or less", MaxBioLength))
	}
	user.Bio = bio

	if len(avatar) > 0 {
		path, err := s.writeAvatar(user.ID, avatar)
		if err != nil {
			return nil, err
		}
		user.AvatarPath = path
	}

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: updating profile for %s: %w", user.ID, err)
	}

	s.logger.Info("profile updated", slog.String("userID", user.ID))
	return user, nil
}

// DeleteAccount removes the given user and everything they own (library
// entries, stats) in one repository transaction. The session marker is
// cleared only when it points at the deleted account — deleting your own
// account must not log out a different user who holds the marker.
func (s *AuthService) DeleteAccount(ctx context.Context, userID string) error {
	if userID == "" {
		return apperror.NotAuthenticated()
	}

	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("service/auth: deleting account %s: %w", userID, err)
	}

	raw, err := s.secrets.Get(sessionService, sessionAccount)
	switch {
	case err == nil && string(raw) == userID:
		if err := s.secrets.Delete(sessionService, sessionAccount); err != nil {
			return fmt.Errorf("service/auth: clearing session after account delete: %w", err)
		}
	case err != nil && !errors.Is(err, secrets.ErrNotFound):
		return fmt.Errorf("service/auth: reading session marker after account delete: %w", err)
	}

	s.logger.Info("account deleted", slog.String("userID", userID))
	return nil
}

// Token issues a JWT access token for the given user, for the HTTP surface.
func (s *AuthService) Token(userID string) (string, error) {
	token, err := s.tokens.Generate(userID)
	if err != nil {
		return "", fmt.Errorf("service/auth: generating token for %s: %w", userID, err)
	}
	return token, nil
}

// ValidateToken is a thin delegation so callers only import the service.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

// GetUser returns the user for an internal ID (used by /api/auth/me after
// the middleware validates the JWT).
func (s *AuthService) GetUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// setSession writes the marker with overwrite semantics: save, and on a
// duplicate fall through to update.
func (s *AuthService) setSession(userID string) error {
	err := s.secrets.Save(sessionService, sessionAccount, []byte(userID))
	if errors.Is(err, secrets.ErrDuplicateEntry) {
		err = s.secrets.Update(sessionService, sessionAccount, []byte(userID))
	}
	return err
}

func (s *AuthService) writeAvatar(userID string, data []byte) (string, error) {
	if err := os.MkdirAll(s.avatarDir, 0755); err != nil {
		return "", fmt.Errorf("service/auth: creating avatar directory: %w", err)
	}
	path := filepath.Join(s.avatarDir, userID+".jpg")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("service/auth: writing avatar: %w", err)
	}
	return path, nil
}
