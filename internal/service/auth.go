// Package service holds the business rules of the app.
//
// Services sit between the HTTP handlers and the repositories:
//
//	Handler (HTTP) → Service (rules, permissions) → repository.Store (DB)
//	                                              ↘ notification_outbox
//
// Services never see HTTP. Expected failures are returned as apperror values
// and the handler maps them to status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/circles/internal/apperror"
	"github.com/sakif/circles/internal/auth"
	"github.com/sakif/circles/internal/model"
	"github.com/sakif/circles/internal/repository"
	"github.com/sakif/circles/internal/validate"
)

type authStore interface {
	repository.UserRepository
	LinkGuestsByEmail(ctx context.Context, email string, userID int64) (int, error)
}

// AuthService handles sign-up, sign-in and session tokens.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      authStore                 → user rows + guest linking
//   - tokens     *auth.TokenService        → session JWTs
//   - passwords  *auth.PasswordService     → bcrypt hashing
//   - logger     *slog.Logger              → structured logging
type AuthService struct {
	users     authStore
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users authStore,
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

// AuthResult bundles the user and the issued JWT so the handler can set the
// cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

type RegisterInput struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	DisplayName string `json:"display_name" validate:"required,max=100"`
	Username    string `json:"username" validate:"required,min=3,max=30,alphanum"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
}

const msgBadCredentials = "Invalid email or password."

// Register creates an account and signs it in.
//
// Event guests invited to this address before the account existed are
// linked to it, so their invitations show up under "my events" at once.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.Username = strings.TrimSpace(in.Username)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}
	user := &model.User{
		Email:        in.Email,
		DisplayName:  in.DisplayName,
		Username:     in.Username,
		PasswordHash: hash,
		Status:       model.UserActive,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered",
		slog.Int64("userID", user.ID),
		slog.String("username", user.Username),
	)
	return s.startSession(ctx, user)
}

// Login checks the password and issues a session token. Unknown emails and
// wrong passwords produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("email", "Email and password are required.")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if isNotFound(err) {
		return nil, apperror.Unauthenticated(msgBadCredentials)
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			return nil, apperror.Unauthenticated(msgBadCredentials)
		}
		return nil, fmt.Errorf("service/auth: verifying password for user %d: %w", user.ID, err)
	}
	if user.Status != model.UserActive {
		return nil, apperror.Forbidden("This account has been suspended.")
	}

	s.logger.Info("user signed in", slog.Int64("userID", user.ID))
	return s.startSession(ctx, user)
}

// startSession links pending guests and issues the JWT.
func (s *AuthService) startSession(ctx context.Context, user *model.User) (*AuthResult, error) {
	linked, err := s.users.LinkGuestsByEmail(ctx, user.Email, user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: linking guests for user %d: %w", user.ID, err)
	}
	if linked > 0 {
		s.logger.Info("guest invitations linked to account",
			slog.Int64("userID", user.ID),
			slog.Int("count", linked),
		)
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %d: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// GetUserByID backs /api/me after the middleware has validated the JWT.
func (s *AuthService) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	if model.IsAnonymous(id) {
		return nil, apperror.Unauthenticated("Authentication required.")
	}
	return s.users.GetUserByID(ctx, id)
}
