package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/weiawesome/fin-dashboard/internal/domain"
	"github.com/weiawesome/fin-dashboard/pkg/jwt"
	"github.com/weiawesome/fin-dashboard/pkg/log"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameExists     = errors.New("username already exists")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrUsernameRequired   = errors.New("username is required")
)

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      domain.User `json:"user"`
}

// AuthService registers users and issues access tokens.
type AuthService struct {
	repo   Repository
	tokens *jwt.Manager
}

func NewAuthService(repo Repository, tokens *jwt.Manager) *AuthService {
	return &AuthService{repo: repo, tokens: tokens}
}

// Register creates a user with the USER role.
func (s *AuthService) Register(ctx context.Context, username, password, email string) (*domain.User, error) {
	l := log.Ctx(ctx)

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if len(password) < 6 {
		return nil, ErrWeakPassword
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		l.Error().Err(err).Msg("failed to hash password")
		return nil, err
	}

	m := &UserModel{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		Roles:        []string{domain.RoleUser},
	}
	if err := s.repo.CreateUser(ctx, m); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, ErrUsernameExists
		}
		l.Error().Err(err).Msg("failed to create user")
		return nil, err
	}

	audit(ctx, ActionRegister, m.ID, "", "user registered")
	u := m.ToDomain()
	return &u, nil
}

// Login verifies the password and issues a token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	l := log.Ctx(ctx)

	m, err := s.repo.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			audit(ctx, ActionLoginFailed, "", "", "login failed: user not found")
			return nil, ErrInvalidCredentials
		}
		l.Error().Err(err).Msg("failed to get user by username")
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)); err != nil {
		audit(ctx, ActionLoginFailed, m.ID, "", "login failed: wrong password")
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Generate(m.ID, m.Username, []string(m.Roles))
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	audit(ctx, ActionLogin, m.ID, "", "user logged in")
	return &LoginResult{Token: token, ExpiresAt: exp, User: m.ToDomain()}, nil
}

// Me returns the profile of userID.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	m, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	u := m.ToDomain()
	return &u, nil
}

// Validate checks an access token.
func (s *AuthService) Validate(token string) (*jwt.Claims, error) {
	return s.tokens.Validate(token)
}
