package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/webexam/internal/config"
	"github.com/stemsi/webexam/internal/model"
	"github.com/stemsi/webexam/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	UserID int            `json:"user_id"`
	Email  string         `json:"email"`
	Role   model.UserRole `json:"role"`
}

// Actor returns the caller identity carried by the token.
func (c *Claims) Actor() Actor {
	return Actor{UserID: c.UserID, Role: c.Role}
}

// AuthService handles accounts, password hashing and JWT issuance.
type AuthService struct {
	cfg   *config.Config
	users UserStore
	log   zerolog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, users UserStore, log zerolog.Logger) *AuthService {
	return &AuthService{
		cfg:   cfg,
		users: users,
		log:   log.With().Str("component", "auth_service").Logger(),
	}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Register creates an active account and signs a token for it.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (*model.AuthResponse, error) {
	hash, err := s.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Role:         model.UserRole(req.Role),
		IsActive:     true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info().Int("user_id", u.ID).Str("role", string(u.Role)).Msg("User registered")
	return s.issue(u)
}

// Login verifies credentials and signs a token.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (*model.AuthResponse, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if err := s.CheckPassword(u.PasswordHash, req.Password); err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrAccountDisabled
	}
	return s.issue(u)
}

// Me returns the account of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID int) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ChangePassword replaces the user's password after verifying the current one.
// A wrong current password yields ErrInvalidCredentials.
func (s *AuthService) ChangePassword(ctx context.Context, userID int, req model.ChangePasswordRequest) error {
	u, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.CheckPassword(u.PasswordHash, req.CurrentPassword); err != nil {
		return err
	}

	hash, err := s.HashPassword(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update password: %w", err)
	}

	s.log.Info().Int("user_id", userID).Msg("Password changed")
	return nil
}

// ─── User administration ───────────────────────────────────────────────────

// ListUsers returns every account.
func (s *AuthService) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if users == nil {
		users = []model.User{}
	}
	return users, nil
}

// GetUser returns one account.
func (s *AuthService) GetUser(ctx context.Context, id int) (*model.User, error) {
	return s.Me(ctx, id)
}

// SetUserActive enables or disables an account. Disabled accounts cannot log
// in; tokens already issued stay valid until they expire. Admins cannot
// disable themselves.
func (s *AuthService) SetUserActive(ctx context.Context, actor Actor, id int, active bool) (*model.User, error) {
	if !active && actor.UserID == id {
		return nil, ErrCannotDeactivateSelf
	}
	if err := s.users.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("set user active: %w", err)
	}

	s.log.Info().
		Int("user_id", id).
		Bool("active", active).
		Int("changed_by", actor.UserID).
		Msg("User activation changed")
	return s.Me(ctx, id)
}

// GenerateToken signs a token for u valid for JWT_EXPIRY.
func (s *AuthService) GenerateToken(u *model.User) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(s.cfg.JWTExpiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   strconv.Itoa(u.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// ValidateToken parses and validates a JWT, returning the claims. Expired
// tokens yield an error matching jwt.ErrTokenExpired.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

func (s *AuthService) issue(u *model.User) (*model.AuthResponse, error) {
	token, expires, err := s.GenerateToken(u)
	if err != nil {
		return nil, err
	}
	return &model.AuthResponse{Token: token, ExpiresAt: expires, User: u}, nil
}
