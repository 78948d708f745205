package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/firi193/lucid/internal/domain"
	"github.com/firi193/lucid/internal/repository"
	"github.com/firi193/lucid/pkg/config"
	"github.com/firi193/lucid/pkg/crypto"
	jwtpkg "github.com/firi193/lucid/pkg/jwt"
)

const (
	minPasswordLength = 6
	// users.email is VARCHAR(255); RFC 5321 caps a path at 254.
	maxEmailLength    = 254
	defaultSessionTTL = 30 * time.Minute
)

var (
	ErrDuplicateIdentity  = errors.New("auth: email already registered")
	ErrInvalidInput       = errors.New("auth: invalid email or password format")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidCredential  = errors.New("auth: invalid or expired session")
)

// Service handles registration, login and session verification.
type Service struct {
	users      repository.UserRepository
	logger     *slog.Logger
	secret     string
	sessionTTL time.Duration
	now        func() time.Time
	compare    func(hash []byte, plain string) error
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Service{
		users:      users,
		logger:     logger.With("component", "auth"),
		secret:     cfg.JWTSecret,
		sessionTTL: ttl,
		now:        time.Now,
		compare:    crypto.ComparePassword,
	}
}

// Session is a signed, time-bounded credential returned by Login.
type Session struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	ExpiresIn time.Duration `json:"expires_in"`
}

// Register creates a new account.
func (s Service) Register(ctx context.Context, email, password string) (*domain.User, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength || len(password) > crypto.MaxPasswordBytes {
		return nil, ErrInvalidInput
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        normalized,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrDuplicateIdentity
		}
		return nil, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login verifies the password and issues a session token.
func (s Service) Login(ctx context.Context, email, password string) (*domain.User, Session, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, Session{}, ErrInvalidCredentials
	}
	user, err := s.users.GetUserByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// keep unknown emails as slow as wrong passwords
			_ = s.compare(crypto.PlaceholderHash(), password)
			return nil, Session{}, ErrInvalidCredentials
		}
		return nil, Session{}, err
	}
	if err := s.compare(user.PasswordHash, password); err != nil {
		s.logger.Warn("password mismatch", "user_id", user.ID)
		return nil, Session{}, ErrInvalidCredentials
	}
	token, expiresAt, err := jwtpkg.GenerateToken(user.ID, s.secret, s.sessionTTL, s.now())
	if err != nil {
		return nil, Session{}, fmt.Errorf("issue session: %w", err)
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, Session{Token: token, ExpiresAt: expiresAt, ExpiresIn: s.sessionTTL}, nil
}

// Authenticate verifies a session token and returns the user id it was issued to.
// It does not consult the user store.
func (s Service) Authenticate(_ context.Context, token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", ErrInvalidCredential
	}
	claims, err := jwtpkg.Parse(trimmed, s.secret, s.now)
	if err != nil {
		s.logger.Debug("session rejected", "error", err)
		return "", ErrInvalidCredential
	}
	return claims.UserID, nil
}

func normalizeEmail(raw string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" || len(trimmed) > maxEmailLength {
		return "", ErrInvalidInput
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", ErrInvalidInput
	}
	return trimmed, nil
}
