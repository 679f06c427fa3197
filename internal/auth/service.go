package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/swanstudios/studiochat-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when email/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when registering with an existing email.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidEmail is returned when the email doesn't meet constraints.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPassword is returned when the password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Gate error codes, surfaced to the client on handshake rejection.
const (
	CodeMissingToken    = "missing_token"
	CodeInvalidToken    = "invalid_token"
	CodeAccountNotFound = "account_not_found"
)

// GateError is a typed handshake rejection reason.
type GateError struct {
	Code string
	Err  error
}

func (e *GateError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code
}

func (e *GateError) Unwrap() error { return e.Err }

// Identity is a resolved, authenticated user as seen by the realtime core.
// Read-only; attached to a connection for its whole lifetime.
type Identity struct {
	UserID      int64
	Role        string
	DisplayName string
	Photo       string
}

// Service provides authentication operations: the connection-time gate
// plus token issuance for the platform's login endpoints.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Authenticate validates a bearer credential presented at connection time
// and resolves it to an active account. Any failure yields a typed
// rejection; no state is created for a connection that fails here.
func (s *Service) Authenticate(ctx context.Context, token string) (*Identity, *GateError) {
	if strings.TrimSpace(token) == "" {
		return nil, &GateError{Code: CodeMissingToken}
	}

	claims, err := ValidateToken(s.jwtConfig, token)
	if err != nil {
		return nil, &GateError{Code: CodeInvalidToken, Err: err}
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil || !user.IsActive {
		return nil, &GateError{Code: CodeAccountNotFound, Err: err}
	}

	return &Identity{
		UserID:      user.ID,
		Role:        string(user.Role),
		DisplayName: user.DisplayName(),
		Photo:       user.Photo,
	}, nil
}

// Register creates a new account with a hashed password and returns a JWT token.
func (s *Service) Register(ctx context.Context, email, password, firstName, lastName string, role store.Role) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if len(email) < 3 || !strings.Contains(email, "@") {
		return "", ErrInvalidEmail
	}
	if len(password) < 6 {
		return "", ErrInvalidPassword
	}

	existing, err := s.store.GetUserByEmail(ctx, email)
	if err == nil && existing != nil {
		return "", ErrUserExists
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, email, hashedPassword, firstName, lastName, role)
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, string(user.Role))
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// Login validates credentials and returns a JWT token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		return "", ErrInvalidCredentials
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return "", ErrInvalidCredentials
	}

	if !user.IsActive {
		return "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, string(user.Role))
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
