package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]{1,150}$`)

// errBadCredentials is deliberately identical for unknown users, wrong
// passwords and inactive accounts.
var errBadCredentials = apperr.Invalid("non_field_errors", "Unable to log in with provided credentials.")

type Service struct {
	repo   UserRepository
	tokens auth.TokenStore
	logger zerolog.Logger
}

func NewService(repo UserRepository, tokens auth.TokenStore, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, logger: logger}
}

func notFound(err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return apperr.NotFound("user")
	}
	return err
}

func validateProfile(fe *apperr.FieldErrors, email, phone string) {
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			fe.Add("email", "enter a valid email address")
		}
	}
	fe.Check(len(phone) <= 15, "phone", "must be at most 15 characters")
}

func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	var fe apperr.FieldErrors
	req.Username = strings.TrimSpace(req.Username)
	fe.Check(usernamePattern.MatchString(req.Username), "username", "required; letters, digits and @/./+/-/_ only")
	fe.Check(len(req.Password) >= MinPasswordLength, "password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	if req.Role == "" {
		req.Role = string(auth.RoleReceptionist)
	}
	role, ok := auth.ParseRole(req.Role)
	fe.Check(ok, "role", "must be one of admin, doctor, receptionist")
	validateProfile(&fe, req.Email, req.Phone)
	if err := fe.Err(); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
		return nil, apperr.Invalid("username", "A user with that username already exists.")
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u := &User{
		Username:     req.Username,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Email:        strings.TrimSpace(req.Email),
		Role:         role,
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("username", u.Username).Str("role", string(u.Role)).Msg("user created")
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, role string, limit, offset int) ([]*User, int, error) {
	if role != "" {
		if _, ok := auth.ParseRole(role); !ok {
			return nil, 0, apperr.Invalid("role", "must be one of admin, doctor, receptionist")
		}
	}
	return s.repo.List(ctx, role, limit, offset)
}

func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	var fe apperr.FieldErrors
	if req.FirstName != nil {
		u.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		u.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Email != nil {
		u.Email = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		u.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Role != nil {
		role, ok := auth.ParseRole(*req.Role)
		fe.Check(ok, "role", "must be one of admin, doctor, receptionist")
		u.Role = role
	}
	validateProfile(&fe, u.Email, u.Phone)
	if err := fe.Err(); err != nil {
		return nil, err
	}

	wasActive := u.IsActive
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, notFound(err)
	}
	if wasActive && !u.IsActive {
		s.revokeAll(ctx, u)
	}
	return u, nil
}

// ToggleActive flips is_active. Deactivation revokes every API token of the user.
func (s *Service) ToggleActive(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	u.IsActive = !u.IsActive
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, notFound(err)
	}
	if !u.IsActive {
		s.revokeAll(ctx, u)
	}
	s.logger.Info().Str("username", u.Username).Bool("is_active", u.IsActive).Msg("user toggled")
	return u, nil
}

func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFound(err)
	}
	s.revokeAll(ctx, u)
	return nil
}

func (s *Service) revokeAll(ctx context.Context, u *User) {
	n, err := s.tokens.RevokeAllForUser(ctx, u.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("username", u.Username).Msg("revoke tokens")
		return
	}
	if n > 0 {
		s.logger.Info().Str("username", u.Username).Int("tokens", n).Msg("tokens revoked")
	}
}

// Authenticate verifies credentials. Inactive users are refused.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, errBadCredentials
		}
		return nil, err
	}
	if !u.IsActive || !CheckPassword(u.PasswordHash, password) {
		return nil, errBadCredentials
	}
	return u, nil
}

// IssueToken authenticates and returns a fresh API token.
func (s *Service) IssueToken(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	var fe apperr.FieldErrors
	fe.Check(req.Username != "", "username", "This field is required.")
	fe.Check(req.Password != "", "password", "This field is required.")
	if err := fe.Err(); err != nil {
		return nil, err
	}

	u, err := s.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}
	tok, exp, err := s.tokens.Issue(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{Token: tok, ExpiresAt: exp, User: u}, nil
}

func (s *Service) RevokeToken(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}

// ChangePassword requires the current password.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, req ChangePasswordRequest) error {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if !CheckPassword(u.PasswordHash, req.CurrentPassword) {
		return apperr.Invalid("current_password", "Your old password was entered incorrectly.")
	}
	if len(req.NewPassword) < MinPasswordLength {
		return apperr.Invalid("new_password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	if req.NewPassword == req.CurrentPassword {
		return apperr.Invalid("new_password", "must differ from the current password")
	}
	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.repo.SetPassword(ctx, id, hash); err != nil {
		return notFound(err)
	}
	s.logger.Info().Str("username", u.Username).Msg("password changed")
	return nil
}

// LoadPrincipal satisfies auth.PrincipalLoader.
func (s *Service) LoadPrincipal(ctx context.Context, id uuid.UUID) (*auth.Principal, error) {
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, auth.ErrUnknownPrincipal
	}
	if err != nil {
		return nil, err
	}
	return u.Principal(), nil
}
