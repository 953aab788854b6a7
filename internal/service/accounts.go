package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"eventhub/internal/credential"
	"eventhub/internal/model"
	"eventhub/internal/repo"
)

type AccountService struct {
	*base
	hasher *credential.Hasher
}

type ProvisionInput struct {
	Email    string `validate:"required,email"`
	Name     string `validate:"required,max=255"`
	Password string `validate:"required,min=8,max=512"`
	Role     string
}

// Provision creates an account. USER and ORGANIZER accounts are self-service;
// REVIEWER and ADMIN need an admin actor.
func (s *AccountService) Provision(ctx context.Context, actorID string, in ProvisionInput) (*model.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if err := validate(ctx, in); err != nil {
		return nil, err
	}

	role := model.RoleUser
	if in.Role != "" {
		r, err := model.ParseRole(in.Role)
		if err != nil {
			return nil, err
		}
		role = r
	}
	if role.CanReview() {
		if _, err := s.admin(ctx, actorID); err != nil {
			return nil, s.fail("provision account", err)
		}
	}

	u, err := s.create(ctx, in.Email, in.Name, in.Password, role)
	if err != nil {
		return nil, s.fail("provision account", err)
	}
	s.log.Info().Str("user_id", u.ID).Str("role", string(u.Role)).Msg("account provisioned")
	return u, nil
}

func (s *AccountService) create(ctx context.Context, email, name, password string, role model.Role) (*model.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		return tx.CreateUser(ctx, u)
	})
	if errors.Is(err, model.ErrConflict) {
		return nil, fmt.Errorf("e-mail already registered: %w", model.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	u, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.ErrInvalidCredentials
	}
	if err != nil {
		return nil, s.fail("authenticate", err)
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		return nil, model.ErrInvalidCredentials
	}
	return u, nil
}

// BootstrapAdmin creates the configured admin account once. It reports whether
// an account was created.
func (s *AccountService) BootstrapAdmin(ctx context.Context, email, password string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return false, nil
	}

	_, err := s.repo.GetUserByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return false, s.fail("bootstrap admin", err)
	}

	u, err := s.create(ctx, email, "Administrator", password, model.RoleAdmin)
	if errors.Is(err, model.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, s.fail("bootstrap admin", err)
	}
	s.log.Info().Str("user_id", u.ID).Msg("admin account bootstrapped")
	return true, nil
}
