package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/stockroom-backend/pkg/config"
	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
	"github.com/angelmondragon/stockroom-backend/pkg/security"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const minPasswordLength = 8

var fieldCheck = validator.New()

// Service manages staff accounts.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*UserDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*UserDTO, error)
	EnsureAdmin(ctx context.Context, cfg config.BootstrapConfig) error
}

// RegisterInput is the payload for creating a staff account.
type RegisterInput struct {
	Email    string         `json:"email" validate:"required,email"`
	Password string         `json:"password" validate:"required,min=8"`
	Name     string         `json:"name" validate:"required"`
	Role     enums.UserRole `json:"role" validate:"required"`
}

type service struct {
	store       Store
	passwordCfg config.PasswordConfig
	logg        *logger.Logger
}

func NewService(store Store, passwordCfg config.PasswordConfig, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("user store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{store: store, passwordCfg: passwordCfg, logg: logg}, nil
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*UserDTO, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if err := fieldCheck.Var(email, "required,email"); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if len(input.Password) < minPasswordLength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "password must be at least %d characters", minPasswordLength)
	}
	role, err := enums.ParseUserRole(input.Role.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role")
	}

	hash, err := security.HashPassword(input.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         role,
		IsActive:     true,
	}
	if err := s.store.Create(ctx, user); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"new_user_id": user.ID.String(), "role": role.String()})
	s.logg.Info(logCtx, "user registered")
	return FromModel(user), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*UserDTO, error) {
	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}

// EnsureAdmin creates the bootstrap admin when no admin account exists yet.
func (s *service) EnsureAdmin(ctx context.Context, cfg config.BootstrapConfig) error {
	if !cfg.Enabled() {
		return nil
	}
	n, err := s.store.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = s.Register(ctx, RegisterInput{
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		Name:     cfg.AdminName,
		Role:     enums.UserRoleAdmin,
	})
	if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		return nil
	}
	return err
}
