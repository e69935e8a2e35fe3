package users

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/angelmondragon/stockroom-backend/pkg/config"
	"github.com/angelmondragon/stockroom-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/angelmondragon/stockroom-backend/pkg/logger"
	"github.com/angelmondragon/stockroom-backend/pkg/security"
	"github.com/google/uuid"
)

func newTestService(t *testing.T) (Service, *Repository) {
	t.Helper()
	repo := NewRepository(dbtest.OpenSQLite(t))
	svc, err := NewService(repo, config.PasswordConfig{}, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, repo
}

func TestRegisterHashesAndLowercases(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	dto, err := svc.Register(ctx, RegisterInput{Email: " Sam@Example.com ", Password: "long-enough", Name: "Sam", Role: enums.UserRoleStaff})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if dto.Email != "sam@example.com" || dto.Role != "staff" || !dto.IsActive {
		t.Fatalf("unexpected dto %+v", dto)
	}

	stored, err := repo.FindByEmail(ctx, "sam@example.com")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.PasswordHash == "long-enough" {
		t.Fatal("password stored in clear text")
	}
	ok, err := security.VerifyPassword("long-enough", stored.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("stored hash does not verify: ok=%v err=%v", ok, err)
	}

	got, err := svc.Get(ctx, dto.ID)
	if err != nil || got.ID != dto.ID {
		t.Fatalf("get: %v %+v", err, got)
	}
	if _, err := svc.Get(ctx, uuid.New()); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	input := RegisterInput{Email: "dup@example.com", Password: "long-enough", Name: "Dup", Role: enums.UserRoleStaff}

	if _, err := svc.Register(ctx, input); err != nil {
		t.Fatalf("register: %v", err)
	}
	input.Email = "DUP@example.com"
	_, err := svc.Register(ctx, input)
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) || !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected email conflict, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	cases := map[string]RegisterInput{
		"bad email":      {Email: "nope", Password: "long-enough", Name: "A", Role: enums.UserRoleStaff},
		"short password": {Email: "a@example.com", Password: "short", Name: "A", Role: enums.UserRoleStaff},
		"blank name":     {Email: "a@example.com", Password: "long-enough", Name: " ", Role: enums.UserRoleStaff},
		"bad role":       {Email: "a@example.com", Password: "long-enough", Name: "A", Role: "owner"},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), input); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestEnsureAdminSeedsOnce(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	cfg := config.BootstrapConfig{AdminEmail: "root@example.com", AdminPassword: "bootstrap-pass", AdminName: "Root"}

	if err := svc.EnsureAdmin(ctx, config.BootstrapConfig{}); err != nil {
		t.Fatalf("disabled bootstrap should be a no-op: %v", err)
	}
	if n, _ := repo.CountAdmins(ctx); n != 0 {
		t.Fatalf("expected no admins, got %d", n)
	}

	if err := svc.EnsureAdmin(ctx, cfg); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	cfg.AdminEmail = "other@example.com"
	if err := svc.EnsureAdmin(ctx, cfg); err != nil {
		t.Fatalf("second ensure admin: %v", err)
	}
	if n, _ := repo.CountAdmins(ctx); n != 1 {
		t.Fatalf("expected exactly one admin, got %d", n)
	}
}
