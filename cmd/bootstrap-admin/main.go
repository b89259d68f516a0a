// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command bootstrap-admin creates the first administrator from ADMIN_EMAIL
// and ADMIN_PASSWORD. It is idempotent: an existing administrator with the
// same email is left untouched.
//
// The account is created with the must-change-password flag set, so the
// bootstrap password only works until the first password change.
//
// Usage:
//
//	ADMIN_EMAIL=ops@example.com ADMIN_PASSWORD=... bootstrap-admin -given-name Ops -family-name Team
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/taibuivan/campus/internal/auth"
	"github.com/taibuivan/campus/internal/platform/config"
	"github.com/taibuivan/campus/internal/platform/dberr"
	"github.com/taibuivan/campus/internal/platform/migration"
	pgstore "github.com/taibuivan/campus/internal/platform/postgres"
	"github.com/taibuivan/campus/internal/platform/sec"
	"github.com/taibuivan/campus/internal/platform/validate"
	"github.com/taibuivan/campus/pkg/normalize"
)

func main() {
	givenName := flag.String("given-name", "Platform", "administrator given name")
	familyName := flag.String("family-name", "Administrator", "administrator family name")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(slog.String("app", "campus-bootstrap"))

	if err := run(log, *givenName, *familyName); err != nil {
		log.Error("bootstrap_failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(log *slog.Logger, givenName, familyName string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	validator := &validate.Validator{}
	validator.Required("ADMIN_EMAIL", cfg.AdminEmail).
		Email("ADMIN_EMAIL", cfg.AdminEmail).
		Required("ADMIN_PASSWORD", cfg.AdminPassword).
		Password("ADMIN_PASSWORD", cfg.AdminPassword)
	if err := validator.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL, cfg.StoreTimeout, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log); err != nil {
		return err
	}

	principals := auth.NewPostgresPrincipalRepository(pool)

	existing, err := principals.FindByEmail(ctx, sec.RoleAdministrator, normalize.Email(cfg.AdminEmail))
	if err == nil {
		log.Info("administrator_exists", slog.String("principal_id", existing.ID))
		return nil
	}
	if !errors.Is(err, dberr.ErrNotFound) {
		return err
	}

	hasher, err := sec.NewPasswordHasher(cfg.BcryptCost)
	if err != nil {
		return err
	}

	// Provisioning never touches tokens, revocation or MFA.
	service := auth.NewService(principals, hasher, nil, nil, nil, auth.LogPublisher{}, auth.WithStoreTimeout(cfg.StoreTimeout))

	result, err := service.Provision(ctx, auth.ProvisionInput{
		Role:       sec.RoleAdministrator,
		Email:      cfg.AdminEmail,
		GivenName:  givenName,
		FamilyName: familyName,
		Password:   cfg.AdminPassword,
	})
	if err != nil {
		return err
	}

	log.Info("administrator_created", slog.String("principal_id", result.Profile.ID))
	return nil
}
