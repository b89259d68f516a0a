// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package dberr provides a bridge between low-level database errors and
// higher-level application errors.
//
// Repositories pass every pgx error through [Classify] so that services can
// branch on three outcomes without importing pgx: missing row, constraint
// conflict, and an unreachable or overloaded database.
package dberr

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a queried row doesn't exist.
	ErrNotFound = errors.New("dberr: not found")

	// ErrConflict is returned on unique-constraint violations.
	ErrConflict = errors.New("dberr: conflict")

	// ErrUnavailable covers timeouts, cancelled contexts and connection failures.
	ErrUnavailable = errors.New("dberr: unavailable")
)

// Classify inspects a database error and wraps it with one of the package
// sentinels. Errors it does not recognise are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	// 1. Not Found mapping
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// 2. Deadlines and dropped connections
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var connectError *pgconn.ConnectError
	if errors.As(err, &connectError) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	// 3. SQLSTATE based mapping
	var pgError *pgconn.PgError
	if errors.As(err, &pgError) {
		switch {
		case pgError.Code == pgerrcode.UniqueViolation:
			return fmt.Errorf("%w: %s: %w", ErrConflict, pgError.ConstraintName, err)
		case pgError.Code == pgerrcode.QueryCanceled,
			pgerrcode.IsConnectionException(pgError.Code),
			pgerrcode.IsInsufficientResources(pgError.Code),
			pgerrcode.IsOperatorIntervention(pgError.Code):
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}

	return err
}

// IsNotFound reports whether err was classified as a missing row.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err was classified as a constraint conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsUnavailable reports whether err was classified as a store outage.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }
