// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package ctxutil provides helpers for interacting with values stored in [context.Context].
package ctxutil

import (
	"context"
	"log/slog"

	"github.com/taibuivan/campus/internal/platform/ctxkey"
	"github.com/taibuivan/campus/internal/platform/sec"
)

// # Request Tracing

// WithRequestID returns a new context with the provided request ID attached.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxkey.KeyRequestID, id)
}

// GetRequestID retrieves the request ID from the context.
// Returns an empty string if not found.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxkey.KeyRequestID).(string)
	return id
}

// # Structured Logging

// WithLogger returns a new context with the provided logger attached.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxkey.KeyLogger, logger)
}

// GetLogger retrieves the logger from the context.
// If no logger is found, it returns the global default logger.
func GetLogger(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(ctxkey.KeyLogger).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return logger
}

// # Identity & Access

// WithClaims returns a new context carrying the verified session claims.
func WithClaims(ctx context.Context, claims *sec.Claims) context.Context {
	return context.WithValue(ctx, ctxkey.KeyClaims, claims)
}

// GetClaims retrieves the [*sec.Claims] from the [context.Context].
func GetClaims(ctx context.Context) *sec.Claims {
	claims, ok := ctx.Value(ctxkey.KeyClaims).(*sec.Claims)
	if !ok {
		return nil
	}
	return claims
}

// WithAuthFailure records why the presented token was not accepted.
func WithAuthFailure(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, ctxkey.KeyAuthFailure, err)
}

// GetAuthFailure returns the error stored by [WithAuthFailure], or nil.
func GetAuthFailure(ctx context.Context) error {
	err, _ := ctx.Value(ctxkey.KeyAuthFailure).(error)
	return err
}
