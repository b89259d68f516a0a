// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/taibuivan/campus/internal/platform/ctxutil"
	"github.com/taibuivan/campus/internal/platform/sec"
)

// # Audit Events

// Event types emitted by the auth services.
const (
	EventRegistered         = "auth.registered"
	EventProvisioned        = "auth.provisioned"
	EventLoginSucceeded     = "auth.login_succeeded"
	EventLoginFailed        = "auth.login_failed"
	EventMfaChallengeIssued = "auth.mfa_challenge_issued"
	EventMfaLoginSucceeded  = "auth.mfa_login_succeeded"
	EventMfaLoginFailed     = "auth.mfa_login_failed"
	EventBackupCodeUsed     = "auth.backup_code_used"
	EventPasswordChanged    = "auth.password_changed"
	EventLoggedOut          = "auth.logged_out"
	EventMfaEnabled         = "auth.mfa_enabled"
	EventMfaDisabled        = "auth.mfa_disabled"
)

// Event is a security-relevant fact about a principal. It never carries a
// password, hash, token or MFA secret.
type Event struct {
	Type        string         `json:"type"`
	PrincipalID string         `json:"principal_id,omitempty"`
	Role        sec.Role       `json:"role,omitempty"`
	At          time.Time      `json:"at"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// EventPublisher receives auth events. Publishing is best effort: a failing
// sink is logged and never fails the operation that emitted the event.
type EventPublisher interface {
	Publish(context context.Context, event Event)
}

// LogPublisher writes events to the request logger.
type LogPublisher struct{}

// Publish implements EventPublisher.
func (LogPublisher) Publish(context context.Context, event Event) {
	attributes := []any{
		slog.String("event", event.Type),
		slog.String("principal_id", event.PrincipalID),
		slog.String("role", string(event.Role)),
	}
	for key, value := range event.Attributes {
		attributes = append(attributes, slog.Any(key, value))
	}

	level := slog.LevelInfo
	if event.Type == EventLoginFailed || event.Type == EventMfaLoginFailed {
		level = slog.LevelWarn
	}

	ctxutil.GetLogger(context).Log(context, level, "auth_event", attributes...)
}

// RedisPublisher publishes events as JSON on a Redis pub/sub channel for
// downstream consumers such as an audit trail or notification worker.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher creates a publisher on the given channel.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Publish implements EventPublisher.
func (publisher *RedisPublisher) Publish(context context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		ctxutil.GetLogger(context).Error("auth_event_encode_failed", slog.String("event", event.Type), slog.Any("error", err))
		return
	}

	if err := publisher.client.Publish(context, publisher.channel, payload).Err(); err != nil {
		ctxutil.GetLogger(context).Warn("auth_event_publish_failed",
			slog.String("event", event.Type),
			slog.String("channel", publisher.channel),
			slog.Any("error", err),
		)
	}
}

// MultiPublisher fans an event out to every publisher in order.
type MultiPublisher []EventPublisher

// Publish implements EventPublisher.
func (publishers MultiPublisher) Publish(context context.Context, event Event) {
	for _, publisher := range publishers {
		publisher.Publish(context, event)
	}
}
