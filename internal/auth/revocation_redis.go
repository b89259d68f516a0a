// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/taibuivan/campus/internal/platform/constants"
)

// RedisRevocationStore implements [RevocationStore] on a shared Redis, so a
// revocation written by one instance is seen by every instance reading the
// same primary.
//
// Keys:
//   - auth:revoked:token:<sha256>      TTL = remaining token lifetime
//   - auth:revoked:principal:<id>      TTL = session lifetime
type RedisRevocationStore struct {
	client *redis.Client
}

// NewRedisRevocationStore creates a new Redis-backed RevocationStore.
func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

// revocationValue is the JSON stored under each key. Times are unix seconds.
type revocationValue struct {
	Reason    string `json:"reason"`
	RevokedAt int64  `json:"revoked_at"`
}

/*
RevokeToken stores the record with SET NX, so the first revocation of a
token wins and later ones leave it untouched.

Parameters:
  - context: context.Context
  - record: RevocationRecord
  - ttl: time.Duration

Returns:
  - bool: true if the key was created by this call
  - error: Redis failures
*/
func (repository *RedisRevocationStore) RevokeToken(context context.Context, record RevocationRecord, ttl time.Duration) (bool, error) {
	payload, err := encodeRevocation(record)
	if err != nil {
		return false, err
	}

	created, err := repository.client.SetNX(context, constants.RedisPrefixRevokedToken+record.TokenID, payload, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis_revoke_token_failed: %w", err)
	}
	return created, nil
}

/*
IsTokenRevoked checks for the token's key.

Parameters:
  - context: context.Context
  - tokenID: string

Returns:
  - bool: true if the key exists
  - error: Redis failures
*/
func (repository *RedisRevocationStore) IsTokenRevoked(context context.Context, tokenID string) (bool, error) {
	count, err := repository.client.Exists(context, constants.RedisPrefixRevokedToken+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("redis_is_token_revoked_failed: %w", err)
	}
	return count > 0, nil
}

/*
RevokePrincipal writes the principal's revoked-since record, replacing any
earlier one.

Parameters:
  - context: context.Context
  - record: RevocationRecord
  - ttl: time.Duration

Returns:
  - error: Redis failures
*/
func (repository *RedisRevocationStore) RevokePrincipal(context context.Context, record RevocationRecord, ttl time.Duration) error {
	payload, err := encodeRevocation(record)
	if err != nil {
		return err
	}

	if err := repository.client.Set(context, constants.RedisPrefixRevokedPrincipal+record.PrincipalID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis_revoke_principal_failed: %w", err)
	}
	return nil
}

/*
PrincipalRevokedSince reads the principal's revoked-since time.

Parameters:
  - context: context.Context
  - principalID: string

Returns:
  - time.Time: Revoked-since, second precision
  - bool: false when no record exists
  - error: Redis failures or a corrupt record
*/
func (repository *RedisRevocationStore) PrincipalRevokedSince(context context.Context, principalID string) (time.Time, bool, error) {
	payload, err := repository.client.Get(context, constants.RedisPrefixRevokedPrincipal+principalID).Bytes()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis_principal_revoked_since_failed: %w", err)
	}

	var value revocationValue
	if err := json.Unmarshal(payload, &value); err != nil {
		return time.Time{}, false, fmt.Errorf("redis_revocation_decode_failed: %w", err)
	}

	return time.Unix(value.RevokedAt, 0), true, nil
}

func encodeRevocation(record RevocationRecord) ([]byte, error) {
	payload, err := json.Marshal(revocationValue{Reason: record.Reason, RevokedAt: record.RevokedAt.Unix()})
	if err != nil {
		return nil, fmt.Errorf("redis_revocation_encode_failed: %w", err)
	}
	return payload, nil
}
