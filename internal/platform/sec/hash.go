// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultPasswordCost is the bcrypt work factor used in production.
const DefaultPasswordCost = 12

// dummyPassword seeds the hash compared against when a principal does not
// exist, so both failure paths pay the same bcrypt price.
const dummyPassword = "campus-timing-equalizer"

// PasswordHasher performs one-way credential hashing with bcrypt.
//
// It holds no mutable state and is safe for concurrent use.
type PasswordHasher struct {
	cost      int
	dummyHash []byte
}

// NewPasswordHasher builds a hasher with the given bcrypt cost.
func NewPasswordHasher(cost int) (*PasswordHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("sec: bcrypt cost %d out of range", cost)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), cost)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to prepare dummy hash: %w", err)
	}

	return &PasswordHasher{cost: cost, dummyHash: dummy}, nil
}

// Hash hashes a plain-text secret using the bcrypt algorithm.
func (hasher *PasswordHasher) Hash(plainText string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plainText), hasher.cost)
	if err != nil {
		return "", fmt.Errorf("sec: failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// Verify compares a plain-text secret with its hashed version.
// Malformed hashes never match.
func (hasher *PasswordHasher) Verify(plainText, existingHash string) bool {
	if existingHash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(existingHash), []byte(plainText))
	return err == nil
}

// VerifyDummy burns one bcrypt comparison and always reports false.
func (hasher *PasswordHasher) VerifyDummy(plainText string) bool {
	_ = bcrypt.CompareHashAndPassword(hasher.dummyHash, []byte(plainText))
	return false
}

// HashToken returns the hex SHA-256 of a raw token. Used as the revocation
// key so raw bearer tokens never land in the store or the logs.
func HashToken(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}
