// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taibuivan/campus/internal/platform/sec"
)

/*
TestPasswordHasher_HashAndVerify covers the basic password contract.
*/
func TestPasswordHasher_HashAndVerify(t *testing.T) {
	hasher, err := sec.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	hash, err := hasher.Hash("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)

	assert.True(t, hasher.Verify("s3cret-pass", hash))
	assert.False(t, hasher.Verify("wrong-pass", hash))
	assert.False(t, hasher.Verify("s3cret-pass", ""))
	assert.False(t, hasher.Verify("s3cret-pass", "not-a-bcrypt-hash"))
	assert.False(t, hasher.VerifyDummy("s3cret-pass"))
}

/*
TestNewPasswordHasher_CostRange rejects costs bcrypt cannot use.
*/
func TestNewPasswordHasher_CostRange(t *testing.T) {
	_, err := sec.NewPasswordHasher(bcrypt.MinCost - 1)
	assert.Error(t, err)

	_, err = sec.NewPasswordHasher(bcrypt.MaxCost + 1)
	assert.Error(t, err)
}

func TestHashToken(t *testing.T) {
	first := sec.HashToken("token-a")
	assert.Len(t, first, 64)
	assert.Equal(t, first, sec.HashToken("token-a"))
	assert.NotEqual(t, first, sec.HashToken("token-b"))
}
