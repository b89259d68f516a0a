// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taibuivan/campus/internal/auth"
	"github.com/taibuivan/campus/internal/auth/memstore"
	"github.com/taibuivan/campus/internal/platform/sec"
	"github.com/taibuivan/campus/pkg/uuid"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// testClock is a settable time source shared by every component of a fixture.
type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func (clock *testClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.current
}

func (clock *testClock) Advance(delta time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.current = clock.current.Add(delta)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []auth.Event
}

func (publisher *recordingPublisher) Publish(_ context.Context, event auth.Event) {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	publisher.events = append(publisher.events, event)
}

func (publisher *recordingPublisher) Types() []string {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	types := make([]string, 0, len(publisher.events))
	for _, event := range publisher.events {
		types = append(types, event.Type)
	}
	return types
}

// fixture is a fully wired auth stack over in-memory stores.
type fixture struct {
	clock       *testClock
	store       *memstore.Store
	revocations *auth.MemoryRevocationStore
	tokens      *sec.TokenService
	hasher      *sec.PasswordHasher
	blacklist   *auth.Blacklist
	events      *recordingPublisher
	mfa         *auth.MfaService
	service     *auth.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithRevocations(t, nil)
}

// newFixtureWithRevocations wires the fixture over store, or over a memory
// revocation store when store is nil.
func newFixtureWithRevocations(t *testing.T, store auth.RevocationStore) *fixture {
	t.Helper()
	return newFixtureOn(t, &testClock{current: time.Unix(1_700_000_000, 0)}, store)
}

// newFixtureOn wires the fixture on an existing clock.
func newFixtureOn(t *testing.T, clock *testClock, store auth.RevocationStore) *fixture {
	t.Helper()

	tokens, err := sec.NewHMACTokenService(testSecret, sec.WithClock(clock.Now))
	require.NoError(t, err)

	hasher, err := sec.NewPasswordHasher(4)
	require.NoError(t, err)

	memoryRevocations := auth.NewMemoryRevocationStore(clock.Now)
	if store == nil {
		store = memoryRevocations
	}

	principals := memstore.New()
	events := &recordingPublisher{}
	blacklist := auth.NewBlacklist(store, tokens, tokens.SessionTTL(), auth.WithBlacklistClock(clock.Now))

	options := []auth.Option{auth.WithClock(clock.Now), auth.WithMfaIssuer("Campus Test")}
	mfa := auth.NewMfaService(principals, hasher, tokens, events, options...)

	return &fixture{
		clock:       clock,
		store:       principals,
		revocations: memoryRevocations,
		tokens:      tokens,
		hasher:      hasher,
		blacklist:   blacklist,
		events:      events,
		mfa:         mfa,
		service:     auth.NewService(principals, hasher, tokens, blacklist, mfa, events, options...),
	}
}

// seed stores principal with the hash of password and returns it.
func (fixture *fixture) seed(t *testing.T, principal auth.Principal, password string) *auth.Principal {
	t.Helper()

	if principal.ID == "" {
		principal.ID = uuid.New()
	}
	if principal.GivenName == "" {
		principal.GivenName = "Test"
		principal.FamilyName = "Principal"
	}

	passwordHash, err := fixture.hasher.Hash(password)
	require.NoError(t, err)
	principal.Credential.PasswordHash = passwordHash
	principal.CreatedAt = fixture.clock.Now()
	principal.UpdatedAt = fixture.clock.Now()

	require.NoError(t, fixture.store.Create(context.Background(), &principal))
	return &principal
}

// seedAdministrator stores an administrator with MFA enabled on secret and
// the given plaintext backup codes.
func (fixture *fixture) seedAdministrator(t *testing.T, email, password, secret string, backupCodes ...string) *auth.Principal {
	t.Helper()

	hashes := make([]string, 0, len(backupCodes))
	for _, code := range backupCodes {
		codeHash, err := fixture.hasher.Hash(sec.CanonicalBackupCode(code))
		require.NoError(t, err)
		hashes = append(hashes, codeHash)
	}

	return fixture.seed(t, auth.Principal{
		Role:  sec.RoleAdministrator,
		Email: email,
		Mfa:   &auth.MfaState{Enabled: secret != "", Secret: secret, BackupCodes: hashes},
	}, password)
}

func (fixture *fixture) principal(t *testing.T, role sec.Role, id string) *auth.Principal {
	t.Helper()
	principal, err := fixture.store.FindByID(context.Background(), role, id)
	require.NoError(t, err)
	return principal
}
