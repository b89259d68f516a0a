// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package uuid provides time-ordered unique identifiers for principals.

It wraps the standard UUID library to generate Version 7 values, which are
optimized for database performance.

Advantages:

  - Sortable: Naturally ordered by creation time (millisecond precision).
  - Friendly: Prevents index fragmentation in PostgreSQL (B-tree optimal).
  - Compact: 128-bit storage, compatible with standard 'uuid' types.

Principal ids are assumed unique across all four principal tables; v7 makes
that assumption safe without a shared sequence.
*/
package uuid

import "github.com/google/uuid"

// # Generators

// New generates a new UUIDv7 string.
func New() string {

	// Create a new version 7 UUID (time-sortable)
	id, err := uuid.NewV7()

	// entropy failure is an unrecoverable system-level error
	if err != nil {
		panic("uuid: failed to generate UUIDv7: " + err.Error())
	}

	// Convert the UUID to a string
	return id.String()
}

// # Validation

// IsValid reports whether s parses as a UUID in canonical or braced form.
// Used to short-circuit lookups before they reach a uuid-typed column.
func IsValid(s string) bool {
	return uuid.Validate(s) == nil
}
