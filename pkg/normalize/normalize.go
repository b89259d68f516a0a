// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package normalize canonicalizes login identifiers before they are stored or
// looked up.
//
// # Usage
//
// Emails are unique per principal table and usernames are unique among
// students, so "Ana@Example.com" and "ana@example.com " must resolve to the
// same row. Every write and every lookup goes through this package.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fold performs full Unicode case folding (e.g. "ß" and "SS" compare equal).
var fold = cases.Fold()

// Email returns the canonical form of an email address.
//
// # Transformation Pipeline
//
// 1. Trims surrounding whitespace.
// 2. Normalizes to NFC so composed and decomposed accents compare equal.
// 3. Applies Unicode case folding.
func Email(s string) string {
	result := norm.NFC.String(strings.TrimSpace(s))
	return fold.String(result)
}

// Username returns the canonical form of a student username.
//
// # Transformation Pipeline
//
// 1. Normalizes to NFD (decomposes accented chars: é → e + combining acute).
// 2. Removes combining marks (accents).
// 3. Converts to lowercase and trims whitespace.
func Username(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	result, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		result = strings.TrimSpace(s)
	}
	return strings.ToLower(result)
}

// isMn reports whether r is a Unicode non-spacing mark (e.g., accents).
func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}
