// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	// BackupCodeAlphabet omits 0/O and 1/I so codes survive being read aloud.
	BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	BackupCodeCount  = 10
	BackupCodeLength = 8
)

// GenerateBackupCodes returns count random codes of BackupCodeLength
// characters, formatted as XXXX-XXXX for display.
func GenerateBackupCodes(count int) ([]string, error) {
	codes := make([]string, 0, count)
	alphabetSize := big.NewInt(int64(len(BackupCodeAlphabet)))

	for range count {
		var builder strings.Builder
		builder.Grow(BackupCodeLength + 1)
		for index := range BackupCodeLength {
			if index == BackupCodeLength/2 {
				builder.WriteByte('-')
			}
			n, err := rand.Int(rand.Reader, alphabetSize)
			if err != nil {
				return nil, fmt.Errorf("sec: failed to generate backup code: %w", err)
			}
			builder.WriteByte(BackupCodeAlphabet[n.Int64()])
		}
		codes = append(codes, builder.String())
	}

	return codes, nil
}

// CanonicalBackupCode strips separators and case so "abcd-efgh", "ABCD EFGH"
// and "ABCDEFGH" hash and compare identically.
func CanonicalBackupCode(code string) string {
	canonical := strings.ToUpper(strings.TrimSpace(code))
	canonical = strings.ReplaceAll(canonical, "-", "")
	canonical = strings.ReplaceAll(canonical, " ", "")
	return canonical
}

// TemporaryPasswordLength is the length of operator-issued first passwords.
const TemporaryPasswordLength = 12

// GenerateTemporaryPassword returns a random password drawn from the backup
// code alphabet, for accounts provisioned on someone's behalf.
func GenerateTemporaryPassword() (string, error) {
	alphabetSize := big.NewInt(int64(len(BackupCodeAlphabet)))
	password := make([]byte, TemporaryPasswordLength)
	for index := range password {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("sec: failed to generate temporary password: %w", err)
		}
		password[index] = BackupCodeAlphabet[n.Int64()]
	}
	return string(password), nil
}
