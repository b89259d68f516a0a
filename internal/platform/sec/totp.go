// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// # TOTP Parameters (RFC 6238)

const (
	TOTPDigits = 6
	TOTPPeriod = 30 * time.Second

	// TOTPSkew is the number of steps accepted on either side of the current one.
	TOTPSkew = 1

	totpSecretBytes = 20
)

var totpEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateTOTPSecret returns a fresh 160-bit secret, base32 encoded without padding.
func GenerateTOTPSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("sec: failed to generate totp secret: %w", err)
	}
	return totpEncoding.EncodeToString(raw), nil
}

// TOTPProvisioningURI builds the otpauth:// URI rendered as a QR code by
// authenticator apps.
func TOTPProvisioningURI(issuer, account, secret string) string {
	label := url.PathEscape(issuer + ":" + account)

	values := url.Values{}
	values.Set("secret", secret)
	values.Set("issuer", issuer)
	values.Set("algorithm", "SHA1")
	values.Set("digits", strconv.Itoa(TOTPDigits))
	values.Set("period", strconv.Itoa(int(TOTPPeriod/time.Second)))

	return "otpauth://totp/" + label + "?" + values.Encode()
}

// TOTPCode computes the code for the step containing at.
func TOTPCode(secret string, at time.Time) (string, error) {
	key, err := decodeTOTPSecret(secret)
	if err != nil {
		return "", err
	}
	return hotpCode(key, at.Unix()/int64(TOTPPeriod/time.Second)), nil
}

// VerifyTOTP reports whether code matches the secret at now, tolerating one
// step of clock drift in either direction.
func VerifyTOTP(secret, code string, now time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != TOTPDigits || !isDigits(code) {
		return false
	}

	key, err := decodeTOTPSecret(secret)
	if err != nil || len(key) == 0 {
		return false
	}

	counter := now.Unix() / int64(TOTPPeriod/time.Second)
	matched := 0
	for step := int64(-TOTPSkew); step <= TOTPSkew; step++ {
		if counter+step < 0 {
			continue
		}
		// Every step is compared so the loop does not leak which one matched.
		matched |= subtle.ConstantTimeCompare([]byte(hotpCode(key, counter+step)), []byte(code))
	}

	return matched == 1
}

func decodeTOTPSecret(secret string) ([]byte, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	normalized = strings.TrimRight(normalized, "=")

	key, err := totpEncoding.DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("sec: malformed totp secret: %w", err)
	}
	return key, nil
}

func hotpCode(key []byte, counter int64) string {
	var message [8]byte
	binary.BigEndian.PutUint64(message[:], uint64(counter))

	mac := hmac.New(sha1.New, key)
	_, _ = mac.Write(message[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	binaryCode := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	modulus := 1
	for range TOTPDigits {
		modulus *= 10
	}

	return fmt.Sprintf("%0*d", TOTPDigits, binaryCode%modulus)
}

func isDigits(value string) bool {
	for _, char := range value {
		if char < '0' || char > '9' {
			return false
		}
	}
	return true
}
