// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package request provides utilities for extracting data from HTTP requests.

It abstracts away body decoding and credential extraction, ensuring consistent
error handling and type safety across handlers and middleware.
*/
package requestutil

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/taibuivan/campus/internal/platform/apperr"
	"github.com/taibuivan/campus/internal/platform/constants"
	"github.com/taibuivan/campus/internal/platform/ctxutil"
	"github.com/taibuivan/campus/internal/platform/sec"
	"github.com/taibuivan/campus/internal/platform/validate"
)

// maxBodyBytes caps JSON request bodies; auth payloads are tiny.
const maxBodyBytes = 64 << 10

/*
DecodeJSON reads the request body and decodes it into the target structure.

Parameters:
  - writer: http.ResponseWriter (used to enforce the body size limit)
  - request: *http.Request
  - target: any (Pointer to the destination struct)

Returns:
  - error: validate.ErrInvalidJSON if decoding fails, otherwise nil
*/
func DecodeJSON(writer http.ResponseWriter, request *http.Request, target any) error {
	request.Body = http.MaxBytesReader(writer, request.Body, maxBodyBytes)
	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		return validate.ErrInvalidJSON
	}
	return nil
}

/*
BearerToken returns the session token presented with the request.

The Authorization header wins over the auth cookie. The boolean is false when
neither is present; a header that is present but not a Bearer credential
returns ok=true with an empty token so callers can reject it.
*/
func BearerToken(request *http.Request) (token string, ok bool) {
	if header := request.Header.Get(constants.HeaderAuthorization); header != "" {
		scheme, value, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "bearer") {
			return "", true
		}
		return strings.TrimSpace(value), true
	}

	if cookie, err := request.Cookie(constants.AuthCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}

	return "", false
}

/*
Claims extracts the authenticated principal claims from the request context.

Returns nil if the request is not authenticated.
*/
func Claims(request *http.Request) *sec.Claims {
	return ctxutil.GetClaims(request.Context())
}

/*
RequiredClaims ensures the request is authenticated and returns the claims.

Returns:
  - *sec.Claims: The verified session claims
  - error: apperr.Unauthorized if the request is not authenticated
*/
func RequiredClaims(request *http.Request) (*sec.Claims, error) {

	// Get principal claims
	claims := ctxutil.GetClaims(request.Context())

	// If the principal is not authenticated, return an error
	if claims == nil {
		return nil, apperr.Unauthorized("Authentication required")
	}

	return claims, nil
}
