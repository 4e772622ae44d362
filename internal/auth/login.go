/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for a wrong username or password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrLoginDisabled is returned when no operator password is configured.
var ErrLoginDisabled = errors.New("operator login disabled")

// Authenticator checks the single configured operator account and issues tokens.
type Authenticator struct {
	Username     string
	PasswordHash string // bcrypt
	Secret       []byte
	TTL          time.Duration
}

// Login verifies the credentials and returns a signed token.
func (a *Authenticator) Login(username, password string) (string, time.Time, error) {
	if a.PasswordHash == "" || len(a.Secret) == 0 {
		return "", time.Time{}, ErrLoginDisabled
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.Username)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password))
	if !userOK || passErr != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}

	ttl := a.TTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	token, err := Issue(a.Secret, Claims{Username: username, Roles: []string{RoleOperator}}, ttl)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, time.Now().Add(ttl), nil
}

// HashPassword returns a bcrypt hash suitable for MEDIAROOM_ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
