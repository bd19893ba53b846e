package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "bilisub"

var errInvalidToken = errors.New("invalid download token")

type downloadClaims struct {
	Task string `json:"task"`
	File string `json:"file"`
	jwt.RegisteredClaims
}

// TokenSigner issues and verifies signed download links.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenSigner returns nil when secret is empty; links then require the
// API key.
func NewTokenSigner(secret string, ttl time.Duration) *TokenSigner {
	if secret == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs access to one file of one task.
func (s *TokenSigner) Issue(taskID, file, clientID string) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := downloadClaims{
		Task: taskID,
		File: file,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign download token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks that token grants access to taskID/file.
func (s *TokenSigner) Verify(token, taskID, file string) error {
	var claims downloadClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if claims.Task != taskID || claims.File != file {
		return fmt.Errorf("%w: token is for %s/%s", errInvalidToken, claims.Task, claims.File)
	}
	return nil
}
