// ABOUTME: Dual access/refresh JWT issuance and verification with strict class separation
// ABOUTME: Uses HS256 signing with a shared symmetric secret

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors. Verification is a typed result: callers branch on these with
// errors.Is instead of catching a generic failure.
var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrExpiredToken    = errors.New("token expired")
	ErrWrongTokenClass = errors.New("wrong token class")
	ErrMissingClaim    = errors.New("missing required claim")
)

// TokenClass discriminates the two token kinds. Both share the signing
// scheme and key, so the class claim is the only thing preventing a
// long-lived refresh token from being replayed as an access credential.
type TokenClass string

const (
	TokenClassAccess  TokenClass = "access"
	TokenClassRefresh TokenClass = "refresh"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 4 * time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims are the identity claims carried in every token.
type Claims struct {
	UserID      int64
	Username    string
	IsSuperuser bool
	ExpiresAt   time.Time
	Class       TokenClass
}

// Codec issues and verifies tokens. It is purely functional: no server-side
// token state exists, so validity is fully determined by signature and
// expiry. There is no revocation; a token stays valid for its stated
// lifetime unless the signing key changes.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewCodec creates a Codec with the given secret. Zero TTLs fall back to
// the defaults.
func NewCodec(secret []byte, accessTTL, refreshTTL time.Duration) *Codec {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &Codec{secret: secret, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// AccessTTL returns the configured access-token lifetime.
func (c *Codec) AccessTTL() time.Duration {
	return c.accessTTL
}

// IssuePair produces an independently signed access/refresh token pair
// embedding the same identity claims.
func (c *Codec) IssuePair(userID int64, username string, isSuperuser bool) (access, refresh string, err error) {
	access, err = c.issue(userID, username, isSuperuser, TokenClassAccess, c.accessTTL)
	if err != nil {
		return "", "", fmt.Errorf("issuing access token: %w", err)
	}
	refresh, err = c.issue(userID, username, isSuperuser, TokenClassRefresh, c.refreshTTL)
	if err != nil {
		return "", "", fmt.Errorf("issuing refresh token: %w", err)
	}
	return access, refresh, nil
}

func (c *Codec) issue(userID int64, username string, isSuperuser bool, class TokenClass, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":      userID,
		"username":     username,
		"is_superuser": isSuperuser,
		"iat":          now.Unix(),
		"exp":          now.Add(ttl).Unix(),
		"token_type":   string(class),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify decodes a token, checks its signature and expiry, and enforces
// that the embedded class matches the expectation. Cross-class use is
// rejected with ErrWrongTokenClass even when the signature is valid.
func (c *Codec) Verify(tokenString string, expected TokenClass) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}

	claims, err := claimsFromMap(mapClaims)
	if err != nil {
		return Claims{}, err
	}
	if claims.Class != expected {
		return Claims{}, fmt.Errorf("%w: got %q, expected %q", ErrWrongTokenClass, claims.Class, expected)
	}
	return claims, nil
}

func claimsFromMap(m jwt.MapClaims) (Claims, error) {
	userID, ok := m["user_id"].(float64)
	if !ok {
		return Claims{}, fmt.Errorf("%w: user_id", ErrMissingClaim)
	}
	username, ok := m["username"].(string)
	if !ok || username == "" {
		return Claims{}, fmt.Errorf("%w: username", ErrMissingClaim)
	}
	isSuperuser, ok := m["is_superuser"].(bool)
	if !ok {
		return Claims{}, fmt.Errorf("%w: is_superuser", ErrMissingClaim)
	}
	tokenType, ok := m["token_type"].(string)
	if !ok || tokenType == "" {
		return Claims{}, fmt.Errorf("%w: token_type", ErrMissingClaim)
	}
	exp, err := m.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, fmt.Errorf("%w: exp", ErrMissingClaim)
	}

	return Claims{
		UserID:      int64(userID),
		Username:    username,
		IsSuperuser: isSuperuser,
		ExpiresAt:   exp.Time,
		Class:       TokenClass(tokenType),
	}, nil
}
