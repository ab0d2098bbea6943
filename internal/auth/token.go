package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenClaims is the decoded payload of both token classes.
type TokenClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Email  string `json:"email"`
}

// TokenCodec signs and verifies the two bearer token classes. Each class has
// its own secret and TTL, so a leaked access secret cannot mint refresh
// tokens and vice versa.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenCodec(accessSecret, refreshSecret string) *TokenCodec {
	return &TokenCodec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
	}
}

// WithTTLs overrides the token lifetimes. Zero keeps the default; negative
// values sign already-expired tokens.
func (c *TokenCodec) WithTTLs(accessTTL, refreshTTL time.Duration) *TokenCodec {
	if accessTTL != 0 {
		c.accessTTL = accessTTL
	}
	if refreshTTL != 0 {
		c.refreshTTL = refreshTTL
	}
	return c
}

func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

func (c *TokenCodec) SignAccess(userID, email string) (string, error) {
	return sign(userID, email, c.accessSecret, c.accessTTL)
}

func (c *TokenCodec) SignRefresh(userID, email string) (string, error) {
	return sign(userID, email, c.refreshSecret, c.refreshTTL)
}

// VerifyAccess checks signature and expiry and returns the decoded claims.
// Every failure mode (malformed, tampered, expired) comes back as
// ErrInvalidToken; callers decide what to log.
func (c *TokenCodec) VerifyAccess(token string) (*TokenClaims, error) {
	return verify(token, c.accessSecret)
}

func (c *TokenCodec) VerifyRefresh(token string) (*TokenClaims, error) {
	return verify(token, c.refreshSecret)
}

func sign(userID, email string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	// iat/exp have second granularity; the jti keeps two signings for the
	// same user within one second from producing identical strings, which
	// would make slot rotation a no-op.
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID,
		Email:  email,
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return encoded, nil
}

func verify(token string, secret []byte) (*TokenClaims, error) {
	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
