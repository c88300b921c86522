package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for malformed, forged or expired tokens
var ErrInvalidToken = errors.New("invalid token")

// Claims are carried in session tokens. The registered ID (jti) names the stored session.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens
type TokenIssuer struct {
	secret []byte
	issuer string
}

// NewTokenIssuer creates an issuer for the given secret
func NewTokenIssuer(secret, issuer string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), issuer: issuer}
}

// Issue creates a signed token with a fresh session ID
func (t *TokenIssuer) Issue(userID, email string, now time.Time, ttl time.Duration) (token, sessionID string, err error) {
	sessionID = uuid.New().String()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   userID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, sessionID, nil
}

// Parse verifies the signature and expiry of a token
func (t *TokenIssuer) Parse(token string) (*Claims, error) {
	return t.parse(token, jwt.WithExpirationRequired())
}

// ParseUnverifiedExpiry verifies the signature only. Used to revoke expired tokens.
func (t *TokenIssuer) ParseUnverifiedExpiry(token string) (*Claims, error) {
	return t.parse(token, jwt.WithoutClaimsValidation())
}

func (t *TokenIssuer) parse(token string, opts ...jwt.ParserOption) (*Claims, error) {
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing session claims", ErrInvalidToken)
	}
	return claims, nil
}
