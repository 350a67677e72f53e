package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token fails verification
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidIssuer is returned when the token issuer is unexpected
	ErrInvalidIssuer = errors.New("invalid issuer")
)

// Claims represents the verified claims the gateway consumes
type Claims struct {
	jwt.RegisteredClaims
}

// Principal is the result of a successful verification: an opaque
// subject plus the issuer that asserted it
type Principal struct {
	Subject string
	Issuer  string
}

// TokenValidator verifies HS256 bearer tokens against a shared secret
type TokenValidator struct {
	secret []byte
	issuer string
}

// Config holds configuration for TokenValidator
type Config struct {
	Secret string
	Issuer string
}

// NewTokenValidator creates a new token validator
func NewTokenValidator(cfg Config) *TokenValidator {
	return &TokenValidator{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
	}
}

// ValidateToken verifies a token string and returns the principal it
// asserts. The validator never guesses partial validity: any parse,
// signature, expiry, or issuer problem is a verification failure.
func (v *TokenValidator) ValidateToken(ctx context.Context, tokenString string) (*Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, ErrInvalidIssuer
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &Principal{
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
	}, nil
}
