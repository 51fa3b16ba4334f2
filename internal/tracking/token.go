// Package tracking issues and verifies the short-lived tokens that tie an
// asynchronous view report back to the page render that produced it.
package tracking

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid tracking token")
	ErrExpiredToken = errors.New("tracking token expired")
)

// Claims identify the viewer and product a token was rendered for.
type Claims struct {
	ProductID uint `json:"pid"`
	UserID    uint `json:"uid,omitempty"`
	IsAdmin   bool `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs tracking tokens with HS256.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("tracking secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("tracking token ttl must be positive, got %s", ttl)
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for a view of productID by the given viewer.
func (i *Issuer) Issue(productID, userID uint, isAdmin bool) (string, error) {
	now := i.now()
	claims := &Claims{
		ProductID: productID,
		UserID:    userID,
		IsAdmin:   isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign tracking token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of token and returns its claims.
func (i *Issuer) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.ProductID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
