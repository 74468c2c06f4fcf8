/*
Package auth is the identity collaborator of the stage ledger.

The ledger itself trusts whatever actor it is given. This package turns a
bearer token into that actor:

  Authorization: Bearer <HS256 JWT>

  claims: sub  = user id
          name = display name
          role = producer | admin | consumer

Tokens are issued by the demo scenario loader (there is no login flow) or
by any external system sharing JWT_SECRET.
*/
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/warp/supplychain/traceability"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is the authenticated caller.
type Identity struct {
	UserID traceability.UserID
	Name   string
	Role   traceability.Role
}

// Claims is the JWT payload.
type Claims struct {
	Name string            `json:"name"`
	Role traceability.Role `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies tokens with a shared HMAC secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for u.
func (i *Issuer) Issue(u traceability.User) (string, error) {
	now := i.now()
	claims := Claims{
		Name: u.Name,
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and expiry and returns the identity.
func (i *Issuer) Parse(tokenString string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Identity{}, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, claims.Subject)
	}
	return Identity{
		UserID: traceability.UserID(id),
		Name:   claims.Name,
		Role:   claims.Role,
	}, nil
}
