package auth

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
)

// Claims represents JWT claims used by this service.
type Claims struct {
	LandlordID string `json:"landlord_id"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// ParseJWT validates an HS256 token and returns its claims.
func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.Wrap(ErrInvalidToken, "empty token")
	}
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, errors.Mark(err, ErrInvalidToken)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.LandlordID == "" {
		return nil, errors.Wrap(ErrInvalidToken, "missing landlord_id")
	}
	if _, ok := NormalizeRole(claims.Role); !ok {
		return nil, errors.Wrapf(ErrInvalidToken, "invalid role %q", claims.Role)
	}
	if claims.ExpiresAt != nil && time.Now().After(claims.ExpiresAt.Time) {
		return nil, errors.Wrap(ErrInvalidToken, "token expired")
	}
	return claims, nil
}

// IssueToken signs claims for landlordID and role. Used by ops tooling and tests.
func IssueToken(secret []byte, landlordID string, role Role, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		LandlordID: landlordID,
		Role:       string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
