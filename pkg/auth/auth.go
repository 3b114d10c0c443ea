// Package auth resolves the caller behind a bearer token.
//
// Two credential forms are accepted:
//
//	Authorization: Bearer <api_key>     static key from gateway.api_key
//	Authorization: Bearer <jwt>         HS256 token signed with gateway.jwt_secret
//
// With neither configured every caller is domain.Anonymous.
package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sipeed/picocrud/pkg/domain"
)

// APIKeyUser is the caller resolved from the static API key.
var APIKeyUser = domain.User{ID: "api-key", Name: "api key", Roles: []string{"admin"}}

// Claims carried by issued tokens. The subject is the user id.
type Claims struct {
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks bearer tokens.
type Verifier struct {
	apiKey string
	secret []byte
}

func NewVerifier(apiKey, jwtSecret string) *Verifier {
	v := &Verifier{apiKey: apiKey}
	if jwtSecret != "" {
		v.secret = []byte(jwtSecret)
	}
	return v
}

// Enabled reports whether any credential is configured.
func (v *Verifier) Enabled() bool {
	return v != nil && (v.apiKey != "" || len(v.secret) > 0)
}

// Verify resolves token to a user. Failures wrap domain.ErrUnauthorized.
func (v *Verifier) Verify(token string) (domain.User, error) {
	if !v.Enabled() {
		return domain.Anonymous, nil
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, fmt.Errorf("%w: bearer token required", domain.ErrUnauthorized)
	}
	if v.apiKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(v.apiKey)) == 1 {
		return APIKeyUser, nil
	}
	if len(v.secret) == 0 {
		return domain.User{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return domain.User{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	return domain.User{ID: claims.Subject, Name: claims.Name, Roles: claims.Roles}, nil
}

// Issue signs a token for user valid for ttl.
func (v *Verifier) Issue(user domain.User, ttl time.Duration) (string, error) {
	if v == nil || len(v.secret) == 0 {
		return "", fmt.Errorf("jwt secret not configured")
	}
	if user.ID == "" {
		return "", domain.BadRequestf("user id is required")
	}
	now := time.Now()
	claims := Claims{
		Name:  user.Name,
		Roles: user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "picocrud",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
