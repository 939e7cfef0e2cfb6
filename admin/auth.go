package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AuthConfig configures bearer token verification for the admin surface.
type AuthConfig struct {
	// Secret is the HMAC key tokens must be signed with. Required.
	Secret []byte

	// Issuer is the expected token issuer (iss claim). Empty skips the check.
	Issuer string

	// Audience is the expected token audience (aud claim). Empty skips the
	// check.
	Audience string

	// HeaderName is the header carrying the token.
	// Default: "Authorization"
	HeaderName string

	// TokenPrefix is the prefix before the token in the header.
	// Default: "Bearer "
	TokenPrefix string
}

// TokenVerifier validates bearer JWTs on admin requests. Only HMAC-signed
// tokens are accepted; any other signing method is rejected before the
// signature is checked.
type TokenVerifier struct {
	config AuthConfig
}

// NewTokenVerifier creates a verifier from config, applying defaults.
func NewTokenVerifier(config AuthConfig) (*TokenVerifier, error) {
	if len(config.Secret) == 0 {
		return nil, fmt.Errorf("admin: signing secret is required")
	}
	if config.HeaderName == "" {
		config.HeaderName = "Authorization"
	}
	if config.TokenPrefix == "" {
		config.TokenPrefix = "Bearer "
	}
	return &TokenVerifier{config: config}, nil
}

// VerifyRequest checks the request's bearer token and returns the token
// subject. The subject is empty when the token carries no sub claim.
func (v *TokenVerifier) VerifyRequest(r *http.Request) (string, error) {
	header := r.Header.Get(v.config.HeaderName)
	if header == "" {
		return "", ErrMissingToken
	}

	tokenString := strings.TrimPrefix(header, v.config.TokenPrefix)
	if tokenString == header {
		return "", ErrMissingToken
	}
	tokenString = strings.TrimSpace(tokenString)

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("admin: unexpected signing method %v", token.Header["alg"])
		}
		return v.config.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	if v.config.Issuer != "" {
		if iss, ok := claims["iss"].(string); !ok || iss != v.config.Issuer {
			return "", ErrInvalidToken
		}
	}

	if v.config.Audience != "" {
		if !containsAudience(audienceClaim(claims), v.config.Audience) {
			return "", ErrInvalidToken
		}
	}

	subject, _ := claims["sub"].(string)
	return subject, nil
}

// audienceClaim normalizes the aud claim, which may be a single string or
// a list.
func audienceClaim(claims jwt.MapClaims) []string {
	switch v := claims["aud"].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, a := range v {
			if s, ok := a.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func containsAudience(audiences []string, target string) bool {
	for _, aud := range audiences {
		if aud == target {
			return true
		}
	}
	return false
}

type contextKey int

const subjectKey contextKey = iota

func withSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// SubjectFromContext retrieves the verified token subject from the context.
// Returns empty string when the request was not authenticated.
func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey).(string)
	return s
}
