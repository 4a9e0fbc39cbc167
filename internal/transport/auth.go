package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/genway/genway/internal/config"
	"github.com/genway/genway/model"
)

type claimsKey struct{}

func claimsFrom(ctx context.Context) map[string]any {
	claims, _ := ctx.Value(claimsKey{}).(map[string]any)
	return claims
}

// JWTAuthenticator verifies HS256-signed bearer tokens. The shared secret is
// read once from the environment variable named in the configuration.
type JWTAuthenticator struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

// NewJWTAuthenticator builds an authenticator from the auth configuration.
func NewJWTAuthenticator(cfg config.AuthConfig) (*JWTAuthenticator, error) {
	secret := os.Getenv(cfg.SecretEnv)
	if secret == "" {
		return nil, fmt.Errorf("auth: environment variable %s is empty", cfg.SecretEnv)
	}
	return &JWTAuthenticator{
		secret:   []byte(secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		leeway:   30 * time.Second,
	}, nil
}

// Middleware extracts and verifies the bearer token, storing its claims on
// the request context for BuildRequestContext.
func (a *JWTAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err != nil {
			WriteError(w, err)
			return
		}

		claims, verr := a.Verify(raw)
		if verr != nil {
			WriteError(w, verr)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Verify parses and validates a token, returning its claims.
func (a *JWTAuthenticator) Verify(raw string) (map[string]any, *model.ErrorEnvelope) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithLeeway(a.leeway),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, classifyJWTError(err)
	}
	return claims, nil
}

func bearerToken(r *http.Request) (string, *model.ErrorEnvelope) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", model.NewUnauthorizedError("missing Authorization header")
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", model.NewUnauthorizedError("Authorization header must be a bearer token")
	}
	return token, nil
}

func classifyJWTError(err error) *model.ErrorEnvelope {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return model.NewUnauthorizedError("token has expired")
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return model.NewUnauthorizedError("token is not valid yet")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return model.NewUnauthorizedError("token issuer is not trusted")
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return model.NewUnauthorizedError("token audience does not match")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return model.NewUnauthorizedError("token signature is invalid")
	default:
		return model.NewUnauthorizedError("token is invalid")
	}
}
