package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/run-matchmaker/internal/config"
)

type contextKey string

const playerKey contextKey = "player_id"

// PlayerHeader carries the requester when no JWT secret is configured.
const PlayerHeader = "X-Player-ID"

// PlayerID returns the authenticated player of the request.
func PlayerID(ctx context.Context) string {
	id, _ := ctx.Value(playerKey).(string)
	return id
}

// WithPlayerID attaches an authenticated player to ctx.
func WithPlayerID(ctx context.Context, playerID string) context.Context {
	return context.WithValue(ctx, playerKey, playerID)
}

// Authenticator resolves the requesting player. With a secret it verifies
// HS256 bearer tokens and uses their subject; without one it trusts the
// X-Player-ID header.
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator creates a new authenticator
func NewAuthenticator(cfg *config.AuthConfig) *Authenticator {
	return &Authenticator{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer}
}

// IssueToken signs a token for playerID. A zero ttl issues a token without expiry.
func (a *Authenticator) IssueToken(playerID string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", fmt.Errorf("issuing token: no jwt secret configured")
	}
	claims := jwt.MapClaims{"sub": playerID, "iat": time.Now().Unix()}
	if a.issuer != "" {
		claims["iss"] = a.issuer
	}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Authenticate returns the player a token belongs to.
func (a *Authenticator) Authenticate(tokenString string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}

	sub, err := t.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return sub, nil
}

// Middleware rejects requests without a resolvable player.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		playerID, err := a.resolve(r)
		if err != nil {
			writeUnauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPlayerID(r.Context(), playerID)))
	})
}

func (a *Authenticator) resolve(r *http.Request) (string, error) {
	if len(a.secret) == 0 {
		if id := r.Header.Get(PlayerHeader); id != "" {
			return id, nil
		}
		// Browsers cannot set headers on a websocket handshake.
		if id := r.URL.Query().Get("player_id"); id != "" {
			return id, nil
		}
		return "", fmt.Errorf("missing %s header", PlayerHeader)
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		token = r.URL.Query().Get("access_token")
	}
	if token == "" {
		return "", fmt.Errorf("missing bearer token")
	}
	return a.Authenticate(token)
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(APIResponse{Error: err.Error(), Code: "unauthorized"})
}
