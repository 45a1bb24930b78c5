package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Identity is the verified caller. Credential checks happen in the external
// auth service; this package only carries the verifier's answer.
type Identity struct {
	AccountID string
	IsAdmin   bool
}

// Verifier resolves a bearer token to an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// ErrInvalidToken is returned by verifiers for unknown or malformed tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

type identityKey struct{}

// IdentityFrom extracts the verified identity set by Authenticate.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Authenticate verifies the Authorization bearer token and stores the
// resulting identity in the request context.
func Authenticate(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondAuthError(w, http.StatusUnauthorized, "authorization header is required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				respondAuthError(w, http.StatusUnauthorized, "authorization header must be a bearer token")
				return
			}

			identity, err := verifier.Verify(r.Context(), parts[1])
			if err != nil {
				respondAuthError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects non-admin identities. Must run after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			respondAuthError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !identity.IsAdmin {
			respondAuthError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StaticVerifier maps tokens to identities. Used in tests and single-node
// development deployments.
type StaticVerifier struct {
	tokens map[string]Identity
}

// NewStaticVerifier creates an empty static verifier.
func NewStaticVerifier() *StaticVerifier {
	return &StaticVerifier{tokens: make(map[string]Identity)}
}

// Add registers a token for an identity.
func (v *StaticVerifier) Add(token string, identity Identity) {
	v.tokens[token] = identity
}

func (v *StaticVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	identity, ok := v.tokens[token]
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	return identity, nil
}

// RemoteVerifier asks the external auth service to resolve tokens.
type RemoteVerifier struct {
	endpoint string
	client   *http.Client
}

// NewRemoteVerifier creates a verifier against the auth service's verify
// endpoint.
func NewRemoteVerifier(endpoint string, client *http.Client) *RemoteVerifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteVerifier{endpoint: endpoint, client: client}
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return Identity{}, fmt.Errorf("failed to encode verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return Identity{}, fmt.Errorf("failed to build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to call auth service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, ErrInvalidToken
	}

	var payload struct {
		AccountID string `json:"account_id"`
		IsAdmin   bool   `json:"is_admin"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Identity{}, fmt.Errorf("failed to decode verify response: %w", err)
	}
	if payload.AccountID == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{AccountID: payload.AccountID, IsAdmin: payload.IsAdmin}, nil
}

func respondAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}
