package api

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"bilisub/internal/config"
	"bilisub/internal/services"
)

// APIKeyHeader carries the client key on every authenticated request.
const APIKeyHeader = "X-API-Key"

// Principal is the authenticated caller.
type Principal struct {
	ClientID string
	Admin    bool
}

type principalKey struct{}

// PrincipalFrom returns the caller attached by the auth middleware.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = context.WithValue(ctx, principalKey{}, p)
	return services.WithClientID(ctx, p.ClientID)
}

// Authenticator verifies API keys against the configured bcrypt hashes.
type Authenticator struct {
	clients []config.Client

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]string
}

// NewAuthenticator builds an authenticator for the configured clients.
func NewAuthenticator(clients []config.Client) *Authenticator {
	return &Authenticator{
		clients:  append([]config.Client(nil), clients...),
		verified: make(map[[sha256.Size]byte]string),
	}
}

// Open reports whether no clients are configured. An open service treats
// every caller as the anonymous admin.
func (a *Authenticator) Open() bool { return len(a.clients) == 0 }

// Authenticate resolves key to a client.
func (a *Authenticator) Authenticate(key string) (Principal, bool) {
	if a.Open() {
		return Principal{Admin: true}, true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return Principal{}, false
	}
	digest := sha256.Sum256([]byte(key))
	a.mu.RLock()
	id, cached := a.verified[digest]
	a.mu.RUnlock()
	if cached {
		return a.principal(id)
	}
	for _, client := range a.clients {
		if bcrypt.CompareHashAndPassword([]byte(client.KeyHash), []byte(key)) == nil {
			a.mu.Lock()
			a.verified[digest] = client.ID
			a.mu.Unlock()
			return a.principal(client.ID)
		}
	}
	return Principal{}, false
}

func (a *Authenticator) principal(id string) (Principal, bool) {
	for _, client := range a.clients {
		if subtle.ConstantTimeCompare([]byte(client.ID), []byte(id)) == 1 {
			return Principal{ClientID: client.ID, Admin: client.Admin}, true
		}
	}
	return Principal{}, false
}

// Middleware rejects requests without a valid key.
func (a *Authenticator) Middleware(s *Server) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := a.Authenticate(r.Header.Get(APIKeyHeader))
			if !ok {
				writeError(w, r, s.logger, errUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
		})
	}
}

func requireAdmin(s *Server) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, ok := PrincipalFrom(r.Context()); !ok || !p.Admin {
				writeError(w, r, s.logger, errAdminOnly)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HashKey produces the bcrypt hash stored in the config for a new key.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
