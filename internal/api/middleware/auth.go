package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/talentboard/supportbot/internal/api"
)

type contextKey string

const ClientIDKey contextKey = "client_id"

// APIKeyAuth accepts requests bearing one of keys. The client ID stored in
// the context is a short fingerprint of the key, never the key itself.
// An empty key list disables authentication.
func APIKeyAuth(keys []string) func(http.Handler) http.Handler {
	digests := make([][32]byte, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(digests) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			token := sha256.Sum256([]byte(strings.TrimPrefix(authHeader, "Bearer ")))
			matched := 0
			for _, d := range digests {
				matched |= subtle.ConstantTimeCompare(token[:], d[:])
			}
			if matched != 1 {
				api.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			ctx := context.WithValue(r.Context(), ClientIDKey, hex.EncodeToString(token[:4]))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClientID returns the authenticated client's key fingerprint.
func GetClientID(ctx context.Context) string {
	id, _ := ctx.Value(ClientIDKey).(string)
	return id
}
