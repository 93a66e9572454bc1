package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/AnshRaj112/marketbot-backend/pkg/clientip"
	"github.com/AnshRaj112/marketbot-backend/pkg/utils"
)

func extractBearerToken(header string) string {
	token, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"success":false,"message":"` + message + `"}`))
}

// AdminAuth guards the admin API with a static key sent as a bearer token
// and checked against its argon2id hash. An empty keyHash disables the API.
// guard may be nil.
func AdminAuth(keyHash string, guard *FailureGuard, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keyHash == "" {
				writeJSONError(w, http.StatusServiceUnavailable, "Admin API is not configured.")
				return
			}

			ctx := r.Context()
			ip := clientip.RealClientIP(r)
			if guard != nil && guard.Blocked(ctx, ip) {
				writeJSONError(w, http.StatusTooManyRequests, "Too many failed attempts. Please try again later.")
				return
			}

			key := extractBearerToken(r.Header.Get("Authorization"))
			ok, err := utils.VerifySecret(key, keyHash)
			if err != nil {
				log.Error("admin key hash is invalid", "error", err)
				writeJSONError(w, http.StatusInternalServerError, "Admin API is misconfigured.")
				return
			}
			if key == "" || !ok {
				if guard != nil && guard.RecordFailure(ctx, ip) {
					log.Warn("blocked ip after failed admin logins", "ip", ip)
				}
				writeJSONError(w, http.StatusUnauthorized, "Invalid admin key.")
				return
			}

			if guard != nil {
				guard.Reset(ctx, ip)
			}
			next.ServeHTTP(w, r)
		})
	}
}
