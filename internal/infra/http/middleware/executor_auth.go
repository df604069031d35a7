package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/seiforesti/data-wave-sub013/pkg/apierror"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
)

// ExecutorAuth verifies the bearer token on executor callback requests.
// Executors sign an HS256 token with the shared secret; anything else
// is rejected before the handler runs. With an empty secret the check
// is disabled, which Load() only permits outside production.
func ExecutorAuth(secret string, log *logger.Logger) func(http.Handler) http.Handler {
	key := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				apierror.Unauthorized("Missing bearer token").WriteJSON(w)
				return
			}

			parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return key, nil
			})
			if err != nil || !parsed.Valid {
				log.Warn("executor token rejected",
					"error", err,
					"remote_addr", r.RemoteAddr,
					"request_id", GetRequestID(r.Context()),
				)
				apierror.Unauthorized("Invalid bearer token").WriteJSON(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
