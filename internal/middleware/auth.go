package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Vasu1712/buddychat/internal/api/respond"
	"github.com/Vasu1712/buddychat/internal/apperrors"
	"github.com/Vasu1712/buddychat/internal/auth"
)

// Verifier resolves a bearer token to a user ID.
type Verifier interface {
	Verify(token string) (string, error)
}

// Auth puts the token's user on the request context. Browsers cannot set
// headers on websocket upgrades, so the token may also come from the
// "token" query parameter.
func Auth(v Verifier, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				respond.Error(w, apperrors.Unauthenticated("missing authorization"))
				return
			}
			userID, err := v.Verify(token)
			if err != nil {
				log.Debugw("rejected token", "path", r.URL.Path, "error", err)
				respond.Error(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}
