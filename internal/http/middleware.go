package http

import (
	"net/http"
	"strings"

	"github.com/emmanuel-nwafor/foremade/internal/logging"
	"github.com/emmanuel-nwafor/foremade/internal/session"
	"github.com/go-chi/chi/v5/middleware"
)

// RequestLogger puts a logger tagged with the chi request id into the context.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := logging.FromCtx(r.Context()).With("request_id", middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(logging.WithCtx(r.Context(), l)))
	})
}

// AuthMiddleware verifies the bearer token and stores the Session in the
// request context.
func AuthMiddleware(v session.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
				return
			}
			sess, err := v.Verify(r.Context(), token)
			if err != nil {
				logging.FromCtx(r.Context()).InfoContext(r.Context(), "rejected token", "err", err)
				respondError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}

			ctx := session.WithSession(r.Context(), sess)
			ctx = logging.WithCtx(ctx, logging.FromCtx(ctx).With("user_id", sess.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", session.ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

func sessionFromRequest(w http.ResponseWriter, r *http.Request) (session.Session, bool) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
	}
	return sess, ok
}
