package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"fasttrack/internal/api"
	"fasttrack/internal/session"
	"fasttrack/internal/utils"

	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	contextKeyUserID       contextKey = "user_id"
	contextKeyEmail        contextKey = "email"
	contextKeyRole         contextKey = "role"
	contextKeyAPI          contextKey = "api"
	contextKeyKioskSession contextKey = "kiosk_session"

	cookieKioskSession = "kiosk_session"
	cookieRedirect     = "redirect_to"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Service) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("http request")
	})
}

// KioskSession makes sure the browser carries a kiosk session id. The id
// keys the request draft and the keystroke buffer for that kiosk.
func (s *Service) KioskSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sessionID string
		if cookie, err := r.Cookie(cookieKioskSession); err == nil {
			if err := s.cookie.Decode(cookieKioskSession, cookie.Value, &sessionID); err != nil {
				s.logger.WithError(err).Debug("discarding unreadable kiosk session cookie")
				sessionID = ""
			}
		}

		if !utils.ValidSessionID(sessionID) {
			var err error
			sessionID, err = utils.NewSessionID()
			if err != nil {
				s.logger.WithError(err).Error("failed to start kiosk session")
				s.internalServerError(w)
				return
			}

			encoded, err := s.cookie.Encode(cookieKioskSession, sessionID)
			if err != nil {
				s.logger.WithError(err).Error("failed to encode kiosk session")
				s.internalServerError(w)
				return
			}

			http.SetCookie(w, &http.Cookie{
				Name:     cookieKioskSession,
				Value:    encoded,
				HttpOnly: true,
				Secure:   s.config.IsProduction(),
				SameSite: http.SameSiteLaxMode,
				Path:     "/",
			})
		}

		ctx := context.WithValue(r.Context(), contextKeyKioskSession, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth sends browsers without staff tokens to the login page and
// binds the registrar client to this browser's token cookies. Tokens are
// verified by the registrar on each call, not here.
func (s *Service) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store := session.NewCookieStore(s.cookie, w, r, s.config.IsProduction(), s.logger)

		tokens := store.Get()
		if tokens.Access == "" && tokens.Refresh == "" {
			s.logger.Debug("no session tokens found")
			s.setRedirectCookie(w, r.URL.RequestURI(), time.Minute*5)
			s.redirectToLogin(w, r)
			return
		}

		claims, err := session.ReadClaims(tokens.Access)
		if err == nil && tokens.Refresh == "" && claims.Expired(time.Now()) {
			s.logger.Debug("access token expired with nothing to refresh it")
			store.Clear()
			s.setRedirectCookie(w, r.URL.RequestURI(), time.Minute*5)
			s.redirectToLogin(w, r)
			return
		}

		ctx := r.Context()
		ctx = context.WithValue(ctx, contextKeyAPI, s.api.WithTokens(store))

		if err == nil {
			ctx = context.WithValue(ctx, contextKeyUserID, claims.Subject)
			ctx = context.WithValue(ctx, contextKeyEmail, claims.Email)
			ctx = context.WithValue(ctx, contextKeyRole, claims.Role)

			s.logger.WithFields(logrus.Fields{
				"user_id": claims.Subject,
				"role":    claims.Role,
			}).Debug("authenticated staff user")
		} else {
			s.logger.WithError(err).Debug("access token claims unreadable")
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Service) StripTrailingSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path != "/" && strings.HasSuffix(path, "/") {
			newURL := *r.URL
			newURL.Path = strings.TrimSuffix(path, "/")

			http.Redirect(w, r, newURL.String(), http.StatusMovedPermanently)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func kioskSessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyKioskSession).(string)
	return id
}

// apiFromContext returns the token-bound client RequireAuth stored, or the
// shared client for public pages.
func (s *Service) apiFromContext(ctx context.Context) *api.Client {
	if c, ok := ctx.Value(contextKeyAPI).(*api.Client); ok {
		return c
	}
	return s.api
}
