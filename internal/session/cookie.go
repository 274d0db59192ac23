package session

import (
	"net/http"
	"sync"

	"fasttrack/pkg/types"

	"github.com/gorilla/securecookie"
	"github.com/sirupsen/logrus"
)

const (
	CookieAccessToken  = "access_token"
	CookieRefreshToken = "refresh_token"

	refreshMaxAge = 7 * 24 * 60 * 60
	accessMaxAge  = 24 * 60 * 60
)

// CookieStore keeps one browser's tokens in encrypted HttpOnly cookies.
// A store is bound to a single request/response pair.
type CookieStore struct {
	codec  *securecookie.SecureCookie
	w      http.ResponseWriter
	secure bool
	logger *logrus.Logger

	mu     sync.Mutex
	tokens types.SessionTokens
}

func NewCookieStore(codec *securecookie.SecureCookie, w http.ResponseWriter, r *http.Request, secure bool, logger *logrus.Logger) *CookieStore {
	s := &CookieStore{
		codec:  codec,
		w:      w,
		secure: secure,
		logger: logger,
	}
	s.tokens.Access = s.read(r, CookieAccessToken)
	s.tokens.Refresh = s.read(r, CookieRefreshToken)
	return s
}

func (s *CookieStore) read(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}

	var value string
	if err := s.codec.Decode(name, cookie.Value, &value); err != nil {
		s.logger.WithError(err).WithField("cookie", name).Warn("failed to decrypt token cookie")
		return ""
	}
	return value
}

func (s *CookieStore) Get() types.SessionTokens {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

func (s *CookieStore) Set(tokens types.SessionTokens) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tokens.Access != s.tokens.Access {
		s.write(CookieAccessToken, tokens.Access, accessMaxAge)
	}
	if tokens.Refresh != s.tokens.Refresh {
		s.write(CookieRefreshToken, tokens.Refresh, refreshMaxAge)
	}
	s.tokens = tokens
}

func (s *CookieStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range []string{CookieAccessToken, CookieRefreshToken} {
		http.SetCookie(s.w, &http.Cookie{
			Name:     name,
			Value:    "",
			HttpOnly: true,
			Secure:   s.secure,
			SameSite: http.SameSiteLaxMode,
			Path:     "/",
			MaxAge:   -1,
		})
	}
	s.tokens = types.SessionTokens{}
}

func (s *CookieStore) write(name, value string, maxAge int) {
	if value == "" {
		return
	}

	encoded, err := s.codec.Encode(name, value)
	if err != nil {
		s.logger.WithError(err).WithField("cookie", name).Error("failed to encrypt token cookie")
		return
	}

	http.SetCookie(s.w, &http.Cookie{
		Name:     name,
		Value:    encoded,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   maxAge,
	})
}
