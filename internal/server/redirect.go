package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fasttrack/pkg/types"
)

func (s *Service) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
}

// handleSessionExpired sends the browser back to login when the registrar
// refused to refresh its tokens. It reports whether it wrote a response.
func (s *Service) handleSessionExpired(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, types.ErrSessionExpired) {
		return false
	}

	s.logger.WithField("path", r.URL.Path).Info("staff session expired")
	if r.Method == http.MethodGet {
		s.setRedirectCookie(w, r.URL.RequestURI(), time.Minute*5)
	}

	v := url.Values{}
	v.Set("error", "Your session has expired. Please sign in again.")
	http.Redirect(w, r, "/admin/login?"+v.Encode(), http.StatusSeeOther)
	return true
}

func (s *Service) setRedirectCookie(w http.ResponseWriter, path string, age time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieRedirect,
		Value:    path,
		HttpOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   int(age.Seconds()),
	})
}

func (s *Service) clearRedirectCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieRedirect,
		Value:    "",
		HttpOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   -1,
	})
}

// redirectTarget only follows local admin paths.
func redirectTarget(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(cookieRedirect)
	if err != nil {
		return "", false
	}

	u, err := url.Parse(cookie.Value)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/admin") {
		return "", false
	}
	return u.RequestURI(), true
}
