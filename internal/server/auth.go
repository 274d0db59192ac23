package server

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"fasttrack/internal/session"
	"fasttrack/pkg/types"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
	})
	return v
}

func (s *Service) handleGetLogin(w http.ResponseWriter, r *http.Request) {
	store := session.NewCookieStore(s.cookie, w, r, s.config.IsProduction(), s.logger)
	if !store.Get().IsZero() {
		s.logger.Debug("staff user already signed in, redirecting to dashboard")
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
		return
	}

	data := &types.LoginPageData{
		BasePageData: types.BasePageData{
			Title:  "Staff sign in",
			Notice: strings.TrimSpace(r.URL.Query().Get("notice")),
			Error:  strings.TrimSpace(r.URL.Query().Get("error")),
		},
	}

	if err := s.renderTemplate(w, r, "page.admin.login", data); err != nil {
		s.logger.WithError(err).Error("failed to render login page")
		s.internalServerError(w)
		return
	}
}

func (s *Service) handlePostLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data := &types.LoginPageData{
		BasePageData: types.BasePageData{Title: "Staff sign in"},
		FieldErrors:  types.FieldErrors{},
	}

	if err := r.ParseForm(); err != nil {
		s.logger.WithError(err).Error("failed to parse form")
		data.Error = "The form could not be read. Please try again."
		s.renderStatus(w, r, http.StatusBadRequest, "page.admin.login", data)
		return
	}

	var req types.LoginRequest
	if err := decoder.Decode(&req, r.PostForm); err != nil {
		s.logger.WithError(err).Error("failed to decode login form")
		s.internalServerError(w)
		return
	}
	req.EmailAddress = strings.TrimSpace(req.EmailAddress)
	data.Email = req.EmailAddress

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				switch {
				case fe.Field() == "email_address" && fe.Tag() == "email":
					data.FieldErrors[fe.Field()] = "Invalid email address."
				case fe.Field() == "email_address":
					data.FieldErrors[fe.Field()] = "Email is required."
				default:
					data.FieldErrors[fe.Field()] = "Password is required."
				}
			}
		}
		s.renderStatus(w, r, http.StatusUnprocessableEntity, "page.admin.login", data)
		return
	}

	store := session.NewCookieStore(s.cookie, w, r, s.config.IsProduction(), s.logger)
	resp, err := s.api.WithTokens(store).Login(ctx, req)
	if err != nil {
		var apiErr *types.APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			s.logger.WithField("status", apiErr.Status).Info("staff login rejected")
			data.Error = "Invalid email or password."
			s.renderStatus(w, r, http.StatusUnauthorized, "page.admin.login", data)
			return
		}

		s.logger.WithError(err).Error("failed to log in staff user")
		data.Error = msgRegistrarUnreachable
		s.renderStatus(w, r, http.StatusBadGateway, "page.admin.login", data)
		return
	}

	s.logger.WithField("user_id", resp.UserID).Info("staff user logged in")

	if path, ok := redirectTarget(r); ok {
		s.clearRedirectCookie(w)
		http.Redirect(w, r, path, http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (s *Service) handlePostLogout(w http.ResponseWriter, r *http.Request) {
	store := session.NewCookieStore(s.cookie, w, r, s.config.IsProduction(), s.logger)
	s.api.WithTokens(store).Logout()

	s.redirectWithNotice(w, r, "/admin/login", "You have been signed out.")
}
