package server

import (
	"context"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"fasttrack/internal/api"
	"fasttrack/internal/scanner"
	"fasttrack/internal/wizard"
	"fasttrack/pkg/types"

	"github.com/alexedwards/flow"
	"github.com/dustin/go-humanize"
	"github.com/go-playground/form/v4"
	"github.com/gorilla/securecookie"
	"github.com/sirupsen/logrus"
)

//go:embed templates static
var uiFS embed.FS
var decoder = form.NewDecoder()

type Service struct {
	logger    *logrus.Logger
	config    *types.Config
	templates *template.Template
	cookie    *securecookie.SecureCookie

	api    *api.Client
	drafts *wizard.Registry
	scans  *scanner.Router

	keysMu sync.Mutex
	keys   map[string]*kioskKeys

	server *http.Server
}

func New(
	config *types.Config,
	logger *logrus.Logger,
	client *api.Client,
	drafts *wizard.Registry,
	scans *scanner.Router,
) (*Service, error) {
	mux := flow.New()

	codec, err := newCookieCodec(config)
	if err != nil {
		return nil, err
	}

	s := &Service{
		logger: logger,
		config: config,
		cookie: codec,

		api:    client,
		drafts: drafts,
		scans:  scans,
		keys:   make(map[string]*kioskKeys),

		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.ServerPort),
			Handler:           mux,
			ReadTimeout:       time.Duration(config.ReadTimeoutSec) * time.Second,
			ReadHeaderTimeout: time.Duration(config.ReadTimeoutSec) * time.Second,
			WriteTimeout:      time.Duration(config.WriteTimeoutSec) * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
	}

	templates, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	s.templates = templates

	s.buildRouter(mux)

	return s, nil
}

// newCookieCodec uses the configured keys, or random ones for the life of
// the process when none are set.
func newCookieCodec(config *types.Config) (*securecookie.SecureCookie, error) {
	if config.CookieHashKey == "" {
		return securecookie.New(securecookie.GenerateRandomKey(64), securecookie.GenerateRandomKey(32)), nil
	}

	hashKey, err := base64.StdEncoding.DecodeString(config.CookieHashKey)
	if err != nil {
		return nil, fmt.Errorf("decode COOKIE_HASH_KEY: %w", err)
	}

	var blockKey []byte
	if config.CookieBlockKey != "" {
		blockKey, err = base64.StdEncoding.DecodeString(config.CookieBlockKey)
		if err != nil {
			return nil, fmt.Errorf("decode COOKIE_BLOCK_KEY: %w", err)
		}
	}

	return securecookie.New(hashKey, blockKey), nil
}

func (s *Service) Start() error {
	return s.server.ListenAndServe()
}

func (s *Service) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Service) Handler() http.Handler {
	return s.server.Handler
}

func (s *Service) buildRouter(r *flow.Mux) {
	r.Use(s.StripTrailingSlash)
	r.Use(s.LoggingMiddleware)

	r.HandleFunc("/healthz", s.handleHealth, http.MethodGet)

	r.Group(func(r *flow.Mux) {
		r.Use(s.KioskSession)

		r.HandleFunc("/", s.handleHome, http.MethodGet)

		r.HandleFunc("/kiosk/request", s.handleStartRequest, http.MethodGet)
		r.HandleFunc("/kiosk/request/step/:step", s.handleGetRequestStep, http.MethodGet)
		r.HandleFunc("/kiosk/request/step/:step", s.handlePostRequestStep, http.MethodPost)
		r.HandleFunc("/kiosk/request/documents/toggle", s.handlePostToggleDocument, http.MethodPost)
		r.HandleFunc("/kiosk/request/back", s.handlePostRequestBack, http.MethodPost)
		r.HandleFunc("/kiosk/request/submit", s.handlePostSubmitRequest, http.MethodPost)
		r.HandleFunc("/kiosk/receipt/:id", s.handleGetReceipt, http.MethodGet)

		r.HandleFunc("/kiosk/scan", s.handlePostScan, http.MethodPost)
		r.HandleFunc("/kiosk/scan/keys", s.handlePostScanKeys, http.MethodPost)
		r.HandleFunc("/kiosk/status", s.handleGetStatus, http.MethodGet)
		r.HandleFunc("/kiosk/status", s.handlePostStatus, http.MethodPost)
		r.HandleFunc("/kiosk/status/student", s.handlePostStatusByStudent, http.MethodPost)
	})

	r.HandleFunc("/admin/login", s.handleGetLogin, http.MethodGet)
	r.HandleFunc("/admin/login", s.handlePostLogin, http.MethodPost)
	r.HandleFunc("/admin/logout", s.handlePostLogout, http.MethodPost)

	r.Group(func(r *flow.Mux) {
		r.Use(s.RequireAuth)

		r.HandleFunc("/admin", s.handleGetDashboard, http.MethodGet)
		r.HandleFunc("/admin/requests", s.handleGetRequests, http.MethodGet)
		r.HandleFunc("/admin/requests/:id/status", s.handlePostRequestStatus, http.MethodPost)
	})

	staticRoot, err := fs.Sub(uiFS, "static")
	if err != nil {
		s.logger.WithError(err).Fatal("failed to mount static assets")
	}
	r.Handle("/static/...", http.StripPrefix("/static/", http.FileServer(http.FS(staticRoot))), http.MethodGet)
}

func loadTemplates() (*template.Template, error) {
	funcMap := template.FuncMap{
		"fieldError": func(errs types.FieldErrors, key string) string {
			return errs[key]
		},
		"purposeKey": wizard.PurposeKey,
		"when": func(raw string) string {
			for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05", "2006-01-02"} {
				if t, err := time.Parse(layout, raw); err == nil {
					return humanize.Time(t)
				}
			}
			return raw
		},
		"comma": func(n int) string {
			return humanize.Comma(int64(n))
		},
	}

	t := template.New("").Funcs(funcMap)
	err := fs.WalkDir(uiFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}

		data, err := fs.ReadFile(uiFS, path)
		if err != nil {
			return fmt.Errorf("read template %s: %w", path, err)
		}

		if _, err := t.Parse(string(data)); err != nil {
			return fmt.Errorf("parse template %s: %w", path, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return t, nil
}
