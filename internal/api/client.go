// Package api is the registrar REST client used by both frontends. Every
// outgoing call carries the current bearer token, and a 401 triggers at most
// one refresh-and-replay cycle per request.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fasttrack/pkg/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const refreshPath = "/refresh/"

// TokenStore holds the session tokens for one browser or kiosk process.
// The client is the only reader of the stored tokens.
type TokenStore interface {
	Get() types.SessionTokens
	Set(types.SessionTokens)
	Clear()
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenStore
	logger     *logrus.Logger

	// shared across WithTokens copies so concurrent 401s on the same
	// refresh token wait on one refresh call
	refreshes *singleflight.Group
}

type Option func(*Client)

func WithTokenStore(store TokenStore) Option {
	return func(c *Client) { c.tokens = store }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger:    logrus.StandardLogger(),
		refreshes: new(singleflight.Group),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// WithTokens returns a client that shares this client's transport and
// refresh coordination but reads and writes the given token store.
func (c *Client) WithTokens(store TokenStore) *Client {
	cp := *c
	cp.tokens = store
	return &cp
}

type call struct {
	method string
	path   string
	body   any
	out    any

	// login and refresh must never trigger a refresh themselves
	noRefresh bool
}

func (c *Client) do(ctx context.Context, cl call) error {
	var payload []byte
	if cl.body != nil {
		b, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s body: %w", cl.method, cl.path, err)
		}
		payload = b
	}

	sent := c.accessToken()
	resp, err := c.send(ctx, cl.method, cl.path, payload, sent)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && !cl.noRefresh && c.tokens != nil {
		discard(resp)

		access, err := c.refresh(ctx, sent)
		if err != nil {
			return err
		}

		resp, err = c.send(ctx, cl.method, cl.path, payload, access)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusUnauthorized {
			discard(resp)
			c.tokens.Clear()
			c.logger.WithFields(logrus.Fields{
				"method": cl.method,
				"path":   cl.path,
			}).Warn("replayed request rejected after refresh, session expired")
			return types.ErrSessionExpired
		}
	}
	defer resp.Body.Close()

	return decodeResponse(resp, cl.out)
}

func (c *Client) accessToken() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Get().Access
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, access string) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s %s: %w", method, path, err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	entry := c.logger.WithFields(logrus.Fields{
		"request_id":  requestID,
		"method":      method,
		"path":        path,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("registrar api call failed")
		return nil, fmt.Errorf("%w: %s %s: %w", types.ErrNetwork, method, path, err)
	}

	entry.WithField("status", resp.StatusCode).Debug("registrar api call")
	return resp, nil
}

// refresh returns an access token usable for replaying a request that was
// rejected while carrying stale.
func (c *Client) refresh(ctx context.Context, stale string) (string, error) {
	current := c.tokens.Get()
	if current.Refresh == "" {
		c.tokens.Clear()
		return "", types.ErrSessionExpired
	}

	v, err, shared := c.refreshes.Do(current.Refresh, func() (any, error) {
		// a refresh that finished just before this one started already
		// rotated the access token
		if latest := c.tokens.Get(); latest.Access != "" && latest.Access != stale {
			return latest.Access, nil
		}

		access, err := c.requestAccessToken(context.WithoutCancel(ctx), current.Refresh)
		if err != nil {
			return nil, err
		}
		c.tokens.Set(types.SessionTokens{Access: access, Refresh: current.Refresh})
		return access, nil
	})
	if err != nil {
		c.tokens.Clear()
		c.logger.WithError(err).Warn("token refresh failed, session expired")
		return "", fmt.Errorf("%w: %w", types.ErrSessionExpired, err)
	}

	access := v.(string)
	if shared {
		c.tokens.Set(types.SessionTokens{Access: access, Refresh: current.Refresh})
	}
	return access, nil
}

func (c *Client) requestAccessToken(ctx context.Context, refreshToken string) (string, error) {
	var out types.RefreshResponse
	err := c.do(ctx, call{
		method:    http.MethodPost,
		path:      refreshPath,
		body:      map[string]string{"refresh_token": refreshToken},
		out:       &out,
		noRefresh: true,
	})
	if err != nil {
		return "", err
	}

	token := out.Token()
	if token == "" {
		return "", errors.New("refresh response carried no access token")
	}
	return token, nil
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return &types.APIError{
			Status:  resp.StatusCode,
			Message: errorMessage(body),
			Body:    body,
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode registrar response: %w", err)
	}
	return nil
}

// errorMessage pulls the human readable part out of the registrar's error
// envelopes ({"error": ...} or {"detail": ...}); anything else is returned
// as-is.
func errorMessage(body []byte) string {
	var envelope struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error != "" {
			return envelope.Error
		}
		if envelope.Detail != "" {
			return envelope.Detail
		}
	}
	return strings.TrimSpace(string(body))
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
