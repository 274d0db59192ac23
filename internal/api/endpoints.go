package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"fasttrack/internal/utils"
	"fasttrack/pkg/types"
)

// ReferenceData calls GET /request-create/.
func (c *Client) ReferenceData(ctx context.Context) (*types.ReferenceData, error) {
	var out types.ReferenceData
	if err := c.do(ctx, call{method: http.MethodGet, path: "/request-create/", out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateRequest calls POST /request-create/.
func (c *Client) CreateRequest(ctx context.Context, payload *types.CreateRequestPayload) (*types.Receipt, error) {
	var out types.Receipt
	if err := c.do(ctx, call{method: http.MethodPost, path: "/request-create/", body: payload, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Receipt calls GET /request-receipt/{id}/.
func (c *Client) Receipt(ctx context.Context, requestID int) (*types.Receipt, error) {
	var out types.Receipt
	path := fmt.Sprintf("/request-receipt/%d/", requestID)
	if err := c.do(ctx, call{method: http.MethodGet, path: path, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// LookupRFID calls GET /lookup-rfid/?rfid={id}. An unknown card, or a
// response with no identity fields, is types.ErrLookupNotFound.
func (c *Client) LookupRFID(ctx context.Context, rfid string) (*types.ScannedIdentity, error) {
	var out types.ScannedIdentity
	path := "/lookup-rfid/?" + url.Values{"rfid": {rfid}}.Encode()
	if err := c.do(ctx, call{method: http.MethodGet, path: path, out: &out}); err != nil {
		return nil, err
	}
	if out.IsEmpty() {
		return nil, fmt.Errorf("rfid %s: %w", rfid, types.ErrLookupNotFound)
	}
	return &out, nil
}

// CheckRequestQR calls GET /check-request-qr/?id={id}.
func (c *Client) CheckRequestQR(ctx context.Context, requestID int) (*types.RequestRecord, error) {
	var out types.RequestRecord
	path := "/check-request-qr/?" + url.Values{"id": {strconv.Itoa(requestID)}}.Encode()
	if err := c.do(ctx, call{method: http.MethodGet, path: path, out: &out}); err != nil {
		return nil, err
	}
	if out.RequestID == 0 {
		out.RequestID = requestID
	}
	normalizeRecord(&out)
	return &out, nil
}

// CheckRequestByStudent calls POST /check-request-by-student/. A student
// with no match, or no requests, is types.ErrLookupNotFound.
func (c *Client) CheckRequestByStudent(ctx context.Context, lookup types.StudentLookup) (*types.StudentRequests, error) {
	var out types.StudentRequests
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/check-request-by-student/",
		body:   lookup.Trimmed(),
		out:    &out,
	})
	if err != nil {
		return nil, err
	}

	for i := range out.Requests {
		r := &out.Requests[i]
		if r.RequestID == 0 {
			r.RequestID, _ = types.ParseRequestCode(r.RequestNumber)
		}
		normalizeRecord(r)
	}
	if out.TotalRequests == 0 {
		out.TotalRequests = len(out.Requests)
	}
	return &out, nil
}

// normalizeRecord fills the completion percent from the status when the
// registrar left it out.
func normalizeRecord(r *types.RequestRecord) {
	if r.CompletionPercent == nil {
		r.CompletionPercent = utils.IntPtr(r.Status().CompletionPercent())
	}
}

// Login calls POST /login/ and stores the issued tokens.
func (c *Client) Login(ctx context.Context, req types.LoginRequest) (*types.LoginResponse, error) {
	var out types.LoginResponse
	err := c.do(ctx, call{
		method:    http.MethodPost,
		path:      "/login/",
		body:      req,
		out:       &out,
		noRefresh: true,
	})
	if err != nil {
		return nil, err
	}

	if out.AccessToken == "" {
		return nil, fmt.Errorf("login response carried no access token")
	}

	if c.tokens != nil {
		c.tokens.Set(out.Tokens())
	}
	return &out, nil
}

// Logout drops the stored tokens. The registrar keeps no server-side
// session for the frontend to revoke.
func (c *Client) Logout() {
	if c.tokens != nil {
		c.tokens.Clear()
	}
}

// Dashboard calls GET /admin-dashboard/home/.
func (c *Client) Dashboard(ctx context.Context) (*types.DashboardSummary, error) {
	var out types.DashboardSummary
	if err := c.do(ctx, call{method: http.MethodGet, path: "/admin-dashboard/home/", out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRequests calls GET /admin-dashboard/request-management/.
func (c *Client) ListRequests(ctx context.Context, filter types.RequestFilter) ([]types.RequestRecord, error) {
	q := url.Values{}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	if filter.StatusID.Valid() {
		q.Set("status_id", strconv.Itoa(int(filter.StatusID)))
	}

	path := "/admin-dashboard/request-management/"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	out := make([]types.RequestRecord, 0)
	if err := c.do(ctx, call{method: http.MethodGet, path: path, out: &out}); err != nil {
		return nil, err
	}
	for i := range out {
		normalizeRecord(&out[i])
	}
	return out, nil
}

// UpdateRequestStatus calls PATCH /admin-dashboard/update-request-status/{id}/.
func (c *Client) UpdateRequestStatus(ctx context.Context, requestID int, payload types.UpdateStatusPayload) error {
	if !payload.StatusID.Valid() {
		return fmt.Errorf("invalid status id %d", payload.StatusID)
	}

	path := fmt.Sprintf("/admin-dashboard/update-request-status/%d/", requestID)
	return c.do(ctx, call{method: http.MethodPatch, path: path, body: payload})
}
