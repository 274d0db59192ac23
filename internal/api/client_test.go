package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fasttrack/internal/session"
	"fasttrack/pkg/types"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRegistrar accepts exactly one access token and rotates it on refresh.
type fakeRegistrar struct {
	mu           sync.Mutex
	validAccess  string
	refreshToken string
	nextAccess   string
	refreshFails bool
	refreshDelay time.Duration
	alwaysReject bool

	refreshCalls atomic.Int32
	dataCalls    atomic.Int32
}

func (f *fakeRegistrar) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/refresh/", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		time.Sleep(f.refreshDelay)

		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.refreshFails || body.RefreshToken != f.refreshToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Token is invalid or expired"}`))
			return
		}
		f.validAccess = f.nextAccess
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": f.nextAccess})
	})

	mux.HandleFunc("/admin-dashboard/home/", func(w http.ResponseWriter, r *http.Request) {
		f.dataCalls.Add(1)

		f.mu.Lock()
		ok := !f.alwaysReject && r.Header.Get("Authorization") == "Bearer "+f.validAccess
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"pending_requests":3,"completed_requests":9}`))
	})

	mux.HandleFunc("/lookup-rfid/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("rfid") == "0012345678" {
			_, _ = w.Write([]byte(`{"student_number":"20-1234-567","first_name":"Maria","last_name":"Santos","enrolled":true}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Student not found or card not registered."}`))
	})

	mux.HandleFunc("/check-request-by-student/", func(w http.ResponseWriter, r *http.Request) {
		var lookup types.StudentLookup
		_ = json.NewDecoder(r.Body).Decode(&lookup)
		if lookup.StudentNumber != "20-1234-567" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"No matching student found."}`))
			return
		}
		_, _ = w.Write([]byte(`{"student":{"first_name":"Maria","last_name":"Santos","student_number":"20-1234-567"},"requests":[{"request_number":"FAST-2026-42","request_status":"Released"}]}`))
	})

	mux.HandleFunc("/request-create/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"document_types":[{"doctype_id":1,"name":"Transcript of Records","price":"100.00"}],"purposes":[{"purpose_id":10,"description":"Employment"}]}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"requested_documents":["This field is required."]}`))
	})

	return mux
}

func newTestClient(t *testing.T, f *fakeRegistrar, store TokenStore) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	logger, _ := test.NewNullLogger()
	return New(srv.URL, WithTokenStore(store), WithLogger(logger), WithTimeout(5*time.Second))
}

func TestRefreshOnUnauthorized(t *testing.T) {
	f := &fakeRegistrar{validAccess: "fresh", refreshToken: "r1", nextAccess: "fresh"}
	store := session.NewMemoryStore(types.SessionTokens{Access: "stale", Refresh: "r1"})
	c := newTestClient(t, f, store)

	summary, err := c.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.PendingRequests)

	assert.Equal(t, int32(1), f.refreshCalls.Load())
	assert.Equal(t, int32(2), f.dataCalls.Load(), "one original call and one replay")
	assert.Equal(t, types.SessionTokens{Access: "fresh", Refresh: "r1"}, store.Get())
}

func TestReplayRejectedExpiresSession(t *testing.T) {
	f := &fakeRegistrar{refreshToken: "r1", nextAccess: "fresh", alwaysReject: true}
	store := session.NewMemoryStore(types.SessionTokens{Access: "stale", Refresh: "r1"})
	c := newTestClient(t, f, store)

	_, err := c.Dashboard(context.Background())
	require.ErrorIs(t, err, types.ErrSessionExpired)

	assert.Equal(t, int32(1), f.refreshCalls.Load())
	assert.Equal(t, int32(2), f.dataCalls.Load())
	assert.True(t, store.Get().IsZero())
}

func TestRefreshFailureExpiresSession(t *testing.T) {
	f := &fakeRegistrar{refreshToken: "r1", refreshFails: true}
	store := session.NewMemoryStore(types.SessionTokens{Access: "stale", Refresh: "r1"})
	c := newTestClient(t, f, store)

	_, err := c.Dashboard(context.Background())
	require.ErrorIs(t, err, types.ErrSessionExpired)

	assert.Equal(t, int32(1), f.refreshCalls.Load())
	assert.Equal(t, int32(1), f.dataCalls.Load(), "no replay after a failed refresh")
	assert.True(t, store.Get().IsZero())
}

func TestNoRefreshToken(t *testing.T) {
	f := &fakeRegistrar{validAccess: "fresh"}
	store := session.NewMemoryStore(types.SessionTokens{Access: "stale"})
	c := newTestClient(t, f, store)

	_, err := c.Dashboard(context.Background())
	require.ErrorIs(t, err, types.ErrSessionExpired)
	assert.Equal(t, int32(0), f.refreshCalls.Load())
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	f := &fakeRegistrar{refreshToken: "r1", nextAccess: "fresh", refreshDelay: 50 * time.Millisecond}
	store := session.NewMemoryStore(types.SessionTokens{Access: "stale", Refresh: "r1"})
	c := newTestClient(t, f, store)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Dashboard(context.Background())
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.refreshCalls.Load())
	assert.Equal(t, "fresh", store.Get().Access)
}

func TestNotFoundAndErrorBodies(t *testing.T) {
	c := newTestClient(t, &fakeRegistrar{}, session.NewMemoryStore(types.SessionTokens{}))

	identity, err := c.LookupRFID(context.Background(), "0012345678")
	require.NoError(t, err)
	assert.Equal(t, "Maria", identity.FirstName)
	assert.Equal(t, "20-1234-567", identity.Number())

	_, err = c.LookupRFID(context.Background(), "ffff")
	require.ErrorIs(t, err, types.ErrLookupNotFound)

	var apiErr *types.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Student not found or card not registered.", apiErr.Message)

	_, err = c.CreateRequest(context.Background(), &types.CreateRequestPayload{})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.JSONEq(t, `{"requested_documents":["This field is required."]}`, string(apiErr.Body))
}

func TestCheckRequestByStudent(t *testing.T) {
	c := newTestClient(t, &fakeRegistrar{}, nil)

	out, err := c.CheckRequestByStudent(context.Background(), types.StudentLookup{
		FirstName:     " Maria ",
		LastName:      "Santos",
		StudentNumber: " 20-1234-567 ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Santos", out.Student.LastName)
	assert.Equal(t, 1, out.TotalRequests)
	require.Len(t, out.Requests, 1)
	assert.Equal(t, 42, out.Requests[0].RequestID)
	assert.Equal(t, 75, out.Requests[0].Percent())

	_, err = c.CheckRequestByStudent(context.Background(), types.StudentLookup{
		FirstName:     "Maria",
		LastName:      "Santos",
		StudentNumber: "99-0000-000",
	})
	assert.ErrorIs(t, err, types.ErrLookupNotFound)
}

func TestReferenceDataDecodesStringPrices(t *testing.T) {
	c := newTestClient(t, &fakeRegistrar{}, nil)

	ref, err := c.ReferenceData(context.Background())
	require.NoError(t, err)
	require.Len(t, ref.DocumentTypes, 1)
	assert.Equal(t, types.MoneyFromFloat(100), ref.DocumentTypes[0].Price)
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	logger, _ := test.NewNullLogger()
	c := New(srv.URL, WithLogger(logger))

	_, err := c.Dashboard(context.Background())
	assert.ErrorIs(t, err, types.ErrNetwork)
}
