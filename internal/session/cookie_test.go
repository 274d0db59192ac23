package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"fasttrack/pkg/types"

	"github.com/gorilla/securecookie"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieStoreRoundTrip(t *testing.T) {
	codec := securecookie.New(securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32))
	logger, _ := test.NewNullLogger()

	rec := httptest.NewRecorder()
	store := NewCookieStore(codec, rec, httptest.NewRequest(http.MethodGet, "/", nil), false, logger)
	assert.True(t, store.Get().IsZero())

	store.Set(types.SessionTokens{Access: "a1", Refresh: "r1"})
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		assert.True(t, c.HttpOnly)
		assert.NotEqual(t, "a1", c.Value)
		assert.NotEqual(t, "r1", c.Value)
	}

	next := httptest.NewRequest(http.MethodGet, "/admin", nil)
	for _, c := range cookies {
		next.AddCookie(c)
	}

	rec = httptest.NewRecorder()
	store = NewCookieStore(codec, rec, next, false, logger)
	assert.Equal(t, types.SessionTokens{Access: "a1", Refresh: "r1"}, store.Get())

	// only the rotated access token is written back
	store.Set(types.SessionTokens{Access: "a2", Refresh: "r1"})
	cookies = rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieAccessToken, cookies[0].Name)

	rec = httptest.NewRecorder()
	store = NewCookieStore(codec, rec, next, false, logger)
	store.Clear()
	assert.True(t, store.Get().IsZero())
	for _, c := range rec.Result().Cookies() {
		assert.Equal(t, -1, c.MaxAge)
	}
}

func TestCookieStoreIgnoresForgedCookies(t *testing.T) {
	codec := securecookie.New(securecookie.GenerateRandomKey(32), nil)
	logger, _ := test.NewNullLogger()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieAccessToken, Value: "not-signed"})

	store := NewCookieStore(codec, httptest.NewRecorder(), r, false, logger)
	assert.Empty(t, store.Get().Access)
}
