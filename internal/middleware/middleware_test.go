package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vasu1712/buddychat/internal/auth"
)

func whoami(w http.ResponseWriter, r *http.Request) {
	id, err := auth.UserID(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Write([]byte(id))
}

func newAuthenticator(t *testing.T) *auth.Authenticator {
	t.Helper()
	a, err := auth.NewAuthenticator("test-secret")
	require.NoError(t, err)
	return a
}

func TestAuth(t *testing.T) {
	a := newAuthenticator(t)
	token, err := a.Issue("alice", time.Hour)
	require.NoError(t, err)
	h := Auth(a, zap.NewNop().Sugar())(http.HandlerFunc(whoami))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		target string
		status int
		body   string
	}{
		{name: "header", target: "/", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, status: http.StatusOK, body: "alice"},
		{name: "query", target: "/?token=" + token, status: http.StatusOK, body: "alice"},
		{name: "missing", target: "/", status: http.StatusUnauthorized},
		{name: "wrong scheme", target: "/", setup: func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, status: http.StatusUnauthorized},
		{name: "garbage", target: "/", setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.setup != nil {
				tt.setup(req)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
			if tt.status == http.StatusUnauthorized {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, "UNAUTHENTICATED", body["code"])
			}
		})
	}
}

func TestUserRateLimiter(t *testing.T) {
	l := NewUserRateLimiter(60, 2, zap.NewNop().Sugar())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	h := l.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(auth.WithUser(req.Context(), user))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, do("alice"))
	assert.Equal(t, http.StatusNoContent, do("alice"))
	assert.Equal(t, http.StatusTooManyRequests, do("alice"))
	assert.Equal(t, http.StatusNoContent, do("bob"), "limits are per user")

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusNoContent, do("alice"))

	now = now.Add(visitorTTL + time.Second)
	l.sweep()
	_, ok := l.visitors.Load("alice")
	assert.False(t, ok)
}

func TestRateLimiterNeedsUser(t *testing.T) {
	l := NewUserRateLimiter(60, 1, zap.NewNop().Sugar())
	rec := httptest.NewRecorder()
	l.Handler(http.HandlerFunc(whoami)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCORS(t *testing.T) {
	h := CORS("http://localhost:5173")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/inbox", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/inbox", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestLoggingRecordsStatus(t *testing.T) {
	h := Logging(zap.NewNop().Sugar())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
