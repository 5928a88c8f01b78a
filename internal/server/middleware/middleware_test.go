package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name       string
		serviceKey string
		header     string
		value      string
		wantStatus int
	}{
		{
			name:       "disabled passes everything through",
			serviceKey: "",
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid bearer token",
			serviceKey: "svc-key",
			header:     "Authorization",
			value:      "Bearer svc-key",
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid api key header",
			serviceKey: "svc-key",
			header:     "X-API-Key",
			value:      "svc-key",
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing token",
			serviceKey: "svc-key",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong token",
			serviceKey: "svc-key",
			header:     "Authorization",
			value:      "Bearer nope",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "non bearer scheme is ignored",
			serviceKey: "svc-key",
			header:     "Authorization",
			value:      "Basic c3ZjLWtleQ==",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Auth(tt.serviceKey)(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}

func TestRateLimit(t *testing.T) {
	tests := []struct {
		name       string
		limiter    *stubLimiter
		wantStatus int
	}{
		{
			name:       "allowed",
			limiter:    &stubLimiter{allow: true},
			wantStatus: http.StatusOK,
		},
		{
			name:       "denied",
			limiter:    &stubLimiter{allow: false},
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "limiter outage fails open",
			limiter:    &stubLimiter{allow: false, err: errors.New("redis: connection refused")},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RateLimit(tt.limiter, 100, time.Second)(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			req.RemoteAddr = "203.0.113.7:52100"
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			require.Equal(t, []string{"ratelimit:api:203.0.113.7"}, tt.limiter.keys)
			if tt.wantStatus == http.StatusTooManyRequests {
				require.Equal(t, "1", rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr fallback",
			remoteAddr: "203.0.113.7:52100",
			want:       "203.0.113.7",
		},
		{
			name:       "first hop of x-forwarded-for wins",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.9, 10.0.0.1"},
			want:       "198.51.100.9",
		},
		{
			name:       "x-real-ip when no forwarded chain",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": "198.51.100.10"},
			want:       "198.51.100.10",
		},
		{
			name:       "unparseable remote addr passes through",
			remoteAddr: "bad-addr",
			want:       "bad-addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.want, extractClientIP(req))
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"https://shop.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/auctions", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://shop.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	// Unknown origins get no CORS grant.
	req = httptest.NewRequest(http.MethodOptions, "/api/auctions", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
