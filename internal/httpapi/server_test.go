package httpapi

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fmenezes/anxiousbot/internal/venue"
)

func TestServer_Healthz_ReportsOKAndVenueLists(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.Port = 0
	reg := venue.NewRegistry([]string{"kraken", "binance"})

	s, err := newTestServer(t, reg, func() bool { return true })
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
	require.Contains(t, rec.Body.String(), `"available_venues":[`)
	require.Contains(t, rec.Body.String(), `"kraken"`)
	require.Contains(t, rec.Body.String(), `"binance"`)
}

func TestServer_Readyz_ReportsUnavailableUntilReady(t *testing.T) {
	ready := false
	s, err := newTestServer(t, venue.NewRegistry(nil), func() bool { return ready })
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready = true
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Metrics_ServesPrometheusFormat(t *testing.T) {
	s, err := newTestServer(t, venue.NewRegistry(nil), func() bool { return true })
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

// newTestServer finds a free port itself, since NewServer probes for one.
func newTestServer(t *testing.T, reg *venue.Registry, ready func() bool) (*Server, error) {
	t.Helper()
	cfg := DefaultServerConfig()
	cfg.Port = freePort(t)
	return NewServer(cfg, reg, ready, zerolog.Nop())
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
