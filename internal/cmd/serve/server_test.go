package serve

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chirino/solace-bridge/internal/config"
)

func testServerConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Port = 0
	cfg.BrokerType = "memory"
	cfg.BlobType = "memory"
	cfg.EncryptionEnabled = false
	cfg.TransformEnabled = true
	cfg.DLQListenerEnabled = true
	return cfg
}

func startTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := testServerConfig()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := StartServer(ctx, &cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	})
	return srv
}

func TestServerWiresAllSubsystems(t *testing.T) {
	srv := startTestServer(t)

	for _, path := range []string{"/health", "/ready", "/metrics", "/api/messages/health", "/api/storage/status", "/api/exclusions/stats"} {
		w := httptest.NewRecorder()
		srv.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestServerEndToEndSend(t *testing.T) {
	srv := startTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/messages",
		strings.NewReader(`{"content":":20:FT1","destination":"orders/in"}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"SENT"`)

	// The record lands in storage asynchronously.
	require.Eventually(t, func() bool {
		msgs, err := srv.Records.ListMessages(context.Background(), 10)
		return err == nil && len(msgs) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerRejectsUnknownBackends(t *testing.T) {
	ctx := context.Background()

	cfg := testServerConfig()
	cfg.BrokerType = "carrier-pigeon"
	_, err := StartServer(ctx, &cfg)
	require.Error(t, err)

	cfg = testServerConfig()
	cfg.BlobType = "clay-tablet"
	_, err = StartServer(ctx, &cfg)
	require.Error(t, err)

	cfg = testServerConfig()
	cfg.EncryptionEnabled = true
	cfg.KeywrapType = "local"
	cfg.LocalMasterKey = "too short"
	_, err = StartServer(ctx, &cfg)
	require.Error(t, err)
}
