// Package testutils holds helpers shared by the server-level and
// integration tests.
package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/docfeat/internal/config"
	"github.com/conneroisu/docfeat/internal/server"
)

// WriteManifest writes a provider manifest into dir and returns its path.
func WriteManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "docfeat.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestConfig returns a config bound to a random loopback port with fast
// manifest debouncing.
func TestConfig(manifestPath string) *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Manifest.Path = manifestPath
	cfg.Manifest.Debounce = 20 * time.Millisecond
	cfg.Transport.RequestTimeout = time.Second
	return cfg
}

// RunningServer is a server started by StartServer.
type RunningServer struct {
	*server.Server
	BaseURL string
	WSURL   string
}

// StartServer runs a server until the test ends and waits for it to bind.
func StartServer(t *testing.T, cfg *config.Config) *RunningServer {
	t.Helper()
	s, err := server.New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("server exited: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})

	require.Eventually(t, func() bool { return s.Addr() != nil }, 2*time.Second, 10*time.Millisecond)
	addr := s.Addr().String()
	WaitHealthy(t, "http://"+addr, 2*time.Second)
	return &RunningServer{Server: s, BaseURL: "http://" + addr, WSURL: "ws://" + addr + "/ws"}
}

// WaitHealthy polls /healthz until it answers 200 or timeout passes.
func WaitHealthy(t *testing.T, baseURL string, timeout time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, timeout, 20*time.Millisecond, "server at %s never became healthy", baseURL)
}

// PostJSON posts body as JSON and decodes the response into T. Non-2xx
// responses fail the test.
func PostJSON[T any](t *testing.T, url string, body any) T {
	t.Helper()
	var out T
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 2, resp.StatusCode/100, "POST %s: status %d", url, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// GetJSON fetches url and decodes the response into T.
func GetJSON[T any](t *testing.T, url string) T {
	t.Helper()
	var out T
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "GET %s", url)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}
