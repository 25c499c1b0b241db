package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"partyserver-client/internal/clients_api/partyserver"
	"partyserver-client/internal/infra/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	method string
	path   string
	auth   string
	wallet string
	body   string
}

type recorder struct {
	mu   sync.Mutex
	reqs []captured
}

func (r *recorder) last(t *testing.T) captured {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.reqs)
	return r.reqs[len(r.reqs)-1]
}

func newServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.reqs = append(rec.reqs, captured{
			method: r.Method,
			path:   r.URL.EscapedPath(),
			auth:   r.Header.Get("Authorization"),
			wallet: r.Header.Get("X-Wallet-Address"),
			body:   string(body),
		})
		rec.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func reply(body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

// runCLI executes a fresh command tree isolated from the developer's environment
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, name := range []string{
		"PARTYSERVER_BASE_URL", "PARTYSERVER_URL", "NEXT_PUBLIC_PARTYSERVER_URL", "PARTYSERVER_TIMEOUT_MS",
		"PARTYSERVER_HEADERS", "PARTYSERVER_ROUTE_RATE_LIMITS", "ADMIN_TOKEN", "ADMIN_WALLET_ADDRESS", "WALLET_ADDRESS",
		"PARTYSERVER_DATA_DIR", "PARTYSERVER_OUT_DIR", "PARTYSERVER_LOG_DIR", "LOG_LEVEL",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args,
		"--env-file", filepath.Join(t.TempDir(), ".env"),
		"--log-dir", t.TempDir(),
	))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHealthCommand(t *testing.T) {
	srv, rec := newServer(t, reply(`{"success":true,"data":{"status":"healthy","timestamp":1700000000000,"version":"1.2.3","uptime":12.5,"services":{"tarobase":{"status":"connected","latency":4},"partyserver":{"status":"running","activeConnections":2}}},"timestamp":1700000000000}`))

	out, err := runCLI(t, "health", "--base-url", srv.URL, "--token", "tok", "--wallet", "w")
	require.NoError(t, err)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "1.2.3", health["version"])

	got := rec.last(t)
	assert.Equal(t, "/health", got.path)
	// public route never carries admin headers
	assert.Empty(t, got.auth)
	assert.Empty(t, got.wallet)
}

func TestHealthCommand_FailUnhealthy(t *testing.T) {
	srv, _ := newServer(t, reply(`{"success":true,"data":{"status":"degraded","timestamp":1,"version":"1","uptime":1,"services":{"tarobase":{"status":"disconnected"},"partyserver":{"status":"running","activeConnections":0}}},"timestamp":1}`))

	_, err := runCLI(t, "health", "--base-url", srv.URL)
	require.NoError(t, err)

	_, err = runCLI(t, "health", "--base-url", srv.URL, "--fail-unhealthy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "degraded")
}

func TestHealthCommand_RequiresBaseURL(t *testing.T) {
	_, err := runCLI(t, "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PARTYSERVER_BASE_URL")
}

func TestAgentsStatus_SendsAdminHeaders(t *testing.T) {
	srv, rec := newServer(t, reply(`{"success":true,"data":{"agentId":"a 1","running":true},"timestamp":1}`))

	out, err := runCLI(t, "agents", "status", "a 1", "--base-url", srv.URL, "--token", "tok", "--wallet", "So1Wallet")
	require.NoError(t, err)
	assert.JSONEq(t, `{"agentId":"a 1","running":true}`, out)

	got := rec.last(t)
	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "/agents/a%201/status", got.path)
	assert.Equal(t, "Bearer tok", got.auth)
	assert.Equal(t, "So1Wallet", got.wallet)
}

func TestAgentsTrades_WithoutCredential(t *testing.T) {
	srv, rec := newServer(t, reply(`{"success":true,"data":[],"timestamp":1}`))

	out, err := runCLI(t, "agents", "trades", "a1", "--base-url", srv.URL, "--data-dir", t.TempDir())
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)

	got := rec.last(t)
	assert.Equal(t, "/agents/a1/trades", got.path)
	assert.Empty(t, got.auth)
	assert.Empty(t, got.wallet)
}

func TestAgentsTrades_Save(t *testing.T) {
	srv, _ := newServer(t, reply(`{"success":true,"data":[{"id":"t1","side":"buy"}],"timestamp":1}`))
	outDir := t.TempDir()

	_, err := runCLI(t, "agents", "trades", "a1", "--save", "--out-dir", outDir, "--base-url", srv.URL)
	require.NoError(t, err)

	files, err := filepath.Glob(filepath.Join(outDir, "getAgentTrades_a1_*.json"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	saved, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"t1","side":"buy"}]`, string(saved))
}

func TestNewClient_RouteRateLimitsFromConfig(t *testing.T) {
	srv, rec := newServer(t, reply(`{"success":true,"data":{},"timestamp":1}`))
	app := &cli{cfg: &config.Config{
		API: config.APIConfig{BaseURL: srv.URL, TimeoutMs: 50, RouteRateLimits: true},
		App: config.AppConfig{DataDir: t.TempDir()},
	}}

	client, err := app.newClient()
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := client.StopAgent(context.Background(), nil)
		require.NoError(t, err)
	}
	_, err = client.StopAgent(context.Background(), nil)
	assert.ErrorIs(t, err, partyserver.ErrTimeout)
	assert.Len(t, rec.reqs, 10)
}

func TestAgentsStart_Body(t *testing.T) {
	srv, rec := newServer(t, reply(`{"success":true,"data":{"started":true},"timestamp":1}`))

	out, err := runCLI(t, "agents", "start", "--body", `{"agentId":"a1"}`, "--base-url", srv.URL, "--token", "t", "--wallet", "w")
	require.NoError(t, err)
	assert.JSONEq(t, `{"started":true}`, out)

	got := rec.last(t)
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/agents/start", got.path)
	assert.JSONEq(t, `{"agentId":"a1"}`, got.body)
}

func TestAgentsStop_BodyFile(t *testing.T) {
	srv, rec := newServer(t, reply(`{"success":true,"timestamp":1}`))
	path := filepath.Join(t.TempDir(), "stop.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"agentId":"a2"}`), 0644))

	out, err := runCLI(t, "agents", "stop", "--body-file", path, "--base-url", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "null\n", out)
	assert.JSONEq(t, `{"agentId":"a2"}`, rec.last(t).body)
}

func TestAgentsValidate_NoBody(t *testing.T) {
	srv, rec := newServer(t, reply(`{"success":true,"data":{"valid":true},"timestamp":1}`))

	_, err := runCLI(t, "agents", "validate", "--base-url", srv.URL)
	require.NoError(t, err)
	assert.Empty(t, rec.last(t).body)
}

func TestAgentsStart_InvalidBody(t *testing.T) {
	srv, rec := newServer(t, reply(`{"success":true,"timestamp":1}`))

	_, err := runCLI(t, "agents", "start", "--body", "{not json", "--base-url", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")
	assert.Empty(t, rec.reqs)
}

func TestAgents_ApplicationError(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"AGENT_NOT_FOUND","message":"no such agent"},"timestamp":1}`))
	})

	out, err := runCLI(t, "agents", "status", "missing", "--base-url", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGENT_NOT_FOUND")
	assert.Empty(t, out)
}

func TestAgents_RetriesFlag(t *testing.T) {
	var hits int32
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":"UNAVAILABLE","message":"restarting"},"timestamp":1}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"running":false},"timestamp":1}`))
	})

	_, err := runCLI(t, "agents", "status", "a1", "--base-url", srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	out, err := runCLI(t, "agents", "status", "a1", "--base-url", srv.URL, "--retries", "2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"running":false}`, out)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestRoutesCommand_Offline(t *testing.T) {
	out, err := runCLI(t, "routes")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 7)
	assert.Contains(t, lines[0], "METHOD")
	assert.Contains(t, lines[0], "LIMIT")
	assert.Contains(t, lines[1], "/health")
	assert.Contains(t, lines[1], "100/60s")
	assert.Contains(t, out, "/agents/{id}/trades")
}

func TestAuthSaveStatusClear(t *testing.T) {
	dataDir := t.TempDir()

	_, err := runCLI(t, "auth", "save", "--data-dir", dataDir)
	require.Error(t, err)

	out, err := runCLI(t, "auth", "save", "--token", "saved-token-1234567890", "--wallet", "So1Saved", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "admin_auth.json")

	out, err = runCLI(t, "auth", "status", "--data-dir", dataDir)
	require.NoError(t, err)
	var status authStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "So1Saved", status.WalletAddress)
	assert.Equal(t, "save...7890", status.Token)
	assert.False(t, status.Expired)

	// saved credential is used when none is passed
	srv, rec := newServer(t, reply(`{"success":true,"data":{},"timestamp":1}`))
	_, err = runCLI(t, "agents", "status", "a1", "--base-url", srv.URL, "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Equal(t, "Bearer saved-token-1234567890", rec.last(t).auth)
	assert.Equal(t, "So1Saved", rec.last(t).wallet)

	// explicit flags win over the file
	_, err = runCLI(t, "agents", "status", "a1", "--base-url", srv.URL, "--data-dir", dataDir, "--token", "flag", "--wallet", "fw")
	require.NoError(t, err)
	assert.Equal(t, "Bearer flag", rec.last(t).auth)

	_, err = runCLI(t, "auth", "clear", "--data-dir", dataDir)
	require.NoError(t, err)
	_, err = runCLI(t, "auth", "status", "--data-dir", dataDir)
	assert.Error(t, err)
}

func TestReadBody(t *testing.T) {
	body, err := readBody(strings.NewReader(`{"a":1}`), "", "-")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(body))

	body, err = readBody(nil, "", "")
	require.NoError(t, err)
	assert.Nil(t, body)

	_, err = readBody(strings.NewReader("  "), "", "-")
	assert.Error(t, err)

	_, err = readBody(nil, "", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "****", maskToken("short"))
	assert.Equal(t, "abcd...wxyz", maskToken("abcdefghijklmnopqrstuvwxyz"))
}
