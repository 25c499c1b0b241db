package partyserver

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const healthEnvelope = `{
	"success": true,
	"data": {
		"status": "healthy",
		"timestamp": 1700000000000,
		"version": "1.4.0",
		"uptime": 3600.5,
		"services": {
			"tarobase": {"status": "connected", "latency": 12},
			"partyserver": {"status": "running", "activeConnections": 3}
		}
	},
	"timestamp": 1700000000000
}`

func TestHealth(t *testing.T) {
	srv := newFakeServer(t, http.StatusOK, healthEnvelope)
	c := newTestClient(t, Config{BaseURL: srv.URL, AdminAuth: &AdminAuth{Token: "tok", WalletAddress: "w"}})

	health, err := c.Health(context.Background())
	require.NoError(t, err)

	got := srv.last(t)
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/health", got.Path)
	assert.Empty(t, got.Body)
	assert.Empty(t, got.Header.Get("Authorization"))

	assert.True(t, health.IsHealthy())
	assert.Equal(t, int64(1700000000000), health.Timestamp)
	assert.Equal(t, "1.4.0", health.Version)
	assert.Equal(t, "connected", health.Services.Tarobase.Status)
	require.NotNil(t, health.Services.Tarobase.Latency)
	assert.Equal(t, 12.0, *health.Services.Tarobase.Latency)
	assert.Equal(t, 3, health.Services.PartyServer.ActiveConnections)
}

func TestHealth_EmptyDataIsMalformed(t *testing.T) {
	srv := newFakeServer(t, http.StatusOK, `{"success":true,"timestamp":1}`)
	c := newTestClient(t, Config{BaseURL: srv.URL})

	_, err := c.Health(context.Background())
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestStartAgent_SendsAdminHeaders(t *testing.T) {
	srv := newFakeServer(t, http.StatusOK, `{"success":true,"data":{"agentId":"a1","state":"starting"},"timestamp":1}`)
	c := newTestClient(t, Config{BaseURL: srv.URL, AdminAuth: &AdminAuth{Token: "id-token", WalletAddress: "So1Wallet"}})

	data, err := c.StartAgent(context.Background(), map[string]string{"agentId": "a1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"agentId":"a1","state":"starting"}`, string(data))

	got := srv.last(t)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/agents/start", got.Path)
	assert.Equal(t, "Bearer id-token", got.Header.Get("Authorization"))
	assert.Equal(t, "So1Wallet", got.Header.Get("X-Wallet-Address"))
	assert.JSONEq(t, `{"agentId":"a1"}`, string(got.Body))
}

func TestEndpoints_RouteTable(t *testing.T) {
	auth := &AdminAuth{Token: "tok", WalletAddress: "w"}
	body := map[string]interface{}{"agentId": "a1"}

	tests := []struct {
		name     string
		call     func(c *Client) (json.RawMessage, error)
		method   string
		path     string
		admin    bool
		wantBody bool
	}{
		{"StartAgent", func(c *Client) (json.RawMessage, error) { return c.StartAgent(context.Background(), body) }, http.MethodPost, "/agents/start", true, true},
		{"StopAgent", func(c *Client) (json.RawMessage, error) { return c.StopAgent(context.Background(), body) }, http.MethodPost, "/agents/stop", true, true},
		{"GetAgentStatus", func(c *Client) (json.RawMessage, error) { return c.GetAgentStatus(context.Background(), "a1") }, http.MethodGet, "/agents/a1/status", true, false},
		{"GetAgentTrades", func(c *Client) (json.RawMessage, error) { return c.GetAgentTrades(context.Background(), "a1") }, http.MethodGet, "/agents/a1/trades", true, false},
		{"ValidateAgent", func(c *Client) (json.RawMessage, error) { return c.ValidateAgent(context.Background(), body) }, http.MethodPost, "/agents/validate", true, true},
		{"StopAgentNoBody", func(c *Client) (json.RawMessage, error) { return c.StopAgent(context.Background(), nil) }, http.MethodPost, "/agents/stop", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeServer(t, http.StatusOK, okEnvelope)
			c := newTestClient(t, Config{BaseURL: srv.URL, AdminAuth: auth})

			data, err := tt.call(c)
			require.NoError(t, err)
			assert.JSONEq(t, `{"ok":true}`, string(data))

			got := srv.last(t)
			assert.Equal(t, tt.method, got.Method)
			assert.Equal(t, tt.path, got.Path)
			assert.Equal(t, tt.admin, got.Header.Get("Authorization") != "")
			if tt.wantBody {
				assert.JSONEq(t, `{"agentId":"a1"}`, string(got.Body))
			} else {
				assert.Empty(t, got.Body)
			}
		})
	}
}

func TestEndpoints_AgentIDIsEscaped(t *testing.T) {
	srv := newFakeServer(t, http.StatusOK, okEnvelope)
	c := newTestClient(t, Config{BaseURL: srv.URL})

	_, err := c.GetAgentStatus(context.Background(), "a/b c")
	require.NoError(t, err)
	assert.Equal(t, "/agents/a%2Fb%20c/status", srv.last(t).Path)
}

func TestEndpoints_EmptyAgentIDRejected(t *testing.T) {
	srv := newFakeServer(t, http.StatusOK, okEnvelope)
	c := newTestClient(t, Config{BaseURL: srv.URL})

	_, err := c.GetAgentTrades(context.Background(), " ")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, 0, srv.count())
}

func TestValidateAgent_RejectionCarriesCode(t *testing.T) {
	srv := newFakeServer(t, http.StatusUnprocessableEntity,
		`{"success":false,"error":{"code":"INVALID_AGENT_CONFIG","message":"strategy is required","details":{"field":"strategy"}},"timestamp":1,"requestId":"rq-9"}`)
	c := newTestClient(t, Config{BaseURL: srv.URL})

	_, err := c.ValidateAgent(context.Background(), map[string]interface{}{})
	require.Error(t, err)
	assert.True(t, HasCode(err, "INVALID_AGENT_CONFIG"))

	apiErr, _ := IsAPIError(err)
	assert.Equal(t, "strategy is required", apiErr.Message)
	assert.Equal(t, "rq-9", apiErr.RequestID)
	assert.Equal(t, map[string]interface{}{"field": "strategy"}, apiErr.Details)
}

func TestRoutes(t *testing.T) {
	routes := Routes()
	require.Len(t, routes, 6)

	admin := map[string]bool{}
	for _, r := range routes {
		admin[r.Method+" "+r.Path] = r.Admin
	}
	assert.Equal(t, map[string]bool{
		"GET /health":             false,
		"POST /agents/start":      true,
		"POST /agents/stop":       true,
		"GET /agents/{id}/status": true,
		"GET /agents/{id}/trades": true,
		"POST /agents/validate":   true,
	}, admin)
}

func TestRoutes_RateLimits(t *testing.T) {
	limits := map[string]string{}
	for _, r := range Routes() {
		limits[r.Name] = r.RateLimit.String()
	}
	assert.Equal(t, map[string]string{
		"health":         "100/60s",
		"startAgent":     "10/60s",
		"stopAgent":      "10/60s",
		"getAgentStatus": "60/60s",
		"getAgentTrades": "30/60s",
		"validateAgent":  "30/60s",
	}, limits)
	assert.Equal(t, "-", RateLimit{}.String())
}

func TestWithRouteRateLimits_StartThrottlesAfterBudget(t *testing.T) {
	srv := newFakeServer(t, http.StatusOK, `{"success":true,"data":{"started":true},"timestamp":1}`)
	c := newTestClient(t, Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, WithRouteRateLimits())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := c.StartAgent(ctx, map[string]interface{}{"agentId": "a1"})
		require.NoError(t, err, "call %d", i+1)
	}

	_, err := c.StartAgent(ctx, map[string]interface{}{"agentId": "a1"})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 10, srv.count())

	// other routes keep their own budget
	_, err = c.GetAgentStatus(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 11, srv.count())

	// the generic dispatcher is not route-limited
	_, err = c.Do(ctx, http.MethodPost, RouteStartAgent.Path, nil, true)
	require.NoError(t, err)
}

func TestEndpoints_NoRouteLimitsByDefault(t *testing.T) {
	srv := newFakeServer(t, http.StatusOK, `{"success":true,"timestamp":1}`)
	c := newTestClient(t, Config{BaseURL: srv.URL})

	for i := 0; i < 12; i++ {
		_, err := c.StopAgent(context.Background(), nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 12, srv.count())
}

func TestRouteExpand(t *testing.T) {
	p, err := RouteHealth.Expand("ignored")
	require.NoError(t, err)
	assert.Equal(t, "/health", p)

	p, err = RouteGetAgentStatus.Expand("agent-7")
	require.NoError(t, err)
	assert.Equal(t, "/agents/agent-7/status", p)

	_, err = RouteGetAgentTrades.Expand("")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
