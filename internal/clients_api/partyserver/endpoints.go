package partyserver

// One method per PartyServer endpoint
// Each is a fixed (verb, path, admin) triple delegating to the dispatcher
// Agent payloads are opaque: requests are any JSON-serializable value, responses are raw JSON

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RateLimit is the server's request budget for one route, Requests per Window
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// String renders the limit as "10/60s", "-" when unlimited
func (l RateLimit) String() string {
	if l.Requests <= 0 || l.Window <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%gs", l.Requests, l.Window.Seconds())
}

// Route describes one endpoint, Path may contain an {id} placeholder
type Route struct {
	Name      string
	Method    string
	Path      string
	Admin     bool
	RateLimit RateLimit
	Summary   string
}

func perMinute(n int) RateLimit { return RateLimit{Requests: n, Window: time.Minute} }

var (
	RouteHealth         = Route{Name: "health", Method: http.MethodGet, Path: "/health", Admin: false, RateLimit: perMinute(100), Summary: "System health check"}
	RouteStartAgent     = Route{Name: "startAgent", Method: http.MethodPost, Path: "/agents/start", Admin: true, RateLimit: perMinute(10), Summary: "Start a trading bot instance for the specified agent"}
	RouteStopAgent      = Route{Name: "stopAgent", Method: http.MethodPost, Path: "/agents/stop", Admin: true, RateLimit: perMinute(10), Summary: "Stop a running trading bot instance"}
	RouteGetAgentStatus = Route{Name: "getAgentStatus", Method: http.MethodGet, Path: "/agents/{id}/status", Admin: true, RateLimit: perMinute(60), Summary: "Get real-time execution status for a trading bot"}
	RouteGetAgentTrades = Route{Name: "getAgentTrades", Method: http.MethodGet, Path: "/agents/{id}/trades", Admin: true, RateLimit: perMinute(30), Summary: "Fetch trade history for a specific agent"}
	RouteValidateAgent  = Route{Name: "validateAgent", Method: http.MethodPost, Path: "/agents/validate", Admin: true, RateLimit: perMinute(30), Summary: "Validate agent configuration before saving"}
)

// Routes returns the endpoint table in declaration order
func Routes() []Route {
	return []Route{
		RouteHealth,
		RouteStartAgent,
		RouteStopAgent,
		RouteGetAgentStatus,
		RouteGetAgentTrades,
		RouteValidateAgent,
	}
}

// Expand fills the {id} placeholder, the id is path-escaped
func (r Route) Expand(id string) (string, error) {
	if !strings.Contains(r.Path, "{id}") {
		return r.Path, nil
	}
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: %s requires an agent id", ErrInvalidArgument, r.Name)
	}
	return strings.Replace(r.Path, "{id}", url.PathEscape(id), 1), nil
}

func (c *Client) call(ctx context.Context, r Route, id string, body interface{}) (json.RawMessage, error) {
	path, err := r.Expand(id)
	if err != nil {
		return nil, err
	}
	return c.dispatch(ctx, c.routeLimiters[r.Name], r.Method, path, body, r.Admin)
}

// Health retrieves service status, uptime and connectivity of dependent services
// Public route, never carries admin credentials
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	data, err := c.call(ctx, RouteHealth, "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get health: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("failed to get health: %w: empty data", ErrMalformedResponse)
	}

	var health HealthResponse
	if err := json.Unmarshal(data, &health); err != nil {
		return nil, fmt.Errorf("failed to unmarshal health response: %w: %w", ErrMalformedResponse, err)
	}
	return &health, nil
}

// StartAgent starts a trading bot instance, request nil sends no body
func (c *Client) StartAgent(ctx context.Context, request interface{}) (json.RawMessage, error) {
	data, err := c.call(ctx, RouteStartAgent, "", request)
	if err != nil {
		return nil, fmt.Errorf("failed to start agent: %w", err)
	}
	return data, nil
}

// StopAgent stops a running trading bot instance
func (c *Client) StopAgent(ctx context.Context, request interface{}) (json.RawMessage, error) {
	data, err := c.call(ctx, RouteStopAgent, "", request)
	if err != nil {
		return nil, fmt.Errorf("failed to stop agent: %w", err)
	}
	return data, nil
}

// GetAgentStatus fetches the current execution status of agent id
func (c *Client) GetAgentStatus(ctx context.Context, id string) (json.RawMessage, error) {
	data, err := c.call(ctx, RouteGetAgentStatus, id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent status: %w", err)
	}
	return data, nil
}

// GetAgentTrades fetches the trade history of agent id
func (c *Client) GetAgentTrades(ctx context.Context, id string) (json.RawMessage, error) {
	data, err := c.call(ctx, RouteGetAgentTrades, id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent trades: %w", err)
	}
	return data, nil
}

// ValidateAgent checks an agent configuration before it is saved
// Rejections come back as *APIError, branch on Code
func (c *Client) ValidateAgent(ctx context.Context, request interface{}) (json.RawMessage, error) {
	data, err := c.call(ctx, RouteValidateAgent, "", request)
	if err != nil {
		return nil, fmt.Errorf("failed to validate agent: %w", err)
	}
	return data, nil
}
