package partyserver

// HealthStatus values reported by /health
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// HealthResponse - payload of GET /health
type HealthResponse struct {
	Status    string         `json:"status"`    // healthy, degraded or unhealthy
	Timestamp int64          `json:"timestamp"` // Unix ms
	Version   string         `json:"version"`
	Uptime    float64        `json:"uptime"`
	Services  HealthServices `json:"services"`
}

type HealthServices struct {
	Tarobase    TarobaseHealth    `json:"tarobase"`
	PartyServer PartyServerHealth `json:"partyserver"`
}

// TarobaseHealth - status is connected, disconnected or error
type TarobaseHealth struct {
	Status  string   `json:"status"`
	Latency *float64 `json:"latency,omitempty"` // ms, absent when disconnected
}

// PartyServerHealth - status is running, starting or error
type PartyServerHealth struct {
	Status            string `json:"status"`
	ActiveConnections int    `json:"activeConnections"`
}

// IsHealthy reports a fully healthy service
func (h *HealthResponse) IsHealthy() bool {
	return h != nil && h.Status == HealthHealthy
}
