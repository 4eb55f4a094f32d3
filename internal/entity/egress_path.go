package entity

import "time"

// Health is an egress path's usability state.
type Health string

const (
	HealthUnknown Health = "unknown"
	HealthHealthy Health = "healthy"
	HealthDown    Health = "down"
)

// EgressPath is an upstream proxy and its running statistics.
// SuccessCount + FailureCount always equals RequestCount.
type EgressPath struct {
	Address        string        `json:"address"`
	RequestCount   uint64        `json:"request_count"`
	SuccessCount   uint64        `json:"success_count"`
	FailureCount   uint64        `json:"failure_count"`
	AverageLatency time.Duration `json:"average_latency"`
	Health         Health        `json:"health"`
	LastUsedAt     time.Time     `json:"last_used_at"`
}

// SuccessRate returns the percentage of successful requests, 0 when unused.
func (p EgressPath) SuccessRate() float64 {
	if p.RequestCount == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(p.RequestCount) * 100
}
