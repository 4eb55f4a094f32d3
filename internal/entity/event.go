package entity

import "time"

// Log levels used on the push channel.
const (
	LevelInfo    = "INFO"
	LevelSuccess = "SUCCESS"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
)

type LogEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

type StatsEvent struct {
	Checked          int64   `json:"checked"`
	Found            int64   `json:"found"`
	Errors           int64   `json:"errors"`
	Rate             float64 `json:"rate"`
	Progress         float64 `json:"progress"`
	CurrentCandidate string  `json:"current_candidate"`
}

type ProxyEvent struct {
	Address      string  `json:"address"`
	Health       Health  `json:"health"`
	RequestCount uint64  `json:"request_count"`
	SuccessRate  float64 `json:"success_rate"`
}
