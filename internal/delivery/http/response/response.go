package response

import "github.com/user/prober-service/internal/entity"

type MessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StartRunResponse echoes the state right after a successful start.
type StartRunResponse struct {
	Status  string             `json:"status"`
	Message string             `json:"message"`
	State   entity.EngineState `json:"state"`
}

type RecordsResponse struct {
	Count   int             `json:"count"`
	Records []entity.Record `json:"records"`
}

type ProxiesResponse struct {
	Count   int                 `json:"count"`
	Proxies []entity.ProxyEvent `json:"proxies"`
}

type EnqueueResponse struct {
	Accepted int `json:"accepted"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
