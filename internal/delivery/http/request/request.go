package request

// StartRunRequest is the optional body of POST /api/start.
type StartRunRequest struct {
	WorkerCount   int      `json:"worker_count"`
	MaxCandidates int      `json:"max_candidates"`
	Candidates    []string `json:"candidates,omitempty"`
}

type EnqueueRequest struct {
	Candidates []string `json:"candidates"`
}
