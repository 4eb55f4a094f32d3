package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/prober-service/internal/entity"
)

var (
	ErrProbeTimeout   = errors.New("probe timed out")
	ErrTransport      = errors.New("transport failure")
	ErrProxyFailure   = errors.New("egress path failure")
	ErrUpstreamStatus = errors.New("unexpected upstream status")
)

// ProbeError tags a failed probe with its kind. errors.Is(err, ErrProbeTimeout) etc. match on Kind.
type ProbeError struct {
	Kind      error
	Candidate string
	Egress    string
	Err       error
}

func (e *ProbeError) Error() string {
	if e.Egress == "" {
		return fmt.Sprintf("probe %s: %v: %v", e.Candidate, e.Kind, e.Err)
	}
	return fmt.Sprintf("probe %s via %s: %v: %v", e.Candidate, e.Egress, e.Kind, e.Err)
}

func (e *ProbeError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Prober fetches a candidate and determines its classification.
type Prober interface {
	// Probe checks candidate through egress ("" means a direct connection).
	// ctx carries the per-call timeout.
	Probe(ctx context.Context, candidate string, egress string) (*entity.ProbeResult, error)
}

// ProberFunc adapts a plain function to the Prober interface.
type ProberFunc func(ctx context.Context, candidate string, egress string) (*entity.ProbeResult, error)

func (f ProberFunc) Probe(ctx context.Context, candidate string, egress string) (*entity.ProbeResult, error) {
	return f(ctx, candidate, egress)
}
