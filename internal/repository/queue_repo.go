package repository

import "context"

// QueueRepository defines the interface for a FIFO queue of candidates awaiting a run.
type QueueRepository interface {
	// Push adds candidates to the end of the queue.
	Push(ctx context.Context, candidates ...string) error
	// Pop removes and returns a candidate from the front of the queue.
	Pop(ctx context.Context) (string, error)
	// Size returns the current number of items in the queue.
	Size(ctx context.Context) (int64, error)
}
