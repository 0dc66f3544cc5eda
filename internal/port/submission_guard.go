package port

import "context"

type SubmissionGuard interface {
	// Acquire marks key as in flight, returns false if it already is
	Acquire(ctx context.Context, key string) (token string, ok bool, err error)

	// Release clears the marker only if it is still owned by token
	Release(ctx context.Context, key, token string) error
}
