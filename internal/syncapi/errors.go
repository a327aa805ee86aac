package syncapi

import (
	"errors"
	"fmt"
)

// ErrUnauthorized indicates the server rejected the bearer token. The
// orchestrator treats this as terminal for the cycle and logs the user out.
var ErrUnauthorized = errors.New("sync server rejected credentials")

// ErrRateLimited indicates the server asked us to back off.
var ErrRateLimited = errors.New("sync server rate limit exceeded")

// ServerError represents a 5xx response from the sync server.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("sync server error: HTTP %d", e.StatusCode)
}
