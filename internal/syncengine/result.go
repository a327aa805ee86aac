package syncengine

import "fmt"

// Status classifies the outcome of a sync attempt.
type Status string

const (
	// StatusSuccess means push and pull both completed.
	StatusSuccess Status = "success"

	// StatusAlreadySyncing means another sync held the single-flight guard.
	StatusAlreadySyncing Status = "already_syncing"

	// StatusOffline means the server was unreachable and no work was attempted.
	StatusOffline Status = "offline"

	// StatusError means the sync started but failed partway. Dirty records
	// stay dirty and are retried on the next run.
	StatusError Status = "error"
)

// Result describes one sync attempt. Broadcast to listeners after every run.
type Result struct {
	Status Status

	// Pushed is the number of local changes acknowledged by the server.
	Pushed int

	// Pulled is the number of remote records applied locally.
	Pulled int

	// CoversUploaded is the number of staged cover images uploaded.
	CoversUploaded int

	// AuthExpired is set when the server rejected our token. The stored
	// credential has been cleared and the user must sign in again.
	AuthExpired bool

	// Message carries the failure detail for StatusError results.
	Message string
}

func (r Result) String() string {
	switch r.Status {
	case StatusSuccess:
		return fmt.Sprintf("sync succeeded: pushed=%d pulled=%d covers=%d", r.Pushed, r.Pulled, r.CoversUploaded)
	case StatusError:
		return fmt.Sprintf("sync failed: %s", r.Message)
	default:
		return fmt.Sprintf("sync %s", r.Status)
	}
}
