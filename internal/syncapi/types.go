package syncapi

import (
	"encoding/json"
	"time"
)

// Change is one dirty record serialized for push. Fields carries the
// table-specific payload; parent references inside it use remote ids.
// UpdatedAt is the record's timestamp at collection time; the client compares
// it against the live record when the server's verdict arrives, so an edit
// made while the push was in flight keeps the record dirty.
type Change struct {
	LocalID   uint            `json:"local_id"`
	IsDeleted bool            `json:"is_deleted"`
	UpdatedAt time.Time       `json:"updated_at"`
	Fields    json.RawMessage `json:"fields,omitempty"`
}

// CollectedTimes indexes a pushed snapshot by local id, mapping each record
// to its timestamp at collection time. Repositories compare these against the
// live rows when recording the server's verdict.
func CollectedTimes(changes []Change) map[uint]time.Time {
	m := make(map[uint]time.Time, len(changes))
	for _, c := range changes {
		m[c.LocalID] = c.UpdatedAt
	}
	return m
}

// PushRequest is one outbound batch for a single table.
type PushRequest struct {
	Changes []Change `json:"changes"`
}

// PushResponse maps pushed records back to their fate. Creates come back in
// Assigned with the server identity, updates and tombstones in Acked, and
// business-validation failures in Rejected (those stay dirty and retry on the
// next cycle).
type PushResponse struct {
	Assigned map[uint]int64 `json:"assigned"`
	Acked    []uint         `json:"acked"`
	Rejected []uint         `json:"rejected,omitempty"`
}

// Record is one server-side record in a pull response, keyed by remote id.
type Record struct {
	RemoteID  int64           `json:"remote_id"`
	IsDeleted bool            `json:"is_deleted"`
	UpdatedAt time.Time       `json:"updated_at"`
	Fields    json.RawMessage `json:"fields,omitempty"`
}

// PullResponse carries all server changes since the requested watermark.
// ServerTime becomes the caller's new last_pulled_at.
type PullResponse struct {
	Tables     map[string][]Record `json:"tables"`
	ServerTime time.Time           `json:"server_time"`
}

// UploadResponse is the durable URL of an uploaded cover asset.
type UploadResponse struct {
	URL string `json:"url"`
}
