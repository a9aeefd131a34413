package idempotency

import "time"

// Record is a completed operation stored for replay. The response body is
// kept verbatim so a replayed request is byte-identical to the original.
type Record struct {
	ID          int64
	OperationID string
	Endpoint    string
	Method      string
	StatusCode  int
	Body        []byte
	CreatedAt   time.Time
}

// HeaderOperationID carries the client-chosen operation identity.
const HeaderOperationID = "X-Operation-Id"
