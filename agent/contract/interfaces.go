package contract

import (
	"context"
	"encoding/json"
)

// ChatModel produces the next assistant message for a conversation.
type ChatModel interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// ActionRunner executes actions against the tool worker. Failures are
// reported inside the returned ActionResult.
type ActionRunner interface {
	CreateCustomer(ctx context.Context, data json.RawMessage) ActionResult
	LookupAddress(ctx context.Context, zipcode string) ActionResult
}

type AuditRecorder interface {
	Record(ctx context.Context, sessionID string, result ActionResult) error
}
