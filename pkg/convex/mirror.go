package convex

import (
	"context"
	"time"
)

// mirrorFunction is the deployment-side mutation that upserts one
// mirrored artifact document.
const mirrorFunction = "artifacts:upsert"

// Mirror pushes session artifacts to a Convex deployment. It is a
// best-effort sink: callers log failures and move on.
type Mirror struct {
	client  *Client
	timeout time.Duration
}

// NewMirror wraps a client as an artifact sink.
func NewMirror(client *Client, timeout time.Duration) *Mirror {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Mirror{client: client, timeout: timeout}
}

// Upsert mirrors one artifact document, keyed by session, kind and id.
func (m *Mirror) Upsert(ctx context.Context, sessionID, kind, id string, doc any) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	_, err := m.client.Mutation(ctx, mirrorFunction, map[string]any{
		"sessionId":  sessionID,
		"kind":       kind,
		"artifactId": id,
		"document":   doc,
	})
	return err
}
