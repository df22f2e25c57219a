// Package notify pushes best-effort events to connected clients. Delivery
// is fire-and-forget: Notify never blocks and never fails the caller.
package notify

import "context"

// Notification is one event for one address.
type Notification struct {
	Type  string         `json:"type"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
}

const (
	TypeWorkflowCreated   = "multisig_created"
	TypeWorkflowSigned    = "multisig_signed"
	TypeWorkflowCompleted = "multisig_completed"
	TypeNewMessage        = "new_message"
	TypeSecretShared      = "secret_shared"
)

type Dispatcher interface {
	Notify(ctx context.Context, address string, n Notification)
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(context.Context, string, Notification) {}
