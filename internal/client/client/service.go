package client

import (
	"context"
)

// Client is the subset of the safelog API the CLI talks to.
type Client interface {
	Ping(ctx context.Context) error
	Nonce(ctx context.Context, address string) (*NonceChallenge, error)
	Login(ctx context.Context, req LoginRequest) (*Session, error)
	GetUser(ctx context.Context, address string) (*User, error)

	ListSecrets(ctx context.Context) ([]Secret, error)
	SharedWithMe(ctx context.Context) ([]Grant, error)
	GetSecret(ctx context.Context, id int64) (*Secret, error)
	CreateSecret(ctx context.Context, in SecretInput) (*Secret, error)
	DeleteSecret(ctx context.Context, id int64) error
	Share(ctx context.Context, in ShareInput) (*Grant, error)

	ListWorkflows(ctx context.Context) ([]Workflow, error)
	GetWorkflow(ctx context.Context, id int64) (*Workflow, error)
	SignWorkflow(ctx context.Context, id int64, signature string, recipientKeys map[string]string) (*Workflow, error)
}
