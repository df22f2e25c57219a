// Package ratelimit implements fixed-window request limiting, in process
// or shared through Redis.
package ratelimit

import (
	"context"
	"time"
)

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

func unlimited(limit int) Decision {
	return Decision{Allowed: true, Limit: limit, Remaining: limit}
}
