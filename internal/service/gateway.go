package service

import (
	"context"

	"rsm-inventory-bot/internal/esi"
	"rsm-inventory-bot/pkg/uid"
)

// Gateway is the subset of the upstream client the services need.
type Gateway interface {
	Call(ctx context.Context, op esi.Operation) *esi.Response
	CallAuthRetry(ctx context.Context, op esi.Operation) *esi.Response
	CallMany(ctx context.Context, ops []esi.Operation) []*esi.Response
}

var _ Gateway = (*esi.Client)(nil)

type contextKey string

const cycleIDKey contextKey = "cycle_id"

// WithCycleID tags ctx with the id used to correlate a cycle's log lines.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleIDKey, id)
}

// CycleID returns the cycle id of ctx, or "" if none was set.
func CycleID(ctx context.Context) string {
	if id, ok := ctx.Value(cycleIDKey).(string); ok {
		return id
	}
	return ""
}

func ensureCycleID(ctx context.Context) context.Context {
	if CycleID(ctx) != "" {
		return ctx
	}
	return WithCycleID(ctx, uid.New())
}
