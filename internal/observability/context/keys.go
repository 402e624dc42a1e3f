package context

import "context"

type contextKey string

const (
	requestIDKey contextKey = "observability_request_id"
	actorRoleKey contextKey = "observability_actor_role"
	actorIDKey   contextKey = "observability_actor_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

func WithActor(ctx context.Context, actorRole, actorID string) context.Context {
	if ctx == nil {
		return ctx
	}
	if actorRole != "" {
		ctx = context.WithValue(ctx, actorRoleKey, actorRole)
	}
	if actorID != "" {
		ctx = context.WithValue(ctx, actorIDKey, actorID)
	}
	return ctx
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	actorRole, _ := ctx.Value(actorRoleKey).(string)
	actorID, _ := ctx.Value(actorIDKey).(string)
	return actorRole, actorID
}
