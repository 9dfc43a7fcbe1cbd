package agent

import (
	"context"
	"sync/atomic"
)

type contextKey int

const (
	sessionIDKey contextKey = iota
	originKey
	taskIDKey
	turnKey
)

// Origin is the channel and chat a conversation turn came from.
type Origin struct {
	Channel string
	ChatID  string
}

func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

func ContextWithOrigin(ctx context.Context, o Origin) context.Context {
	return context.WithValue(ctx, originKey, o)
}

func OriginFromContext(ctx context.Context) (Origin, bool) {
	o, ok := ctx.Value(originKey).(Origin)
	return o, ok
}

// ContextWithTaskID tags ctx with the subagent task it runs under.
func ContextWithTaskID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, taskIDKey, id)
}

func TaskIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(taskIDKey).(string); ok {
		return v
	}
	return ""
}

type turnState struct {
	replied atomic.Bool
}

func contextWithTurn(ctx context.Context) (context.Context, *turnState) {
	st := &turnState{}
	return context.WithValue(ctx, turnKey, st), st
}

// MarkReplied records that a tool already delivered a reply for the current
// turn, so the loop does not send the final answer a second time.
func MarkReplied(ctx context.Context) {
	if st, ok := ctx.Value(turnKey).(*turnState); ok {
		st.replied.Store(true)
	}
}
