package tools

import "context"

type contextKey string

const conversationIDKey contextKey = "conversation_id"
const requestIDKey contextKey = "request_id"

// WithConversationID adds the conversation ID to the context so tool
// handlers can attribute their work.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationIDKey, id)
}

// ConversationIDFromContext extracts the conversation ID from the context.
// Returns "default" if not set.
func ConversationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(conversationIDKey).(string); ok && id != "" {
		return id
	}
	return "default"
}

// WithRequestID tags the context with the run's request ID. An empty ID
// is ignored (the original context is returned unchanged).
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request ID from the context. Returns
// "" if no request ID was set.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
