package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, so collaboration context (workflow_id,
// session_id, etc.) is included in every log statement without repeating it at
// each call site.
type LogFields struct {
	WorkflowID  *string // Workflow document the session is attached to
	SessionID   *string // Collaboration session ID
	UserID      *string // Acting participant
	MessageType *string // Protocol message type being handled
	Component   string  // Component name (e.g., "collab.transport", "collab.hub")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.WorkflowID != nil {
		result.WorkflowID = next.WorkflowID
	}
	if next.SessionID != nil {
		result.SessionID = next.SessionID
	}
	if next.UserID != nil {
		result.UserID = next.UserID
	}
	if next.MessageType != nil {
		result.MessageType = next.MessageType
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}
