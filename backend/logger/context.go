// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields are attached to every log record emitted with the context.
type LogFields struct {
	RequestID    string
	MemberID     string
	Conversation string // ConversationRef.String()
	Component    string // dotted, e.g. "comunidade.messaging"
}

// WithLogFields merges fields into ctx; non-empty values win.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	merged := GetLogFields(ctx)
	if fields.RequestID != "" {
		merged.RequestID = fields.RequestID
	}
	if fields.MemberID != "" {
		merged.MemberID = fields.MemberID
	}
	if fields.Conversation != "" {
		merged.Conversation = fields.Conversation
	}
	if fields.Component != "" {
		merged.Component = fields.Component
	}
	return context.WithValue(ctx, logFieldsKey, merged)
}

func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

// WithComponent is shorthand for WithLogFields(ctx, LogFields{Component: name}).
func WithComponent(ctx context.Context, name string) context.Context {
	return WithLogFields(ctx, LogFields{Component: name})
}
