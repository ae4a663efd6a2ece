// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides generation-provider clients behind a narrow,
// backend-agnostic interface.
//
// A completion either returns plain text or selects exactly one declared
// tool. The tool-calling protocol itself (which tools exist, how their
// results feed back) belongs to the caller; this package only moves messages
// and tool schemas across the wire.
package llm

import (
	"context"

	"github.com/jinterlante1206/AleutianTutor/services/tutor/datatypes"
)

// ToolDefinition declares one callable tool to the provider.
type ToolDefinition struct {
	// Name is the function name the model may select.
	Name string `json:"name"`

	// Description tells the model when to use the tool.
	Description string `json:"description"`

	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any `json:"parameters"`
}

// ToolCall is the provider's request to invoke a declared tool.
type ToolCall struct {
	// Name is the selected tool.
	Name string `json:"name"`

	// Arguments is the raw JSON argument object as emitted by the model.
	// May be malformed; callers must treat it as untrusted.
	Arguments string `json:"arguments"`

	// ID is the provider-assigned call id, needed when feeding the tool
	// result back on a follow-up round-trip. Empty for providers without
	// call ids.
	ID string `json:"id,omitempty"`
}

// Completion is the outcome of one round-trip: text or a single tool call.
type Completion struct {
	Text     string
	ToolCall *ToolCall
}

// GenerationParams tunes a single completion request.
type GenerationParams struct {
	Temperature *float32
	TopP        *float32
	MaxTokens   *int
	Stop        []string

	// Tools declares the callable tools for this request. Empty means the
	// provider must answer in plain text.
	Tools []ToolDefinition

	// ToolResult carries a tool's output back to the provider on a
	// follow-up round-trip, paired with the call it answers.
	ToolResult *ToolResult
}

// ToolResult is a tool's output fed back to the provider.
type ToolResult struct {
	CallID string
	Name   string

	// Arguments echoes the original call arguments; some providers require
	// the assistant turn that issued the call to be replayed verbatim.
	Arguments string

	Content string
}

// LLMClient is the standard interface for any generation backend.
type LLMClient interface {
	// Chat performs one completion round-trip. The returned Completion has
	// either Text or ToolCall set, never both.
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (Completion, error)
}
