// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "github.com/go-playground/validator/v10"

// turnValidate backs TurnRequest.Validate. The validator instance caches
// struct metadata, so one shared instance is the cheap path.
var turnValidate = validator.New()

// LanguageMode selects the output language conventions applied by the
// guardian pipeline.
type LanguageMode string

const (
	// LanguageDefault applies the default (Latin punctuation) conventions.
	LanguageDefault LanguageMode = "default"

	// LanguageArabic switches punctuation to Arabic forms and strips emoji.
	LanguageArabic LanguageMode = "arabic"
)

// Preferences carries per-student tuning that is not conversation state.
type Preferences struct {
	// StudentID keys the optional long-term memory store. Empty disables it.
	StudentID string `json:"student_id,omitempty" validate:"max=128"`

	// Language selects guardian punctuation/emoji conventions.
	Language LanguageMode `json:"language,omitempty" validate:"omitempty,oneof=default arabic"`

	// ForceWebSearch routes the turn to the research collaborator even when
	// the intent classifier would not.
	ForceWebSearch bool `json:"force_web_search,omitempty"`
}

// VideoRef identifies an educational video attached to a reply.
type VideoRef struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Channel      string `json:"channel,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// SourceRef cites a web source returned by the research collaborator.
type SourceRef struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

// TurnRequest is the wire shape of one student turn.
//
// Binding tags are enforced by Gin's validator integration; a request that
// fails them never reaches the engine.
type TurnRequest struct {
	SessionID   string            `json:"session_id" binding:"required,max=128"`
	Utterance   string            `json:"utterance" binding:"max=8192"`
	State       ConversationState `json:"state"`
	Preferences Preferences       `json:"preferences"`
}

// Validate checks the constraints Gin's binding tags cannot express, such as
// the language enum. Call after binding.
func (r *TurnRequest) Validate() error {
	return turnValidate.Struct(r)
}

// TurnResult is the outcome of one turn: the reply text, the successor state
// the caller must persist, and optional side data.
type TurnResult struct {
	Text           string            `json:"text"`
	State          ConversationState `json:"state"`
	Video          *VideoRef         `json:"video,omitempty"`
	Sources        []SourceRef       `json:"sources,omitempty"`
	SuggestedTitle string            `json:"suggested_title,omitempty"`
}

// Message is a single chat message exchanged with a generation provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles understood by the generation providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)
