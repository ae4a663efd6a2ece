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

// ToolKind discriminates the ToolInvocation union.
type ToolKind string

const (
	// ToolDirect means the model answered in plain text with no tool call.
	ToolDirect ToolKind = "direct"

	// ToolAskPracticeQuestion means the model wants to pose a practice
	// question and start validating answers.
	ToolAskPracticeQuestion ToolKind = "askPracticeQuestion"

	// ToolSearchVideo means the model wants an educational video lookup.
	ToolSearchVideo ToolKind = "searchVideo"

	// ToolFetchTranscript means the model wants a video transcript fed back
	// before it produces final text.
	ToolFetchTranscript ToolKind = "fetchTranscript"
)

// ToolInvocation is the decoded outcome of one generation round-trip: either
// direct text or exactly one tool call with its arguments. Ephemeral; never
// persisted.
type ToolInvocation struct {
	Kind ToolKind `json:"kind"`

	// Text is set for ToolDirect.
	Text string `json:"text,omitempty"`

	// Question, Answers and Topic are set for ToolAskPracticeQuestion.
	// Answers are the accepted keywords, already split and trimmed.
	Question string   `json:"question,omitempty"`
	Answers  []string `json:"answers,omitempty"`
	Topic    string   `json:"topic,omitempty"`

	// Query is set for ToolSearchVideo.
	Query string `json:"query,omitempty"`

	// VideoID is set for ToolFetchTranscript. May be empty when the model
	// lost track of the session; the adapter must not retry in that case.
	VideoID string `json:"video_id,omitempty"`
}
