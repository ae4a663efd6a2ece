// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared data model for the tutor service.
//
// The central type is ConversationState: the per-session memory the dialogue
// engine reads at the start of a turn and writes back at the end. The engine
// is the only writer; collaborators receive copies or read-only views.
package datatypes

import "strings"

// Phase identifies where the conversation currently sits in the dialogue
// state machine.
//
// The boolean flags on ConversationState are payload for the active phase.
// Normalize keeps the two representations consistent so an illegal
// combination loaded from an external store cannot wedge the engine.
type Phase string

const (
	// PhaseTeaching is the default phase: free-form explanation turns.
	PhaseTeaching Phase = "TEACHING"

	// PhaseAwaitingPracticeAnswer means a practice question is outstanding
	// and the next student utterance is treated as an answer attempt.
	PhaseAwaitingPracticeAnswer Phase = "AWAITING_PRACTICE_ANSWER"

	// PhaseAwaitingResearchInvitation means the last reply offered to dig
	// deeper and the engine is waiting for a yes/no.
	PhaseAwaitingResearchInvitation Phase = "AWAITING_RESEARCH_INVITATION"

	// PhaseResearchHandoff means the turn was delegated to the external
	// research collaborator.
	PhaseResearchHandoff Phase = "RESEARCH_HANDOFF"

	// PhaseExploring means the student chose to explore adjacent topics.
	PhaseExploring Phase = "EXPLORING"
)

// String returns the phase as a string.
func (p Phase) String() string {
	return string(p)
}

// ConversationState is the cross-turn memory for one tutoring session.
//
// # Description
//
// Owned exclusively by the dialogue engine. A turn starts by deep-copying the
// previous state (Clone), mutates the copy, and returns it inside TurnResult.
// On any provider failure the copy is discarded, so the persisted state is
// always the result of a complete turn.
//
// # Thread Safety
//
// Not safe for concurrent mutation. The calling layer must serialize turns
// per session id (see services/tutor/sessions).
type ConversationState struct {
	// AwaitingPracticeQuestionAnswer is true while a practice question is
	// outstanding. Implies ActivePracticeQuestion != "" and at least one
	// entry in CorrectAnswers.
	AwaitingPracticeQuestionAnswer bool `json:"awaiting_practice_question_answer"`

	// ActivePracticeQuestion is the question text currently awaiting an
	// answer, empty otherwise.
	ActivePracticeQuestion string `json:"active_practice_question,omitempty"`

	// CorrectAnswers holds lower-cased accepted keywords for the active
	// practice question.
	CorrectAnswers []string `json:"correct_answers,omitempty"`

	// ValidationAttemptCount counts consecutive wrong answers to the active
	// practice question. Resets to zero when a new question is issued or an
	// answer is accepted. Only meaningful while
	// AwaitingPracticeQuestionAnswer is true.
	ValidationAttemptCount int `json:"validation_attempt_count"`

	// LastTopic anchors context insertion and video relevance checks.
	LastTopic string `json:"last_topic,omitempty"`

	// ResearchModeActive is set while the research collaborator owns the
	// conversation thread.
	ResearchModeActive bool `json:"research_mode_active"`

	// AwaitingPracticeQuestionInvitationResponse is set when the previous
	// reply asked whether the student wants a practice question.
	AwaitingPracticeQuestionInvitationResponse bool `json:"awaiting_practice_question_invitation_response"`

	// LastAssistantMessage is the previous reply verbatim, used to keep the
	// model from repeating an analogy and to resolve choice intents.
	LastAssistantMessage string `json:"last_assistant_message,omitempty"`

	// SensitiveContentDetected records that a safety violation occurred at
	// some point in the session.
	SensitiveContentDetected bool `json:"sensitive_content_detected"`

	// VideoSuggested records that a video was already attached this session.
	VideoSuggested bool `json:"video_suggested"`

	// UsedExamples lists analogies/examples already shown, so escalation
	// hints can ask for a different one.
	UsedExamples []string `json:"used_examples,omitempty"`

	// Phase is the explicit state-machine position.
	Phase Phase `json:"phase"`
}

// NewConversationState returns the initial state for a fresh session.
func NewConversationState() ConversationState {
	return ConversationState{Phase: PhaseTeaching}
}

// Clone returns a deep copy. Slices are copied so the caller can mutate the
// clone without aliasing the original.
func (s ConversationState) Clone() ConversationState {
	out := s
	if len(s.CorrectAnswers) > 0 {
		out.CorrectAnswers = append([]string(nil), s.CorrectAnswers...)
	}
	if len(s.UsedExamples) > 0 {
		out.UsedExamples = append([]string(nil), s.UsedExamples...)
	}
	return out
}

// Normalize repairs inconsistent flag combinations, typically after loading
// state persisted by an older build or hand-edited in a store.
//
// Rules applied, in order:
//  1. Empty phase defaults to Teaching.
//  2. AwaitingPracticeQuestionAnswer without a question or answer set is
//     cleared (the invariant cannot be satisfied, so the practice flow is
//     abandoned rather than guessed at).
//  3. Phase and the awaiting flags are reconciled, with the booleans winning
//     because older clients only wrote the booleans.
func (s *ConversationState) Normalize() {
	if s.Phase == "" {
		s.Phase = PhaseTeaching
	}
	if s.AwaitingPracticeQuestionAnswer &&
		(strings.TrimSpace(s.ActivePracticeQuestion) == "" || len(s.CorrectAnswers) == 0) {
		s.AwaitingPracticeQuestionAnswer = false
		s.ActivePracticeQuestion = ""
		s.CorrectAnswers = nil
		s.ValidationAttemptCount = 0
	}
	switch {
	case s.AwaitingPracticeQuestionAnswer:
		s.Phase = PhaseAwaitingPracticeAnswer
	case s.AwaitingPracticeQuestionInvitationResponse:
		s.Phase = PhaseAwaitingResearchInvitation
	case s.Phase == PhaseAwaitingPracticeAnswer || s.Phase == PhaseAwaitingResearchInvitation:
		// Flags cleared but phase stale.
		s.Phase = PhaseTeaching
	}
	for i, a := range s.CorrectAnswers {
		s.CorrectAnswers[i] = strings.ToLower(strings.TrimSpace(a))
	}
}

// ClearPractice resets every practice-question field. Topic is preserved for
// continuity.
func (s *ConversationState) ClearPractice() {
	s.AwaitingPracticeQuestionAnswer = false
	s.ActivePracticeQuestion = ""
	s.CorrectAnswers = nil
	s.ValidationAttemptCount = 0
	if s.Phase == PhaseAwaitingPracticeAnswer {
		s.Phase = PhaseTeaching
	}
}

// SetPractice installs a new outstanding practice question.
func (s *ConversationState) SetPractice(question string, answers []string, topic string) {
	s.AwaitingPracticeQuestionAnswer = true
	s.ActivePracticeQuestion = question
	s.CorrectAnswers = make([]string, 0, len(answers))
	for _, a := range answers {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			s.CorrectAnswers = append(s.CorrectAnswers, a)
		}
	}
	s.ValidationAttemptCount = 0
	if topic != "" {
		s.LastTopic = topic
	}
	s.Phase = PhaseAwaitingPracticeAnswer
}
