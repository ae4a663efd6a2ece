// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"fmt"
	"strings"

	"github.com/jinterlante1206/AleutianTutor/services/tutor/datatypes"
)

// systemPrompt is the tutor persona sent on every model call. Tone and
// formatting rules are stated here, but the guardian pipeline enforces them
// regardless of whether the model complies.
const systemPrompt = `You are a warm, patient tutor for school students.
Explain one idea at a time in short, plain sentences. Use everyday analogies.
Never use markdown, LaTeX, bullet lists, or more than one question per reply.
When the student seems ready, you may use the ask_practice_question tool to
check their understanding. Keep replies under 120 words.`

// buildTeachingMessages assembles the standard context window: persona,
// remembered struggles, the previous reply, then the student's utterance.
func buildTeachingMessages(st *datatypes.ConversationState, utterance string, struggles []string) []datatypes.Message {
	system := systemPrompt
	if st.LastTopic != "" {
		system += "\nThe current topic is: " + st.LastTopic + "."
	}
	if len(struggles) > 0 {
		system += "\nThis student previously struggled with: " + strings.Join(struggles, ", ") + ". Be extra gentle there."
	}
	if len(st.UsedExamples) > 0 {
		system += "\nDo not reuse these examples: " + strings.Join(st.UsedExamples, "; ") + "."
	}

	msgs := []datatypes.Message{{Role: datatypes.RoleSystem, Content: system}}
	if st.LastAssistantMessage != "" {
		msgs = append(msgs, datatypes.Message{Role: datatypes.RoleAssistant, Content: st.LastAssistantMessage})
	}
	return append(msgs, datatypes.Message{Role: datatypes.RoleUser, Content: utterance})
}

// buildReexplainMessages asks for a fresh explanation after a confused
// student reply. The previous phrasing travels along as a negative example
// so the model cannot just repeat itself.
func buildReexplainMessages(st *datatypes.ConversationState, prompt string) []datatypes.Message {
	instruction := prompt
	if st.ActivePracticeQuestion != "" {
		instruction += "\nThe open practice question is: " + st.ActivePracticeQuestion
	}
	if st.LastAssistantMessage != "" {
		instruction += "\nDo NOT reuse the wording or analogy of this previous explanation: " + st.LastAssistantMessage
	}
	return []datatypes.Message{
		{Role: datatypes.RoleSystem, Content: systemPrompt},
		{Role: datatypes.RoleUser, Content: instruction},
	}
}

// buildEscalationMessages builds the model instruction for one rung of the
// wrong-answer ladder.
func buildEscalationMessages(st *datatypes.ConversationState, rungPrompt, studentAnswer string) []datatypes.Message {
	instruction := fmt.Sprintf(
		"The student answered the practice question %q with %q, which is wrong.\n%s",
		st.ActivePracticeQuestion, studentAnswer, rungPrompt)
	if st.LastAssistantMessage != "" {
		instruction += "\nDo not repeat this earlier phrasing: " + st.LastAssistantMessage
	}
	return []datatypes.Message{
		{Role: datatypes.RoleSystem, Content: systemPrompt},
		{Role: datatypes.RoleUser, Content: instruction},
	}
}

// buildPracticeRequestMessages instructs the model to pose one practice
// question anchored to the topic, via the practice tool.
func buildPracticeRequestMessages(topic string) []datatypes.Message {
	return []datatypes.Message{
		{Role: datatypes.RoleSystem, Content: systemPrompt},
		{Role: datatypes.RoleUser, Content: fmt.Sprintf(
			"Use the ask_practice_question tool to pose exactly one short practice question about %s.", topic)},
	}
}

// buildDiveDeeperMessages instructs the model to go one level deeper on the
// current topic.
func buildDiveDeeperMessages(st *datatypes.ConversationState) []datatypes.Message {
	instruction := "The student wants to go deeper."
	if st.LastTopic != "" {
		instruction = fmt.Sprintf("The student wants to dive deeper into %s. Pick the single most interesting detail beyond what was already said and explain it.", st.LastTopic)
	}
	if st.LastAssistantMessage != "" {
		instruction += "\nAlready said: " + st.LastAssistantMessage
	}
	return []datatypes.Message{
		{Role: datatypes.RoleSystem, Content: systemPrompt},
		{Role: datatypes.RoleUser, Content: instruction},
	}
}

// deriveTopic extracts a short anchor topic from a raw utterance when no
// topic is active yet. Heuristic: drop the question lead-in, keep at most
// six words.
func deriveTopic(utterance string) string {
	lower := strings.ToLower(strings.TrimSpace(utterance))
	for _, prefix := range []string{
		"what is ", "what are ", "tell me about ", "explain ", "how does ",
		"how do ", "why is ", "why do ", "can you explain ",
	} {
		if strings.HasPrefix(lower, prefix) {
			lower = lower[len(prefix):]
			break
		}
	}
	lower = strings.Trim(lower, " ?!.؟")
	words := strings.Fields(lower)
	if len(words) > 6 {
		words = words[:6]
	}
	return strings.Join(words, " ")
}

// suggestTitle renders a short conversation title from the anchor topic.
func suggestTitle(topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ""
	}
	words := strings.Fields(topic)
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 && r[0] >= 'a' && r[0] <= 'z' {
			r[0] = r[0] - 'a' + 'A'
		}
		words[i] = string(r)
	}
	return "Learning About " + strings.Join(words, " ")
}
