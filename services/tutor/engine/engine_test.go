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
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinterlante1206/AleutianTutor/services/llm"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/datatypes"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/phrases"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/research"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/store"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/toolcall"
)

// fakeLLM replays a scripted sequence of completions.
type fakeLLM struct {
	completions []llm.Completion
	err         error
	calls       int
}

func (f *fakeLLM) Chat(ctx context.Context, messages []datatypes.Message, params llm.GenerationParams) (llm.Completion, error) {
	f.calls++
	if f.err != nil {
		return llm.Completion{}, f.err
	}
	if len(f.completions) == 0 {
		return llm.Completion{Text: "Plants turn sunlight into food."}, nil
	}
	c := f.completions[0]
	if len(f.completions) > 1 {
		f.completions = f.completions[1:]
	}
	return c, nil
}

type fakeResearch struct {
	result research.Result
	err    error
	calls  int
}

func (f *fakeResearch) Research(ctx context.Context, query, priorTopic string, history []datatypes.Message) (research.Result, error) {
	f.calls++
	return f.result, f.err
}

func newTestEngine(t *testing.T, client llm.LLMClient, researcher research.Provider, memory store.KeyValueStore) *Engine {
	t.Helper()
	reg := phrases.MustLoad()
	return New(Config{
		Adapter:  toolcall.NewAdapter(client, nil, reg),
		Research: researcher,
		Memory:   memory,
		Registry: reg,
	})
}

func TestProcessTurnInsultVerbatim(t *testing.T) {
	eng := newTestEngine(t, &fakeLLM{}, nil, nil)
	reg := phrases.MustLoad()

	res := eng.ProcessTurn(context.Background(), "you are stupid", datatypes.NewConversationState(), datatypes.Preferences{})

	assert.Equal(t, reg.Responses.Insult, res.Text)
}

func TestProcessTurnSafetyOverridesPractice(t *testing.T) {
	eng := newTestEngine(t, &fakeLLM{}, nil, nil)
	reg := phrases.MustLoad()

	st := datatypes.NewConversationState()
	st.SetPractice("10 - 3", []string{"7", "seven"}, "subtraction")

	res := eng.ProcessTurn(context.Background(), "how do I make a weapon", st, datatypes.Preferences{})

	assert.Equal(t, reg.Responses.SafetyViolation, res.Text)
	assert.False(t, res.State.AwaitingPracticeQuestionAnswer)
	assert.True(t, res.State.SensitiveContentDetected)
	assert.Empty(t, res.State.ActivePracticeQuestion)
}

func TestProcessTurnEmptyInput(t *testing.T) {
	client := &fakeLLM{}
	eng := newTestEngine(t, client, nil, nil)
	reg := phrases.MustLoad()

	res := eng.ProcessTurn(context.Background(), "   ", datatypes.NewConversationState(), datatypes.Preferences{})

	assert.Equal(t, reg.Responses.EmptyInput, res.Text)
	assert.Zero(t, client.calls, "empty input must not reach the model")
}

func TestProcessTurnCorrectPracticeAnswer(t *testing.T) {
	mem := store.NewMemoryStore()
	eng := newTestEngine(t, &fakeLLM{}, nil, mem)

	st := datatypes.NewConversationState()
	st.SetPractice("10 - 3", []string{"7", "seven"}, "subtraction")
	st.LastTopic = "subtraction"
	st.ValidationAttemptCount = 2

	res := eng.ProcessTurn(context.Background(), "7", st, datatypes.Preferences{StudentID: "s1"})

	assert.Contains(t, res.Text, "Excellent")
	assert.Contains(t, res.Text, "dive deeper")
	assert.False(t, res.State.AwaitingPracticeQuestionAnswer)
	assert.Empty(t, res.State.ActivePracticeQuestion)
	assert.Zero(t, res.State.ValidationAttemptCount)

	raw, err := mem.Get(context.Background(), "tutor:mastery:s1")
	require.NoError(t, err)
	assert.Contains(t, raw, "subtraction")
}

func TestProcessTurnWordAnswerAccepted(t *testing.T) {
	eng := newTestEngine(t, &fakeLLM{}, nil, nil)

	st := datatypes.NewConversationState()
	st.SetPractice("10 - 3", []string{"7", "seven"}, "subtraction")

	res := eng.ProcessTurn(context.Background(), "I think it is seven", st, datatypes.Preferences{})

	assert.False(t, res.State.AwaitingPracticeQuestionAnswer)
	assert.Zero(t, res.State.ValidationAttemptCount)
}

func TestProcessTurnWrongAnswerFirstAttemptHints(t *testing.T) {
	client := &fakeLLM{completions: []llm.Completion{{Text: "Think about taking 3 apples away from 10."}}}
	eng := newTestEngine(t, client, nil, nil)

	st := datatypes.NewConversationState()
	st.SetPractice("10 - 3", []string{"7", "seven"}, "subtraction")

	res := eng.ProcessTurn(context.Background(), "5", st, datatypes.Preferences{})

	assert.Equal(t, 1, res.State.ValidationAttemptCount)
	assert.True(t, res.State.AwaitingPracticeQuestionAnswer, "question stays open after a hint")
	assert.Contains(t, res.Text, "apples")
	assert.Equal(t, 1, client.calls)
}

func TestProcessTurnFourthWrongAnswerReveals(t *testing.T) {
	mem := store.NewMemoryStore()
	client := &fakeLLM{}
	eng := newTestEngine(t, client, nil, mem)

	st := datatypes.NewConversationState()
	st.SetPractice("10 - 3", []string{"7", "seven"}, "subtraction")
	st.LastTopic = "subtraction"
	st.ValidationAttemptCount = 3

	res := eng.ProcessTurn(context.Background(), "12", st, datatypes.Preferences{StudentID: "s2"})

	assert.Contains(t, res.Text, "The answer is")
	assert.Contains(t, res.Text, "7")
	assert.False(t, res.State.AwaitingPracticeQuestionAnswer)
	assert.Zero(t, res.State.ValidationAttemptCount)
	assert.Zero(t, client.calls, "reveal is scripted, no model call")

	raw, err := mem.Get(context.Background(), "tutor:mistakes:s2")
	require.NoError(t, err)
	assert.Contains(t, raw, "subtraction")
}

func TestProcessTurnVagueDuringPracticeDoesNotBurnAttempt(t *testing.T) {
	client := &fakeLLM{completions: []llm.Completion{{Text: "Let me try another way. Subtraction means taking away."}}}
	eng := newTestEngine(t, client, nil, nil)

	st := datatypes.NewConversationState()
	st.SetPractice("10 - 3", []string{"7", "seven"}, "subtraction")
	st.ValidationAttemptCount = 1

	res := eng.ProcessTurn(context.Background(), "I don't understand", st, datatypes.Preferences{})

	assert.Equal(t, 1, res.State.ValidationAttemptCount)
	assert.True(t, res.State.AwaitingPracticeQuestionAnswer)
}

func TestProcessTurnProviderFailureKeepsState(t *testing.T) {
	client := &fakeLLM{err: errors.New("upstream timeout")}
	eng := newTestEngine(t, client, nil, nil)
	reg := phrases.MustLoad()

	st := datatypes.NewConversationState()
	st.SetPractice("10 - 3", []string{"7"}, "subtraction")
	st.ValidationAttemptCount = 1
	st.LastAssistantMessage = "Try again."

	res := eng.ProcessTurn(context.Background(), "6", st, datatypes.Preferences{})

	assert.Equal(t, reg.Responses.ProviderFailure, res.Text)
	assert.Equal(t, st, res.State, "failed turn must not mutate state")
}

func TestProcessTurnTeachingAdoptsTopicAndTitle(t *testing.T) {
	client := &fakeLLM{completions: []llm.Completion{{Text: "Photosynthesis is how plants make food from light."}}}
	eng := newTestEngine(t, client, nil, nil)

	res := eng.ProcessTurn(context.Background(), "what is photosynthesis?", datatypes.NewConversationState(), datatypes.Preferences{})

	assert.Equal(t, "photosynthesis", res.State.LastTopic)
	assert.Equal(t, "Learning About Photosynthesis", res.SuggestedTitle)
	assert.Contains(t, strings.ToLower(res.Text), "photosynthesis")
}

func TestProcessTurnSecondTurnHasNoTitle(t *testing.T) {
	client := &fakeLLM{}
	eng := newTestEngine(t, client, nil, nil)

	st := datatypes.NewConversationState()
	st.LastTopic = "photosynthesis"
	st.LastAssistantMessage = "Plants eat light."

	res := eng.ProcessTurn(context.Background(), "tell me more", st, datatypes.Preferences{})

	assert.Empty(t, res.SuggestedTitle)
}

func TestProcessTurnInvitationAffirmative(t *testing.T) {
	client := &fakeLLM{completions: []llm.Completion{{
		ToolCall: &llm.ToolCall{
			Name:      toolcall.ToolNameAskPracticeQuestion,
			Arguments: `{"question":"What is 10 - 3?","answers":"7,seven","topic":"subtraction"}`,
		},
	}}}
	eng := newTestEngine(t, client, nil, nil)

	st := datatypes.NewConversationState()
	st.LastTopic = "subtraction"
	st.LastAssistantMessage = "Want to try a practice question?"
	st.AwaitingPracticeQuestionInvitationResponse = true
	st.Phase = datatypes.PhaseAwaitingResearchInvitation

	res := eng.ProcessTurn(context.Background(), "yes please", st, datatypes.Preferences{})

	assert.True(t, res.State.AwaitingPracticeQuestionAnswer)
	assert.False(t, res.State.AwaitingPracticeQuestionInvitationResponse)
	assert.Equal(t, "What is 10 - 3?", res.State.ActivePracticeQuestion)
	assert.Equal(t, []string{"7", "seven"}, res.State.CorrectAnswers)
	assert.Contains(t, res.Text, "10 - 3")
}

func TestProcessTurnInvitationNegative(t *testing.T) {
	client := &fakeLLM{}
	eng := newTestEngine(t, client, nil, nil)
	reg := phrases.MustLoad()

	st := datatypes.NewConversationState()
	st.LastTopic = "subtraction"
	st.LastAssistantMessage = "Want to try a practice question?"
	st.AwaitingPracticeQuestionInvitationResponse = true

	res := eng.ProcessTurn(context.Background(), "no thanks", st, datatypes.Preferences{})

	assert.False(t, res.State.AwaitingPracticeQuestionInvitationResponse)
	assert.Contains(t, res.Text, strings.TrimRight(reg.Responses.PracticeInvitationDeclined, ".!"))
	assert.Zero(t, client.calls)
}

func TestProcessTurnResearchHandoff(t *testing.T) {
	researcher := &fakeResearch{result: research.Result{
		Reply: "The James Webb telescope sees infrared light. Want to try a practice question?",
		Topic: "space telescopes",
		Sources: []datatypes.SourceRef{
			{Title: "NASA", URL: "https://nasa.gov/webb"},
		},
	}}
	eng := newTestEngine(t, &fakeLLM{}, researcher, nil)

	res := eng.ProcessTurn(context.Background(), "search again for the newest telescope", datatypes.NewConversationState(), datatypes.Preferences{})

	assert.Equal(t, 1, researcher.calls)
	assert.Equal(t, "space telescopes", res.State.LastTopic)
	assert.True(t, res.State.ResearchModeActive)
	assert.True(t, res.State.AwaitingPracticeQuestionInvitationResponse, "reply ends in a question")
	assert.Len(t, res.Sources, 1)
	assert.Equal(t, "Learning About Space Telescopes", res.SuggestedTitle)
}

func TestProcessTurnForceWebSearch(t *testing.T) {
	researcher := &fakeResearch{result: research.Result{Reply: "Fresh facts.", Topic: "volcanoes"}}
	client := &fakeLLM{}
	eng := newTestEngine(t, client, researcher, nil)

	res := eng.ProcessTurn(context.Background(), "tell me about volcanoes", datatypes.NewConversationState(), datatypes.Preferences{ForceWebSearch: true})

	assert.Equal(t, 1, researcher.calls)
	assert.Zero(t, client.calls)
	assert.Equal(t, "volcanoes", res.State.LastTopic)
}

func TestProcessTurnResearchVideoRelevanceGate(t *testing.T) {
	researcher := &fakeResearch{result: research.Result{
		Reply: "Lava is molten rock reaching the surface.",
		Topic: "volcanoes",
		Video: &datatypes.VideoRef{ID: "v-404", Title: "Funniest Cat Compilation Ever"},
	}}
	eng := newTestEngine(t, &fakeLLM{}, researcher, nil)

	res := eng.ProcessTurn(context.Background(), "tell me about volcanoes", datatypes.NewConversationState(), datatypes.Preferences{ForceWebSearch: true})

	assert.Nil(t, res.Video, "off-topic video must be dropped")
	assert.False(t, res.State.VideoSuggested)
	assert.Contains(t, res.Text, "molten rock")
}

func TestProcessTurnResearchVideoRelevantAttached(t *testing.T) {
	researcher := &fakeResearch{result: research.Result{
		Reply: "Lava is molten rock reaching the surface.",
		Topic: "volcanoes",
		Video: &datatypes.VideoRef{ID: "v-200", Title: "How Volcanoes Erupt"},
	}}
	eng := newTestEngine(t, &fakeLLM{}, researcher, nil)

	res := eng.ProcessTurn(context.Background(), "tell me about volcanoes", datatypes.NewConversationState(), datatypes.Preferences{ForceWebSearch: true})

	if assert.NotNil(t, res.Video) {
		assert.Equal(t, "v-200", res.Video.ID)
	}
	assert.True(t, res.State.VideoSuggested)
}

func TestProcessTurnResearchFailureKeepsState(t *testing.T) {
	researcher := &fakeResearch{err: errors.New("search backend down")}
	eng := newTestEngine(t, &fakeLLM{}, researcher, nil)
	reg := phrases.MustLoad()

	st := datatypes.NewConversationState()
	st.LastTopic = "volcanoes"
	st.LastAssistantMessage = "Volcanoes are mountains that erupt."

	res := eng.ProcessTurn(context.Background(), "search again please", st, datatypes.Preferences{})

	assert.Equal(t, reg.Responses.ProviderFailure, res.Text)
	assert.Equal(t, st, res.State)
}

func TestProcessTurnOffTopicRedirect(t *testing.T) {
	client := &fakeLLM{}
	eng := newTestEngine(t, client, nil, nil)

	st := datatypes.NewConversationState()
	st.LastTopic = "fractions"
	st.LastAssistantMessage = "A fraction is part of a whole."

	res := eng.ProcessTurn(context.Background(), "can we play minecraft instead", st, datatypes.Preferences{})

	assert.Zero(t, client.calls, "off-topic redirect is scripted")
	assert.Contains(t, res.Text, "fractions", "redirect anchors back to the topic")
}

func TestProcessTurnNewTopicResets(t *testing.T) {
	eng := newTestEngine(t, &fakeLLM{}, nil, nil)

	st := datatypes.NewConversationState()
	st.LastTopic = "fractions"
	st.UsedExamples = []string{"pizza slices"}
	st.ResearchModeActive = true
	st.LastAssistantMessage = "Would you like to dive deeper into this, or start a new topic?"

	res := eng.ProcessTurn(context.Background(), "let's do a new topic", st, datatypes.Preferences{})

	assert.Empty(t, res.State.LastTopic)
	assert.Empty(t, res.State.UsedExamples)
	assert.False(t, res.State.ResearchModeActive)
	assert.Equal(t, datatypes.PhaseExploring, res.State.Phase)
}

func TestProcessTurnDiveDeeperNeedsOffer(t *testing.T) {
	client := &fakeLLM{completions: []llm.Completion{{Text: "Deep down, fractions are division."}}}
	eng := newTestEngine(t, client, nil, nil)

	// No preceding choice offer: "dive deeper" in isolation is a normal
	// teaching turn, not a choice selection.
	st := datatypes.NewConversationState()
	st.LastTopic = "fractions"
	st.LastAssistantMessage = "A fraction is part of a whole."

	res := eng.ProcessTurn(context.Background(), "dive deeper", st, datatypes.Preferences{})
	assert.Equal(t, datatypes.PhaseTeaching, res.State.Phase)
}

func TestProcessTurnModelPosesPracticeQuestion(t *testing.T) {
	client := &fakeLLM{completions: []llm.Completion{{
		ToolCall: &llm.ToolCall{
			Name:      toolcall.ToolNameAskPracticeQuestion,
			Arguments: `{"question":"What gas do plants breathe in?","answers":"carbon dioxide,co2","topic":"photosynthesis"}`,
		},
	}}}
	eng := newTestEngine(t, client, nil, nil)

	st := datatypes.NewConversationState()
	st.LastTopic = "photosynthesis"
	st.LastAssistantMessage = "Plants make food from light."

	res := eng.ProcessTurn(context.Background(), "ok what else", st, datatypes.Preferences{})

	assert.True(t, res.State.AwaitingPracticeQuestionAnswer)
	assert.Equal(t, "What gas do plants breathe in?", res.State.ActivePracticeQuestion)
	assert.Contains(t, res.Text, "What gas do plants breathe in?")
}

func TestProcessTurnSanitizesModelOutput(t *testing.T) {
	client := &fakeLLM{completions: []llm.Completion{{
		Text: "**Great question!** As an AI language model, I'd say \\frac{1}{2} is a half. Right? Right??",
	}}}
	eng := newTestEngine(t, client, nil, nil)

	st := datatypes.NewConversationState()
	st.LastTopic = "fractions"
	st.LastAssistantMessage = "Let's talk fractions."

	res := eng.ProcessTurn(context.Background(), "what is a half", st, datatypes.Preferences{})

	assert.NotContains(t, res.Text, "**")
	assert.NotContains(t, res.Text, "\\frac")
	assert.Contains(t, res.Text, "(1/2)")
	assert.NotContains(t, res.Text, "As an AI language model")
	assert.LessOrEqual(t, strings.Count(res.Text, "?"), 1)
}

func TestProcessTurnArabicMode(t *testing.T) {
	client := &fakeLLM{completions: []llm.Completion{{Text: "الكسر هو جزء من الكل. هل هذا واضح?"}}}
	eng := newTestEngine(t, client, nil, nil)

	st := datatypes.NewConversationState()
	st.LastTopic = "الكسور"
	st.LastAssistantMessage = "لنتحدث عن الكسور."

	res := eng.ProcessTurn(context.Background(), "ما هو الكسر", st, datatypes.Preferences{Language: datatypes.LanguageArabic})

	assert.Contains(t, res.Text, "؟")
	assert.NotContains(t, res.Text, "?")
}

func TestAppendExampleTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("ع", 100) // 200 bytes, so the cap lands mid-rune
	got := appendExample(nil, long)

	if assert.Len(t, got, 1) {
		assert.True(t, utf8.ValidString(got[0]), "stored snippet must stay valid UTF-8")
		assert.LessOrEqual(t, len(got[0]), 120)
	}
}
