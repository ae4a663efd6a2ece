// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine routes each student turn through classification, validation,
// tool calling, and sanitization, and owns the conversation state machine.
//
// Description:
//
//	ProcessTurn is the single entry point. It works on a private clone of the
//	incoming state; the mutated clone is returned only on turns that fully
//	succeed, so a provider failure can never leave a half-updated state with
//	the caller. Every reply, scripted or generated, leaves through the
//	guardian pipeline.
//
// Thread Safety:
//
//	An Engine is safe for concurrent use across sessions. Callers must
//	serialize turns within one session; the sessions package provides that.
package engine

import (
	"context"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jinterlante1206/AleutianTutor/services/tutor/datatypes"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/guardian"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/intent"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/observability"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/phrases"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/practice"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/research"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/store"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/toolcall"
)

// Metric label values for the turn branch taken.
const (
	branchEmpty      = "empty"
	branchSafety     = "safety"
	branchInsult     = "insult"
	branchPractice   = "practice"
	branchInvitation = "invitation"
	branchResearch   = "research"
	branchOffTopic   = "offtopic"
	branchExplore    = "explore"
	branchTeaching   = "teaching"
)

const (
	statusOK       = "ok"
	statusFallback = "fallback"
)

// maxRememberedExamples bounds UsedExamples growth per conversation.
const maxRememberedExamples = 12

// Config wires an Engine's collaborators. Adapter and Registry are required;
// Research, Memory, Metrics, and Rand may be nil.
type Config struct {
	Adapter  *toolcall.Adapter
	Research research.Provider
	Memory   store.KeyValueStore
	Registry *phrases.Registry
	Metrics  *observability.TurnMetrics

	// Rand drives praise and re-explain phrasing variety. Nil selects the
	// first registry entry every time, which keeps tests deterministic.
	Rand *rand.Rand
}

// Engine is the dialogue orchestrator.
type Engine struct {
	classifier *intent.Classifier
	validator  *practice.Validator
	guard      *guardian.Pipeline
	adapter    *toolcall.Adapter
	research   research.Provider
	memory     store.KeyValueStore
	reg        *phrases.Registry
	metrics    *observability.TurnMetrics
	tracer     trace.Tracer

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New builds an Engine from cfg.
func New(cfg Config) *Engine {
	guard := guardian.NewPipeline(cfg.Registry)
	if cfg.Metrics != nil {
		guard.ObserveRewrites(func(stage string) {
			cfg.Metrics.SanitizerRewritesTotal.WithLabelValues(stage).Inc()
		})
	}
	return &Engine{
		classifier: intent.NewClassifier(cfg.Registry),
		validator:  practice.NewValidator(cfg.Registry),
		guard:      guard,
		adapter:    cfg.Adapter,
		research:   cfg.Research,
		memory:     cfg.Memory,
		reg:        cfg.Registry,
		metrics:    cfg.Metrics,
		tracer:     otel.Tracer("services/tutor/engine"),
		rng:        cfg.Rand,
	}
}

// ProcessTurn runs one student turn through the state machine.
//
// Description:
//
//	Classifies the utterance, dispatches on the current phase, and returns
//	the reply with the next conversation state. Never returns an error:
//	collaborator failures collapse to a sanitized apology with the caller's
//	state unchanged.
//
// Inputs:
//
//	ctx - Deadline and trace propagation for collaborator calls.
//	utterance - The raw student input.
//	state - The caller-owned conversation state. Not mutated.
//	prefs - Per-student delivery preferences.
//
// Outputs:
//
//	datatypes.TurnResult - Sanitized reply text plus the successor state.
func (e *Engine) ProcessTurn(ctx context.Context, utterance string, state datatypes.ConversationState, prefs datatypes.Preferences) datatypes.TurnResult {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine.ProcessTurn")
	defer span.End()

	original := state.Clone()
	st := state.Clone()
	st.Normalize()

	lang := prefs.Language
	firstTurn := st.LastAssistantMessage == ""

	tag := e.classifier.Classify(utterance, st.LastAssistantMessage)
	span.SetAttributes(
		attribute.String("intent", string(tag)),
		attribute.String("phase", st.Phase.String()),
	)

	// Safety and insults outrank every phase.
	switch tag {
	case intent.TagEmpty:
		e.observe(branchEmpty, statusOK, start)
		return datatypes.TurnResult{
			Text:  e.guard.Sanitize(e.reg.Responses.EmptyInput, "", lang),
			State: st,
		}
	case intent.TagSafetyViolation:
		st.SensitiveContentDetected = true
		st.ClearPractice()
		e.observe(branchSafety, statusOK, start)
		return datatypes.TurnResult{
			Text:  e.guard.Sanitize(e.reg.Responses.SafetyViolation, "", lang),
			State: st,
		}
	case intent.TagInsult:
		e.observe(branchInsult, statusOK, start)
		return datatypes.TurnResult{
			Text:  e.guard.Sanitize(e.reg.Responses.Insult, "", lang),
			State: st,
		}
	}

	if st.AwaitingPracticeQuestionAnswer {
		return e.handlePracticeAnswer(ctx, span, utterance, st, original, prefs, tag, start)
	}

	if st.AwaitingPracticeQuestionInvitationResponse {
		if res, handled := e.handleInvitation(ctx, span, utterance, &st, original, prefs, start); handled {
			return res
		}
		// Neither yes nor no: drop the invitation and treat the turn as a
		// fresh teaching input.
	}

	if (prefs.ForceWebSearch || tag == intent.TagSearchAgain) && e.research != nil {
		return e.handleResearch(ctx, span, utterance, st, original, prefs, firstTurn, start)
	}

	switch tag {
	case intent.TagOffTopic:
		e.observe(branchOffTopic, statusOK, start)
		text := e.guard.Sanitize(e.reg.Responses.OffTopic, st.LastTopic, lang)
		st.LastAssistantMessage = text
		return datatypes.TurnResult{Text: text, State: st}

	case intent.TagExplore:
		st.Phase = datatypes.PhaseExploring
		e.observe(branchExplore, statusOK, start)
		text := e.guard.Sanitize(e.reg.Responses.ExplorePrompt, st.LastTopic, lang)
		st.LastAssistantMessage = text
		return datatypes.TurnResult{Text: text, State: st}

	case intent.TagNewTopic:
		st.ClearPractice()
		st.LastTopic = ""
		st.ResearchModeActive = false
		st.UsedExamples = nil
		st.Phase = datatypes.PhaseExploring
		e.observe(branchExplore, statusOK, start)
		text := e.guard.Sanitize(e.reg.Responses.ExplorePrompt, "", lang)
		st.LastAssistantMessage = text
		return datatypes.TurnResult{Text: text, State: st}

	case intent.TagDiveDeeper:
		reply, err := e.adapter.Generate(ctx, buildDiveDeeperMessages(&st))
		if err != nil {
			return e.providerFailure(span, branchTeaching, start, original, lang, err)
		}
		st.Phase = datatypes.PhaseTeaching
		e.observe(branchTeaching, statusOK, start)
		text := e.guard.Sanitize(reply, st.LastTopic, lang)
		st.LastAssistantMessage = text
		return datatypes.TurnResult{Text: text, State: st}

	case intent.TagVague:
		prompt := e.pick(e.reg.VagueReexplainPrompts)
		reply, err := e.adapter.Generate(ctx, buildReexplainMessages(&st, prompt))
		if err != nil {
			return e.providerFailure(span, branchTeaching, start, original, lang, err)
		}
		e.observe(branchTeaching, statusOK, start)
		text := e.guard.Sanitize(reply, st.LastTopic, lang)
		st.LastAssistantMessage = text
		return datatypes.TurnResult{Text: text, State: st}
	}

	return e.handleTeaching(ctx, span, utterance, st, original, prefs, firstTurn, start)
}

// ============================================================================
// Practice answer handling
// ============================================================================

func (e *Engine) handlePracticeAnswer(ctx context.Context, span trace.Span, utterance string, st, original datatypes.ConversationState, prefs datatypes.Preferences, tag intent.Tag, start time.Time) datatypes.TurnResult {
	lang := prefs.Language

	if tag == intent.TagVague {
		// Confusion is not a wrong answer; re-explain without burning an
		// attempt.
		prompt := e.pick(e.reg.VagueReexplainPrompts)
		reply, err := e.adapter.Generate(ctx, buildReexplainMessages(&st, prompt))
		if err != nil {
			return e.providerFailure(span, branchPractice, start, original, lang, err)
		}
		e.observe(branchPractice, statusOK, start)
		text := e.guard.Sanitize(reply, st.LastTopic, lang)
		st.LastAssistantMessage = text
		return datatypes.TurnResult{Text: text, State: st}
	}

	if e.validator.Validate(utterance, st.CorrectAnswers, st.ActivePracticeQuestion) {
		topic := st.LastTopic
		e.recordMastery(ctx, prefs.StudentID, topic)
		st.ClearPractice()
		st.Phase = datatypes.PhaseExploring
		e.observe(branchPractice, statusOK, start)
		reply := e.pick(e.reg.Praise) + " " + e.reg.Responses.SuccessChoiceOffer
		text := e.guard.Sanitize(reply, topic, lang)
		st.LastAssistantMessage = text
		return datatypes.TurnResult{Text: text, State: st}
	}

	st.ValidationAttemptCount++
	step := practice.StepForAttempt(st.ValidationAttemptCount)
	span.SetAttributes(attribute.Int("escalation_step", int(step)))
	e.countEscalation(step)

	if step == practice.StepReveal {
		answer := e.validator.ExpectedAnswer(st.ActivePracticeQuestion, st.CorrectAnswers)
		topic := st.LastTopic
		e.recordMistake(ctx, prefs.StudentID, topic)
		st.ClearPractice()
		st.Phase = datatypes.PhaseTeaching
		e.observe(branchPractice, statusOK, start)
		reply := e.reg.Escalation.RevealPrefix + " " + answer + ". " + e.reg.Responses.SuccessChoiceOffer
		text := e.guard.Sanitize(reply, topic, lang)
		st.LastAssistantMessage = text
		return datatypes.TurnResult{Text: text, State: st}
	}

	var rungPrompt string
	switch step {
	case practice.StepHint:
		rungPrompt = e.reg.Escalation.Hint
	case practice.StepDecompose:
		rungPrompt = e.reg.Escalation.Decompose
	default:
		rungPrompt = e.reg.Escalation.ExplainConcept
	}

	reply, err := e.adapter.Generate(ctx, buildEscalationMessages(&st, rungPrompt, utterance))
	if err != nil {
		// The caller keeps its pre-turn state, so the failed attempt is not
		// counted against the student.
		return e.providerFailure(span, branchPractice, start, original, lang, err)
	}
	e.observe(branchPractice, statusOK, start)
	text := e.guard.Sanitize(reply, st.LastTopic, lang)
	st.LastAssistantMessage = text
	st.UsedExamples = appendExample(st.UsedExamples, text)
	return datatypes.TurnResult{Text: text, State: st}
}

// ============================================================================
// Practice invitation handling
// ============================================================================

// handleInvitation resolves a pending yes/no practice invitation. The second
// return value is false when the utterance is neither; the caller then clears
// the invitation and re-dispatches.
func (e *Engine) handleInvitation(ctx context.Context, span trace.Span, utterance string, st *datatypes.ConversationState, original datatypes.ConversationState, prefs datatypes.Preferences, start time.Time) (datatypes.TurnResult, bool) {
	lang := prefs.Language

	switch {
	case e.classifier.IsAffirmative(utterance):
		topic := st.LastTopic
		if topic == "" {
			topic = deriveTopic(utterance)
		}
		outcome, err := e.adapter.Invoke(ctx, buildPracticeRequestMessages(topic), topic)
		if err != nil {
			return e.providerFailure(span, branchInvitation, start, original, lang, err), true
		}
		e.countRoundTrips(outcome.RoundTrips)
		st.AwaitingPracticeQuestionInvitationResponse = false
		if outcome.Practice == nil {
			// The model answered in prose instead of posing a question.
			e.observe(branchInvitation, statusFallback, start)
			text := e.guard.Sanitize(outcome.Text, st.LastTopic, lang)
			st.Phase = datatypes.PhaseTeaching
			st.LastAssistantMessage = text
			return datatypes.TurnResult{Text: text, State: *st}, true
		}
		specTopic := outcome.Practice.Topic
		if specTopic == "" {
			specTopic = topic
		}
		st.SetPractice(outcome.Practice.Question, outcome.Practice.Answers, specTopic)
		e.observe(branchInvitation, statusOK, start)
		text := e.guard.Sanitize("Here is one to try. "+outcome.Practice.Question, "", lang)
		st.LastAssistantMessage = text
		return datatypes.TurnResult{Text: text, State: *st}, true

	case e.classifier.IsNegative(utterance):
		st.AwaitingPracticeQuestionInvitationResponse = false
		st.Phase = datatypes.PhaseTeaching
		e.observe(branchInvitation, statusOK, start)
		text := e.guard.Sanitize(e.reg.Responses.PracticeInvitationDeclined, st.LastTopic, lang)
		st.LastAssistantMessage = text
		return datatypes.TurnResult{Text: text, State: *st}, true
	}

	st.AwaitingPracticeQuestionInvitationResponse = false
	st.Phase = datatypes.PhaseTeaching
	return datatypes.TurnResult{}, false
}

// ============================================================================
// Research handoff
// ============================================================================

func (e *Engine) handleResearch(ctx context.Context, span trace.Span, utterance string, st, original datatypes.ConversationState, prefs datatypes.Preferences, firstTurn bool, start time.Time) datatypes.TurnResult {
	lang := prefs.Language

	var history []datatypes.Message
	if st.LastAssistantMessage != "" {
		history = append(history, datatypes.Message{Role: datatypes.RoleAssistant, Content: st.LastAssistantMessage})
	}

	result, err := e.research.Research(ctx, utterance, st.LastTopic, history)
	if err != nil {
		return e.providerFailure(span, branchResearch, start, original, lang, err)
	}

	if result.Topic != "" {
		st.LastTopic = result.Topic
	} else if st.LastTopic == "" {
		st.LastTopic = deriveTopic(utterance)
	}
	st.ResearchModeActive = true
	st.Phase = datatypes.PhaseTeaching

	text := e.guard.Sanitize(result.Reply, st.LastTopic, lang)
	if strings.ContainsAny(text, "?؟") {
		// The collaborator ended on a question; treat it as a pending
		// invitation so a bare "yes" next turn means something.
		st.AwaitingPracticeQuestionInvitationResponse = true
		st.Phase = datatypes.PhaseAwaitingResearchInvitation
	}
	st.LastAssistantMessage = text
	if result.Video != nil && !toolcall.RelevantToTopic(result.Video.Title, st.LastTopic) {
		// Collaborator videos pass the same relevance gate as
		// adapter-found ones; an off-topic hit is dropped silently.
		result.Video = nil
		e.countVideoDropped()
	} else {
		e.countVideo(result.Video)
	}
	if result.Video != nil {
		st.VideoSuggested = true
	}

	e.observe(branchResearch, statusOK, start)

	res := datatypes.TurnResult{
		Text:    text,
		State:   st,
		Video:   result.Video,
		Sources: result.Sources,
	}
	if firstTurn {
		res.SuggestedTitle = suggestTitle(st.LastTopic)
	}
	return res
}

// ============================================================================
// Default teaching turn
// ============================================================================

func (e *Engine) handleTeaching(ctx context.Context, span trace.Span, utterance string, st, original datatypes.ConversationState, prefs datatypes.Preferences, firstTurn bool, start time.Time) datatypes.TurnResult {
	lang := prefs.Language

	if st.LastTopic == "" {
		st.LastTopic = deriveTopic(utterance)
	}
	struggles := e.loadStruggles(ctx, prefs.StudentID)

	outcome, err := e.adapter.Invoke(ctx, buildTeachingMessages(&st, utterance, struggles), st.LastTopic)
	if err != nil {
		return e.providerFailure(span, branchTeaching, start, original, lang, err)
	}
	e.countRoundTrips(outcome.RoundTrips)
	e.countVideo(outcome.Video)
	if outcome.Video != nil {
		st.VideoSuggested = true
	}

	st.Phase = datatypes.PhaseTeaching

	var text string
	if outcome.Practice != nil {
		specTopic := outcome.Practice.Topic
		if specTopic == "" {
			specTopic = st.LastTopic
		}
		st.SetPractice(outcome.Practice.Question, outcome.Practice.Answers, specTopic)
		text = e.guard.Sanitize("Let's check your understanding. "+outcome.Practice.Question, "", lang)
	} else {
		text = e.guard.Sanitize(outcome.Text, st.LastTopic, lang)
	}
	st.LastAssistantMessage = text

	e.observe(branchTeaching, statusOK, start)
	slog.Debug("turn processed",
		"branch", branchTeaching,
		"round_trips", outcome.RoundTrips,
		"has_video", outcome.Video != nil,
	)

	res := datatypes.TurnResult{Text: text, State: st, Video: outcome.Video}
	if firstTurn {
		res.SuggestedTitle = suggestTitle(st.LastTopic)
	}
	return res
}

// ============================================================================
// Shared helpers
// ============================================================================

// providerFailure returns the sanitized apology with the caller's state
// exactly as it arrived.
func (e *Engine) providerFailure(span trace.Span, branch string, start time.Time, original datatypes.ConversationState, lang datatypes.LanguageMode, err error) datatypes.TurnResult {
	span.RecordError(err)
	slog.Warn("collaborator failure, returning apology", "branch", branch, "error", err)
	e.observe(branch, statusFallback, start)
	return datatypes.TurnResult{
		Text:  e.guard.Sanitize(e.reg.Responses.ProviderFailure, "", lang),
		State: original,
	}
}

// pick selects a phrase variant under the RNG lock. A nil RNG yields the
// first entry.
func (e *Engine) pick(list []string) string {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return phrases.Pick(list, e.rng)
}

func (e *Engine) observe(branch, status string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.TurnsTotal.WithLabelValues(branch, status).Inc()
	e.metrics.TurnDurationSeconds.WithLabelValues(branch).Observe(time.Since(start).Seconds())
}

func (e *Engine) countRoundTrips(n int) {
	if e.metrics == nil || n <= 0 {
		return
	}
	e.metrics.ModelRoundTripsTotal.WithLabelValues(strconv.Itoa(n)).Inc()
}

func (e *Engine) countVideo(ref *datatypes.VideoRef) {
	if e.metrics == nil {
		return
	}
	decision := "none"
	if ref != nil {
		decision = "attached"
	}
	e.metrics.VideosTotal.WithLabelValues(decision).Inc()
}

func (e *Engine) countVideoDropped() {
	if e.metrics == nil {
		return
	}
	e.metrics.VideosTotal.WithLabelValues("dropped_irrelevant").Inc()
}

func (e *Engine) countEscalation(step practice.Step) {
	if e.metrics == nil {
		return
	}
	e.metrics.EscalationStepsTotal.WithLabelValues(stepLabel(step)).Inc()
}

func stepLabel(step practice.Step) string {
	switch step {
	case practice.StepHint:
		return "hint"
	case practice.StepDecompose:
		return "decompose"
	case practice.StepExplainConcept:
		return "explain"
	case practice.StepReveal:
		return "reveal"
	default:
		return "unknown"
	}
}

func appendExample(examples []string, reply string) []string {
	const maxLen = 120
	snippet := reply
	if len(snippet) > maxLen {
		// Back up to a rune boundary so the stored snippet stays valid UTF-8.
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(snippet[cut]) {
			cut--
		}
		snippet = snippet[:cut]
	}
	examples = append(examples, snippet)
	if len(examples) > maxRememberedExamples {
		examples = examples[len(examples)-maxRememberedExamples:]
	}
	return examples
}
