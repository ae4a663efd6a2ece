// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package toolcall wraps the bounded tool-calling protocol with the
// generation provider.
//
// One invocation performs at most two model round-trips: the initial
// completion, plus one follow-up only when the model asked for a video
// transcript. Tool execution failures never escape as errors; they degrade
// to fixed fallback sentences so the student always gets an in-character
// reply.
//
// Thread Safety: Adapter is immutable after construction; safe for
// concurrent use across sessions.
package toolcall

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/jinterlante1206/AleutianTutor/services/llm"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/datatypes"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/phrases"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/video"
)

// MaxTranscriptChars caps the transcript text fed back to the model on the
// follow-up round-trip.
const MaxTranscriptChars = 50000

// Tool names as declared to the provider.
const (
	ToolNameAskPracticeQuestion = "ask_practice_question"
	ToolNameSearchVideo         = "search_educational_video"
	ToolNameFetchTranscript     = "fetch_video_transcript"
)

// PracticeSpec is the decoded ask_practice_question tool call.
type PracticeSpec struct {
	Question string
	Answers  []string
	Topic    string
}

// Outcome is the result of one bounded invocation.
type Outcome struct {
	// Text is the candidate reply. Always set unless Practice is set.
	Text string

	// Video is a relevance-gated video to attach, or nil.
	Video *datatypes.VideoRef

	// Practice is set when the model chose to pose a practice question.
	Practice *PracticeSpec

	// RoundTrips counts model calls made (1 or 2).
	RoundTrips int
}

// Adapter executes the tool-calling protocol against a generation provider
// and a video collaborator.
type Adapter struct {
	client   llm.LLMClient
	videos   video.Provider
	reg      *phrases.Registry
	splitter textsplitter.RecursiveCharacter
	tools    []llm.ToolDefinition
}

// NewAdapter builds an adapter. The videos provider may be nil; video tools
// then degrade to the fixed fallback sentence.
func NewAdapter(client llm.LLMClient, videos video.Provider, reg *phrases.Registry) *Adapter {
	splitter := textsplitter.NewRecursiveCharacter()
	splitter.ChunkSize = MaxTranscriptChars
	splitter.ChunkOverlap = 0
	return &Adapter{
		client:   client,
		videos:   videos,
		reg:      reg,
		splitter: splitter,
		tools:    declaredTools(),
	}
}

// declaredTools is the closed set of callable tools, described with JSON
// Schema the way both supported providers expect.
func declaredTools() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        ToolNameAskPracticeQuestion,
			Description: "Pose one short practice question to check the student's understanding. Use after explaining a concept.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"question": map[string]any{"type": "string", "description": "The practice question text."},
					"answers":  map[string]any{"type": "string", "description": "Comma-separated accepted answer keywords."},
					"topic":    map[string]any{"type": "string", "description": "The topic the question belongs to."},
				},
				"required": []string{"question", "answers"},
			},
		},
		{
			Name:        ToolNameSearchVideo,
			Description: "Search for a short educational video about the current topic.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "Video search query."},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        ToolNameFetchTranscript,
			Description: "Fetch the transcript of a previously suggested video so you can discuss its content.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"video_id": map[string]any{"type": "string", "description": "The id of the video to transcribe."},
				},
				"required": []string{"video_id"},
			},
		},
	}
}

// Generate performs a single plain-text round-trip with no tools declared.
func (a *Adapter) Generate(ctx context.Context, messages []datatypes.Message) (string, error) {
	completion, err := a.client.Chat(ctx, messages, llm.GenerationParams{})
	if err != nil {
		return "", err
	}
	if completion.ToolCall != nil {
		// No tools were declared; a tool call here is provider misbehavior.
		return "", fmt.Errorf("toolcall: unexpected tool call %q", completion.ToolCall.Name)
	}
	return completion.Text, nil
}

// Invoke performs the bounded tool-calling protocol.
//
// Inputs:
//
//	messages - Conversation context for the model.
//	topic - Active topic; drives the video relevance gate.
//
// Outputs:
//
//	Outcome - Candidate reply, optional video, optional practice spec.
//	error - Non-nil only when the FIRST round-trip fails; the caller keeps
//	    conversation state unchanged in that case. Failures after the first
//	    round-trip degrade to fallback text inside the Outcome.
func (a *Adapter) Invoke(ctx context.Context, messages []datatypes.Message, topic string) (Outcome, error) {
	completion, err := a.client.Chat(ctx, messages, llm.GenerationParams{Tools: a.tools})
	if err != nil {
		return Outcome{}, fmt.Errorf("toolcall: completion failed: %w", err)
	}
	if completion.ToolCall == nil {
		return Outcome{Text: completion.Text, RoundTrips: 1}, nil
	}

	call := completion.ToolCall
	invocation := decodeToolCall(call)
	slog.Debug("Model selected a tool", "tool", call.Name)

	switch invocation.Kind {
	case datatypes.ToolAskPracticeQuestion:
		if invocation.Question == "" || len(invocation.Answers) == 0 {
			slog.Warn("Practice tool call missing question or answers")
			return Outcome{Text: a.reg.Responses.ToolFailure, RoundTrips: 1}, nil
		}
		return Outcome{
			Practice:   &PracticeSpec{Question: invocation.Question, Answers: invocation.Answers, Topic: invocation.Topic},
			RoundTrips: 1,
		}, nil

	case datatypes.ToolSearchVideo:
		return a.executeVideoSearch(ctx, invocation.Query, topic), nil

	case datatypes.ToolFetchTranscript:
		return a.executeTranscriptFetch(ctx, messages, call, invocation.VideoID), nil

	default:
		slog.Warn("Model selected an undeclared tool", "tool", call.Name)
		return Outcome{Text: a.reg.Responses.ToolFailure, RoundTrips: 1}, nil
	}
}

// decodeToolCall maps a provider tool call onto the internal union. Malformed
// arguments yield a zero-value invocation of the right kind, which the
// executors treat as a tool failure.
func decodeToolCall(call *llm.ToolCall) datatypes.ToolInvocation {
	var args struct {
		Question string `json:"question"`
		Answers  string `json:"answers"`
		Topic    string `json:"topic"`
		Query    string `json:"query"`
		VideoID  string `json:"video_id"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		slog.Warn("Malformed tool arguments", "tool", call.Name, "error", err)
	}

	switch call.Name {
	case ToolNameAskPracticeQuestion:
		return datatypes.ToolInvocation{
			Kind:     datatypes.ToolAskPracticeQuestion,
			Question: strings.TrimSpace(args.Question),
			Answers:  splitAnswers(args.Answers),
			Topic:    strings.TrimSpace(args.Topic),
		}
	case ToolNameSearchVideo:
		return datatypes.ToolInvocation{Kind: datatypes.ToolSearchVideo, Query: strings.TrimSpace(args.Query)}
	case ToolNameFetchTranscript:
		return datatypes.ToolInvocation{Kind: datatypes.ToolFetchTranscript, VideoID: strings.TrimSpace(args.VideoID)}
	default:
		return datatypes.ToolInvocation{Kind: datatypes.ToolKind(call.Name)}
	}
}

func splitAnswers(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// executeVideoSearch runs the search and applies the relevance gate. An
// irrelevant or missing result drops the video silently; the reply text then
// carries no video reference.
func (a *Adapter) executeVideoSearch(ctx context.Context, query, topic string) Outcome {
	if a.videos == nil || query == "" {
		return Outcome{Text: a.reg.Responses.ToolFailure, RoundTrips: 1}
	}
	results, err := a.videos.Search(ctx, query)
	if err != nil {
		slog.Warn("Video search failed", "error", err)
		return Outcome{Text: a.reg.Responses.ToolFailure, RoundTrips: 1}
	}
	for i := range results {
		if RelevantToTopic(results[i].Title, topic) {
			text := fmt.Sprintf("I found a video called %q that should help. Want to watch it together?", results[i].Title)
			return Outcome{Text: text, Video: &results[i], RoundTrips: 1}
		}
	}
	slog.Debug("No relevant video for topic", "topic", topic, "results", len(results))
	return Outcome{Text: a.reg.Responses.ToolFailure, RoundTrips: 1}
}

// executeTranscriptFetch performs the only permitted second round-trip:
// fetch the transcript, truncate it, and feed it back as tool output.
func (a *Adapter) executeTranscriptFetch(ctx context.Context, messages []datatypes.Message, call *llm.ToolCall, videoID string) Outcome {
	if videoID == "" {
		// The model lost track of the session; do not call it again.
		return Outcome{Text: a.reg.Responses.LostVideoContext, RoundTrips: 1}
	}
	if a.videos == nil {
		return Outcome{Text: a.reg.Responses.ToolFailure, RoundTrips: 1}
	}

	transcript, err := a.videos.Transcript(ctx, videoID)
	if err != nil {
		slog.Warn("Transcript fetch failed", "video_id", videoID, "error", err)
		return Outcome{Text: a.reg.Responses.ToolFailure, RoundTrips: 1}
	}
	transcript = a.truncateTranscript(transcript)

	completion, err := a.client.Chat(ctx, messages, llm.GenerationParams{
		Tools: a.tools,
		ToolResult: &llm.ToolResult{
			CallID:    call.ID,
			Name:      call.Name,
			Arguments: call.Arguments,
			Content:   transcript,
		},
	})
	if err != nil {
		slog.Warn("Transcript follow-up failed", "error", err)
		return Outcome{Text: a.reg.Responses.ToolFailure, RoundTrips: 2}
	}
	if completion.ToolCall != nil {
		// The budget is two calls; a second tool request is refused.
		slog.Warn("Model requested another tool after transcript feedback", "tool", completion.ToolCall.Name)
		return Outcome{Text: a.reg.Responses.ToolFailure, RoundTrips: 2}
	}
	return Outcome{Text: completion.Text, RoundTrips: 2}
}

// truncateTranscript bounds the transcript using the recursive splitter so
// the cut lands on a natural boundary instead of mid-sentence.
func (a *Adapter) truncateTranscript(transcript string) string {
	if len(transcript) <= MaxTranscriptChars {
		return transcript
	}
	chunks, err := a.splitter.SplitText(transcript)
	if err != nil || len(chunks) == 0 {
		return transcript[:MaxTranscriptChars]
	}
	return chunks[0]
}

// RelevantToTopic reports whether a video title shares at least one content
// keyword (length > 3) with the topic. A single-keyword substring heuristic:
// tune, don't trust, its precision.
func RelevantToTopic(title, topic string) bool {
	titleLower := strings.ToLower(title)
	for _, word := range strings.Fields(strings.ToLower(topic)) {
		word = strings.Trim(word, ".,!?:;\"'()")
		if len(word) > 3 && strings.Contains(titleLower, word) {
			return true
		}
	}
	return false
}
