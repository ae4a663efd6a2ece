// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intent classifies student utterances into a closed set of tags.
//
// Classification is deliberately shallow: case-insensitive substring matching
// against the phrase registry, no ML. The precedence order below is a hard
// contract; a broad category must never shadow a narrower one earlier in the
// chain (an insult that also mentions the lesson is still an insult).
//
// Precedence, first match wins:
//
//	Empty -> SafetyViolation -> SearchAgain -> Insult -> OffTopic -> Vague
//	-> Explore -> DiveDeeper/NewTopic (only if offered) -> Valid
//
// Thread Safety: Classifier is immutable after construction.
package intent

import (
	"strings"

	"github.com/jinterlante1206/AleutianTutor/services/tutor/phrases"
)

// Tag is the classification result for one utterance.
type Tag string

const (
	// TagEmpty marks whitespace-only input.
	TagEmpty Tag = "EMPTY"

	// TagSafetyViolation marks input touching a blocked subject.
	TagSafetyViolation Tag = "SAFETY_VIOLATION"

	// TagInsult marks abusive language aimed at the tutor.
	TagInsult Tag = "INSULT"

	// TagOffTopic marks input about something other than the lesson.
	TagOffTopic Tag = "OFF_TOPIC"

	// TagVague marks confusion ("I don't get it") rather than an answer.
	TagVague Tag = "VAGUE"

	// TagSearchAgain marks an explicit request to repeat a web search.
	TagSearchAgain Tag = "SEARCH_AGAIN"

	// TagExplore marks a request to switch to a different subject.
	TagExplore Tag = "EXPLORE"

	// TagDiveDeeper marks acceptance of an offered deeper dive.
	TagDiveDeeper Tag = "DIVE_DEEPER"

	// TagNewTopic marks acceptance of an offered topic change.
	TagNewTopic Tag = "NEW_TOPIC"

	// TagValid marks input that reached the end of the chain and should be
	// handled by the current phase's default action.
	TagValid Tag = "VALID"
)

// Classifier matches utterances against the phrase registry tables.
type Classifier struct {
	reg *phrases.Registry
}

// NewClassifier builds a classifier over the given registry.
func NewClassifier(reg *phrases.Registry) *Classifier {
	return &Classifier{reg: reg}
}

// Classify maps an utterance to a Tag.
//
// Inputs:
//
//	text - Raw student utterance.
//	lastAssistantMessage - Previous reply, consulted only for the
//	    DiveDeeper/NewTopic tags, which require that the reply actually
//	    offered those choices.
//
// Outputs:
//
//	Tag - The first matching tag in precedence order, TagValid otherwise.
func (c *Classifier) Classify(text, lastAssistantMessage string) Tag {
	if strings.TrimSpace(text) == "" {
		return TagEmpty
	}
	lower := strings.ToLower(text)

	if containsAny(lower, c.reg.Keywords.Safety) {
		return TagSafetyViolation
	}
	if containsAny(lower, c.reg.Keywords.SearchAgain) {
		return TagSearchAgain
	}
	if containsAny(lower, c.reg.Keywords.Insults) {
		return TagInsult
	}
	if containsAny(lower, c.reg.Keywords.OffTopic) {
		return TagOffTopic
	}
	if containsAny(lower, c.reg.Keywords.Vague) {
		return TagVague
	}
	if containsAny(lower, c.reg.Keywords.Explore) {
		return TagExplore
	}

	// DiveDeeper/NewTopic only count when the previous reply offered the
	// choice; otherwise "tell me more" is just a valid teaching request.
	lastLower := strings.ToLower(lastAssistantMessage)
	if containsAny(lower, c.reg.Keywords.DiveDeeper) && offersChoice(lastLower, c.reg.Keywords.DiveDeeper) {
		return TagDiveDeeper
	}
	if containsAny(lower, c.reg.Keywords.NewTopic) && offersChoice(lastLower, c.reg.Keywords.NewTopic) {
		return TagNewTopic
	}

	return TagValid
}

// IsAffirmative reports whether the utterance reads as a yes. Used by the
// engine to resolve pending invitations.
func (c *Classifier) IsAffirmative(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return false
	}
	for _, kw := range c.reg.Keywords.Affirmative {
		if lower == kw || strings.HasPrefix(lower, kw+" ") || strings.HasPrefix(lower, kw+",") || strings.HasPrefix(lower, kw+"!") {
			return true
		}
	}
	return false
}

// IsNegative reports whether the utterance reads as a no.
func (c *Classifier) IsNegative(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return false
	}
	for _, kw := range c.reg.Keywords.Negative {
		if lower == kw || strings.HasPrefix(lower, kw+" ") || strings.HasPrefix(lower, kw+",") || strings.HasPrefix(lower, kw+".") {
			return true
		}
	}
	return false
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// offersChoice reports whether the previous assistant message put one of the
// keywords on the table, i.e. asked a question that mentions it.
func offersChoice(lastLower string, keywords []string) bool {
	if lastLower == "" || !strings.ContainsAny(lastLower, "?؟") {
		return false
	}
	return containsAny(lastLower, keywords)
}
