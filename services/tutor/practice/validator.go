// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package practice validates student answers to practice questions and
// drives the wrong-answer escalation ladder.
//
// Two validation paths exist. String questions accept any input containing
// one of the accepted keywords. Questions that themselves evaluate as
// arithmetic ("10 - 3") instead compare numerically: the student's text is
// evaluated as an expression, falling back to a fixed word-to-number table
// ("seven" -> 7), and matched within an absolute epsilon. Input that cannot
// be interpreted either way counts as incorrect, never as an error.
//
// Thread Safety: Validator is immutable after construction.
package practice

import (
	"math"
	"strconv"
	"strings"

	"github.com/jinterlante1206/AleutianTutor/services/tutor/phrases"
)

// Epsilon is the absolute tolerance for numeric answer comparison.
const Epsilon = 1e-7

// Step identifies a rung of the escalation ladder.
type Step int

const (
	// StepHint rephrases with a different analogy (first wrong answer).
	StepHint Step = iota + 1

	// StepDecompose breaks the question into a smaller sub-question.
	StepDecompose

	// StepExplainConcept explains the underlying concept without the answer.
	StepExplainConcept

	// StepReveal gives the answer with a short explanation and resets the
	// practice flow.
	StepReveal
)

// StepForAttempt maps a validation attempt count (after incrementing for the
// current wrong answer) to the ladder rung. Attempts beyond the ladder all
// reveal.
func StepForAttempt(attempt int) Step {
	switch {
	case attempt <= 1:
		return StepHint
	case attempt == 2:
		return StepDecompose
	case attempt == 3:
		return StepExplainConcept
	default:
		return StepReveal
	}
}

// Validator checks student answers against the accepted set.
type Validator struct {
	wordNumbers map[string]float64
}

// NewValidator builds a validator using the registry's word-number table.
func NewValidator(reg *phrases.Registry) *Validator {
	return &Validator{wordNumbers: reg.WordNumbers}
}

// Validate reports whether the student's input answers the question.
//
// Inputs:
//
//	input - Raw student text.
//	correctAnswers - Lower-cased accepted keywords.
//	question - The active practice question; decides the numeric path.
func (v *Validator) Validate(input string, correctAnswers []string, question string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(input))
	if trimmed == "" {
		return false
	}

	if expected, ok := v.questionValue(question); ok {
		if got, ok := v.answerValue(trimmed); ok {
			return math.Abs(got-expected) < Epsilon
		}
		// Numeric question but non-numeric input: the keyword set may still
		// carry word forms ("seven"), so fall through to containment.
	}

	for _, answer := range correctAnswers {
		if answer != "" && strings.Contains(trimmed, answer) {
			return true
		}
	}
	return false
}

// ExpectedAnswer returns the display form of the correct answer, for the
// reveal rung: the numeric value for arithmetic questions, otherwise the
// first accepted keyword.
func (v *Validator) ExpectedAnswer(question string, correctAnswers []string) string {
	if expected, ok := v.questionValue(question); ok {
		return trimFloat(expected)
	}
	if len(correctAnswers) > 0 {
		return correctAnswers[0]
	}
	return ""
}

// questionValue evaluates the question as arithmetic, if it is one.
func (v *Validator) questionValue(question string) (float64, bool) {
	span := ExtractArithmetic(question)
	if span == "" || !strings.ContainsAny(span, "+-*/×÷") {
		return 0, false
	}
	val, err := EvalArithmetic(span)
	if err != nil {
		return 0, false
	}
	return val, true
}

// answerValue interprets student text as a number: expression first, then
// the word-number table.
func (v *Validator) answerValue(lowerInput string) (float64, bool) {
	if span := ExtractArithmetic(lowerInput); span != "" {
		if val, err := EvalArithmetic(span); err == nil {
			return val, true
		}
	}
	if val, ok := v.wordNumbers[strings.Trim(lowerInput, " .!،؟?")]; ok {
		return val, true
	}
	return 0, false
}

// trimFloat renders a float for student-facing text: integers without a
// decimal point, everything else in the shortest exact form.
func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
