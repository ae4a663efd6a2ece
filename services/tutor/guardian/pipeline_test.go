// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package guardian

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/jinterlante1206/AleutianTutor/services/tutor/datatypes"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/phrases"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	return NewPipeline(phrases.MustLoad())
}

func TestSanitizeStripsMarkdown(t *testing.T) {
	p := newTestPipeline(t)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bold",
			in:   "**Plants** make food from light.",
			want: "Plants make food from light.",
		},
		{
			name: "inline code",
			in:   "The word `photosynthesis` is Greek.",
			want: "The word photosynthesis is Greek.",
		},
		{
			name: "heading",
			in:   "## Photosynthesis\nPlants make food.",
			want: "Photosynthesis\nPlants make food.",
		},
		{
			name: "bullets",
			in:   "- light\n- water",
			want: "light\nwater",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Sanitize(tt.in, "", datatypes.LanguageDefault)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeCanonicalizesFractions(t *testing.T) {
	p := newTestPipeline(t)

	tests := []struct {
		in   string
		want string
	}{
		{`Half is \frac{1}{2} of a whole.`, "Half is (1/2) of a whole."},
		{`Half is \dfrac{1}{2} of a whole.`, "Half is (1/2) of a whole."},
		{`Half is $\frac{1}{2}$ of a whole.`, "Half is (1/2) of a whole."},
		{`Half is {1}{2} of a whole.`, "Half is (1/2) of a whole."},
	}
	for _, tt := range tests {
		got := p.Sanitize(tt.in, "", datatypes.LanguageDefault)
		if got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeDropsNonNumericParens(t *testing.T) {
	p := newTestPipeline(t)

	got := p.Sanitize("Roots absorb water (and also minerals) from soil. The sum is (3 + 4).", "", datatypes.LanguageDefault)
	if strings.Contains(got, "minerals") {
		t.Errorf("non-numeric parenthetical survived: %q", got)
	}
	if !strings.Contains(got, "(3 + 4)") {
		t.Errorf("numeric parenthetical was dropped: %q", got)
	}
}

func TestSanitizeStripsRoboticFraming(t *testing.T) {
	p := newTestPipeline(t)

	got := p.Sanitize("As an AI, I think plants are neat.", "", datatypes.LanguageDefault)
	if strings.Contains(strings.ToLower(got), "as an ai") {
		t.Errorf("robotic framing survived: %q", got)
	}
	if !strings.Contains(got, "plants are neat") {
		t.Errorf("content around the framing was lost: %q", got)
	}
}

func TestSanitizeQuestionMarkBudget(t *testing.T) {
	p := newTestPipeline(t)

	got := p.Sanitize("Ready? Sure? Let's go?", "", datatypes.LanguageDefault)
	if n := strings.Count(got, "?"); n != 1 {
		t.Errorf("got %d question marks, want 1: %q", n, got)
	}
	if !strings.HasSuffix(got, "?") {
		t.Errorf("the surviving question mark must be the last: %q", got)
	}
}

func TestSanitizeEmojiBudget(t *testing.T) {
	p := newTestPipeline(t)

	got := p.Sanitize("Great 🎉 work 🌟 today 🚀", "", datatypes.LanguageDefault)
	if n := CountEmoji(got); n != 1 {
		t.Errorf("got %d emoji, want 1: %q", n, got)
	}
	if !strings.HasSuffix(got, "🎉") {
		t.Errorf("kept emoji should be first seen, relocated to the end: %q", got)
	}
}

func TestSanitizeArabicStripsAllEmoji(t *testing.T) {
	p := newTestPipeline(t)

	got := p.Sanitize("أحسنت 🎉 عمل رائع 🌟", "", datatypes.LanguageArabic)
	if n := CountEmoji(got); n != 0 {
		t.Errorf("got %d emoji in arabic mode, want 0: %q", n, got)
	}
}

func TestSanitizeArabicPunctuation(t *testing.T) {
	p := newTestPipeline(t)

	got := p.Sanitize("هل فهمت الدرس?", "", datatypes.LanguageArabic)
	if strings.Contains(got, "?") {
		t.Errorf("latin question mark survived arabic mode: %q", got)
	}
	if !strings.Contains(got, "؟") {
		t.Errorf("expected arabic question mark: %q", got)
	}
}

func TestSanitizeAnchorsTopic(t *testing.T) {
	p := newTestPipeline(t)

	got := p.Sanitize("That is a wonderful effort.", "multiplication", datatypes.LanguageDefault)
	if !strings.Contains(got, "multiplication") {
		t.Errorf("topic anchor missing: %q", got)
	}

	// Already anchored text is left alone.
	anchored := p.Sanitize("Multiplication is repeated addition.", "multiplication", datatypes.LanguageDefault)
	if strings.Count(strings.ToLower(anchored), "multiplication") != 1 {
		t.Errorf("anchor added to already-anchored text: %q", anchored)
	}
}

func TestSanitizeRoboticFramingAfterWidthChangingRunes(t *testing.T) {
	p := newTestPipeline(t)

	// Lowercasing Ⱥ (U+023A) grows it from 2 bytes to 3, and lowercasing
	// İ (U+0130) shrinks it from 2 bytes to 1. Either would desync byte
	// offsets if the phrase were located in a lowered copy of the text.
	cases := []string{
		strings.Repeat("Ⱥ", 8) + " as an AI, hello",
		"İİ as an AI, hello",
	}
	for _, in := range cases {
		got := p.Sanitize(in, "", datatypes.LanguageDefault)
		if strings.Contains(strings.ToLower(got), "as an ai") {
			t.Errorf("Sanitize(%q): robotic framing survived: %q", in, got)
		}
		if !strings.Contains(got, "hello") {
			t.Errorf("Sanitize(%q): content after the framing was lost: %q", in, got)
		}
		if !utf8.ValidString(got) {
			t.Errorf("Sanitize(%q) produced invalid UTF-8: %q", in, got)
		}
	}
}

func TestSanitizeAnchorAfterTrailingEmoji(t *testing.T) {
	p := newTestPipeline(t)

	got := p.Sanitize("Great job 🎉", "math", datatypes.LanguageDefault)
	if !strings.Contains(got, "Great job.") {
		t.Errorf("sentence before the anchor not terminated: %q", got)
	}
	if !strings.Contains(got, "math") {
		t.Errorf("topic anchor missing: %q", got)
	}
	if !strings.HasSuffix(got, "🎉") {
		t.Errorf("trailing emoji should stay last: %q", got)
	}
}

func TestSanitizeReplacesFillers(t *testing.T) {
	p := newTestPipeline(t)

	got := p.Sanitize("Roots grow down due to the fact that gravity pulls them.", "", datatypes.LanguageDefault)
	if strings.Contains(strings.ToLower(got), "due to the fact that") {
		t.Errorf("filler phrase survived: %q", got)
	}
	if !strings.Contains(got, "because") {
		t.Errorf("filler replacement missing: %q", got)
	}
}

func TestSanitizeSoftensRunOns(t *testing.T) {
	p := newTestPipeline(t)

	got := p.Sanitize("The sun warms the sea, and it makes the water rise; clouds form.", "", datatypes.LanguageDefault)
	if strings.Contains(got, ", and it") {
		t.Errorf("run-on survived: %q", got)
	}
	if strings.Contains(got, ";") {
		t.Errorf("semicolon survived: %q", got)
	}
}

// Sanitize must be a fixed point: running it twice never changes the text
// again. This holds for every exit path of the engine.
func TestSanitizeIdempotent(t *testing.T) {
	p := newTestPipeline(t)

	inputs := []struct {
		text  string
		topic string
		lang  datatypes.LanguageMode
	}{
		{"**Bold** and \\frac{1}{2} and 🎉 fun 🌟. Right? Sure?", "fractions", datatypes.LanguageDefault},
		{"Plain sentence without anything special.", "", datatypes.LanguageDefault},
		{"Great job 🎉", "multiplication", datatypes.LanguageDefault},
		{"هل فهمت الدرس? نعم 🎉", "الكسور", datatypes.LanguageArabic},
		{"As an AI, due to the fact that (nested (parens) here) work, and it shows.", "parentheses", datatypes.LanguageDefault},
	}
	for _, in := range inputs {
		once := p.Sanitize(in.text, in.topic, in.lang)
		twice := p.Sanitize(once, in.topic, in.lang)
		if once != twice {
			t.Errorf("not idempotent for %q:\n once: %q\ntwice: %q", in.text, once, twice)
		}
	}
}

func TestCountEmoji(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"no emoji here", 0},
		{"one 🎉", 1},
		{"two 🎉🌟", 2},
		{"star ⭐ check ✅", 2},
	}
	for _, tt := range tests {
		if got := CountEmoji(tt.in); got != tt.want {
			t.Errorf("CountEmoji(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestObserveRewritesReportsChangedStages(t *testing.T) {
	p := newTestPipeline(t)
	var stages []string
	p.ObserveRewrites(func(stage string) { stages = append(stages, stage) })

	p.Sanitize("**Bold** text with a \\frac{1}{2} inside.", "", datatypes.LanguageDefault)

	seen := map[string]bool{}
	for _, s := range stages {
		seen[s] = true
	}
	if !seen["markdown"] {
		t.Errorf("markdown stage not reported; got %v", stages)
	}
	if !seen["latex"] {
		t.Errorf("latex stage not reported; got %v", stages)
	}

	stages = nil
	p.Sanitize("Nothing to clean here.", "", datatypes.LanguageDefault)
	if len(stages) != 0 {
		t.Errorf("clean input reported rewrites: %v", stages)
	}
}
