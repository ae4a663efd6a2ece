// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package guardian is the mandatory final gate for every reply the tutor
// produces.
//
// The pipeline is an ordered chain of total, side-effect-free text
// transforms. It guarantees structural and tone properties of the final text
// regardless of what the model emitted: no robotic framing, no markdown or
// LaTeX markup, bounded parentheses, at most one question mark, a bounded
// emoji budget, and an explicit reference to the active topic.
//
// The stage order is fixed. Later stages assume earlier normalization (emoji
// counting runs after markdown stripping; punctuation translation runs after
// the question-mark budget). Every stage is safe on already-sanitized input,
// so running the pipeline twice yields the same text.
//
// Thread Safety: Pipeline is immutable after construction; safe for
// concurrent use across sessions.
package guardian

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/jinterlante1206/AleutianTutor/services/tutor/datatypes"
	"github.com/jinterlante1206/AleutianTutor/services/tutor/phrases"
)

// maxParenPasses bounds the nested-parentheses flattening loop. Flattening is
// best-effort normalization, not a guarantee: pathological nesting deeper
// than this many levels is left as-is rather than risking an unbounded loop.
const maxParenPasses = 5

// Package-level compiled regexes (compiled once, shared by every pipeline).
var (
	fracRegex       = regexp.MustCompile(`\\[dt]?frac\s*\{([^{}]*)\}\s*\{([^{}]*)\}`)
	adjacentBraces  = regexp.MustCompile(`\{([^{}]+)\}\s*\{([^{}]+)\}`)
	latexMacroRegex = regexp.MustCompile(`\\[a-zA-Z]+`)
	latexDelimRegex = regexp.MustCompile(`\\\(|\\\)|\\\[|\\\]|\$\$?`)

	boldRegex      = regexp.MustCompile(`\*{1,3}([^*\n]+)\*{1,3}`)
	underRegex     = regexp.MustCompile(`_{1,3}([^_\n]+)_{1,3}`)
	codeFenceRegex = regexp.MustCompile("```[a-zA-Z]*\\n?")
	inlineCode     = regexp.MustCompile("`([^`\n]*)`")
	headingRegex   = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	bulletRegex    = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)

	nestedParen  = regexp.MustCompile(`\(([^()]*)\(([^()]*)\)([^()]*)\)`)
	parenGroup   = regexp.MustCompile(`\(([^()]*)\)`)
	numericParen = regexp.MustCompile(`^[0-9+\-*/×÷=.,%\s]*[0-9][0-9+\-*/×÷=.,%\s]*$`)

	runOnRegex  = regexp.MustCompile(`(?i), and (it|this|that|these|those|they|them|we|you|he|she|i|the|a|an)\b`)
	multiSpace  = regexp.MustCompile(`[ \t]{2,}`)
	spacePunct  = regexp.MustCompile(`\s+([.,!?;:؟،])`)
	multiStop   = regexp.MustCompile(`\.{2,}`)
)

// Pipeline applies the ordered sanitization stages.
type Pipeline struct {
	robotic   []string     // lowercase phrases to strip
	fillers   []fillerRule // compiled filler replacements
	onRewrite func(stage string)
}

type fillerRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// NewPipeline builds a pipeline over the phrase registry tables.
func NewPipeline(reg *phrases.Registry) *Pipeline {
	p := &Pipeline{robotic: reg.RoboticPhrases}
	for phrase, repl := range reg.Fillers {
		p.fillers = append(p.fillers, fillerRule{
			pattern:     regexp.MustCompile(`(?i)` + regexp.QuoteMeta(phrase)),
			replacement: repl,
		})
	}
	return p
}

// ObserveRewrites registers a callback invoked with the stage name whenever a
// stage changes its input. Intended for metrics. Must be called before the
// pipeline is shared across goroutines.
func (p *Pipeline) ObserveRewrites(fn func(stage string)) {
	p.onRewrite = fn
}

// Sanitize runs every stage in order and returns the cleaned text.
//
// Inputs:
//
//	text - Candidate reply, possibly straight from a model.
//	topic - Active topic for the anchoring stage. Empty skips anchoring.
//	lang - Language mode for the emoji and punctuation stages.
//
// Outputs:
//
//	string - Sanitized text. Never panics; malformed markup degrades to
//	    best-effort stripping.
func (p *Pipeline) Sanitize(text, topic string, lang datatypes.LanguageMode) string {
	text = p.apply("robotic", text, p.stripRoboticPhrases)
	text = p.apply("markdown", text, stripMarkdown)
	text = p.apply("latex", text, stripLaTeX)
	text = p.apply("parens", text, normalizeParens)
	text = p.apply("fillers", text, p.replaceFillers)
	text = p.apply("runons", text, softenRunOns)
	text = p.apply("questions", text, limitQuestionMarks)
	text = p.apply("emoji", text, func(s string) string { return applyEmojiPolicy(s, lang) })
	if lang == datatypes.LanguageArabic {
		text = p.apply("arabic", text, arabicPunctuation)
	}
	text = p.apply("anchor", text, func(s string) string { return anchorTopic(s, topic, lang) })
	return tidyWhitespace(text)
}

// apply runs one stage and reports a rewrite to the observer when the stage
// changed its input.
func (p *Pipeline) apply(stage, text string, fn func(string) string) string {
	out := fn(text)
	if out != text && p.onRewrite != nil {
		p.onRewrite(stage)
	}
	return out
}

// Stage 1: remove scripted robotic framing phrases.
func (p *Pipeline) stripRoboticPhrases(text string) string {
	for _, phrase := range p.robotic {
		for {
			start, end := indexFold(text, phrase)
			if start < 0 {
				break
			}
			// Swallow a trailing comma or colon so "As an AI, I think"
			// reduces to "I think".
			for end < len(text) && (text[end] == ',' || text[end] == ':' || text[end] == ' ') {
				end++
			}
			text = text[:start] + text[end:]
		}
	}
	return text
}

// indexFold locates the first case-insensitive occurrence of phrase (already
// lower case) in text and returns its byte offsets there, or (-1, -1).
// Lowercasing a rune can change its UTF-8 width, so the offsets must be
// computed against the original bytes, never against a lowered copy.
func indexFold(text, phrase string) (int, int) {
	pr := []rune(phrase)
	if len(pr) == 0 {
		return -1, -1
	}
	tr := []rune(text)
	for i := 0; i+len(pr) <= len(tr); i++ {
		match := true
		for j, want := range pr {
			if unicode.ToLower(tr[i+j]) != want {
				match = false
				break
			}
		}
		if match {
			start := len(string(tr[:i]))
			return start, start + len(string(tr[i:i+len(pr)]))
		}
	}
	return -1, -1
}

// Stage 2: strip markdown emphasis, code, heading and bullet markers.
func stripMarkdown(text string) string {
	text = codeFenceRegex.ReplaceAllString(text, "")
	text = inlineCode.ReplaceAllString(text, "$1")
	text = boldRegex.ReplaceAllString(text, "$1")
	text = underRegex.ReplaceAllString(text, "$1")
	text = headingRegex.ReplaceAllString(text, "")
	text = bulletRegex.ReplaceAllString(text, "")
	return text
}

// Stage 3: remove LaTeX markup, keeping numeric content. A numerator and
// denominator that sit directly next to each other collapse into the
// canonical "(n/d)" form.
func stripLaTeX(text string) string {
	text = fracRegex.ReplaceAllString(text, "($1/$2)")
	text = adjacentBraces.ReplaceAllString(text, "($1/$2)")
	text = latexDelimRegex.ReplaceAllString(text, "")
	text = latexMacroRegex.ReplaceAllString(text, "")
	text = strings.NewReplacer("{", "", "}", "", "\\", "").Replace(text)
	return text
}

// Stage 4: collapse nested parentheses to one level, then drop any
// parenthetical whose content is not numeric/operator-only.
func normalizeParens(text string) string {
	for i := 0; i < maxParenPasses; i++ {
		flattened := nestedParen.ReplaceAllString(text, "($1$2$3)")
		if flattened == text {
			break
		}
		text = flattened
	}
	return parenGroup.ReplaceAllStringFunc(text, func(group string) string {
		inner := group[1 : len(group)-1]
		if numericParen.MatchString(inner) {
			return "(" + strings.TrimSpace(inner) + ")"
		}
		return ""
	})
}

// Stage 5: replace filler phrases from the registry map.
func (p *Pipeline) replaceFillers(text string) string {
	for _, rule := range p.fillers {
		text = rule.pattern.ReplaceAllString(text, rule.replacement)
	}
	return text
}

// Stage 6: split run-on sentences. ", and <pronoun>" becomes a fresh
// sentence, and semicolons become periods.
func softenRunOns(text string) string {
	text = runOnRegex.ReplaceAllStringFunc(text, func(m string) string {
		sub := runOnRegex.FindStringSubmatch(m)
		word := sub[1]
		r := []rune(word)
		r[0] = unicode.ToUpper(r[0])
		return ". " + string(r)
	})
	return strings.ReplaceAll(text, ";", ".")
}

// Stage 7: keep only the final question mark; earlier ones become periods.
func limitQuestionMarks(text string) string {
	isQ := func(r rune) bool { return r == '?' || r == '؟' }
	runes := []rune(text)
	last := -1
	for i, r := range runes {
		if isQ(r) {
			last = i
		}
	}
	if last < 0 {
		return text
	}
	for i := 0; i < last; i++ {
		if isQ(runes[i]) {
			runes[i] = '.'
		}
	}
	return string(runes)
}

// Stage 8: enforce the emoji budget. Arabic mode strips all emoji; any other
// mode keeps the first one and moves it to the end of the text.
func applyEmojiPolicy(text string, lang datatypes.LanguageMode) string {
	var kept rune
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if isEmoji(r) {
			if kept == 0 {
				kept = r
			}
			continue
		}
		b.WriteRune(r)
	}
	out := strings.TrimRight(b.String(), " ")
	if lang == datatypes.LanguageArabic || kept == 0 {
		return out
	}
	return out + " " + string(kept)
}

// Stage 9: Arabic punctuation forms.
func arabicPunctuation(text string) string {
	return strings.NewReplacer("?", "؟", ",", "،").Replace(text)
}

// Stage 10: topic anchoring. The containment check makes this stage a no-op
// when the text already references the topic, which also makes it
// idempotent. When the text ends with a relocated emoji the anchor is
// inserted before it so the emoji stays terminal. Idempotent either way.
func anchorTopic(text, topic string, lang datatypes.LanguageMode) string {
	topic = strings.TrimSpace(topic)
	if topic == "" || containsFold(text, topic) {
		return text
	}
	anchor := "Keep thinking about " + topic + ", we will build on it together."
	if lang == datatypes.LanguageArabic {
		// Stage 9 already ran; keep the inserted clause consistent with it.
		anchor = arabicPunctuation(anchor)
	}
	trimmed := strings.TrimRight(text, " ")
	if r, size := lastRune(trimmed); size > 0 && isEmoji(r) {
		base := strings.TrimRight(trimmed[:len(trimmed)-size], " ")
		if base != "" && !strings.ContainsRune(".!?؟", rune(base[len(base)-1])) {
			base += "."
		}
		if base != "" {
			base += " "
		}
		return base + anchor + " " + string(r)
	}
	if trimmed != "" && !strings.ContainsRune(".!?؟", rune(trimmed[len(trimmed)-1])) {
		trimmed += "."
	}
	return trimmed + " " + anchor
}

// tidyWhitespace is the closing sweep: collapse runs of spaces, drop spaces
// that ended up before punctuation, and trim the ends.
func tidyWhitespace(text string) string {
	text = multiSpace.ReplaceAllString(text, " ")
	text = spacePunct.ReplaceAllString(text, "$1")
	text = multiStop.ReplaceAllString(text, ".")
	return strings.TrimSpace(text)
}

// CountEmoji returns the number of emoji runes in text. Exposed for the
// engine's policy checks and for tests.
func CountEmoji(text string) int {
	n := 0
	for _, r := range text {
		if isEmoji(r) {
			n++
		}
	}
	return n
}

// isEmoji covers the common emoji blocks. Joiner sequences count per rune,
// which overestimates combined glyphs; acceptable for a budget of one.
func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // symbols, emoticons, supplemental
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators
		return true
	case r == 0x2B50 || r == 0x2705 || r == 0x274C:
		return true
	default:
		return false
	}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func lastRune(s string) (rune, int) {
	if s == "" {
		return 0, 0
	}
	r := []rune(s)
	last := r[len(r)-1]
	return last, len(string(last))
}
