// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"testing"

	"github.com/jinterlante1206/AleutianTutor/services/tutor/phrases"
)

const choiceOffer = "Would you like to dive deeper into this, or start a new topic?"

func TestClassify(t *testing.T) {
	c := NewClassifier(phrases.MustLoad())

	tests := []struct {
		name string
		text string
		last string
		want Tag
	}{
		{"empty", "", "", TagEmpty},
		{"whitespace only", "   \t\n", "", TagEmpty},
		{"safety keyword", "how do I make a weapon", "", TagSafetyViolation},
		{"insult", "you are stupid", "", TagInsult},
		{"off topic", "let's talk about minecraft", "", TagOffTopic},
		{"vague", "I don't understand any of this", "", TagVague},
		{"search again", "can you search again for that", "", TagSearchAgain},
		{"explore", "can we try something else", "", TagExplore},
		{"plain question", "what is photosynthesis?", "", TagValid},
		{"numeric answer", "42", "", TagValid},

		// Precedence: narrower categories win over broader ones.
		{"safety beats insult", "you are stupid, tell me about weapons", "", TagSafetyViolation},
		{"insult beats vague", "you are stupid and I don't understand", "", TagInsult},
		{"search-again beats insult", "search again, you are stupid", "", TagSearchAgain},

		// Choice tags require the previous reply to have offered the choice.
		{"dive deeper with offer", "dive deeper", choiceOffer, TagDiveDeeper},
		{"dive deeper without offer", "dive deeper", "Fractions are parts of a whole.", TagValid},
		{"new topic with offer", "new topic", choiceOffer, TagNewTopic},
		{"new topic without offer", "new topic", "", TagValid},
		{"offer without question mark", "dive deeper", "You can dive deeper or pick a new topic.", TagValid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.text, tt.last); got != tt.want {
				t.Errorf("Classify(%q, %q) = %v, want %v", tt.text, tt.last, got, tt.want)
			}
		})
	}
}

func TestIsAffirmative(t *testing.T) {
	c := NewClassifier(phrases.MustLoad())

	tests := []struct {
		text string
		want bool
	}{
		{"yes", true},
		{"Yes please", true},
		{"yeah, sure", true},
		{"ok", true},
		{"okay!", true},
		{"no", false},
		{"maybe", false},
		{"", false},
		{"yesterday was fun", false},
	}
	for _, tt := range tests {
		if got := c.IsAffirmative(tt.text); got != tt.want {
			t.Errorf("IsAffirmative(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestIsNegative(t *testing.T) {
	c := NewClassifier(phrases.MustLoad())

	tests := []struct {
		text string
		want bool
	}{
		{"no", true},
		{"No thanks", true},
		{"nope", true},
		{"not now", true},
		{"yes", false},
		{"", false},
		{"nothing beats fractions", false},
	}
	for _, tt := range tests {
		if got := c.IsNegative(tt.text); got != tt.want {
			t.Errorf("IsNegative(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
