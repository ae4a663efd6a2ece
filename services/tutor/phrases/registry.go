// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package phrases provides the canned-response and keyword registry for the
// tutor dialogue engine.
//
// The registry is an embedded YAML document parsed once at first use and then
// treated as immutable. Everything the engine says without consulting a model
// (safety responses, praise, escalation prompts) and every keyword table the
// intent classifier matches against lives here, so tuning the engine's voice
// is a YAML edit, not a code change.
//
// Thread Safety:
//
//	The registry is read-only after Load; safe for concurrent use.
package phrases

import (
	_ "embed"
	"fmt"
	"math/rand"
	"sync"

	"gopkg.in/yaml.v3"
)

// MaxRegistrySize caps the embedded YAML size. A registry this large is a
// build mistake, not a legitimate configuration.
const MaxRegistrySize = 256 * 1024

//go:embed registry.yaml
var defaultRegistryYAML []byte

// Responses holds the fixed, single-string canned replies.
type Responses struct {
	SafetyViolation            string `yaml:"safety_violation"`
	Insult                     string `yaml:"insult"`
	EmptyInput                 string `yaml:"empty_input"`
	OffTopic                   string `yaml:"off_topic"`
	ProviderFailure            string `yaml:"provider_failure"`
	ToolFailure                string `yaml:"tool_failure"`
	LostVideoContext           string `yaml:"lost_video_context"`
	ResearchOffer              string `yaml:"research_offer"`
	PracticeInvitationDeclined string `yaml:"practice_invitation_declined"`
	ExplorePrompt              string `yaml:"explore_prompt"`
	SuccessChoiceOffer         string `yaml:"success_choice_offer"`
}

// Escalation holds the prompt templates for the wrong-answer ladder.
type Escalation struct {
	Hint           string `yaml:"hint"`
	Decompose      string `yaml:"decompose"`
	ExplainConcept string `yaml:"explain_concept"`
	RevealPrefix   string `yaml:"reveal_prefix"`
}

// Keywords holds every substring table the intent classifier consults.
type Keywords struct {
	Safety      []string `yaml:"safety"`
	Insults     []string `yaml:"insults"`
	OffTopic    []string `yaml:"off_topic"`
	Vague       []string `yaml:"vague"`
	SearchAgain []string `yaml:"search_again"`
	Explore     []string `yaml:"explore"`
	DiveDeeper  []string `yaml:"dive_deeper"`
	NewTopic    []string `yaml:"new_topic"`
	Affirmative []string `yaml:"affirmative"`
	Negative    []string `yaml:"negative"`
}

// Registry is the parsed, immutable phrase registry.
type Registry struct {
	Responses             Responses          `yaml:"responses"`
	Praise                []string           `yaml:"praise"`
	VagueReexplainPrompts []string           `yaml:"vague_reexplain_prompts"`
	Escalation            Escalation         `yaml:"escalation"`
	Keywords              Keywords           `yaml:"keywords"`
	RoboticPhrases        []string           `yaml:"robotic_phrases"`
	Fillers               map[string]string  `yaml:"fillers"`
	WordNumbers           map[string]float64 `yaml:"word_numbers"`
}

var (
	registryOnce sync.Once
	cachedReg    *Registry
	registryErr  error
)

// Load returns the embedded registry, parsing it on first call.
//
// Outputs:
//
//	*Registry - The parsed registry. Nil only when err is non-nil.
//	error - Non-nil if the embedded YAML is malformed (a build defect).
func Load() (*Registry, error) {
	registryOnce.Do(func() {
		cachedReg, registryErr = parse(defaultRegistryYAML)
	})
	return cachedReg, registryErr
}

// MustLoad is Load for process startup paths where a broken embedded registry
// should abort immediately.
func MustLoad() *Registry {
	r, err := Load()
	if err != nil {
		panic(fmt.Sprintf("phrases: embedded registry invalid: %v", err))
	}
	return r
}

func parse(raw []byte) (*Registry, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("phrases: registry is empty")
	}
	if len(raw) > MaxRegistrySize {
		return nil, fmt.Errorf("phrases: registry exceeds %d bytes", MaxRegistrySize)
	}
	var r Registry
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("phrases: parse registry: %w", err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// validate rejects registries missing entries the engine depends on.
func (r *Registry) validate() error {
	required := map[string]string{
		"responses.safety_violation":   r.Responses.SafetyViolation,
		"responses.insult":             r.Responses.Insult,
		"responses.empty_input":        r.Responses.EmptyInput,
		"responses.provider_failure":   r.Responses.ProviderFailure,
		"responses.lost_video_context": r.Responses.LostVideoContext,
		"escalation.hint":              r.Escalation.Hint,
		"escalation.reveal_prefix":     r.Escalation.RevealPrefix,
	}
	for name, v := range required {
		if v == "" {
			return fmt.Errorf("phrases: missing required entry %s", name)
		}
	}
	if len(r.Praise) == 0 {
		return fmt.Errorf("phrases: praise list is empty")
	}
	if len(r.Keywords.Safety) == 0 || len(r.Keywords.Insults) == 0 {
		return fmt.Errorf("phrases: safety keyword tables are empty")
	}
	return nil
}

// Pick selects one entry from list using the supplied RNG. A nil RNG returns
// the first entry, which keeps single-variant deployments and tests
// deterministic without seeding.
func Pick(list []string, rng *rand.Rand) string {
	if len(list) == 0 {
		return ""
	}
	if rng == nil {
		return list[0]
	}
	return list[rng.Intn(len(list))]
}
