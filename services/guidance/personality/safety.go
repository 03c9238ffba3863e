// Copyright (C) 2025 Vimarsh Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package personality

import (
	"regexp"
	"strings"
)

// Verdict is the outcome of a safety scan.
type Verdict struct {
	// Allowed is false when the query must not reach the model.
	Allowed bool

	// Crisis is true when the query suggests the user may be in
	// danger; the caller routes these to human escalation regardless
	// of Allowed.
	Crisis bool

	// Reason names the matched rule for logging. Empty when clean.
	Reason string
}

type safetyRule struct {
	name   string
	regex  *regexp.Regexp
	crisis bool
	block  bool
}

// SafetyChecker scans queries before they reach the model and
// responses before they reach the user.
//
// # Thread Safety
//
// SafetyChecker is read-only after construction and safe for
// concurrent use.
type SafetyChecker struct {
	queryRules    []safetyRule
	responseRules []safetyRule
}

// NewSafetyChecker builds a checker with the default rule set.
func NewSafetyChecker() *SafetyChecker {
	mk := func(name, expr string, crisis, block bool) safetyRule {
		return safetyRule{
			name:   name,
			regex:  regexp.MustCompile(`(?i)` + expr),
			crisis: crisis,
			block:  block,
		}
	}

	return &SafetyChecker{
		queryRules: []safetyRule{
			// Crisis language routes to human escalation, it is never
			// answered by a persona.
			mk("self_harm", `suicid|kill (myself|me)|end(ing)? (my|this) life|hurt myself|self.?harm|want to die`, true, true),
			mk("harm_others", `how to (kill|hurt|poison|attack)|make a (bomb|weapon)`, false, true),
			mk("prompt_injection", `ignore (all |your |previous |prior )*(instructions|prompts)|you are now|disregard your (system|persona)|reveal your (system )?prompt`, false, true),
			mk("medical_advice", `(diagnose|prescri(be|ption)|dosage) `, false, true),
		},
		responseRules: []safetyRule{
			// Persona voice must hold; a model disclaimer leaking
			// through is a broken response, not a safety incident.
			mk("broken_persona", `as an ai|language model|i am an assistant|i cannot roleplay`, false, true),
		},
	}
}

// CheckQuery scans a user query.
func (s *SafetyChecker) CheckQuery(query string) Verdict {
	text := strings.TrimSpace(query)
	for _, rule := range s.queryRules {
		if rule.regex.MatchString(text) {
			return Verdict{Allowed: !rule.block, Crisis: rule.crisis, Reason: rule.name}
		}
	}
	return Verdict{Allowed: true}
}

// CheckResponse scans generated content before it is returned.
func (s *SafetyChecker) CheckResponse(content string) Verdict {
	for _, rule := range s.responseRules {
		if rule.regex.MatchString(content) {
			return Verdict{Allowed: !rule.block, Reason: rule.name}
		}
	}
	return Verdict{Allowed: true}
}

// CrisisResponse is the fixed text served when a crisis query is
// detected. It intentionally steps outside every persona.
const CrisisResponse = "I'm deeply concerned about what you've shared. Please reach out " +
	"to someone who can help right now: call or text 988 (Suicide and Crisis " +
	"Lifeline) in the US, or your local emergency services. You deserve support " +
	"from people trained to help, and you don't have to face this alone."
