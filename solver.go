package main

import (
	"context"
	"errors"
	"log"
	"time"
)

// Solver diagnoses one question at a time. It holds no mutable state: the
// rule engine and case index are read-only after construction, so one
// Solver is shared by every worker.
type Solver struct {
	rules      *RuleEngine
	cases      *CaseIndex
	llm        Inferencer
	retrievalK int
}

func NewSolver(rules *RuleEngine, cases *CaseIndex, llm Inferencer, retrievalK int) *Solver {
	return &Solver{rules: rules, cases: cases, llm: llm, retrievalK: retrievalK}
}

// Solve always produces a result with a chosen answer; failures degrade to
// the rule preference and finally to the first candidate option.
func (s *Solver) Solve(ctx context.Context, q Question) DiagnosisResult {
	fv := ExtractFeatures(q)
	verdicts := s.rules.Evaluate(q.Kind, fv)
	optMap := ExtractOptionMapping(q.Text)

	res := DiagnosisResult{
		QuestionID: q.ID,
		Kind:       q.Kind,
		Verdicts:   verdicts,
		SolvedAt:   time.Now().UTC(),
	}

	switch q.Kind {
	case KindStandard:
		// Standard drive-test questions are decided by rules alone.
		cause := CauseNeighborBetter
		res.Rule = "default"
		if prefs := PreferredCauses(verdicts); len(prefs) > 0 {
			cause = prefs[0]
			res.Rule = DecisiveRule(verdicts)
		}
		res.Cause = cause
		res.Answer = resolveStandardAnswer(q, cause, optMap)
		return res

	case KindNonstandardTelco:
		if HasStrongPreference(verdicts) {
			prefs := PreferredCauses(verdicts)
			res.Cause = prefs[0]
			res.Rule = DecisiveRule(verdicts)
			res.Answer = resolveTelecomAnswer(q, prefs[0], optMap)
			return res
		}
		return s.solveWithInference(ctx, q, fv, verdicts, optMap, res)

	default:
		return s.solveWithInference(ctx, q, fv, verdicts, optMap, res)
	}
}

func (s *Solver) solveWithInference(ctx context.Context, q Question, fv FeatureVector, verdicts []RuleVerdict, optMap map[Cause]string, res DiagnosisResult) DiagnosisResult {
	eliminatedOpts := mapCausesToOptions(EliminatedCauses(verdicts), optMap)
	preferredOpts := preferredOptions(verdicts, optMap, q.Options)

	surviving := survivingOptions(q.Options, eliminatedOpts)

	var matches []CaseMatch
	if s.retrievalK > 0 {
		matches = s.cases.Query(fv, s.retrievalK)
		for _, m := range matches {
			res.RetrievedCases = append(res.RetrievedCases, m.Record.ID)
		}
	}

	systemPrompt, userPrompt := BuildInferencePrompts(q, surviving, matches)

	res.UsedInference = true
	label, raw, err := s.llm.Infer(ctx, systemPrompt, userPrompt, q.Options)
	res.RawResponse = raw
	if err != nil {
		if !errors.Is(err, ErrInferenceUnavailable) && !errors.Is(err, ErrInferenceParse) {
			log.Printf("solver inference error id=%s err=%v", q.ID, err)
		} else {
			log.Printf("solver inference degraded id=%s err=%v", q.ID, err)
		}
	} else {
		res.InferenceOK = true
	}

	res.Answer, res.Rule, res.Fallback = reconcile(q, label, res.InferenceOK, preferredOpts, eliminatedOpts)
	if res.Rule == "" {
		res.Rule = DecisiveRule(verdicts)
	}
	return res
}

// reconcile applies the deterministic tie-break between the rule verdicts
// and the model's choice:
//  1. a label both rule-preferred and model-chosen wins outright;
//  2. a model choice the rules eliminated is replaced by the single
//     rule-preferred survivor, if exactly one exists;
//  3. otherwise the model's raw choice stands;
//  4. with no model answer, the top rule preference wins, then the first
//     candidate option as the last resort.
func reconcile(q Question, label string, inferred bool, preferred []string, eliminated map[string]bool) (answer, rule string, fallback bool) {
	if inferred {
		for _, p := range preferred {
			if p == label {
				return label, "reconcile/agreement", false
			}
		}
		if eliminated[label] && len(preferred) == 1 {
			return preferred[0], "reconcile/eliminated-substitution", false
		}
		return label, "reconcile/model-choice", false
	}

	if len(preferred) > 0 {
		return preferred[0], "reconcile/rule-fallback", true
	}
	if len(q.Options) > 0 {
		return q.Options[0], "reconcile/default-first-option", true
	}
	return "1", "reconcile/default-first-option", true
}

// resolveStandardAnswer maps a diagnosed cause to an option id. Questions
// with the full eight-way layout go through the keyword mapping; partial
// layouts go through the C1-C8 cause codes with a C1/C3 disambiguation
// fallback mirroring how truncated option lists are built.
func resolveStandardAnswer(q Question, cause Cause, optMap map[Cause]string) string {
	if len(q.Options) == 8 {
		if opt, ok := optMap[cause]; ok {
			return opt
		}
		for _, backup := range standardBackups[cause] {
			if opt, ok := optMap[backup]; ok {
				return opt
			}
		}
		if len(q.Options) > 0 {
			idx := 2
			if idx > len(q.Options)-1 {
				idx = len(q.Options) - 1
			}
			return q.Options[idx]
		}
		return "3"
	}

	causeToOption, _ := ExtractCauseCodeMapping(q.Text)
	if code, ok := causeToCode[cause]; ok {
		if opt, ok := causeToOption[code]; ok {
			return opt
		}
	}
	c1, hasC1 := causeToOption["C1"]
	c3, hasC3 := causeToOption["C3"]
	switch {
	case hasC1 && hasC3:
		if cause == CauseWeakCoverage {
			return c1
		}
		return c3
	case hasC1:
		return c1
	case hasC3:
		return c3
	}
	if len(q.Options) > 0 {
		return q.Options[0]
	}
	return "1"
}

func resolveTelecomAnswer(q Question, cause Cause, optMap map[Cause]string) string {
	if opt, ok := optMap[cause]; ok {
		return opt
	}
	if opt, ok := optMap[CauseWeakCoverageRF]; ok {
		return opt
	}
	if len(q.Options) > 0 {
		idx := 5
		if idx > len(q.Options)-1 {
			idx = len(q.Options) - 1
		}
		return q.Options[idx]
	}
	return "F"
}

// standardBackups: the better-neighbor and overlap diagnoses share option
// wording often enough that one substitutes for the other when only one is
// present in the option list.
var standardBackups = map[Cause][]Cause{
	CauseNeighborBetter: {CauseOverlap},
	CauseOverlap:        {CauseNeighborBetter},
}

func mapCausesToOptions(causes map[Cause]bool, optMap map[Cause]string) map[string]bool {
	out := make(map[string]bool)
	for cause := range causes {
		if opt, ok := optMap[cause]; ok {
			out[opt] = true
		}
	}
	return out
}

// preferredOptions maps surviving preferred causes onto the question's
// option ids, preserving rule order and dropping causes without an option.
func preferredOptions(verdicts []RuleVerdict, optMap map[Cause]string, options []string) []string {
	valid := make(map[string]bool, len(options))
	for _, o := range options {
		valid[o] = true
	}
	var out []string
	seen := make(map[string]bool)
	for _, cause := range PreferredCauses(verdicts) {
		opt, ok := optMap[cause]
		if !ok || !valid[opt] || seen[opt] {
			continue
		}
		seen[opt] = true
		out = append(out, opt)
	}
	return out
}

// survivingOptions filters eliminated options out; if elimination would
// empty the list the full set is kept, since the answer must be somewhere.
func survivingOptions(options []string, eliminated map[string]bool) []string {
	var out []string
	for _, o := range options {
		if !eliminated[o] {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return options
	}
	return out
}
