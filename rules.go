package main

import "log"

// Diagnosis thresholds. These are domain constants from the drive-test rule
// set, not tunables; changing them changes what the verdicts mean.
const (
	rsrpWeakDBm        = -90.0  // serving RSRP below this is weak coverage
	rsrpWeakRFDBm      = -100.0 // throughput-drop variant uses a harder cutoff
	rsrpNearDBm        = -89.0
	rsrpBoundaryDBm    = -88.5
	neighborsOverlap   = 3 // distinct top-1 neighbors implying overlap
	handoversFrequent  = 3
	handoversOvershoot = 2
	speedHighKmh       = 40.0
	rbLowAvg           = 170.0
	tiltNeighborMax    = 12.0
	tiltNeighborTotal  = 19.0
	tiltNeighborMin    = 6.0
	tiltNearMin        = 10.0
	tiltWeakMax        = 29.0
	tiltWeakTotal      = 52.0
	tiltWeakMin        = 25.0
	tiltBoundaryTotal  = 39.0
	tiltBoundaryMax    = 22.0
	tiltLeanTotal      = 35.0
	sinrOverlapDB      = 12.0 // SINR above this rules out overlap interference
	sinrTransportDB    = 8.0
	cceCongested       = 0.4
	deltaOverlapDB     = 3.0 // neighbor within this of serving suggests overlap
	a3OffsetHighDB     = 5.0
)

type rule struct {
	id    string
	apply func(fv FeatureVector) []RuleVerdict
}

type RuleEngine struct {
	standard []rule
	telecom  []rule
}

func NewRuleEngine() *RuleEngine {
	return &RuleEngine{standard: standardRules(), telecom: telecomRules()}
}

// Evaluate runs every rule for the question kind against the vector and
// collects the verdicts in rule order. Rules are total: a panic inside one
// degrades to neutral and is logged, never propagated. Rules whose inputs
// are missing abstain.
func (e *RuleEngine) Evaluate(kind QuestionKind, fv FeatureVector) []RuleVerdict {
	rules := e.standard
	if kind == KindNonstandardTelco {
		rules = e.telecom
	}

	var verdicts []RuleVerdict
	for _, r := range rules {
		verdicts = append(verdicts, runRule(r, fv)...)
	}
	return verdicts
}

func runRule(r rule, fv FeatureVector) (out []RuleVerdict) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("rule panic id=%s err=%v", r.id, p)
			out = nil
		}
	}()
	out = r.apply(fv)
	for i := range out {
		out[i].Rule = r.id
	}
	return out
}

func prefer(cause Cause, strong bool) []RuleVerdict {
	return []RuleVerdict{{Cause: cause, Verdict: VerdictPreferred, Strong: strong}}
}

func eliminate(causes ...Cause) []RuleVerdict {
	var out []RuleVerdict
	for _, c := range causes {
		out = append(out, RuleVerdict{Cause: c, Verdict: VerdictEliminated})
	}
	return out
}

func standardRules() []rule {
	return []rule{
		{"overlap/neighbor-count", func(fv FeatureVector) []RuleVerdict {
			n, ok := fv[FeatNumNeighbors]
			if !ok || n < neighborsOverlap {
				return nil
			}
			// Weak coverage takes precedence over overlap.
			if rsrp, ok := fv[FeatMinRSRP]; ok && rsrp < rsrpWeakDBm {
				return nil
			}
			return prefer(CauseOverlap, true)
		}},
		{"handover/frequent", func(fv FeatureVector) []RuleVerdict {
			if h, ok := fv[FeatHandovers]; ok && h >= handoversFrequent {
				return prefer(CauseFrequentHandover, true)
			}
			return nil
		}},
		{"handover/overshoot", func(fv FeatureVector) []RuleVerdict {
			if h, ok := fv[FeatHandovers]; ok && h == handoversOvershoot {
				return prefer(CauseOvershoot, true)
			}
			return nil
		}},
		{"speed/high", func(fv FeatureVector) []RuleVerdict {
			if s, ok := fv[FeatMaxSpeed]; ok && s > speedHighKmh {
				return prefer(CauseHighSpeed, true)
			}
			return nil
		}},
		{"rb/low", func(fv FeatureVector) []RuleVerdict {
			if rb, ok := fv[FeatAvgRB]; ok && rb < rbLowAvg {
				return prefer(CauseLowRB, true)
			}
			return nil
		}},
		{"pci/mod30-conflict", func(fv FeatureVector) []RuleVerdict {
			if c, ok := fv[FeatPCIConflict]; ok && c > 0 {
				// A colliding neighbor cannot simultaneously be the
				// better-neighbor diagnosis.
				return append(prefer(CausePCIConflict, true), eliminate(CauseNeighborBetter)...)
			}
			return nil
		}},
		{"tilt/neighbor-max", func(fv FeatureVector) []RuleVerdict {
			if t, ok := fv[FeatMaxTilt]; ok && t < tiltNeighborMax {
				return prefer(CauseNeighborBetter, true)
			}
			return nil
		}},
		{"tilt/neighbor-total", func(fv FeatureVector) []RuleVerdict {
			if t, ok := fv[FeatTotalTilt]; ok && t < tiltNeighborTotal {
				return prefer(CauseNeighborBetter, true)
			}
			return nil
		}},
		{"tilt/neighbor-min", func(fv FeatureVector) []RuleVerdict {
			if t, ok := fv[FeatMinTilt]; ok && t < tiltNeighborMin {
				return prefer(CauseNeighborBetter, true)
			}
			return nil
		}},
		{"tilt/neighbor-near", func(fv FeatureVector) []RuleVerdict {
			t, tOK := fv[FeatMinTilt]
			rsrp, rOK := fv[FeatMinRSRP]
			if tOK && rOK && t < tiltNearMin && rsrp > rsrpNearDBm {
				return prefer(CauseNeighborBetter, true)
			}
			return nil
		}},
		{"rsrp/weak", func(fv FeatureVector) []RuleVerdict {
			if rsrp, ok := fv[FeatMinRSRP]; ok && rsrp < rsrpWeakDBm {
				// Overshoot implies adequate signal at abnormal distance.
				return append(prefer(CauseWeakCoverage, true), eliminate(CauseOvershoot)...)
			}
			return nil
		}},
		{"tilt/weak-max", func(fv FeatureVector) []RuleVerdict {
			if t, ok := fv[FeatMaxTilt]; ok && t > tiltWeakMax {
				return prefer(CauseWeakCoverage, true)
			}
			return nil
		}},
		{"tilt/weak-total", func(fv FeatureVector) []RuleVerdict {
			if t, ok := fv[FeatTotalTilt]; ok && t > tiltWeakTotal {
				return prefer(CauseWeakCoverage, true)
			}
			return nil
		}},
		{"tilt/weak-min", func(fv FeatureVector) []RuleVerdict {
			if t, ok := fv[FeatMinTilt]; ok && t > tiltWeakMin {
				return prefer(CauseWeakCoverage, true)
			}
			return nil
		}},
		{"boundary/lean-weak", func(fv FeatureVector) []RuleVerdict {
			rsrp, rOK := fv[FeatMinRSRP]
			total, tOK := fv[FeatTotalTilt]
			max, mOK := fv[FeatMaxTilt]
			if rOK && tOK && mOK && rsrp < rsrpBoundaryDBm && total > tiltBoundaryTotal && max >= tiltBoundaryMax {
				return prefer(CauseWeakCoverage, false)
			}
			return nil
		}},
		{"boundary/lean-neighbor", func(fv FeatureVector) []RuleVerdict {
			min, minOK := fv[FeatMinTilt]
			total, totOK := fv[FeatTotalTilt]
			if (minOK && min < tiltNearMin) || (totOK && total <= tiltLeanTotal) {
				return prefer(CauseNeighborBetter, false)
			}
			return nil
		}},
	}
}

func telecomRules() []rule {
	return []rule{
		{"rsrp/weak-rf", func(fv FeatureVector) []RuleVerdict {
			if rsrp, ok := fv[FeatMinRSRP]; ok && rsrp < rsrpWeakRFDBm {
				return prefer(CauseWeakCoverageRF, true)
			}
			return nil
		}},
		{"handover/threshold-low", func(fv FeatureVector) []RuleVerdict {
			if h, ok := fv[FeatHandovers]; ok && h >= handoversFrequent {
				return prefer(CauseThresholdLow, true)
			}
			return nil
		}},
		{"cce/pdcch-congestion", func(fv FeatureVector) []RuleVerdict {
			if cce, ok := fv[FeatMaxCCE]; ok && cce > cceCongested {
				return prefer(CausePDCCH, true)
			}
			return nil
		}},
		{"overlap/neighbor-delta", func(fv FeatureVector) []RuleVerdict {
			d, ok := fv[FeatNeighborDelta]
			if !ok || d >= deltaOverlapDB {
				return nil
			}
			if rsrp, ok := fv[FeatMinRSRP]; ok && rsrp < rsrpWeakRFDBm {
				return nil // weak coverage takes precedence
			}
			return prefer(CauseOverlap, false)
		}},
		{"a3/delayed-handover", func(fv FeatureVector) []RuleVerdict {
			if a3, ok := fv[FeatA3Offset]; ok && a3 >= a3OffsetHighDB {
				return prefer(CauseThresholdHigh, false)
			}
			return nil
		}},
		{"exclude/weak-rf", func(fv FeatureVector) []RuleVerdict {
			if rsrp, ok := fv[FeatMinRSRP]; ok && rsrp >= rsrpWeakRFDBm {
				return eliminate(CauseWeakCoverageRF)
			}
			return nil
		}},
		{"exclude/threshold-low", func(fv FeatureVector) []RuleVerdict {
			if h, ok := fv[FeatHandovers]; ok && h < handoversFrequent {
				return eliminate(CauseThresholdLow)
			}
			return nil
		}},
		{"exclude/pdcch", func(fv FeatureVector) []RuleVerdict {
			if cce, ok := fv[FeatMaxCCE]; ok && cce <= cceCongested {
				return eliminate(CausePDCCH)
			}
			return nil
		}},
		{"exclude/neighbor-missing", func(fv FeatureVector) []RuleVerdict {
			if h, ok := fv[FeatHandovers]; ok && h > 0 {
				return eliminate(CauseNeighborMissing)
			}
			return nil
		}},
		{"exclude/overlap", func(fv FeatureVector) []RuleVerdict {
			if sinr, ok := fv[FeatMeanSINR]; ok && sinr > sinrOverlapDB {
				return eliminate(CauseOverlap, CauseOverlapRF)
			}
			return nil
		}},
		{"exclude/transport", func(fv FeatureVector) []RuleVerdict {
			if sinr, ok := fv[FeatMeanSINR]; ok && sinr > sinrTransportDB {
				return eliminate(CauseTransportAnomaly, CauseUplinkIssue)
			}
			return nil
		}},
	}
}

// EliminatedCauses collects every cause some rule struck out.
func EliminatedCauses(verdicts []RuleVerdict) map[Cause]bool {
	out := make(map[Cause]bool)
	for _, v := range verdicts {
		if v.Verdict == VerdictEliminated {
			out[v.Cause] = true
		}
	}
	return out
}

// PreferredCauses returns surviving preferences in rule order, deduplicated.
// An elimination anywhere beats a preference anywhere.
func PreferredCauses(verdicts []RuleVerdict) []Cause {
	eliminated := EliminatedCauses(verdicts)
	var out []Cause
	seen := make(map[Cause]bool)
	for _, v := range verdicts {
		if v.Verdict != VerdictPreferred || eliminated[v.Cause] || seen[v.Cause] {
			continue
		}
		seen[v.Cause] = true
		out = append(out, v.Cause)
	}
	return out
}

// HasStrongPreference reports whether any surviving preference is marked
// strong, i.e. the rules alone can answer.
func HasStrongPreference(verdicts []RuleVerdict) bool {
	eliminated := EliminatedCauses(verdicts)
	for _, v := range verdicts {
		if v.Verdict == VerdictPreferred && v.Strong && !eliminated[v.Cause] {
			return true
		}
	}
	return false
}

// DecisiveRule names the rule behind the first surviving preference.
func DecisiveRule(verdicts []RuleVerdict) string {
	eliminated := EliminatedCauses(verdicts)
	for _, v := range verdicts {
		if v.Verdict == VerdictPreferred && !eliminated[v.Cause] {
			return v.Rule
		}
	}
	return ""
}
