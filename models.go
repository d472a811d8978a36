package main

import "time"

// QuestionKind routes a question to the right rule set and decides whether
// the model gets called at all.
type QuestionKind string

const (
	KindStandard         QuestionKind = "standard"
	KindNonstandardTelco QuestionKind = "nonstandard_telecom"
	KindOther            QuestionKind = "other"
)

// Cause is the closed set of diagnosis categories. The first block covers
// standard drive-test questions (C1-C8 in the option texts), the second
// covers the throughput-drop question variant.
type Cause string

const (
	CauseWeakCoverage     Cause = "weak_coverage"
	CauseOvershoot        Cause = "overshoot"
	CauseNeighborBetter   Cause = "neighbor_higher"
	CauseOverlap          Cause = "overlap"
	CauseFrequentHandover Cause = "handover"
	CausePCIConflict      Cause = "pci_conflict"
	CauseHighSpeed        Cause = "high_speed"
	CauseLowRB            Cause = "low_rb"

	CauseWeakCoverageRF    Cause = "weak_coverage_rf"
	CauseThresholdLow      Cause = "threshold_low"
	CauseThresholdHigh     Cause = "threshold_high"
	CausePDCCH             Cause = "pdcch"
	CauseOverlapRF         Cause = "overlap_rf"
	CauseNeighborMissing   Cause = "neighbor_missing"
	CauseTransportAnomaly  Cause = "transport_anomaly"
	CauseUplinkIssue       Cause = "uplink_issue"
	CauseInterFreqHandover Cause = "inter_freq_threshold"
	CauseCapacity          Cause = "capacity"
)

type Question struct {
	ID      string
	Text    string
	Kind    QuestionKind
	Options []string // candidate answers in original order, e.g. "A".."I" or "1".."8"
}

// FeatureVector maps feature names to extracted values. An absent key means
// the feature could not be extracted; extraction never fails outright.
type FeatureVector map[string]float64

// Feature names shared between extraction, rules, the case index and the
// sqlite case cache.
const (
	FeatMinRSRP       = "min_rsrp"
	FeatAvgRSRP       = "avg_rsrp"
	FeatMaxTilt       = "max_tilt"
	FeatMinTilt       = "min_tilt"
	FeatTotalTilt     = "total_tilt"
	FeatHandovers     = "handovers"
	FeatNumNeighbors  = "num_neighbors"
	FeatMaxSpeed      = "max_speed"
	FeatAvgRB         = "avg_rb"
	FeatPCIConflict   = "pci_conflict"
	FeatMeanSINR      = "mean_sinr"
	FeatMaxCCE        = "max_cce"
	FeatNeighborDelta = "neighbor_delta"
	FeatA3Offset      = "a3_offset"
)

type Verdict int

const (
	VerdictNeutral Verdict = iota
	VerdictPreferred
	VerdictEliminated
)

func (v Verdict) String() string {
	switch v {
	case VerdictPreferred:
		return "preferred"
	case VerdictEliminated:
		return "eliminated"
	default:
		return "neutral"
	}
}

// RuleVerdict records one rule's opinion about one cause. Strong marks a
// preference confident enough to answer without the model.
type RuleVerdict struct {
	Rule    string  `json:"rule"`
	Cause   Cause   `json:"cause"`
	Verdict Verdict `json:"verdict"`
	Strong  bool    `json:"strong,omitempty"`
}

// CaseRecord is one resolved historical question in the case index.
type CaseRecord struct {
	ID       string
	Answer   string
	Features FeatureVector
	Preview  string
	Source   string
}

type CaseMatch struct {
	Record     CaseRecord
	Similarity float64
}

// DiagnosisResult is the full evidence trail for one question; it is what
// gets persisted in the checkpoint and appended to the solve log.
type DiagnosisResult struct {
	QuestionID     string        `json:"id"`
	Kind           QuestionKind  `json:"type"`
	Answer         string        `json:"answer"`
	Cause          Cause         `json:"cause,omitempty"`
	Rule           string        `json:"rule,omitempty"`
	Verdicts       []RuleVerdict `json:"verdicts,omitempty"`
	RetrievedCases []string      `json:"retrieved_cases,omitempty"`
	UsedInference  bool          `json:"used_inference"`
	InferenceOK    bool          `json:"inference_ok,omitempty"`
	RawResponse    string        `json:"raw_response,omitempty"`
	Fallback       bool          `json:"fallback,omitempty"`
	SolvedAt       time.Time     `json:"solved_at"`
}

// Checkpoint entry statuses. A question with no row at all is pending.
// Failed entries carry a fallback answer but are retried on the next run.
const (
	StatusDone   = "done"
	StatusFailed = "failed"
)

type CheckpointEntry struct {
	QuestionID string
	Status     string
	Answer     string
	Result     *DiagnosisResult
	UpdatedAt  time.Time
}
