package main

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const telecomSystemPrompt = `You are an expert in 5G network fault diagnosis.
The user provides a problem description (Drive Test Data, Engineering Parameters) and a filtered list of Options.
Note: The Options have been filtered by rules, so the correct answer is definitely in the list.

# Analysis Steps
1. **Phenomenon Check**: Identify when throughput drops. Check if SINR becomes negative (heavy interference) or RSRP drops (weak coverage).
2. **Neighbor Comparison**: Compare Serving Cell RSRP vs. Neighbor Cell RSRP.
   - **Overlap**: Multiple neighbors have similar strength to serving cell (Difference < 3dB).
   - **Strong Neighbor**: One neighbor is significantly stronger (> 5dB) than serving cell.
3. **Handover & Parameter Check**:
   - Check NREventA3MeasConfig. A typical a3-Offset is 2-3dB.
   - **Threshold Too High**: If a3-Offset is high (e.g., >=5dB) AND Neighbor is stronger than Serving cell for a duration before handover (or no handover), it causes interference ("Delayed Handover").
   - **Missing Neighbor**: Strong neighbor exists but no handover occurs (PCI doesn't change).
   - **Overshooting**: Serving cell is far away (check distance) but has strong signal and poor SINR.
4. **Transport/Core**: If RSRP and SINR are good but throughput is low, it's likely a transmission/server issue.

# Output Format
1. **Analysis**: Briefly describe the data patterns.
2. **Answer**: Output the final option letter in \boxed{}.

Example Output:
Analysis: ...
Answer: \boxed{A}
`

const generalSystemPrompt = `You are a network technology expert.
Analyze the question and filtered options to find the root cause or correct definition.

# Output Format
Analysis: <Brief reasoning>
Answer: \boxed{Option Letter}
`

// rootCauseKeywords maps standard drive-test causes to phrases found in
// option texts.
var rootCauseKeywords = map[Cause][]string{
	CauseNeighborBetter:   {"neighboring cell provides higher throughput", "neighbor cell provides higher"},
	CauseOvershoot:        {"coverage distance exceeds 1km", "over-shooting", "overshooting"},
	CauseOverlap:          {"overlapping coverage", "severe overlapping"},
	CausePCIConflict:      {"PCI mod 30", "same PCI mod"},
	CauseLowRB:            {"RBs are below 160", "scheduled RBs are below", "Average scheduled RBs"},
	CauseWeakCoverage:     {"downtilt angle is too large", "weak coverage at the far end"},
	CauseHighSpeed:        {"speed exceeds 40km/h", "Test vehicle speed exceeds"},
	CauseFrequentHandover: {"Frequent handovers", "handovers degrade"},
}

// nonstandardKeywords covers the throughput-drop question variant.
var nonstandardKeywords = map[Cause][]string{
	CauseOverlap:           {"severe overlap", "overlapping coverage", "RF or power parameters cause severe overlap"},
	CauseOverlapRF:         {"severe overlapping coverage", "RF or power parameters cause severe overlapping"},
	CauseInterFreqHandover: {"inter-frequency handover threshold", "Inter-frequency handover"},
	CauseCapacity:          {"capacity", "load imbalance", "network capacity"},
	CauseTransportAnomaly:  {"transport anomaly", "transmission abnormality", "upstream traffic", "Test server or transport"},
	CauseUplinkIssue:       {"uplink traffic", "transmission abnormality"},
	CauseNeighborMissing:   {"neighbor configuration missing", "Missing neighbor", "neighbor cell configuration"},
	CauseWeakCoverageRF:    {"weak coverage", "RF, power parameters or site construction lead to weak coverage", "site construction cause weak"},
	CauseThresholdHigh:     {"intra-frequency handover threshold is too high", "threshold too high", "handover threshold too high"},
	CauseThresholdLow:      {"intra-frequency handover threshold is too low", "threshold too low", "frequent handover", "handover threshold too low"},
	CausePDCCH:             {"PDCCH resource management parameters unreasonable", "PDCCH", "resource management", "CCE"},
}

// causeCodeKeywords maps the C1-C8 cause codes to option phrases for
// standard questions with partial option lists.
var causeCodeKeywords = map[string][]string{
	"C1": {"downtilt", "weak coverage", "far end"},
	"C2": {"coverage distance exceeds", "over-shooting", "overshooting"},
	"C3": {"neighboring cell provides higher"},
	"C4": {"overlapping coverage", "overlapping"},
	"C5": {"frequent handover", "handovers degrade"},
	"C6": {"PCI mod 30"},
	"C7": {"speed exceeds 40"},
	"C8": {"RBs are below", "scheduled RBs"},
}

var causeToCode = map[Cause]string{
	CauseWeakCoverage:     "C1",
	CauseOvershoot:        "C2",
	CauseNeighborBetter:   "C3",
	CauseOverlap:          "C4",
	CauseFrequentHandover: "C5",
	CausePCIConflict:      "C6",
	CauseHighSpeed:        "C7",
	CauseLowRB:            "C8",
}

const maxQuestionPromptChars = 5000

// BuildInferencePrompts composes the system and user prompts for a question
// that needs the model: the truncated question, the surviving options, and
// up to k retrieved case summaries.
func BuildInferencePrompts(q Question, options []string, cases []CaseMatch) (string, string) {
	isTelecom := strings.Contains(q.Text, "RSRP") || strings.Contains(q.Text, "SINR") ||
		strings.Contains(q.Text, "PCI") || strings.Contains(q.Text, "Drive Test Data") ||
		strings.Contains(q.Text, "Throughput") || strings.Contains(q.Text, "throughput")

	systemPrompt := generalSystemPrompt
	if isTelecom {
		systemPrompt = telecomSystemPrompt
	}

	text := truncateRunes(q.Text, maxQuestionPromptChars)

	var sb strings.Builder
	sb.WriteString(text)
	if len(cases) > 0 {
		sb.WriteString("\n\nSimilar resolved cases:\n")
		for _, c := range cases {
			preview := strings.TrimSpace(c.Record.Preview)
			if len(preview) > 200 {
				preview = truncateRunes(preview, 200) + "..."
			}
			sb.WriteString(fmt.Sprintf("- [sim %.2f] answer=%s: %s\n", c.Similarity, c.Record.Answer, preview))
		}
	}
	sb.WriteString(fmt.Sprintf("\nAvailable options: %s\n\nOutput ONLY the option letter:", strings.Join(options, ", ")))
	return systemPrompt, sb.String()
}

// truncateRunes clips s to at most n bytes, backing up so the cut never
// splits a multi-byte rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// FormatAnswer renders the submission payload for one chosen option.
func FormatAnswer(answer string) string {
	return fmt.Sprintf(`Based on the provided data, the most likely root cause for throughput drop is: \boxed{%s}`, answer)
}
