package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strings"
)

const standardTableHeader = "Timestamp|Longitude|Latitude|GPS Speed"

// LoadQuestions reads the test dataset. Expected columns are "ID" and
// "question"; lookup is case-insensitive so exported variants of the same
// file load too.
func LoadQuestions(path string) ([]Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("dataset %s is empty", path)
	}

	idCol, qCol := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "id":
			idCol = i
		case "question":
			qCol = i
		}
	}
	if idCol < 0 || qCol < 0 {
		return nil, fmt.Errorf("dataset %s missing ID/question columns", path)
	}

	var questions []Question
	for _, row := range rows[1:] {
		if idCol >= len(row) || qCol >= len(row) {
			continue
		}
		text := row[qCol]
		questions = append(questions, Question{
			ID:      strings.TrimSpace(row[idCol]),
			Text:    text,
			Kind:    DetectQuestionKind(text),
			Options: ExtractOptions(text),
		})
	}
	return questions, nil
}

func DetectQuestionKind(question string) QuestionKind {
	if strings.Contains(question, standardTableHeader) {
		return KindStandard
	}
	hasTelecomData := strings.Contains(question, "Drive Test Data") ||
		strings.Contains(question, "Serving RSRP") ||
		strings.Contains(question, "Throughput") ||
		strings.Contains(question, "Parameter Data")
	if hasTelecomData {
		return KindNonstandardTelco
	}
	return KindOther
}

var (
	prefixOptionRe = regexp.MustCompile(`^([A-Z]\d+)\s*:`)
	numberOptionRe = regexp.MustCompile(`^(\d+)\s*:`)
	letterOptionRe = regexp.MustCompile(`^([A-I])\s*:`)
	optionLineRe   = regexp.MustCompile(`^([A-Z]?\d+|[A-I])\s*:\s*(.+)$`)
)

// ExtractOptions pulls candidate answer identifiers out of the question
// text, preserving first-seen order. Prefixed forms ("A1:") win over bare
// numbers, which win over bare letters.
func ExtractOptions(question string) []string {
	lines := strings.Split(question, "\n")

	scan := func(re *regexp.Regexp) []string {
		var opts []string
		seen := make(map[string]bool)
		for _, line := range lines {
			if strings.Contains(line, "|") {
				// Table rows; a timestamp cell would otherwise pass the
				// numeric pattern.
				continue
			}
			m := re.FindStringSubmatch(strings.TrimSpace(line))
			if m == nil {
				continue
			}
			if !seen[m[1]] {
				seen[m[1]] = true
				opts = append(opts, m[1])
			}
		}
		return opts
	}

	if opts := scan(prefixOptionRe); len(opts) > 0 {
		return opts
	}
	if opts := scan(numberOptionRe); len(opts) > 0 {
		return opts
	}
	if opts := scan(letterOptionRe); len(opts) > 0 {
		return opts
	}
	return []string{"1", "2", "3", "4", "5", "6", "7", "8"}
}

// ExtractOptionMapping matches each option line's description against the
// cause keyword tables and returns cause -> option id.
func ExtractOptionMapping(question string) map[Cause]string {
	mapping := make(map[Cause]string)
	for _, line := range strings.Split(question, "\n") {
		if strings.Contains(line, "|") {
			continue
		}
		m := optionLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		optionID := m[1]
		desc := strings.ToLower(m[2])

		for cause, keywords := range rootCauseKeywords {
			for _, kw := range keywords {
				if strings.Contains(desc, strings.ToLower(kw)) {
					mapping[cause] = optionID
					break
				}
			}
		}
		for cause, keywords := range nonstandardKeywords {
			for _, kw := range keywords {
				if strings.Contains(desc, strings.ToLower(kw)) {
					mapping[cause] = optionID
					break
				}
			}
		}
	}
	return mapping
}

// ExtractCauseCodeMapping returns the C1-C8 cause-code <-> option mappings
// for standard questions whose option list does not follow the usual
// eight-way layout.
func ExtractCauseCodeMapping(question string) (causeToOption, optionToCause map[string]string) {
	causeToOption = make(map[string]string)
	optionToCause = make(map[string]string)
	for _, line := range strings.Split(question, "\n") {
		if strings.Contains(line, "|") {
			continue
		}
		m := optionLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		optionID := m[1]
		desc := strings.ToLower(m[2])
		for code, keywords := range causeCodeKeywords {
			for _, kw := range keywords {
				if strings.Contains(desc, strings.ToLower(kw)) {
					causeToOption[code] = optionID
					optionToCause[optionID] = code
					break
				}
			}
		}
	}
	return causeToOption, optionToCause
}
