package main

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
)

// Feature weights and normalizers for case similarity. Dimensions missing on
// either side are excluded pairwise; similarity is the weighted mean of
// max(0, 1-|diff|/normalizer) over shared dimensions.
var caseFeatureWeights = map[string]float64{
	FeatMinRSRP:      2.0,
	FeatMaxTilt:      2.0,
	FeatTotalTilt:    1.5,
	FeatHandovers:    1.5,
	FeatMaxSpeed:     1.0,
	FeatAvgRB:        1.0,
	FeatNumNeighbors: 1.0,
}

var caseFeatureNorms = map[string]float64{
	FeatMinRSRP:      30.0,
	FeatMaxTilt:      20.0,
	FeatTotalTilt:    50.0,
	FeatHandovers:    5.0,
	FeatMaxSpeed:     50.0,
	FeatAvgRB:        100.0,
	FeatNumNeighbors: 5.0,
}

// CaseIndex is an immutable nearest-neighbor index over resolved historical
// questions. Build once, query from any number of goroutines.
type CaseIndex struct {
	records []CaseRecord
}

func BuildCaseIndex(records []CaseRecord) *CaseIndex {
	sorted := make([]CaseRecord, len(records))
	copy(sorted, records)
	// Canonical order makes query results independent of load order.
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &CaseIndex{records: sorted}
}

func (ix *CaseIndex) Len() int { return len(ix.records) }

// Query returns up to k records most similar to fv, best first. Beyond the
// first three slots, records repeating an already-selected answer are
// skipped so the retrieved set covers distinct diagnoses. An empty index or
// vector yields no matches.
func (ix *CaseIndex) Query(fv FeatureVector, k int) []CaseMatch {
	if ix == nil || len(ix.records) == 0 || len(fv) == 0 || k <= 0 {
		return nil
	}

	matches := make([]CaseMatch, 0, len(ix.records))
	for _, rec := range ix.records {
		matches = append(matches, CaseMatch{Record: rec, Similarity: CaseSimilarity(fv, rec.Features)})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Record.ID < matches[j].Record.ID
	})

	var out []CaseMatch
	seenAnswers := make(map[string]bool)
	for _, m := range matches {
		if len(out) >= k {
			break
		}
		if seenAnswers[m.Record.Answer] && len(out) >= 3 {
			continue
		}
		out = append(out, m)
		seenAnswers[m.Record.Answer] = true
	}
	return out
}

func CaseSimilarity(a, b FeatureVector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	totalWeight := 0.0
	similarity := 0.0
	for feat, weight := range caseFeatureWeights {
		va, okA := a[feat]
		vb, okB := b[feat]
		if !okA || !okB {
			continue
		}
		diff := (va - vb) / caseFeatureNorms[feat]
		if diff < 0 {
			diff = -diff
		}
		sim := 1 - diff
		if sim < 0 {
			sim = 0
		}
		similarity += weight * sim
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0
	}
	return similarity / totalWeight
}

const casePreviewChars = 500

// LoadCaseRecords reads a historical dataset (columns ID, question, answer)
// and extracts case features for each row. Rows without question or answer
// are skipped.
func LoadCaseRecords(path, source string) ([]CaseRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open case file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read case file: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	idCol, qCol, aCol := -1, -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "id":
			idCol = i
		case "question":
			qCol = i
		case "answer":
			aCol = i
		}
	}
	if qCol < 0 || aCol < 0 {
		return nil, fmt.Errorf("case file %s missing question/answer columns", path)
	}

	var records []CaseRecord
	for n, row := range rows[1:] {
		if qCol >= len(row) || aCol >= len(row) {
			continue
		}
		question := row[qCol]
		answer := strings.TrimSpace(row[aCol])
		if question == "" || answer == "" {
			continue
		}
		id := fmt.Sprintf("case_%d", n)
		if idCol >= 0 && idCol < len(row) && strings.TrimSpace(row[idCol]) != "" {
			id = strings.TrimSpace(row[idCol])
		}
		preview := truncateRunes(question, casePreviewChars)
		records = append(records, CaseRecord{
			ID:       id,
			Answer:   answer,
			Features: extractStandardFeatures(question),
			Preview:  preview,
			Source:   source,
		})
	}
	return records, nil
}

// LoadCaseIndex builds the case index from the configured historical
// datasets, going through the sqlite cache when it is already populated.
// An empty index is a valid state; retrieval just contributes nothing.
func LoadCaseIndex(cfg Config, store *Store) *CaseIndex {
	if cfg.TrainFile == "" && cfg.CaseFile == "" {
		log.Printf("case index: no historical data configured, retrieval disabled")
		return BuildCaseIndex(nil)
	}

	if cached, err := store.LoadCaseCache(); err != nil {
		log.Printf("case index: cache read failed, rebuilding: %v", err)
	} else if len(cached) > 0 {
		log.Printf("case index: loaded %d cases from cache", len(cached))
		return BuildCaseIndex(cached)
	}

	var records []CaseRecord
	for _, src := range []struct{ path, name string }{
		{cfg.TrainFile, "train"},
		{cfg.CaseFile, "case_file"},
	} {
		if src.path == "" {
			continue
		}
		recs, err := LoadCaseRecords(src.path, src.name)
		if err != nil {
			log.Printf("case index: skipping %s: %v", src.path, err)
			continue
		}
		log.Printf("case index: loaded %d cases from %s", len(recs), src.path)
		records = append(records, recs...)
	}

	if len(records) > 0 {
		if err := store.SaveCaseCache(records); err != nil {
			log.Printf("case index: cache write failed: %v", err)
		}
	} else {
		log.Printf("case index: no cases loaded, retrieval disabled")
	}
	return BuildCaseIndex(records)
}
