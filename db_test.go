package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCheckpointRoundTrip(t *testing.T) {
	store := newTestStore(t)

	res := DiagnosisResult{
		QuestionID:     "q1",
		Kind:           KindNonstandardTelco,
		Answer:         "D",
		Cause:          CauseOverlap,
		Rule:           "reconcile/agreement",
		RetrievedCases: []string{"c1", "c2"},
		UsedInference:  true,
		InferenceOK:    true,
		SolvedAt:       time.Now().UTC(),
	}
	if err := store.SaveResult(res, StatusDone); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	entries, err := store.LoadCheckpoint()
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	entry, ok := entries["q1"]
	if !ok {
		t.Fatalf("entry missing, got %v", entries)
	}
	if entry.Status != StatusDone || entry.Answer != "D" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Result == nil {
		t.Fatalf("evidence not decoded")
	}
	if diff := cmp.Diff(res.RetrievedCases, entry.Result.RetrievedCases); diff != "" {
		t.Errorf("evidence mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckpointReplaceIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	res := DiagnosisResult{QuestionID: "q1", Answer: "A", SolvedAt: time.Now().UTC()}
	if err := store.SaveResult(res, StatusDone); err != nil {
		t.Fatalf("first save: %v", err)
	}
	res.Answer = "B"
	if err := store.SaveResult(res, StatusDone); err != nil {
		t.Fatalf("second save: %v", err)
	}

	entries, err := store.LoadCheckpoint()
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries["q1"].Answer != "B" {
		t.Errorf("answer = %q, want the replacing write", entries["q1"].Answer)
	}
}

func TestCheckpointCorruptionIsFatal(t *testing.T) {
	store := newTestStore(t)
	_, err := store.db.Exec(
		`INSERT INTO checkpoint (question_id, status, answer, evidence, updated_at) VALUES (?, ?, ?, ?, ?)`,
		"q1", StatusDone, "A", "{not json", time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("seeding corrupt row: %v", err)
	}
	if _, err := store.LoadCheckpoint(); err == nil {
		t.Fatalf("corrupt evidence must fail the load")
	}
}

func TestCaseCacheRoundTrip(t *testing.T) {
	store := newTestStore(t)
	records := []CaseRecord{
		{ID: "c1", Answer: "1", Features: FeatureVector{FeatMinRSRP: -95}, Preview: "weak", Source: "train"},
		{ID: "c2", Answer: "3", Features: FeatureVector{FeatMaxTilt: 8, FeatHandovers: 2}, Source: "case_file"},
	}
	if err := store.SaveCaseCache(records); err != nil {
		t.Fatalf("SaveCaseCache: %v", err)
	}

	got, err := store.LoadCaseCache()
	if err != nil {
		t.Fatalf("LoadCaseCache: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	byID := make(map[string]CaseRecord)
	for _, rec := range got {
		byID[rec.ID] = rec
	}
	if diff := cmp.Diff(records[0].Features, byID["c1"].Features); diff != "" {
		t.Errorf("features mismatch (-want +got):\n%s", diff)
	}
	if byID["c2"].Source != "case_file" {
		t.Errorf("source = %q", byID["c2"].Source)
	}
}
