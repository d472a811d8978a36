package main

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func runnerFixtures(t *testing.T, n int) (Config, *Store, []Question) {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{MaxWorkers: 4, OutputDir: dir}
	store, err := OpenStore(filepath.Join(dir, "checkpoint.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	questions := make([]Question, n)
	for i := range questions {
		questions[i] = Question{
			ID:      string(rune('a'+i)) + "-question",
			Text:    "Which timer governs this procedure?",
			Kind:    KindOther,
			Options: []string{"A", "B", "C", "D"},
		}
	}
	return cfg, store, questions
}

func readSubmission(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening submission: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading submission: %v", err)
	}
	return rows
}

func TestRunCompleteness(t *testing.T) {
	cfg, store, questions := runnerFixtures(t, 5)
	llm := &fakeInferencer{label: "B"}
	runner := NewBatchRunner(cfg, store, newTestSolver(llm), questions)

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rows := readSubmission(t, filepath.Join(cfg.OutputDir, submissionFileName))
	if len(rows) != len(questions)+1 {
		t.Fatalf("submission has %d rows, want %d", len(rows), len(questions)+1)
	}
	seen := make(map[string]bool)
	for i, row := range rows[1:] {
		if seen[row[0]] {
			t.Errorf("duplicate row for %s", row[0])
		}
		seen[row[0]] = true
		if row[0] != questions[i].ID {
			t.Errorf("row %d is %s, want input order %s", i, row[0], questions[i].ID)
		}
		if row[1] != "B" {
			t.Errorf("row %s label = %q, want B", row[0], row[1])
		}
		if row[2] != FormatAnswer("B") {
			t.Errorf("row %s answer payload = %q", row[0], row[2])
		}
	}
}

func TestRunResumeSkipsCompleted(t *testing.T) {
	cfg, store, questions := runnerFixtures(t, 5)

	// Two questions already completed by an earlier run, with answers the
	// new model would not produce.
	for _, q := range questions[:2] {
		res := DiagnosisResult{QuestionID: q.ID, Kind: q.Kind, Answer: "D", SolvedAt: time.Now().UTC()}
		if err := store.SaveResult(res, StatusDone); err != nil {
			t.Fatalf("seeding checkpoint: %v", err)
		}
	}

	llm := &fakeInferencer{label: "B"}
	runner := NewBatchRunner(cfg, store, newTestSolver(llm), questions)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := llm.callCount(); got != 3 {
		t.Errorf("model called %d times, want 3 pending only", got)
	}
	rows := readSubmission(t, filepath.Join(cfg.OutputDir, submissionFileName))
	for _, row := range rows[1:3] {
		if row[1] != "D" {
			t.Errorf("earlier result %s overwritten: label %q", row[0], row[1])
		}
	}
	for _, row := range rows[3:] {
		if row[1] != "B" {
			t.Errorf("pending question %s label = %q, want B", row[0], row[1])
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	cfg, store, questions := runnerFixtures(t, 4)
	llm := &fakeInferencer{label: "C"}

	runner := NewBatchRunner(cfg, store, newTestSolver(llm), questions)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, err := os.ReadFile(filepath.Join(cfg.OutputDir, submissionFileName))
	if err != nil {
		t.Fatalf("reading first submission: %v", err)
	}

	// A second run sees everything done and touches nothing, even with a
	// model that would answer differently.
	llm2 := &fakeInferencer{label: "A"}
	runner2 := NewBatchRunner(cfg, store, newTestSolver(llm2), questions)
	if err := runner2.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := llm2.callCount(); got != 0 {
		t.Errorf("second run called the model %d times", got)
	}
	second, err := os.ReadFile(filepath.Join(cfg.OutputDir, submissionFileName))
	if err != nil {
		t.Fatalf("reading second submission: %v", err)
	}
	if string(first) != string(second) {
		t.Errorf("submission changed across runs:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestRunCanceledLeavesInFlightPending(t *testing.T) {
	cfg, store, questions := runnerFixtures(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	llm := &fakeInferencer{err: ErrInferenceUnavailable}
	runner := NewBatchRunner(cfg, store, newTestSolver(llm), questions)
	err := runner.Run(ctx)
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if !IsInterrupt(err) {
		t.Fatalf("err = %v, want interrupt", err)
	}

	entries, lerr := store.LoadCheckpoint()
	if lerr != nil {
		t.Fatalf("LoadCheckpoint: %v", lerr)
	}
	for id, entry := range entries {
		if entry.Status == StatusDone {
			t.Errorf("question %s recorded as done under a canceled context", id)
		}
	}
}

func TestRunRecordsInferenceFailureAsFailed(t *testing.T) {
	cfg, store, questions := runnerFixtures(t, 2)
	llm := &fakeInferencer{err: ErrInferenceUnavailable}
	runner := NewBatchRunner(cfg, store, newTestSolver(llm), questions)
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	entries, err := store.LoadCheckpoint()
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	for _, q := range questions {
		entry, ok := entries[q.ID]
		if !ok {
			t.Fatalf("no entry for %s", q.ID)
		}
		if entry.Status != StatusFailed {
			t.Errorf("%s status = %q, want %q", q.ID, entry.Status, StatusFailed)
		}
		if entry.Answer != "A" {
			t.Errorf("%s answer = %q, want first-option fallback A", q.ID, entry.Answer)
		}
	}

	// The submission still covers every question.
	rows := readSubmission(t, filepath.Join(cfg.OutputDir, submissionFileName))
	if len(rows) != len(questions)+1 {
		t.Fatalf("submission has %d rows, want %d", len(rows), len(questions)+1)
	}
}

func TestRunRetriesFailedQuestions(t *testing.T) {
	cfg, store, questions := runnerFixtures(t, 2)

	failing := &fakeInferencer{err: ErrInferenceUnavailable}
	if err := NewBatchRunner(cfg, store, newTestSolver(failing), questions).Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// The endpoint recovers; the failed entries are reprocessed and upgraded.
	recovered := &fakeInferencer{label: "B"}
	if err := NewBatchRunner(cfg, store, newTestSolver(recovered), questions).Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := recovered.callCount(); got != len(questions) {
		t.Errorf("second run called the model %d times, want %d", got, len(questions))
	}

	entries, err := store.LoadCheckpoint()
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	for _, q := range questions {
		entry := entries[q.ID]
		if entry.Status != StatusDone || entry.Answer != "B" {
			t.Errorf("%s = %q/%q, want done/B", q.ID, entry.Status, entry.Answer)
		}
	}
}

func TestWriteSubmissionMissingEntry(t *testing.T) {
	dir := t.TempDir()
	questions := []Question{{ID: "q1"}, {ID: "q2"}}
	checkpoint := map[string]CheckpointEntry{
		"q1": {QuestionID: "q1", Status: StatusDone, Answer: "A"},
	}
	err := WriteSubmission(filepath.Join(dir, "submission.csv"), questions, checkpoint)
	if err == nil {
		t.Fatalf("expected error for missing q2 entry")
	}
}
