package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	submissionFileName = "submission.csv"
	solveLogFileName   = "solve_log.jsonl"
)

type batchStats struct {
	Standard      int
	TelecomByRule int
	TelecomByAI   int
	Other         int
	AICalled      int
	AISucceeded   int
	AIFellBack    int
}

// BatchRunner drives the full question set through the solver with a
// bounded worker pool, recording each completion durably before the worker
// moves on. It is the sole owner of the checkpoint lifecycle.
type BatchRunner struct {
	cfg       Config
	store     *Store
	solver    *Solver
	questions []Question

	mu        sync.Mutex
	logFile   *os.File
	stats     batchStats
	completed int
}

func NewBatchRunner(cfg Config, store *Store, solver *Solver, questions []Question) *BatchRunner {
	return &BatchRunner{cfg: cfg, store: store, solver: solver, questions: questions}
}

// Run resumes from the checkpoint, processes every pending question, and
// writes the final submission. A canceled context stops scheduling; results
// already recorded stay recorded, in-flight questions stay pending.
func (r *BatchRunner) Run(ctx context.Context) error {
	checkpoint, err := r.store.LoadCheckpoint()
	if err != nil {
		return fmt.Errorf("loading checkpoint: %w", err)
	}

	var pending []Question
	for _, q := range r.questions {
		if entry, ok := checkpoint[q.ID]; ok && entry.Status == StatusDone {
			continue
		}
		pending = append(pending, q)
	}
	log.Printf("batch start total=%d done=%d pending=%d workers=%d",
		len(r.questions), len(r.questions)-len(pending), len(pending), r.cfg.MaxWorkers)

	logPath := filepath.Join(r.cfg.OutputDir, solveLogFileName)
	r.logFile, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening solve log: %w", err)
	}
	defer r.logFile.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxWorkers)
	for _, q := range pending {
		q := q
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			res := r.solver.Solve(gctx, q)
			if gctx.Err() != nil && res.UsedInference && !res.InferenceOK {
				// Interrupted mid-call; leave this question pending so the
				// next run retries it instead of recording a degraded answer.
				return gctx.Err()
			}
			return r.record(res, len(pending))
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Re-read so the submission also covers questions completed by earlier
	// runs, in original input order.
	checkpoint, err = r.store.LoadCheckpoint()
	if err != nil {
		return fmt.Errorf("reloading checkpoint: %w", err)
	}
	submissionPath := filepath.Join(r.cfg.OutputDir, submissionFileName)
	if err := WriteSubmission(submissionPath, r.questions, checkpoint); err != nil {
		return err
	}
	log.Printf("batch done submission=%s", submissionPath)
	r.logStats()
	return nil
}

// record serializes the read-modify-write-flush sequence across workers so
// concurrent completions cannot interleave checkpoint or log writes.
func (r *BatchRunner) record(res DiagnosisResult, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := StatusDone
	if res.UsedInference && !res.InferenceOK {
		// The answer came from the fallback ladder; a later run retries
		// the question in case the endpoint recovers.
		status = StatusFailed
	}
	if err := r.store.SaveResult(res, status); err != nil {
		return fmt.Errorf("checkpoint write for %s: %w", res.QuestionID, err)
	}
	line, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode log entry for %s: %w", res.QuestionID, err)
	}
	if _, err := r.logFile.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("solve log write for %s: %w", res.QuestionID, err)
	}

	switch res.Kind {
	case KindStandard:
		r.stats.Standard++
	case KindNonstandardTelco:
		if res.UsedInference {
			r.stats.TelecomByAI++
		} else {
			r.stats.TelecomByRule++
		}
	default:
		r.stats.Other++
	}
	if res.UsedInference {
		r.stats.AICalled++
		if res.InferenceOK {
			r.stats.AISucceeded++
		}
	}
	if res.Fallback {
		r.stats.AIFellBack++
	}

	r.completed++
	if r.completed%10 == 0 {
		log.Printf("batch progress %d/%d", r.completed, total)
	}
	return nil
}

func (r *BatchRunner) logStats() {
	s := r.stats
	log.Printf("batch stats standard=%d telecom_rule=%d telecom_ai=%d other=%d", s.Standard, s.TelecomByRule, s.TelecomByAI, s.Other)
	if s.AICalled > 0 {
		log.Printf("batch stats ai_called=%d ai_ok=%d fallback=%d", s.AICalled, s.AISucceeded, s.AIFellBack)
	}
}

// WriteSubmission emits one row per input question in the original input
// order, regardless of the order completions happened in. Every question
// must have a done or failed checkpoint entry by the time this runs; failed
// entries still carry their fallback answer.
func WriteSubmission(path string, questions []Question, checkpoint map[string]CheckpointEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"ID", "label", "answer"}); err != nil {
		return err
	}
	for _, q := range questions {
		entry, ok := checkpoint[q.ID]
		if !ok || (entry.Status != StatusDone && entry.Status != StatusFailed) {
			return fmt.Errorf("question %s has no completed result", q.ID)
		}
		if err := w.Write([]string{q.ID, entry.Answer, FormatAnswer(entry.Answer)}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write submission: %w", err)
	}
	return f.Sync()
}

// IsInterrupt reports whether a batch error is an external cancellation
// rather than a real failure.
func IsInterrupt(err error) bool {
	return errors.Is(err, context.Canceled)
}
