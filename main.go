package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	cfg := LoadConfig()

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		log.Fatalf("Failed to create output dir: %v", err)
	}

	store, err := OpenStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open checkpoint store: %v", err)
	}
	defer store.Close()

	questions, err := LoadQuestions(cfg.TestFile)
	if err != nil {
		log.Fatalf("Failed to load dataset: %v", err)
	}
	log.Printf("Loaded %d questions from %s", len(questions), cfg.TestFile)

	cases := LoadCaseIndex(cfg, store)
	solver := NewSolver(NewRuleEngine(), cases, NewInferenceClient(cfg), cfg.CaseRetrieval)
	runner := NewBatchRunner(cfg, store, solver, questions)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Println("Starting 5G fault diagnosis batch...")
	if err := runner.Run(ctx); err != nil {
		if IsInterrupt(err) {
			log.Println("Interrupted; completed questions are checkpointed and will be skipped on the next run")
			os.Exit(1)
		}
		log.Fatalf("Batch error: %v", err)
	}
}
