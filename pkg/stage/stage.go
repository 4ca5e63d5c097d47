// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package stage defines the per-iteration stage pipeline of the fuzzing loop.
// A stage is a unit of work applied to the currently selected test case,
// e.g. an analysis pass whose result is cached as test case metadata.
package stage

import (
	"context"
	"fmt"
	"sync"

	"github.com/textfuzz/textfuzz/pkg/corpus"
	"github.com/textfuzz/textfuzz/pkg/log"
	"github.com/textfuzz/textfuzz/pkg/stat"
)

// Decision is the result of Stage.ShouldRun.
type Decision int

const (
	Continue Decision = iota
	Skip
)

func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case Skip:
		return "skip"
	}
	return fmt.Sprintf("Decision(%d)", int(d))
}

// Result is the outcome of a successful Stage.Perform.
type Result int

const (
	Success Result = iota
	Skipped
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// State gives stages access to the test case the fuzzing loop has selected.
type State interface {
	Corpus() *corpus.Corpus
	CurrentTestcase() (*corpus.Testcase, error)
}

type Stage interface {
	Name() string
	// ShouldRun decides whether Perform needs to be invoked in this iteration,
	// e.g. a stage that was interrupted mid-way may want to skip a repeated attempt.
	ShouldRun(state State) (Decision, error)
	Perform(ctx context.Context, state State) (Result, error)
	// ClearProgress resets any resumable progress after the stage completed.
	ClearProgress(state State) error
}

// WorkerState is the State of a single fuzzing worker.
// The corpus may be shared between workers, the selection is not.
type WorkerState struct {
	corpus  *corpus.Corpus
	mu      sync.Mutex
	current *corpus.Testcase
}

func NewWorkerState(c *corpus.Corpus) *WorkerState {
	return &WorkerState{corpus: c}
}

func (ws *WorkerState) Corpus() *corpus.Corpus {
	return ws.corpus
}

func (ws *WorkerState) Select(tc *corpus.Testcase) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.current = tc
}

func (ws *WorkerState) CurrentTestcase() (*corpus.Testcase, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.current == nil {
		return nil, corpus.ErrNoTestcase
	}
	return ws.current, nil
}

var (
	statPerformed = stat.New("stages performed", "Stage invocations that ran Perform",
		stat.Prometheus("textfuzz_stages_performed"))
	statSkipped = stat.New("stages skipped", "Stage invocations skipped by ShouldRun",
		stat.Prometheus("textfuzz_stages_skipped"))
)

// Pipeline runs a fixed sequence of stages against the current test case.
type Pipeline struct {
	stages []Stage
}

func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Run executes ShouldRun, Perform and ClearProgress of every stage in order.
// The first error stops the pipeline. Cancellation of ctx is checked between
// stages, a running stage is never interrupted.
func (p *Pipeline) Run(ctx context.Context, state State) error {
	for _, s := range p.stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		decision, err := s.ShouldRun(state)
		if err != nil {
			return fmt.Errorf("stage %v: %w", s.Name(), err)
		}
		if decision == Skip {
			statSkipped.Add(1)
			log.Logf(3, "stage %v: skipped", s.Name())
			continue
		}
		res, err := s.Perform(ctx, state)
		if err != nil {
			return fmt.Errorf("stage %v: %w", s.Name(), err)
		}
		statPerformed.Add(1)
		log.Logf(3, "stage %v: %v", s.Name(), res)
		if err := s.ClearProgress(state); err != nil {
			return fmt.Errorf("stage %v: failed to clear progress: %w", s.Name(), err)
		}
	}
	return nil
}
