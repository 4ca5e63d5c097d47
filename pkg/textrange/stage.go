// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package textrange

import (
	"context"

	"github.com/textfuzz/textfuzz/pkg/corpus"
	"github.com/textfuzz/textfuzz/pkg/hash"
	"github.com/textfuzz/textfuzz/pkg/log"
	"github.com/textfuzz/textfuzz/pkg/stage"
	"github.com/textfuzz/textfuzz/pkg/stat"
)

var (
	statAnalyzed = stat.New("text analyzed", "Test cases analyzed for text ranges",
		stat.Console, stat.Prometheus("textfuzz_text_analyzed"))
	statCached = stat.New("text cached", "Text range analyses skipped because metadata was attached",
		stat.Prometheus("textfuzz_text_cached"))
	statBytes = stat.New("text bytes", "Input bytes scanned for text ranges",
		stat.Prometheus("textfuzz_text_bytes"))
	statRanges = stat.New("text ranges", "Text ranges per analyzed test case",
		stat.Console, stat.Distribution{})
)

// IdentificationStage attaches text range Metadata to the current test case.
// The analysis runs at most once per test case, later invocations reuse the attached result.
type IdentificationStage struct{}

func NewIdentificationStage() *IdentificationStage {
	return &IdentificationStage{}
}

func (*IdentificationStage) Name() string {
	return "unicode identification"
}

// ShouldRun always returns Continue: the stage does not run the target and can't be interrupted half-way.
func (*IdentificationStage) ShouldRun(state stage.State) (stage.Decision, error) {
	return stage.Continue, nil
}

// ClearProgress is a no-op since Perform keeps no state between calls.
func (*IdentificationStage) ClearProgress(state stage.State) error {
	return nil
}

func (*IdentificationStage) Perform(ctx context.Context, state stage.State) (stage.Result, error) {
	tc, err := state.CurrentTestcase()
	if err != nil {
		return stage.Success, err
	}
	if corpus.HasMeta[*Metadata](tc.Meta()) {
		statCached.Add(1)
		return stage.Success, nil
	}
	data, err := tc.Input()
	if err != nil {
		return stage.Success, err
	}
	meta := Extract(data)
	corpus.AddMeta(tc.Meta(), meta)
	statAnalyzed.Add(1)
	statBytes.Add(len(data))
	statRanges.Add(meta.Len())
	if log.V(4) {
		log.Logf(4, "test case %v: text ranges %v, metadata %v", tc.ID, meta, tc.Meta().Kinds())
	} else {
		log.Logf(2, "test case %v: %v bytes, %v text ranges", logID(tc.ID), len(data), meta.Len())
	}
	return stage.Success, nil
}

// logID shortens content hash IDs, other IDs are returned as is.
func logID(id string) string {
	if sig, err := hash.FromString(id); err == nil {
		return sig.Short()
	}
	return id
}

// Get returns text range metadata attached to tc by IdentificationStage.
func Get(tc *corpus.Testcase) (*Metadata, bool) {
	return corpus.GetMeta[*Metadata](tc.Meta())
}
