// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/textfuzz/textfuzz/pkg/hash"
	"github.com/textfuzz/textfuzz/pkg/stat"
)

var ErrNoTestcase = errors.New("no test case selected")

// Loader materializes the content of a test case from persistent storage.
type Loader func() ([]byte, error)

// Testcase is one fuzzing input together with the analysis metadata attached to it.
// The content of a test case never changes; mutating the content produces
// a new test case with empty metadata (see Derive).
type Testcase struct {
	ID string

	mu     sync.Mutex
	data   []byte
	loaded bool
	loader Loader
	loads  int
	meta   Metadata
}

func newTestcase(id string, data []byte) *Testcase {
	return &Testcase{
		ID:     id,
		data:   data,
		loaded: true,
	}
}

// Input returns the content of the test case, loading it from storage on first use.
// A failed load is not cached, the next call retries it.
func (tc *Testcase) Input() ([]byte, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.loaded {
		return tc.data, nil
	}
	tc.loads++
	data, err := tc.loader()
	if err != nil {
		return nil, fmt.Errorf("failed to load test case %v: %w", tc.ID, err)
	}
	tc.data, tc.loaded = data, true
	statLoads.Add(1)
	return data, nil
}

// Loads returns how many times the content was requested from persistent storage.
func (tc *Testcase) Loads() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.loads
}

func (tc *Testcase) Loaded() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.loaded
}

func (tc *Testcase) Meta() *Metadata {
	return &tc.meta
}

// Derive creates a new in-memory test case with the given content.
// No metadata is carried over since it describes the old content.
func (tc *Testcase) Derive(data []byte) *Testcase {
	return newTestcase(hash.String(data), data)
}

// Corpus is an ordered set of test cases.
// Test cases added by content are deduplicated by content hash.
type Corpus struct {
	mu    sync.RWMutex
	items map[string]*Testcase
	order []*Testcase
}

var (
	statLoads = stat.New("input loads", "Test case inputs loaded from storage",
		stat.Prometheus("textfuzz_input_loads"))
)

func NewCorpus() *Corpus {
	return &Corpus{
		items: make(map[string]*Testcase),
	}
}

// Add adds an in-memory test case and returns it.
// If a test case with the same content already exists, the existing one is returned.
func (corpus *Corpus) Add(data []byte) *Testcase {
	return corpus.add(newTestcase(hash.String(data), data))
}

// AddLazy adds a test case whose content is loaded by load on first use.
func (corpus *Corpus) AddLazy(id string, load Loader) *Testcase {
	return corpus.add(&Testcase{
		ID:     id,
		loader: load,
	})
}

func (corpus *Corpus) add(tc *Testcase) *Testcase {
	corpus.mu.Lock()
	defer corpus.mu.Unlock()
	if old := corpus.items[tc.ID]; old != nil {
		return old
	}
	corpus.items[tc.ID] = tc
	corpus.order = append(corpus.order, tc)
	return tc
}

func (corpus *Corpus) Item(id string) *Testcase {
	corpus.mu.RLock()
	defer corpus.mu.RUnlock()
	return corpus.items[id]
}

// Items returns all test cases in the order they were added.
func (corpus *Corpus) Items() []*Testcase {
	corpus.mu.RLock()
	defer corpus.mu.RUnlock()
	return append([]*Testcase(nil), corpus.order...)
}

// Stats is a snapshot of the relevant current state figures.
type Stats struct {
	Items  int
	Loaded int
}

func (corpus *Corpus) Stats() Stats {
	corpus.mu.RLock()
	defer corpus.mu.RUnlock()
	stats := Stats{Items: len(corpus.order)}
	for _, tc := range corpus.order {
		if tc.Loaded() {
			stats.Loaded++
		}
	}
	return stats
}
