// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/textfuzz/textfuzz/pkg/db"
	"github.com/textfuzz/textfuzz/pkg/log"
	"github.com/textfuzz/textfuzz/pkg/osutil"
	"github.com/ulikunitz/xz"
)

// LoadDB creates a corpus from a corpus database file.
// Record values are decompressed only when the test case input is requested.
func LoadDB(filename string) (*Corpus, error) {
	corpusDB, err := db.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus database: %w", err)
	}
	corpus := NewCorpus()
	for _, key := range corpusDB.Keys() {
		key := key
		corpus.AddLazy(key, func() ([]byte, error) {
			return corpusDB.Get(key)
		})
	}
	log.Logf(0, "loaded %v test cases from %v", corpusDB.Len(), filename)
	return corpus, nil
}

const xzSuffix = ".xz"

// LoadDir creates a corpus from a directory with one input per file.
// Files with the .xz suffix are xz-compressed inputs.
// File contents are read only when the test case input is requested.
func LoadDir(dir string) (*Corpus, error) {
	files, err := osutil.ListDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus dir: %w", err)
	}
	corpus := NewCorpus()
	for _, name := range files {
		file := filepath.Join(dir, name)
		corpus.AddLazy(strings.TrimSuffix(name, xzSuffix), func() ([]byte, error) {
			return readInput(file)
		})
	}
	log.Logf(0, "found %v test cases in %v", len(files), dir)
	return corpus, nil
}

func readInput(file string) ([]byte, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(file, xzSuffix) {
		return data, nil
	}
	xr, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %v: %w", file, err)
	}
	res, err := io.ReadAll(xr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %v: %w", file, err)
	}
	return res, nil
}
