// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package osutil

import (
	"fmt"
	"os"
	"sort"
)

const DefaultFilePerm = 0644

// WriteFile writes data to a temp file next to filename and renames it over filename,
// so readers never observe a partially written file.
func WriteFile(filename string, data []byte) error {
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, DefaultFilePerm); err != nil {
		return err
	}
	return Rename(tmp, filename)
}

func Rename(oldFile, newFile string) error {
	err := os.Rename(oldFile, newFile)
	if err != nil {
		os.Remove(oldFile)
		return fmt.Errorf("failed to rename %v -> %v: %w", oldFile, newFile, err)
	}
	return nil
}

// ListDir returns names of regular files in dir in lexicographical order.
func ListDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, ent := range entries {
		if !ent.Type().IsRegular() {
			continue
		}
		files = append(files, ent.Name())
	}
	sort.Strings(files)
	return files, nil
}
