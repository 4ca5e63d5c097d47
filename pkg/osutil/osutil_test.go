// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package osutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "file")
	require.NoError(t, WriteFile(fn, []byte("first")))
	require.NoError(t, WriteFile(fn, []byte("second")))
	data, err := os.ReadFile(fn)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
	_, err = os.Stat(fn + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestListDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b", "a", "c"} {
		require.NoError(t, WriteFile(filepath.Join(dir, name), nil))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0755))
	files, err := ListDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, files)
}
