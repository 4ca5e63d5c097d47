// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package textrange

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRangeAccessors(t *testing.T) {
	// "x" + invalid byte + "é€".
	input := []byte("x\xff\xc3\xa9\xe2\x82\xac")
	meta := Extract(input)
	require.Equal(t, 2, meta.Len())
	assert.Equal(t, "[0:1 2:10100]", meta.String())

	r := meta.Range(1)
	assert.Equal(t, 2, r.Start())
	assert.Equal(t, 5, r.Len())
	assert.Equal(t, 7, r.End())
	assert.Equal(t, 2, r.CharCount())
	assert.Equal(t, []int{2, 4}, r.CharOffsets())
	assert.True(t, r.IsBoundary(0))
	assert.False(t, r.IsBoundary(1))
	assert.True(t, r.IsBoundary(2))
	assert.False(t, r.IsBoundary(-1))
	assert.False(t, r.IsBoundary(5))

	for off, want := range map[int]int{2: 2, 3: 2, 4: 4, 5: 4, 6: 4} {
		got, ok := r.AlignDown(off)
		assert.True(t, ok, "offset %v", off)
		assert.Equal(t, want, got, "offset %v", off)
	}
	_, ok := r.AlignDown(1)
	assert.False(t, ok)
	_, ok = r.AlignDown(7)
	assert.False(t, ok)
}

func TestMetadataImmutable(t *testing.T) {
	meta := Extract([]byte("ab\xffcd"))
	ranges := meta.Ranges()
	ranges[0] = ranges[1]
	assert.Equal(t, 0, meta.Range(0).Start())

	bits := meta.Range(0).Boundaries()
	bits.ClearAll()
	assert.True(t, meta.Range(0).IsBoundary(0))
}

func TestContaining(t *testing.T) {
	meta := Extract([]byte("ab\xffcd"))
	assert.Empty(t, meta.Containing(2))
	got := meta.Containing(4)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Start())
	assert.Empty(t, meta.Containing(100))
}

func TestEmptyMetadata(t *testing.T) {
	meta := Extract(nil)
	assert.Equal(t, 0, meta.Len())
	assert.Empty(t, meta.Ranges())
	assert.Equal(t, "[]", meta.String())
}

func TestMetadataJSON(t *testing.T) {
	meta := Extract([]byte("x\xff\xc3\xa9\xe2\x82\xac"))
	data, err := json.Marshal(meta)
	require.NoError(t, err)
	restored := new(Metadata)
	require.NoError(t, json.Unmarshal(data, restored))
	assert.Equal(t, meta.String(), restored.String())
	assert.Equal(t, []int{2, 4}, restored.Range(1).CharOffsets())

	empty := new(Metadata)
	require.NoError(t, json.Unmarshal([]byte("[]"), empty))
	assert.Equal(t, 0, empty.Len())

	for _, bad := range []string{
		`{}`,
		`[{"start": 0}]`,
		`[{"start": -1, "boundaries": null}]`,
	} {
		assert.Error(t, json.Unmarshal([]byte(bad), new(Metadata)), "input %v", bad)
	}
}
