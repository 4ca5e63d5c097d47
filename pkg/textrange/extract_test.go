// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package textrange

import (
	"math/rand"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/textfuzz/textfuzz/pkg/testutil"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		// Ranges in Range.String format: start offset and boundary bits.
		want []string
	}{
		{
			name:  "empty",
			input: nil,
			want:  []string{},
		},
		{
			name:  "ascii",
			input: []byte("abc"),
			want:  []string{"0:111"},
		},
		{
			name:  "two-byte-then-invalid",
			input: []byte{0xc2, 0xa9, 0xff},
			want:  []string{"0:10"},
		},
		{
			name:  "lone-two-byte",
			input: []byte{0xc2, 0xa9},
			want:  []string{"0:10"},
		},
		{
			name:  "three-byte",
			input: []byte("€"),
			want:  []string{"0:100"},
		},
		{
			name:  "mixed-widths",
			input: []byte("a©€😀"),
			want:  []string{"0:1" + "10" + "100" + "1000"},
		},
		{
			name:  "invalid-in-middle",
			input: []byte("ab\xffcd"),
			want:  []string{"0:11", "3:11"},
		},
		{
			name:  "consecutive-invalid-prefix",
			input: []byte("\xff\xfe\xffa"),
			want:  []string{"3:1"},
		},
		{
			name:  "consecutive-invalid-middle",
			input: []byte("a\xff\xff\xffb"),
			want:  []string{"0:1", "4:1"},
		},
		{
			name:  "all-invalid",
			input: []byte{0xff, 0xfe, 0x80, 0xbf, 0xc0},
			want:  []string{},
		},
		{
			name:  "truncated-sequence-before-text",
			input: []byte{0xe2, 0x82, 0xe2, 0x82, 0xac},
			want:  []string{"2:100"},
		},
		{
			name:  "truncated-sequence-at-end",
			input: []byte{'a', 'b', 0xe2, 0x82},
			want:  []string{"0:11"},
		},
		{
			name: "surrogate",
			// U+D800 encoded as UTF-8 is not a scalar value.
			input: []byte{'x', 0xed, 0xa0, 0x80, 'y'},
			want:  []string{"0:1", "4:1"},
		},
		{
			name: "overlong",
			// Overlong encoding of '/'.
			input: []byte{0xc0, 0xaf, 'z'},
			want:  []string{"2:1"},
		},
		{
			name: "shifted-text",
			// A dropped lead byte leaves a stray continuation byte before valid text.
			input: []byte{0xa9, 'o', 'k', 0xc2, 0xa9},
			want:  []string{"1:1110"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			meta := Extract(test.input)
			got := []string{}
			for _, r := range meta.Ranges() {
				got = append(got, r.String())
			}
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Fatalf("wrong ranges (-want +got):\n%s", diff)
			}
			checkProperties(t, test.input, meta)
		})
	}
}

func TestExtractASCII(t *testing.T) {
	input := []byte("The quick brown fox jumps over the lazy dog 0123456789 !@#$%^&*()")
	meta := Extract(input)
	require.Equal(t, 1, meta.Len())
	r := meta.Range(0)
	assert.Equal(t, 0, r.Start())
	assert.Equal(t, len(input), r.Len())
	assert.Equal(t, len(input), r.CharCount())
	assert.True(t, r.Boundaries().All())
}

func TestExtractDeterministic(t *testing.T) {
	rnd := rand.New(testutil.RandSource(t))
	for i := 0; i < testutil.IterCount(); i++ {
		input := testutil.RandTextInput(rnd, rnd.Intn(256))
		assert.Equal(t, Extract(input).String(), Extract(input).String())
	}
}

func TestExtractDoesNotModifyInput(t *testing.T) {
	input := []byte("a\xff©\xc2")
	orig := append([]byte(nil), input...)
	Extract(input)
	assert.Equal(t, orig, input)
}

func TestExtractRandom(t *testing.T) {
	rnd := rand.New(testutil.RandSource(t))
	for i := 0; i < testutil.IterCount(); i++ {
		input := testutil.RandTextInput(rnd, rnd.Intn(512))
		checkProperties(t, input, Extract(input))
	}
}

func FuzzExtract(f *testing.F) {
	for _, seed := range []string{"", "abc", "\xc2\xa9\xff", "a\xff\xffb", "\xe2\x82\xe2\x82\xac", "😀\x80€"} {
		f.Add([]byte(seed))
	}
	f.Fuzz(func(t *testing.T, input []byte) {
		checkProperties(t, input, Extract(input))
	})
}

// checkProperties verifies invariants that hold for any input.
func checkProperties(t *testing.T, input []byte, meta *Metadata) {
	t.Helper()
	starts := make(map[int]bool)
	covered := make([]bool, len(input))
	for _, r := range meta.Ranges() {
		if starts[r.Start()] {
			t.Fatalf("duplicate range start %v in %v", r.Start(), meta)
		}
		starts[r.Start()] = true
		if r.Len() == 0 || r.End() > len(input) {
			t.Fatalf("bad range %v for input of len %v", r, len(input))
		}
		text := input[r.Start():r.End()]
		if !utf8.Valid(text) {
			t.Fatalf("range %v is not valid UTF-8: %q", r, text)
		}
		// Boundaries are set exactly at scalar value starts.
		var wantOffsets []int
		for off := range string(text) {
			wantOffsets = append(wantOffsets, r.Start()+off)
		}
		if diff := cmp.Diff(wantOffsets, r.CharOffsets()); diff != "" {
			t.Fatalf("range %v has wrong boundaries (-want +got):\n%s", r, diff)
		}
		if r.CharCount() != utf8.RuneCount(text) {
			t.Fatalf("range %v: char count %v, want %v", r, r.CharCount(), utf8.RuneCount(text))
		}
		// Ranges are maximal: they end at the end of input or where decoding fails.
		if r.End() != len(input) && validPrefix(input[r.End():]) != 0 {
			t.Fatalf("range %v is not maximal in %q", r, input)
		}
		for off := r.Start(); off < r.End(); off++ {
			covered[off] = true
		}
	}
	// Every offset not covered by a range is unable to start text.
	for off, ok := range covered {
		if !ok && validPrefix(input[off:]) != 0 {
			t.Fatalf("offset %v starts valid text but is not covered by %v in %q", off, meta, input)
		}
	}
}

func TestValidPrefix(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"abc", 3},
		{"\xff", 0},
		{"ab\xff", 2},
		{"©\xa9", 2},
		{"€", 3},
		{"\xe2\x82", 0},
		{"\xef\xbf\xbd", 3}, // U+FFFD itself is valid
	}
	for _, test := range tests {
		assert.Equal(t, test.want, validPrefix([]byte(test.input)), "%q", test.input)
	}
}
