// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package textrange identifies UTF-8 text regions in fuzzing inputs.
//
// Extract finds all maximal decodable regions of an arbitrary byte buffer and
// records which byte offsets of every region start a Unicode scalar value.
// Mutators use the result to make character-aligned edits instead of splitting
// multi-byte sequences. Because byte-level mutations shift alignment, the
// buffer is explored from every plausible start offset, not just from 0:
// after every decode failure exploration restarts right after the bad byte,
// and every continuation byte of a decoded region is tried as a start too.
package textrange

import (
	"unicode/utf8"

	"github.com/bits-and-blooms/bitset"
)

// Extract returns the text regions of data. It never fails:
// inputs without any valid UTF-8 produce metadata with no ranges.
// Every start offset is explored at most once, so the work is bounded
// by a small multiple of len(data).
func Extract(data []byte) *Metadata {
	meta := new(Metadata)
	if len(data) == 0 {
		return meta
	}
	visited := bitset.New(uint(len(data)))
	frontier := []int{0}
	for len(frontier) != 0 {
		i := frontier[0]
		frontier = frontier[1:]
		if i >= len(data) || visited.Test(uint(i)) {
			continue
		}
		visited.Set(uint(i))
		n := validPrefix(data[i:])
		if i+n < len(data) {
			// The byte at i+n can't start a scalar value, but the one after it might.
			frontier = append(frontier, i+n+1)
		}
		if n == 0 {
			continue
		}
		boundaries := bitset.New(uint(n))
		for off := 0; off < n; {
			_, size := utf8.DecodeRune(data[i+off : i+n])
			boundaries.Set(uint(off))
			visited.Set(uint(i + off))
			off += size
		}
		for off := 0; off < n; off++ {
			if !boundaries.Test(uint(off)) {
				frontier = append(frontier, i+off)
			}
		}
		meta.ranges = append(meta.ranges, Range{
			start:      i,
			boundaries: boundaries,
		})
	}
	return meta
}

// validPrefix returns the length of the longest prefix of data that is valid UTF-8.
func validPrefix(data []byte) int {
	for i := 0; i < len(data); {
		if data[i] < utf8.RuneSelf {
			i++
			continue
		}
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return len(data)
}
