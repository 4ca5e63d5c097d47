// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package textrange

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// Metadata is the list of text regions found in one test case, in discovery order.
// It is immutable and shared by all users of the test case.
type Metadata struct {
	ranges []Range
}

// Range is a decodable text region starting at an absolute input offset.
type Range struct {
	start int
	// Bit k is set iff byte start+k begins a scalar value.
	boundaries *bitset.BitSet
}

// Len returns the number of ranges.
func (m *Metadata) Len() int {
	return len(m.ranges)
}

// Range returns the i-th range in discovery order.
func (m *Metadata) Range(i int) Range {
	return m.ranges[i]
}

// Ranges returns all ranges. The returned slice may be modified by the caller.
func (m *Metadata) Ranges() []Range {
	return append([]Range(nil), m.ranges...)
}

// Containing returns ranges that cover the absolute input offset off.
func (m *Metadata) Containing(off int) []Range {
	var res []Range
	for _, r := range m.ranges {
		if off >= r.start && off < r.End() {
			res = append(res, r)
		}
	}
	return res
}

// String formats all ranges as "[start:bits ...]".
func (m *Metadata) String() string {
	parts := make([]string, len(m.ranges))
	for i, r := range m.ranges {
		parts[i] = r.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Start returns the absolute offset of the first byte of the range.
func (r Range) Start() int {
	return r.start
}

// Len returns the range length in bytes.
func (r Range) Len() int {
	return int(r.boundaries.Len())
}

// End returns the absolute offset right after the range.
func (r Range) End() int {
	return r.start + r.Len()
}

// IsBoundary says if offset k relative to the range start begins a scalar value.
func (r Range) IsBoundary(k int) bool {
	return k >= 0 && r.boundaries.Test(uint(k))
}

// Boundaries returns a copy of the boundary bitmap.
func (r Range) Boundaries() *bitset.BitSet {
	return r.boundaries.Clone()
}

// CharCount returns the number of scalar values in the range.
func (r Range) CharCount() int {
	return int(r.boundaries.Count())
}

// CharOffsets returns absolute offsets of all scalar values in the range.
func (r Range) CharOffsets() []int {
	res := make([]int, 0, r.boundaries.Count())
	for k, ok := r.boundaries.NextSet(0); ok; k, ok = r.boundaries.NextSet(k + 1) {
		res = append(res, r.start+int(k))
	}
	return res
}

// AlignDown returns the start of the scalar value that contains the absolute offset off.
// The second result is false if off is outside of the range.
func (r Range) AlignDown(off int) (int, bool) {
	if off < r.start || off >= r.End() {
		return 0, false
	}
	k := off - r.start
	for !r.boundaries.Test(uint(k)) {
		k--
	}
	return r.start + k, true
}

// String formats the range as start offset followed by the boundary bits.
func (r Range) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%v:", r.start)
	for k := 0; k < r.Len(); k++ {
		if r.IsBoundary(k) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

type jsonRange struct {
	Start      int            `json:"start"`
	Boundaries *bitset.BitSet `json:"boundaries"`
}

// MarshalJSON allows to persist metadata along with the test case.
func (m *Metadata) MarshalJSON() ([]byte, error) {
	ranges := make([]jsonRange, len(m.ranges))
	for i, r := range m.ranges {
		ranges[i] = jsonRange{r.start, r.boundaries}
	}
	return json.Marshal(ranges)
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var ranges []jsonRange
	if err := json.Unmarshal(data, &ranges); err != nil {
		return err
	}
	res := make([]Range, len(ranges))
	for i, r := range ranges {
		if r.Start < 0 || r.Boundaries == nil || r.Boundaries.Len() == 0 || !r.Boundaries.Test(0) {
			return fmt.Errorf("bad text range #%v", i)
		}
		res[i] = Range{r.Start, r.Boundaries}
	}
	m.ranges = res
	return nil
}
