// Copyright 2022 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package testutil

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
	"unicode/utf8"
)

func IterCount() int {
	iters := 1000
	if testing.Short() {
		iters /= 10
	}
	return iters
}

func RandSource(t *testing.T) rand.Source {
	seed := time.Now().UnixNano()
	if fixed := os.Getenv("SYZ_SEED"); fixed != "" {
		seed, _ = strconv.ParseInt(fixed, 0, 64)
	}
	if os.Getenv("CI") != "" {
		seed = 0 // required for deterministic coverage reports
	}
	t.Logf("seed=%v", seed)
	return rand.NewSource(seed)
}

// RandTextInput returns a buffer that mixes valid multi-byte text with
// random bytes, similar to what byte-level mutations leave behind.
func RandTextInput(r *rand.Rand, maxLen int) []byte {
	var data []byte
	for len(data) < maxLen {
		switch r.Intn(4) {
		case 0:
			data = append(data, byte(r.Intn(256)))
		case 1:
			data = append(data, byte('a'+r.Intn(26)))
		default:
			data = utf8.AppendRune(data, randRune(r))
		}
	}
	return data[:maxLen]
}

func randRune(r *rand.Rand) rune {
	switch r.Intn(3) {
	case 0:
		return rune(0x80 + r.Intn(0x800-0x80))
	case 1:
		return rune(0x800 + r.Intn(0xd800-0x800))
	default:
		return rune(0x10000 + r.Intn(utf8.MaxRune-0x10000))
	}
}

type Writer struct {
	testing.TB
}

func (w *Writer) Write(data []byte) (int, error) {
	w.TB.Logf("%s", data)
	return len(data), nil
}
