// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package hash computes content signatures used to identify test cases.
package hash

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

type Sig [sha1.Size]byte

func Hash(pieces ...[]byte) Sig {
	h := sha1.New()
	for _, data := range pieces {
		h.Write(data)
	}
	var sig Sig
	copy(sig[:], h.Sum(nil))
	return sig
}

func String(pieces ...[]byte) string {
	sig := Hash(pieces...)
	return sig.String()
}

func (sig Sig) String() string {
	return hex.EncodeToString(sig[:])
}

// Short returns an abbreviated signature suitable for log messages.
func (sig Sig) Short() string {
	return sig.String()[:12]
}

func FromString(str string) (Sig, error) {
	var sig Sig
	bin, err := hex.DecodeString(str)
	if err != nil {
		return sig, fmt.Errorf("failed to decode sig '%v': %w", str, err)
	}
	if len(bin) != len(sig) {
		return sig, fmt.Errorf("failed to decode sig '%v': bad len", str)
	}
	copy(sig[:], bin)
	return sig, nil
}
