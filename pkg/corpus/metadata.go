// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"reflect"
	"sort"
	"sync"
)

// Metadata is a per-test-case store of analysis results keyed by Go type.
// At most one value of every type is stored. Values are expected to be
// immutable once added, so they are handed out without copying.
type Metadata struct {
	mu   sync.RWMutex
	vals map[reflect.Type]any
}

func HasMeta[T any](m *Metadata) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.vals[reflect.TypeOf((*T)(nil)).Elem()]
	return ok
}

func GetMeta[T any](m *Metadata) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vals[reflect.TypeOf((*T)(nil)).Elem()]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// AddMeta stores val, replacing a previous value of the same type.
// Values of other types are not affected.
func AddMeta[T any](m *Metadata, val T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vals == nil {
		m.vals = make(map[reflect.Type]any)
	}
	m.vals[reflect.TypeOf((*T)(nil)).Elem()] = val
}

func (m *Metadata) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vals)
}

// Kinds returns names of the stored metadata types, sorted.
func (m *Metadata) Kinds() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []string
	for typ := range m.vals {
		res = append(res, typ.String())
	}
	sort.Strings(res)
	return res
}
