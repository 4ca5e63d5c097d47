// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stat

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/VividCortex/gohistogram"
	"github.com/prometheus/client_golang/prometheus"
)

// This file provides prometheus/streamz style metrics (Val type) for instrumenting code for monitoring.
// It also provides a registry for such metrics (set type) and a global default registry.
//
// Simple uses of metrics:
//
//	statFoo := stat.New("metric name", "metric description")
//	statFoo.Add(1)
//
//	stat.New("metric name", "metric description", func() int { return len(items) })
//
// Tools use Collect to print values of all registered metrics.

type UI struct {
	Name  string
	Desc  string
	Level Level
	Value string
	V     int
}

func New(name, desc string, opts ...any) *Val {
	return global.New(name, desc, opts...)
}

func Collect(level Level) []UI {
	return global.Collect(level)
}

var global = newSet(prometheus.DefaultRegisterer)

type set struct {
	mu        sync.Mutex
	vals      map[string]*Val
	reg       prometheus.Registerer
	nextOrder atomic.Uint64
}

const histogramBuckets = 255

func newSet(reg prometheus.Registerer) *set {
	return &set{
		vals: make(map[string]*Val),
		reg:  reg,
	}
}

func (s *set) Collect(level Level) []UI {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []UI
	for _, v := range s.vals {
		if v.level < level {
			continue
		}
		val := v.Val()
		res = append(res, UI{
			Name:  v.name,
			Desc:  v.desc,
			Level: v.level,
			Value: v.format(val),
			V:     val,
		})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Level != res[j].Level {
			return res[i].Level > res[j].Level
		}
		return res[i].Name < res[j].Name
	})
	return res
}

// Additional options for Val metrics.

// Level controls if the metric should be printed to console in periodic heartbeat logs,
// or only reported in the full dump.
type Level int

const (
	All Level = iota
	Console
)

// Prometheus exports the metric to Prometheus under the given name.
type Prometheus string

// Distribution says to collect histogram of individual samples.
// Val then returns the mean, and the formatted value includes percentiles.
type Distribution struct{}

// Addittionally a custom 'func() int' can be passed to read the metric value from the function.

func (s *set) New(name, desc string, opts ...any) *Val {
	v := &Val{
		name:  name,
		desc:  desc,
		order: s.nextOrder.Add(1),
	}
	var promName string
	for _, o := range opts {
		switch opt := o.(type) {
		case Level:
			v.level = opt
		case Distribution:
			v.hist = true
		case func() int:
			v.ext = opt
		case Prometheus:
			promName = string(opt)
		default:
			panic(fmt.Sprintf("unknown stats option %#v", o))
		}
	}
	if promName != "" && s.reg != nil {
		// Prometheus Instrumentation https://prometheus.io/docs/guides/go-application.
		// Registration errors (duplicate names in tests) are not fatal.
		s.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: promName,
			Help: desc,
		},
			func() float64 { return float64(v.Val()) },
		))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[name] = v
	return v
}

type Val struct {
	name    string
	desc    string
	level   Level
	order   uint64
	val     atomic.Uint64
	ext     func() int
	hist    bool
	histMu  sync.Mutex
	histVal *gohistogram.NumericHistogram
}

func (v *Val) Add(val int) {
	if v.ext != nil {
		panic(fmt.Sprintf("stat %v is in external mode", v.name))
	}
	if v.hist {
		v.histMu.Lock()
		if v.histVal == nil {
			v.histVal = gohistogram.NewHistogram(histogramBuckets)
		}
		v.histVal.Add(float64(val))
		v.histMu.Unlock()
		return
	}
	v.val.Add(uint64(val))
}

func (v *Val) Val() int {
	if v.ext != nil {
		return v.ext()
	}
	if v.hist {
		v.histMu.Lock()
		defer v.histMu.Unlock()
		if v.histVal == nil {
			return 0
		}
		return int(v.histVal.Mean())
	}
	return int(v.val.Load())
}

// Quantile returns the q-th quantile of a distribution metric, or 0 if there are no samples.
func (v *Val) Quantile(q float64) float64 {
	if !v.hist {
		panic(fmt.Sprintf("stat %v is not a distribution", v.name))
	}
	v.histMu.Lock()
	defer v.histMu.Unlock()
	if v.histVal == nil {
		return 0
	}
	return v.histVal.Quantile(q)
}

func (v *Val) format(val int) string {
	if !v.hist {
		return strconv.Itoa(val)
	}
	return fmt.Sprintf("%v (p50=%.0f p90=%.0f)", val, v.Quantile(0.5), v.Quantile(0.9))
}
