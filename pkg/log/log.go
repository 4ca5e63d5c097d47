// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package log provides functionality similar to standard log package with some extensions:
//   - verbosity levels controlled by a single global -vv flag
//   - per-worker loggers that prefix every line with the worker name
//   - ability to cache recent important output in memory
package log

import (
	"flag"
	"fmt"
	golog "log"
	"strings"
	"sync"
	"time"
)

var (
	flagV       = flag.Int("vv", 0, "verbosity")
	mu          sync.Mutex
	cache       *ringCache
	prependTime = true // for testing
)

// SetVerbosity overrides the -vv flag value.
// Intended for tools that configure verbosity from a config file.
func SetVerbosity(v int) {
	mu.Lock()
	defer mu.Unlock()
	*flagV = v
}

func V(v int) bool {
	mu.Lock()
	defer mu.Unlock()
	return v <= *flagV
}

// EnableLogCaching enables in memory caching of log output.
// Caches up to maxLines, but no more than maxMem bytes.
// Only messages with verbosity <= 1 are cached.
func EnableLogCaching(maxLines, maxMem int) {
	mu.Lock()
	defer mu.Unlock()
	if cache != nil {
		Fatalf("log caching is already enabled")
	}
	if maxLines < 1 || maxMem < 1 {
		panic("invalid maxLines/maxMem")
	}
	cache = &ringCache{
		maxMem:  maxMem,
		entries: make([]string, maxLines),
	}
}

// CachedLogOutput returns cached log lines, oldest first.
func CachedLogOutput() string {
	mu.Lock()
	defer mu.Unlock()
	if cache == nil {
		return ""
	}
	return cache.String()
}

func Logf(v int, msg string, args ...any) {
	logf(v, "", msg, args...)
}

func logf(v int, prefix, msg string, args ...any) {
	line := prefix + fmt.Sprintf(msg, args...)
	mu.Lock()
	doLog := v <= *flagV
	if cache != nil && v <= 1 {
		timeStr := ""
		if prependTime {
			timeStr = time.Now().Format("2006/01/02 15:04:05 ")
		}
		cache.add(timeStr + line)
	}
	mu.Unlock()

	if doLog {
		golog.Print(line)
	}
}

func Fatalf(msg string, args ...any) {
	golog.Fatalf(msg, args...)
}

// Logger prefixes all messages with a fixed name, e.g. "worker 3: ".
// The zero Logger logs without a prefix.
type Logger struct {
	prefix string
}

func NewLogger(name string) *Logger {
	return &Logger{prefix: name + ": "}
}

func (l *Logger) Logf(v int, msg string, args ...any) {
	logf(v, l.prefix, msg, args...)
}

type ringCache struct {
	mem     int
	maxMem  int
	pos     int
	entries []string
}

func (c *ringCache) add(line string) {
	c.mem -= len(c.entries[c.pos])
	c.entries[c.pos] = line
	c.mem += len(line)
	c.pos = (c.pos + 1) % len(c.entries)
	// Evict oldest entries, but always keep the one just added.
	for i := 0; i < len(c.entries)-1 && c.mem > c.maxMem; i++ {
		pos := (c.pos + i) % len(c.entries)
		c.mem -= len(c.entries[pos])
		c.entries[pos] = ""
	}
	if c.mem < 0 {
		panic("log cache size underflow")
	}
}

func (c *ringCache) String() string {
	buf := new(strings.Builder)
	for i := range c.entries {
		entry := c.entries[(c.pos+i)%len(c.entries)]
		if entry == "" {
			continue
		}
		buf.WriteString(entry)
		buf.WriteByte('\n')
	}
	return buf.String()
}
