// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// textranges runs text range identification over a corpus and prints the result.
// Usage:
//
//	textranges -corpus corpus.db
//	textranges -dir inputs/ -workers 8
//	textranges -config textranges.cfg -metrics metrics.txt
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/textfuzz/textfuzz/pkg/config"
	"github.com/textfuzz/textfuzz/pkg/corpus"
	"github.com/textfuzz/textfuzz/pkg/log"
	"github.com/textfuzz/textfuzz/pkg/osutil"
	"github.com/textfuzz/textfuzz/pkg/stage"
	"github.com/textfuzz/textfuzz/pkg/stat"
	"github.com/textfuzz/textfuzz/pkg/textrange"
	"github.com/textfuzz/textfuzz/pkg/tool"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	// Corpus database file (corpus.db format).
	Corpus string `json:"corpus,omitempty"`
	// Directory with one input per file, .xz files are decompressed.
	Dir     string `json:"dir,omitempty"`
	Workers int    `json:"workers,omitempty"`
	// File to write Prometheus metrics to (text exposition format) after the run.
	Metrics string `json:"metrics,omitempty"`
	// Verbosity overrides the -vv flag if set.
	Verbosity int `json:"verbosity,omitempty"`
}

func main() {
	var (
		flagConfig  = flag.String("config", "", "config file (flags below override it)")
		flagCorpus  = flag.String("corpus", "", "corpus database file")
		flagDir     = flag.String("dir", "", "directory with inputs")
		flagWorkers = flag.Int("workers", 0, "number of parallel workers")
		flagMetrics = flag.String("metrics", "", "write Prometheus metrics to this file after the run")
	)
	tool.Init("textranges prints UTF-8 text ranges found in every corpus input.")
	log.EnableLogCaching(1000, 1<<20)
	cfg := &Config{Workers: 1}
	if *flagConfig != "" {
		if err := config.LoadFile(*flagConfig, cfg); err != nil {
			tool.Fail(err)
		}
		if cfg.Verbosity != 0 {
			log.SetVerbosity(cfg.Verbosity)
		}
	}
	if *flagCorpus != "" {
		cfg.Corpus = *flagCorpus
	}
	if *flagDir != "" {
		cfg.Dir = *flagDir
	}
	if *flagWorkers != 0 {
		cfg.Workers = *flagWorkers
	}
	if *flagMetrics != "" {
		cfg.Metrics = *flagMetrics
	}
	c, err := loadCorpus(cfg)
	if err != nil {
		tool.Fail(err)
	}
	if err := run(context.Background(), c, cfg.Workers, os.Stdout); err != nil {
		tool.Fail(err)
	}
	for _, s := range stat.Collect(stat.Console) {
		log.Logf(0, "%v: %v", s.Name, s.Value)
	}
	log.Logf(0, "corpus: %+v", c.Stats())
	if cfg.Metrics != "" {
		if err := saveMetrics(cfg.Metrics, prometheus.DefaultGatherer); err != nil {
			tool.Fail(err)
		}
	}
}

func loadCorpus(cfg *Config) (*corpus.Corpus, error) {
	switch {
	case cfg.Corpus != "" && cfg.Dir != "":
		return nil, fmt.Errorf("both corpus and dir are specified")
	case cfg.Corpus != "":
		return corpus.LoadDB(cfg.Corpus)
	case cfg.Dir != "":
		return corpus.LoadDir(cfg.Dir)
	}
	return nil, fmt.Errorf("specify either corpus or dir")
}

// run analyzes all corpus items with the given number of workers.
// Every worker has its own pipeline state and handles a disjoint subset of items.
func run(ctx context.Context, c *corpus.Corpus, workers int, out io.Writer) error {
	if workers < 1 {
		return fmt.Errorf("bad number of workers %v", workers)
	}
	items := c.Items()
	pipeline := stage.NewPipeline(textrange.NewIdentificationStage())
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		logger := log.NewLogger(fmt.Sprintf("worker %v", w))
		g.Go(func() error {
			state := stage.NewWorkerState(c)
			for i := w; i < len(items); i += workers {
				state.Select(items[i])
				if err := pipeline.Run(ctx, state); err != nil {
					return err
				}
				logger.Logf(1, "analyzed %v", items[i].ID)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if recent := log.CachedLogOutput(); recent != "" {
			return fmt.Errorf("%w\n\nrecent log output:\n%s", err, recent)
		}
		return err
	}
	for _, tc := range items {
		meta, _ := textrange.Get(tc)
		fmt.Fprintf(out, "%v %v\n", tc.ID, meta)
	}
	return nil
}

func saveMetrics(file string, g prometheus.Gatherer) error {
	buf := new(bytes.Buffer)
	if err := writeMetrics(buf, g); err != nil {
		return err
	}
	return osutil.WriteFile(file, buf.Bytes())
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
