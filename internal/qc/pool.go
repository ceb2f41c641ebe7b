package qc

import (
	"context"
	"sync"
)

// DefaultWorkers bounds the QC worker pool when Config.Workers is zero.
const DefaultWorkers = 4

// Outcome pairs one source path with its report or check error.
type Outcome struct {
	Source string
	Report *Report
	Err    error
}

// Pool fans QC checks out over a bounded worker pool. Document checks
// share no mutable state, so the only coordination is the results slice,
// guarded by a mutex.
type Pool struct {
	gate    *Gate
	workers int
}

// NewPool creates a Pool over the given gate.
func NewPool(gate *Gate) *Pool {
	workers := gate.cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pool{gate: gate, workers: workers}
}

// CheckAll runs the gate on every source path, at most workers at a time.
// Results preserve input order. A cancelled context stops dispatching new
// work; in-flight checks run to completion.
func (p *Pool) CheckAll(ctx context.Context, sources []string) []Outcome {
	outcomes := make([]Outcome, len(sources))
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	for i, src := range sources {
		if ctx.Err() != nil {
			outcomes[i] = Outcome{Source: src, Err: ctx.Err()}
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, src string) {
			defer wg.Done()
			defer func() { <-sem }()
			report, err := p.gate.Check(ctx, src)
			outcomes[i] = Outcome{Source: src, Report: report, Err: err}
		}(i, src)
	}
	wg.Wait()
	return outcomes
}
