// Package mtpool contains the fixed-size worker pool
// that parallelizes tree construction.
//
// The pool has no notion of tree levels.
// A caller hands [*Pool.Run] a count of independent slots
// and a function that fills a contiguous range of them;
// Run splits the slots into disjoint ranges, one per worker,
// and returns only after every range has been filled.
// That return is the barrier between two levels of a tree.
package mtpool

import (
	"fmt"
	"log/slog"
	"sync"
)

// Pool is a fixed set of long-lived worker goroutines.
//
// Create a Pool with [New] and release its goroutines with [*Pool.Stop].
// Run must not be called concurrently from multiple goroutines.
type Pool struct {
	log *slog.Logger

	jobs chan job

	nWorkers int

	// Tracks the worker goroutines, not individual jobs.
	wg sync.WaitGroup
}

// Range is a half-open interval [Start, End) of slot indices.
type Range struct {
	Start, End int
}

type job struct {
	r  Range
	fn func(start, end int)

	// Slot that this job alone writes, if fn panics.
	panicVal *any

	done *sync.WaitGroup
}

// New starts nWorkers goroutines and returns the Pool that owns them.
func New(log *slog.Logger, nWorkers int) *Pool {
	if nWorkers <= 0 {
		panic(fmt.Errorf(
			"BUG: nWorkers must be positive (got %d)", nWorkers,
		))
	}

	p := &Pool{
		log: log,

		// Run never has more outstanding jobs than workers.
		jobs: make(chan job, nWorkers),

		nWorkers: nWorkers,
	}

	p.wg.Add(nWorkers)
	for i := range nWorkers {
		go p.runWorker(i)
	}

	return p
}

// Workers reports the number of goroutines in the pool.
func (p *Pool) Workers() int {
	return p.nWorkers
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()

	for j := range p.jobs {
		j.run()
	}

	p.log.Debug("Worker stopping due to pool stop", "worker", id)
}

func (j job) run() {
	defer j.done.Done()
	defer func() {
		if r := recover(); r != nil {
			*j.panicVal = r
		}
	}()

	j.fn(j.r.Start, j.r.End)
}

// Run calls fn over disjoint ranges that exactly cover [0, n),
// using at most one range per worker,
// and blocks until every call has returned.
//
// fn must only write to state belonging to the slots in its range.
// Writes made by fn happen before Run returns.
//
// If any call to fn panics, Run panics with the same value
// on the calling goroutine, after all other ranges have finished.
func (p *Pool) Run(n int, fn func(start, end int)) {
	if n < 0 {
		panic(fmt.Errorf("BUG: n must be non-negative (got %d)", n))
	}
	if n == 0 {
		return
	}

	ranges := Ranges(n, p.nWorkers)
	if len(ranges) == 1 {
		// Not worth the handoff.
		fn(0, n)
		return
	}

	panics := make([]any, len(ranges))

	var done sync.WaitGroup
	done.Add(len(ranges))
	for i, r := range ranges {
		p.jobs <- job{
			r:        r,
			fn:       fn,
			panicVal: &panics[i],
			done:     &done,
		}
	}
	done.Wait()

	for _, pv := range panics {
		if pv != nil {
			panic(pv)
		}
	}
}

// Stop stops all the worker goroutines and waits for them to return.
// The Pool must not be used after calling Stop.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
}

// Ranges splits [0, n) into min(n, parts) contiguous ranges
// whose sizes differ by at most one.
// Larger ranges come first.
func Ranges(n, parts int) []Range {
	if parts <= 0 {
		panic(fmt.Errorf("BUG: parts must be positive (got %d)", parts))
	}
	if n <= 0 {
		return nil
	}

	parts = min(parts, n)
	base := n / parts
	rem := n % parts

	out := make([]Range, parts)
	start := 0
	for i := range out {
		sz := base
		if i < rem {
			sz++
		}
		out[i] = Range{Start: start, End: start + sz}
		start += sz
	}

	return out
}
