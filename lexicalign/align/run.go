// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package align

import (
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/shenwei356/LexicAlign/lexicalign/kdb"
)

// BatchSize is the number of queries a goroutine takes each time.
var BatchSize = 5

// Stats are the counters of a run.
type Stats struct {
	Alignments int // alignments calculated
	Passed     int // alignments passed the thresholds
	Queries    int
}

// Add adds counters of another run.
func (s *Stats) Add(s2 *Stats) {
	s.Alignments += s2.Alignments
	s.Passed += s2.Passed
	s.Queries += s2.Queries
}

// PassedFraction returns the fraction of passed alignments.
func (s *Stats) PassedFraction() float64 {
	if s.Alignments == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Alignments)
}

// HitsPerQuery returns the average number of passed alignments per query.
func (s *Stats) HitsPerQuery() float64 {
	if s.Queries == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Queries)
}

// Run aligns queries [from, from+size) of the prefilter database and
// writes results to a new alignment database.
//
// All queries are processed in one chunk if the memory limit
// (Options.MaxMemory, or the physical memory) is larger than the
// prefilter data, otherwise in chunks of ChunkSize queries. After each
// chunk, all goroutines are joined and pages of the chunk are released.
func (a *Aligner) Run(out string, from, size int) (*Stats, error) {
	if from < 0 || from+size > a.pdb.Size() {
		return nil, errors.Errorf("align: query range [%d, %d) out of the prefilter database of %d entries",
			from, from+size, a.pdb.Size())
	}

	threads := a.opt.Threads
	if threads < 1 {
		threads = 1
	}
	if n := a.qdb.Size(); n > 0 && n < threads {
		threads = n
	}

	chunkSize := a.opt.ChunkSize
	if chunkSize <= 0 {
		chunkSize = size
	}
	mem := a.opt.MaxMemory
	if mem == 0 {
		mem = TotalMemory()
	}
	if mem > uint64(a.pdb.DataSize()) {
		chunkSize = size
	}
	if chunkSize <= 0 {
		chunkSize = 1
	}

	if a.opt.Verbose {
		log.Infof("aligning queries [%d, %d) with %d threads, %s candidate data, chunk size: %s",
			from, from+size, threads, humanize.Bytes(uint64(a.pdb.DataSize())), humanize.Comma(int64(chunkSize)))
	}

	w, err := kdb.NewWriter(out, kdb.AlignmentRes, threads)
	if err != nil {
		return nil, err
	}

	workers := make([]*Worker, threads)
	for i := range workers {
		workers[i] = a.NewWorker(i)
	}

	var firstErr error
	var errOnce sync.Once
	var failed atomic.Bool
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			failed.Store(true)
		})
	}

	var wg sync.WaitGroup
	for start := from; start < from+size && !failed.Load(); start += chunkSize {
		end := start + chunkSize
		if end > from+size {
			end = from + size
		}

		var next atomic.Int64
		next.Store(int64(start))
		for _, worker := range workers {
			wg.Add(1)
			go func(worker *Worker) {
				defer wg.Done()
				var b, e, n int
				var data []byte
				var err error
				for !failed.Load() {
					b = int(next.Add(int64(BatchSize))) - BatchSize
					if b >= end {
						return
					}
					e = b + BatchSize
					if e > end {
						e = end
					}
					for id := b; id < e; id++ {
						data, err = worker.AlignQuery(id)
						if err != nil {
							fail(err)
							return
						}
						if err = w.WriteData(data, a.pdb.Key(id), worker.slot); err != nil {
							fail(err)
							return
						}
					}
					n = e - b
					if a.opt.Progress != nil {
						a.opt.Progress(n)
					}
				}
			}(worker)
		}
		wg.Wait() // all goroutines are done with the chunk

		if err = a.pdb.Release(start, end); err != nil && a.opt.Verbose {
			log.Warningf("failed to release memory of queries [%d, %d): %s", start, end, err)
		}
	}

	if err = w.Close(); err != nil {
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		kdb.Remove(out)
		return nil, firstErr
	}

	stats := &Stats{Queries: size}
	for _, worker := range workers {
		stats.Alignments += worker.Alignments
		stats.Passed += worker.Passed
	}
	return stats, nil
}
