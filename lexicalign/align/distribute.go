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
	"context"
	"fmt"
	"hash/fnv"
	"os"

	"github.com/pkg/errors"
	"github.com/shenwei356/LexicAlign/lexicalign/kdb"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// Shard is a range of queries [From, From+Size) assigned to a rank.
type Shard struct {
	Rank   int
	From   int
	Size   int
	Weight int64
}

func (s Shard) String() string {
	return fmt.Sprintf("rank %d: [%d, %d), weight: %d", s.Rank, s.From, s.From+s.Size, s.Weight)
}

// CandidateWeights returns the weights of queries for splitting work,
// i.e., sizes of candidate entries.
func CandidateWeights(pdb *kdb.Reader) []int64 {
	weights := make([]int64, pdb.Size())
	for i := range weights {
		weights[i] = int64(pdb.Len(i))
	}
	return weights
}

// DecomposeByWeight splits [0, len(weights)) into n contiguous shards
// with balanced cumulative weights. All n shards are returned, some of
// them might be empty.
func DecomposeByWeight(weights []int64, n int) []Shard {
	if n < 1 {
		n = 1
	}
	var total int64
	for _, w := range weights {
		total += w
	}
	unit := total == 0 // all empty, split by counts
	if unit {
		total = int64(len(weights))
	}
	weight := func(i int) int64 {
		if unit {
			return 1
		}
		return weights[i]
	}

	shards := make([]Shard, n)
	var id int
	var acc, goal int64
	for r := 0; r < n; r++ {
		shards[r].Rank = r
		shards[r].From = id
		if r == n-1 {
			goal = total
		} else {
			goal = total * int64(r+1) / int64(n)
		}

		for id < len(weights) && acc < goal {
			acc += weight(id)
			id++
		}
		// step back if it's closer to the goal
		if r < n-1 && id > shards[r].From && acc-goal > goal-(acc-weight(id-1)) {
			id--
			acc -= weight(id)
		}
		if r == n-1 {
			id = len(weights)
		}

		shards[r].Size = id - shards[r].From
		for i := shards[r].From; i < id; i++ {
			shards[r].Weight += weights[i]
		}
	}
	return shards
}

// ShardBalance returns the mean and standard deviation of shard weights.
func ShardBalance(shards []Shard) (float64, float64) {
	if len(shards) == 0 {
		return 0, 0
	}
	ws := make([]float64, len(shards))
	for i, s := range shards {
		ws[i] = float64(s.Weight)
	}
	if len(ws) == 1 {
		return ws[0], 0
	}
	return stat.MeanStdDev(ws, nil)
}

// TmpOutput returns the temporary output database of a rank.
func TmpOutput(out string, rank int) string {
	return fmt.Sprintf("%s.%d", out, rank)
}

// RunRank processes the shard of a rank into a temporary database and
// marks the rank as finished. Rank 0 then waits for all ranks, and merges
// the temporary databases in rank order into the output database.
func (a *Aligner) RunRank(ctx context.Context, out string, rank, ranks int) (*Stats, error) {
	if ranks < 1 || rank < 0 || rank >= ranks {
		return nil, errors.Errorf("align: invalid rank %d of %d", rank, ranks)
	}
	shards := DecomposeByWeight(CandidateWeights(a.pdb), ranks)
	shard := shards[rank]
	if a.opt.Verbose {
		log.Infof("compute split %s", shard)
	}

	barrier := NewFileBarrier(out, ranks)
	barrier.RunID = a.RunID()
	if err := barrier.Leave(rank); err != nil {
		return nil, err
	}

	stats, err := a.Run(TmpOutput(out, rank), shard.From, shard.Size)
	if err != nil {
		return nil, err
	}

	if err = barrier.Arrive(rank); err != nil {
		return nil, err
	}
	if rank != 0 {
		return stats, nil
	}

	if stale := barrier.Stale(); len(stale) > 0 && a.opt.Verbose {
		log.Warningf("ignored markers of other runs for ranks: %v", stale)
	}
	if err = barrier.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "align: waiting for other ranks")
	}
	if err = mergeParts(out, ranks); err != nil {
		return nil, err
	}
	return stats, barrier.Clean()
}

// RunID identifies a run by its input databases and options, and
// Options.RunID if given. All ranks of a run share the same id.
func (a *Aligner) RunID() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\n", a.opt.RunID)
	for _, db := range []*kdb.Reader{a.qdb, a.tdb, a.pdb} {
		fmt.Fprintf(h, "%s\t%d\t%d", db.Info.Type, db.Info.Entries, db.Info.DataSize)
		if fi, err := os.Stat(kdb.InfoFile(db.File())); err == nil {
			fmt.Fprintf(h, "\t%d", fi.ModTime().UnixNano())
		}
		fmt.Fprintln(h)
	}

	o := a.opt
	var matrix string
	if o.Matrix != nil {
		matrix = o.Matrix.Name
	}
	fmt.Fprintf(h, "%d %+v %t %t %t %d %d %d %s %d %d %g\n",
		o.Mode, o.Thresholds, o.IncludeIdentity, o.AddBacktrace, o.Realign, o.AltAlignments,
		o.MaxAccept, o.MaxRejected, matrix, o.GapOpen, o.GapExtend, o.ScoreBias)
	return fmt.Sprintf("%016x", h.Sum64())
}

// RunAllLocal runs all ranks in this process, and returns summed counters.
func (a *Aligner) RunAllLocal(ctx context.Context, out string, ranks int) (*Stats, error) {
	if ranks < 1 {
		ranks = 1
	}
	stats := make([]*Stats, ranks)
	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < ranks; r++ {
		r := r
		g.Go(func() error {
			s, err := a.RunRank(gctx, out, r, ranks)
			stats[r] = s
			return err
		})
	}
	if err := g.Wait(); err != nil {
		barrier := NewFileBarrier(out, ranks)
		barrier.RunID = a.RunID()
		barrier.Clean()
		return nil, err
	}

	total := &Stats{}
	for _, s := range stats {
		total.Add(s)
	}
	return total, nil
}

func mergeParts(out string, ranks int) error {
	parts := make([]string, ranks)
	for r := range parts {
		parts[r] = TmpOutput(out, r)
	}
	if err := kdb.Merge(out, kdb.AlignmentRes, parts); err != nil {
		return err
	}
	for _, part := range parts {
		if err := kdb.Remove(part); err != nil {
			return err
		}
	}
	return nil
}
