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
	"github.com/rdleal/intervalst/interval"
)

func cmpInt(x, y int) int { return x - y }

// alternativeAlignments searches more alignments of each original
// non-identity result. Aligned regions of the target are masked with the
// wildcard residue in a copy of the target sequence, and searching stops
// at the first rejected alignment, or one overlapping masked regions.
// New results are appended to the list.
func (w *Worker) alternativeAlignments(results []Result, evalThr float64, mode StatsMode) ([]Result, error) {
	a := w.a
	th := a.th
	th.MaxEvalue = evalThr
	wildcard := a.sc.Wildcard()

	n := len(results)
	var tree *interval.SearchTree[int, int]
	var r, r2 Result
	var overlap bool
	for i := 0; i < n; i++ {
		r = results[i]
		if a.isIdentity(w.query.Key, r.TargetKey) || r.Reverse || r.TEnd <= r.TStart || r.TStart < 0 {
			continue
		}
		if err := w.setTarget(r.TargetKey); err != nil {
			return nil, err
		}

		// the mask never touches the data of the database
		w.mask = append(w.mask[:0], w.target.Seq...)
		w.target.Seq = w.mask

		tree = interval.NewSearchTree[int, int](cmpInt)
		maskRegion(w.mask, r.TStart, r.TEnd, wildcard)
		tree.Insert(r.TStart, r.TEnd-1, i)

		for k := 0; k < a.opt.AltAlignments; k++ {
			r2 = w.engine.Align(&w.target, DiagonalUnknown, false, th.CovMode, th.MinCov, evalThr, mode, false)
			if !Accept(&r2, false, &th) {
				break
			}
			if r2.TStart < 0 || r2.TEnd <= r2.TStart {
				break
			}
			if _, overlap = tree.AnyIntersection(r2.TStart, r2.TEnd-1); overlap {
				break
			}

			r2.Rank = len(results)
			results = append(results, r2)

			maskRegion(w.mask, r2.TStart, r2.TEnd, wildcard)
			tree.Insert(r2.TStart, r2.TEnd-1, len(results)-1)
		}
	}
	return results, nil
}

// maskRegion replaces residues in [start, end) with the wildcard.
func maskRegion(s []byte, start, end int, wildcard byte) {
	if start < 0 {
		start = 0
	}
	if end > len(s) {
		end = len(s)
	}
	for i := start; i < end; i++ {
		s[i] = wildcard
	}
}
