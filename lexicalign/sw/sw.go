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

// Package sw implements Smith-Waterman-Gotoh local alignment with
// affine gap costs, optional banding around a diagonal, and e-value
// computation with Karlin-Altschul statistics.
package sw

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// DefaultBand is the default half width of the band around a diagonal.
var DefaultBand = 64

// DiagonalUnknown means no diagonal hint, the whole matrix is computed.
const DiagonalUnknown = math.MaxInt32

const negInf = math.MinInt32 / 2

// Pointer bits of a cell.
//
//	bits 0-1: where H comes from, see the Pointer constants.
//	bit  2:   E is extended from the left cell.
//	bit  3:   F is extended from the top cell.
type Pointer uint8

const (
	None  Pointer = iota // local alignment starts here
	Diag                 // match or mismatch
	Left                 // E, gap in the query, consumes the target
	Top                  // F, gap in the target, consumes the query
)

const (
	maskH    Pointer = 3
	extLeft  Pointer = 4
	extTop   Pointer = 8
	stateH           = 0
	stateE           = 1
	stateF           = 2
	opMatch          = 'M'
	opInsert         = 'I'
	opDelete         = 'D'
)

func (p Pointer) String() string {
	switch p & maskH {
	case Diag:
		return "↘︎"
	case Top:
		return "↓"
	case Left:
		return "→"
	}
	return "×"
}

// Aligner performs local alignments of one query against many targets.
// It is not safe for concurrent use, use one Aligner per goroutine.
type Aligner struct {
	Matrix    *Matrix
	GapOpen   int // positive cost of opening a gap
	GapExtend int // positive cost of each gap position

	query  []byte
	qcodes []uint8

	// reusable variables
	tcodes   []uint8
	h        []int
	f        []int
	pointers []Pointer
	ops      []byte
	buf      bytes.Buffer
}

// AlignResult holds the details of a local alignment.
// Positions are 0-based, ends are exclusive.
type AlignResult struct {
	Score int

	QBegin, QEnd int
	TBegin, TEnd int

	Matches int // identical residues
	AlnLen  int // number of alignment columns
	CIGAR   string
}

func (r AlignResult) String() string {
	return fmt.Sprintf("score: %d, query: [%d, %d), target: [%d, %d), matches: %d, columns: %d, cigar: %s",
		r.Score, r.QBegin, r.QEnd, r.TBegin, r.TEnd, r.Matches, r.AlnLen, r.CIGAR)
}

// NewAligner returns an aligner. Gap costs follow the BLAST convention:
// a gap of length L costs gapOpen + L*gapExtend.
func NewAligner(m *Matrix, gapOpen, gapExtend int) *Aligner {
	return &Aligner{
		Matrix:    m,
		GapOpen:   gapOpen,
		GapExtend: gapExtend,
		h:         make([]int, 0, 1024),
		f:         make([]int, 0, 1024),
		pointers:  make([]Pointer, 0, 1<<20),
		ops:       make([]byte, 0, 1024),
	}
}

// SetQuery sets the query sequence.
func (alg *Aligner) SetQuery(q []byte) {
	alg.query = q
	alg.qcodes = alg.Matrix.Encode(q, alg.qcodes)
}

// Query returns the current query.
func (alg *Aligner) Query() []byte { return alg.query }

// Local aligns the query to a target with local alignment.
//
// The diagonal is the query position minus the target position of a
// seed hit. If band > 0 and the diagonal is not DiagonalUnknown, only
// cells within band positions of the diagonal are computed.
//
// Without traceback, only the score and the end positions are computed,
// begin positions are -1.
func (alg *Aligner) Local(t []byte, diagonal int, band int, traceback bool) AlignResult {
	n := len(alg.qcodes)
	m := len(t)
	r := AlignResult{QBegin: -1, TBegin: -1}
	if n == 0 || m == 0 {
		r.QBegin, r.TBegin = 0, 0
		return r
	}

	alg.tcodes = alg.Matrix.Encode(t, alg.tcodes)
	qcodes, tcodes := alg.qcodes, alg.tcodes
	scores := alg.Matrix.Scores

	banded := band > 0 && diagonal != DiagonalUnknown
	w := m // width of a row of the pointer matrix
	if banded {
		w = 2*band + 1
	}

	// ---------------------------------------------------
	// initialize

	h := resizeInts(alg.h, m+1)
	f := resizeInts(alg.f, m+1)
	for j := range h {
		h[j] = 0
		f[j] = negInf
	}
	alg.h, alg.f = h, f

	var pointers []Pointer
	if traceback {
		pointers = alg.pointers[:0]
		if cap(pointers) < n*w {
			pointers = make([]Pointer, n*w)
		} else {
			pointers = pointers[:n*w]
		}
		alg.pointers = pointers
	}

	oe := alg.GapOpen + alg.GapExtend
	ext := alg.GapExtend

	// ---------------------------------------------------
	// compute

	var i, j, lo, hi, base int
	var e, hLeft, hUp, hDiag, s, v int
	var p Pointer
	var row []Pointer
	var bestI, bestJ int
	for i = 1; i <= n; i++ {
		if banded {
			base = i - diagonal - band
			lo, hi = base, base+w-1
			if lo < 1 {
				lo = 1
			}
			if hi > m {
				hi = m
			}
			if lo > hi {
				continue
			}
		} else {
			base, lo, hi = 1, 1, m
		}
		if traceback {
			row = pointers[(i-1)*w : i*w]
		}

		srow := scores[qcodes[i-1]]
		hDiag = h[lo-1]
		hLeft = negInf
		e = negInf
		for j = lo; j <= hi; j++ {
			hUp = h[j]
			p = None

			// E, horizontal gaps
			if e-ext > hLeft-oe {
				e -= ext
				p |= extLeft
			} else {
				e = hLeft - oe
			}

			// F, vertical gaps
			if f[j]-ext > hUp-oe {
				f[j] -= ext
				p |= extTop
			} else {
				f[j] = hUp - oe
			}

			s = srow[tcodes[j-1]]
			v = hDiag + s
			if v > 0 {
				p |= Diag
			} else {
				v = 0
			}
			if e > v {
				v = e
				p = p&^maskH | Left
			}
			if f[j] > v {
				v = f[j]
				p = p&^maskH | Top
			}

			if v > r.Score {
				r.Score = v
				bestI, bestJ = i, j
			}

			if traceback {
				row[j-base] = p
			}
			hDiag = hUp
			h[j] = v
			hLeft = v
		}
	}

	if r.Score == 0 {
		r.QBegin, r.TBegin = 0, 0
		return r
	}
	r.QEnd, r.TEnd = bestI, bestJ

	if !traceback {
		return r
	}

	// ---------------------------------------------------
	// traceback

	ops := alg.ops[:0]
	i, j = bestI, bestJ
	state := stateH
	for i > 0 && j > 0 {
		if banded {
			base = i - diagonal - band
			if j < base || j >= base+w { // out of the band, H is 0 here
				break
			}
		} else {
			base = 1
		}
		p = pointers[(i-1)*w+j-base]

		switch state {
		case stateE:
			ops = append(ops, opDelete)
			if p&extLeft == 0 {
				state = stateH
			}
			j--
			continue
		case stateF:
			ops = append(ops, opInsert)
			if p&extTop == 0 {
				state = stateH
			}
			i--
			continue
		}

		if p&maskH == None {
			break
		}
		switch p & maskH {
		case Diag:
			if qcodes[i-1] == tcodes[j-1] {
				r.Matches++
			}
			ops = append(ops, opMatch)
			i--
			j--
		case Left:
			state = stateE
		case Top:
			state = stateF
		}
	}
	r.QBegin, r.TBegin = i, j
	r.AlnLen = len(ops)

	reverse(ops)
	alg.ops = ops
	r.CIGAR = alg.compressOps(ops)

	return r
}

// compressOps returns the run-length encoded operations, e.g., 10M1I5M.
func (alg *Aligner) compressOps(ops []byte) string {
	buf := &alg.buf
	buf.Reset()
	var n int
	var prev byte
	for k, op := range ops {
		if k > 0 && op != prev {
			buf.WriteString(strconv.Itoa(n))
			buf.WriteByte(prev)
			n = 0
		}
		prev = op
		n++
	}
	if n > 0 {
		buf.WriteString(strconv.Itoa(n))
		buf.WriteByte(prev)
	}
	return buf.String()
}

func resizeInts(s []int, n int) []int {
	if cap(s) < n {
		return make([]int, n)
	}
	return s[:n]
}

func reverse(s []byte) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
