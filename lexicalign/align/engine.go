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
	"github.com/shenwei356/LexicAlign/lexicalign/kdb"
	"github.com/shenwei356/LexicAlign/lexicalign/sw"
)

// Sequence is a sequence of a database. Seq points to the read-only data
// of the database and must not be modified.
type Sequence struct {
	Key  uint32
	ID   int // ordinal id in the database, -1 for targets
	Type kdb.DBType
	Seq  []byte
}

// Len returns the sequence length.
func (s *Sequence) Len() int { return len(s.Seq) }

// Engine computes alignment statistics of a query against targets.
// An Engine is not safe for concurrent use, each worker owns its engines.
type Engine interface {
	// SetQuery sets the query for following alignments.
	SetQuery(q *Sequence)

	// Align aligns the query against a target. The diagonal is a hint
	// for where the alignment lies, DiagonalUnknown for none. Coverage
	// and e-value thresholds let the engine skip statistics of alignments
	// that can not pass them, unless it's an identity alignment.
	Align(t *Sequence, diagonal int, reverse bool, covMode CovMode, covThr, evalThr float64,
		mode StatsMode, isIdentity bool) Result
}

// EngineFactory creates an Engine from a scoring context and the number
// of residues in the target database, for e-value computation.
type EngineFactory func(sc *ScoringContext, dbResidues int64) Engine

// SWEngine is an Engine with Smith-Waterman-Gotoh alignment.
type SWEngine struct {
	sc      *ScoringContext
	alg     *sw.Aligner
	evaluer *sw.Evaluer

	// half width of the band around diagonal hints, 0 for no banding
	Band int

	query *Sequence
	rc    []byte // reverse complement of targets
}

// NewSWEngine is an EngineFactory of SWEngine.
func NewSWEngine(sc *ScoringContext, dbResidues int64) Engine {
	return &SWEngine{
		sc:      sc,
		alg:     sw.NewAligner(sc.Matrix, sc.GapOpen, sc.GapExtend),
		evaluer: sw.NewEvaluer(sc.Matrix, sc.GapOpen, sc.GapExtend, dbResidues),
		Band:    sw.DefaultBand,
	}
}

// SWEngineFactory returns an EngineFactory of SWEngine with a custom band.
func SWEngineFactory(band int) EngineFactory {
	return func(sc *ScoringContext, dbResidues int64) Engine {
		e := NewSWEngine(sc, dbResidues).(*SWEngine)
		e.Band = band
		return e
	}
}

// SetQuery sets the query.
func (e *SWEngine) SetQuery(q *Sequence) {
	e.query = q
	e.alg.SetQuery(q.Seq)
}

// Align aligns the query to a target.
func (e *SWEngine) Align(t *Sequence, diagonal int, reverse bool, covMode CovMode, covThr, evalThr float64,
	mode StatsMode, isIdentity bool) Result {

	qlen, tlen := len(e.query.Seq), len(t.Seq)
	r := Result{
		QueryKey:  e.query.Key,
		TargetKey: t.Key,
		QLen:      qlen,
		TLen:      tlen,
		QStart:    -1,
		TStart:    -1,
	}

	s := t.Seq
	if reverse && e.sc.Type == kdb.Nucleotides {
		e.rc = revComp(t.Seq, e.rc)
		s = e.rc
		r.Reverse = true
	}

	// score only
	ar := e.alg.Local(s, diagonal, e.Band, false)
	r.Score = ar.Score
	r.Evalue = e.evaluer.Evalue(ar.Score, qlen)
	r.QEnd, r.TEnd = ar.QEnd, ar.TEnd
	r.SeqID = estimateSeqID(ar.Score, qlen, tlen)

	if !isIdentity && (mode == StatsScoreOnly || r.Evalue > evalThr) {
		return r
	}

	// positions
	ar = e.alg.Local(s, diagonal, e.Band, true)
	r.QStart, r.QEnd = ar.QBegin, ar.QEnd
	r.TStart, r.TEnd = ar.TBegin, ar.TEnd
	r.AlnLen = ar.AlnLen
	r.QCov = coverage(r.QStart, r.QEnd, qlen)
	r.TCov = coverage(r.TStart, r.TEnd, tlen)
	if r.Reverse {
		r.TStart, r.TEnd = tlen-r.TEnd, tlen-r.TStart
	}

	if !isIdentity && mode == StatsScoreCov {
		return r
	}
	if !isIdentity && !HasCoverage(covMode, covThr, r.QCov, r.TCov) {
		return r
	}

	// identity and backtrace
	r.Backtrace = ar.CIGAR
	if ar.AlnLen > 0 {
		r.SeqID = float64(ar.Matches) / float64(ar.AlnLen)
	} else {
		r.SeqID = 0
	}
	return r
}

// estimateSeqID estimates sequence identity from the score per residue.
func estimateSeqID(score, qlen, tlen int) float64 {
	l := qlen
	if tlen > l {
		l = tlen
	}
	if l == 0 {
		return 0
	}
	id := float64(score)/float64(l)*0.1656 + 0.1141
	if id > 1 {
		return 1
	}
	if id < 0 {
		return 0
	}
	return id
}

func coverage(start, end, length int) float64 {
	if length <= 0 || start < 0 {
		return 0
	}
	return float64(end-start) / float64(length)
}

var complement [256]byte

func init() {
	for i := range complement {
		complement[i] = byte(i)
	}
	for _, p := range [][2]byte{{'A', 'T'}, {'C', 'G'}, {'R', 'Y'}, {'K', 'M'}, {'B', 'V'}, {'D', 'H'}} {
		complement[p[0]], complement[p[1]] = p[1], p[0]
		complement[p[0]+32], complement[p[1]+32] = p[1]+32, p[0]+32
	}
	complement['U'], complement['u'] = 'A', 'a'
}

// revComp returns the reverse complement of s, reusing buf.
func revComp(s []byte, buf []byte) []byte {
	if cap(buf) < len(s) {
		buf = make([]byte, len(s))
	} else {
		buf = buf[:len(s)]
	}
	n := len(s) - 1
	for i, b := range s {
		buf[n-i] = complement[b]
	}
	return buf
}
