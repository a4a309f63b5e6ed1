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

import "fmt"

// CovMode decides how coverage thresholds are applied.
type CovMode int

const (
	CovBidirectional CovMode = iota // both query and target coverages
	CovTarget                       // target coverage
	CovQuery                        // query coverage
	CovLengthQuery                  // target length >= threshold * query length
	CovLengthTarget                 // query length >= threshold * target length
	CovLengthShorter                // shorter length >= threshold * longer length
	CovEither                       // query or target coverage
)

var covModeNames = []string{
	"bidirectional",
	"target",
	"query",
	"length-query",
	"length-target",
	"length-shorter",
	"either",
}

func (m CovMode) String() string {
	if m >= 0 && int(m) < len(covModeNames) {
		return covModeNames[m]
	}
	return fmt.Sprintf("unknown(%d)", int(m))
}

// Valid tells whether the coverage mode is known.
func (m CovMode) Valid() bool {
	return m >= 0 && int(m) < len(covModeNames)
}

// Thresholds are the acceptance criteria of alignments.
type Thresholds struct {
	MaxEvalue float64
	MinSeqID  float64
	MinAlnLen int

	CovMode CovMode
	MinCov  float64

	// coverage threshold of realignment, defaults to MinCov
	RealignCov float64
}

// DefaultThresholds returns the default thresholds.
func DefaultThresholds() *Thresholds {
	return &Thresholds{
		MaxEvalue: 0.001,
		MinSeqID:  0,
		MinAlnLen: 0,
		CovMode:   CovBidirectional,
		MinCov:    0,
	}
}

// Accept tells whether an alignment passes the thresholds.
// Identity alignments are always accepted.
func Accept(r *Result, isIdentity bool, th *Thresholds) bool {
	if isIdentity {
		return true
	}
	return r.Evalue <= th.MaxEvalue &&
		r.SeqID >= th.MinSeqID &&
		HasCoverage(th.CovMode, th.MinCov, r.QCov, r.TCov) &&
		lengthOK(th.CovMode, th.MinCov, r.QLen, r.TLen) &&
		HasAlignmentLength(th.MinAlnLen, r.AlnLen)
}

// HasCoverage checks alignment coverages. Modes only concerning
// sequence lengths always pass, see CanBeCovered.
func HasCoverage(mode CovMode, t float64, qcov, tcov float64) bool {
	switch mode {
	case CovBidirectional:
		return qcov >= t && tcov >= t
	case CovTarget:
		return tcov >= t
	case CovQuery:
		return qcov >= t
	case CovEither:
		return qcov >= t || tcov >= t
	}
	return true
}

// CanBeCovered tells whether an alignment of two sequences of the given
// lengths could possibly pass the coverage threshold, with no need of
// aligning them.
func CanBeCovered(mode CovMode, t float64, qlen, tlen int) bool {
	if qlen <= 0 || tlen <= 0 {
		return t <= 0
	}
	q, s := float64(qlen), float64(tlen)
	switch mode {
	case CovBidirectional:
		return q/s >= t && s/q >= t
	case CovTarget, CovLengthTarget:
		return q/s >= t
	case CovQuery, CovLengthQuery:
		return s/q >= t
	case CovLengthShorter:
		if q < s {
			return q/s >= t
		}
		return s/q >= t
	case CovEither:
		return q/s >= t || s/q >= t
	}
	return true
}

// lengthOK applies the length tests of length-only coverage modes.
func lengthOK(mode CovMode, t float64, qlen, tlen int) bool {
	switch mode {
	case CovLengthQuery, CovLengthTarget, CovLengthShorter:
		return CanBeCovered(mode, t, qlen, tlen)
	}
	return true
}

// HasAlignmentLength checks the alignment length.
func HasAlignmentLength(minLen int, alnLen int) bool {
	return alnLen >= minLen
}
