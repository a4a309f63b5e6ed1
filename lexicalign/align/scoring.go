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

// Default gap costs.
var (
	DefaultGapOpen             = 11
	DefaultGapExtend           = 1
	NucleotideGapOpen          = 5
	NucleotideGapExtend        = 2
	NucleotideMatch            = 2
	NucleotideMismatch         = -3
	RealignScoreShift  float64 = -0.2
)

// ScoringContext holds the substitution matrix and gap costs.
// It is read-only after creation and shared by all goroutines.
type ScoringContext struct {
	Matrix    *sw.Matrix
	GapOpen   int
	GapExtend int
	Type      kdb.DBType

	raw  *sw.Matrix
	bias float64
}

// NewScoringContext creates a ScoringContext for a query type.
// Nucleotide sequences use fixed gap costs of 5/2, a nil matrix means
// the default one of the type.
func NewScoringContext(typ kdb.DBType, m *sw.Matrix, gapOpen, gapExtend int, scoreBias float64) *ScoringContext {
	sc := &ScoringContext{Type: typ, GapOpen: gapOpen, GapExtend: gapExtend}
	if typ == kdb.Nucleotides {
		if m == nil {
			m = sw.NucleotideMatrix(NucleotideMatch, NucleotideMismatch)
		}
		sc.GapOpen, sc.GapExtend = NucleotideGapOpen, NucleotideGapExtend
	} else if m == nil {
		m = sw.BLOSUM62()
	}
	sc.raw, sc.bias = m, scoreBias
	sc.Matrix = m.Shift(scoreBias)
	return sc
}

// Shifted returns a ScoringContext with the score bias changed by delta,
// used in realignment.
func (sc *ScoringContext) Shifted(delta float64) *ScoringContext {
	sc2 := *sc
	sc2.bias = sc.bias + delta
	if sc.raw != nil {
		sc2.Matrix = sc.raw.Shift(sc2.bias)
	} else {
		sc2.Matrix = sc.Matrix.Shift(delta)
	}
	return &sc2
}

// Wildcard returns the residue used for masking.
func (sc *ScoringContext) Wildcard() byte {
	return sc.Matrix.Wildcard
}
