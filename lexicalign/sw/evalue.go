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

package sw

import (
	"fmt"
	"math"
)

// KarlinAltschul holds the statistical parameters of a scoring system.
type KarlinAltschul struct {
	Lambda float64
	K      float64
}

// parameters of gapped alignments, from blast_stat.c of ncbi-blast.
var kaParams = map[string]KarlinAltschul{
	"blosum62_11_1": {0.267, 0.041},
	"blosum62_10_1": {0.243, 0.032},
	"blosum62_12_1": {0.281, 0.057},
	"blosum62_9_2":  {0.279, 0.058},
	"blosum62_8_2":  {0.270, 0.047},
	"blosum62_7_2":  {0.252, 0.035},

	"nucleotide_2_3_5_2": {0.625, 0.41},
	"nucleotide_1_2_5_2": {1.28, 0.46},
	"nucleotide_1_3_5_2": {1.33, 0.61},
	"nucleotide_1_1_5_2": {0.526, 0.090},
}

// Params returns the Karlin-Altschul parameters of a matrix and gap costs.
// The second value is false if the combination is not tabulated, in which
// case the parameters of BLOSUM62 with gap costs 11/1 are returned.
func Params(m *Matrix, gapOpen, gapExtend int) (KarlinAltschul, bool) {
	p, ok := kaParams[fmt.Sprintf("%s_%d_%d", m.Name, gapOpen, gapExtend)]
	if !ok {
		return kaParams["blosum62_11_1"], false
	}
	return p, true
}

// Evaluer computes bit scores and e-values of raw scores against a
// database of a given size.
type Evaluer struct {
	lambda float64
	lnK    float64

	dbResidues float64
	roundEven  bool // nucleotide scores are rounded down to even numbers
}

// NewEvaluer creates an Evaluer.
func NewEvaluer(m *Matrix, gapOpen, gapExtend int, dbResidues int64) *Evaluer {
	p, _ := Params(m, gapOpen, gapExtend)
	if dbResidues < 1 {
		dbResidues = 1
	}
	return &Evaluer{
		lambda:     p.Lambda,
		lnK:        math.Log(p.K),
		dbResidues: float64(dbResidues),
		roundEven:  len(m.Alphabet) <= 5,
	}
}

// BitScore returns the bit score of a raw score.
func (e *Evaluer) BitScore(score int) float64 {
	if e.roundEven && score&1 == 1 {
		score--
	}
	return (e.lambda*float64(score) - e.lnK) / math.Ln2
}

// Evalue returns the e-value of a raw score of a query.
func (e *Evaluer) Evalue(score int, qlen int) float64 {
	return e.dbResidues * math.Pow(2, -e.BitScore(score)) * float64(qlen)
}
