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
	"strings"
	"testing"
)

func TestLocalProtein(t *testing.T) {
	m := BLOSUM62()
	alg := NewAligner(m, 11, 1)

	q := []byte("MKVLAAGIW")
	alg.SetQuery(q)
	r := alg.Local(q, 0, DefaultBand, true)

	// M5 K5 V4 L4 A4 A4 G6 I4 W11
	if r.Score != 47 {
		t.Errorf("unexpected score: %d", r.Score)
		return
	}
	if r.QBegin != 0 || r.QEnd != 9 || r.TBegin != 0 || r.TEnd != 9 {
		t.Errorf("unexpected positions: %s", r)
		return
	}
	if r.CIGAR != "9M" || r.Matches != 9 || r.AlnLen != 9 {
		t.Errorf("unexpected alignment: %s", r)
		return
	}

	// lower case letters
	r2 := alg.Local([]byte(strings.ToLower(string(q))), DiagonalUnknown, 0, true)
	if r2.Score != r.Score {
		t.Errorf("lower case letters should be accepted, score: %d", r2.Score)
	}
}

func TestLocalGap(t *testing.T) {
	m := NucleotideMatrix(2, -3)
	alg := NewAligner(m, 5, 2)

	q := []byte("GATTACAGCT" + "CCTAGGCATA")
	s := []byte("GATTACAGCT" + "G" + "CCTAGGCATA")
	alg.SetQuery(q)

	for _, band := range []int{0, 3} {
		r := alg.Local(s, 0, band, true)
		// 20 matches and a gap of length 1
		if r.Score != 33 {
			t.Errorf("band %d, unexpected score: %d", band, r.Score)
			return
		}
		if r.CIGAR != "10M1D10M" {
			t.Errorf("band %d, unexpected cigar: %s", band, r.CIGAR)
			return
		}
		if r.QBegin != 0 || r.QEnd != 20 || r.TBegin != 0 || r.TEnd != 21 {
			t.Errorf("band %d, unexpected positions: %s", band, r)
			return
		}
		if r.Matches != 20 || r.AlnLen != 21 {
			t.Errorf("band %d, unexpected alignment: %s", band, r)
			return
		}
	}

	// insertion: swap query and target
	alg.SetQuery(s)
	r := alg.Local(q, DiagonalUnknown, 0, true)
	if r.Score != 33 || r.CIGAR != "10M1I10M" {
		t.Errorf("unexpected alignment: %s", r)
	}
}

func TestLocalBand(t *testing.T) {
	m := NucleotideMatrix(2, -3)
	alg := NewAligner(m, 5, 2)

	q := []byte("ACGTTGCA")
	s := []byte("TTTTT" + "ACGTTGCA" + "TTTTT")
	alg.SetQuery(q)

	full := alg.Local(s, DiagonalUnknown, 0, true)
	if full.Score != 16 || full.TBegin != 5 || full.TEnd != 13 {
		t.Errorf("unexpected alignment: %s", full)
		return
	}

	// around the right diagonal
	r := alg.Local(s, -5, 2, true)
	if r.Score != full.Score || r.TBegin != full.TBegin || r.CIGAR != full.CIGAR {
		t.Errorf("banded alignment differs: %s", r)
		return
	}

	// the band is out of the matrix
	r = alg.Local(s, 20, 2, true)
	if r.Score != 0 {
		t.Errorf("no cells should be computed, score: %d", r.Score)
		return
	}

	// score only
	r = alg.Local(s, -5, 2, false)
	if r.Score != full.Score || r.QEnd != full.QEnd || r.TEnd != full.TEnd {
		t.Errorf("unexpected score-only result: %s", r)
		return
	}
	if r.QBegin != -1 || r.TBegin != -1 || r.CIGAR != "" {
		t.Errorf("begin positions should be unknown: %s", r)
	}
}

func TestMatrixShift(t *testing.T) {
	m := BLOSUM62()

	for _, c := range []struct {
		bias float64
		aa   int // A-A, 4 in BLOSUM62
		ar   int // A-R, -1 in BLOSUM62
	}{
		{-0.2, 4, -1},
		{0.3, 4, -1},
		{0.5, 5, 0},
		{-0.6, 3, -2},
		{1, 5, 0},
		{-1.2, 3, -2},
	} {
		m2 := m.Shift(c.bias)
		if m2.Score('A', 'A') != c.aa || m2.Score('A', 'R') != c.ar {
			t.Errorf("unexpected shifted scores with bias %g: A-A %d, A-R %d", c.bias,
				m2.Score('A', 'A'), m2.Score('A', 'R'))
			return
		}
	}
	if m.Score('A', 'A') != 4 {
		t.Errorf("the source matrix should not be changed")
		return
	}
	if m.Shift(0) != m {
		t.Errorf("a zero shift should return the same matrix")
		return
	}

	// unknown residues are treated as the wildcard
	if m.Score('J', 'A') != m.Score('X', 'A') {
		t.Errorf("unknown residues should be mapped to X")
	}
}

func TestParseMatrix(t *testing.T) {
	_, err := ParseMatrix("bad", strings.NewReader("A C\nA 1 0\nC 0\n"))
	if err == nil {
		t.Errorf("a malformed matrix should be rejected")
		return
	}

	m, err := ParseMatrix("ac", strings.NewReader("# comment\n  A  C\nA  1 -1\nC -1  1\n"))
	if err != nil {
		t.Error(err)
		return
	}
	if m.Score('A', 'A') != 1 || m.Score('a', 'c') != -1 {
		t.Errorf("unexpected scores")
	}
}

func TestEvalue(t *testing.T) {
	m := BLOSUM62()
	if _, ok := Params(m, 11, 1); !ok {
		t.Errorf("parameters of blosum62 11/1 should be known")
		return
	}

	e := NewEvaluer(m, 11, 1, 1000000)
	if e.Evalue(50, 100) >= e.Evalue(40, 100) {
		t.Errorf("e-values should decrease with scores")
		return
	}
	if e.Evalue(50, 200) <= e.Evalue(50, 100) {
		t.Errorf("e-values should increase with query lengths")
		return
	}
	if e.BitScore(50) <= e.BitScore(40) {
		t.Errorf("bit scores should increase with scores")
	}
}
