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
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Matrix is a substitution matrix.
type Matrix struct {
	Name     string
	Alphabet []byte  // residues, in the order of rows and columns
	Scores   [][]int // scores of alphabet pairs
	Wildcard byte    // the residue any unknown letter is mapped to, also used for masking

	index [256]uint8 // residue -> row
}

// ErrInvalidMatrix means the matrix file is malformed.
var ErrInvalidMatrix = errors.New("sw: invalid substitution matrix")

func newMatrix(name string, alphabet []byte, scores [][]int, wildcard byte) *Matrix {
	m := &Matrix{Name: name, Alphabet: alphabet, Scores: scores, Wildcard: wildcard}
	w := uint8(len(alphabet) - 1)
	for i, b := range alphabet {
		if b == wildcard {
			w = uint8(i)
		}
	}
	for i := range m.index {
		m.index[i] = w
	}
	for i, b := range alphabet {
		m.index[b] = uint8(i)
		if b >= 'A' && b <= 'Z' {
			m.index[b+32] = uint8(i)
		}
	}
	return m
}

// Code returns the row of a residue.
func (m *Matrix) Code(b byte) uint8 {
	return m.index[b]
}

// Encode converts a sequence to matrix rows, reusing buf.
func (m *Matrix) Encode(s []byte, buf []uint8) []uint8 {
	if cap(buf) < len(s) {
		buf = make([]uint8, len(s))
	} else {
		buf = buf[:len(s)]
	}
	for i, b := range s {
		buf[i] = m.index[b]
	}
	return buf
}

// Score returns the score of two residues.
func (m *Matrix) Score(a, b byte) int {
	return m.Scores[m.index[a]][m.index[b]]
}

// Shift returns a new matrix with all scores shifted by bias
// and rounded to the nearest integer, i.e., floor(v+bias+0.5).
func (m *Matrix) Shift(bias float64) *Matrix {
	if bias == 0 {
		return m
	}
	scores := make([][]int, len(m.Scores))
	for i, row := range m.Scores {
		scores[i] = make([]int, len(row))
		for j, v := range row {
			scores[i][j] = int(math.Floor(float64(v) + bias + 0.5))
		}
	}
	m2 := newMatrix(m.Name, m.Alphabet, scores, m.Wildcard)
	return m2
}

// ParseMatrix parses a substitution matrix in the NCBI format:
// lines starting with "#" are comments, the first other line
// lists the residues, and each following line starts with a residue
// followed by its scores.
func ParseMatrix(name string, r io.Reader) (*Matrix, error) {
	scanner := bufio.NewScanner(r)
	var alphabet []byte
	var scores [][]int
	var line string
	var items []string
	var v int
	var err error
	for scanner.Scan() {
		line = strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		items = strings.Fields(line)
		if alphabet == nil {
			for _, item := range items {
				if len(item) != 1 {
					return nil, errors.Wrapf(ErrInvalidMatrix, "residue: %s", item)
				}
				alphabet = append(alphabet, item[0])
			}
			continue
		}
		if len(items) != len(alphabet)+1 {
			return nil, errors.Wrapf(ErrInvalidMatrix, "number of columns, line: %s", line)
		}
		if len(items[0]) != 1 || items[0][0] != alphabet[len(scores)] {
			return nil, errors.Wrapf(ErrInvalidMatrix, "row order, line: %s", line)
		}
		row := make([]int, len(alphabet))
		for i, item := range items[1:] {
			v, err = strconv.Atoi(item)
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidMatrix, "score: %s", item)
			}
			row[i] = v
		}
		scores = append(scores, row)
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	if len(alphabet) == 0 || len(scores) != len(alphabet) {
		return nil, errors.Wrapf(ErrInvalidMatrix, "%d rows for %d residues", len(scores), len(alphabet))
	}

	var wildcard byte = 'X'
	if strings.IndexByte(string(alphabet), 'X') < 0 {
		wildcard = 'N'
		if strings.IndexByte(string(alphabet), 'N') < 0 {
			wildcard = alphabet[len(alphabet)-1]
		}
	}
	return newMatrix(name, alphabet, scores, wildcard), nil
}

// NucleotideMatrix returns a matrix of nucleotides with the given match
// and mismatch scores. N (and any unknown letter) scores the mismatch
// score against all, and "U" is treated as "T".
func NucleotideMatrix(match, mismatch int) *Matrix {
	alphabet := []byte("ACGTN")
	scores := make([][]int, len(alphabet))
	for i := range alphabet {
		scores[i] = make([]int, len(alphabet))
		for j := range alphabet {
			if i == j && alphabet[i] != 'N' {
				scores[i][j] = match
			} else {
				scores[i][j] = mismatch
			}
		}
	}
	m := newMatrix(fmt.Sprintf("nucleotide_%d_%d", match, -mismatch), alphabet, scores, 'N')
	m.index['U'] = m.index['T']
	m.index['u'] = m.index['T']
	return m
}

// BLOSUM62 returns the BLOSUM62 matrix.
func BLOSUM62() *Matrix {
	m, err := ParseMatrix("blosum62", strings.NewReader(blosum62))
	if err != nil {
		panic(err)
	}
	return m
}

var blosum62 = `# BLOSUM62
   A  R  N  D  C  Q  E  G  H  I  L  K  M  F  P  S  T  W  Y  V  B  Z  X  *
A  4 -1 -2 -2  0 -1 -1  0 -2 -1 -1 -1 -1 -2 -1  1  0 -3 -2  0 -2 -1  0 -4
R -1  5  0 -2 -3  1  0 -2  0 -3 -2  2 -1 -3 -2 -1 -1 -3 -2 -3 -1  0 -1 -4
N -2  0  6  1 -3  0  0  0  1 -3 -3  0 -2 -3 -2  1  0 -4 -2 -3  3  0 -1 -4
D -2 -2  1  6 -3  0  2 -1 -1 -3 -4 -1 -3 -3 -1  0 -1 -4 -3 -3  4  1 -1 -4
C  0 -3 -3 -3  9 -3 -4 -3 -3 -1 -1 -3 -1 -2 -3 -1 -1 -2 -2 -1 -3 -3 -2 -4
Q -1  1  0  0 -3  5  2 -2  0 -3 -2  1  0 -3 -1  0 -1 -2 -1 -2  0  3 -1 -4
E -1  0  0  2 -4  2  5 -2  0 -3 -3  1 -2 -3 -1  0 -1 -3 -2 -2  1  4 -1 -4
G  0 -2  0 -1 -3 -2 -2  6 -2 -4 -4 -2 -3 -3 -2  0 -2 -2 -3 -3 -1 -2 -1 -4
H -2  0  1 -1 -3  0  0 -2  8 -3 -3 -1 -2 -1 -2 -1 -2 -2  2 -3  0  0 -1 -4
I -1 -3 -3 -3 -1 -3 -3 -4 -3  4  2 -3  1  0 -3 -2 -1 -3 -1  3 -3 -3 -1 -4
L -1 -2 -3 -4 -1 -2 -3 -4 -3  2  4 -2  2  0 -3 -2 -1 -2 -1  1 -4 -3 -1 -4
K -1  2  0 -1 -3  1  1 -2 -1 -3 -2  5 -1 -3 -1  0 -1 -3 -2 -2  0  1 -1 -4
M -1 -1 -2 -3 -1  0 -2 -3 -2  1  2 -1  5  0 -2 -1 -1 -1 -1  1 -3 -1 -1 -4
F -2 -3 -3 -3 -2 -3 -3 -3 -1  0  0 -3  0  6 -4 -2 -2  1  3 -1 -3 -3 -1 -4
P -1 -2 -2 -1 -3 -1 -1 -2 -2 -3 -3 -1 -2 -4  7 -1 -1 -4 -3 -2 -2 -1 -2 -4
S  1 -1  1  0 -1  0  0  0 -1 -2 -2  0 -1 -2 -1  4  1 -3 -2 -2  0  0  0 -4
T  0 -1  0 -1 -1 -1 -1 -2 -2 -1 -1 -1 -1 -2 -1  1  5 -2 -2  0 -1 -1  0 -4
W -3 -3 -4 -4 -2 -2 -3 -2 -2 -3 -2 -3 -1  1 -4 -3 -2 11  2 -3 -4 -3 -2 -4
Y -2 -2 -2 -3 -2 -1 -2 -3  2 -1 -1 -2 -1  3 -3 -2 -2  2  7 -1 -3 -2 -1 -4
V  0 -3 -3 -3 -1 -2 -2 -3 -3  3  1 -2  1 -1 -2 -2  0 -3 -1  4 -3 -2 -1 -4
B -2 -1  3  4 -3  0  1 -1  0 -3 -4  0 -3 -3 -2  0 -1 -4 -3 -3  4  1 -1 -4
Z -1  0  0  1 -3  3  4 -2  0 -3 -3  1 -1 -3 -1  0 -1 -3 -2 -2  1  4 -1 -4
X  0 -1 -1 -1 -2 -1 -1 -1 -1 -1 -1 -1 -1 -1 -2  0  0 -2 -1 -1 -1 -1 -1 -4
* -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4  1
`
