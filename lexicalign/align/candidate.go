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
	"bytes"
	"math"
	"strconv"

	"github.com/pkg/errors"
)

// DiagonalUnknown means the candidate carries no diagonal hint.
const DiagonalUnknown = math.MaxInt32

// Candidate is a target of a query from the prefilter.
type Candidate struct {
	Key      uint32
	Diagonal int
	Reverse  bool
}

// ErrInvalidCandidate means a malformed candidate record.
var ErrInvalidCandidate = errors.New("align: invalid candidate record")

// CandidateStream parses candidate records of a query lazily,
// one line each time.
//
// A compact record has three tab-delimited fields: target key,
// prefilter score, and diagonal. In a database of reverse-strand
// prefilter results, a non-zero score field means the reverse strand.
// Records with other numbers of fields, e.g., alignment results,
// only provide the target key.
type CandidateStream struct {
	data      []byte
	reverseDB bool
	fields    [][]byte
}

// NewCandidateStream creates a CandidateStream.
func NewCandidateStream(data []byte, reverseDB bool) *CandidateStream {
	return &CandidateStream{data: data, reverseDB: reverseDB, fields: make([][]byte, 0, 16)}
}

// Reset reuses the stream for another entry.
func (s *CandidateStream) Reset(data []byte, reverseDB bool) {
	s.data = data
	s.reverseDB = reverseDB
}

// Next returns the next candidate. It returns false when the stream is
// exhausted, errors are returned for malformed records.
func (s *CandidateStream) Next() (Candidate, bool, error) {
	var c Candidate
	var line []byte
	var i int
	for {
		if len(s.data) == 0 || s.data[0] == 0 {
			return c, false, nil
		}
		i = bytes.IndexByte(s.data, '\n')
		if i < 0 {
			line, s.data = s.data, nil
		} else {
			line, s.data = s.data[:i], s.data[i+1:]
		}
		line = bytes.TrimRight(line, "\r")
		if len(line) > 0 {
			break
		}
	}

	s.fields = splitFields(line, s.fields[:0])

	key, err := strconv.ParseUint(string(s.fields[0]), 10, 32)
	if err != nil {
		return c, false, errors.Wrapf(ErrInvalidCandidate, "target key: %s", line)
	}
	c.Key = uint32(key)
	c.Diagonal = DiagonalUnknown

	if len(s.fields) == 3 {
		diag, err := strconv.Atoi(string(s.fields[2]))
		if err != nil {
			return c, false, errors.Wrapf(ErrInvalidCandidate, "diagonal: %s", line)
		}
		c.Diagonal = diag

		if s.reverseDB {
			score, err := strconv.ParseFloat(string(s.fields[1]), 64)
			if err != nil {
				return c, false, errors.Wrapf(ErrInvalidCandidate, "score: %s", line)
			}
			c.Reverse = score != 0
		}
	}
	return c, true, nil
}

// splitFields splits a line by tabs.
func splitFields(line []byte, fields [][]byte) [][]byte {
	var i int
	for {
		i = bytes.IndexByte(line, '\t')
		if i < 0 {
			return append(fields, line)
		}
		fields = append(fields, line[:i])
		line = line[i+1:]
	}
}

// AppendCandidate appends a compact candidate record to buf.
func AppendCandidate(buf []byte, c Candidate, score int) []byte {
	buf = strconv.AppendUint(buf, uint64(c.Key), 10)
	buf = append(buf, '\t')
	buf = strconv.AppendInt(buf, int64(score), 10)
	buf = append(buf, '\t')
	diag := c.Diagonal
	if diag == DiagonalUnknown {
		diag = 0
	}
	buf = strconv.AppendInt(buf, int64(diag), 10)
	buf = append(buf, '\n')
	return buf
}
