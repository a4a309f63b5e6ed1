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
	"fmt"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// Result is the alignment result of a query and a target.
// Positions are 0-based, ends are exclusive.
type Result struct {
	QueryKey  uint32
	TargetKey uint32

	Score  int
	Evalue float64
	SeqID  float64
	QCov   float64
	TCov   float64

	QStart, QEnd, QLen int
	TStart, TEnd, TLen int
	AlnLen             int

	Reverse   bool   // the match is on the reverse strand of the target
	Backtrace string // run-length encoded operations, e.g., 10M1I5M

	Rank int // rank after sorting by CompareHits, not serialized
}

func (r *Result) String() string {
	return fmt.Sprintf("%d-%d score: %d, evalue: %g, seqid: %g, query: [%d, %d)/%d, target: [%d, %d)/%d, cov: %g/%g",
		r.QueryKey, r.TargetKey, r.Score, r.Evalue, r.SeqID,
		r.QStart, r.QEnd, r.QLen, r.TStart, r.TEnd, r.TLen, r.QCov, r.TCov)
}

// CompareHits is the order of results: higher scores first, then smaller
// e-values, smaller target keys, smaller target and query starts,
// and forward strands first.
func CompareHits(a, b *Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Evalue != b.Evalue {
		return a.Evalue < b.Evalue
	}
	if a.TargetKey != b.TargetKey {
		return a.TargetKey < b.TargetKey
	}
	if a.TStart != b.TStart {
		return a.TStart < b.TStart
	}
	if a.QStart != b.QStart {
		return a.QStart < b.QStart
	}
	return !a.Reverse && b.Reverse
}

// SortResults sorts results with CompareHits and records the ranks.
func SortResults(rs []Result) {
	sort.SliceStable(rs, func(i, j int) bool { return CompareHits(&rs[i], &rs[j]) })
	for i := range rs {
		rs[i].Rank = i
	}
}

// number of fields of a result line, without the backtrace.
const nFields = 14

// ErrInvalidResult means a malformed line of alignment results.
var ErrInvalidResult = errors.New("align: invalid alignment result")

// AppendResult appends a result as a tab-delimited line to buf:
//
//	targetKey score seqID evalue qStart qEnd qLen tStart tEnd tLen alnLen qcov tcov strand [backtrace]
func AppendResult(buf []byte, r *Result, backtrace bool) []byte {
	buf = strconv.AppendUint(buf, uint64(r.TargetKey), 10)
	buf = append(buf, '\t')
	buf = strconv.AppendInt(buf, int64(r.Score), 10)
	buf = append(buf, '\t')
	buf = strconv.AppendFloat(buf, r.SeqID, 'g', -1, 64)
	buf = append(buf, '\t')
	buf = strconv.AppendFloat(buf, r.Evalue, 'g', -1, 64)
	for _, v := range [...]int{r.QStart, r.QEnd, r.QLen, r.TStart, r.TEnd, r.TLen, r.AlnLen} {
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, int64(v), 10)
	}
	buf = append(buf, '\t')
	buf = strconv.AppendFloat(buf, r.QCov, 'g', -1, 64)
	buf = append(buf, '\t')
	buf = strconv.AppendFloat(buf, r.TCov, 'g', -1, 64)
	if r.Reverse {
		buf = append(buf, "\t-"...)
	} else {
		buf = append(buf, "\t+"...)
	}
	if backtrace {
		buf = append(buf, '\t')
		buf = append(buf, r.Backtrace...)
	}
	buf = append(buf, '\n')
	return buf
}

// FormatResult returns a result as a line.
func FormatResult(r *Result, backtrace bool) string {
	return string(AppendResult(make([]byte, 0, 128), r, backtrace))
}

// ParseResult parses a line of alignment result, with or without
// the line break.
func ParseResult(line []byte, queryKey uint32) (Result, error) {
	var r Result
	line = bytes.TrimRight(line, "\r\n")
	items := bytes.Split(line, []byte{'\t'})
	if len(items) != nFields && len(items) != nFields+1 {
		return r, errors.Wrapf(ErrInvalidResult, "%d fields: %s", len(items), line)
	}

	r.QueryKey = queryKey
	var err error
	var u uint64
	u, err = strconv.ParseUint(string(items[0]), 10, 32)
	if err != nil {
		return r, errors.Wrapf(ErrInvalidResult, "target key: %s", items[0])
	}
	r.TargetKey = uint32(u)

	ints := [...]*int{&r.Score, nil, nil, &r.QStart, &r.QEnd, &r.QLen, &r.TStart, &r.TEnd, &r.TLen, &r.AlnLen}
	floats := [...]*float64{nil, nil, &r.SeqID, &r.Evalue}
	for i := 1; i <= 10; i++ {
		if i == 2 || i == 3 {
			*floats[i], err = strconv.ParseFloat(string(items[i]), 64)
		} else {
			*ints[i-1], err = strconv.Atoi(string(items[i]))
		}
		if err != nil {
			return r, errors.Wrapf(ErrInvalidResult, "field %d: %s", i+1, items[i])
		}
	}
	r.QCov, err = strconv.ParseFloat(string(items[11]), 64)
	if err != nil {
		return r, errors.Wrapf(ErrInvalidResult, "query coverage: %s", items[11])
	}
	r.TCov, err = strconv.ParseFloat(string(items[12]), 64)
	if err != nil {
		return r, errors.Wrapf(ErrInvalidResult, "target coverage: %s", items[12])
	}
	switch string(items[13]) {
	case "+":
	case "-":
		r.Reverse = true
	default:
		return r, errors.Wrapf(ErrInvalidResult, "strand: %s", items[13])
	}
	if len(items) > nFields {
		r.Backtrace = string(items[nFields])
	}
	return r, nil
}

// ParseResults parses all results of an entry of an alignment database.
func ParseResults(data []byte, queryKey uint32) ([]Result, error) {
	rs := make([]Result, 0, 8)
	var i int
	var line []byte
	for len(data) > 0 {
		i = bytes.IndexByte(data, '\n')
		if i < 0 {
			line, data = data, nil
		} else {
			line, data = data[:i], data[i+1:]
		}
		if len(line) == 0 {
			continue
		}
		r, err := ParseResult(line, queryKey)
		if err != nil {
			return nil, err
		}
		r.Rank = len(rs)
		rs = append(rs, r)
	}
	return rs, nil
}
