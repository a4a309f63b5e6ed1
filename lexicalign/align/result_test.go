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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultRoundTrip(t *testing.T) {
	r := Result{
		QueryKey: 7, TargetKey: 4294967295,
		Score: 231, Evalue: 1.2345678901234e-37, SeqID: 0.8765432109876,
		QCov: 1.0 / 3.0, TCov: 0.1,
		QStart: 3, QEnd: 103, QLen: 300,
		TStart: 0, TEnd: 101, TLen: 1010,
		AlnLen:    102,
		Reverse:   true,
		Backtrace: "50M1I1D50M",
	}

	for _, backtrace := range []bool{true, false} {
		line := FormatResult(&r, backtrace)
		r2, err := ParseResult([]byte(line), r.QueryKey)
		require.NoError(t, err)

		expected := r
		if !backtrace {
			expected.Backtrace = ""
		}
		assert.Equal(t, expected, r2)
	}

	_, err := ParseResult([]byte("1\t2\t3"), 0)
	assert.ErrorIs(t, err, ErrInvalidResult)
	_, err = ParseResult([]byte("1\t2\t0.5\t1e-3\t0\t1\t2\t0\t1\t2\t1\t0.5\t0.5\t*"), 0)
	assert.ErrorIs(t, err, ErrInvalidResult)
}

func TestParseResults(t *testing.T) {
	rs := []Result{
		{TargetKey: 3, Score: 90, Evalue: 1e-20, QLen: 10, TLen: 10},
		{TargetKey: 1, Score: 80, Evalue: 1e-10, QLen: 10, TLen: 10},
	}
	var buf []byte
	for i := range rs {
		buf = AppendResult(buf, &rs[i], false)
	}
	rs2, err := ParseResults(buf, 5)
	require.NoError(t, err)
	require.Len(t, rs2, 2)
	assert.Equal(t, uint32(3), rs2[0].TargetKey)
	assert.Equal(t, uint32(5), rs2[1].QueryKey)
	assert.Equal(t, 1, rs2[1].Rank)

	rs2, err = ParseResults(nil, 5)
	require.NoError(t, err)
	assert.Len(t, rs2, 0)
}

func TestSortResults(t *testing.T) {
	rs := []Result{
		{TargetKey: 5, Score: 10, Evalue: 0.1},
		{TargetKey: 9, Score: 50, Evalue: 0.2},
		{TargetKey: 2, Score: 50, Evalue: 0.2, TStart: 10},
		{TargetKey: 2, Score: 50, Evalue: 0.2, TStart: 3},
		{TargetKey: 2, Score: 50, Evalue: 0.2, TStart: 3, Reverse: true},
		{TargetKey: 8, Score: 50, Evalue: 0.01},
	}
	SortResults(rs)

	keys := make([]uint32, len(rs))
	for i, r := range rs {
		keys[i] = r.TargetKey
		assert.Equal(t, i, r.Rank)
	}
	assert.Equal(t, []uint32{8, 2, 2, 2, 9, 5}, keys)
	assert.Equal(t, 3, rs[1].TStart)
	assert.False(t, rs[1].Reverse)
	assert.True(t, rs[2].Reverse)
	assert.Equal(t, 10, rs[3].TStart)
}
