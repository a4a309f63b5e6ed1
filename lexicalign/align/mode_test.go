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

	"github.com/shenwei356/LexicAlign/lexicalign/kdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveModes(t *testing.T) {
	th := &Thresholds{MaxEvalue: 0.001, MinCov: 0.8}

	_, err := ResolveModes(ModeUngapped, false, false, 0, kdb.AminoAcids, th)
	assert.ErrorIs(t, err, ErrUngappedMode)

	m, err := ResolveModes(ModeScoreOnly, true, false, 0, kdb.AminoAcids, th)
	require.NoError(t, err)
	assert.Equal(t, StatsScoreCovSeqID, m.Stats)

	// realignment defers coverage checking
	m, err = ResolveModes(ModeScoreCovSeqID, false, true, 0, kdb.AminoAcids,
		&Thresholds{MinCov: 0.8, MinAlnLen: 30})
	require.NoError(t, err)
	assert.Equal(t, StatsScoreOnly, m.Stats)
	assert.Equal(t, 0.0, m.MinCov)
	assert.Equal(t, 0, m.MinAlnLen)
	assert.Equal(t, 0.8, m.RealignCov)
	assert.True(t, m.AddBacktrace)
	assert.True(t, m.BacktraceForced)

	// alternative alignments
	_, err = ResolveModes(ModeAuto, false, false, 2, kdb.Nucleotides, th)
	assert.ErrorIs(t, err, ErrAltAliNucleotide)

	m, err = ResolveModes(ModeScoreOnly, false, false, 2, kdb.AminoAcids, th)
	require.NoError(t, err)
	assert.Equal(t, StatsScoreCov, m.Stats)

	m, err = ResolveModes(ModeScoreCovSeqID, false, false, 2, kdb.AminoAcids, th)
	require.NoError(t, err)
	assert.Equal(t, StatsScoreCovSeqID, m.Stats)

	// auto
	m, _ = ResolveModes(ModeAuto, false, false, 0, kdb.AminoAcids, &Thresholds{MinCov: 0.5})
	assert.Equal(t, StatsScoreCov, m.Stats)
	m, _ = ResolveModes(ModeAuto, false, false, 0, kdb.AminoAcids, &Thresholds{MinCov: 0.5, MinSeqID: 0.3})
	assert.Equal(t, StatsScoreCovSeqID, m.Stats)
	m, _ = ResolveModes(ModeAuto, false, false, 0, kdb.AminoAcids, &Thresholds{MinSeqID: 0.3})
	assert.Equal(t, StatsScoreOnly, m.Stats)
}

func TestCheckDBTypes(t *testing.T) {
	_, err := CheckDBTypes(kdb.HMMProfile, kdb.HMMProfile)
	assert.ErrorIs(t, err, ErrProfileVsProfile)

	_, err = CheckDBTypes(kdb.AminoAcids, kdb.ProfileStateSeq)
	assert.ErrorIs(t, err, ErrProfileStateTarget)

	typ, err := CheckDBTypes(kdb.HMMProfile, kdb.ProfileStateSeq)
	require.NoError(t, err)
	assert.Equal(t, kdb.ProfileStateProfile, typ)

	_, err = CheckDBTypes(kdb.Unknown, kdb.AminoAcids)
	assert.ErrorIs(t, err, ErrUnknownDBType)
	_, err = CheckDBTypes(kdb.AminoAcids, kdb.PrefilterRes)
	assert.ErrorIs(t, err, ErrUnknownDBType)

	typ, err = CheckDBTypes(kdb.Nucleotides, kdb.Nucleotides)
	require.NoError(t, err)
	assert.Equal(t, kdb.Nucleotides, typ)
}
