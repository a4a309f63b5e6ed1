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
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shenwei356/LexicAlign/lexicalign/kdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aminoAcids = "ACDEFGHIKLMNPQRSTVWY"

func randSeq(r *rand.Rand, n int) []byte {
	s := make([]byte, n)
	for i := range s {
		s[i] = aminoAcids[r.Intn(len(aminoAcids))]
	}
	return s
}

func writeDB(t *testing.T, file string, typ kdb.DBType, data map[uint32][]byte) *kdb.Reader {
	w, err := kdb.NewWriter(file, typ, 1)
	require.NoError(t, err)
	for k, d := range data {
		require.NoError(t, w.WriteData(d, k, 0))
	}
	require.NoError(t, w.Close())

	r, err := kdb.NewReader(file, true)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func candidates(keys ...uint32) []byte {
	var buf []byte
	for _, k := range keys {
		buf = AppendCandidate(buf, Candidate{Key: k, Diagonal: 0}, 100)
	}
	return buf
}

// fakeEngine accepts alignments of chosen targets and records calls.
type fakeEngine struct {
	query  *Sequence
	accept map[uint32]bool
	calls  *[]uint32
}

func (e *fakeEngine) SetQuery(q *Sequence) { e.query = q }

func (e *fakeEngine) Align(t *Sequence, diagonal int, reverse bool, covMode CovMode, covThr, evalThr float64,
	mode StatsMode, isIdentity bool) Result {
	*e.calls = append(*e.calls, t.Key)
	r := Result{
		QueryKey: e.query.Key, TargetKey: t.Key,
		QLen: e.query.Len(), TLen: t.Len(),
		Score: 10, Evalue: 1, SeqID: 0.1, QCov: 0.1, TCov: 0.1,
	}
	if e.accept[t.Key] {
		r.Score, r.Evalue, r.SeqID, r.QCov, r.TCov = 100, 1e-10, 0.9, 0.9, 0.9
	}
	return r
}

func fakeFactory(accept map[uint32]bool, calls *[]uint32) EngineFactory {
	return func(sc *ScoringContext, dbResidues int64) Engine {
		return &fakeEngine{accept: accept, calls: calls}
	}
}

func TestCandidateLimits(t *testing.T) {
	dir := t.TempDir()
	r := rand.New(rand.NewSource(1))

	seqs := make(map[uint32][]byte)
	for k := uint32(1); k <= 11; k++ {
		seqs[k] = randSeq(r, 50)
	}
	db := writeDB(t, filepath.Join(dir, "seqs"), kdb.AminoAcids, seqs)
	pdb := writeDB(t, filepath.Join(dir, "pref"), kdb.PrefilterRes, map[uint32][]byte{
		1: candidates(2, 3, 4, 5, 6, 7, 8, 9, 10, 11),
	})

	accept := map[uint32]bool{2: true, 4: true}
	run := func(maxAccept, maxRejected int) ([]uint32, []Result) {
		var calls []uint32
		opt := DefaultOptions()
		opt.Thresholds.MaxEvalue = 0.1
		opt.MaxAccept, opt.MaxRejected = maxAccept, maxRejected
		opt.Engine = fakeFactory(accept, &calls)

		a, err := NewAligner(db, db, pdb, false, opt)
		require.NoError(t, err)
		data, err := a.NewWorker(0).AlignQuery(0)
		require.NoError(t, err)
		rs, err := ParseResults(data, 1)
		require.NoError(t, err)
		return calls, rs
	}

	calls, rs := run(0, 3)
	assert.Equal(t, []uint32{2, 3, 4, 5, 6, 7}, calls)
	require.Len(t, rs, 2)
	assert.Equal(t, uint32(2), rs[0].TargetKey)
	assert.Equal(t, uint32(4), rs[1].TargetKey)

	calls, rs = run(1, 0)
	assert.Equal(t, []uint32{2}, calls)
	assert.Len(t, rs, 1)

	calls, _ = run(0, 0)
	assert.Len(t, calls, 10)
}

func TestIdentityAlignment(t *testing.T) {
	dir := t.TempDir()
	r := rand.New(rand.NewSource(2))
	db := writeDB(t, filepath.Join(dir, "seqs"), kdb.AminoAcids, map[uint32][]byte{
		1: randSeq(r, 50),
		2: randSeq(r, 50),
	})
	pdb := writeDB(t, filepath.Join(dir, "pref"), kdb.PrefilterRes, map[uint32][]byte{
		1: candidates(1, 2),
	})

	for _, sameDB := range []bool{true, false} {
		var calls []uint32
		opt := DefaultOptions()
		opt.Engine = fakeFactory(nil, &calls)
		a, err := NewAligner(db, db, pdb, sameDB, opt)
		require.NoError(t, err)

		data, err := a.NewWorker(0).AlignQuery(0)
		require.NoError(t, err)
		rs, err := ParseResults(data, 1)
		require.NoError(t, err)

		assert.Equal(t, []uint32{1, 2}, calls)
		if !sameDB {
			assert.Len(t, rs, 0)
			continue
		}
		require.Len(t, rs, 1)
		assert.Equal(t, uint32(1), rs[0].TargetKey)
		assert.Equal(t, 1.0, rs[0].QCov)
		assert.Equal(t, 1.0, rs[0].TCov)
		assert.Equal(t, 1.0, rs[0].SeqID)
	}
}

func TestAlignIdentityShortcut(t *testing.T) {
	dir := t.TempDir()
	r := rand.New(rand.NewSource(3))
	db := writeDB(t, filepath.Join(dir, "seqs"), kdb.AminoAcids, map[uint32][]byte{
		1: randSeq(r, 100),
		2: randSeq(r, 10),
	})
	pdb := writeDB(t, filepath.Join(dir, "pref"), kdb.PrefilterRes, map[uint32][]byte{
		1: candidates(1, 2),
	})

	opt := DefaultOptions()
	opt.Thresholds = Thresholds{MaxEvalue: 0.01, MinSeqID: 0.3, MinCov: 0.5, MinAlnLen: 10}
	a, err := NewAligner(db, db, pdb, true, opt)
	require.NoError(t, err)
	assert.Equal(t, StatsScoreCovSeqID, a.Modes.Stats)

	out := filepath.Join(dir, "aln")
	stats, err := a.Run(out, 0, pdb.Size())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Alignments) // the short target can not be covered
	assert.Equal(t, 1, stats.Passed)
	assert.Equal(t, 1, stats.Queries)

	adb, err := kdb.NewReader(out, true)
	require.NoError(t, err)
	defer adb.Close()
	assert.Equal(t, kdb.AlignmentRes, adb.Type())

	data, ok := adb.DataByKey(1)
	require.True(t, ok)
	rs, err := ParseResults(data, 1)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, uint32(1), rs[0].TargetKey)
	assert.Equal(t, 1.0, rs[0].QCov)
	assert.Equal(t, 1.0, rs[0].SeqID)
	assert.Equal(t, 0, rs[0].QStart)
	assert.Equal(t, 100, rs[0].QEnd)
}

func TestRealign(t *testing.T) {
	dir := t.TempDir()
	r := rand.New(rand.NewSource(4))
	q := randSeq(r, 100)
	half := append(append([]byte{}, q[:50]...), randSeq(r, 50)...)

	qdb := writeDB(t, filepath.Join(dir, "q"), kdb.AminoAcids, map[uint32][]byte{1: q})
	tdb := writeDB(t, filepath.Join(dir, "t"), kdb.AminoAcids, map[uint32][]byte{
		10: q,
		20: half,
	})
	pdb := writeDB(t, filepath.Join(dir, "pref"), kdb.PrefilterRes, map[uint32][]byte{
		1: candidates(10, 20),
	})

	opt := DefaultOptions()
	opt.Realign = true
	opt.Thresholds = Thresholds{MaxEvalue: 0.01, CovMode: CovQuery, MinCov: 0.8}
	a, err := NewAligner(qdb, tdb, pdb, false, opt)
	require.NoError(t, err)
	assert.True(t, a.Modes.AddBacktrace)

	w := a.NewWorker(0)
	data, err := w.AlignQuery(0)
	require.NoError(t, err)
	assert.Equal(t, 2, w.Passed) // both pass the primary pass without coverage

	rs, err := ParseResults(data, 1)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, uint32(10), rs[0].TargetKey)
	assert.Equal(t, "100M", rs[0].Backtrace)
	assert.Equal(t, 1.0, rs[0].QCov)
	assert.Equal(t, 1.0, rs[0].SeqID)
}

func TestAlternativeAlignments(t *testing.T) {
	dir := t.TempDir()
	r := rand.New(rand.NewSource(5))
	domain := randSeq(r, 60)
	var target []byte
	target = append(target, domain...)
	target = append(target, randSeq(r, 30)...)
	target = append(target, domain...)

	qdb := writeDB(t, filepath.Join(dir, "q"), kdb.AminoAcids, map[uint32][]byte{1: domain})
	tdb := writeDB(t, filepath.Join(dir, "t"), kdb.AminoAcids, map[uint32][]byte{7: target})
	pdb := writeDB(t, filepath.Join(dir, "pref"), kdb.PrefilterRes, map[uint32][]byte{
		1: candidates(7),
	})

	opt := DefaultOptions()
	opt.Mode = ModeScoreCovSeqID
	opt.AltAlignments = 3
	opt.Thresholds.MaxEvalue = 1e-5
	a, err := NewAligner(qdb, tdb, pdb, false, opt)
	require.NoError(t, err)

	w := a.NewWorker(0)
	data, err := w.AlignQuery(0)
	require.NoError(t, err)
	rs, err := ParseResults(data, 1)
	require.NoError(t, err)
	require.Len(t, rs, 2)

	assert.Equal(t, 0, rs[0].TStart)
	assert.Equal(t, 60, rs[0].TEnd)
	assert.Equal(t, 90, rs[1].TStart)
	assert.Equal(t, 150, rs[1].TEnd)
	for _, x := range rs {
		assert.Equal(t, uint32(7), x.TargetKey)
		assert.Equal(t, 1.0, x.SeqID)
	}

	// the database is never modified by masking
	s, _ := tdb.DataByKey(7)
	assert.False(t, strings.ContainsRune(string(s), 'X'))
}

// similarDBs creates a sequence database of 40 sequences, where the
// last 10 are mutated copies of the first 10, and a prefilter database
// of 20 queries with candidate lists of different sizes.
func similarDBs(t *testing.T, dir string, seed int64) (db, pdb *kdb.Reader) {
	r := rand.New(rand.NewSource(seed))

	seqs := make(map[uint32][]byte)
	for k := uint32(0); k < 30; k++ {
		seqs[k] = randSeq(r, 40+r.Intn(80))
	}
	// similar pairs
	for k := uint32(30); k < 40; k++ {
		s := append([]byte{}, seqs[k-30]...)
		for i := 0; i < len(s); i += 7 {
			s[i] = aminoAcids[r.Intn(len(aminoAcids))]
		}
		seqs[k] = s
	}
	db = writeDB(t, filepath.Join(dir, "seqs"), kdb.AminoAcids, seqs)

	prefs := make(map[uint32][]byte)
	for k := uint32(0); k < 20; k++ {
		keys := []uint32{k, k%10 + 30}
		for i := 0; i < int(k%6); i++ {
			keys = append(keys, uint32(r.Intn(40)))
		}
		prefs[k] = candidates(keys...)
	}
	pdb = writeDB(t, filepath.Join(dir, "pref"), kdb.PrefilterRes, prefs)
	return db, pdb
}

// assertSameDB checks that two alignment databases have the same entries.
func assertSameDB(t *testing.T, file1, file2 string) {
	adb1, err := kdb.NewReader(file1, true)
	require.NoError(t, err)
	defer adb1.Close()
	adb2, err := kdb.NewReader(file2, true)
	require.NoError(t, err)
	defer adb2.Close()

	require.Equal(t, adb1.Size(), adb2.Size())
	for i := 0; i < adb1.Size(); i++ {
		k := adb1.Key(i)
		d2, ok := adb2.DataByKey(k)
		require.True(t, ok)
		assert.Equal(t, string(adb1.Data(i)), string(d2), "query %d", k)
	}
}

func TestRunAllLocal(t *testing.T) {
	dir := t.TempDir()
	db, pdb := similarDBs(t, dir, 6)

	opt := DefaultOptions()
	opt.Threads = 2
	opt.Thresholds.MinCov = 0.3
	a, err := NewAligner(db, db, pdb, true, opt)
	require.NoError(t, err)

	out1 := filepath.Join(dir, "aln1")
	stats1, err := a.Run(out1, 0, pdb.Size())
	require.NoError(t, err)

	out2 := filepath.Join(dir, "aln2")
	stats2, err := a.RunAllLocal(context.Background(), out2, 3)
	require.NoError(t, err)
	assert.Equal(t, *stats1, *stats2)

	info, err := kdb.ReadInfo(out1)
	require.NoError(t, err)
	assert.Equal(t, pdb.Size(), info.Entries)
	assertSameDB(t, out1, out2)

	barrier := NewFileBarrier(out2, 3)
	for rank := 0; rank < 3; rank++ {
		assert.False(t, kdb.Exists(TmpOutput(out2, rank)))
		assert.NoFileExists(t, barrier.Marker(rank))
	}
}

func TestRunChunks(t *testing.T) {
	dir := t.TempDir()
	db, pdb0 := similarDBs(t, dir, 7)

	// memory-mapped, so pages of finished chunks are released
	pdb, err := kdb.NewReader(pdb0.File(), false)
	require.NoError(t, err)
	defer pdb.Close()

	run := func(out string, maxMemory uint64) []int {
		var batches []int
		opt := DefaultOptions()
		opt.Threads = 1
		opt.Thresholds.MinCov = 0.3
		opt.ChunkSize = 3
		opt.MaxMemory = maxMemory
		opt.Progress = func(n int) { batches = append(batches, n) }
		a, err := NewAligner(db, db, pdb, true, opt)
		require.NoError(t, err)

		stats, err := a.Run(out, 0, pdb.Size())
		require.NoError(t, err)
		assert.Equal(t, pdb.Size(), stats.Queries)
		return batches
	}

	out1 := filepath.Join(dir, "aln1")
	batches := run(out1, math.MaxInt64)
	assert.Equal(t, []int{5, 5, 5, 5}, batches)

	// batches never cross chunks
	out2 := filepath.Join(dir, "aln2")
	batches = run(out2, 1)
	assert.Equal(t, []int{3, 3, 3, 3, 3, 3, 2}, batches)

	data1, err := os.ReadFile(out1)
	require.NoError(t, err)
	data2, err := os.ReadFile(out2)
	require.NoError(t, err)
	assert.Equal(t, data1, data2)
	assertSameDB(t, out1, out2)
}

func TestRealignAlternativeAlignments(t *testing.T) {
	dir := t.TempDir()
	r := rand.New(rand.NewSource(5))
	domain := randSeq(r, 60)
	var target []byte
	target = append(target, domain...)
	target = append(target, randSeq(r, 30)...)
	target = append(target, domain...)

	qdb := writeDB(t, filepath.Join(dir, "q"), kdb.AminoAcids, map[uint32][]byte{1: domain})
	tdb := writeDB(t, filepath.Join(dir, "t"), kdb.AminoAcids, map[uint32][]byte{7: target})
	pdb := writeDB(t, filepath.Join(dir, "pref"), kdb.PrefilterRes, map[uint32][]byte{
		1: candidates(7),
	})

	opt := DefaultOptions()
	opt.Realign = true
	opt.AltAlignments = 3
	opt.Thresholds = Thresholds{MaxEvalue: 1e-5, CovMode: CovQuery, MinCov: 0.9}
	a, err := NewAligner(qdb, tdb, pdb, false, opt)
	require.NoError(t, err)
	assert.Equal(t, StatsScoreCov, a.Modes.Stats)

	data, err := a.NewWorker(0).AlignQuery(0)
	require.NoError(t, err)
	rs, err := ParseResults(data, 1)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rs), 2)
	require.LessOrEqual(t, len(rs), 1+opt.AltAlignments)

	// the realigned primary alignment and the other copy of the domain
	spans := [][2]int{{rs[0].TStart, rs[0].TEnd}, {rs[1].TStart, rs[1].TEnd}}
	assert.ElementsMatch(t, [][2]int{{0, 60}, {90, 150}}, spans)
	for _, x := range rs[:2] {
		assert.Equal(t, uint32(7), x.TargetKey)
		assert.Equal(t, 0, x.QStart)
		assert.Equal(t, 60, x.QEnd)
		assert.Equal(t, "60M", x.Backtrace)
		assert.Equal(t, 1.0, x.SeqID)
		assert.Equal(t, 1.0, x.QCov)
	}

	// more alternatives only come from the linker between masked copies
	for _, x := range rs[2:] {
		assert.Equal(t, uint32(7), x.TargetKey)
		assert.GreaterOrEqual(t, x.TStart, 60)
		assert.LessOrEqual(t, x.TEnd, 90)
	}
}
