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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shenwei356/LexicAlign/lexicalign/kdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkPartition(t *testing.T, shards []Shard, weights []int64, n int) {
	require.Len(t, shards, n)
	var next int
	var total int64
	for i, s := range shards {
		assert.Equal(t, i, s.Rank)
		assert.Equal(t, next, s.From, "gap or overlap before shard %d", i)
		assert.GreaterOrEqual(t, s.Size, 0)
		var w int64
		for j := s.From; j < s.From+s.Size; j++ {
			w += weights[j]
		}
		assert.Equal(t, w, s.Weight)
		total += w
		next = s.From + s.Size
	}
	assert.Equal(t, len(weights), next)

	var sum int64
	for _, w := range weights {
		sum += w
	}
	assert.Equal(t, sum, total)
}

func TestDecomposeByWeight(t *testing.T) {
	// candidate lists of very different sizes
	weights := make([]int64, 1000)
	var max int64
	for i := range weights {
		weights[i] = int64((i*7919)%97+1) * int64(i%5+1)
		if weights[i] > max {
			max = weights[i]
		}
	}
	var total int64
	for _, w := range weights {
		total += w
	}

	for _, n := range []int{1, 2, 3, 7, 16} {
		shards := DecomposeByWeight(weights, n)
		checkPartition(t, shards, weights, n)

		// each shard is within one record of an equal split
		for _, s := range shards {
			assert.InDelta(t, float64(total)/float64(n), float64(s.Weight), float64(max),
				"n: %d, %s", n, s)
		}
		mean, _ := ShardBalance(shards)
		assert.InDelta(t, float64(total)/float64(n), mean, 1e-6)
	}

	// more ranks than queries
	shards := DecomposeByWeight([]int64{5, 1}, 4)
	checkPartition(t, shards, []int64{5, 1}, 4)

	// empty entries are split by counts
	zeros := make([]int64, 10)
	shards = DecomposeByWeight(zeros, 3)
	checkPartition(t, shards, zeros, 3)
	for _, s := range shards {
		assert.InDelta(t, 10.0/3, float64(s.Size), 1)
	}

	shards = DecomposeByWeight(nil, 2)
	checkPartition(t, shards, nil, 2)
}

func TestFileBarrier(t *testing.T) {
	out := filepath.Join(t.TempDir(), "aln")
	b := NewFileBarrier(out, 3)
	b.PollInterval = 50 * time.Millisecond

	require.NoError(t, b.Arrive(0))
	assert.Error(t, b.Arrive(3))

	// markers of another run or in an unknown format
	other := NewFileBarrier(out, 3)
	other.RunID = "another"
	require.NoError(t, other.Arrive(1))
	require.NoError(t, os.WriteFile(b.Marker(2), []byte("2\n"), 0644))
	assert.Equal(t, 1, b.Arrived())
	assert.Equal(t, []int{1, 2}, b.Stale())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	err := b.Wait(ctx)
	cancel()
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	go func() {
		time.Sleep(50 * time.Millisecond)
		b.Arrive(2)
		b.Arrive(1)
	}()
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, b.Wait(ctx))
	assert.Equal(t, 3, b.Arrived())

	require.NoError(t, b.Clean())
	assert.Equal(t, 0, b.Arrived())
}

func TestRunRankStaleMarkers(t *testing.T) {
	dir := t.TempDir()
	db, pdb := similarDBs(t, dir, 8)

	newAligner := func(minSeqID float64) *Aligner {
		opt := DefaultOptions()
		opt.Thresholds.MinCov = 0.3
		opt.Thresholds.MinSeqID = minSeqID
		a, err := NewAligner(db, db, pdb, true, opt)
		require.NoError(t, err)
		return a
	}
	a := newAligner(0)
	assert.Equal(t, a.RunID(), newAligner(0).RunID())
	assert.NotEqual(t, a.RunID(), newAligner(0.5).RunID())

	out := filepath.Join(dir, "aln")
	staleKey := pdb.Key(pdb.Size() - 1)

	// a part and a marker of rank 1 left by an earlier run
	w, err := kdb.NewWriter(TmpOutput(out, 1), kdb.AlignmentRes, 1)
	require.NoError(t, err)
	require.NoError(t, w.WriteData([]byte("STALE\n"), staleKey, 0))
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(NewFileBarrier(out, 2).Marker(1), []byte("1\n"), 0644))

	runAlone := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()
		_, err := a.RunRank(ctx, out, 0, 2)
		return err
	}
	assert.ErrorIs(t, runAlone(), context.DeadlineExceeded)
	assert.False(t, kdb.Exists(out))

	// rank 1 finished with other options
	b := newAligner(0.5)
	barrier := NewFileBarrier(out, 2)
	barrier.RunID = b.RunID()
	require.NoError(t, barrier.Arrive(1))
	assert.ErrorIs(t, runAlone(), context.DeadlineExceeded)
	assert.False(t, kdb.Exists(out))

	// both ranks of this run
	go func() {
		time.Sleep(100 * time.Millisecond)
		a.RunRank(context.Background(), out, 1, 2)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err = a.RunRank(ctx, out, 0, 2)
	require.NoError(t, err)

	ref := filepath.Join(dir, "ref")
	_, err = a.Run(ref, 0, pdb.Size())
	require.NoError(t, err)
	assertSameDB(t, ref, out)

	adb, err := kdb.NewReader(out, true)
	require.NoError(t, err)
	defer adb.Close()
	data, ok := adb.DataByKey(staleKey)
	require.True(t, ok)
	assert.NotEqual(t, "STALE\n", string(data))
}
