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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// FileBarrier synchronizes processes sharing a file system. Each rank
// creates a marker file when it finishes, and the coordinator waits
// for markers of all ranks.
//
// A marker records the RunID of the barrier. Markers of other runs,
// e.g., left by a crashed one, are not counted as arrivals.
type FileBarrier struct {
	out   string
	ranks int

	RunID string

	// markers are checked periodically in case file events are missed
	PollInterval time.Duration
}

// NewFileBarrier creates a FileBarrier for an output database.
func NewFileBarrier(out string, ranks int) *FileBarrier {
	return &FileBarrier{out: out, ranks: ranks, PollInterval: 2 * time.Second}
}

// Marker returns the marker file of a rank.
func (b *FileBarrier) Marker(rank int) string {
	return fmt.Sprintf("%s.%d.done", b.out, rank)
}

// Arrive marks a rank as finished. The marker is written to a temporary
// file and then renamed, so it never appears incomplete.
func (b *FileBarrier) Arrive(rank int) error {
	if rank < 0 || rank >= b.ranks {
		return errors.Errorf("align: rank %d out of range [0, %d)", rank, b.ranks)
	}
	file := b.Marker(rank)
	tmp := file + ".tmp"
	data, err := toml.Marshal(&marker{Rank: rank, RunID: b.RunID})
	if err != nil {
		return errors.Wrap(err, "align: marshal marker")
	}
	if err = os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, file)
}

type marker struct {
	Rank  int    `toml:"rank"`
	RunID string `toml:"run-id"`
}

// arrived checks if the marker of a rank belongs to this run.
func (b *FileBarrier) arrived(rank int) bool {
	data, err := os.ReadFile(b.Marker(rank))
	if err != nil {
		return false
	}
	var m marker
	if err = toml.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return false
	}
	return m.Rank == rank && m.RunID == b.RunID
}

// Arrived returns the number of finished ranks of this run.
func (b *FileBarrier) Arrived() int {
	var n int
	for r := 0; r < b.ranks; r++ {
		if b.arrived(r) {
			n++
		}
	}
	return n
}

// Stale returns ranks with markers of other runs.
func (b *FileBarrier) Stale() []int {
	var ranks []int
	for r := 0; r < b.ranks; r++ {
		if _, err := os.Stat(b.Marker(r)); err == nil && !b.arrived(r) {
			ranks = append(ranks, r)
		}
	}
	return ranks
}

// Wait blocks until all ranks are finished or the context is done.
func (b *FileBarrier) Wait(ctx context.Context) error {
	if b.Arrived() == b.ranks {
		return nil
	}

	var events chan fsnotify.Event
	var errs chan error
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if err = watcher.Add(filepath.Dir(b.out)); err == nil {
			events, errs = watcher.Events, watcher.Errors
		}
	}

	interval := b.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prefix := filepath.Base(b.out) + "."
	for {
		if b.Arrived() == b.ranks {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			name := filepath.Base(event.Name)
			if !(event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)) ||
				!strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".done") {
				continue
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		case <-ticker.C:
		}
	}
}

// Leave removes the marker of a rank.
func (b *FileBarrier) Leave(rank int) error {
	err := os.Remove(b.Marker(rank))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Clean removes all marker files.
func (b *FileBarrier) Clean() error {
	for r := 0; r < b.ranks; r++ {
		if err := b.Leave(r); err != nil {
			return err
		}
	}
	return nil
}
