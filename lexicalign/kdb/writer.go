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

package kdb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/twotwotwo/sorts/sortutil"
)

// Writer writes a database with multiple slots. Each slot owns its
// own temporary data file, so different goroutines can write to
// different slots without locking. A slot must not be shared by
// goroutines.
//
// Close concatenates the slot files in slot order into the data file
// and writes the index sorted by key.
type Writer struct {
	file  string
	typ   DBType
	slots []*slot

	Source string // saved in the information file
}

type slot struct {
	file  string
	fh    *os.File
	w     *bufio.Writer
	size  uint64
	index []entry
}

// NewWriter creates a Writer with the given number of slots.
func NewWriter(file string, typ DBType, slots int) (*Writer, error) {
	if slots < 1 {
		slots = 1
	}
	w := &Writer{file: file, typ: typ, slots: make([]*slot, slots)}
	for i := range w.slots {
		f := fmt.Sprintf("%s.tmp.%d", file, i)
		fh, err := os.Create(f)
		if err != nil {
			w.removeTmp()
			return nil, errors.Wrapf(err, "kdb: create slot file %s", f)
		}
		w.slots[i] = &slot{
			file:  f,
			fh:    fh,
			w:     bufio.NewWriterSize(fh, BufferSize),
			index: make([]entry, 0, 1024),
		}
	}
	return w, nil
}

// Slots returns the number of slots.
func (w *Writer) Slots() int { return len(w.slots) }

// WriteData appends an entry of the key to a slot.
// An empty entry is valid and is recorded in the index.
func (w *Writer) WriteData(data []byte, key uint32, s int) error {
	if s < 0 || s >= len(w.slots) {
		return ErrInvalidSlot
	}
	sl := w.slots[s]
	_, err := sl.w.Write(data)
	if err != nil {
		return errors.Wrapf(err, "kdb: write entry %d", key)
	}
	sl.index = append(sl.index, entry{key: key, offset: sl.size, length: uint32(len(data))})
	sl.size += uint64(len(data))
	return nil
}

// Close finishes writing. The Writer should not be used after Close.
func (w *Writer) Close() error {
	for _, sl := range w.slots {
		if err := sl.w.Flush(); err != nil {
			return err
		}
		if err := sl.fh.Close(); err != nil {
			return err
		}
	}

	fh, err := os.Create(w.file)
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(fh, BufferSize)

	n := 0
	for _, sl := range w.slots {
		n += len(sl.index)
	}
	index := make([]entry, 0, n)

	var offset uint64
	for _, sl := range w.slots {
		err = appendFile(bw, sl.file)
		if err != nil {
			fh.Close()
			return err
		}
		for _, e := range sl.index {
			e.offset += offset
			index = append(index, e)
		}
		offset += sl.size
	}
	if err = bw.Flush(); err != nil {
		fh.Close()
		return err
	}
	if err = fh.Close(); err != nil {
		return err
	}
	w.removeTmp()

	index = sortEntries(index)
	err = writeIndex(w.file, index)
	if err != nil {
		return err
	}

	return WriteInfo(w.file, &Info{
		MainVersion:  MainVersion,
		MinorVersion: MinorVersion,
		Type:         w.typ.String(),
		Entries:      len(index),
		DataSize:     int64(offset),
		Source:       w.Source,
	})
}

func (w *Writer) removeTmp() {
	for _, sl := range w.slots {
		if sl == nil {
			continue
		}
		sl.fh.Close()
		os.Remove(sl.file)
	}
}

// appendFile copies the content of a file to w.
func appendFile(w io.Writer, file string) error {
	fh, err := os.Open(file)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, fh)
	if err != nil {
		fh.Close()
		return errors.Wrapf(err, "kdb: copy %s", file)
	}
	return fh.Close()
}

// sortEntries sorts entries by key. Entries with the same key keep
// their order of writing.
func sortEntries(index []entry) []entry {
	sorted := true
	for i := 1; i < len(index); i++ {
		if index[i].key < index[i-1].key {
			sorted = false
			break
		}
	}
	if sorted {
		return index
	}

	packed := make([]uint64, len(index))
	for i, e := range index {
		packed[i] = uint64(e.key)<<32 | uint64(i)
	}
	sortutil.Uint64s(packed)

	index2 := make([]entry, len(index))
	for i, p := range packed {
		index2[i] = index[p&4294967295]
	}
	return index2
}

func writeIndex(file string, index []entry) error {
	fh, err := os.Create(IndexFile(file))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(fh, BufferSize)

	err = binary.Write(bw, be, MagicIdx)
	if err != nil {
		fh.Close()
		return err
	}
	err = binary.Write(bw, be, [8]uint8{MainVersion, MinorVersion})
	if err != nil {
		fh.Close()
		return err
	}

	buf := make([]byte, entrySize)
	be.PutUint64(buf[:8], uint64(len(index)))
	bw.Write(buf[:8])
	for _, e := range index {
		be.PutUint32(buf[:4], e.key)
		be.PutUint64(buf[4:12], e.offset)
		be.PutUint32(buf[12:16], e.length)
		_, err = bw.Write(buf)
		if err != nil {
			fh.Close()
			return err
		}
	}

	if err = bw.Flush(); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}
