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
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Reader provides random access to the entries of a database.
// The data file is memory-mapped read-only, so a Reader is safe for
// concurrent use, and returned entries must not be modified.
type Reader struct {
	file string
	Info *Info

	keys    []uint32
	offsets []uint64
	lengths []uint32

	data   []byte
	mmaped bool
}

// NewReader opens a database. With preload, the whole data file is
// read into memory instead of being memory-mapped.
func NewReader(file string, preload bool) (*Reader, error) {
	info, err := ReadInfo(file)
	if err != nil {
		return nil, errors.Wrapf(err, "kdb: open %s", file)
	}

	r := &Reader{file: file, Info: info}
	err = r.readIndex()
	if err != nil {
		return nil, errors.Wrapf(err, "kdb: read index of %s", file)
	}

	if preload {
		r.data, err = os.ReadFile(file)
		if err != nil {
			return nil, err
		}
	} else {
		err = r.mmap()
		if err != nil {
			return nil, errors.Wrapf(err, "kdb: mmap %s", file)
		}
	}

	size := uint64(len(r.data))
	for i, o := range r.offsets {
		if o+uint64(r.lengths[i]) > size {
			r.Close()
			return nil, errors.Wrapf(ErrBrokenFile, "kdb: %s, entry %d", file, r.keys[i])
		}
	}
	return r, nil
}

func (r *Reader) mmap() error {
	fh, err := os.Open(r.file)
	if err != nil {
		return err
	}
	defer fh.Close()

	fi, err := fh.Stat()
	if err != nil {
		return err
	}
	if fi.Size() == 0 {
		return nil
	}
	r.data, err = unix.Mmap(int(fh.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return err
	}
	r.mmaped = true
	return nil
}

func (r *Reader) readIndex() error {
	fh, err := os.Open(IndexFile(r.file))
	if err != nil {
		return err
	}
	defer fh.Close()
	br := bufio.NewReaderSize(fh, BufferSize)

	buf := make([]byte, entrySize)

	// magic number
	_, err = io.ReadFull(br, buf[:8])
	if err != nil {
		return ErrBrokenFile
	}
	for i := 0; i < 8; i++ {
		if MagicIdx[i] != buf[i] {
			return ErrInvalidFileFormat
		}
	}

	// version
	_, err = io.ReadFull(br, buf[:8])
	if err != nil {
		return ErrBrokenFile
	}
	if MainVersion != buf[0] {
		return ErrVersionMismatch
	}

	// number of entries
	_, err = io.ReadFull(br, buf[:8])
	if err != nil {
		return ErrBrokenFile
	}
	n := int(be.Uint64(buf[:8]))

	r.keys = make([]uint32, n)
	r.offsets = make([]uint64, n)
	r.lengths = make([]uint32, n)
	for i := 0; i < n; i++ {
		_, err = io.ReadFull(br, buf)
		if err != nil {
			return ErrBrokenFile
		}
		r.keys[i] = be.Uint32(buf[:4])
		r.offsets[i] = be.Uint64(buf[4:12])
		r.lengths[i] = be.Uint32(buf[12:16])
	}
	return nil
}

// Close releases the memory mapping.
func (r *Reader) Close() error {
	if r.mmaped && r.data != nil {
		err := unix.Munmap(r.data)
		r.data = nil
		r.mmaped = false
		return err
	}
	r.data = nil
	return nil
}

// File returns the path of the data file.
func (r *Reader) File() string { return r.file }

// Type returns the database type.
func (r *Reader) Type() DBType { return r.Info.DBType() }

// Size returns the number of entries.
func (r *Reader) Size() int { return len(r.keys) }

// DataSize returns the size of the data file.
func (r *Reader) DataSize() int64 { return int64(len(r.data)) }

// Key returns the key of the entry with the given ordinal id.
func (r *Reader) Key(id int) uint32 { return r.keys[id] }

// Len returns the length of the entry with the given ordinal id.
func (r *Reader) Len(id int) int { return int(r.lengths[id]) }

// Data returns the entry with the given ordinal id.
func (r *Reader) Data(id int) []byte {
	o := r.offsets[id]
	return r.data[o : o+uint64(r.lengths[id]) : o+uint64(r.lengths[id])]
}

// ID returns the ordinal id of the first entry of a key.
func (r *Reader) ID(key uint32) (int, bool) {
	i := sort.Search(len(r.keys), func(i int) bool { return r.keys[i] >= key })
	if i < len(r.keys) && r.keys[i] == key {
		return i, true
	}
	return -1, false
}

// DataByKey returns the entry of a key.
func (r *Reader) DataByKey(key uint32) ([]byte, bool) {
	id, ok := r.ID(key)
	if !ok {
		return nil, false
	}
	return r.Data(id), true
}

// TotalLen returns the total length of all entries.
func (r *Reader) TotalLen() int64 {
	var n int64
	for _, l := range r.lengths {
		n += int64(l)
	}
	return n
}

// Release tells the kernel the pages of entries [from, to) are no
// longer needed. Later reads of these entries stay valid and fault
// the pages in again. It does nothing if the data are preloaded.
func (r *Reader) Release(from, to int) error {
	if !r.mmaped || from >= to {
		return nil
	}
	if from < 0 {
		from = 0
	}
	if to > len(r.keys) {
		to = len(r.keys)
	}

	var start, end uint64
	start = uint64(len(r.data))
	for i := from; i < to; i++ {
		if r.offsets[i] < start {
			start = r.offsets[i]
		}
		if e := r.offsets[i] + uint64(r.lengths[i]); e > end {
			end = e
		}
	}
	if start >= end {
		return nil
	}

	// madvise needs page-aligned addresses
	page := uint64(os.Getpagesize())
	start = start / page * page
	if end%page != 0 {
		end = (end/page + 1) * page
	}
	if end > uint64(len(r.data)) {
		end = uint64(len(r.data))
	}
	return unix.Madvise(r.data[start:end], unix.MADV_DONTNEED)
}
