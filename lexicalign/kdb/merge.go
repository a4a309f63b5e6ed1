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
	"os"

	"github.com/pkg/errors"
)

// Merge concatenates the data files of databases in the given order
// into a new database, and writes an index sorted by key. Entries with
// the same key keep the order of parts.
func Merge(out string, typ DBType, parts []string) error {
	fh, err := os.Create(out)
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(fh, BufferSize)

	var index []entry
	var offset uint64
	var r *Reader
	for _, part := range parts {
		r, err = NewReader(part, false)
		if err != nil {
			fh.Close()
			return errors.Wrapf(err, "kdb: merge %s", part)
		}
		if typ == Unknown {
			typ = r.Type()
		}

		_, err = bw.Write(r.data)
		if err != nil {
			r.Close()
			fh.Close()
			return err
		}
		for i, k := range r.keys {
			index = append(index, entry{key: k, offset: offset + r.offsets[i], length: r.lengths[i]})
		}
		offset += uint64(len(r.data))

		if err = r.Close(); err != nil {
			fh.Close()
			return err
		}
	}

	if err = bw.Flush(); err != nil {
		fh.Close()
		return err
	}
	if err = fh.Close(); err != nil {
		return err
	}

	index = sortEntries(index)
	if err = writeIndex(out, index); err != nil {
		return err
	}
	return WriteInfo(out, &Info{
		MainVersion:  MainVersion,
		MinorVersion: MinorVersion,
		Type:         typ.String(),
		Entries:      len(index),
		DataSize:     int64(offset),
		Source:       "merged",
	})
}
