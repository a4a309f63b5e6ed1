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

// Package kdb implements a keyed database: a data file of concatenated
// entries, a binary index file mapping integer keys to entries,
// and an information file in TOML format.
//
// Sequence databases, candidate (prefilter) databases and alignment
// result databases share this layout, so the output of one stage
// can be the input of the next.
//
// Files of a database "db":
//
//	db            data file, entries concatenated, no header.
//	db.index      index file.
//	db.info.toml  information file, including the database type.
//
// Index file (big endian):
//
//	Magic number, 8 bytes, ".kdb-idx".
//	Main and minor versions, 2 bytes.
//	Blank, 6 bytes.
//	Number of entries, 8 bytes.
//
//	For each entry, sorted by key (and by offset for identical keys):
//
//		Key, 4 bytes.
//		Offset in the data file, 8 bytes.
//		Entry length, 4 bytes.
package kdb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
)

var be = binary.BigEndian

// Magic number of the index file.
var MagicIdx = [8]byte{'.', 'k', 'd', 'b', '-', 'i', 'd', 'x'}

// IndexFileExt is the file extension of the index file.
var IndexFileExt = ".index"

// InfoFileExt is the file extension of the information file.
var InfoFileExt = ".info.toml"

// HeaderDBSuffix is appended to the name of a sequence database
// to name the database of sequence headers.
var HeaderDBSuffix = "_h"

// MainVersion is use for checking compatibility
var MainVersion uint8 = 0

// MinorVersion is less important
var MinorVersion uint8 = 1

// BufferSize is size of reading and writing buffer
var BufferSize = 65536

// entrySize is the size of an index record.
const entrySize = 16

// ErrInvalidFileFormat means invalid file format.
var ErrInvalidFileFormat = errors.New("kdb: invalid binary format")

// ErrBrokenFile means the file is not complete.
var ErrBrokenFile = errors.New("kdb: broken file")

// ErrVersionMismatch means version mismatch between files and program
var ErrVersionMismatch = errors.New("kdb: version mismatch")

// ErrKeyNotFound means the key does not exist in the database.
var ErrKeyNotFound = errors.New("kdb: key not found")

// ErrInvalidSlot means a writer slot out of range.
var ErrInvalidSlot = errors.New("kdb: invalid writer slot")

// DBType is the type of data stored in a database.
type DBType uint8

const (
	Unknown DBType = iota
	AminoAcids
	Nucleotides
	HMMProfile
	ProfileStateSeq
	ProfileStateProfile // only derived at runtime, never stored
	PrefilterRes
	PrefilterRevRes
	AlignmentRes
	Generic
)

var dbTypeNames = []string{
	Unknown:             "unknown",
	AminoAcids:          "aminoacid",
	Nucleotides:         "nucleotide",
	HMMProfile:          "profile",
	ProfileStateSeq:     "profile-state",
	ProfileStateProfile: "profile-state-profile",
	PrefilterRes:        "prefilter",
	PrefilterRevRes:     "prefilter-rev",
	AlignmentRes:        "alignment",
	Generic:             "generic",
}

func (t DBType) String() string {
	if int(t) < len(dbTypeNames) {
		return dbTypeNames[t]
	}
	return dbTypeNames[Unknown]
}

// ParseDBType returns the DBType of a name, Unknown for unrecognized names.
func ParseDBType(s string) DBType {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range dbTypeNames {
		if name == s {
			return DBType(i)
		}
	}
	return Unknown
}

// IsSequence tells whether the type is a sequence or profile type.
func (t DBType) IsSequence() bool {
	switch t {
	case AminoAcids, Nucleotides, HMMProfile, ProfileStateSeq, ProfileStateProfile:
		return true
	}
	return false
}

// entry is an index record.
type entry struct {
	key    uint32
	offset uint64
	length uint32
}

// IndexFile returns the path of the index file of a database.
func IndexFile(file string) string {
	return file + IndexFileExt
}

// InfoFile returns the path of the information file of a database.
func InfoFile(file string) string {
	return file + InfoFileExt
}

// Exists checks whether all three files of a database exist.
func Exists(file string) bool {
	for _, f := range []string{file, IndexFile(file), InfoFile(file)} {
		if _, err := os.Stat(f); err != nil {
			return false
		}
	}
	return true
}

// Remove deletes all files of a database.
func Remove(file string) error {
	for _, f := range []string{file, IndexFile(file), InfoFile(file)} {
		err := os.Remove(f)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("kdb: failed to remove %s: %s", f, err)
		}
	}
	return nil
}
