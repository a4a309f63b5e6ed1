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
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// Info is the content of the information file of a database.
type Info struct {
	MainVersion  uint8 `toml:"main-version" comment:"Database format version"`
	MinorVersion uint8 `toml:"minor-version"`

	Type     string `toml:"type" comment:"Database type"`
	Entries  int    `toml:"entries" comment:"Number of entries and total size of the data file"`
	DataSize int64  `toml:"data-size"`

	Source string `toml:"source,omitempty" comment:"How it was created"`
}

// DBType returns the parsed database type.
func (info *Info) DBType() DBType {
	return ParseDBType(info.Type)
}

func (info Info) String() string {
	return fmt.Sprintf("%s database v%d.%d: %d entries, %d bytes",
		info.Type, info.MainVersion, info.MinorVersion, info.Entries, info.DataSize)
}

// WriteInfo writes the information file of a database.
func WriteInfo(file string, info *Info) error {
	data, err := toml.Marshal(info)
	if err != nil {
		return errors.Wrap(err, "kdb: marshal info")
	}
	return os.WriteFile(InfoFile(file), data, 0644)
}

// ReadInfo reads the information file of a database.
func ReadInfo(file string) (*Info, error) {
	data, err := os.ReadFile(InfoFile(file))
	if err != nil {
		return nil, err
	}
	var info Info
	err = toml.NewDecoder(bytes.NewReader(data)).Decode(&info)
	if err != nil {
		return nil, errors.Wrapf(err, "kdb: parse %s", InfoFile(file))
	}
	if info.MainVersion != MainVersion {
		return nil, ErrVersionMismatch
	}
	return &info, nil
}
