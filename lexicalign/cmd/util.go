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

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/iafan/cwalk"
	"github.com/pkg/errors"
	"github.com/shenwei356/LexicAlign/lexicalign/kdb"
	"github.com/shenwei356/util/pathutil"
	"github.com/spf13/cobra"
	"github.com/twotwotwo/sorts"
)

// Options contains the global flags
type Options struct {
	NumCPUs int
	Verbose bool

	LogFile  string
	Log2File bool

	Compress         bool
	CompressionLevel int
}

func getOptions(cmd *cobra.Command) *Options {
	threads := getFlagNonNegativeInt(cmd, "threads")
	if threads == 0 {
		threads = runtime.NumCPU()
	}

	sorts.MaxProcs = threads
	runtime.GOMAXPROCS(threads)

	logfile := getFlagPath(cmd, "log")
	return &Options{
		NumCPUs: threads,
		Verbose: !getFlagBool(cmd, "quiet"),

		LogFile:  logfile,
		Log2File: logfile != "",

		Compress:         true,
		CompressionLevel: -1,
	}
}

// checkLogFile makes sure the log file is not one of the outputs,
// and tees logs to it.
func checkLogFile(opt *Options, outputs ...string) *os.File {
	if !opt.Log2File {
		return nil
	}
	rl, err := filepath.Abs(opt.LogFile)
	if err != nil {
		checkError(fmt.Errorf("failed to check log file: %s", err))
	}
	for _, out := range outputs {
		if isStdin(out) {
			continue
		}
		ro, err := filepath.Abs(out)
		if err != nil {
			checkError(fmt.Errorf("failed to check output file: %s", err))
		}
		if ro == rl {
			checkError(fmt.Errorf("output file and log file should not be the same: %s", out))
		}
	}
	return addLog(opt.LogFile, opt.Verbose)
}

// checkDB makes sure a database exists.
func checkDB(file string, name string) {
	if file == "" {
		checkError(fmt.Errorf("flag --%s needed", name))
	}
	ok, err := pathutil.Exists(file)
	checkError(errors.Wrap(err, file))
	if !ok || !kdb.Exists(file) {
		checkError(fmt.Errorf("database not found or incomplete: %s", file))
	}
}

// checkOutputDB removes an existing output database with force,
// or reports an error.
func checkOutputDB(file string, force bool, verbose bool) {
	if file == "" {
		checkError(fmt.Errorf("an output database is needed"))
	}
	dir := filepath.Dir(file)
	existed, err := pathutil.DirExists(dir)
	checkError(errors.Wrap(err, dir))
	if !existed {
		checkError(os.MkdirAll(dir, 0777))
	}

	if !kdb.Exists(file) {
		return
	}
	if !force {
		checkError(fmt.Errorf("output database existed: %s, use --force to overwrite", file))
	}
	if verbose {
		log.Infof("removing old output database: %s", file)
	}
	checkError(kdb.Remove(file))
}

func getFileListFromDir(path string, pattern *regexp.Regexp, threads int) ([]string, error) {
	files := make([]string, 0, 512)
	ch := make(chan string, threads)
	done := make(chan int)
	go func() {
		for file := range ch {
			files = append(files, file)
		}
		done <- 1
	}()

	cwalk.NumWorkers = threads
	err := cwalk.WalkWithSymlinks(path, func(_path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && pattern.MatchString(info.Name()) {
			ch <- filepath.Join(path, _path)
		}
		return nil
	})
	close(ch)
	<-done
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, err
}

var defaultExts = []string{".gz", ".xz", ".zst", ".bz2"}

// filepathTrimExtension returns the name, the extension, and the
// compression extension of a file.
func filepathTrimExtension(file string, suffixes []string) (string, string, string) {
	if suffixes == nil {
		suffixes = defaultExts
	}

	var e1, e2 string
	f := strings.ToLower(file)
	for _, s := range suffixes {
		if strings.HasSuffix(f, s) {
			e2 = s
			file = file[0 : len(file)-len(s)]
			break
		}
	}

	e1 = filepath.Ext(file)
	name := file[0 : len(file)-len(e1)]

	return name, e1, e2
}
