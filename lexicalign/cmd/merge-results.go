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
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shenwei356/LexicAlign/lexicalign/align"
	"github.com/shenwei356/LexicAlign/lexicalign/kdb"
	"github.com/spf13/cobra"
)

var mergeResultsCmd = &cobra.Command{
	Use:   "merge-results",
	Short: "Merge alignment databases of ranks",
	Long: `Merge alignment databases of ranks

Attention:
  1. Alignment databases of ranks (<out db>.<rank>) are merged in the order
     of ranks. Use it when a run with --split did not finish merging.
  2. Databases can be given via positional arguments, in the given order,
     or discovered in a directory with -I/--in-dir, whose names are
     "<name>.<rank>" for the output database "<name>".

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		outDB := getFlagPath(cmd, "out-db")
		inDir := getFlagPath(cmd, "in-dir")
		force := getFlagBool(cmd, "force")
		removeParts := getFlagBool(cmd, "remove-parts")

		parts := args
		if inDir != "" {
			if len(parts) > 0 {
				checkError(fmt.Errorf("positional arguments are not allowed with -I/--in-dir"))
			}
			var err error
			parts, err = findRankParts(inDir, filepath.Base(outDB), opt.NumCPUs)
			checkError(err)
		}
		if len(parts) == 0 {
			checkError(fmt.Errorf("no input databases given"))
		}
		for _, part := range parts {
			checkDB(part, "in-dir")
		}

		checkOutputDB(outDB, force, opt.Verbose)

		if opt.Verbose {
			log.Infof("merging %d databases ...", len(parts))
		}
		checkError(kdb.Merge(outDB, kdb.AlignmentRes, parts))

		info, err := kdb.ReadInfo(outDB)
		checkError(err)
		if opt.Verbose {
			log.Infof("%s entries (%s) saved to: %s",
				humanize.Comma(int64(info.Entries)), humanize.Bytes(uint64(info.DataSize)), outDB)
		}

		if removeParts {
			for _, part := range parts {
				checkError(kdb.Remove(part))
			}
			checkError(align.NewFileBarrier(outDB, len(parts)).Clean())
		}
	},
}

// findRankParts finds databases of ranks of an output in a directory,
// sorted by ranks.
func findRankParts(dir string, name string, threads int) ([]string, error) {
	pattern := regexp.MustCompile("^" + regexp.QuoteMeta(name) + `\.(\d+)` + regexp.QuoteMeta(kdb.InfoFileExt) + "$")
	files, err := getFileListFromDir(dir, pattern, threads)
	if err != nil {
		return nil, err
	}

	type part struct {
		rank int
		file string
	}
	parts := make([]part, 0, len(files))
	for _, file := range files {
		m := pattern.FindStringSubmatch(filepath.Base(file))
		rank, _ := strconv.Atoi(m[1])
		parts = append(parts, part{rank: rank, file: strings.TrimSuffix(file, kdb.InfoFileExt)})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].rank < parts[j].rank })

	for i, p := range parts {
		if p.rank != i {
			return nil, fmt.Errorf("database of rank %d not found in %s", i, dir)
		}
	}

	dbs := make([]string, len(parts))
	for i, p := range parts {
		dbs[i] = p.file
	}
	return dbs, nil
}

func init() {
	utilsCmd.AddCommand(mergeResultsCmd)

	mergeResultsCmd.Flags().StringP("out-db", "o", "",
		formatFlagUsage(`Output alignment database.`))

	mergeResultsCmd.Flags().StringP("in-dir", "I", "",
		formatFlagUsage(`Directory containing databases of ranks.`))

	mergeResultsCmd.Flags().BoolP("force", "", false,
		formatFlagUsage(`Overwrite existing output database.`))

	mergeResultsCmd.Flags().BoolP("remove-parts", "", false,
		formatFlagUsage(`Remove databases of ranks and marker files after merging.`))

	mergeResultsCmd.SetUsageTemplate(usageTemplate("[<aln db of rank 0> ...] -o <out db>"))
}
