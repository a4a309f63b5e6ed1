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
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/shenwei356/LexicAlign/lexicalign/align"
	"github.com/shenwei356/LexicAlign/lexicalign/kdb"
	"github.com/spf13/cobra"
)

var allVsAllCmd = &cobra.Command{
	Use:   "all-vs-all",
	Short: "Create a prefilter database of all query-target pairs",
	Long: `Create a prefilter database of all query-target pairs

It's useful for small databases or testing, where every target is a
candidate of every query. Candidates carry no diagonal hints. With
--both-strands, records have three fields and a diagonal of 0, so please
run "lexicalign align" with --band 0.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		queryDB := getFlagPath(cmd, "query-db")
		targetDB := getFlagPath(cmd, "target-db")
		outDB := getFlagPath(cmd, "out-db")
		force := getFlagBool(cmd, "force")
		reverse := getFlagBool(cmd, "both-strands")

		if targetDB == "" {
			targetDB = queryDB
		}
		checkDB(queryDB, "query-db")
		checkDB(targetDB, "target-db")
		checkOutputDB(outDB, force, opt.Verbose)

		qdb, err := kdb.NewReader(queryDB, false)
		checkError(err)
		defer qdb.Close()
		tdb, err := kdb.NewReader(targetDB, false)
		checkError(err)
		defer tdb.Close()

		typ := kdb.PrefilterRes
		if reverse {
			if tdb.Type() != kdb.Nucleotides {
				checkError(fmt.Errorf("flag --both-strands only works for nucleotide sequences"))
			}
			typ = kdb.PrefilterRevRes
		}

		w, err := kdb.NewWriter(outDB, typ, 1)
		checkError(err)
		w.Source = "all-vs-all: " + queryDB + " " + targetDB

		buf := make([]byte, 0, 1<<20)
		c := align.Candidate{Diagonal: align.DiagonalUnknown}
		for i := 0; i < qdb.Size(); i++ {
			buf = buf[:0]
			for j := 0; j < tdb.Size(); j++ {
				if !reverse {
					buf = strconv.AppendUint(buf, uint64(tdb.Key(j)), 10)
					buf = append(buf, '\n')
					continue
				}
				c.Key = tdb.Key(j)
				buf = align.AppendCandidate(buf, c, 0)
				buf = align.AppendCandidate(buf, c, 1)
			}
			checkError(w.WriteData(buf, qdb.Key(i), 0))
		}
		checkError(w.Close())

		if opt.Verbose {
			pairs := int64(qdb.Size()) * int64(tdb.Size())
			if reverse {
				pairs *= 2
			}
			log.Infof("%s candidate pairs of %s queries saved to: %s",
				humanize.Comma(pairs), humanize.Comma(int64(qdb.Size())), outDB)
		}
	},
}

func init() {
	utilsCmd.AddCommand(allVsAllCmd)

	allVsAllCmd.Flags().StringP("query-db", "q", "",
		formatFlagUsage(`Query sequence database.`))

	allVsAllCmd.Flags().StringP("target-db", "t", "",
		formatFlagUsage(`Target sequence database, the query database by default.`))

	allVsAllCmd.Flags().StringP("out-db", "o", "",
		formatFlagUsage(`Output prefilter database.`))

	allVsAllCmd.Flags().BoolP("force", "", false,
		formatFlagUsage(`Overwrite existing output database.`))

	allVsAllCmd.Flags().BoolP("both-strands", "", false,
		formatFlagUsage(`Add candidates of reverse strands, for nucleotide sequences.`))

	allVsAllCmd.SetUsageTemplate(usageTemplate("-q <query db> [-t <target db>] -o <out db>"))
}
