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
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/shenwei356/LexicAlign/lexicalign/align"
	"github.com/shenwei356/LexicAlign/lexicalign/kdb"
	"github.com/spf13/cobra"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Convert an alignment database into a table",
	Long: `Convert an alignment database into a table

Attention:
  1. Sequence IDs are shown when the header databases (<db>_h) of query
     and target databases exist, otherwise keys are shown.
  2. Positions are 0-based and ends are exclusive, use --one-based for
     1-based closed positions.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		alnDB := getFlagPath(cmd, "aln-db")
		queryDB := getFlagPath(cmd, "query-db")
		targetDB := getFlagPath(cmd, "target-db")
		outFile := getFlagPath(cmd, "out-file")
		oneBased := getFlagBool(cmd, "one-based")
		noHeader := getFlagBool(cmd, "no-header-row")

		checkDB(alnDB, "aln-db")
		if targetDB == "" {
			targetDB = queryDB
		}

		adb, err := kdb.NewReader(alnDB, false)
		checkError(err)
		defer adb.Close()
		if adb.Type() != kdb.AlignmentRes {
			checkError(fmt.Errorf("not an alignment database: %s (%s)", alnDB, adb.Type()))
		}

		qNames := openHeaderDB(queryDB, opt.Verbose)
		if qNames != nil {
			defer qNames.Close()
		}
		tNames := qNames
		if targetDB != queryDB {
			tNames = openHeaderDB(targetDB, opt.Verbose)
			if tNames != nil {
				defer tNames.Close()
			}
		}

		outfh, gw, w, err := outStream(outFile, strings.HasSuffix(outFile, ".gz"), opt.CompressionLevel)
		checkError(err)
		defer func() {
			outfh.Flush()
			if gw != nil {
				gw.Close()
			}
			w.Close()
		}()

		if !noHeader {
			fmt.Fprintln(outfh, "query\ttarget\tscore\tseqid\tevalue\tqstart\tqend\tqlen\ttstart\ttend\ttlen\talnlen\tqcov\ttcov\tstrand\tbacktrace")
		}

		var n int
		var qname, tname string
		buf := make([]byte, 0, 1024)
		offset := 0
		if oneBased {
			offset = 1
		}
		for i := 0; i < adb.Size(); i++ {
			qkey := adb.Key(i)
			rs, err := align.ParseResults(adb.Data(i), qkey)
			checkError(err)
			if len(rs) == 0 {
				continue
			}
			qname = seqName(qNames, qkey)

			for _, r := range rs {
				tname = seqName(tNames, r.TargetKey)
				buf = buf[:0]
				buf = append(buf, qname...)
				buf = append(buf, '\t')
				buf = append(buf, tname...)
				buf = append(buf, '\t')
				buf = strconv.AppendInt(buf, int64(r.Score), 10)
				buf = append(buf, '\t')
				buf = strconv.AppendFloat(buf, r.SeqID, 'f', 3, 64)
				buf = append(buf, '\t')
				buf = strconv.AppendFloat(buf, r.Evalue, 'e', 2, 64)
				buf = append(buf, '\t')
				buf = appendPositions(buf, r.QStart, r.QEnd, offset)
				buf = append(buf, '\t')
				buf = strconv.AppendInt(buf, int64(r.QLen), 10)
				buf = append(buf, '\t')
				buf = appendPositions(buf, r.TStart, r.TEnd, offset)
				buf = append(buf, '\t')
				buf = strconv.AppendInt(buf, int64(r.TLen), 10)
				buf = append(buf, '\t')
				buf = strconv.AppendInt(buf, int64(r.AlnLen), 10)
				buf = append(buf, '\t')
				buf = strconv.AppendFloat(buf, r.QCov, 'f', 3, 64)
				buf = append(buf, '\t')
				buf = strconv.AppendFloat(buf, r.TCov, 'f', 3, 64)
				buf = append(buf, '\t')
				if r.Reverse {
					buf = append(buf, '-')
				} else {
					buf = append(buf, '+')
				}
				buf = append(buf, '\t')
				buf = append(buf, r.Backtrace...)
				buf = append(buf, '\n')
				outfh.Write(buf)
				n++
			}
		}

		if opt.Verbose {
			log.Infof("%d alignments of %d queries written to: %s", n, adb.Size(), outFile)
		}
	},
}

// openHeaderDB opens the header database of a sequence database,
// nil is returned if it does not exist.
func openHeaderDB(db string, verbose bool) *kdb.Reader {
	if db == "" {
		return nil
	}
	file := db + kdb.HeaderDBSuffix
	if !kdb.Exists(file) {
		if verbose {
			log.Warningf("header database not found: %s, keys are shown", file)
		}
		return nil
	}
	r, err := kdb.NewReader(file, false)
	checkError(err)
	return r
}

// seqName returns the first word of the header of a key,
// or the key itself.
func seqName(db *kdb.Reader, key uint32) string {
	if db == nil {
		return strconv.FormatUint(uint64(key), 10)
	}
	h, ok := db.DataByKey(key)
	if !ok {
		return strconv.FormatUint(uint64(key), 10)
	}
	if i := bytes.IndexAny(h, " \t"); i >= 0 {
		h = h[:i]
	}
	return string(h)
}

func appendPositions(buf []byte, start, end int, offset int) []byte {
	if start < 0 { // score only
		buf = append(buf, '*')
	} else {
		buf = strconv.AppendInt(buf, int64(start+offset), 10)
	}
	buf = append(buf, '\t')
	return strconv.AppendInt(buf, int64(end), 10)
}

func init() {
	utilsCmd.AddCommand(viewCmd)

	viewCmd.Flags().StringP("aln-db", "d", "",
		formatFlagUsage(`Alignment database.`))

	viewCmd.Flags().StringP("query-db", "q", "",
		formatFlagUsage(`Query sequence database, for sequence IDs.`))

	viewCmd.Flags().StringP("target-db", "t", "",
		formatFlagUsage(`Target sequence database, for sequence IDs. The query database by default.`))

	viewCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports the ".gz" suffix ("-" for stdout).`))

	viewCmd.Flags().BoolP("one-based", "", false,
		formatFlagUsage(`Output 1-based closed positions.`))

	viewCmd.Flags().BoolP("no-header-row", "H", false,
		formatFlagUsage(`Do not output the header row.`))

	viewCmd.SetUsageTemplate(usageTemplate("-d <aln db> [-q <query db>] [-t <target db>]"))
}
