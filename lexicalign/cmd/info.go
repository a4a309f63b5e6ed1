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
	"strings"

	"github.com/shenwei356/LexicAlign/lexicalign/align"
	"github.com/shenwei356/LexicAlign/lexicalign/kdb"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show information of databases",
	Long: `Show information of databases

Columns:
  file, type, version, entries, data size, and for different types:
    sequence databases:       lengths (min, mean, max) of sequences.
    prefilter databases:      numbers (mean ± sd) of candidates per query.
    alignment databases:      numbers (mean ± sd) of hits per query, and
                              total hits.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		outFile := getFlagPath(cmd, "out-file")
		if len(args) == 0 {
			checkError(fmt.Errorf("no databases given"))
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

		fmt.Fprintln(outfh, "file\ttype\tversion\tentries\tdata_size\tstats")
		for _, file := range args {
			checkDB(file, "")

			r, err := kdb.NewReader(file, false)
			checkError(err)

			fmt.Fprintf(outfh, "%s\t%s\tv%d.%d\t%d\t%d\t%s\n", file, r.Type(),
				r.Info.MainVersion, r.Info.MinorVersion, r.Size(), r.DataSize(), dbStats(r))

			checkError(r.Close())
		}
	},
}

// dbStats summarizes entries of a database according to its type.
func dbStats(r *kdb.Reader) string {
	n := r.Size()
	if n == 0 {
		return "-"
	}
	values := make([]float64, n)

	typ := r.Type()
	switch {
	case typ.IsSequence():
		for i := 0; i < n; i++ {
			values[i] = float64(r.Len(i))
		}
		return fmt.Sprintf("length: %.0f, %.1f, %.0f", floats.Min(values), stat.Mean(values, nil), floats.Max(values))
	case typ == kdb.PrefilterRes || typ == kdb.PrefilterRevRes:
		stream := align.NewCandidateStream(nil, typ == kdb.PrefilterRevRes)
		for i := 0; i < n; i++ {
			stream.Reset(r.Data(i), typ == kdb.PrefilterRevRes)
			var c int
			for {
				_, ok, err := stream.Next()
				checkError(err)
				if !ok {
					break
				}
				c++
			}
			values[i] = float64(c)
		}
		mean, sd := stat.MeanStdDev(values, nil)
		return fmt.Sprintf("candidates per query: %.2f ± %.2f", mean, sd)
	case typ == kdb.AlignmentRes:
		for i := 0; i < n; i++ {
			rs, err := align.ParseResults(r.Data(i), r.Key(i))
			checkError(err)
			values[i] = float64(len(rs))
		}
		mean, sd := stat.MeanStdDev(values, nil)
		return fmt.Sprintf("hits per query: %.2f ± %.2f, total: %.0f", mean, sd, floats.Sum(values))
	}
	return "-"
}

func init() {
	utilsCmd.AddCommand(infoCmd)

	infoCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports the ".gz" suffix ("-" for stdout).`))

	infoCmd.SetUsageTemplate(usageTemplate("<db> [<db> ...]"))
}
