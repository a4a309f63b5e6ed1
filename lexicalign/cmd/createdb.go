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
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shenwei356/LexicAlign/lexicalign/kdb"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/spf13/cobra"
)

var createdbCmd = &cobra.Command{
	Use:   "createdb",
	Short: "Create a sequence database from FASTA/Q files",
	Long: `Create a sequence database from FASTA/Q files

Input:
  (Gzipped) FASTA or FASTQ records from files or stdin.

Output:
  <db>               sequence data
  <db>.index         index of entries
  <db>.info.toml     database information
  <db>_h             headers of sequences, a generic database with the same keys

Attention:
  1. Sequences are keyed by their order in the input, starting from --start-key.
  2. The sequence type is detected from the first --detect-records records
     unless -t/--seq-type is given. Nucleotide sequences can only contain
     IUPAC nucleotide codes.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq.ValidateSeq = false

		outFile := getFlagPath(cmd, "out-db")
		force := getFlagBool(cmd, "force")
		startKey := getFlagNonNegativeInt(cmd, "start-key")
		detectRecords := getFlagPositiveInt(cmd, "detect-records")
		seqType := strings.ToLower(getFlagString(cmd, "seq-type"))

		var typ kdb.DBType
		switch seqType {
		case "auto":
			typ = kdb.Unknown
		case "nucleotide", "dna", "rna":
			typ = kdb.Nucleotides
		case "aminoacid", "protein":
			typ = kdb.AminoAcids
		default:
			checkError(fmt.Errorf("invalid value of flag -t/--seq-type: %s. available: auto, nucleotide, aminoacid", seqType))
		}

		files := args
		if len(files) == 0 {
			files = []string{"-"}
		}

		fhLog := checkLogFile(opt, outFile)
		outputLog := opt.Verbose || opt.Log2File
		timeStart := time.Now()
		defer func() {
			if outputLog {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
				log.Info()
			}
			if opt.Log2File {
				fhLog.Close()
			}
		}()

		checkOutputDB(outFile, force, outputLog)
		checkOutputDB(outFile+kdb.HeaderDBSuffix, force, outputLog)

		// ---------------------------------------------------------------

		// sequences before the type is decided
		type pending struct {
			seq    []byte
			header []byte
		}
		buffered := make([]pending, 0, detectRecords)

		var wSeq, wHeader *kdb.Writer
		var err error
		key := uint32(startKey)
		var residues int64

		openWriters := func() {
			wSeq, err = kdb.NewWriter(outFile, typ, 1)
			checkError(err)
			wSeq.Source = strings.Join(files, ",")
			wHeader, err = kdb.NewWriter(outFile+kdb.HeaderDBSuffix, kdb.Generic, 1)
			checkError(err)
			wHeader.Source = wSeq.Source
		}
		write := func(s, header []byte) {
			checkError(wSeq.WriteData(s, key, 0))
			checkError(wHeader.WriteData(header, key, 0))
			residues += int64(len(s))
			key++
		}
		flush := func() {
			if typ == kdb.Unknown {
				typ = kdb.Nucleotides
				for _, p := range buffered {
					if seq.DNAredundant.IsValid(p.seq) != nil && seq.RNAredundant.IsValid(p.seq) != nil {
						typ = kdb.AminoAcids
						break
					}
				}
				if outputLog {
					log.Infof("sequence type detected: %s", typ)
				}
			}
			openWriters()
			for _, p := range buffered {
				write(p.seq, p.header)
			}
			buffered = buffered[:0]
		}

		var record *fastx.Record
		for _, file := range files {
			fastxReader, err := fastx.NewReader(nil, file, "")
			checkError(err)

			for {
				record, err = fastxReader.Read()
				if err != nil {
					if err == io.EOF {
						break
					}
					checkError(err)
					break
				}
				if wSeq == nil {
					if typ == kdb.Unknown {
						// record data are reused by the reader
						buffered = append(buffered, pending{
							seq:    append([]byte{}, record.Seq.Seq...),
							header: append([]byte{}, record.Name...),
						})
						if len(buffered) == detectRecords {
							flush()
						}
						continue
					}
					flush()
				}
				write(record.Seq.Seq, record.Name)
			}
		}
		if wSeq == nil {
			flush()
		}

		checkError(wSeq.Close())
		checkError(wHeader.Close())

		if outputLog {
			log.Infof("%s %s sequences with %s residues saved to: %s",
				humanize.Comma(int64(key)-int64(startKey)), typ, humanize.Comma(residues), outFile)
		}
	},
}

func init() {
	RootCmd.AddCommand(createdbCmd)

	createdbCmd.Flags().StringP("out-db", "d", "",
		formatFlagUsage(`Output database.`))

	createdbCmd.Flags().BoolP("force", "", false,
		formatFlagUsage(`Overwrite existing output database.`))

	createdbCmd.Flags().StringP("seq-type", "t", "auto",
		formatFlagUsage(`Sequence type: auto, nucleotide, aminoacid.`))

	createdbCmd.Flags().IntP("detect-records", "", 100,
		formatFlagUsage(`Number of records for detecting the sequence type.`))

	createdbCmd.Flags().IntP("start-key", "", 0,
		formatFlagUsage(`Key of the first sequence.`))

	createdbCmd.SetUsageTemplate(usageTemplate("[seq files] [-d <out db>]"))
}
