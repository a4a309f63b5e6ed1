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
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pelletier/go-toml/v2"
	"github.com/shenwei356/LexicAlign/lexicalign/align"
	"github.com/shenwei356/LexicAlign/lexicalign/kdb"
	"github.com/shenwei356/LexicAlign/lexicalign/sw"
	"github.com/shenwei356/xopen"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var alignCmd = &cobra.Command{
	Use:   "align",
	Short: "Align queries against their prefiltered candidates",
	Long: `Align queries against their prefiltered candidates

Input:
  -q/--query-db      a sequence database of queries, created by "lexicalign createdb".
  -t/--target-db     a sequence database of targets, the query database by default.
  -p/--prefilter-db  candidates of queries, one entry per query with lines of
                     "targetKey<tab>score<tab>diagonal". For databases of the type
                     "prefilter-rev", a nonzero score means the reverse strand.

Output:
  -o/--out-db        an alignment database, one entry per query with results:

    1.  targetKey   Key of the target sequence.
    2.  score       Alignment score.
    3.  seqID       Sequence identity.
    4.  evalue      Expect value.
    5.  qStart      Start of the alignment in the query, 0-based.
    6.  qEnd        End of the alignment in the query, exclusive.
    7.  qLen        Query length.
    8.  tStart      Start of the alignment in the target, 0-based.
    9.  tEnd        End of the alignment in the target, exclusive.
    10. tLen        Target length.
    11. alnLen      Alignment length.
    12. qcov        Query coverage.
    13. tcov        Target coverage.
    14. strand      Target strand, "+" or "-".
    15. backtrace   CIGAR-like backtrace, optional with -a/--add-backtrace.

  Use "lexicalign utils view" to convert it into a table.

Alignment modes (-m/--alignment-mode):
  0  auto, decided by requested thresholds
  1  score and e-value only
  2  ungapped alignment (not supported)
  3  plus start positions and coverages
  4  plus sequence identity and backtrace

Coverage modes (--cov-mode):
  0  coverage of query and target
  1  coverage of target
  2  coverage of query
  3  target length >= coverage threshold times query length
  4  query length >= coverage threshold times target length
  5  shorter sequence length >= coverage threshold times the longer one
  6  coverage of query or target

Thresholds can also be given in a TOML file via --params, with the keys:
  e-value, min-seq-id, coverage, cov-mode, min-aln-len, max-accept, max-rejected.
  Flags given in the command line override values in the file.

Distributed computing:
  1. Work can be split into N ranks with --split N, each process runs one
     rank with --rank. Rank 0 waits for the others via marker files in
     the output directory, and merges results. All ranks must share the
     same file system.
     Markers record an id computed from the input databases, options and
     --run-id, markers of other runs are ignored.
  2. --local-ranks N runs N ranks in this process, for testing.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		queryDB := getFlagPath(cmd, "query-db")
		targetDB := getFlagPath(cmd, "target-db")
		prefilterDB := getFlagPath(cmd, "prefilter-db")
		outDB := getFlagPath(cmd, "out-db")
		force := getFlagBool(cmd, "force")
		preload := getFlagBool(cmd, "preload")

		split := getFlagPositiveInt(cmd, "split")
		rank := getFlagNonNegativeInt(cmd, "rank")
		localRanks := getFlagNonNegativeInt(cmd, "local-ranks")
		if rank >= split {
			checkError(fmt.Errorf("value of flag --rank (%d) should < --split (%d)", rank, split))
		}
		if localRanks > 0 && split > 1 {
			checkError(fmt.Errorf("flags --local-ranks and --split are incompatible"))
		}

		if targetDB == "" {
			targetDB = queryDB
		}
		checkDB(queryDB, "query-db")
		checkDB(targetDB, "target-db")
		checkDB(prefilterDB, "prefilter-db")

		fhLog := checkLogFile(opt, outDB)
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

		if split == 1 || rank == 0 {
			checkOutputDB(outDB, force, outputLog)
		}

		// ---------------------------------------------------------------
		// options

		aopt := align.DefaultOptions()
		aopt.Threads = opt.NumCPUs
		aopt.Verbose = outputLog

		aopt.Mode = align.AlignmentMode(getFlagNonNegativeInt(cmd, "alignment-mode"))
		if aopt.Mode > align.ModeScoreCovSeqID {
			checkError(fmt.Errorf("invalid value of flag -m/--alignment-mode: %d", aopt.Mode))
		}
		aopt.Thresholds = align.Thresholds{
			MaxEvalue: getFlagNonNegativeFloat64(cmd, "e-value"),
			MinSeqID:  getFlagFraction(cmd, "min-seq-id"),
			MinCov:    getFlagFraction(cmd, "coverage"),
			CovMode:   align.CovMode(getFlagNonNegativeInt(cmd, "cov-mode")),
			MinAlnLen: getFlagNonNegativeInt(cmd, "min-aln-len"),
		}
		aopt.MaxAccept = getFlagNonNegativeInt(cmd, "max-accept")
		aopt.MaxRejected = getFlagNonNegativeInt(cmd, "max-rejected")

		paramsFile := getFlagPath(cmd, "params")
		if paramsFile != "" {
			checkError(applyParams(cmd, paramsFile, aopt))
		}
		if !aopt.Thresholds.CovMode.Valid() {
			checkError(fmt.Errorf("invalid value of flag --cov-mode: %d", aopt.Thresholds.CovMode))
		}

		aopt.IncludeIdentity = getFlagBool(cmd, "include-identity")
		aopt.AddBacktrace = getFlagBool(cmd, "add-backtrace")
		aopt.Realign = getFlagBool(cmd, "realign")
		aopt.AltAlignments = getFlagNonNegativeInt(cmd, "alt-alignments")

		aopt.GapOpen = getFlagPositiveInt(cmd, "gap-open")
		aopt.GapExtend = getFlagPositiveInt(cmd, "gap-extend")
		aopt.ScoreBias = getFlagFloat64(cmd, "score-bias")
		aopt.ChunkSize = getFlagPositiveInt(cmd, "chunk-size")
		if maxMem := getFlagString(cmd, "max-memory"); maxMem != "" {
			var err error
			aopt.MaxMemory, err = humanize.ParseBytes(maxMem)
			if err != nil {
				checkError(fmt.Errorf("invalid value of flag --max-memory: %s", maxMem))
			}
		}
		aopt.RunID = getFlagString(cmd, "run-id")
		aopt.Engine = align.SWEngineFactory(getFlagNonNegativeInt(cmd, "band"))

		matFile := getFlagPath(cmd, "sub-mat")
		if matFile != "" {
			fh, err := xopen.Ropen(matFile)
			checkError(err)
			name, _, _ := filepathTrimExtension(filepath.Base(matFile), nil)
			aopt.Matrix, err = sw.ParseMatrix(name, fh)
			checkError(err)
			checkError(fh.Close())
		}

		// ---------------------------------------------------------------
		// databases

		if outputLog {
			log.Infof("LexicAlign v%s", VERSION)
			log.Info()
			log.Infof("opening databases ...")
		}

		qdb, err := kdb.NewReader(queryDB, preload)
		checkError(err)
		defer qdb.Close()

		sameQTDB := samePath(queryDB, targetDB)
		tdb := qdb
		if !sameQTDB {
			tdb, err = kdb.NewReader(targetDB, preload)
			checkError(err)
			defer tdb.Close()
		}

		pdb, err := kdb.NewReader(prefilterDB, preload)
		checkError(err)
		defer pdb.Close()

		if outputLog {
			log.Infof("  query database: %s, %s sequences", queryDB, humanize.Comma(int64(qdb.Size())))
			log.Infof("  target database: %s, %s sequences, %s residues", targetDB,
				humanize.Comma(int64(tdb.Size())), humanize.Comma(tdb.TotalLen()))
			log.Infof("  prefilter database: %s, %s queries, %s", prefilterDB,
				humanize.Comma(int64(pdb.Size())), humanize.Bytes(uint64(pdb.DataSize())))
		}

		// ---------------------------------------------------------------
		// progress bar

		var total int
		switch {
		case localRanks > 0 || split == 1:
			total = pdb.Size()
		default:
			shards := align.DecomposeByWeight(align.CandidateWeights(pdb), split)
			total = shards[rank].Size
			if outputLog {
				mean, sd := align.ShardBalance(shards)
				log.Infof("  %d ranks, candidate bytes per rank: %.0f ± %.0f", split, mean, sd)
			}
		}

		var pbs *mpb.Progress
		var bar *mpb.Bar
		if opt.Verbose {
			pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
			bar = pbs.AddBar(int64(total),
				mpb.PrependDecorators(
					decor.Name("processed queries: ", decor.WC{W: len("processed queries: "), C: decor.DindentRight}),
					decor.Name("", decor.WCSyncSpaceR),
					decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
				),
				mpb.AppendDecorators(
					decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
					decor.AverageETA(decor.ET_STYLE_GO),
					decor.OnComplete(decor.Name(""), ". done"),
				),
			)
			aopt.Progress = func(n int) { bar.IncrBy(n) }
		}

		a, err := align.NewAligner(qdb, tdb, pdb, sameQTDB, aopt)
		checkError(err)

		// ---------------------------------------------------------------
		// align

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		var stats *align.Stats
		switch {
		case localRanks > 0:
			stats, err = a.RunAllLocal(ctx, outDB, localRanks)
		case split > 1:
			stats, err = a.RunRank(ctx, outDB, rank, split)
		default:
			stats, err = a.Run(outDB, 0, pdb.Size())
		}

		if opt.Verbose {
			if !bar.Completed() {
				bar.Abort(false)
			}
			pbs.Wait()
		}
		checkError(err)

		if outputLog {
			log.Info()
			log.Infof("%s alignments calculated", humanize.Comma(int64(stats.Alignments)))
			log.Infof("%s sequence pairs passed the thresholds (%.6f of all alignments)",
				humanize.Comma(int64(stats.Passed)), stats.PassedFraction())
			log.Infof("%.6f hits per query sequence", stats.HitsPerQuery())
			if split > 1 && rank > 0 {
				log.Infof("results of rank %d saved to: %s", rank, align.TmpOutput(outDB, rank))
			} else {
				log.Infof("results saved to: %s", outDB)
			}
		}
	},
}

// alignParams are thresholds in a TOML file.
type alignParams struct {
	Evalue      *float64 `toml:"e-value"`
	MinSeqID    *float64 `toml:"min-seq-id"`
	Coverage    *float64 `toml:"coverage"`
	CovMode     *int     `toml:"cov-mode"`
	MinAlnLen   *int     `toml:"min-aln-len"`
	MaxAccept   *int     `toml:"max-accept"`
	MaxRejected *int     `toml:"max-rejected"`
}

// applyParams applies values in a TOML file for flags not given in
// the command line.
func applyParams(cmd *cobra.Command, file string, aopt *align.Options) error {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return err
	}
	defer fh.Close()

	var p alignParams
	if err = toml.NewDecoder(fh).DisallowUnknownFields().Decode(&p); err != nil {
		return fmt.Errorf("failed to read parameter file %s: %s", file, err)
	}

	changed := cmd.Flags().Changed
	th := &aopt.Thresholds
	if p.Evalue != nil && !changed("e-value") {
		th.MaxEvalue = *p.Evalue
	}
	if p.MinSeqID != nil && !changed("min-seq-id") {
		th.MinSeqID = *p.MinSeqID
	}
	if p.Coverage != nil && !changed("coverage") {
		th.MinCov = *p.Coverage
	}
	if p.CovMode != nil && !changed("cov-mode") {
		th.CovMode = align.CovMode(*p.CovMode)
	}
	if p.MinAlnLen != nil && !changed("min-aln-len") {
		th.MinAlnLen = *p.MinAlnLen
	}
	if p.MaxAccept != nil && !changed("max-accept") {
		aopt.MaxAccept = *p.MaxAccept
	}
	if p.MaxRejected != nil && !changed("max-rejected") {
		aopt.MaxRejected = *p.MaxRejected
	}
	return nil
}

func samePath(a, b string) bool {
	pa, err := filepath.Abs(a)
	checkError(err)
	pb, err := filepath.Abs(b)
	checkError(err)
	return pa == pb
}

func init() {
	RootCmd.AddCommand(alignCmd)

	// databases

	alignCmd.Flags().StringP("query-db", "q", "",
		formatFlagUsage(`Query sequence database.`))

	alignCmd.Flags().StringP("target-db", "t", "",
		formatFlagUsage(`Target sequence database, the query database by default.`))

	alignCmd.Flags().StringP("prefilter-db", "p", "",
		formatFlagUsage(`Prefilter result database.`))

	alignCmd.Flags().StringP("out-db", "o", "",
		formatFlagUsage(`Output alignment database.`))

	alignCmd.Flags().BoolP("force", "", false,
		formatFlagUsage(`Overwrite existing output database.`))

	alignCmd.Flags().BoolP("preload", "", false,
		formatFlagUsage(`Read databases into memory instead of memory-mapping them.`))

	alignCmd.Flags().StringP("params", "", "",
		formatFlagUsage(`A TOML file of thresholds.`))

	// thresholds

	alignCmd.Flags().Float64P("e-value", "e", 0.001,
		formatFlagUsage(`Maximum e-value.`))

	alignCmd.Flags().Float64P("min-seq-id", "", 0,
		formatFlagUsage(`Minimum sequence identity, in range of [0, 1].`))

	alignCmd.Flags().Float64P("coverage", "c", 0,
		formatFlagUsage(`Minimum coverage, in range of [0, 1].`))

	alignCmd.Flags().IntP("cov-mode", "", 0,
		formatFlagUsage(`Coverage mode, see the help message.`))

	alignCmd.Flags().IntP("min-aln-len", "", 0,
		formatFlagUsage(`Minimum alignment length.`))

	alignCmd.Flags().IntP("max-accept", "", 0,
		formatFlagUsage(`Maximum number of accepted alignments per query, 0 for no limit.`))

	alignCmd.Flags().IntP("max-rejected", "", 0,
		formatFlagUsage(`Maximum number of consecutive rejected alignments per query, 0 for no limit. `+
			`It assumes candidates are ranked by prefilter scores, and trades recall for speed.`))

	// alignment

	alignCmd.Flags().IntP("alignment-mode", "m", 0,
		formatFlagUsage(`Alignment mode, see the help message.`))

	alignCmd.Flags().BoolP("add-backtrace", "a", false,
		formatFlagUsage(`Output backtraces of alignments.`))

	alignCmd.Flags().BoolP("realign", "", false,
		formatFlagUsage(`Realign accepted alignments with a compositionally shifted scoring matrix.`))

	alignCmd.Flags().IntP("alt-alignments", "", 0,
		formatFlagUsage(`Maximum number of alternative alignments per target, amino acid sequences only. `+
			`With --realign, alternative alignments found after realignment skip the e-value, coverage and length thresholds.`))

	alignCmd.Flags().BoolP("include-identity", "", false,
		formatFlagUsage(`Include identical alignments (query key == target key) for different query and target databases.`))

	alignCmd.Flags().StringP("sub-mat", "", "",
		formatFlagUsage(`Substitution matrix in NCBI format, BLOSUM62 for amino acids and +2/-3 for nucleotides by default.`))

	alignCmd.Flags().IntP("gap-open", "", align.DefaultGapOpen,
		formatFlagUsage(`Gap open cost, fixed to 5 for nucleotide sequences.`))

	alignCmd.Flags().IntP("gap-extend", "", align.DefaultGapExtend,
		formatFlagUsage(`Gap extension cost, fixed to 2 for nucleotide sequences.`))

	alignCmd.Flags().Float64P("score-bias", "", 0,
		formatFlagUsage(`Score bias added to the substitution matrix.`))

	alignCmd.Flags().IntP("band", "", sw.DefaultBand,
		formatFlagUsage(`Half band width around diagonals of prefilter hits, 0 for no banding.`))

	// computing

	alignCmd.Flags().IntP("chunk-size", "", 1000000,
		formatFlagUsage(`Number of queries per chunk when the memory is smaller than the prefilter database.`))

	alignCmd.Flags().StringP("max-memory", "", "",
		formatFlagUsage(`Memory limit for deciding chunking, e.g., 4GB. By default, the size of physical memory.`))

	alignCmd.Flags().StringP("run-id", "", "",
		formatFlagUsage(`Id shared by all ranks of a run, for telling apart runs with the same inputs.`))

	alignCmd.Flags().IntP("split", "", 1,
		formatFlagUsage(`Number of ranks to split the work into.`))

	alignCmd.Flags().IntP("rank", "", 0,
		formatFlagUsage(`Rank of this process, in range of [0, --split).`))

	alignCmd.Flags().IntP("local-ranks", "", 0,
		formatFlagUsage(`Run this number of ranks in this process.`))

	alignCmd.SetUsageTemplate(usageTemplate("-q <query db> [-t <target db>] -p <prefilter db> -o <out db>"))
}
