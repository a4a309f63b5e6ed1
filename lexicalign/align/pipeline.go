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

// Package align computes alignments between queries and their candidate
// targets from a prefilter, filters them with acceptance thresholds,
// optionally realigns accepted ones and searches alternative alignments,
// and writes results to a keyed database.
package align

import (
	"math"

	"github.com/pkg/errors"
	"github.com/shenwei356/LexicAlign/lexicalign/kdb"
	"github.com/shenwei356/LexicAlign/lexicalign/sw"
	"github.com/shenwei356/go-logging"
)

var log = logging.MustGetLogger("lexicalign")

// Options contains the options of aligning.
type Options struct {
	Threads int
	Verbose bool

	Mode       AlignmentMode
	Thresholds Thresholds

	IncludeIdentity bool // accept an identity alignment even if query and target databases differ
	AddBacktrace    bool
	Realign         bool
	AltAlignments   int

	// Candidates of a query are processed until MaxAccept accepted ones,
	// or MaxRejected consecutive rejected ones. The later assumes
	// candidates are sorted by prefilter scores, it trades recall for speed.
	MaxAccept   int
	MaxRejected int

	Matrix    *sw.Matrix // nil for the default matrix of the sequence type
	GapOpen   int
	GapExtend int
	ScoreBias float64

	ChunkSize int    // number of queries per chunk if the memory is not enough
	MaxMemory uint64 // memory limit in bytes, 0 for the size of physical memory

	RunID string // shared by all ranks of a distributed run

	Engine EngineFactory

	Progress func(n int) // called after queries are finished, must be safe for concurrent use
}

// DefaultOptions returns the default options.
func DefaultOptions() *Options {
	return &Options{
		Threads:     1,
		Mode:        ModeAuto,
		Thresholds:  *DefaultThresholds(),
		MaxAccept:   math.MaxInt32,
		MaxRejected: math.MaxInt32,
		GapOpen:     DefaultGapOpen,
		GapExtend:   DefaultGapExtend,
		ChunkSize:   1000000,
		Engine:      NewSWEngine,
	}
}

// Aligner holds the read-only states shared by all workers.
type Aligner struct {
	opt *Options

	qdb, tdb, pdb *kdb.Reader
	sameQTDB      bool
	reverseDB     bool

	QueryType  kdb.DBType
	TargetType kdb.DBType
	Modes      *Modes

	th        Thresholds // of the primary pass
	canCovThr float64    // for CanBeCovered, the requested coverage threshold

	sc, scRealign *ScoringContext
	dbResidues    int64
}

// NewAligner checks the databases and options, and creates an Aligner.
// sameQTDB tells whether the query database is the target database.
func NewAligner(qdb, tdb, pdb *kdb.Reader, sameQTDB bool, opt *Options) (*Aligner, error) {
	if opt.Engine == nil {
		opt.Engine = NewSWEngine
	}
	if opt.MaxAccept <= 0 {
		opt.MaxAccept = math.MaxInt32
	}
	if opt.MaxRejected <= 0 {
		opt.MaxRejected = math.MaxInt32
	}
	if !opt.Thresholds.CovMode.Valid() {
		return nil, errors.Errorf("align: invalid coverage mode: %d", opt.Thresholds.CovMode)
	}

	a := &Aligner{
		opt:        opt,
		qdb:        qdb,
		tdb:        tdb,
		pdb:        pdb,
		sameQTDB:   sameQTDB,
		reverseDB:  pdb.Type() == kdb.PrefilterRevRes,
		TargetType: tdb.Type(),
	}

	var err error
	a.QueryType, err = CheckDBTypes(qdb.Type(), tdb.Type())
	if err != nil {
		return nil, err
	}
	if pdb.Type().IsSequence() {
		return nil, errors.Errorf("align: a sequence database is given as the prefilter result: %s", pdb.File())
	}

	a.Modes, err = ResolveModes(opt.Mode, opt.AddBacktrace, opt.Realign, opt.AltAlignments, a.QueryType, &opt.Thresholds)
	if err != nil {
		return nil, err
	}
	if a.Modes.BacktraceForced && opt.Verbose {
		log.Warningf("backtrace is turned on for realignment")
	}

	a.th = opt.Thresholds
	a.th.MinCov = a.Modes.MinCov
	a.th.MinAlnLen = a.Modes.MinAlnLen
	a.th.RealignCov = a.Modes.RealignCov
	a.canCovThr = opt.Thresholds.MinCov

	a.sc = NewScoringContext(a.QueryType, opt.Matrix, opt.GapOpen, opt.GapExtend, opt.ScoreBias)
	if opt.Realign {
		a.scRealign = a.sc.Shifted(RealignScoreShift)
	}
	a.dbResidues = tdb.TotalLen()

	if opt.Verbose {
		log.Infof("query database type: %s", a.QueryType)
		log.Infof("target database type: %s", a.TargetType)
		log.Infof("compute %s", a.Modes.Stats)
	}
	return a, nil
}

// ScoringContext returns the scoring context of the primary pass.
func (a *Aligner) ScoringContext() *ScoringContext { return a.sc }

// Thresholds returns the thresholds of the primary pass.
func (a *Aligner) Thresholds() Thresholds { return a.th }

func (a *Aligner) isIdentity(qkey, tkey uint32) bool {
	return qkey == tkey && (a.opt.IncludeIdentity || a.sameQTDB)
}

// Worker holds per-goroutine states, which are reused between queries.
// A Worker must not be shared by goroutines.
type Worker struct {
	a    *Aligner
	slot int

	query  Sequence
	target Sequence

	engine    Engine
	realigner Engine

	stream    *CandidateStream
	results   []Result
	realigned []Result
	buf       []byte
	mask      []byte

	// counters
	Alignments int
	Passed     int
}

// NewWorker creates a Worker writing to the given slot of output.
func (a *Aligner) NewWorker(slot int) *Worker {
	w := &Worker{
		a:       a,
		slot:    slot,
		query:   Sequence{Type: a.QueryType},
		target:  Sequence{Type: a.TargetType, ID: -1},
		engine:  a.opt.Engine(a.sc, a.dbResidues),
		stream:  NewCandidateStream(nil, a.reverseDB),
		results: make([]Result, 0, 128),
		buf:     make([]byte, 0, 1<<20),
	}
	if a.opt.Realign {
		w.realigner = a.opt.Engine(a.scRealign, a.dbResidues)
		w.realigned = make([]Result, 0, 128)
	}
	return w
}

func (w *Worker) setTarget(key uint32) error {
	s, ok := w.a.tdb.DataByKey(key)
	if !ok {
		return errors.Wrapf(ErrMissingTarget, "target: %d, query: %d", key, w.query.Key)
	}
	w.target.Key = key
	w.target.Seq = s
	return nil
}

// AlignQuery aligns the query with the ordinal id in the prefilter
// database against its candidates, and returns the serialized results,
// which are valid until the next call.
func (w *Worker) AlignQuery(id int) ([]byte, error) {
	a := w.a
	opt := a.opt
	th := &a.th

	// init
	qkey := a.pdb.Key(id)
	qseq, ok := a.qdb.DataByKey(qkey)
	if !ok {
		return nil, errors.Wrapf(ErrMissingQuery, "query: %d", qkey)
	}
	w.query.Key = qkey
	w.query.ID = id
	w.query.Seq = qseq
	w.engine.SetQuery(&w.query)
	w.stream.Reset(a.pdb.Data(id), a.reverseDB)

	// scan candidates
	results := w.results[:0]
	var passed, rejected int
	var c Candidate
	var isIdentity bool
	var err error
	var r Result
	qlen := len(qseq)
	for passed < opt.MaxAccept && rejected < opt.MaxRejected {
		c, ok, err = w.stream.Next()
		if err != nil {
			return nil, errors.Wrapf(err, "query: %d", qkey)
		}
		if !ok {
			break
		}

		if err = w.setTarget(c.Key); err != nil {
			return nil, err
		}
		if !CanBeCovered(th.CovMode, a.canCovThr, qlen, len(w.target.Seq)) {
			rejected++
			continue
		}

		isIdentity = a.isIdentity(qkey, c.Key)
		r = w.engine.Align(&w.target, c.Diagonal, c.Reverse, th.CovMode, th.MinCov, th.MaxEvalue, a.Modes.Stats, isIdentity)
		w.Alignments++

		if isIdentity {
			r.QCov, r.TCov, r.SeqID = 1, 1, 1
		}
		if Accept(&r, isIdentity, th) {
			results = append(results, r)
			passed++
			w.Passed++
			rejected = 0
		} else {
			rejected++
		}
	}

	// alternative alignments of original coordinates
	if opt.AltAlignments > 0 && !opt.Realign {
		results, err = w.alternativeAlignments(results, th.MaxEvalue, a.Modes.Stats)
		if err != nil {
			return nil, err
		}
	}

	SortResults(results)

	if opt.Realign {
		results, err = w.realign(results)
		if err != nil {
			return nil, err
		}
		if opt.AltAlignments > 0 {
			results, err = w.alternativeAlignments(results, math.MaxFloat64, StatsScoreCovSeqID)
			if err != nil {
				return nil, err
			}
		}
	}
	w.results = results

	// emit
	buf := w.buf[:0]
	for i := range results {
		buf = AppendResult(buf, &results[i], a.Modes.AddBacktrace)
	}
	w.buf = buf
	return buf, nil
}

// realign aligns accepted results again with the realignment scoring
// context, and returns a new list of results satisfying the realignment
// coverage threshold, in the same order.
func (w *Worker) realign(results []Result) ([]Result, error) {
	a := w.a
	th := &a.th
	w.realigner.SetQuery(&w.query)

	realigned := w.realigned[:0]
	var isIdentity, covOK bool
	var r2 Result
	for _, r := range results {
		if err := w.setTarget(r.TargetKey); err != nil {
			return nil, err
		}
		isIdentity = a.isIdentity(w.query.Key, r.TargetKey)
		r2 = w.realigner.Align(&w.target, DiagonalUnknown, r.Reverse, th.CovMode, th.MinCov, math.MaxFloat64,
			StatsScoreCovSeqID, isIdentity)

		covOK = HasCoverage(th.CovMode, th.RealignCov, r2.QCov, r2.TCov) &&
			lengthOK(th.CovMode, th.RealignCov, r2.QLen, r2.TLen)
		if !(covOK && r2.AlnLen >= a.opt.Thresholds.MinAlnLen) && !isIdentity {
			continue
		}

		// score and e-value are kept
		r.Backtrace = r2.Backtrace
		r.QStart, r.QEnd = r2.QStart, r2.QEnd
		r.TStart, r.TEnd = r2.TStart, r2.TEnd
		r.AlnLen = r2.AlnLen
		r.SeqID = r2.SeqID
		r.QCov, r.TCov = r2.QCov, r2.TCov
		if isIdentity {
			r.QCov, r.TCov, r.SeqID = 1, 1, 1
		}
		realigned = append(realigned, r)
	}

	w.realigned = results[:0]
	return realigned, nil
}
