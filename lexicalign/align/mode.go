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

package align

import (
	"github.com/pkg/errors"
	"github.com/shenwei356/LexicAlign/lexicalign/kdb"
)

// AlignmentMode is the requested alignment mode.
type AlignmentMode int

const (
	ModeAuto AlignmentMode = iota
	ModeScoreOnly
	ModeUngapped
	ModeScoreCov
	ModeScoreCovSeqID
)

// StatsMode decides which statistics an alignment engine computes.
type StatsMode int

const (
	StatsScoreOnly     StatsMode = iota // score, e-value and end positions
	StatsScoreCov                       // plus start positions and coverages
	StatsScoreCovSeqID                  // plus sequence identity and backtrace
)

func (m StatsMode) String() string {
	switch m {
	case StatsScoreOnly:
		return "score only"
	case StatsScoreCov:
		return "score and coverage"
	case StatsScoreCovSeqID:
		return "score, coverage and sequence identity"
	}
	return "unknown"
}

// ErrUngappedMode means the ungapped mode is requested.
var ErrUngappedMode = errors.New("align: ungapped alignment mode is not supported by this stage")

// ErrProfileVsProfile means both query and target databases are profiles.
var ErrProfileVsProfile = errors.New("align: only the query OR the target database can be a profile database")

// ErrProfileStateTarget means a profile-state target database with a non-profile query.
var ErrProfileStateTarget = errors.New("align: the query has to be a profile when using a target profile state database")

// ErrAltAliNucleotide means alternative alignments are requested for nucleotide sequences.
var ErrAltAliNucleotide = errors.New("align: alternative alignments are not supported for nucleotides")

// ErrUnknownDBType means a sequence database of an unrecognized type.
var ErrUnknownDBType = errors.New("align: unrecognized database type, please recreate the database")

// ErrMissingQuery means a query key absent from the query database.
var ErrMissingQuery = errors.New("align: query sequence not found in the query database")

// ErrMissingTarget means a target key absent from the target database.
var ErrMissingTarget = errors.New("align: target sequence not found in the target database")

// Modes is the result of mode resolution.
type Modes struct {
	Stats StatsMode

	// thresholds of the primary pass, differ from the requested ones with realignment
	MinCov    float64
	MinAlnLen int

	// realignment
	RealignCov float64

	AddBacktrace    bool
	BacktraceForced bool // backtrace turned on because of realignment
}

// ResolveModes decides the statistics mode and the primary-pass
// thresholds from the requested mode, flags and the query type.
func ResolveModes(mode AlignmentMode, addBacktrace, realign bool, altAlignments int,
	queryType kdb.DBType, th *Thresholds) (*Modes, error) {

	if mode == ModeUngapped {
		return nil, ErrUngappedMode
	}

	m := &Modes{
		MinCov:       th.MinCov,
		MinAlnLen:    th.MinAlnLen,
		RealignCov:   th.MinCov,
		AddBacktrace: addBacktrace,
	}

	if addBacktrace {
		mode = ModeScoreCovSeqID
	}

	if realign {
		mode = ModeScoreOnly
		m.RealignCov = th.MinCov
		m.MinCov = 0
		m.MinAlnLen = 0
		if !addBacktrace {
			m.AddBacktrace = true
			m.BacktraceForced = true
		}
	}

	if altAlignments > 0 {
		if queryType == kdb.Nucleotides {
			return nil, ErrAltAliNucleotide
		}
		if mode < ModeScoreCov {
			mode = ModeScoreCov
		}
	}

	switch mode {
	case ModeAuto:
		if m.MinCov > 0 && th.MinSeqID == 0 {
			m.Stats = StatsScoreCov
		} else if m.MinCov > 0 && th.MinSeqID > 0 {
			m.Stats = StatsScoreCovSeqID
		} else if m.MinAlnLen > 0 {
			m.Stats = StatsScoreCov // alignment lengths need start positions
		} else {
			m.Stats = StatsScoreOnly
		}
	case ModeScoreCov:
		m.Stats = StatsScoreCov
	case ModeScoreCovSeqID:
		m.Stats = StatsScoreCovSeqID
	default:
		m.Stats = StatsScoreOnly
	}

	return m, nil
}

// CheckDBTypes validates the types of query and target databases,
// and returns the effective query type.
func CheckDBTypes(queryType, targetType kdb.DBType) (kdb.DBType, error) {
	if !queryType.IsSequence() {
		return queryType, errors.Wrapf(ErrUnknownDBType, "query database type: %s", queryType)
	}
	if !targetType.IsSequence() {
		return queryType, errors.Wrapf(ErrUnknownDBType, "target database type: %s", targetType)
	}
	if queryType == kdb.HMMProfile && targetType == kdb.HMMProfile {
		return queryType, ErrProfileVsProfile
	}
	if targetType == kdb.ProfileStateSeq {
		if queryType != kdb.HMMProfile {
			return queryType, ErrProfileStateTarget
		}
		return kdb.ProfileStateProfile, nil
	}
	return queryType, nil
}
