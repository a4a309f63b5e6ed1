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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shenwei356/LexicAlign/lexicalign/align"
	"github.com/shenwei356/LexicAlign/lexicalign/kdb"
	"github.com/spf13/cobra"
)

func TestFindRankParts(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "aln")

	for _, rank := range []int{2, 0, 1} {
		w, err := kdb.NewWriter(align.TmpOutput(out, rank), kdb.AlignmentRes, 1)
		if err != nil {
			t.Error(err)
			return
		}
		if err = w.Close(); err != nil {
			t.Error(err)
			return
		}
	}
	// noises
	if err := align.NewFileBarrier(out, 3).Arrive(0); err != nil {
		t.Error(err)
		return
	}
	if err := os.WriteFile(filepath.Join(dir, "aln2.0.info.toml"), nil, 0644); err != nil {
		t.Error(err)
		return
	}

	parts, err := findRankParts(dir, "aln", 2)
	if err != nil {
		t.Error(err)
		return
	}
	if len(parts) != 3 {
		t.Errorf("unexpected parts: %v", parts)
		return
	}
	for i, p := range parts {
		if p != align.TmpOutput(out, i) {
			t.Errorf("part %d: expected %s, got %s", i, align.TmpOutput(out, i), p)
		}
	}

	// a missing rank
	if err = kdb.Remove(align.TmpOutput(out, 1)); err != nil {
		t.Error(err)
		return
	}
	if _, err = findRankParts(dir, "aln", 2); err == nil {
		t.Errorf("expected an error of the missing rank")
	}
}

func TestApplyParams(t *testing.T) {
	file := filepath.Join(t.TempDir(), "params.toml")
	err := os.WriteFile(file, []byte("e-value = 1e-5\ncoverage = 0.8\ncov-mode = 2\nmax-accept = 10\n"), 0644)
	if err != nil {
		t.Error(err)
		return
	}

	cmd := &cobra.Command{}
	cmd.Flags().Float64P("e-value", "e", 0.001, "")
	cmd.Flags().Float64P("coverage", "c", 0, "")
	if err = cmd.Flags().Parse([]string{"-c", "0.5"}); err != nil {
		t.Error(err)
		return
	}

	aopt := align.DefaultOptions()
	aopt.Thresholds.MinCov = 0.5
	if err = applyParams(cmd, file, aopt); err != nil {
		t.Error(err)
		return
	}
	th := aopt.Thresholds
	if th.MaxEvalue != 1e-5 {
		t.Errorf("unexpected e-value: %v", th.MaxEvalue)
	}
	if th.MinCov != 0.5 { // given in the command line
		t.Errorf("unexpected coverage: %v", th.MinCov)
	}
	if th.CovMode != align.CovQuery {
		t.Errorf("unexpected coverage mode: %s", th.CovMode)
	}
	if aopt.MaxAccept != 10 {
		t.Errorf("unexpected max-accept: %d", aopt.MaxAccept)
	}

	if err = os.WriteFile(file, []byte("evalue = 1\n"), 0644); err != nil {
		t.Error(err)
		return
	}
	if err = applyParams(cmd, file, aopt); err == nil {
		t.Errorf("expected an error of the unknown key")
	}
}

func TestFilepathTrimExtension(t *testing.T) {
	name, e1, e2 := filepathTrimExtension("blosum62.mat.gz", nil)
	if name != "blosum62" || e1 != ".mat" || e2 != ".gz" {
		t.Errorf("unexpected result: %s, %s, %s", name, e1, e2)
	}
	name, e1, e2 = filepathTrimExtension("PAM30", nil)
	if name != "PAM30" || e1 != "" || e2 != "" {
		t.Errorf("unexpected result: %s, %s, %s", name, e1, e2)
	}
}

func TestSeqName(t *testing.T) {
	if s := seqName(nil, 42); s != "42" {
		t.Errorf("unexpected name: %s", s)
	}

	file := filepath.Join(t.TempDir(), "seqs"+kdb.HeaderDBSuffix)
	w, err := kdb.NewWriter(file, kdb.Generic, 1)
	if err != nil {
		t.Error(err)
		return
	}
	if err = w.WriteData([]byte("sp|P69905|HBA_HUMAN Hemoglobin subunit alpha"), 3, 0); err != nil {
		t.Error(err)
		return
	}
	if err = w.Close(); err != nil {
		t.Error(err)
		return
	}
	r, err := kdb.NewReader(file, true)
	if err != nil {
		t.Error(err)
		return
	}
	defer r.Close()

	if s := seqName(r, 3); s != "sp|P69905|HBA_HUMAN" {
		t.Errorf("unexpected name: %s", s)
	}
	if s := seqName(r, 4); s != "4" {
		t.Errorf("unexpected name: %s", s)
	}
}

func TestAlignFlagUsages(t *testing.T) {
	for flag, words := range map[string][]string{
		"max-rejected":   {"ranked by prefilter scores", "recall"},
		"alt-alignments": {"--realign", "coverage"},
		"max-memory":     {"physical memory"},
		"run-id":         {"all ranks"},
	} {
		f := alignCmd.Flags().Lookup(flag)
		if f == nil {
			t.Errorf("flag --%s not found", flag)
			continue
		}
		for _, w := range words {
			if !strings.Contains(f.Usage, w) {
				t.Errorf("usage of --%s should mention %q: %s", flag, w, f.Usage)
			}
		}
	}
}
