// Command procurecore-verify audits a case store for structural integrity:
// unknown states, orphaned stage records, duplicated singleton stages, and
// broken audit sequences. It reads the same storage environment variables as
// the server and exits non-zero when problems are found.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"procurecore/internal/core"
	"procurecore/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	store, err := core.OpenPersistentStore(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		exitFunc(2)
		return
	}
	problems := verify(store)
	report(os.Stdout, problems)
	if len(problems) > 0 {
		exitFunc(1)
	}
}

type problem struct {
	CaseID string
	Detail string
}

// verify walks every case and reports integrity violations. The checks mirror
// the commit-time rules so drift introduced outside the engine (manual edits,
// partial restores) surfaces here.
func verify(store domain.PersistentStore) []problem {
	policy := core.NewTransitionPolicy()
	table := core.NewStageTable()

	var problems []problem
	add := func(caseID, format string, args ...any) {
		problems = append(problems, problem{CaseID: caseID, Detail: fmt.Sprintf(format, args...)})
	}

	cases := store.ListCases()
	byID := make(map[string]domain.Case, len(cases))
	for _, c := range cases {
		byID[c.ID] = c
		if !c.Method.Valid() {
			add(c.ID, "unknown method %q", c.Method)
			continue
		}
		if !policy.Known(c.Method, c.State) {
			add(c.ID, "state %q is not part of the %s lifecycle", c.State, c.Method)
		}
	}

	for _, c := range cases {
		singles := map[domain.StageKind]int{}
		for _, rec := range store.ListStageRecords(c.ID) {
			if _, ok := core.StateOfKind(rec.Kind); !ok {
				add(c.ID, "stage record %s has unknown kind %q", rec.ID, rec.Kind)
				continue
			}
			if !rec.Kind.IsCollection() {
				singles[rec.Kind]++
			}
		}
		kinds := make([]domain.StageKind, 0, len(singles))
		for kind := range singles {
			kinds = append(kinds, kind)
		}
		sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
		for _, kind := range kinds {
			if n := singles[kind]; n > 1 {
				add(c.ID, "singleton stage %s holds %d records", kind, n)
			}
		}

		var prevSeq uint64
		for _, entry := range store.ListAuditEntries(c.ID) {
			if entry.Seq <= prevSeq {
				add(c.ID, "audit entry %s breaks sequence ordering (%d after %d)", entry.ID, entry.Seq, prevSeq)
			}
			prevSeq = entry.Seq
			if entry.Action != domain.AuditTransition || !c.Method.Valid() {
				continue
			}
			if entry.FromState == entry.ToState {
				continue
			}
			if policy.Permits(c.Method, entry.FromState, entry.ToState) {
				continue
			}
			fromPos, fromOK := table.Position(c.Method, entry.FromState)
			toPos, toOK := table.Position(c.Method, entry.ToState)
			if fromOK && toOK && toPos < fromPos {
				continue
			}
			add(c.ID, "audit entry %s records impossible transition %s -> %s", entry.ID, entry.FromState, entry.ToState)
		}
	}
	return problems
}

func report(w io.Writer, problems []problem) {
	if len(problems) == 0 {
		fmt.Fprintln(w, "store verified: no integrity problems found")
		return
	}
	for _, p := range problems {
		fmt.Fprintf(w, "case %s: %s\n", p.CaseID, p.Detail)
	}
	fmt.Fprintf(w, "%d problem(s) found\n", len(problems))
}
