/*
indexer.go - Chronological session numbering

PURPOSE:
  Pure projection over a staff's full schedule set. For each
  (member, PT|OT) group, records are sorted ascending by start time and a
  running counter assigns each one its session number. The counter advances
  only on statuses in CountsForIndex; records that don't count yet display
  the number they will take (counter+1) with Pending set.

  The projection is recomputed on every read, never persisted, and fully
  deterministic for a given input set (ties on start time break on record
  id).

  Note the counting set differs from the billing set: service sessions are
  numbered (scheduling continuity) but never debit the paid counter. See
  CountsForIndex vs ConsumesSession in types.go.
*/
package schedule

import "sort"

type indexGroup struct {
	MemberID   MemberID
	Discipline Discipline
}

// IndexSessions annotates records with session numbers. The result holds
// every input record ordered by (StartTime, ID); records outside the PT/OT
// member groups (Consulting, Personal, memberless blocks) carry
// SessionNumber 0.
//
// Numbering is always computed over the full set passed in - callers that
// want a date window must index the full set first and filter after, or the
// counters would restart at the window edge.
func IndexSessions(records []ClassRecord) []IndexedRecord {
	out := make([]IndexedRecord, len(records))
	for i, rec := range records {
		out[i] = IndexedRecord{ClassRecord: rec}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})

	// Group positions by (member, discipline); out is already in
	// chronological order, so each group's slice is too.
	groups := make(map[indexGroup][]int)
	for i, rec := range out {
		if !rec.Discipline.HasAttendance() || rec.MemberID == "" {
			continue
		}
		g := indexGroup{MemberID: rec.MemberID, Discipline: rec.Discipline}
		groups[g] = append(groups[g], i)
	}

	for _, positions := range groups {
		counter := 0
		for _, i := range positions {
			if CountsForIndex(out[i].Status) {
				counter++
				out[i].SessionNumber = counter
			} else {
				out[i].SessionNumber = counter + 1
				out[i].Pending = true
			}
		}
	}
	return out
}
