package record

import "sort"

// Summary is the live view of a session's attendance, derived by a pure
// fold over the full record set. It is recomputed from authoritative
// store state on every change event rather than kept as incremental
// counters, so duplicate or out-of-order events cannot cause drift.
type Summary struct {
	SessionID string `json:"session_id"`
	// Counts covers verified records only; sum(Counts) == VerifiedTotal.
	Counts        map[Status]int `json:"counts"`
	VerifiedTotal int            `json:"verified_total"`
	// CheckedIn lists every student with any record, pending included,
	// so a pending scanner is never re-offered as missing.
	CheckedIn []string `json:"checked_in"`
	// Pending lists unverified records awaiting review, oldest first.
	Pending []Record `json:"pending"`
}

// Summarize folds the record set into a Summary.
func Summarize(sessionID string, recs []Record) Summary {
	sum := Summary{
		SessionID: sessionID,
		Counts:    make(map[Status]int, len(Statuses)),
		CheckedIn: make([]string, 0, len(recs)),
		Pending:   make([]Record, 0),
	}
	seen := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		if _, dup := seen[rec.StudentID]; !dup {
			seen[rec.StudentID] = struct{}{}
			sum.CheckedIn = append(sum.CheckedIn, rec.StudentID)
		}
		if rec.IsVerified {
			sum.Counts[rec.Status]++
			sum.VerifiedTotal++
		} else {
			sum.Pending = append(sum.Pending, rec)
		}
	}
	sort.Strings(sum.CheckedIn)
	return sum
}

// Missing returns the roster complement: enrolled students with no
// record at all, in roster order.
func Missing(roster []string, recs []Record) []string {
	seen := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		seen[rec.StudentID] = struct{}{}
	}
	missing := make([]string, 0, len(roster))
	for _, id := range roster {
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
