package client

import (
	"sort"

	"github.com/facturier/backoffice/refnum"
)

// applyRenumbering replays the server's renumbering report against the
// cached collection so the screen matches the database without a refetch.
// For every surviving facture of an affected year the new sequence number
// is the old one minus the count of deleted sequences below it; the
// cached counter is overwritten when the report covers its year.
//
// Callers hold no lock; the method swaps in a fresh slice.
func (s *Store) applyRenumbering(entries []RenumberEntry) {
	if len(entries) == 0 {
		return
	}
	byYear := make(map[int][]int, len(entries))
	counters := make(map[int]int, len(entries))
	for _, e := range entries {
		deleted := append([]int(nil), e.DeletedSeqs...)
		sort.Ints(deleted)
		byYear[e.Year] = deleted
		counters[e.Year] = e.CounterSeq
	}

	s.mu.Lock()
	next := make([]Facture, len(s.factures))
	copy(next, s.factures)
	for i := range next {
		seq, year, ok := refnum.Parse(next[i].Ref)
		if !ok {
			continue
		}
		deleted, affected := byYear[year]
		if !affected {
			continue
		}
		dec := 0
		for _, d := range deleted {
			if d >= seq {
				break
			}
			dec++
		}
		if dec > 0 {
			next[i].Ref = refnum.Format(seq-dec, year)
		}
	}
	s.factures = next
	if seq, ok := counters[s.counter.Year]; ok {
		s.counter.Seq = seq
	}
	s.mu.Unlock()
	s.notify()
}
