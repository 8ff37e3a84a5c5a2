package client

import (
	"context"
	"fmt"
)

// DeleteFacture asks for confirmation naming the reference, then runs the
// batch path for the single id.
func (s *Store) DeleteFacture(ctx context.Context, id uint) error {
	s.mu.Lock()
	ref := ""
	for i := range s.factures {
		if s.factures[i].ID == id {
			ref = s.factures[i].Ref
			break
		}
	}
	s.mu.Unlock()
	if ref == "" {
		return nil
	}
	if s.Confirm != nil && !s.Confirm(fmt.Sprintf("Supprimer la facture %s ?", ref)) {
		return nil
	}
	return s.DeleteFactures(ctx, []uint{id})
}

// DeleteFactures removes the given factures optimistically, then settles
// with the server. The pre-call snapshot is restored verbatim when the
// server declines or the call fails; on success the renumbering report is
// replayed locally instead of refetching the collection.
//
// Each call carries its own snapshot, so overlapping deletes never restore
// another call's intermediate state.
func (s *Store) DeleteFactures(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[uint]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	// The rollback data is scoped to this call: only the factures this
	// call removed, with their original positions. Restoring a full
	// collection snapshot would resurrect rows a concurrent delete
	// committed in the meantime.
	type removedFacture struct {
		index   int
		facture Facture
	}
	var removed []removedFacture

	s.mu.Lock()
	next := make([]Facture, 0, len(s.factures))
	for i, f := range s.factures {
		if drop[f.ID] {
			removed = append(removed, removedFacture{index: i, facture: f})
			continue
		}
		next = append(next, f)
	}
	s.factures = next
	s.mu.Unlock()
	s.notify()

	rollback := func() {
		s.mu.Lock()
		cur := make([]Facture, len(s.factures), len(s.factures)+len(removed))
		copy(cur, s.factures)
		// ascending original index keeps relative order intact
		for _, r := range removed {
			at := r.index
			if at > len(cur) {
				at = len(cur)
			}
			cur = append(cur, Facture{})
			copy(cur[at+1:], cur[at:])
			cur[at] = r.facture
		}
		s.factures = cur
		s.lastErr = "Échec de la suppression"
		s.mu.Unlock()
		s.notify()
	}

	res, err := s.api.DeleteFactures(ctx, ids)
	if err != nil {
		rollback()
		return err
	}
	if !res.Ok {
		rollback()
		return fmt.Errorf("suppression refusée par le serveur")
	}

	s.mu.Lock()
	s.lastErr = ""
	s.clampPageLocked()
	s.mu.Unlock()
	s.applyRenumbering(res.Renumbered)
	return nil
}
