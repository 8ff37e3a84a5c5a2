package client

import (
	"strings"
	"time"
)

// Page is what the table widget renders: the current slice of the
// filtered projection plus the numbers the pager needs.
type Page struct {
	Factures []Facture
	Number   int
	Count    int // total pages, at least 1
	Total    int // filtered factures across all pages
}

// Filtered returns the factures surviving all active filters, in the
// cached collection's order. Search matches any of ref, order reference
// and client name case-insensitively; status and date range narrow
// further.
func (s *Store) Filtered() []Facture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filteredLocked()
}

func (s *Store) filteredLocked() []Facture {
	out := make([]Facture, 0, len(s.factures))
	q := strings.ToLower(strings.TrimSpace(s.search))
	for _, f := range s.factures {
		if q != "" && !matchesSearch(f, q) {
			continue
		}
		if s.status != "" && f.Status != s.status {
			continue
		}
		if !inDateRange(f.EffectiveDate(), s.dateFrom, s.dateTo) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func matchesSearch(f Facture, q string) bool {
	return strings.Contains(strings.ToLower(f.Ref), q) ||
		strings.Contains(strings.ToLower(f.OrderRef), q) ||
		strings.Contains(strings.ToLower(f.ClientName), q)
}

// inDateRange checks an inclusive [from, to] day range. The upper bound
// covers the whole day, so a facture issued any time on the "to" date
// still matches.
func inDateRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && !t.Before(to.AddDate(0, 0, 1)) {
		return false
	}
	return true
}

// CurrentPage projects the filtered collection onto the active page. The
// page number is clamped to the last page when the filtered set shrank
// below it, so deletes never leave the table empty while earlier pages
// still hold rows.
func (s *Store) CurrentPage() Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	filtered := s.filteredLocked()

	count := (len(filtered) + s.pageSize - 1) / s.pageSize
	if count < 1 {
		count = 1
	}
	page := s.page
	if page > count {
		page = count
	}
	start := (page - 1) * s.pageSize
	end := start + s.pageSize
	if start > len(filtered) {
		start = len(filtered)
	}
	if end > len(filtered) {
		end = len(filtered)
	}
	return Page{
		Factures: filtered[start:end],
		Number:   page,
		Count:    count,
		Total:    len(filtered),
	}
}

// clampPageLocked pulls the page pointer back onto the last non-empty
// page after the collection shrank. Caller holds s.mu.
func (s *Store) clampPageLocked() {
	filtered := s.filteredLocked()
	count := (len(filtered) + s.pageSize - 1) / s.pageSize
	if count < 1 {
		count = 1
	}
	if s.page > count {
		s.page = count
	}
}
