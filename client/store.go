package client

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultPageSize is the fixed page size of the facture table.
const DefaultPageSize = 8

// Store is the page-level state container of the facture screen. All
// state the child widgets see lives here and is mutated only through the
// explicit operations below; observers are notified through OnChange.
//
// Every mutation of the facture collection replaces the slice instead of
// editing it in place, so consumers holding a previous snapshot never see
// it change under them.
type Store struct {
	api *API

	// Confirm is asked before a delete goes ahead. Nil means "always
	// yes" (used by non-interactive callers and tests).
	Confirm func(prompt string) bool
	// Save persists a downloaded archive. Required for StartExport.
	Save func(filename string, r io.Reader) error
	// OnChange is invoked after every state mutation.
	OnChange func()

	mu       sync.Mutex
	factures []Facture
	counter  Counter
	search   string
	status   string
	dateFrom *time.Time
	dateTo   *time.Time
	month    string
	page     int
	pageSize int
	lastErr  string

	export     exportState
	sub        *Subscription
	graceTimer *time.Timer
}

type exportState struct {
	running     bool
	progressID  string
	hasProgress bool
	progress    Progress
}

// ExportStatus is the read model of the export button: disabled while
// running, live counts when the stream has delivered something.
type ExportStatus struct {
	Running     bool
	HasProgress bool
	Progress    Progress
}

// NewStore builds an empty container bound to the REST collaborator.
func NewStore(api *API) *Store {
	return &Store{api: api, pageSize: DefaultPageSize, page: 1}
}

func (s *Store) notify() {
	if s.OnChange != nil {
		s.OnChange()
	}
}

// Load fetches the full facture collection once. The projection layer
// derives everything else from it.
func (s *Store) Load(ctx context.Context) error {
	fs, err := s.api.FetchFactures(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.factures = fs
	s.mu.Unlock()
	s.notify()
	return nil
}

// Factures returns the current cached collection.
func (s *Store) Factures() []Facture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.factures
}

// LastError returns the most recent user-facing failure message, empty
// when the last operation succeeded.
func (s *Store) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Store) setError(msg string) {
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
	s.notify()
}

// SetSearch updates the free-text filter. Changing it resets pagination
// to the first page; mere collection mutations do not.
func (s *Store) SetSearch(q string) {
	s.mu.Lock()
	if q != s.search {
		s.search = q
		s.page = 1
	}
	s.mu.Unlock()
	s.notify()
}

// SetStatusFilter updates the status equality filter ("" disables it) and
// resets pagination.
func (s *Store) SetStatusFilter(status string) {
	s.mu.Lock()
	if status != s.status {
		s.status = status
		s.page = 1
	}
	s.mu.Unlock()
	s.notify()
}

// SetDateRange updates the inclusive date-range filter. Unlike search and
// status this does not touch the page.
func (s *Store) SetDateRange(from, to *time.Time) {
	s.mu.Lock()
	s.dateFrom, s.dateTo = from, to
	s.mu.Unlock()
	s.notify()
}

// SetPage moves to the given page; out-of-range values are clamped by the
// projection.
func (s *Store) SetPage(n int) {
	s.mu.Lock()
	if n < 1 {
		n = 1
	}
	s.page = n
	s.mu.Unlock()
	s.notify()
}

// SetMonth selects the export month (YYYY-MM) and refreshes the counter
// mirror when the year component changed. A failed counter fetch falls
// back to seq 0 instead of surfacing an error; the page stays usable.
func (s *Store) SetMonth(ctx context.Context, month string) {
	s.mu.Lock()
	prevYear := s.counter.Year
	s.month = month
	s.mu.Unlock()

	year := monthYear(month)
	if year != 0 && year != prevYear {
		c, err := s.api.GetCounter(ctx, year)
		if err != nil {
			c = Counter{Year: year, Seq: 0}
		}
		s.mu.Lock()
		s.counter = c
		s.mu.Unlock()
	}
	s.notify()
}

// Month returns the currently selected export month.
func (s *Store) Month() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.month
}

// Counter returns the cached year counter mirror.
func (s *Store) Counter() Counter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

// SaveCounter persists a manual counter override, coercing the raw input
// to a non-negative integer (anything unparsable becomes 0). The server
// does not verify the value against the sequence numbers actually in use:
// setting it below the true maximum will make future references collide.
// That is accepted operator risk on this trusted path.
func (s *Store) SaveCounter(ctx context.Context, raw string) error {
	s.mu.Lock()
	year := s.counter.Year
	s.mu.Unlock()
	if year == 0 {
		return nil
	}

	seq, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || seq < 0 {
		seq = 0
	}
	if err := s.api.SetCounter(ctx, year, seq); err != nil {
		s.setError("Échec de l'enregistrement du compteur")
		return err
	}
	s.mu.Lock()
	s.counter.Seq = seq
	s.lastErr = ""
	s.mu.Unlock()
	s.notify()
	return nil
}

// UpdateStatus changes one facture's status optimistically and rolls the
// collection back when the server declines.
func (s *Store) UpdateStatus(ctx context.Context, id uint, status string) error {
	s.mu.Lock()
	snapshot := s.factures
	next := make([]Facture, len(s.factures))
	copy(next, s.factures)
	found := false
	for i := range next {
		if next[i].ID == id {
			next[i].Status = status
			found = true
			break
		}
	}
	if found {
		s.factures = next
	}
	s.mu.Unlock()
	if !found {
		return nil
	}
	s.notify()

	if err := s.api.UpdateStatus(ctx, id, status); err != nil {
		s.mu.Lock()
		s.factures = snapshot
		s.lastErr = "Échec de la mise à jour du statut"
		s.mu.Unlock()
		s.notify()
		return err
	}
	s.mu.Lock()
	s.lastErr = ""
	s.mu.Unlock()
	return nil
}

// DownloadPDF fetches one facture's PDF and hands it to Save. The document
// is addressed by its reference, falling back to the order reference for
// factures that never got one. A facture with neither is a no-op: the
// button does nothing and no request is sent.
func (s *Store) DownloadPDF(ctx context.Context, f Facture) error {
	ref := f.Ref
	if ref == "" {
		ref = f.OrderRef
	}
	if ref == "" {
		return nil
	}
	body, err := s.api.DownloadPDF(ctx, ref)
	if err != nil {
		s.setError("Échec du téléchargement du PDF")
		return err
	}
	defer body.Close()
	if s.Save != nil {
		if err := s.Save(ref+".pdf", body); err != nil {
			s.setError("Échec du téléchargement du PDF")
			return err
		}
	}
	s.mu.Lock()
	s.lastErr = ""
	s.mu.Unlock()
	return nil
}

// monthYear extracts the year component of a YYYY-MM string, 0 when the
// string is not of that shape.
func monthYear(month string) int {
	if len(month) < 4 {
		return 0
	}
	year, err := strconv.Atoi(month[:4])
	if err != nil {
		return 0
	}
	return year
}
