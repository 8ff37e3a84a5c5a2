// Package client implements the back-office page state for the facture
// table: the cached facture collection, filter and pagination state, the
// year counter mirror, optimistic delete with renumbering reconciliation,
// and the bulk ZIP export coordinator with its progress subscription.
package client

import "time"

// Facture mirrors the wire representation served by GET /factures. The
// client never mutates monetary fields; they are display data.
type Facture struct {
	ID         uint       `json:"id"`
	Ref        string     `json:"ref"`
	Status     string     `json:"status"`
	ClientName string     `json:"clientName"`
	OrderRef   string     `json:"orderRef"`
	Currency   string     `json:"currency"`
	NetTotal   string     `json:"netTotal"`
	GrossTotal string     `json:"grossTotal"`
	IssuedAt   *time.Time `json:"issuedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// EffectiveDate is IssuedAt when present, CreatedAt otherwise. Used for
// the date-range filter and the month grouping.
func (f *Facture) EffectiveDate() time.Time {
	if f.IssuedAt != nil && !f.IssuedAt.IsZero() {
		return *f.IssuedAt
	}
	return f.CreatedAt
}

// Counter mirrors GET /factures/counter/{year}.
type Counter struct {
	Year int `json:"year"`
	Seq  int `json:"seq"`
}

// RenumberEntry is one year's renumbering delta as reported by the delete
// endpoint.
type RenumberEntry struct {
	Year        int   `json:"year"`
	DeletedSeqs []int `json:"deletedSeqs"`
	Modified    int   `json:"modified"`
	CounterSeq  int   `json:"counterSeq"`
}

// DeleteResponse is the body of POST /factures/delete. Ok=false means the
// delete failed even when the HTTP status was 2xx.
type DeleteResponse struct {
	Ok          bool            `json:"ok"`
	Deleted     int             `json:"deleted"`
	InvalidIds  []uint          `json:"invalidIds,omitempty"`
	NotFoundIds []uint          `json:"notFoundIds,omitempty"`
	Renumbered  []RenumberEntry `json:"renumbered,omitempty"`
}

// Progress is one snapshot from the export progress channel.
type Progress struct {
	Done    int    `json:"done"`
	Total   int    `json:"total"`
	Failed  int    `json:"failed"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Terminal reports whether the job has left the running state.
func (p Progress) Terminal() bool { return p.Status != "" && p.Status != "running" }
