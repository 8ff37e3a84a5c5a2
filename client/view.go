package client

import (
	"github.com/xeonx/timeago"
)

// FactureRow is one rendered table row: the facture plus the display-only
// fields derived for it.
type FactureRow struct {
	Facture
	IssuedAgo string
}

// Rows renders the page's factures for the table widget.
func (p Page) Rows() []FactureRow {
	rows := make([]FactureRow, len(p.Factures))
	for i, f := range p.Factures {
		rows[i] = FactureRow{Facture: f, IssuedAgo: IssuedAgo(f)}
	}
	return rows
}

// IssuedAgo renders a facture's effective date as a relative French
// phrase ("il y a 3 jours").
func IssuedAgo(f Facture) string {
	return timeago.French.Format(f.EffectiveDate())
}
