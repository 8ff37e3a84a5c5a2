package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type FactureStatus string

const (
	FactureStatusPaid      FactureStatus = "paid"      // Payé
	FactureStatusCancelled FactureStatus = "cancelled" // Annulé
)

// ValidFactureStatus reports whether s is one of the known statuses.
func ValidFactureStatus(s FactureStatus) bool {
	return s == FactureStatusPaid || s == FactureStatusCancelled
}

// Facture is a billing document derived from an order. Ref carries the
// human readable reference FC-<seq>-<year>; seq values within one year are
// kept contiguous by DeleteFactures.
type Facture struct {
	gorm.Model
	Ref        string        `gorm:"uniqueIndex"`
	Status     FactureStatus `gorm:"type:text;not null;default:paid;check:status IN ('paid','cancelled');index"`
	IssuedAt   *time.Time
	ClientName string
	OrderRef   string
	Currency   string
	NetTotal   decimal.Decimal
	GrossTotal decimal.Decimal
	Lines      []FactureLine
}

// FactureLine contains one line of the facture. Lines are display data in
// the back office; totals are computed when the facture is created from an
// order and never recomputed here.
type FactureLine struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	FactureID uint
	Position  int
	Text      string
	Quantity  decimal.Decimal `sql:"type:decimal(20,8);"`
	UnitPrice decimal.Decimal `sql:"type:decimal(20,8);"`
	LineTotal decimal.Decimal `sql:"type:decimal(20,8);"`
}

func (FactureLine) TableName() string { return "facturelines" }

// EffectiveDate is the date used for month selection and date-range
// filtering: IssuedAt when present, CreatedAt otherwise.
func (f *Facture) EffectiveDate() time.Time {
	if f.IssuedAt != nil && !f.IssuedAt.IsZero() {
		return *f.IssuedAt
	}
	return f.CreatedAt
}

// CreateFacture stores a facture and assigns its reference from the year
// counter. The year is taken from IssuedAt (falling back to now).
func (s *Store) CreateFacture(f *Facture) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		year := time.Now().Year()
		if f.IssuedAt != nil && !f.IssuedAt.IsZero() {
			year = f.IssuedAt.Year()
		}
		ref, err := nextRef(tx, year)
		if err != nil {
			return fmt.Errorf("assign ref: %w", err)
		}
		f.Ref = ref
		for i := range f.Lines {
			f.Lines[i].ID = 0
		}
		if err := tx.Create(f).Error; err != nil {
			return fmt.Errorf("create facture: %w", err)
		}
		return nil
	})
}

// ListFactures loads the full collection, lines included. The back office
// loads everything once and filters client-side.
func (s *Store) ListFactures() ([]Facture, error) {
	var fs []Facture
	if err := s.db.Preload("Lines").Order("created_at asc, id asc").Find(&fs).Error; err != nil {
		return nil, fmt.Errorf("list factures: %w", err)
	}
	return fs, nil
}

// LoadFacture loads a single facture with its lines.
func (s *Store) LoadFacture(id uint) (*Facture, error) {
	var f Facture
	if err := s.db.Preload("Lines").First(&f, id).Error; err != nil {
		return nil, fmt.Errorf("load facture %d: %w", id, err)
	}
	return &f, nil
}

// LoadFactureByRef loads a facture by its reference string.
func (s *Store) LoadFactureByRef(ref string) (*Facture, error) {
	var f Facture
	if err := s.db.Preload("Lines").Where("ref = ?", ref).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// UpdateFactureStatus performs the single-field status update.
func (s *Store) UpdateFactureStatus(id uint, status FactureStatus) error {
	if !ValidFactureStatus(status) {
		return fmt.Errorf("invalid facture status %q", status)
	}
	res := s.db.Model(&Facture{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListFacturesForMonth selects the factures participating in an export:
// effective date (issued_at falling back to created_at) within the given
// month, optionally restricted to one status. month has the form YYYY-MM.
func (s *Store) ListFacturesForMonth(month string, status FactureStatus) ([]Facture, error) {
	start, end, err := MonthRange(month)
	if err != nil {
		return nil, err
	}
	q := s.db.Where("COALESCE(issued_at, created_at) >= ? AND COALESCE(issued_at, created_at) < ?", start, end)
	if status != "" {
		if !ValidFactureStatus(status) {
			return nil, fmt.Errorf("invalid facture status %q", status)
		}
		q = q.Where("status = ?", status)
	}
	var fs []Facture
	if err := q.Order("created_at asc, id asc").Find(&fs).Error; err != nil {
		return nil, fmt.Errorf("list factures for month %s: %w", month, err)
	}
	return fs, nil
}

// MonthRange converts YYYY-MM into the [start, end) interval of that month
// in UTC.
func MonthRange(month string) (start, end time.Time, err error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("month must have the form YYYY-MM")
	}
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}
