package model

import (
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/facturier/backoffice/refnum"
)

// FactureCounter holds the highest sequence number in use for one year.
// One row per year; missing row means no facture has been numbered yet.
type FactureCounter struct {
	ID   uint `gorm:"primarykey" json:"-"`
	Year int  `gorm:"uniqueIndex" json:"year"`
	Seq  int  `json:"seq"`
}

func (FactureCounter) TableName() string { return "facturecounters" }

// GetCounter returns the counter for the given year, Seq 0 when no row
// exists.
func (s *Store) GetCounter(year int) (FactureCounter, error) {
	var c FactureCounter
	err := s.db.Where("year = ?", year).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return FactureCounter{Year: year}, nil
	}
	if err != nil {
		return FactureCounter{}, fmt.Errorf("load counter %d: %w", year, err)
	}
	return c, nil
}

// SetCounter persists a manual override of the year counter. This is a
// trusted administrative path: nothing stops the caller from setting a
// value below the highest sequence number in use, which would make the
// next assigned reference collide. Negative input is clamped to 0.
func (s *Store) SetCounter(year, seq int) error {
	if seq < 0 {
		seq = 0
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "year"}},
		DoUpdates: clause.Assignments(map[string]any{"seq": seq}),
	}).Create(&FactureCounter{Year: year, Seq: seq}).Error
	if err != nil {
		return fmt.Errorf("set counter %d: %w", year, err)
	}
	return nil
}

// nextRef increments the counter row for the year and returns the newly
// assigned reference. Must run inside the caller's transaction.
func nextRef(tx *gorm.DB, year int) (string, error) {
	var c FactureCounter
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("year = ?", year).First(&c).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c = FactureCounter{Year: year}
	case err != nil:
		return "", err
	}
	c.Seq++
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "year"}},
		DoUpdates: clause.Assignments(map[string]any{"seq": c.Seq}),
	}).Create(&FactureCounter{Year: year, Seq: c.Seq}).Error; err != nil {
		return "", err
	}
	return refnum.Format(c.Seq, year), nil
}

// RenumberEntry describes, for one year, which sequence numbers a delete
// removed, how many surviving factures were shifted down, and the new
// authoritative counter value.
type RenumberEntry struct {
	Year        int   `json:"year"`
	DeletedSeqs []int `json:"deletedSeqs"`
	Modified    int   `json:"modified"`
	CounterSeq  int   `json:"counterSeq"`
}

// DeleteResult is the wire response of POST /factures/delete.
type DeleteResult struct {
	Ok          bool            `json:"ok"`
	Deleted     int             `json:"deleted"`
	InvalidIds  []uint          `json:"invalidIds,omitempty"`
	NotFoundIds []uint          `json:"notFoundIds,omitempty"`
	Renumbered  []RenumberEntry `json:"renumbered,omitempty"`
}

// DeleteFactures removes the given factures and closes the sequence gaps
// they leave behind. All of it happens in one transaction: every surviving
// facture whose sequence number lies above a deleted slot is shifted down
// by the number of deleted slots below it, and each affected year's counter
// is set to the new highest sequence in use. Afterwards the in-use sequence
// numbers of every affected year again form a contiguous range 1..N.
//
// Multiple ids are accepted, across years; the per-year entries in the
// result are independent of each other.
func (s *Store) DeleteFactures(ids []uint) (*DeleteResult, error) {
	if len(ids) == 0 {
		return nil, errors.New("delete factures: no ids given")
	}

	res := &DeleteResult{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		valid := make([]uint, 0, len(ids))
		for _, id := range ids {
			if id == 0 {
				res.InvalidIds = append(res.InvalidIds, id)
				continue
			}
			valid = append(valid, id)
		}

		var targets []Facture
		if len(valid) > 0 {
			if err := tx.Where("id IN ?", valid).Find(&targets).Error; err != nil {
				return fmt.Errorf("load delete targets: %w", err)
			}
		}
		found := make(map[uint]bool, len(targets))
		for i := range targets {
			found[targets[i].ID] = true
		}
		for _, id := range valid {
			if !found[id] {
				res.NotFoundIds = append(res.NotFoundIds, id)
			}
		}

		// deleted sequence slots per year; factures with an unparsable
		// ref are deleted but take no part in renumbering
		deletedSeqs := map[int][]int{}
		for i := range targets {
			if seq, year, ok := refnum.Parse(targets[i].Ref); ok {
				deletedSeqs[year] = append(deletedSeqs[year], seq)
			}
		}

		// hard delete: the freed references are reassigned to the shifted
		// survivors below, so soft-deleted rows must not keep holding them
		// under the unique index
		for i := range targets {
			if err := tx.Where("facture_id = ?", targets[i].ID).
				Delete(&FactureLine{}).Error; err != nil {
				return fmt.Errorf("delete facture lines: %w", err)
			}
			if err := tx.Unscoped().Delete(&targets[i]).Error; err != nil {
				return fmt.Errorf("delete facture %d: %w", targets[i].ID, err)
			}
			res.Deleted++
		}

		if len(deletedSeqs) == 0 {
			res.Ok = true
			return nil
		}

		var survivors []Facture
		if err := tx.Find(&survivors).Error; err != nil {
			return fmt.Errorf("load survivors: %w", err)
		}

		years := make([]int, 0, len(deletedSeqs))
		for year := range deletedSeqs {
			years = append(years, year)
		}
		sort.Ints(years)

		for _, year := range years {
			seqs := deletedSeqs[year]
			sort.Ints(seqs)

			type numbered struct {
				id  uint
				seq int
			}
			var inYear []numbered
			for i := range survivors {
				seq, y, ok := refnum.Parse(survivors[i].Ref)
				if ok && y == year {
					inYear = append(inYear, numbered{id: survivors[i].ID, seq: seq})
				}
			}
			// shift lowest sequences first so the freed slot is always
			// available before the next facture moves into it (ref has a
			// unique index)
			sort.Slice(inYear, func(i, j int) bool { return inYear[i].seq < inYear[j].seq })

			entry := RenumberEntry{Year: year, DeletedSeqs: seqs}
			for _, n := range inYear {
				dec := 0
				for _, d := range seqs {
					if d < n.seq {
						dec++
					}
				}
				newSeq := n.seq - dec
				if newSeq > entry.CounterSeq {
					entry.CounterSeq = newSeq
				}
				if dec == 0 {
					continue
				}
				if err := tx.Model(&Facture{}).Where("id = ?", n.id).
					Update("ref", refnum.Format(newSeq, year)).Error; err != nil {
					return fmt.Errorf("renumber facture %d: %w", n.id, err)
				}
				entry.Modified++
			}

			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "year"}},
				DoUpdates: clause.Assignments(map[string]any{"seq": entry.CounterSeq}),
			}).Create(&FactureCounter{Year: year, Seq: entry.CounterSeq}).Error; err != nil {
				return fmt.Errorf("update counter %d: %w", year, err)
			}
			res.Renumbered = append(res.Renumbered, entry)
		}

		res.Ok = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
