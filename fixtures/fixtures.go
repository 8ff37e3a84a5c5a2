// Package fixtures provides an in-memory store and seed data for tests.
package fixtures

import (
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/facturier/backoffice/model"
	"github.com/facturier/backoffice/refnum"
)

// NewTestStore opens a fresh in-memory SQLite database and migrates the
// schema.
func NewTestStore(t *testing.T) *model.Store {
	t.Helper()
	// named per-test in-memory database: shared across the pooled
	// connections of one store, isolated between tests
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", url.PathEscape(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	store, err := model.NewStore(db, &model.Config{Mode: "test", PDFDir: t.TempDir()})
	if err != nil {
		t.Fatalf("init test store: %v", err)
	}
	return store
}

// FactureOption mutates a facture before it is seeded.
type FactureOption func(*model.Facture)

func WithStatus(s model.FactureStatus) FactureOption {
	return func(f *model.Facture) { f.Status = s }
}

func WithClient(name string) FactureOption {
	return func(f *model.Facture) { f.ClientName = name }
}

func WithOrderRef(ref string) FactureOption {
	return func(f *model.Facture) { f.OrderRef = ref }
}

func WithIssuedAt(t time.Time) FactureOption {
	return func(f *model.Facture) { f.IssuedAt = &t }
}

// SeedFactures creates n factures numbered FC-1-<year>..FC-n-<year> and
// sets the year counter accordingly. Each facture gets one line so the
// lines table is exercised too.
func SeedFactures(t *testing.T, store *model.Store, year, n int, opts ...FactureOption) []model.Facture {
	t.Helper()
	out := make([]model.Facture, 0, n)
	for i := 1; i <= n; i++ {
		issued := time.Date(year, time.March, i%28+1, 10, 0, 0, 0, time.UTC)
		f := model.Facture{
			Status:     model.FactureStatusPaid,
			IssuedAt:   &issued,
			ClientName: "Client Test",
			OrderRef:   refnum.Format(i, year) + "-CMD",
			Currency:   "EUR",
			NetTotal:   decimal.NewFromInt(int64(100 * i)),
			GrossTotal: decimal.NewFromInt(int64(120 * i)),
			Lines: []model.FactureLine{{
				Position:  1,
				Text:      "Prestation",
				Quantity:  decimal.NewFromInt(1),
				UnitPrice: decimal.NewFromInt(int64(100 * i)),
				LineTotal: decimal.NewFromInt(int64(100 * i)),
			}},
		}
		for _, opt := range opts {
			opt(&f)
		}
		if err := store.CreateFacture(&f); err != nil {
			t.Fatalf("seed facture %d: %v", i, err)
		}
		out = append(out, f)
	}
	return out
}

// SeedUser creates an operator account with the given password.
func SeedUser(t *testing.T, store *model.Store, email, password string) *model.User {
	t.Helper()
	u := &model.User{Email: email, FullName: "Test Operator"}
	if err := u.SetPassword(password); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if err := store.CreateUser(u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}
