// controller/api_common.go
package controller

import (
	"time"

	"github.com/facturier/backoffice/model"

	"github.com/labstack/echo/v4"
)

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func apiError(code, msg string) *APIError { return &APIError{Code: code, Message: msg} }

func respond(c echo.Context, status int, v any) error {
	return c.JSON(status, v)
}

// ---- DTOs für Factures ----
//
// Field names mirror the wire contract the back-office front end consumes.
type APIFacture struct {
	ID         uint             `json:"id"`
	Ref        string           `json:"ref"`
	Status     string           `json:"status"`
	ClientName string           `json:"clientName"`
	OrderRef   string           `json:"orderRef"`
	Currency   string           `json:"currency"`
	NetTotal   string           `json:"netTotal"`
	GrossTotal string           `json:"grossTotal"`
	IssuedAt   *time.Time       `json:"issuedAt,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	Lines      []APIFactureLine `json:"lines,omitempty"`
}

type APIFactureLine struct {
	ID        uint   `json:"id"`
	Position  int    `json:"position"`
	Text      string `json:"text"`
	Quantity  string `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
	LineTotal string `json:"lineTotal"`
}

type APIFactureList struct {
	Factures []APIFacture `json:"factures"`
}

func toAPIFacture(f *model.Facture) APIFacture {
	lines := make([]APIFactureLine, len(f.Lines))
	for i, l := range f.Lines {
		lines[i] = APIFactureLine{
			ID:        l.ID,
			Position:  l.Position,
			Text:      l.Text,
			Quantity:  l.Quantity.String(),
			UnitPrice: l.UnitPrice.String(),
			LineTotal: l.LineTotal.String(),
		}
	}
	return APIFacture{
		ID:         f.ID,
		Ref:        f.Ref,
		Status:     string(f.Status),
		ClientName: f.ClientName,
		OrderRef:   f.OrderRef,
		Currency:   f.Currency,
		NetTotal:   f.NetTotal.String(),
		GrossTotal: f.GrossTotal.String(),
		IssuedAt:   f.IssuedAt,
		CreatedAt:  f.CreatedAt,
		Lines:      lines,
	}
}
