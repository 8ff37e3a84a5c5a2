// controller/api_facture.go
package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/facturier/backoffice/model"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

func (ctrl *controller) factureInit(e *echo.Echo) {
	g := e.Group("/factures")
	g.Use(ctrl.authMiddleware)
	g.GET("", ctrl.factureList)
	g.GET("/counter/:year", ctrl.counterGet)
	g.PUT("/counter/:year", ctrl.counterPut)
	g.PUT("/updateStatus/:id", ctrl.factureUpdateStatus)
	g.POST("/delete", ctrl.factureDelete)

	pdf := e.Group("/pdf")
	pdf.Use(ctrl.authMiddleware)
	pdf.GET("/invoice/:ref", ctrl.facturePDF)
}

func (ctrl *controller) factureList(c echo.Context) error {
	fs, err := ctrl.model.ListFactures()
	if err != nil {
		return respond(c, http.StatusInternalServerError, apiError("db_error", "could not load factures"))
	}
	items := make([]APIFacture, len(fs))
	for i := range fs {
		items[i] = toAPIFacture(&fs[i])
	}
	return respond(c, http.StatusOK, APIFactureList{Factures: items})
}

func (ctrl *controller) counterGet(c echo.Context) error {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year <= 0 {
		return respond(c, http.StatusBadRequest, apiError("bad_request", "invalid year"))
	}
	counter, err := ctrl.model.GetCounter(year)
	if err != nil {
		return respond(c, http.StatusInternalServerError, apiError("db_error", "could not load counter"))
	}
	return respond(c, http.StatusOK, counter)
}

type counterPutRequest struct {
	Seq int `json:"seq"`
}

func (ctrl *controller) counterPut(c echo.Context) error {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year <= 0 {
		return respond(c, http.StatusBadRequest, apiError("bad_request", "invalid year"))
	}
	var req counterPutRequest
	if err := c.Bind(&req); err != nil {
		return respond(c, http.StatusBadRequest, apiError("bad_request", "invalid body"))
	}
	if err := ctrl.model.SetCounter(year, req.Seq); err != nil {
		return respond(c, http.StatusInternalServerError, apiError("db_error", "could not save counter"))
	}
	return respond(c, http.StatusOK, echo.Map{"ok": true})
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

func (ctrl *controller) factureUpdateStatus(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return respond(c, http.StatusBadRequest, apiError("bad_request", "invalid id"))
	}
	var req statusUpdateRequest
	if err := c.Bind(&req); err != nil {
		return respond(c, http.StatusBadRequest, apiError("bad_request", "invalid body"))
	}
	status := model.FactureStatus(req.Status)
	if !model.ValidFactureStatus(status) {
		return respond(c, http.StatusBadRequest, apiError("bad_status", "status must be paid or cancelled"))
	}
	if err := ctrl.model.UpdateFactureStatus(uint(id), status); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respond(c, http.StatusNotFound, apiError("not_found", "facture not found"))
		}
		return respond(c, http.StatusInternalServerError, apiError("db_error", "could not update status"))
	}
	return respond(c, http.StatusOK, echo.Map{"ok": true})
}

type deleteRequest struct {
	Ids []uint `json:"ids"`
}

func (ctrl *controller) factureDelete(c echo.Context) error {
	var req deleteRequest
	if err := c.Bind(&req); err != nil {
		return respond(c, http.StatusBadRequest, apiError("bad_request", "invalid body"))
	}
	if len(req.Ids) == 0 {
		return respond(c, http.StatusBadRequest, apiError("bad_request", "ids must not be empty"))
	}
	res, err := ctrl.model.DeleteFactures(req.Ids)
	if err != nil {
		return respond(c, http.StatusInternalServerError, apiError("db_error", "could not delete factures"))
	}
	return respond(c, http.StatusOK, res)
}
