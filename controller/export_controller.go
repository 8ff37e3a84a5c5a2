package controller

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/facturier/backoffice/model"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"
)

func (ctrl *controller) exportInit(e *echo.Echo) {
	g := e.Group("/export/invoices")
	g.Use(ctrl.authMiddleware)
	g.GET("/progress/:progressId", ctrl.exportProgress)
	g.GET("/zip", ctrl.exportZip)
}

// exportProgress streams job snapshots as server-sent events. The stream
// ends when a terminal snapshot has been delivered, when the hub drops the
// job, or when the client goes away.
func (ctrl *controller) exportProgress(c echo.Context) error {
	id := c.Param("progressId")
	if id == "" {
		return respond(c, http.StatusBadRequest, apiError("bad_request", "missing progress id"))
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	last, hasLast, updates, cancel := ctrl.progress.Subscribe(id)
	defer cancel()

	if hasLast {
		if err := writeSSE(res, last); err != nil {
			return nil
		}
		if last.Terminal() {
			return nil
		}
	} else {
		res.Flush()
	}

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeSSE(res, p); err != nil {
				return nil
			}
			if p.Terminal() {
				return nil
			}
		}
	}
}

func writeSSE(res *echo.Response, p Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(res, "data: %s\n\n", data); err != nil {
		return err
	}
	res.Flush()
	return nil
}

// exportZip builds the monthly facture archive and streams it as the
// response body. Progress is reported on the side channel identified by
// the progressId query parameter; the archive build itself does not depend
// on anyone listening.
func (ctrl *controller) exportZip(c echo.Context) error {
	month := c.QueryParam("month")
	if month == "" {
		return respond(c, http.StatusBadRequest, apiError("bad_request", "month is required"))
	}
	status := model.FactureStatus(c.QueryParam("status"))
	progressID := c.QueryParam("progressId")

	fail := func(status int, code, msg string, p Progress) error {
		p.Status = ProgressError
		p.Message = msg
		ctrl.progress.Publish(progressID, p)
		return respond(c, status, apiError(code, msg))
	}

	fs, err := ctrl.model.ListFacturesForMonth(month, status)
	if err != nil {
		return fail(http.StatusBadRequest, "bad_request", err.Error(), Progress{})
	}

	p := Progress{Total: len(fs), Status: ProgressRunning}
	ctrl.progress.Publish(progressID, p)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "application/zip")
	res.Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="FACTURES-%s.zip"`, month))
	res.WriteHeader(http.StatusOK)

	zw := zip.NewWriter(res)
	for i := range fs {
		if err := ctrl.addFactureFiles(zw, &fs[i]); err != nil {
			// missing PDF is not fatal for the archive as a whole
			p.Failed++
		} else {
			p.Done++
		}
		ctrl.progress.Publish(progressID, p)
	}

	if err := ctrl.addRecapSheet(zw, month, fs); err != nil {
		p.Status = ProgressError
		p.Message = "recap: " + err.Error()
		ctrl.progress.Publish(progressID, p)
		return fmt.Errorf("write recap sheet: %w", err)
	}

	if err := zw.Close(); err != nil {
		p.Status = ProgressError
		p.Message = err.Error()
		ctrl.progress.Publish(progressID, p)
		return fmt.Errorf("close archive: %w", err)
	}

	p.Status = ProgressDone
	ctrl.progress.Publish(progressID, p)
	return nil
}

// addFactureFiles puts <ref>.pdf into the archive and, when the renderer
// left one, the matching e-invoice XML next to it.
func (ctrl *controller) addFactureFiles(zw *zip.Writer, f *model.Facture) error {
	pdfPath, ok := ctrl.pdfPath(f.Ref)
	if !ok {
		return fmt.Errorf("unusable ref %q", f.Ref)
	}
	if err := addFileToZip(zw, pdfPath, "pdf/"+f.Ref+".pdf"); err != nil {
		return err
	}
	if xmlPath, ok := ctrl.xmlSidecarPath(f.Ref); ok {
		if _, err := os.Stat(xmlPath); err == nil {
			if err := addFileToZip(zw, xmlPath, "xml/"+f.Ref+".xml"); err != nil {
				return err
			}
		}
	}
	return nil
}

// addFileToZip copies a single file from disk into the ZIP archive under
// the given zipPath.
func addFileToZip(zw *zip.Writer, srcPath, zipPath string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := zw.Create(zipPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		return err
	}
	return nil
}

// addRecapSheet writes recap.xlsx, one row per facture of the month.
func (ctrl *controller) addRecapSheet(zw *zip.Writer, month string, fs []model.Facture) error {
	x := excelize.NewFile()
	defer x.Close()

	const sheet = "Factures"
	if err := x.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	header := []any{"Référence", "Client", "Commande", "Statut", "Date", "Devise", "Total HT", "Total TTC"}
	if err := x.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i := range fs {
		f := &fs[i]
		row := []any{
			f.Ref,
			f.ClientName,
			f.OrderRef,
			string(f.Status),
			f.EffectiveDate().Format("2006-01-02"),
			f.Currency,
			f.NetTotal.String(),
			f.GrossTotal.String(),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := x.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	w, err := zw.Create("recap.xlsx")
	if err != nil {
		return err
	}
	if err := x.Write(w); err != nil {
		return fmt.Errorf("recap %s: %w", month, err)
	}
	return nil
}
