package controller

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
)

// facturePDF serves a single facture PDF. The PDF itself is produced by an
// external renderer that drops <ref>.pdf (and optionally a <ref>.xml side
// car) into Config.PDFDir. This handler only hands the file out.
func (ctrl *controller) facturePDF(c echo.Context) error {
	ref := c.Param("ref")
	p, ok := ctrl.pdfPath(ref)
	if !ok {
		return respond(c, http.StatusBadRequest, apiError("bad_ref", "invalid facture reference"))
	}
	// only documents belonging to a known facture leave the directory
	if _, err := ctrl.model.LoadFactureByRef(ref); err != nil {
		return respond(c, http.StatusNotFound, apiError("not_found", "facture not found"))
	}
	if _, err := os.Stat(p); err != nil {
		return respond(c, http.StatusNotFound, apiError("not_found", "no PDF for this facture"))
	}
	return c.Attachment(p, ref+".pdf")
}

// pdfPath maps a reference to its file below PDFDir. References come from
// URLs, so anything that could escape the directory is rejected.
func (ctrl *controller) pdfPath(ref string) (string, bool) {
	if ref == "" || strings.ContainsAny(ref, "/\\") || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return "", false
	}
	return filepath.Join(ctrl.model.Config.PDFDir, ref+".pdf"), true
}

// xmlSidecarPath returns the path of the e-invoice XML the renderer may
// have written next to the PDF.
func (ctrl *controller) xmlSidecarPath(ref string) (string, bool) {
	p, ok := ctrl.pdfPath(ref)
	if !ok {
		return "", false
	}
	return strings.TrimSuffix(p, ".pdf") + ".xml", true
}
