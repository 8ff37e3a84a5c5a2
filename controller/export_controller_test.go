package controller

import (
	"archive/zip"
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/facturier/backoffice/fixtures"
	"github.com/facturier/backoffice/model"
)

func writePDF(t *testing.T, dir, ref string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, ref+".pdf"), []byte("%PDF-1.4 fake"), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
}

func TestProgressHub_LatestSnapshotReplay(t *testing.T) {
	h := newProgressHub(time.Hour)

	h.Publish("job-1", Progress{Done: 1, Total: 3, Status: ProgressRunning})
	h.Publish("job-1", Progress{Done: 2, Total: 3, Status: ProgressRunning})

	last, hasLast, _, cancel := h.Subscribe("job-1")
	defer cancel()
	if !hasLast {
		t.Fatal("expected a replayed snapshot")
	}
	if last.Done != 2 {
		t.Errorf("replayed done = %d, want 2", last.Done)
	}
}

func TestProgressHub_SubscriberCreatesJob(t *testing.T) {
	h := newProgressHub(time.Hour)

	// open before request: subscribing to an unknown id creates the state
	_, hasLast, updates, cancel := h.Subscribe("job-new")
	defer cancel()
	if hasLast {
		t.Fatal("fresh job must not have a snapshot")
	}

	h.Publish("job-new", Progress{Done: 1, Total: 1, Status: ProgressDone})
	select {
	case p := <-updates:
		if p.Status != ProgressDone {
			t.Errorf("status = %q, want done", p.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}
}

func TestProgressHub_TerminalDropsJobAfterGrace(t *testing.T) {
	h := newProgressHub(20 * time.Millisecond)

	_, _, updates, cancel := h.Subscribe("job-x")
	defer cancel()
	h.Publish("job-x", Progress{Status: ProgressDone})

	// first the terminal snapshot, then the closed channel after the grace
	p, ok := <-updates
	if !ok || !p.Terminal() {
		t.Fatalf("first receive = (%+v, %v), want terminal snapshot", p, ok)
	}
	select {
	case _, ok := <-updates:
		if ok {
			t.Error("expected channel close, got another update")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after grace period")
	}

	h.mu.Lock()
	_, exists := h.jobs["job-x"]
	h.mu.Unlock()
	if exists {
		t.Error("job state still present after grace period")
	}
}

func TestExportProgressSSE_ReplaysTerminalAndEnds(t *testing.T) {
	e, ctrl, _ := setupTest(t)

	ctrl.progress.Publish("abc-123", Progress{Done: 4, Total: 4, Status: ProgressDone})

	rec := doJSON(t, e, http.MethodGet, "/export/invoices/progress/abc-123", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("content type = %q, want text/event-stream", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"status":"done"`) {
		t.Errorf("body = %q, want a done event", body)
	}
	if !strings.HasPrefix(body, "data: ") {
		t.Errorf("body = %q, want SSE data frame", body)
	}
}

func TestExportZip(t *testing.T) {
	e, ctrl, store := setupTest(t)

	issued := time.Date(2025, time.July, 10, 8, 0, 0, 0, time.UTC)
	fs := fixtures.SeedFactures(t, store, 2025, 3, fixtures.WithIssuedAt(issued))
	for _, f := range fs {
		writePDF(t, store.Config.PDFDir, f.Ref)
	}
	// an e-invoice side car for the first facture only
	xmlPath := filepath.Join(store.Config.PDFDir, fs[0].Ref+".xml")
	if err := os.WriteFile(xmlPath, []byte("<Invoice/>"), 0o644); err != nil {
		t.Fatalf("write xml: %v", err)
	}

	rec := doJSON(t, e, http.MethodGet, "/export/invoices/zip?month=2025-07&progressId=job-zip", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "FACTURES-2025-07.zip") {
		t.Errorf("content disposition = %q, want FACTURES-2025-07.zip", cd)
	}

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, f := range fs {
		if !names["pdf/"+f.Ref+".pdf"] {
			t.Errorf("archive misses pdf/%s.pdf", f.Ref)
		}
	}
	if !names["xml/"+fs[0].Ref+".xml"] {
		t.Errorf("archive misses the e-invoice side car for %s", fs[0].Ref)
	}
	if !names["recap.xlsx"] {
		t.Error("archive misses recap.xlsx")
	}

	last, hasLast, _, cancel := ctrl.progress.Subscribe("job-zip")
	defer cancel()
	if !hasLast || last.Status != ProgressDone {
		t.Errorf("final progress = (%+v, %v), want done snapshot", last, hasLast)
	}
	if last.Done != 3 || last.Total != 3 || last.Failed != 0 {
		t.Errorf("final counts = %+v, want done 3/3, failed 0", last)
	}
}

func TestExportZip_MissingPDFCountsAsFailed(t *testing.T) {
	e, ctrl, store := setupTest(t)

	issued := time.Date(2025, time.July, 10, 8, 0, 0, 0, time.UTC)
	fs := fixtures.SeedFactures(t, store, 2025, 2, fixtures.WithIssuedAt(issued))
	writePDF(t, store.Config.PDFDir, fs[0].Ref) // second PDF missing

	rec := doJSON(t, e, http.MethodGet, "/export/invoices/zip?month=2025-07&progressId=job-miss", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	last, hasLast, _, cancel := ctrl.progress.Subscribe("job-miss")
	defer cancel()
	if !hasLast {
		t.Fatal("no final snapshot")
	}
	if last.Done != 1 || last.Failed != 1 {
		t.Errorf("final counts = %+v, want done 1, failed 1", last)
	}
	if last.Status != ProgressDone {
		t.Errorf("status = %q, want done (missing PDFs do not abort the job)", last.Status)
	}
}

func TestExportZip_StatusFilter(t *testing.T) {
	e, _, store := setupTest(t)

	issued := time.Date(2025, time.July, 10, 8, 0, 0, 0, time.UTC)
	paid := fixtures.SeedFactures(t, store, 2025, 1, fixtures.WithIssuedAt(issued))
	cancelled := fixtures.SeedFactures(t, store, 2025, 1,
		fixtures.WithIssuedAt(issued), fixtures.WithStatus(model.FactureStatusCancelled))
	writePDF(t, store.Config.PDFDir, paid[0].Ref)
	writePDF(t, store.Config.PDFDir, cancelled[0].Ref)

	rec := doJSON(t, e, http.MethodGet, "/export/invoices/zip?month=2025-07&status=paid", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	var pdfs int
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "pdf/") {
			pdfs++
		}
	}
	if pdfs != 1 {
		t.Errorf("pdf entries = %d, want 1 (cancelled facture filtered out)", pdfs)
	}
}

func TestExportZip_MissingMonth(t *testing.T) {
	e, _, _ := setupTest(t)
	rec := doJSON(t, e, http.MethodGet, "/export/invoices/zip", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestFacturePDF(t *testing.T) {
	e, _, store := setupTest(t)
	fs := fixtures.SeedFactures(t, store, 2025, 1)
	writePDF(t, store.Config.PDFDir, fs[0].Ref)

	rec := doJSON(t, e, http.MethodGet, "/pdf/invoice/"+fs[0].Ref, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Error("body does not look like a PDF")
	}

	rec = doJSON(t, e, http.MethodGet, "/pdf/invoice/FC-99-2025", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing file: status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, e, http.MethodGet, "/pdf/invoice/..%2Fsecret", "")
	if rec.Code == http.StatusOK {
		t.Error("path traversal must not succeed")
	}
}

func TestFacturePDF_StrayFileWithoutFacture(t *testing.T) {
	e, _, store := setupTest(t)
	// a file in PDFDir with no facture row behind it must not be served
	writePDF(t, store.Config.PDFDir, "FC-7-2031")

	rec := doJSON(t, e, http.MethodGet, "/pdf/invoice/FC-7-2031", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
