package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// exportServer serves both export endpoints: the progress stream replays
// the given frames, the zip endpoint returns a fixed archive body.
func exportServer(t *testing.T, frames []string, zip http.HandlerFunc) *API {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/export/invoices/progress/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer is not a flusher")
		}
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
			fl.Flush()
		}
	})
	mux.HandleFunc("/export/invoices/zip", zip)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewAPI(srv.URL)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestStartExport_DownloadsAndTracksProgress(t *testing.T) {
	var saved string
	var content bytes.Buffer
	api := exportServer(t,
		[]string{
			`{"done":1,"total":3,"status":"running"}`,
			`{"done":3,"total":3,"status":"done"}`,
		},
		func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("month"); got != "2025-03" {
				t.Errorf("month = %q", got)
			}
			if r.URL.Query().Get("progressId") == "" {
				t.Error("zip request carries no progress id")
			}
			w.Header().Set("Content-Disposition", `attachment; filename="FACTURES-2025-03.zip"`)
			w.Write([]byte("zipbytes"))
		})
	s := NewStore(api)
	s.month = "2025-03"
	s.Save = func(filename string, r io.Reader) error {
		saved = filename
		_, err := io.Copy(&content, r)
		return err
	}

	if err := s.StartExport(context.Background()); err != nil {
		t.Fatal(err)
	}
	if saved != "FACTURES-2025-03.zip" {
		t.Errorf("saved filename = %q", saved)
	}
	if content.String() != "zipbytes" {
		t.Errorf("archive content = %q", content.String())
	}
	waitFor(t, func() bool {
		e := s.Export()
		return e.HasProgress && e.Progress.Terminal()
	})
	e := s.Export()
	if e.Progress.Done != 3 || e.Progress.Total != 3 {
		t.Errorf("final progress = %d/%d, want 3/3", e.Progress.Done, e.Progress.Total)
	}
}

func TestStartExport_RequiresMonth(t *testing.T) {
	s := NewStore(NewAPI("http://unused.invalid"))
	if err := s.StartExport(context.Background()); err != ErrNoMonth {
		t.Errorf("err = %v, want ErrNoMonth", err)
	}
}

func TestStartExport_ServerFailureSetsMessage(t *testing.T) {
	api := exportServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "archive indisponible", http.StatusInternalServerError)
	})
	s := NewStore(api)
	s.month = "2025-03"

	if err := s.StartExport(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	msg := s.LastError()
	if !strings.Contains(msg, "Échec lors de la création/téléchargement du ZIP") {
		t.Errorf("message = %q", msg)
	}
	if !strings.Contains(msg, "archive indisponible") {
		t.Errorf("message %q lacks the server diagnostic", msg)
	}
	if s.Export().Running {
		t.Error("export still marked running after failure")
	}
}

func TestStartExport_FailureKeepsStreamForTerminalFrame(t *testing.T) {
	api := exportServer(t,
		[]string{`{"done":1,"total":3,"failed":1,"status":"error","message":"disque plein"}`},
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "archive indisponible", http.StatusInternalServerError)
		})
	s := NewStore(api)
	s.month = "2025-03"

	if err := s.StartExport(context.Background()); err == nil {
		t.Fatal("expected an error")
	}

	// the subscription survives the failure so the terminal error frame
	// still comes through
	s.mu.Lock()
	sub := s.sub
	s.mu.Unlock()
	if sub == nil {
		t.Fatal("failure tore the progress stream down immediately")
	}
	waitFor(t, func() bool {
		e := s.Export()
		return e.HasProgress && e.Progress.Status == "error"
	})
	e := s.Export()
	if e.Progress.Failed != 1 || e.Progress.Message != "disque plein" {
		t.Errorf("terminal frame = %+v", e.Progress)
	}
}

func TestFailExport_StaleAttemptLeavesNewExportAlone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	s := NewStore(nil)
	s.export = exportState{running: true, progressID: "current"}
	s.sub = sub

	s.failExport("previous", errors.New("dial tcp: connection refused"))

	if !s.Export().Running {
		t.Error("stale failure reset the running export")
	}
	if s.LastError() != "" {
		t.Errorf("stale failure recorded %q", s.LastError())
	}
	s.mu.Lock()
	kept := s.sub == sub
	s.mu.Unlock()
	if !kept {
		t.Error("stale failure replaced the live subscription")
	}
	select {
	case <-ctx.Done():
		t.Error("stale failure cancelled the live subscription")
	default:
	}
}

func TestOnProgress_DropsStaleAttempts(t *testing.T) {
	s := NewStore(nil)
	s.export = exportState{running: true, progressID: "current"}

	s.onProgress("previous", Progress{Done: 9, Total: 9, Status: "done"})
	if s.Export().HasProgress {
		t.Error("frame for a stale attempt was applied")
	}
	s.onProgress("current", Progress{Done: 1, Total: 3, Status: "running"})
	if got := s.Export().Progress.Done; got != 1 {
		t.Errorf("done = %d, want 1", got)
	}
}

func TestOnProgress_IgnoresFramesAfterTerminal(t *testing.T) {
	s := NewStore(nil)
	s.export = exportState{running: true, progressID: "id"}

	s.onProgress("id", Progress{Done: 3, Total: 3, Status: "done"})
	s.onProgress("id", Progress{Done: 1, Total: 3, Status: "running"})

	e := s.Export()
	if e.Progress.Status != "done" || e.Progress.Done != 3 {
		t.Errorf("progress after terminal = %+v", e.Progress)
	}
	s.CloseExport()
}

func TestCloseExport_ResetsState(t *testing.T) {
	s := NewStore(nil)
	s.export = exportState{running: true, progressID: "id", hasProgress: true}
	s.CloseExport()
	e := s.Export()
	if e.Running || e.HasProgress {
		t.Errorf("state after close = %+v", e)
	}
}

func TestReadEvents_SkipsMalformedFrames(t *testing.T) {
	body := strings.Join([]string{
		`data: {"done":1,"total":2,"status":"running"}`,
		``,
		`data: {not json`,
		``,
		`: keepalive comment`,
		``,
		`data: {"done":2,"total":2,"status":"done"}`,
		``,
	}, "\n")

	var got []Progress
	if err := readEvents(strings.NewReader(body), func(p Progress) {
		got = append(got, p)
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("%d frames decoded, want 2", len(got))
	}
	if got[0].Done != 1 || got[1].Status != "done" {
		t.Errorf("frames = %+v", got)
	}
}

func TestOpenProgress_ReportsStreamErrorOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "pas de flux", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	api := NewAPI(srv.URL)
	api.ZipBase = srv.URL

	_, err := api.OpenProgress(context.Background(), "id", func(Progress) {}, nil)
	if err == nil {
		t.Fatal("expected an error for a non-200 stream response")
	}
}
