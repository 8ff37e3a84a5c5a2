package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Subscription is a handle on one server-push progress stream. The
// coordinator owns at most one at a time and is responsible for calling
// Close.
type Subscription struct {
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Close tears the stream down. Safe to call more than once and after the
// stream already ended on its own.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// Done is closed when the reader goroutine has finished, whatever the
// reason.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// OpenProgress opens the progress channel for the given progress id and
// delivers each decoded snapshot to onMessage. Malformed events are
// dropped without interrupting the stream. A stream-level failure is
// reported once through onError, after which no further callbacks fire.
// The stream ends on Close, on context cancellation, or when the server
// closes it after a terminal snapshot.
func (a *API) OpenProgress(ctx context.Context, progressID string, onMessage func(Progress), onError func(error)) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	url := a.zipBase() + "/invoices/progress/" + progressID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := a.client().Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("open progress stream: status %d", resp.StatusCode)
	}

	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		defer resp.Body.Close()
		defer cancel()
		if err := readEvents(resp.Body, onMessage); err != nil && ctx.Err() == nil {
			if onError != nil {
				onError(err)
			}
		}
	}()
	return sub, nil
}

// readEvents scans an SSE body and decodes every data frame into a
// Progress snapshot. Unparseable frames are skipped.
func readEvents(r io.Reader, onMessage func(Progress)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 256*1024)

	var data strings.Builder
	flush := func() {
		if data.Len() == 0 {
			return
		}
		var p Progress
		if err := json.Unmarshal([]byte(data.String()), &p); err == nil {
			onMessage(p)
		}
		data.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// comments and other SSE fields are ignored
		}
	}
	flush()
	return scanner.Err()
}
