package client

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// exportGracePeriod keeps the final progress counts on screen for a
// moment before the export widget resets to idle.
const exportGracePeriod = 5 * time.Second

// ErrNoMonth is returned when an export is started without a selected
// month.
var ErrNoMonth = errors.New("aucun mois sélectionné")

// Export returns the export widget's read model.
func (s *Store) Export() ExportStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ExportStatus{
		Running:     s.export.running,
		HasProgress: s.export.hasProgress,
		Progress:    s.export.progress,
	}
}

// StartExport drives one archive export end to end: it opens the progress
// stream first, then requests the ZIP so no early progress frame is lost,
// and hands the finished archive to Save. A fresh progress id is minted
// per attempt; frames for earlier attempts are discarded. Only one export
// runs at a time, a second call while one is running is a no-op.
func (s *Store) StartExport(ctx context.Context) error {
	s.mu.Lock()
	if s.export.running {
		s.mu.Unlock()
		return nil
	}
	month := s.month
	status := s.status
	if month == "" {
		s.mu.Unlock()
		return ErrNoMonth
	}
	progressID := uuid.NewString()
	s.teardownLocked()
	s.export = exportState{running: true, progressID: progressID}
	s.mu.Unlock()
	s.notify()

	sub, err := s.api.OpenProgress(ctx, progressID,
		func(p Progress) { s.onProgress(progressID, p) },
		func(error) {
			// A dropped stream alone is not fatal, the download
			// below decides the outcome.
		})
	if err == nil {
		s.mu.Lock()
		s.sub = sub
		s.mu.Unlock()
	}

	filename, body, err := s.api.RequestZip(ctx, month, status, progressID)
	if err != nil {
		s.failExport(progressID, err)
		return err
	}
	defer body.Close()
	if s.Save != nil {
		if err := s.Save(filename, body); err != nil {
			s.failExport(progressID, err)
			return err
		}
	}

	s.mu.Lock()
	if s.export.progressID == progressID {
		s.export.running = false
		s.lastErr = ""
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// onProgress applies one stream frame. Frames carrying a stale attempt id
// are dropped, and the first terminal frame arms the reset timer.
func (s *Store) onProgress(progressID string, p Progress) {
	s.mu.Lock()
	if s.export.progressID != progressID || (s.export.hasProgress && s.export.progress.Terminal()) {
		s.mu.Unlock()
		return
	}
	s.export.hasProgress = true
	s.export.progress = p
	if p.Terminal() {
		if s.graceTimer != nil {
			s.graceTimer.Stop()
		}
		s.graceTimer = time.AfterFunc(exportGracePeriod, func() {
			s.resetExport(progressID)
		})
	}
	s.mu.Unlock()
	s.notify()
}

// failExport marks the attempt as failed. The progress stream stays open
// for the grace period so the server's terminal error frame, with its
// counts and message, can still come through; teardown happens when the
// timer fires. A stale attempt id touches nothing, in particular not the
// subscription a newer attempt owns.
func (s *Store) failExport(progressID string, err error) {
	s.mu.Lock()
	if s.export.progressID != progressID {
		s.mu.Unlock()
		return
	}
	s.export.running = false
	s.lastErr = "Échec lors de la création/téléchargement du ZIP : " + err.Error()
	if s.graceTimer != nil {
		s.graceTimer.Stop()
	}
	s.graceTimer = time.AfterFunc(exportGracePeriod, func() {
		s.resetExport(progressID)
	})
	s.mu.Unlock()
	s.notify()
}

// resetExport returns the widget to idle once the grace period after a
// terminal frame elapsed.
func (s *Store) resetExport(progressID string) {
	s.mu.Lock()
	if s.export.progressID != progressID {
		s.mu.Unlock()
		return
	}
	s.export = exportState{}
	s.teardownLocked()
	s.mu.Unlock()
	s.notify()
}

// CloseExport tears the progress stream down immediately, used when the
// screen goes away mid-export.
func (s *Store) CloseExport() {
	s.mu.Lock()
	s.export = exportState{}
	s.teardownLocked()
	s.mu.Unlock()
	s.notify()
}

// teardownLocked cancels the live subscription and any pending reset.
// Caller holds s.mu.
func (s *Store) teardownLocked() {
	if s.sub != nil {
		s.sub.Close()
		s.sub = nil
	}
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
}
