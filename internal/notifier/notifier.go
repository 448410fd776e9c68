// Package notifier pushes scan events to operator channels through
// shoutrrr service URLs (Discord, Telegram, ntfy, email, ...).
package notifier

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/containrrr/shoutrrr"

	"github.com/mescon/Scanarr/internal/clock"
	"github.com/mescon/Scanarr/internal/domain"
	"github.com/mescon/Scanarr/internal/logger"
)

const (
	// corruptThrottle bounds how often per-file corruption alerts fire.
	// Finding a corrupt season should not page once per episode.
	corruptThrottle = 5 * time.Minute

	// maxListedFiles caps the file list embedded in a summary message.
	maxListedFiles = 20
)

// sendFunc is swapped out in tests.
type sendFunc func(url, message string) error

// Notifier fans scan events out to every configured service URL.
// Safe for concurrent use; the scan engine calls it from its coordinator.
type Notifier struct {
	urls            []string
	notifyOnCorrupt bool
	clk             clock.Clock
	send            sendFunc

	mu         sync.Mutex
	lastAlert  time.Time
	pending    []string
	queued     []string
	flushTimer clock.Timer
}

// New builds a Notifier. With no URLs every method is a no-op.
func New(urls []string, notifyOnCorrupt bool, clk clock.Clock) *Notifier {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Notifier{
		urls:            urls,
		notifyOnCorrupt: notifyOnCorrupt,
		clk:             clk,
		send:            shoutrrr.Send,
	}
}

// Enabled reports whether any service URL is configured.
func (n *Notifier) Enabled() bool {
	return len(n.urls) > 0
}

// VerdictHook returns the callback the scan engine invokes per verdict,
// or nil when corruption alerts are disabled. Corrupt files are always
// collected for the completion summary; immediate alerts are throttled.
func (n *Notifier) VerdictHook() func(*domain.Verdict) {
	if !n.Enabled() || !n.notifyOnCorrupt {
		return nil
	}
	return func(v *domain.Verdict) {
		if !v.IsCorrupt {
			return
		}
		n.mu.Lock()
		n.pending = append(n.pending, v.Path)
		now := n.clk.Now()
		if now.Sub(n.lastAlert) < corruptThrottle {
			// Queue for one batched alert at the end of the throttle
			// window instead of staying silent until the scan finishes.
			n.queued = append(n.queued, v.Path)
			if n.flushTimer == nil {
				n.flushTimer = n.clk.AfterFunc(corruptThrottle-now.Sub(n.lastAlert), n.flushQueued)
			}
			n.mu.Unlock()
			logger.Debugf("Corruption alert throttled for %s", v.Path)
			return
		}
		n.lastAlert = now
		n.mu.Unlock()

		n.broadcast(fmt.Sprintf("Corrupt media detected: %s (confidence %.0f%%): %s",
			v.Path, v.Confidence*100, v.Message))
	}
}

// flushQueued sends the batched alert for files found during the throttle
// window.
func (n *Notifier) flushQueued() {
	n.mu.Lock()
	n.flushTimer = nil
	batch := n.queued
	n.queued = nil
	if len(batch) == 0 {
		n.mu.Unlock()
		return
	}
	n.lastAlert = n.clk.Now()
	n.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "%d more corrupt files detected:", len(batch))
	for i, p := range batch {
		if i == maxListedFiles {
			fmt.Fprintf(&b, "\n  ... and %d more", len(batch)-maxListedFiles)
			break
		}
		fmt.Fprintf(&b, "\n  %s", p)
	}
	n.broadcast(b.String())
}

// ScanFinished sends the roll-up for a finished (or interrupted) scan and
// resets the per-scan corrupt list.
func (n *Notifier) ScanFinished(sum *domain.ScanSummary) {
	if !n.Enabled() {
		return
	}

	n.mu.Lock()
	if n.flushTimer != nil {
		n.flushTimer.Stop()
		n.flushTimer = nil
	}
	n.queued = nil
	corrupt := n.pending
	n.pending = nil
	n.mu.Unlock()

	var b strings.Builder
	if sum.Complete {
		fmt.Fprintf(&b, "Scan of %s finished: %d files, %d corrupt, %d rejected (%s)",
			sum.Directory, sum.Processed, sum.Corrupt, sum.Rejected,
			sum.Duration.Round(time.Second))
	} else {
		fmt.Fprintf(&b, "Scan of %s interrupted at %d/%d files, %d corrupt so far",
			sum.Directory, sum.Processed, sum.TotalFiles, sum.Corrupt)
	}
	if len(corrupt) > 0 {
		b.WriteString("\nCorrupt files:")
		for i, p := range corrupt {
			if i == maxListedFiles {
				fmt.Fprintf(&b, "\n  ... and %d more", len(corrupt)-maxListedFiles)
				break
			}
			fmt.Fprintf(&b, "\n  %s", p)
		}
	}
	n.broadcast(b.String())
}

// broadcast delivers to all URLs; one broken service never blocks the rest.
func (n *Notifier) broadcast(message string) {
	for _, url := range n.urls {
		if err := n.send(url, message); err != nil {
			logger.Warnf("Notification to %s failed: %v", serviceLabel(url), err)
		}
	}
}

// serviceLabel keeps tokens out of the log: only the URL scheme is safe.
func serviceLabel(url string) string {
	if i := strings.Index(url, "://"); i > 0 {
		return url[:i]
	}
	return "service"
}
