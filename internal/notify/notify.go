// Package notify reports archival outcomes to the user at the configured
// notification level.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/mesh-intelligence/specarchive/pkg/types"
)

// Styles used for notification lines.
var (
	ColorSuccess = lipgloss.Color("42")
	ColorError   = lipgloss.Color("160")
	ColorMuted   = lipgloss.Color("241")

	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	StyleMuted   = lipgloss.NewStyle().Foreground(ColorMuted)
	StyleTitle   = lipgloss.NewStyle().Bold(true)
)

// Notifier writes archival notifications. At NotifyNone nothing is
// written; NotifyMinimal writes failures and batch summaries; NotifyVerbose
// adds per-spec successes and skips. A nil *Notifier is silent.
type Notifier struct {
	mu    sync.Mutex
	out   io.Writer
	level types.NotificationLevel
}

// New returns a Notifier writing to out.
func New(out io.Writer, level types.NotificationLevel) *Notifier {
	return &Notifier{out: out, level: level}
}

// Level returns the current notification level.
func (n *Notifier) Level() types.NotificationLevel {
	if n == nil {
		return types.NotifyNone
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.level
}

// SetLevel changes the notification level.
func (n *Notifier) SetLevel(level types.NotificationLevel) {
	if n == nil {
		return
	}
	n.mu.Lock()
	n.level = level
	n.mu.Unlock()
}

func (n *Notifier) printf(min types.NotificationLevel, format string, args ...any) {
	if n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if rank(n.level) < rank(min) {
		return
	}
	fmt.Fprintf(n.out, format+"\n", args...)
}

func rank(l types.NotificationLevel) int {
	switch l {
	case types.NotifyMinimal:
		return 1
	case types.NotifyVerbose:
		return 2
	default:
		return 0
	}
}

// Result reports one archival attempt. Failures and cleanup problems are
// shown at minimal; clean successes only at verbose.
func (n *Notifier) Result(r types.ArchivalResult) {
	switch {
	case !r.Success:
		n.printf(types.NotifyMinimal, "%s %s: %s (%s)",
			StyleError.Render("✗ failed"), r.SpecName, r.Error, r.ErrorCode)
	case r.ErrorCode != types.CodeNone:
		n.printf(types.NotifyMinimal, "%s %s → %s, but the original was not removed: %s",
			StyleError.Render("! archived"), r.SpecName, r.ArchivePath, r.Error)
	default:
		n.printf(types.NotifyVerbose, "%s %s → %s",
			StyleSuccess.Render("✓ archived"), r.SpecName, r.ArchivePath)
	}
}

// Skipped reports a spec the batch run left in place.
func (n *Notifier) Skipped(s types.SkippedSpec) {
	n.printf(types.NotifyVerbose, "%s %s: %s", StyleMuted.Render("- skipped"), s.Path, s.Reason)
}

// Summary reports the totals of a batch run.
func (n *Notifier) Summary(r types.BatchReport) {
	if r.Disabled {
		n.printf(types.NotifyMinimal, "%s automatic archival is disabled", StyleMuted.Render("auto-archive:"))
		return
	}
	n.printf(types.NotifyMinimal, "%s %d candidate(s), %d archived, %d failed, %d skipped",
		StyleTitle.Render("auto-archive:"), r.Candidates, r.Succeeded(), r.Failed(), len(r.Skipped))
}
