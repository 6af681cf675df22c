// Package terminal renders batch output as plain per-repository blocks.
package terminal

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
	"github.com/ericfisherdev/repowatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Display = (*Display)(nil)

// Display writes each repository's block to out in one piece when its report
// is closed.
type Display struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time

	heading *color.Color
	subtle  *color.Color
	warn    *color.Color
	fail    *color.Color
	ok      *color.Color
}

// NewDisplay creates a Display writing to out. Colors are emitted only when
// colored is true.
func NewDisplay(out io.Writer, colored bool) *Display {
	d := &Display{
		out:     out,
		now:     time.Now,
		heading: color.New(color.FgCyan, color.Bold),
		subtle:  color.New(color.FgHiBlack),
		warn:    color.New(color.FgYellow),
		fail:    color.New(color.FgRed, color.Bold),
		ok:      color.New(color.FgGreen),
	}
	for _, c := range []*color.Color{d.heading, d.subtle, d.warn, d.fail, d.ok} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return d
}

// Open implements driven.Display.
func (d *Display) Open(repo model.Repository) driven.Report {
	return &Report{display: d, repo: repo}
}

func (d *Display) write(p []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, _ = d.out.Write(p)
}

// Report buffers one repository's output. Events after Close are dropped.
type Report struct {
	display *Display
	repo    model.Repository

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

// Compile-time interface satisfaction check.
var _ driven.Report = (*Report)(nil)

func (r *Report) printf(c *color.Color, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if c == nil {
		fmt.Fprintf(&r.buf, format, args...)
		return
	}
	c.Fprintf(&r.buf, format, args...)
}

func (r *Report) body(text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		r.printf(nil, "  %s\n", line)
	}
}

// News implements driven.Report.
func (r *Report) News(report model.NewsReport) {
	d := r.display
	parts := []string{fmt.Sprintf("%s new commit%s on %s",
		humanize.Comma(int64(len(report.Commits))), plural(len(report.Commits)), report.DefaultBranch)}
	if n := len(report.Releases); n > 0 {
		parts = append(parts, fmt.Sprintf("%d release%s", n, plural(n)))
	}
	if n := len(report.Branches); n > 0 {
		parts = append(parts, fmt.Sprintf("%d active branch%s", n, pluralES(n)))
	}
	r.printf(d.subtle, "  %s\n", strings.Join(parts, ", "))
	if report.Summary != "" {
		r.body(report.Summary)
	}
}

// NoUpdates implements driven.Report.
func (r *Report) NoUpdates(reason string) {
	r.printf(r.display.ok, "  ✓ %s\n", reason)
}

// Fork implements driven.Report.
func (r *Report) Fork(analysis model.ForkAnalysis) {
	d := r.display
	line := fmt.Sprintf("  ⑂ %s", analysis.Fork.FullName)
	if analysis.TotalAhead > 0 {
		line += fmt.Sprintf(" (%s ahead", humanize.Comma(int64(analysis.TotalAhead)))
		if active := analysis.Fork.LastActivity(); !active.IsZero() {
			line += ", active " + humanize.RelTime(active, d.now(), "ago", "from now")
		}
		line += ")"
	}
	r.printf(d.heading, "%s\n", line)
	if analysis.Summary != "" {
		r.body(analysis.Summary)
	}
}

// ForkTotals implements driven.Report.
func (r *Report) ForkTotals(active, listed int) {
	r.printf(r.display.subtle, "  %d of %d fork%s with new activity\n", active, listed, plural(listed))
}

// Warn implements driven.Report.
func (r *Report) Warn(msg string) {
	r.printf(r.display.warn, "  ! %s\n", msg)
}

// Error implements driven.Report.
func (r *Report) Error(err error) {
	if err == nil {
		return
	}
	msg := err.Error()
	if errors.Is(err, driven.ErrNotFound) || errors.Is(err, driven.ErrAccessDenied) {
		msg = "not found or not accessible"
	}
	r.printf(r.display.fail, "  ✗ %s\n", msg)
}

// Close implements driven.Report. The block is written only if something
// was reported.
func (r *Report) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	body := r.buf.Bytes()
	r.mu.Unlock()

	if len(body) == 0 {
		return
	}

	var block bytes.Buffer
	title := r.repo.FullName()
	if r.repo.Name != "" && !strings.EqualFold(r.repo.Name, r.repo.Repo) {
		title = r.repo.Name + " (" + title + ")"
	}
	r.display.heading.Fprintf(&block, "━━ %s\n", title)
	block.Write(body)
	block.WriteByte('\n')
	r.display.write(block.Bytes())
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func pluralES(n int) string {
	if n == 1 {
		return ""
	}
	return "es"
}
