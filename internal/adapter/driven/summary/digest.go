package summary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
	"github.com/ericfisherdev/repowatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Summarizer = (*Digest)(nil)

// Digest summarizes by listing what changed, newest first, one bullet each.
type Digest struct {
	bullets int
	now     func() time.Time
}

// NewDigest creates a Digest that lists at most bullets entries per section.
func NewDigest(bullets int) *Digest {
	if bullets <= 0 {
		bullets = DefaultBullets
	}
	return &Digest{bullets: bullets, now: time.Now}
}

// Summarize implements driven.Summarizer.
func (d *Digest) Summarize(_ context.Context, req model.SummaryRequest) (string, error) {
	var b strings.Builder

	if req.Kind == model.SummaryNews {
		d.writeCommits(&b, "", req.Commits)
		for i, r := range req.Releases {
			if i == d.bullets {
				break
			}
			line := "released " + r.TagName
			if r.Name != "" && r.Name != r.TagName {
				line += " (" + r.Name + ")"
			}
			if !r.PublishedAt.IsZero() {
				line += ", " + humanize.RelTime(r.PublishedAt, d.now(), "ago", "from now")
			}
			fmt.Fprintf(&b, "• %s\n", line)
		}
	}

	for _, br := range req.Branches {
		header := br.Branch
		switch {
		case br.Unrelated():
			header += ": unrelated history"
		default:
			header += fmt.Sprintf(": %s ahead", humanize.Comma(int64(br.AheadBy)))
		}
		if br.ReadmeTouched {
			header += ", README changed"
		}
		fmt.Fprintf(&b, "• %s\n", header)
		d.writeCommits(&b, "  ", br.NewCommits)
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

// writeCommits lists oldest-first commits newest first, capped, noting how
// many were left out.
func (d *Digest) writeCommits(b *strings.Builder, indent string, commits []model.CommitRef) {
	shown := 0
	for i := len(commits) - 1; i >= 0 && shown < d.bullets; i-- {
		fmt.Fprintf(b, "%s• %s\n", indent, commits[i].Title())
		shown++
	}
	if rest := len(commits) - shown; rest > 0 {
		fmt.Fprintf(b, "%s  …and %s more\n", indent, humanize.Comma(int64(rest)))
	}
}
