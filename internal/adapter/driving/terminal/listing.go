package terminal

import (
	"bytes"

	"github.com/dustin/go-humanize"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
)

// Repositories writes the configured repositories with the last commit and
// check time recorded for each in state.
func (d *Display) Repositories(repos []model.Repository, state model.PersistedState) {
	var b bytes.Buffer
	if len(repos) == 0 {
		b.WriteString("No repositories configured\n")
		d.write(b.Bytes())
		return
	}

	d.heading.Fprintf(&b, "Configured repositories:\n")
	for _, repo := range repos {
		b.WriteString("  " + repo.Name + " -> " + repo.URL + "\n")

		rs, tracked := state[repo.Key]
		commit := "not tracked"
		if tracked && rs.LastCommit != "" {
			commit = shortSHA(rs.LastCommit)
		}
		check := "never"
		if tracked && !rs.LastCheck.IsZero() {
			check = rs.LastCheck.Format("2006-01-02 15:04") + " (" + humanize.RelTime(rs.LastCheck.Time, d.now(), "ago", "from now") + ")"
		}
		d.subtle.Fprintf(&b, "    last commit: %s\n", commit)
		d.subtle.Fprintf(&b, "    last check:  %s\n", check)
	}
	d.write(b.Bytes())
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
