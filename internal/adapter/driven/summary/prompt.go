// Package summary implements the summarizer port: a deterministic digest
// that needs no external service, and a command adapter that pipes a prompt
// to an external summarization CLI.
package summary

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
)

// DefaultBullets is the bullet count requested when none is configured.
const DefaultBullets = 5

const newsPrompt = `Summarize recent activity for the {{.Repo}} repository.
{{if .Commits}}
Recent commits:
{{range .Commits}}- {{.Title}} ({{.AuthorName}})
{{end}}{{end}}{{if .Releases}}
Recent releases:
{{range .Releases}}- {{.TagName}}{{if .Name}}: {{.Name}}{{end}}
{{end}}{{end}}{{if .Branches}}
Active branches:
{{range .Branches}}{{template "branch" .}}{{end}}{{end}}
Write at most {{.Bullets}} bullet points covering the most important changes,
major ones first, up to 15 words each. Do not repeat yourself and do not
mention version numbers unless it is a major version.
The output is shown in a terminal: plain text, no markdown, no title.
`

const forkPrompt = `Summarize what the fork {{.Subject}} adds over {{.Repo}}.

Branches analyzed: {{len .Branches}}
{{range .Branches}}{{template "branch" .}}{{end}}
Write at most {{.Bullets}} bullet points covering the most valuable changes,
major ones first, up to 15 words each. Do not mention how many commits ahead
the fork is, and mention the README only if it changed.
The output is shown in a terminal: plain text, no markdown, no title.
`

const branchPartial = `{{define "branch"}}- {{.Branch}}{{if .Unrelated}} (unrelated history){{else}} ({{.AheadBy}} ahead, {{.BehindBy}} behind){{end}}{{if .ReadmeTouched}}, README changed{{end}}
{{range .NewCommits}}  - {{.Title}}
{{end}}{{end}}`

var (
	newsTemplate = template.Must(template.Must(template.New("news").Parse(branchPartial)).Parse(newsPrompt))
	forkTemplate = template.Must(template.Must(template.New("fork").Parse(branchPartial)).Parse(forkPrompt))
)

type promptData struct {
	Repo     string
	Subject  string
	Bullets  int
	Commits  []model.CommitRef
	Releases []model.Release
	Branches []model.BranchAnalysis
}

// BuildPrompt renders the instruction text sent to a summarization model.
func BuildPrompt(req model.SummaryRequest, bullets int) (string, error) {
	if bullets <= 0 {
		bullets = DefaultBullets
	}

	data := promptData{
		Repo:     req.Repository.FullName(),
		Subject:  req.Subject,
		Bullets:  bullets,
		Commits:  req.Commits,
		Releases: req.Releases,
		Branches: req.Branches,
	}

	tmpl := newsTemplate
	if req.Kind == model.SummaryFork {
		tmpl = forkTemplate
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", tmpl.Name(), err)
	}
	return b.String(), nil
}
