package driven

import "github.com/ericfisherdev/repowatch/internal/domain/model"

// Display renders batch output. Each repository task writes to its own
// Report; nothing reaches the terminal until Close, so output from
// concurrent tasks never interleaves.
type Display interface {
	Open(repo model.Repository) Report
}

// Report buffers the output of one repository task.
type Report interface {
	News(report model.NewsReport)
	NoUpdates(reason string)
	Fork(analysis model.ForkAnalysis)
	ForkTotals(active, listed int)
	Warn(msg string)
	Error(err error)
	Close()
}
