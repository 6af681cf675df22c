package model

// Concern selects which persisted state document a processor reads and writes.
type Concern string

const (
	ConcernNews  Concern = "news"  // Default branch commits, releases, and branches.
	ConcernForks Concern = "forks" // Fork branches ahead of the parent.
)

// Concerns lists every concern in a stable order.
var Concerns = []Concern{ConcernNews, ConcernForks}

// Valid reports whether c names a known concern.
func (c Concern) Valid() bool {
	return c == ConcernNews || c == ConcernForks
}

// TaskStatus represents the lifecycle of one repository task in a batch.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskTimedOut  TaskStatus = "timed_out"
)

// Terminal reports whether the task has finished.
func (s TaskStatus) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskTimedOut
}
