package backup

import "time"

type RunStatus string

const (
	// Run record created, backup in progress
	RunStatusStarted RunStatus = "started"

	// Archive written and verified
	RunStatusSuccess RunStatus = "success"

	// Archive could not be written, verified or handed over
	RunStatusFailure RunStatus = "failure"

	// Cancellation observed while the run was in progress
	RunStatusInterrupted RunStatus = "interrupted"
)

type Run struct {
	Id int64 // identifier for DB

	Type string // daily, monthly or yearly
	Full bool

	ArchivePath string
	DbDumpPath  string

	Status RunStatus

	Files int64
	Bytes int64 // size of the produced archive

	Error string

	StartedAt  time.Time
	FinishedAt *time.Time
}

func (r Run) Finished() bool {
	return r.Status != RunStatusStarted
}
