package constants

// JobStatus is the canonical status for rows in jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPending    JobStatus = "PENDING"    // accepted, queued for processing
	JobStatusProcessing JobStatus = "PROCESSING" // picked up by the executor
	JobStatusCompleted  JobStatus = "COMPLETED"  // terminal success
	JobStatusFailed     JobStatus = "FAILED"     // terminal failure
)

// Terminal reports whether a job in this status will never change again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobKind distinguishes direct uploads from pulled syncs.
type JobKind string

const (
	JobKindUpload JobKind = "UPLOAD"
	JobKindSync   JobKind = "SYNC"
)

// Valid reports whether k is a known job kind.
func (k JobKind) Valid() bool {
	return k == JobKindUpload || k == JobKindSync
}

// FailedMessageStatus is the lifecycle status of a dead-lettered message row.
type FailedMessageStatus string

const (
	FailedMessagePending   FailedMessageStatus = "PENDING"
	FailedMessageResolved  FailedMessageStatus = "RESOLVED"
	FailedMessageDiscarded FailedMessageStatus = "DISCARDED"
)
