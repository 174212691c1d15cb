package constants

// DocumentStatus is the lifecycle state of a trade document.
type DocumentStatus string

// Stable values (store these exact strings in DB).
const (
	DocumentStatusUploaded DocumentStatus = "uploaded"
	DocumentStatusPending  DocumentStatus = "pending"
	DocumentStatusApproved DocumentStatus = "approved"
	DocumentStatusRejected DocumentStatus = "rejected"
)

var AllDocumentStatuses = []DocumentStatus{
	DocumentStatusUploaded,
	DocumentStatusPending,
	DocumentStatusApproved,
	DocumentStatusRejected,
}

// ExtractionStatus tracks a single document file through the pipeline.
type ExtractionStatus string

const (
	ExtractionPending ExtractionStatus = "pending"
	ExtractionRunning ExtractionStatus = "running" // also set again on retry
	ExtractionDone    ExtractionStatus = "done"
	ExtractionFailed  ExtractionStatus = "failed"
)

// ValidationTrigger records who asked for a validation run.
type ValidationTrigger string

const (
	TriggerAuto   ValidationTrigger = "auto"
	TriggerManual ValidationTrigger = "manual"
)
