package constants

// JobStatus is the canonical status for rows in jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusProcessing JobStatus = "processing" // pipeline in flight
	JobStatusCompleted  JobStatus = "completed"  // report rendered
	JobStatusError      JobStatus = "error"      // job-fatal failure (distinct from per-file failures)
)

// FileStatus is the canonical per-file lifecycle status for rows in files.
type FileStatus string

const (
	FileStatusUploaded  FileStatus = "uploaded"             // stored on disk, not yet extracted
	FileStatusExtracted FileStatus = "extracted"            // fields extracted
	FileStatusReady     FileStatus = "ready_for_conversion" // currency/amount/date derived
	FileStatusConverted FileStatus = "converted"            // exchange rate applied
	FileStatusFailed    FileStatus = "failed"               // terminal failure for this run
)

// PipelineStep names the stage a job is currently in; emitted on progress events.
type PipelineStep string

const (
	StepUploading  PipelineStep = "uploading"
	StepExtracting PipelineStep = "extracting"
	StepConversion PipelineStep = "currency_conversion"
	StepCompleted  PipelineStep = "completed"
)
